// Copyright (c) 2025 hitoshi.mukai.b@gmail.com. All rights reserved.
// You are free to use this source code for any purpose. The copyright remains with the author.
// The author accepts no liability for any damages arising from the use of this source code.
//
// Last modified: 2026.10.19
//

package rtkalign

import (
	"fmt"
	"math"
	"time"
)

// GPS time as week number and seconds of week
type GTime struct {
	Week int
	Sec  float64
}

func NewGTime(dt time.Time) *GTime {
	t := dt.Unix()
	t -= time.Date(1980, 1, 6, 0, 0, 0, 0, time.UTC).Unix() // Elapsed seconds since 1980/1/6 00:00:00
	return &GTime{
		Week: int(t / (3600 * 24 * 7)),
		Sec:  float64(t%(3600*24*7)) + float64(dt.Nanosecond())/1000000000,
	}
}

func (p *GTime) ToTime() time.Time {
	o := time.Date(1980, 1, 6, 0, 0, 0, 0, time.UTC).Unix() // GPS time starts from 1980/1/6 00:00:00
	i := int64(math.Trunc(p.Sec))
	t := int64(3600*24*7*p.Week) + i + o
	n := int64((p.Sec - float64(i)) * 1e9)
	return time.Unix(t, n) // Unix time is the elapsed seconds since 1970/1/1 00:00:00
}

// Seconds since the Unix epoch
func (p *GTime) ToStamp() float64 {
	return TimeToStamp(p.ToTime())
}

// Convert a float timestamp [s] into time.Time
func StampToTime(t float64) time.Time {
	sec, frac := math.Modf(t)
	return time.Unix(int64(sec), int64(math.Round(frac*1e9)))
}

// Convert time.Time into a float timestamp [s]
func TimeToStamp(t time.Time) float64 {
	return float64(t.Unix()) + float64(t.Nanosecond())/1e9
}

// Convert GPST timestamp to UTC by removing leap seconds
func GpstToUtc(t float64, leap int) float64 {
	return t - float64(leap)
}

// Human readable span for logs, e.g. "2024/03/06 13:46:49.035(UTC) (week2304 308827.0s)(GPST)"
func FormatStamp(t float64) string {
	tt := StampToTime(t).UTC()
	g := NewGTime(tt.Add(time.Duration(LS) * time.Second))
	return fmt.Sprintf("%s(UTC) (week%d %7.1fs)(GPST)", tt.Format("2006/01/02 15:04:05.000"), g.Week, g.Sec)
}
