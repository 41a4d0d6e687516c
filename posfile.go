// Copyright (c) 2025 hitoshi.mukai.b@gmail.com. All rights reserved.
// You are free to use this source code for any purpose. The copyright remains with the author.
// The author accepts no liability for any damages arising from the use of this source code.
//
// Last modified: 2026.10.19
//

package rtkalign

import (
	"bufio"
	"fmt"
	"io"
	"math"
	"os"
	"strconv"
	"strings"
	"time"
)

// Solution file (.pos) written by RTKLIB rnx2rtkp/rtkpost or gortk.
//
//	% program   : gortk
//	%  GPST                 latitude(deg) longitude(deg)  height(m)   Q  ns   sdn(m)   sde(m)   sdu(m) ...
//	2024/03/06 13:46:49.000  35.681236800  139.767125000    40.1234   1   9   0.0040   0.0030   0.0100 ...
//
// Time may also be written as "week seconds". Only the lat/lon/height form is supported.

// PosFileOpt controls reading of .pos solution files
type PosFileOpt struct {
	ToUTC bool // Convert GPST epochs to UTC
	Leap  int  // Leap seconds between GPST and UTC
}

// NewPosFileOpt creates a new PosFileOpt with default values
func NewPosFileOpt() *PosFileOpt {
	return &PosFileOpt{
		ToUTC: true, // The pose clock runs on UTC
		Leap:  LS,   // 18 s
	}
}

// Column layout taken from the "%  GPST ..." header line
type posColumns struct {
	utc bool // Epochs are already in UTC
	sdn int  // Index of sdn(m) after the time fields, -1 if absent
	sde int
	sdu int
}

// Parse the column header line
func parsePosHeader(l string) posColumns {
	c := posColumns{sdn: -1, sde: -1, sdu: -1}
	la := strings.Fields(strings.TrimPrefix(l, "%"))
	if len(la) == 0 {
		return c
	}
	c.utc = la[0] == "UTC"
	for i, a := range la[1:] {
		switch a {
		case "sdn(m)":
			c.sdn = i
		case "sde(m)":
			c.sde = i
		case "sdu(m)":
			c.sdu = i
		}
	}
	return c
}

// Read epoch time from the head of a solution line.
// Returns the time and the number of fields consumed.
func getPosTime(la []string) (time.Time, int, error) {
	if len(la) < 2 {
		return time.Time{}, 0, fmt.Errorf("not enough fields in solution line (%d)", len(la))
	}
	if strings.Contains(la[0], "/") {
		t, err := time.ParseInLocation("2006/01/02 15:04:05", la[0]+" "+la[1], time.UTC)
		if err != nil {
			return time.Time{}, 0, err
		}
		return t, 2, nil
	}
	week, err := strconv.Atoi(la[0])
	if err != nil {
		return time.Time{}, 0, err
	}
	sec, err := strconv.ParseFloat(la[1], 64)
	if err != nil {
		return time.Time{}, 0, err
	}
	g := GTime{Week: week, Sec: sec}
	return g.ToTime().UTC(), 2, nil
}

// Read one solution line
func getPosData(l string, cols posColumns) (*FixRecord, time.Time, error) {
	la := strings.Fields(l)
	t, n, err := getPosTime(la)
	if err != nil {
		return nil, t, err
	}
	la = la[n:]
	if len(la) < 4 {
		return nil, t, fmt.Errorf("not enough fields in solution line: %s", l)
	}
	v := make([]float64, 3)
	for i := range v {
		v[i], err = strconv.ParseFloat(la[i], 64)
		if err != nil {
			return nil, t, err
		}
	}
	if math.Abs(v[0]) > 90 || math.Abs(v[1]) > 180 {
		return nil, t, fmt.Errorf("position out of range: %f %f", v[0], v[1])
	}
	q, err := strconv.Atoi(la[3])
	if err != nil {
		return nil, t, err
	}
	rec := &FixRecord{
		LLH:        *NewPosLLHDeg(v[0], v[1], v[2]),
		FixStatus:  q,
		DiffStatus: la[3],
		Quality:    qualityFromQ(q),
	}
	sd := func(i int) float64 {
		if i < 0 || i >= len(la) {
			return 0
		}
		x, err := strconv.ParseFloat(la[i], 64)
		if err != nil {
			return 0
		}
		return math.Abs(x)
	}
	rec.HAcc = math.Sqrt(SQ(sd(cols.sdn)) + SQ(sd(cols.sde)))
	rec.VAcc = sd(cols.sdu)
	return rec, t, nil
}

// Map the Q column onto Quality. SBAS(3) and PPP(6) are not used here.
func qualityFromQ(q int) Quality {
	switch Quality(q) {
	case QualityFixed, QualityFloat, QualityCodeDiff, QualitySingle:
		return Quality(q)
	default:
		return QualityUnknown
	}
}

// Read solution file. name is recorded in FixRecord.File.
func ReadPosFile(name string, r io.Reader, opt *PosFileOpt) ([]*FixRecord, error) {
	if opt == nil {
		opt = NewPosFileOpt()
	}

	// Column layout (GPST, no standard deviations unless the header says so)
	cols := posColumns{sdn: -1, sde: -1, sdu: -1}

	recs := []*FixRecord{}
	s := bufio.NewScanner(r)
	ln := 0
	for s.Scan() {
		ln++
		line := strings.TrimSpace(s.Text())
		if line == "" {
			continue
		}

		// Header lines
		if strings.HasPrefix(line, "%") {
			la := strings.Fields(strings.TrimPrefix(line, "%"))
			if len(la) > 0 && (la[0] == "GPST" || la[0] == "UTC") {
				cols = parsePosHeader(line)
			}
			continue
		}

		rec, t, err := getPosData(line, cols)
		if err != nil {
			return nil, &MalformedRecordError{File: fmt.Sprintf("%s:%d", name, ln), Err: err}
		}
		rec.File = name
		rec.Time = TimeToStamp(t)
		if !cols.utc && opt.ToUTC {
			rec.Time = GpstToUtc(rec.Time, opt.Leap)
		}
		recs = append(recs, rec)
	}

	// Check if reading completed without error
	if err := s.Err(); err != nil {
		return nil, err
	}

	SortFixRecords(recs)
	PrintD(2, "%s: %d solutions\n", name, len(recs))
	return recs, nil
}

// Open and read a solution file
func ReadPosPath(path string, opt *PosFileOpt) ([]*FixRecord, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return ReadPosFile(path, f, opt)
}
