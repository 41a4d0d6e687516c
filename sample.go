// Copyright (c) 2025 hitoshi.mukai.b@gmail.com. All rights reserved.
// You are free to use this source code for any purpose. The copyright remains with the author.
// The author accepts no liability for any damages arising from the use of this source code.
//
// Last modified: 2026.10.19
//

package rtkalign

import (
	"fmt"

	"github.com/golang/geo/r3"
)

// Camera position at one instant in the local tracking frame
type PoseSample struct {
	Time float64   // Timestamp [s]
	Pos  r3.Vector // Position in the local frame [m]
}

// RTK fix projected into the local Cartesian frame around the origin
type GeoFixSample struct {
	Time     float64   // Timestamp [s]
	Pos      r3.Vector // East, north [m] and measured height [m]
	HAcc     float64   // Horizontal accuracy [m]
	VAcc     float64   // Vertical accuracy [m]
	Quality  Quality   // Solution quality
	Variance float64   // Variance derived from Quality
}

// Time-synchronized pair produced by association
type MatchedPair struct {
	Pose   r3.Vector // Interpolated pose after the basis change
	Fix    r3.Vector // Fix position
	Weight r3.Vector // (quality variance, vertical accuracy, horizontal accuracy)
}

// Check ascending timestamp order
func IsSortedPoses(s []PoseSample) bool {
	for i := 1; i < len(s); i++ {
		if s[i].Time < s[i-1].Time {
			return false
		}
	}
	return true
}

func IsSortedFixes(s []GeoFixSample) bool {
	for i := 1; i < len(s); i++ {
		if s[i].Time < s[i-1].Time {
			return false
		}
	}
	return true
}

// Split matched pairs into the pose, fix and weight vectors
func SplitPairs(pairs []MatchedPair) (poses, fixes, weights []r3.Vector) {
	poses = make([]r3.Vector, len(pairs))
	fixes = make([]r3.Vector, len(pairs))
	weights = make([]r3.Vector, len(pairs))
	for i, p := range pairs {
		poses[i] = p.Pose
		fixes[i] = p.Fix
		weights[i] = p.Weight
	}
	return
}

// Overview of a pose sequence for debug display
func DescribePoses(s []PoseSample) string {
	if len(s) == 0 {
		return "NO DATA"
	}
	return fmt.Sprintf("%s - %s (%d)", FormatStamp(s[0].Time), FormatStamp(s[len(s)-1].Time), len(s))
}

// Overview of a fix sequence for debug display
func DescribeFixes(s []GeoFixSample) string {
	if len(s) == 0 {
		return "NO DATA"
	}
	n := map[Quality]int{}
	for _, f := range s {
		n[f.Quality]++
	}
	return fmt.Sprintf("%s - %s (%d, fixed=%d float=%d dgps=%d single=%d)",
		FormatStamp(s[0].Time), FormatStamp(s[len(s)-1].Time), len(s),
		n[QualityFixed], n[QualityFloat], n[QualityCodeDiff], n[QualitySingle])
}
