// Copyright (c) 2025 hitoshi.mukai.b@gmail.com. All rights reserved.
// You are free to use this source code for any purpose. The copyright remains with the author.
// The author accepts no liability for any damages arising from the use of this source code.
//
// Last modified: 2026.10.19
//

// Associates RTK fixes with time-interpolated poses for a candidate clock offset.

package rtkalign

import (
	"github.com/golang/geo/r3"
)

// Change of basis applied to a 3-vector (row-major)
type Basis [3][3]float64

// Local pose frame (y-up camera model frame) to the comparison frame: (x, y, z) -> (x, -z, -y)
var LOCAL_TO_COMPARISON = Basis{
	{1, 0, 0},
	{0, 0, -1},
	{0, -1, 0},
}

// Identity basis (no change of axes)
var IDENTITY_BASIS = Basis{
	{1, 0, 0},
	{0, 1, 0},
	{0, 0, 1},
}

func (b *Basis) Apply(v r3.Vector) r3.Vector {
	return r3.Vector{
		X: b[0][0]*v.X + b[0][1]*v.Y + b[0][2]*v.Z,
		Y: b[1][0]*v.X + b[1][1]*v.Y + b[1][2]*v.Z,
		Z: b[2][0]*v.X + b[2][1]*v.Y + b[2][2]*v.Z,
	}
}

func (b *Basis) Det() float64 {
	return b[0][0]*(b[1][1]*b[2][2]-b[1][2]*b[2][1]) -
		b[0][1]*(b[1][0]*b[2][2]-b[1][2]*b[2][0]) +
		b[0][2]*(b[1][0]*b[2][1]-b[1][1]*b[2][0])
}

// Associate pairs each fix with the pose interpolated at fix time minus timeShift,
// using the LOCAL_TO_COMPARISON basis. See AssociateWith.
func Associate(poses []PoseSample, fixes []GeoFixSample, timeShift float64) []MatchedPair {
	return AssociateWith(poses, fixes, timeShift, LOCAL_TO_COMPARISON)
}

// AssociateWith pairs each fix with the pose linearly interpolated at
// fix.Time - timeShift, then changes the pose into the comparison frame with basis.
//
// Both sequences must be sorted by time. The pose cursor only moves forward:
// a fix with no bracketing interval at or after the cursor is skipped, and
// association stops at the first fix whose target time is past the last pose.
func AssociateWith(poses []PoseSample, fixes []GeoFixSample, timeShift float64, basis Basis) []MatchedPair {
	pairs := []MatchedPair{}
	if len(poses) == 0 {
		return pairs
	}
	last := poses[len(poses)-1].Time
	cursor := 0
	for _, fix := range fixes {
		t := fix.Time - timeShift
		for j := cursor; j < len(poses)-1; j++ {
			t0 := poses[j].Time
			t1 := poses[j+1].Time
			if t0 <= t && t1 > t {
				cursor = j
				percent := (t - t0) / (t1 - t0)
				p0 := poses[j].Pos
				p1 := poses[j+1].Pos
				mid := p1.Sub(p0).Mul(percent).Add(p0)
				pairs = append(pairs, MatchedPair{
					Pose:   basis.Apply(mid),
					Fix:    fix.Pos,
					Weight: r3.Vector{X: fix.Variance, Y: fix.VAcc, Z: fix.HAcc},
				})
				break
			}
			if t1 > t {
				break // target is before this interval; go to next fix
			}
		}
		if t > last {
			break
		}
	}
	return pairs
}
