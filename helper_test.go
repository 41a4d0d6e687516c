// Copyright (c) 2025 hitoshi.mukai.b@gmail.com. All rights reserved.
// You are free to use this source code for any purpose. The copyright remains with the author.
// The author accepts no liability for any damages arising from the use of this source code.
//
// Last modified: 2026.10.19
//

package rtkalign

import (
	"math"

	"github.com/golang/geo/r3"
	"gonum.org/v1/gonum/mat"
)

// Synthetic data set: poses along a curved path and fixes generated from
// a known rotation, translation and clock offset.
type scenario struct {
	poses []PoseSample
	fixes []GeoFixSample
	R     *mat.Dense
	T     r3.Vector
	shift float64
}

func trajectory(t float64) r3.Vector {
	return r3.Vector{X: 3 * math.Cos(0.5*t), Y: 0.5 * t, Z: 2 * math.Sin(0.3*t)}
}

// 10 Hz poses from t0 to t0+20
func makePoses(t0 float64) []PoseSample {
	poses := make([]PoseSample, 201)
	for i := range poses {
		t := t0 + 0.1*float64(i)
		poses[i] = PoseSample{Time: t, Pos: trajectory(t - t0)}
	}
	return poses
}

// Piecewise linear pose position at t (linear scan)
func interpPose(poses []PoseSample, t float64) r3.Vector {
	for j := 0; j < len(poses)-1; j++ {
		if poses[j].Time <= t && t <= poses[j+1].Time {
			p := (t - poses[j].Time) / (poses[j+1].Time - poses[j].Time)
			return poses[j+1].Pos.Sub(poses[j].Pos).Mul(p).Add(poses[j].Pos)
		}
	}
	panic("time out of range")
}

// Rotation Rz(yaw) Ry(pitch) Rx(roll)
func rotZYX(yaw, pitch, roll float64) *mat.Dense {
	cz, sz := math.Cos(yaw), math.Sin(yaw)
	cy, sy := math.Cos(pitch), math.Sin(pitch)
	cx, sx := math.Cos(roll), math.Sin(roll)
	Rz := mat.NewDense(3, 3, []float64{cz, -sz, 0, sz, cz, 0, 0, 0, 1})
	Ry := mat.NewDense(3, 3, []float64{cy, 0, sy, 0, 1, 0, -sy, 0, cy})
	Rx := mat.NewDense(3, 3, []float64{1, 0, 0, 0, cx, -sx, 0, sx, cx})
	var tmp, R mat.Dense
	tmp.Mul(Rz, Ry)
	R.Mul(&tmp, Rx)
	return &R
}

func rotate(R mat.Matrix, v r3.Vector) r3.Vector {
	return r3.Vector{
		X: R.At(0, 0)*v.X + R.At(0, 1)*v.Y + R.At(0, 2)*v.Z,
		Y: R.At(1, 0)*v.X + R.At(1, 1)*v.Y + R.At(1, 2)*v.Z,
		Z: R.At(2, 0)*v.X + R.At(2, 1)*v.Y + R.At(2, 2)*v.Z,
	}
}

// Fixes every 0.5 s from t0+1 to t0+19 with the given clock offset
func makeScenario(shift float64) *scenario {
	const t0 = 100.0
	s := &scenario{
		poses: makePoses(t0),
		R:     rotZYX(ToRad(30), ToRad(2), ToRad(-1)),
		T:     r3.Vector{X: 10, Y: -5, Z: 50},
		shift: shift,
	}
	for k := 0; k <= 36; k++ {
		tf := t0 + 1 + 0.5*float64(k)
		p := LOCAL_TO_COMPARISON.Apply(interpPose(s.poses, tf-shift))
		s.fixes = append(s.fixes, GeoFixSample{
			Time:     tf,
			Pos:      rotate(s.R, p).Add(s.T),
			HAcc:     0.01,
			VAcc:     0.02,
			Quality:  QualityFixed,
			Variance: 0.01,
		})
	}
	return s
}

func vecs(v ...[3]float64) []r3.Vector {
	out := make([]r3.Vector, len(v))
	for i, a := range v {
		out[i] = r3.Vector{X: a[0], Y: a[1], Z: a[2]}
	}
	return out
}
