// Copyright (c) 2025 hitoshi.mukai.b@gmail.com. All rights reserved.
// You are free to use this source code for any purpose. The copyright remains with the author.
// The author accepts no liability for any damages arising from the use of this source code.
//
// Last modified: 2026.10.19
//

package rtkalign

import (
	"encoding/json"
	"fmt"
	"io"
	"math"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/num/quat"
)

const (
	GEO_RESULT_TYPE   = "LocaltoWGS84"
	COORDINATE_SYSTEM = "WGS84"
)

// Serialized alignment result
//
//	{"type":"LocaltoWGS84","coordinateSystem":"WGS84",
//	 "quaternion":[x,y,z,w],"translation":[tx,ty,tz],"origin":[lat,lon]}
type GeoResult struct {
	Type             string     `json:"type"`
	CoordinateSystem string     `json:"coordinateSystem"`
	Quaternion       [4]float64 `json:"quaternion"`  // x, y, z, w (scalar last, w >= 0)
	Translation      [3]float64 `json:"translation"` // [m]
	Origin           [2]float64 `json:"origin"`      // lat, lon [deg]
}

// Build a result from a transform and the origin of the local Cartesian frame.
// A 2D transform is embedded as a rotation about the vertical axis.
func NewGeoResult(tr *RigidTransform, origin PosLLH) (*GeoResult, error) {
	if tr == nil || tr.R == nil || tr.T == nil {
		return nil, fmt.Errorf("NewGeoResult() failed, err=no transform")
	}
	R, T, err := embed3D(tr)
	if err != nil {
		return nil, err
	}
	q := RotationToQuat(R)
	lat, lon := origin.Deg()
	return &GeoResult{
		Type:             GEO_RESULT_TYPE,
		CoordinateSystem: COORDINATE_SYSTEM,
		Quaternion:       [4]float64{q.Imag, q.Jmag, q.Kmag, q.Real},
		Translation:      [3]float64{T.AtVec(0), T.AtVec(1), T.AtVec(2)},
		Origin:           [2]float64{lat, lon},
	}, nil
}

// Rotation and translation as 3x3 / 3-vector
func embed3D(tr *RigidTransform) (*mat.Dense, *mat.VecDense, error) {
	switch tr.Dim {
	case 3:
		return tr.R, tr.T, nil
	case 2:
		R := mat.NewDense(3, 3, []float64{
			tr.R.At(0, 0), tr.R.At(0, 1), 0,
			tr.R.At(1, 0), tr.R.At(1, 1), 0,
			0, 0, 1,
		})
		T := mat.NewVecDense(3, []float64{tr.T.AtVec(0), tr.T.AtVec(1), 0})
		return R, T, nil
	default:
		return nil, nil, fmt.Errorf("unsupported transform dimension %d", tr.Dim)
	}
}

// Rotation part as quaternion
func (g *GeoResult) Quat() quat.Number {
	return quat.Number{Real: g.Quaternion[3], Imag: g.Quaternion[0], Jmag: g.Quaternion[1], Kmag: g.Quaternion[2]}
}

// Origin of the local Cartesian frame (height 0)
func (g *GeoResult) OriginLLH() PosLLH {
	return *NewPosLLHDeg(g.Origin[0], g.Origin[1], 0)
}

// Rebuild the 3D transform. Err is not serialized and is set to 0.
func (g *GeoResult) Transform() *RigidTransform {
	return &RigidTransform{
		Dim: 3,
		R:   QuatToRotation(g.Quat()),
		T:   mat.NewVecDense(3, []float64{g.Translation[0], g.Translation[1], g.Translation[2]}),
	}
}

// GeoJSON feature: origin point with the transform in properties
func (g *GeoResult) Feature() *geojson.Feature {
	f := geojson.NewFeature(orb.Point{g.Origin[1], g.Origin[0]})
	f.Properties["type"] = g.Type
	f.Properties["coordinateSystem"] = g.CoordinateSystem
	f.Properties["quaternion"] = g.Quaternion[:]
	f.Properties["translation"] = g.Translation[:]
	return f
}

// Write as indented JSON
func (g *GeoResult) WriteJSON(w io.Writer) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(g)
}

// Write as a GeoJSON feature
func (g *GeoResult) WriteGeoJSON(w io.Writer) error {
	b, err := g.Feature().MarshalJSON()
	if err != nil {
		return err
	}
	if _, err := w.Write(append(b, '\n')); err != nil {
		return err
	}
	return nil
}

// Read a result written by WriteJSON
func ReadGeoResult(r io.Reader) (*GeoResult, error) {
	var g GeoResult
	if err := json.NewDecoder(r).Decode(&g); err != nil {
		return nil, err
	}
	if g.Type != GEO_RESULT_TYPE {
		return nil, fmt.Errorf("unexpected result type %q", g.Type)
	}
	if quat.Abs(g.Quat()) == 0 {
		return nil, fmt.Errorf("zero quaternion")
	}
	if math.Abs(g.Origin[0]) > 90 || math.Abs(g.Origin[1]) > 180 {
		return nil, fmt.Errorf("origin out of range: %f %f", g.Origin[0], g.Origin[1])
	}
	return &g, nil
}

//-------------------------------------------------------------------
// Quaternion conversion
//-------------------------------------------------------------------

// Unit quaternion of a 3x3 rotation matrix (Shepperd's method), sign chosen so that Real >= 0
func RotationToQuat(R mat.Matrix) quat.Number {
	r := func(i, j int) float64 { return R.At(i, j) }
	var q quat.Number
	tr := r(0, 0) + r(1, 1) + r(2, 2)
	switch {
	case tr > 0:
		s := math.Sqrt(tr+1) * 2
		q = quat.Number{Real: s / 4, Imag: (r(2, 1) - r(1, 2)) / s, Jmag: (r(0, 2) - r(2, 0)) / s, Kmag: (r(1, 0) - r(0, 1)) / s}
	case r(0, 0) > r(1, 1) && r(0, 0) > r(2, 2):
		s := math.Sqrt(1+r(0, 0)-r(1, 1)-r(2, 2)) * 2
		q = quat.Number{Real: (r(2, 1) - r(1, 2)) / s, Imag: s / 4, Jmag: (r(0, 1) + r(1, 0)) / s, Kmag: (r(0, 2) + r(2, 0)) / s}
	case r(1, 1) > r(2, 2):
		s := math.Sqrt(1+r(1, 1)-r(0, 0)-r(2, 2)) * 2
		q = quat.Number{Real: (r(0, 2) - r(2, 0)) / s, Imag: (r(0, 1) + r(1, 0)) / s, Jmag: s / 4, Kmag: (r(1, 2) + r(2, 1)) / s}
	default:
		s := math.Sqrt(1+r(2, 2)-r(0, 0)-r(1, 1)) * 2
		q = quat.Number{Real: (r(1, 0) - r(0, 1)) / s, Imag: (r(0, 2) + r(2, 0)) / s, Jmag: (r(1, 2) + r(2, 1)) / s, Kmag: s / 4}
	}
	if n := quat.Abs(q); n > 0 && math.Abs(n-1) > 1e-12 {
		q = quat.Scale(1/n, q)
	}
	if q.Real < 0 {
		q = quat.Scale(-1, q)
	}
	return q
}

// Rotation matrix of a quaternion (normalized first)
func QuatToRotation(q quat.Number) *mat.Dense {
	if n := quat.Abs(q); n > 0 {
		q = quat.Scale(1/n, q)
	}
	w, x, y, z := q.Real, q.Imag, q.Jmag, q.Kmag
	return mat.NewDense(3, 3, []float64{
		1 - 2*(y*y+z*z), 2 * (x*y - z*w), 2 * (x*z + y*w),
		2 * (x*y + z*w), 1 - 2*(x*x+z*z), 2 * (y*z - x*w),
		2 * (x*z - y*w), 2 * (y*z + x*w), 1 - 2*(x*x+y*y),
	})
}
