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
	"gonum.org/v1/gonum/mat"
)

// Georeferencer maps points of the local model frame to WGS84 and back
type Georeferencer struct {
	Origin PosLLH          // Origin of the local Cartesian frame
	Tr     *RigidTransform // Comparison frame to (east, north, height)
	Basis  Basis           // Local model frame to comparison frame
	inv    Basis           // Inverse of Basis
}

func NewGeoreferencer(origin PosLLH, tr *RigidTransform, basis Basis) (*Georeferencer, error) {
	if tr == nil || tr.Dim != 3 {
		return nil, fmt.Errorf("NewGeoreferencer() failed, err=3D transform required")
	}
	inv, err := basis.Inverse()
	if err != nil {
		return nil, fmt.Errorf("NewGeoreferencer() failed, err=%v", err)
	}
	return &Georeferencer{Origin: origin, Tr: tr, Basis: basis, inv: inv}, nil
}

// Georeferencer of a serialized result, using the default basis change
func NewGeoreferencerFromResult(g *GeoResult) (*Georeferencer, error) {
	return NewGeoreferencer(g.OriginLLH(), g.Transform(), LOCAL_TO_COMPARISON)
}

// Local model point to geodetic position. Height is the aligned height [m].
func (g *Georeferencer) ToWGS84(p r3.Vector) PosLLH {
	q := g.Tr.Apply(g.Basis.Apply(p))
	llh := FromLocalCartesian(g.Origin, q.X, q.Y)
	llh.Hei = q.Z
	return llh
}

// Geodetic position to local model point
func (g *Georeferencer) ToLocal(llh PosLLH) r3.Vector {
	e, n := ToLocalCartesian(g.Origin, llh)
	v := mat.NewVecDense(3, []float64{e - g.Tr.T.AtVec(0), n - g.Tr.T.AtVec(1), llh.Hei - g.Tr.T.AtVec(2)})
	var q mat.VecDense
	q.MulVec(g.Tr.R.T(), v)
	return g.inv.Apply(r3.Vector{X: q.AtVec(0), Y: q.AtVec(1), Z: q.AtVec(2)})
}

// Inverse basis change
func (b *Basis) Inverse() (Basis, error) {
	m := mat.NewDense(3, 3, []float64{
		b[0][0], b[0][1], b[0][2],
		b[1][0], b[1][1], b[1][2],
		b[2][0], b[2][1], b[2][2],
	})
	var inv mat.Dense
	if err := inv.Inverse(m); err != nil {
		return Basis{}, err
	}
	var out Basis
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			out[i][j] = inv.At(i, j)
		}
	}
	return out, nil
}
