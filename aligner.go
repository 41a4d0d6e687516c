// Copyright (c) 2025 hitoshi.mukai.b@gmail.com. All rights reserved.
// You are free to use this source code for any purpose. The copyright remains with the author.
// The author accepts no liability for any damages arising from the use of this source code.
//
// Last modified: 2026.10.19
//

// Closed-form rigid registration (Kabsch) of matched point sets.

package rtkalign

import (
	"fmt"
	"math"

	"github.com/golang/geo/r3"
	"gonum.org/v1/gonum/mat"
)

// Rigid transform ref = R * p + T and the mean residual of the fit
type RigidTransform struct {
	Dim int           // 2 or 3
	R   *mat.Dense    // Dim x Dim rotation, det(R) = +1
	T   *mat.VecDense // Translation
	Err float64       // Mean Euclidean residual [m]
}

// Returned when the point sets are too small or differ in length
type InsufficientDataError struct {
	N int // Number of points
	M int // Number of reference points
}

func (e *InsufficientDataError) Error() string {
	return fmt.Sprintf("insufficient data for alignment: %d points, %d reference points (need equal counts >= %d)", e.N, e.M, MIN_PAIRS)
}

// Transform a point. For a 2D transform only X and Y are moved.
func (tr *RigidTransform) Apply(p r3.Vector) r3.Vector {
	if tr.Dim == 2 {
		return r3.Vector{
			X: tr.R.At(0, 0)*p.X + tr.R.At(0, 1)*p.Y + tr.T.AtVec(0),
			Y: tr.R.At(1, 0)*p.X + tr.R.At(1, 1)*p.Y + tr.T.AtVec(1),
			Z: p.Z,
		}
	}
	return r3.Vector{
		X: tr.R.At(0, 0)*p.X + tr.R.At(0, 1)*p.Y + tr.R.At(0, 2)*p.Z + tr.T.AtVec(0),
		Y: tr.R.At(1, 0)*p.X + tr.R.At(1, 1)*p.Y + tr.R.At(1, 2)*p.Z + tr.T.AtVec(1),
		Z: tr.R.At(2, 0)*p.X + tr.R.At(2, 1)*p.Y + tr.R.At(2, 2)*p.Z + tr.T.AtVec(2),
	}
}

// Check that R is orthonormal with determinant +1 within tol
func (tr *RigidTransform) IsRotation(tol float64) bool {
	return IsRotation(tr.R, tol)
}

func IsRotation(R mat.Matrix, tol float64) bool {
	r, c := R.Dims()
	if r != c {
		return false
	}
	if math.Abs(mat.Det(R)-1) > tol {
		return false
	}
	var RtR mat.Dense
	RtR.Mul(R.T(), R)
	for i := 0; i < r; i++ {
		for j := 0; j < c; j++ {
			want := 0.0
			if i == j {
				want = 1
			}
			if math.Abs(RtR.At(i, j)-want) > tol {
				return false
			}
		}
	}
	return true
}

// AlignSVD3D computes the rotation and translation mapping points onto refs
// in the least-squares sense.
func AlignSVD3D(points, refs []r3.Vector) (*RigidTransform, error) {
	return alignSVD(3, toRows(points, 3), toRows(refs, 3), nil)
}

// AlignSVD2D is AlignSVD3D on the horizontal components only.
func AlignSVD2D(points, refs []r3.Vector) (*RigidTransform, error) {
	return alignSVD(2, toRows(points, 2), toRows(refs, 2), nil)
}

// AlignWeighted3D weights each pair by the inverse of its quality variance (weights[i].X).
// Non-positive variances get weight 1/UNKNOWN_VARIANCE.
func AlignWeighted3D(points, refs, weights []r3.Vector) (*RigidTransform, error) {
	if len(weights) != len(points) {
		return nil, &InsufficientDataError{N: len(points), M: len(weights)}
	}
	w := make([]float64, len(weights))
	for i, v := range weights {
		if v.X > 0 {
			w[i] = 1 / v.X
		} else {
			w[i] = 1 / UNKNOWN_VARIANCE
		}
	}
	return alignSVD(3, toRows(points, 3), toRows(refs, 3), w)
}

func toRows(v []r3.Vector, dim int) [][]float64 {
	rows := make([][]float64, len(v))
	for i, p := range v {
		if dim == 2 {
			rows[i] = []float64{p.X, p.Y}
		} else {
			rows[i] = []float64{p.X, p.Y, p.Z}
		}
	}
	return rows
}

// Weighted mean of rows. w == nil means equal weights.
func centroid(rows [][]float64, w []float64, dim int) []float64 {
	c := make([]float64, dim)
	sw := 0.0
	for i, r := range rows {
		wi := 1.0
		if w != nil {
			wi = w[i]
		}
		for k := 0; k < dim; k++ {
			c[k] += wi * r[k]
		}
		sw += wi
	}
	for k := 0; k < dim; k++ {
		c[k] /= sw
	}
	return c
}

// Kabsch algorithm
//  1. centroids of both sets
//  2. cross-covariance Sigma = 1/N sum (ref_i - refMean)(p_i - pMean)^T
//  3. Sigma = U S V^T
//  4. W = diag(1, .., 1, sign(det(U) det(V)))
//  5. R = U W V^T, t = refMean - R pMean
//  6. error = mean |ref_i - (R p_i + t)|
func alignSVD(dim int, pts, refs [][]float64, w []float64) (*RigidTransform, error) {

	n := len(pts)
	if n != len(refs) || n < MIN_PAIRS {
		return nil, &InsufficientDataError{N: n, M: len(refs)}
	}

	// Normalized weights
	sw := float64(n)
	if w != nil {
		sw = 0
		for _, v := range w {
			sw += v
		}
		if sw <= 0 {
			return nil, fmt.Errorf("alignSVD() failed, err=non-positive total weight %g", sw)
		}
	}

	// Centroids
	pMean := centroid(pts, w, dim)
	rMean := centroid(refs, w, dim)

	// Cross-covariance
	sigma := mat.NewDense(dim, dim, nil)
	for i := 0; i < n; i++ {
		wi := 1.0
		if w != nil {
			wi = w[i]
		}
		for r := 0; r < dim; r++ {
			dr := refs[i][r] - rMean[r]
			for c := 0; c < dim; c++ {
				dp := pts[i][c] - pMean[c]
				sigma.Set(r, c, sigma.At(r, c)+wi*dr*dp/sw)
			}
		}
	}
	PrintD(3, "\tSigma: ")
	PrintMatD(3, sigma)

	// Singular value decomposition
	var svd mat.SVD
	if ok := svd.Factorize(sigma, mat.SVDFull); !ok {
		return nil, fmt.Errorf("alignSVD() failed, err=SVD factorization did not converge")
	}
	var U, V mat.Dense
	svd.UTo(&U)
	svd.VTo(&V)

	// Reflection correction
	W := mat.NewDiagDense(dim, nil)
	for k := 0; k < dim; k++ {
		W.SetDiag(k, 1)
	}
	if mat.Det(&U)*mat.Det(&V) < 0 {
		W.SetDiag(dim-1, -1)
	}

	// Rotation
	var UW, R mat.Dense
	UW.Mul(&U, W)
	R.Mul(&UW, V.T())

	// Translation
	pm := mat.NewVecDense(dim, pMean)
	var Rp mat.VecDense
	Rp.MulVec(&R, pm)
	T := mat.NewVecDense(dim, nil)
	T.SubVec(mat.NewVecDense(dim, rMean), &Rp)

	// Mean residual (unweighted)
	e := 0.0
	for i := 0; i < n; i++ {
		d := 0.0
		for r := 0; r < dim; r++ {
			v := T.AtVec(r)
			for c := 0; c < dim; c++ {
				v += R.At(r, c) * pts[i][c]
			}
			d += SQ(refs[i][r] - v)
		}
		e += math.Sqrt(d) / float64(n)
	}

	return &RigidTransform{Dim: dim, R: &R, T: T, Err: e}, nil
}
