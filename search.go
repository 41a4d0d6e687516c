// Copyright (c) 2025 hitoshi.mukai.b@gmail.com. All rights reserved.
// You are free to use this source code for any purpose. The copyright remains with the author.
// The author accepts no liability for any damages arising from the use of this source code.
//
// Last modified: 2026.10.19
//

// Implements the coarse-to-fine search over the clock offset between the pose and RTK streams.

package rtkalign

import (
	"errors"
	"fmt"
	"math"

	"golang.org/x/sync/errgroup"
)

// SearchOpt contains the parameters of the time shift search
type SearchOpt struct {
	ShiftLow   float64 // Lower bound of the coarse shift interval [s]
	ShiftHigh  float64 // Upper bound of the coarse shift interval (inclusive) [s]
	CoarseStep float64 // Coarse step [s]
	FineStep   float64 // Fine step [s]
	Basis      Basis   // Basis change applied to poses during association
	Workers    int     // Number of candidate shifts evaluated concurrently. <= 1 means sequential
	Weighted   bool    // If true, weight pairs by inverse quality variance
}

// NewSearchOpt creates a new SearchOpt with default values
func NewSearchOpt() *SearchOpt {
	return &SearchOpt{
		ShiftLow:   DEFAULT_SHIFT_LOW,   // -1 s
		ShiftHigh:  DEFAULT_SHIFT_HIGH,  // +1 s
		CoarseStep: DEFAULT_COARSE_STEP, // 0.1 s
		FineStep:   DEFAULT_FINE_STEP,   // 0.01 s
		Basis:      LOCAL_TO_COMPARISON, // y-up model frame
		Workers:    1,                   // Sequential
		Weighted:   false,               // Plain Kabsch
	}
}

// Evaluation of one candidate shift
type ShiftEval struct {
	Shift    float64 // Candidate time shift [s]
	Err      float64 // Mean residual, +Inf if alignment failed
	NumPairs int     // Number of matched pairs
}

// SearchResult holds the best candidate of a search.
// Transform is nil and Err is +Inf when no candidate could be aligned.
type SearchResult struct {
	Transform *RigidTransform
	Err       float64
	Shift     float64
	Curve     []ShiftEval // Every evaluated candidate in ascending shift order
}

// Found reports whether the search produced a transform
func (r *SearchResult) Found() bool {
	return r != nil && r.Transform != nil && !math.IsInf(r.Err, 1)
}

// Diagnostics exposes the intermediate results of CoarseToFine
type Diagnostics struct {
	CoarseShift float64
	CoarseErr   float64
	FineShift   float64
	FineErr     float64
	MaxIter     int
	Coarse      []ShiftEval
	Fine        []ShiftEval
}

// Returned when no candidate shift yields an alignment
type AlignmentFailedError struct {
	Stage      string // "coarse" or "fine"
	Candidates int    // Number of candidates evaluated
}

func (e *AlignmentFailedError) Error() string {
	return fmt.Sprintf("alignment failed: no %s candidate out of %d produced enough matched pairs", e.Stage, e.Candidates)
}

// CoarseSearch evaluates shifts low, low+step, ... up to and including high
// and returns the one with the smallest mean residual. Ties keep the lower shift.
func CoarseSearch(poses []PoseSample, fixes []GeoFixSample, low, high, step float64, opt *SearchOpt) (*SearchResult, error) {
	if opt == nil {
		opt = NewSearchOpt()
	}
	if !(step > 0) || math.IsInf(step, 0) {
		return nil, fmt.Errorf("invalid coarse step %g", step)
	}
	if math.IsNaN(low) || math.IsNaN(high) || high < low {
		return nil, fmt.Errorf("invalid shift interval [%g, %g]", low, high)
	}
	n := int(math.Floor((high-low)/step+GRID_EPS)) + 1
	shifts := make([]float64, n)
	for i := range shifts {
		shifts[i] = low + float64(i)*step
	}
	PrintD(1, "coarse search: %d candidates in [%g, %g] step %g\n", n, low, high, step)
	return searchShifts(poses, fixes, shifts, opt), nil
}

// FineSearch evaluates maxIterations shifts center + (i - maxIterations/2)*step,
// covering the half-open window [center - maxIterations/2*step, center + maxIterations/2*step).
func FineSearch(poses []PoseSample, fixes []GeoFixSample, center, step float64, maxIterations int, opt *SearchOpt) (*SearchResult, error) {
	if opt == nil {
		opt = NewSearchOpt()
	}
	if !(step > 0) || math.IsInf(step, 0) {
		return nil, fmt.Errorf("invalid fine step %g", step)
	}
	if maxIterations < 1 {
		return nil, fmt.Errorf("invalid fine iteration count %d", maxIterations)
	}
	half := float64(maxIterations) / 2
	shifts := make([]float64, maxIterations)
	for i := range shifts {
		shifts[i] = center + (float64(i)-half)*step
	}
	PrintD(1, "fine search: %d candidates around %g step %g\n", maxIterations, center, step)
	return searchShifts(poses, fixes, shifts, opt), nil
}

// CoarseToFineAlign runs CoarseToFine and returns only the final transform.
func CoarseToFineAlign(poses []PoseSample, fixes []GeoFixSample, opt *SearchOpt) (*RigidTransform, error) {
	tr, _, err := CoarseToFine(poses, fixes, opt)
	return tr, err
}

// CoarseToFine searches the coarse grid, then refines around the best coarse
// shift with a window of 2*ceil(CoarseStep/FineStep) fine steps.
func CoarseToFine(poses []PoseSample, fixes []GeoFixSample, opt *SearchOpt) (*RigidTransform, *Diagnostics, error) {
	if opt == nil {
		opt = NewSearchOpt()
	}
	if !(opt.FineStep > 0) {
		return nil, nil, fmt.Errorf("invalid fine step %g", opt.FineStep)
	}

	coarse, err := CoarseSearch(poses, fixes, opt.ShiftLow, opt.ShiftHigh, opt.CoarseStep, opt)
	if err != nil {
		return nil, nil, fmt.Errorf("CoarseSearch() failed: %w", err)
	}
	diag := &Diagnostics{
		CoarseShift: coarse.Shift,
		CoarseErr:   coarse.Err,
		Coarse:      coarse.Curve,
		FineErr:     math.Inf(1),
	}
	if !coarse.Found() {
		return nil, diag, &AlignmentFailedError{Stage: "coarse", Candidates: len(coarse.Curve)}
	}
	PrintD(1, "coarse best: shift=%.4f err=%.6f\n", coarse.Shift, coarse.Err)

	maxIter := int(math.Ceil(opt.CoarseStep/opt.FineStep-GRID_EPS)) * 2
	diag.MaxIter = maxIter
	fine, err := FineSearch(poses, fixes, coarse.Shift, opt.FineStep, maxIter, opt)
	if err != nil {
		return nil, diag, fmt.Errorf("FineSearch() failed: %w", err)
	}
	diag.FineShift = fine.Shift
	diag.FineErr = fine.Err
	diag.Fine = fine.Curve
	if !fine.Found() {
		return nil, diag, &AlignmentFailedError{Stage: "fine", Candidates: len(fine.Curve)}
	}
	PrintD(1, "fine best: shift=%.4f err=%.6f\n", fine.Shift, fine.Err)
	PrintMatD(2, fine.Transform.R)

	return fine.Transform, diag, nil
}

// Evaluate every shift and keep the first one with the strictly smallest error
func searchShifts(poses []PoseSample, fixes []GeoFixSample, shifts []float64, opt *SearchOpt) *SearchResult {
	trs := make([]*RigidTransform, len(shifts))
	curve := make([]ShiftEval, len(shifts))

	eval := func(i int) {
		tr, n := evalShift(poses, fixes, shifts[i], opt)
		trs[i] = tr
		curve[i] = ShiftEval{Shift: shifts[i], Err: math.Inf(1), NumPairs: n}
		if tr != nil {
			curve[i].Err = tr.Err
		}
	}

	if opt.Workers > 1 {
		var g errgroup.Group
		g.SetLimit(opt.Workers)
		for i := range shifts {
			i := i
			g.Go(func() error {
				eval(i)
				return nil
			})
		}
		_ = g.Wait()
	} else {
		for i := range shifts {
			eval(i)
		}
	}

	rslt := &SearchResult{Err: math.Inf(1), Curve: curve}
	for i, c := range curve {
		PrintD(2, "\tshift=%8.4f pairs=%4d err=%.6f\n", c.Shift, c.NumPairs, c.Err)
		if trs[i] != nil && c.Err < rslt.Err {
			rslt.Err = c.Err
			rslt.Transform = trs[i]
			rslt.Shift = c.Shift
		}
	}
	return rslt
}

// Associate and align for one shift. Returns nil if alignment is impossible.
func evalShift(poses []PoseSample, fixes []GeoFixSample, shift float64, opt *SearchOpt) (*RigidTransform, int) {
	pairs := AssociateWith(poses, fixes, shift, opt.Basis)
	p, f, w := SplitPairs(pairs)
	var tr *RigidTransform
	var err error
	if opt.Weighted {
		tr, err = AlignWeighted3D(p, f, w)
	} else {
		tr, err = AlignSVD3D(p, f)
	}
	if err != nil {
		var ide *InsufficientDataError
		if !errors.As(err, &ide) {
			PrintD(1, "shift %g: %s\n", shift, err.Error())
		}
		return nil, len(pairs)
	}
	return tr, len(pairs)
}
