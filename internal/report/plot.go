// Copyright (c) 2025 hitoshi.mukai.b@gmail.com. All rights reserved.
// You are free to use this source code for any purpose. The copyright remains with the author.
// The author accepts no liability for any damages arising from the use of this source code.
//
// Last modified: 2026.10.19
//

// Package report draws diagnostics charts of an alignment run.
package report

import (
	"fmt"
	"image/color"
	"math"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
	"gonum.org/v1/plot/vg/draw"

	"github.com/mkhts/rtkalign"
)

var (
	coarseColor = color.RGBA{R: 31, G: 119, B: 180, A: 255}
	fineColor   = color.RGBA{R: 255, G: 127, B: 14, A: 255}
	bestColor   = color.RGBA{R: 214, G: 39, B: 40, A: 255}
)

// Points of a curve, skipping failed (+Inf) candidates
func curveXYs(curve []rtkalign.ShiftEval) plotter.XYs {
	pts := make(plotter.XYs, 0, len(curve))
	for _, c := range curve {
		if math.IsInf(c.Err, 0) || math.IsNaN(c.Err) {
			continue
		}
		pts = append(pts, plotter.XY{X: c.Shift, Y: c.Err})
	}
	return pts
}

// CurvePlot builds the error vs. time shift chart of a coarse-to-fine search
func CurvePlot(diag *rtkalign.Diagnostics) (*plot.Plot, error) {
	if diag == nil {
		return nil, fmt.Errorf("no diagnostics")
	}
	p := plot.New()
	p.Title.Text = "Alignment error vs. time shift"
	p.X.Label.Text = "Time shift (s)"
	p.Y.Label.Text = "Mean residual (m)"

	coarsePts := curveXYs(diag.Coarse)
	finePts := curveXYs(diag.Fine)
	if len(coarsePts) == 0 && len(finePts) == 0 {
		return nil, fmt.Errorf("no aligned candidates to plot")
	}

	if len(coarsePts) > 0 {
		coarseLine, err := plotter.NewLine(coarsePts)
		if err != nil {
			return nil, err
		}
		coarseLine.Color = coarseColor
		coarseLine.Width = vg.Points(1)
		p.Add(coarseLine)
		p.Legend.Add("coarse", coarseLine)
	}

	if len(finePts) > 0 {
		fineLine, fineMarks, err := plotter.NewLinePoints(finePts)
		if err != nil {
			return nil, err
		}
		fineLine.Color = fineColor
		fineLine.Width = vg.Points(1)
		fineMarks.Color = fineColor
		fineMarks.Shape = draw.CircleGlyph{}
		fineMarks.Radius = vg.Points(1.5)
		p.Add(fineLine, fineMarks)
		p.Legend.Add("fine", fineLine, fineMarks)
	}

	// Chosen shift
	if !math.IsInf(diag.FineErr, 0) && !math.IsNaN(diag.FineErr) {
		best, err := plotter.NewScatter(plotter.XYs{{X: diag.FineShift, Y: diag.FineErr}})
		if err != nil {
			return nil, err
		}
		best.Color = bestColor
		best.Shape = draw.CrossGlyph{}
		best.Radius = vg.Points(4)
		p.Add(best)
		p.Legend.Add(fmt.Sprintf("best %.3f s", diag.FineShift), best)
	}

	p.Legend.Top = true
	p.Legend.Left = false
	p.Legend.XOffs = -10
	p.Legend.YOffs = -10
	p.Add(plotter.NewGrid())

	return p, nil
}

// PlotCurve saves the chart to path. The format follows the extension (.png, .svg, .pdf).
func PlotCurve(diag *rtkalign.Diagnostics, path string) error {
	p, err := CurvePlot(diag)
	if err != nil {
		return err
	}
	if err := p.Save(14*vg.Inch, 6*vg.Inch, path); err != nil {
		return fmt.Errorf("failed to save plot: %w", err)
	}
	return nil
}
