// Copyright (c) 2025 hitoshi.mukai.b@gmail.com. All rights reserved.
// You are free to use this source code for any purpose. The copyright remains with the author.
// The author accepts no liability for any damages arising from the use of this source code.
//
// Last modified: 2026.10.19
//

package main

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	m "github.com/mkhts/rtkalign"
	"github.com/mkhts/rtkalign/internal/config"
	"github.com/mkhts/rtkalign/internal/report"
	"github.com/mkhts/rtkalign/internal/store"
)

// AlignOptions holds flags for the align command
type AlignOptions struct {
	*RootOptions
	Output   string
	Format   string
	Origin   m.PosLLH
	Plot     string
	Database string
	Workers  int
	Weighted bool
}

// NewAlignCommand creates the align command
func NewAlignCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &AlignOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "align <rtk-dir|file.pos> <pose-dir>",
		Short: "Estimate the local to WGS84 transform",
		Long: `Load RTK fixes and camera poses, search the clock offset between them
coarse to fine and write the best rigid transform.

Example:
  rtkalign align ./rtk ./pose -o result.json
  rtkalign align solution.pos ./pose --format geojson --plot curve.png --db runs.db`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAlign(opts, args[0], args[1], cmd)
		},
	}

	cmd.Flags().StringVarP(&opts.Output, "output", "o", "", "output file (stdout if omitted)")
	cmd.Flags().StringVar(&opts.Format, "format", "", "output format (json|geojson), overrides config")
	cmd.Flags().Var(&opts.Origin, "origin", "fixed origin \"lat lon\" in degrees instead of the automatic choice")
	cmd.Flags().StringVar(&opts.Plot, "plot", "", "save the error vs. shift chart (.png, .svg, .pdf)")
	cmd.Flags().StringVar(&opts.Database, "db", "", "record the run in this SQLite database")
	cmd.Flags().IntVar(&opts.Workers, "workers", 0, "candidate shifts evaluated concurrently, overrides config")
	cmd.Flags().BoolVar(&opts.Weighted, "weighted", false, "weight pairs by quality variance, overrides config")

	return cmd
}

func runAlign(opts *AlignOptions, rtkPath, poseDir string, cmd *cobra.Command) error {
	cfg, err := loadConfig(opts.RootOptions)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	applyAlignFlags(opts, cfg, cmd)
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid option: %w", err)
	}

	// Load input files
	recs, err := loadFixRecords(rtkPath, cfg)
	if err != nil {
		return fmt.Errorf("failed to read RTK records: %w", err)
	}
	fixOpt, err := cfg.FixOpt()
	if err != nil {
		return err
	}
	if cmd.Flags().Changed("origin") {
		origin := opts.Origin
		fixOpt.Origin = &origin
	}
	fixes, origin, err := m.FixRecordsToSamples(recs, fixOpt)
	if err != nil {
		return fmt.Errorf("failed to prepare RTK samples: %w", err)
	}
	slog.Info("RTK records loaded", "path", rtkPath, "records", len(recs), "used", len(fixes), "origin", origin.String())
	slog.Debug("RTK span", "fixes", m.DescribeFixes(fixes))

	poses, err := m.LoadPoses(poseDir)
	if err != nil {
		return fmt.Errorf("failed to read poses: %w", err)
	}
	slog.Info("poses loaded", "path", poseDir, "poses", len(poses))
	slog.Debug("pose span", "poses", m.DescribePoses(poses))

	// Search
	tr, diag, err := m.CoarseToFine(poses, fixes, cfg.SearchOpt())
	if diag != nil && opts.Plot != "" {
		if perr := report.PlotCurve(diag, opts.Plot); perr != nil {
			slog.Warn("failed to save plot", "path", opts.Plot, "err", perr)
		} else {
			slog.Info("plot saved", "path", opts.Plot)
		}
	}
	if err != nil {
		var afe *m.AlignmentFailedError
		if errors.As(err, &afe) {
			return fmt.Errorf("no alignment found (%d RTK samples, %d poses): %w", len(fixes), len(poses), err)
		}
		return err
	}
	slog.Info("alignment found", "shift", diag.FineShift, "err", diag.FineErr, "coarse_shift", diag.CoarseShift, "coarse_err", diag.CoarseErr)

	res, err := m.NewGeoResult(tr, origin)
	if err != nil {
		return err
	}

	// Output
	out, closeOut, err := prepareOutput(opts.Output, cmd.OutOrStdout())
	if err != nil {
		return fmt.Errorf("failed to prepare output: %w", err)
	}
	defer closeOut()
	if cfg.Output.Format == "geojson" {
		err = res.WriteGeoJSON(out)
	} else {
		err = res.WriteJSON(out)
	}
	if err != nil {
		return fmt.Errorf("failed to write result: %w", err)
	}

	if opts.Database != "" {
		id, err := recordRun(opts.Database, rtkPath, poseDir, len(poses), len(fixes), res, diag, cmd)
		if err != nil {
			return fmt.Errorf("failed to record run: %w", err)
		}
		slog.Info("run recorded", "db", opts.Database, "id", id)
	}
	return nil
}

// Flags explicitly given override config values
func applyAlignFlags(opts *AlignOptions, cfg *config.Config, cmd *cobra.Command) {
	if cmd.Flags().Changed("format") {
		cfg.Output.Format = opts.Format
	}
	if cmd.Flags().Changed("workers") {
		cfg.Search.Workers = opts.Workers
	}
	if cmd.Flags().Changed("weighted") {
		cfg.Search.Weighted = opts.Weighted
	}
}

// Use the writer w if no output file is specified
func prepareOutput(path string, w io.Writer) (io.Writer, func(), error) {
	if path == "" {
		return w, func() {}, nil
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, nil, err
	}
	return f, func() { f.Close() }, nil
}

func recordRun(dbPath, rtkPath, poseDir string, numPoses, numFixes int, res *m.GeoResult, diag *m.Diagnostics, cmd *cobra.Command) (string, error) {
	st, err := store.Open(dbPath)
	if err != nil {
		return "", err
	}
	defer st.Close()
	run := &store.Run{
		RTKSource:  rtkPath,
		PoseSource: poseDir,
		NumPoses:   numPoses,
		NumFixes:   numFixes,
		Result:     *res,
	}
	return st.SaveRun(cmd.Context(), run, diag)
}
