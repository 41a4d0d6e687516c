// Copyright (c) 2025 hitoshi.mukai.b@gmail.com. All rights reserved.
// You are free to use this source code for any purpose. The copyright remains with the author.
// The author accepts no liability for any damages arising from the use of this source code.
//
// Last modified: 2026.10.19
//

package main

import (
	"fmt"
	"math"

	"github.com/spf13/cobra"

	"github.com/mkhts/rtkalign/internal/store"
)

// RunsOptions holds flags for the runs command
type RunsOptions struct {
	*RootOptions
	Database string
	Limit    int
	Curve    string
}

// NewRunsCommand creates the runs command
func NewRunsCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &RunsOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "runs",
		Short: "List alignment runs recorded with align --db",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := store.Open(opts.Database)
			if err != nil {
				return fmt.Errorf("failed to open database: %w", err)
			}
			defer st.Close()

			w := cmd.OutOrStdout()
			if opts.Curve != "" {
				pts, err := st.Curve(cmd.Context(), opts.Curve)
				if err != nil {
					return err
				}
				for _, p := range pts {
					fmt.Fprintf(w, "%-6s %8.4f %4d %s\n", p.Stage, p.Shift, p.NumPairs, formatErr(p.Err))
				}
				return nil
			}

			runs, err := st.ListRuns(cmd.Context(), opts.Limit)
			if err != nil {
				return err
			}
			for _, r := range runs {
				fmt.Fprintf(w, "%s %s shift=%.4f err=%s origin=%.9f,%.9f %s %s\n",
					r.ID, r.CreatedAt.Format("2006/01/02 15:04:05"), r.FineShift, formatErr(r.FineErr),
					r.Result.Origin[0], r.Result.Origin[1], r.RTKSource, r.PoseSource)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite database (required)")
	_ = cmd.MarkFlagRequired("db")
	cmd.Flags().IntVar(&opts.Limit, "limit", 20, "number of runs to list, 0 for all")
	cmd.Flags().StringVar(&opts.Curve, "curve", "", "print the error curve of this run id instead")

	return cmd
}

func formatErr(e float64) string {
	if math.IsInf(e, 0) {
		return "-"
	}
	return fmt.Sprintf("%.6f", e)
}
