// Copyright (c) 2025 hitoshi.mukai.b@gmail.com. All rights reserved.
// You are free to use this source code for any purpose. The copyright remains with the author.
// The author accepts no liability for any damages arising from the use of this source code.
//
// Last modified: 2026.10.19
//

package main

import (
	"fmt"

	"github.com/spf13/cobra"

	m "github.com/mkhts/rtkalign"
)

// NewOriginCommand creates the origin command
func NewOriginCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "origin <rtk-dir|file.pos>",
		Short: "Print the origin of the local Cartesian frame",
		Long: `Print the RTK record chosen as origin: the first fixed solution in time
order, or the record with the best accuracy if none is fixed.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(rootOpts)
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}
			recs, err := loadFixRecords(args[0], cfg)
			if err != nil {
				return fmt.Errorf("failed to read RTK records: %w", err)
			}
			origin, err := m.FindOrigin(recs)
			if err != nil {
				return err
			}
			lat, lon := origin.Deg()
			fmt.Fprintf(cmd.OutOrStdout(), "%.9f %.9f %.4f\n", lat, lon, origin.Hei)
			return nil
		},
	}
	return cmd
}
