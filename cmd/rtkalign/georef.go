// Copyright (c) 2025 hitoshi.mukai.b@gmail.com. All rights reserved.
// You are free to use this source code for any purpose. The copyright remains with the author.
// The author accepts no liability for any damages arising from the use of this source code.
//
// Last modified: 2026.10.19
//

package main

import (
	"fmt"
	"os"
	"strconv"

	"github.com/golang/geo/r3"
	"github.com/spf13/cobra"

	m "github.com/mkhts/rtkalign"
)

// NewGeorefCommand creates the georef command
func NewGeorefCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "georef <result.json> <x> <y> <z>",
		Short: "Map a local model point to latitude, longitude and height",
		Args:  cobra.ExactArgs(4),
		RunE: func(cmd *cobra.Command, args []string) error {
			v := [3]float64{}
			for i, a := range args[1:] {
				x, err := strconv.ParseFloat(a, 64)
				if err != nil {
					return fmt.Errorf("invalid coordinate %q: %w", a, err)
				}
				v[i] = x
			}

			f, err := os.Open(args[0])
			if err != nil {
				return err
			}
			defer f.Close()
			res, err := m.ReadGeoResult(f)
			if err != nil {
				return fmt.Errorf("failed to read result: %w", err)
			}

			g, err := m.NewGeoreferencerFromResult(res)
			if err != nil {
				return err
			}
			llh := g.ToWGS84(r3.Vector{X: v[0], Y: v[1], Z: v[2]})
			lat, lon := llh.Deg()
			fmt.Fprintf(cmd.OutOrStdout(), "%.9f %.9f %.4f\n", lat, lon, llh.Hei)
			return nil
		},
	}
	return cmd
}
