// Copyright (c) 2025 hitoshi.mukai.b@gmail.com. All rights reserved.
// You are free to use this source code for any purpose. The copyright remains with the author.
// The author accepts no liability for any damages arising from the use of this source code.
//
// Last modified: 2026.10.19
//

package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	m "github.com/mkhts/rtkalign"
	"github.com/mkhts/rtkalign/internal/config"
)

// RootOptions holds global flags for all commands
type RootOptions struct {
	ConfigPath string
	Verbose    bool
	Debug      int
}

// NewRootCommand creates the root command
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "rtkalign",
		Short: "Align AR/SLAM camera poses with RTK GNSS fixes",
		Long: `rtkalign estimates the rigid transform and clock offset that map a locally
tracked camera trajectory onto RTK GNSS fixes, and writes it as a
LocaltoWGS84 result (quaternion, translation and origin).`,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if opts.Debug < 0 || opts.Debug > 4 {
				return fmt.Errorf("invalid debug level %d: must be 0-4", opts.Debug)
			}
			setupLogging(opts, cmd.ErrOrStderr())
			return nil
		},
		SilenceUsage: true,
	}

	// Global flags
	cmd.PersistentFlags().StringVar(&opts.ConfigPath, "config", "", "YAML config file (defaults are used if omitted)")
	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "verbose output")
	cmd.PersistentFlags().IntVarP(&opts.Debug, "debug", "x", 0, "Debug information display level. 0(OFF), 1(display), 2(detailed), 3(more detailed), 4(most detailed)")

	// Add subcommands
	cmd.AddCommand(NewAlignCommand(opts))
	cmd.AddCommand(NewOriginCommand(opts))
	cmd.AddCommand(NewGeorefCommand(opts))
	cmd.AddCommand(NewRunsCommand(opts))

	return cmd
}

// Configure slog and the library debug printers
func setupLogging(opts *RootOptions, w io.Writer) {
	logLevel := slog.LevelInfo
	if opts.Verbose {
		logLevel = slog.LevelDebug
	}
	handler := slog.NewTextHandler(w, &slog.HandlerOptions{
		Level: logLevel,
	})
	slog.SetDefault(slog.New(handler))
	m.DBG_ = opts.Debug
	m.DebugOut = w
}

// Load the config file given by --config, or the defaults
func loadConfig(opts *RootOptions) (*config.Config, error) {
	if opts.ConfigPath == "" {
		return config.Default(), nil
	}
	cfg, err := config.Load(opts.ConfigPath)
	if err != nil {
		return nil, err
	}
	slog.Debug("config loaded", "path", opts.ConfigPath)
	return cfg, nil
}

// Read RTK records from a directory of JSON records, a single JSON record or a .pos file
func loadFixRecords(path string, cfg *config.Config) ([]*m.FixRecord, error) {
	fi, err := os.Stat(path)
	if err != nil {
		return nil, err
	}
	if fi.IsDir() {
		return m.ReadFixDir(path)
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".pos":
		return m.ReadPosPath(path, cfg.PosFileOpt())
	case ".json":
		recs, err := m.ReadFix(path)
		if err != nil {
			return nil, err
		}
		m.SortFixRecords(recs)
		return recs, nil
	default:
		return nil, fmt.Errorf("unsupported RTK input %q: expected a directory, .json or .pos file", path)
	}
}
