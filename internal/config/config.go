// Copyright (c) 2025 hitoshi.mukai.b@gmail.com. All rights reserved.
// You are free to use this source code for any purpose. The copyright remains with the author.
// The author accepts no liability for any damages arising from the use of this source code.
//
// Last modified: 2026.10.19
//

// Package config loads the YAML run configuration of rtkalign.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/mkhts/rtkalign"
)

// Max accepted config file size
const maxFileSize = 1 * 1024 * 1024 // 1MB

// Config is the root of the YAML file. Omitted keys keep the values of Default().
type Config struct {
	Search  SearchConfig  `yaml:"search"`
	Quality QualityConfig `yaml:"quality"`
	Input   InputConfig   `yaml:"input"`
	Output  OutputConfig  `yaml:"output"`
}

// Time shift search
type SearchConfig struct {
	ShiftLow   float64 `yaml:"shift_low"`
	ShiftHigh  float64 `yaml:"shift_high" validate:"gtefield=ShiftLow"`
	CoarseStep float64 `yaml:"coarse_step" validate:"gt=0"`
	FineStep   float64 `yaml:"fine_step" validate:"gt=0,ltefield=CoarseStep"`
	Workers    int     `yaml:"workers" validate:"gte=0,lte=256"`
	Weighted   bool    `yaml:"weighted"`
}

// Quality to variance table and the qualities used for alignment
type QualityConfig struct {
	Fixed    float64  `yaml:"fixed" validate:"gt=0"`
	Float    float64  `yaml:"float" validate:"gt=0"`
	CodeDiff float64  `yaml:"code_differential" validate:"gt=0"`
	Single   float64  `yaml:"single" validate:"gt=0"`
	Accept   []string `yaml:"accept" validate:"required,min=1,dive,required"`
}

// Input handling
type InputConfig struct {
	LeapSeconds int  `yaml:"leap_seconds" validate:"gte=0,lte=60"`
	GpstToUTC   bool `yaml:"gpst_to_utc"`
}

// Output handling
type OutputConfig struct {
	Format string `yaml:"format" validate:"oneof=json geojson"`
}

// Default returns the configuration used when no file is given
func Default() *Config {
	return &Config{
		Search: SearchConfig{
			ShiftLow:   rtkalign.DEFAULT_SHIFT_LOW,
			ShiftHigh:  rtkalign.DEFAULT_SHIFT_HIGH,
			CoarseStep: rtkalign.DEFAULT_COARSE_STEP,
			FineStep:   rtkalign.DEFAULT_FINE_STEP,
			Workers:    1,
			Weighted:   false,
		},
		Quality: QualityConfig{
			Fixed:    0.01,
			Float:    1.0,
			CodeDiff: 5.0,
			Single:   10.0,
			Accept:   []string{"fixed"},
		},
		Input: InputConfig{
			LeapSeconds: rtkalign.LS,
			GpstToUTC:   true,
		},
		Output: OutputConfig{
			Format: "json",
		},
	}
}

// Load reads a YAML config file on top of Default().
// The file must have a .yml or .yaml extension and be under 1MB.
func Load(path string) (*Config, error) {
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".yml" && ext != ".yaml" {
		return nil, fmt.Errorf("config file must have .yml or .yaml extension, got %q", ext)
	}

	fileInfo, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	if fileInfo.Size() > maxFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", fileInfo.Size(), maxFileSize)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config YAML: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// Validate checks field constraints and the accepted quality names
func (c *Config) Validate() error {
	v := validator.New()
	if err := v.Struct(c); err != nil {
		return err
	}
	if _, err := c.acceptedQualities(); err != nil {
		return err
	}
	return nil
}

func (c *Config) acceptedQualities() ([]rtkalign.Quality, error) {
	qs := make([]rtkalign.Quality, 0, len(c.Quality.Accept))
	for _, s := range c.Quality.Accept {
		q, err := rtkalign.ParseQuality(s)
		if err != nil {
			return nil, fmt.Errorf("quality.accept: %w", err)
		}
		qs = append(qs, q)
	}
	return qs, nil
}

// SearchOpt converts the search section
func (c *Config) SearchOpt() *rtkalign.SearchOpt {
	opt := rtkalign.NewSearchOpt()
	opt.ShiftLow = c.Search.ShiftLow
	opt.ShiftHigh = c.Search.ShiftHigh
	opt.CoarseStep = c.Search.CoarseStep
	opt.FineStep = c.Search.FineStep
	opt.Workers = c.Search.Workers
	opt.Weighted = c.Search.Weighted
	return opt
}

// FixOpt converts the quality section
func (c *Config) FixOpt() (*rtkalign.FixOpt, error) {
	qs, err := c.acceptedQualities()
	if err != nil {
		return nil, err
	}
	opt := rtkalign.NewFixOpt()
	opt.Variances = rtkalign.VarianceTable{
		rtkalign.QualityFixed:    c.Quality.Fixed,
		rtkalign.QualityFloat:    c.Quality.Float,
		rtkalign.QualityCodeDiff: c.Quality.CodeDiff,
		rtkalign.QualitySingle:   c.Quality.Single,
	}
	opt.Accept = qs
	return opt, nil
}

// PosFileOpt converts the input section
func (c *Config) PosFileOpt() *rtkalign.PosFileOpt {
	opt := rtkalign.NewPosFileOpt()
	opt.ToUTC = c.Input.GpstToUTC
	opt.Leap = c.Input.LeapSeconds
	return opt
}
