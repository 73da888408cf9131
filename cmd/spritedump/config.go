// Copyright 2025 Dominik Honnef and contributors
// SPDX-License-Identifier: Apache-2.0 OR MIT

package main

import (
	"encoding/json"
	"fmt"
	"os"
	"runtime"
)

// Config holds all configurable inputs and render settings.
type Config struct {
	// Inputs: either an SPR/ACT pair or a standalone sheet image.
	SPR   string `json:"spr"`
	ACT   string `json:"act"`
	Sheet string `json:"sheet"`

	OutputDir string `json:"output_dir"`

	// Render settings
	Size        int  `json:"size"`
	Scale       int  `json:"scale"`
	Action      int  `json:"action"`
	Direction   int  `json:"direction"`
	Frames      int  `json:"frames"`
	WarpedDepth bool `json:"warped_depth"`
	Workers     int  `json:"workers"`
	// Background fills uncovered preview pixels, in the CSS color()
	// syntax. Empty keeps them transparent.
	Background string `json:"background"`
}

// Flags carries the CLI overrides for a Config.
type Flags struct {
	SPR         string
	ACT         string
	Sheet       string
	OutputDir   string
	Size        int
	Scale       int
	Action      int
	Direction   int
	Frames      int
	WarpedDepth bool
	Workers     int
	Background  string
}

// Load reads a JSON config file. Fields not set in the file keep their
// zero values.
func Load(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("config: read %s: %w", path, err)
	}
	var cfg Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("config: parse %s: %w", path, err)
	}
	return cfg, nil
}

// Resolve applies CLI overrides and fills in defaults for anything still
// unset. Flags take priority over the config file.
func (c *Config) Resolve(flags Flags) {
	if flags.SPR != "" {
		c.SPR = flags.SPR
	}
	if flags.ACT != "" {
		c.ACT = flags.ACT
	}
	if flags.Sheet != "" {
		c.Sheet = flags.Sheet
	}
	if flags.OutputDir != "" {
		c.OutputDir = flags.OutputDir
	}
	if flags.Size > 0 {
		c.Size = flags.Size
	}
	if flags.Scale > 0 {
		c.Scale = flags.Scale
	}
	if flags.Action > 0 {
		c.Action = flags.Action
	}
	if flags.Direction > 0 {
		c.Direction = flags.Direction
	}
	if flags.Frames > 0 {
		c.Frames = flags.Frames
	}
	if flags.WarpedDepth {
		c.WarpedDepth = true
	}
	if flags.Workers > 0 {
		c.Workers = flags.Workers
	}
	if flags.Background != "" {
		c.Background = flags.Background
	}

	if c.OutputDir == "" {
		c.OutputDir = "renders"
	}
	if c.Size <= 0 {
		c.Size = 256
	}
	if c.Scale <= 0 {
		c.Scale = 1
	}
	if c.Workers <= 0 {
		c.Workers = runtime.NumCPU()
	}
}

// Validate reports configurations that cannot describe a render job.
func (c *Config) Validate() error {
	switch {
	case c.Sheet != "" && (c.SPR != "" || c.ACT != ""):
		return fmt.Errorf("config: -sheet excludes -spr/-act")
	case c.Sheet == "" && (c.SPR == "" || c.ACT == ""):
		return fmt.Errorf("config: need both -spr and -act, or -sheet")
	case c.Direction < 0 || c.Direction > 7:
		return fmt.Errorf("config: direction %d out of range 0..7", c.Direction)
	case c.Action < 0:
		return fmt.Errorf("config: negative action %d", c.Action)
	default:
		return nil
	}
}
