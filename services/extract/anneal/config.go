// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package anneal implements the search extractor: simulated annealing over
// neighbors produced by the resumable incremental extractor, scored by a
// cost oracle.
package anneal

import (
	"errors"
	"fmt"
)

// Config configures the search.
type Config struct {
	// Workers caps concurrent neighbor generation (default: 16).
	Workers int `yaml:"workers" json:"workers" validate:"gte=1"`

	// Samples is the number of candidates per iteration (default: 30).
	Samples int `yaml:"samples" json:"samples" validate:"gte=1"`

	// Iterations is the fixed iteration budget (default: 40).
	Iterations int `yaml:"iterations" json:"iterations" validate:"gte=0"`

	// InitialTemperature is the starting temperature (default: 100).
	InitialTemperature float64 `yaml:"initial_temperature" json:"initial_temperature" validate:"gt=0"`

	// HighTemperature is the threshold above which selection is
	// Boltzmann-weighted and worse candidates may be accepted (default: 1).
	HighTemperature float64 `yaml:"high_temperature" json:"high_temperature" validate:"gte=0"`

	// SlowCooling is the per-iteration factor before PhaseBoundary (default: 0.95).
	SlowCooling float64 `yaml:"slow_cooling" json:"slow_cooling" validate:"gt=0,lte=1"`

	// FastCooling is the per-iteration factor from PhaseBoundary on (default: 0.8).
	FastCooling float64 `yaml:"fast_cooling" json:"fast_cooling" validate:"gt=0,lte=1"`

	// PhaseBoundary is the first fast-cooling iteration. Zero means Iterations/2.
	PhaseBoundary int `yaml:"phase_boundary" json:"phase_boundary" validate:"gte=0"`

	// EvictFraction is the share of decided classes each neighbor evicts (default: 0.1).
	EvictFraction float64 `yaml:"evict_fraction" json:"evict_fraction" validate:"gt=0,lte=1"`

	// OracleConcurrency caps in-flight oracle calls. Zero means Samples.
	OracleConcurrency int `yaml:"oracle_concurrency" json:"oracle_concurrency" validate:"gte=0"`
}

// DefaultConfig returns the default search parameters.
func DefaultConfig() Config {
	return Config{
		Workers:            16,
		Samples:            30,
		Iterations:         40,
		InitialTemperature: 100,
		HighTemperature:    1,
		SlowCooling:        0.95,
		FastCooling:        0.8,
		EvictFraction:      0.1,
	}
}

// Validate checks the parameters New relies on.
func (c Config) Validate() error {
	var errs []error
	if c.Workers < 1 {
		errs = append(errs, fmt.Errorf("workers must be >= 1, got %d", c.Workers))
	}
	if c.Samples < 1 {
		errs = append(errs, fmt.Errorf("samples must be >= 1, got %d", c.Samples))
	}
	if c.Iterations < 0 {
		errs = append(errs, fmt.Errorf("iterations must be >= 0, got %d", c.Iterations))
	}
	if c.InitialTemperature <= 0 {
		errs = append(errs, fmt.Errorf("initial_temperature must be > 0, got %g", c.InitialTemperature))
	}
	if c.SlowCooling <= 0 || c.SlowCooling > 1 {
		errs = append(errs, fmt.Errorf("slow_cooling must be in (0, 1], got %g", c.SlowCooling))
	}
	if c.FastCooling <= 0 || c.FastCooling > 1 {
		errs = append(errs, fmt.Errorf("fast_cooling must be in (0, 1], got %g", c.FastCooling))
	}
	if c.EvictFraction <= 0 || c.EvictFraction > 1 {
		errs = append(errs, fmt.Errorf("evict_fraction must be in (0, 1], got %g", c.EvictFraction))
	}
	return errors.Join(errs...)
}

// Schedule is the two-phase geometric cooling schedule.
type Schedule struct {
	Initial  float64
	High     float64
	Slow     float64
	Fast     float64
	Boundary int
}

// Schedule derives the cooling schedule from c.
func (c Config) Schedule() Schedule {
	boundary := c.PhaseBoundary
	if boundary <= 0 {
		boundary = c.Iterations / 2
	}
	return Schedule{
		Initial:  c.InitialTemperature,
		High:     c.HighTemperature,
		Slow:     c.SlowCooling,
		Fast:     c.FastCooling,
		Boundary: boundary,
	}
}

// Next returns the temperature following iteration it.
func (s Schedule) Next(t float64, it int) float64 {
	if it < s.Boundary {
		return t * s.Slow
	}
	return t * s.Fast
}

// Cooling names the cooling phase of iteration it.
func (s Schedule) Cooling(it int) string {
	if it < s.Boundary {
		return "slow"
	}
	return "fast"
}

// IsHigh reports whether t is above the exploration threshold.
func (s Schedule) IsHigh(t float64) bool {
	return t > s.High
}
