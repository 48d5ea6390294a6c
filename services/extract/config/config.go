// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package config loads egx configuration.
//
// Precedence, lowest first: Default, the config file, EGX_* environment
// variables, then command-line flags applied by the caller.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/AleutianAI/egx/pkg/logging"
	"github.com/AleutianAI/egx/services/extract/anneal"
	"github.com/AleutianAI/egx/services/extract/cache"
	"github.com/AleutianAI/egx/services/extract/egraph"
	"github.com/AleutianAI/egx/services/extract/extractor"
	"github.com/AleutianAI/egx/services/extract/ilp"
	"github.com/AleutianAI/egx/services/extract/oracle"
	"github.com/AleutianAI/egx/services/extract/telemetry"
)

// ErrInvalidConfig wraps every validation failure.
var ErrInvalidConfig = errors.New("invalid config")

// ExtractConfig holds per-request extraction settings.
type ExtractConfig struct {
	// CostFunction is node_sum_cost or node_depth_cost.
	CostFunction string `yaml:"cost_function" json:"cost_function" validate:"required"`

	// RandomProb is the randomized acceptance probability.
	RandomProb float64 `yaml:"random_prob" json:"random_prob" validate:"gte=0,lte=1"`

	// NumSamples is the number of candidates per search step.
	NumSamples int `yaml:"num_samples" json:"num_samples" validate:"gte=1"`

	// Seed seeds every random stream.
	Seed uint64 `yaml:"seed" json:"seed"`

	// MaxVisits caps node evaluations per pass. Zero is unlimited.
	MaxVisits int64 `yaml:"max_visits" json:"max_visits" validate:"gte=0"`

	// PassTimeout caps one pass. Zero is unlimited.
	PassTimeout time.Duration `yaml:"pass_timeout" json:"pass_timeout" validate:"gte=0"`

	// Out is the default result path.
	Out string `yaml:"out" json:"out"`
}

// LoggingConfig mirrors logging.Config in file form.
type LoggingConfig struct {
	Level  string `yaml:"level" json:"level" validate:"omitempty,oneof=debug info warn warning error"`
	Format string `yaml:"format" json:"format" validate:"omitempty,oneof=auto text json"`
	Dir    string `yaml:"dir" json:"dir"`
	Quiet  bool   `yaml:"quiet" json:"quiet"`
}

// Config is the full egx configuration.
type Config struct {
	Extract   ExtractConfig    `yaml:"extract" json:"extract"`
	Search    anneal.Config    `yaml:"search" json:"search"`
	ILP       ilp.Config       `yaml:"ilp" json:"ilp"`
	Oracle    oracle.Config    `yaml:"oracle" json:"oracle"`
	Cache     cache.Config     `yaml:"cache" json:"cache"`
	Logging   LoggingConfig    `yaml:"logging" json:"logging"`
	Telemetry telemetry.Config `yaml:"telemetry" json:"telemetry"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Extract: ExtractConfig{
			CostFunction: egraph.NodeDepthCostName,
			RandomProb:   0.1,
			NumSamples:   30,
			Out:          "out.json",
		},
		Search:    anneal.DefaultConfig(),
		ILP:       ilp.DefaultConfig(),
		Oracle:    oracle.DefaultConfig(),
		Cache:     cache.DefaultConfig(),
		Logging:   LoggingConfig{Level: "info", Format: "auto"},
		Telemetry: telemetry.DefaultConfig(),
	}
}

// Load reads path over the defaults, then applies the environment and
// validates.
//
// Description:
//
//	The file is parsed as YAML first and as JSON if YAML fails. An empty
//	path or a missing file leaves the defaults in place.
//
// Outputs:
//
//	*Config - The merged configuration.
//	error - Parse, environment or validation failure.
func Load(path string) (*Config, error) {
	cfg := Default()
	if err := loadConfigFile(path, cfg); err != nil {
		return nil, err
	}
	if err := cfg.ApplyEnv(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func loadConfigFile(path string, cfg *Config) error {
	if path == "" {
		return nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("reading config file: %w", err)
	}

	yamlErr := yaml.Unmarshal(data, cfg)
	if yamlErr == nil {
		return nil
	}
	if jsonErr := json.Unmarshal(data, cfg); jsonErr != nil {
		return fmt.Errorf("parsing config file %s: yaml: %v, json: %w", path, yamlErr, jsonErr)
	}
	return nil
}

// ApplyEnv overrides fields from EGX_* environment variables. Unset or
// empty variables are ignored; malformed numbers are errors.
func (c *Config) ApplyEnv() error {
	var errs []error

	str := func(key string, dst *string) {
		if v := os.Getenv(key); v != "" {
			*dst = v
		}
	}
	integer := func(key string, dst *int) {
		if v := os.Getenv(key); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", key, err))
				return
			}
			*dst = n
		}
	}
	float := func(key string, dst *float64) {
		if v := os.Getenv(key); v != "" {
			f, err := strconv.ParseFloat(v, 64)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", key, err))
				return
			}
			*dst = f
		}
	}

	str("EGX_COST_FUNCTION", &c.Extract.CostFunction)
	integer("EGX_NUM_SAMPLES", &c.Extract.NumSamples)
	float("EGX_RANDOM_PROB", &c.Extract.RandomProb)
	integer("EGX_ITERATIONS", &c.Search.Iterations)
	integer("EGX_WORKERS", &c.Search.Workers)
	if v := os.Getenv("EGX_SEED"); v != "" {
		seed, err := strconv.ParseUint(v, 10, 64)
		if err != nil {
			errs = append(errs, fmt.Errorf("EGX_SEED: %w", err))
		} else {
			c.Extract.Seed = seed
		}
	}
	str("EGX_ORACLE", &c.Oracle.Kind)
	str("EGX_ABC_BINARY", &c.Oracle.ABC.Binary)
	str("EGX_ABC_LIBRARY", &c.Oracle.ABC.Library)
	str("EGX_ML_ADDRESS", &c.Oracle.ML.Address)
	if v := os.Getenv("EGX_CACHE_PATH"); v != "" {
		c.Cache.Path = v
		c.Cache.Enabled = true
	}
	str("EGX_LOG_LEVEL", &c.Logging.Level)

	return errors.Join(errs...)
}

var validate = validator.New()

// Validate checks struct tags, the cost function name, the search
// schedule, and oracle settings that depend on Kind.
func (c *Config) Validate() error {
	var errs []error
	if err := validate.Struct(c); err != nil {
		errs = append(errs, err)
	}
	if _, err := egraph.CostFunctionByName(c.Extract.CostFunction); err != nil {
		errs = append(errs, err)
	}
	if err := c.Search.Validate(); err != nil {
		errs = append(errs, err)
	}
	switch c.Oracle.Kind {
	case oracle.ABCName:
		if c.Oracle.ABC.Binary == "" || c.Oracle.ABC.Library == "" {
			errs = append(errs, errors.New("oracle abc requires binary and library"))
		}
	case oracle.MLName:
		if c.Oracle.ML.Address == "" {
			errs = append(errs, errors.New("oracle ml requires address"))
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, errors.Join(errs...))
	}
	return nil
}

// Request builds the extraction request these settings describe.
func (c *Config) Request() extractor.Request {
	return extractor.Request{
		CostFunction: c.Extract.CostFunction,
		RandomProb:   c.Extract.RandomProb,
		Seed:         c.Extract.Seed,
		Budget: extractor.BudgetConfig{
			MaxVisits: c.Extract.MaxVisits,
			TimeLimit: c.Extract.PassTimeout,
		},
	}
}

// LoggerConfig converts the logging section. An unparseable level falls
// back to info; Validate rejects it earlier.
func (c *Config) LoggerConfig(service string) logging.Config {
	level, _ := logging.ParseLevel(c.Logging.Level)
	return logging.Config{
		Level:   level,
		Format:  logging.Format(c.Logging.Format),
		LogDir:  c.Logging.Dir,
		Service: service,
		Quiet:   c.Logging.Quiet,
	}
}
