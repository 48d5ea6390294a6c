// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package oracle

import (
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/AleutianAI/egx/pkg/validation"
)

// Names of the built-in metric oracles.
const (
	DAGName  = "dag"
	TreeName = "tree"
)

// Config selects and configures an oracle.
type Config struct {
	// Kind is one of dag, tree, abc or ml (default: dag).
	Kind string `yaml:"kind" json:"kind" validate:"omitempty,oneof=dag tree abc ml"`

	// Timeout bounds a single external evaluation (default: 30s).
	Timeout time.Duration `yaml:"timeout" json:"timeout"`

	// Concurrency caps in-flight evaluations per batch. Zero means no cap.
	Concurrency int `yaml:"concurrency" json:"concurrency" validate:"gte=0"`

	Breaker BreakerConfig `yaml:"breaker" json:"breaker"`
	ABC     ABCConfig     `yaml:"abc" json:"abc"`
	ML      MLConfig      `yaml:"ml" json:"ml"`
}

// DefaultConfig returns the DAG-cost oracle with external defaults filled in.
func DefaultConfig() Config {
	return Config{
		Kind:    DAGName,
		Timeout: 30 * time.Second,
		Breaker: DefaultBreakerConfig(),
		ML:      MLConfig{Burst: 1},
	}
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

// New builds the oracle cfg names. External oracles are wrapped in a
// Breaker. The closer releases any connection and is never nil.
func New(cfg Config, logger *slog.Logger) (Oracle, io.Closer, error) {
	if logger == nil {
		logger = slog.Default()
	}
	switch cfg.Kind {
	case "", DAGName:
		return DAGCost{}, nopCloser{}, nil
	case TreeName:
		return TreeCost{}, nopCloser{}, nil
	case ABCName:
		abc := cfg.ABC
		if err := checkABC(abc); err != nil {
			return nil, nil, err
		}
		if abc.Timeout == 0 {
			abc.Timeout = cfg.Timeout
		}
		return Guard(NewABC(abc).WithLogger(logger), NewBreaker(cfg.Breaker)), nopCloser{}, nil
	case MLName:
		ml := cfg.ML
		if ml.Timeout == 0 {
			ml.Timeout = cfg.Timeout
		}
		conn, err := DialML(ml)
		if err != nil {
			return nil, nil, err
		}
		return Guard(NewML(conn, ml).WithLogger(logger), NewBreaker(cfg.Breaker)), conn, nil
	default:
		return nil, nil, fmt.Errorf("unknown oracle %q", cfg.Kind)
	}
}

// checkABC rejects settings that would alter the ABC script.
func checkABC(cfg ABCConfig) error {
	for _, p := range []string{cfg.Library, cfg.ScratchDir} {
		if p == "" {
			continue
		}
		if err := validation.ValidateScriptPath(p); err != nil {
			return fmt.Errorf("abc oracle: %w", err)
		}
	}
	if cfg.OutputNames != nil {
		if err := validation.ValidateSignalNames(cfg.OutputNames); err != nil {
			return fmt.Errorf("abc oracle: %w", err)
		}
	}
	return nil
}
