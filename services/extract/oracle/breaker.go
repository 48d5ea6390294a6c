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
	"context"
	"sync"
	"time"

	"github.com/AleutianAI/egx/services/extract/egraph"
)

// BreakerState is the circuit breaker state.
type BreakerState int

const (
	// BreakerClosed passes calls through.
	BreakerClosed BreakerState = iota
	// BreakerOpen rejects calls until OpenDuration has passed.
	BreakerOpen
	// BreakerHalfOpen lets a limited number of probe calls through.
	BreakerHalfOpen
)

// String returns a human-readable state name.
func (s BreakerState) String() string {
	switch s {
	case BreakerClosed:
		return "closed"
	case BreakerOpen:
		return "open"
	case BreakerHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// BreakerConfig configures a Breaker.
type BreakerConfig struct {
	// FailureThreshold is the number of consecutive failures before opening (default: 3).
	FailureThreshold int `yaml:"failure_threshold" json:"failure_threshold" validate:"gte=1"`

	// SuccessThreshold is successes needed to close from half-open (default: 2).
	SuccessThreshold int `yaml:"success_threshold" json:"success_threshold" validate:"gte=1"`

	// OpenDuration is how long to stay open before probing (default: 30s).
	OpenDuration time.Duration `yaml:"open_duration" json:"open_duration"`

	// HalfOpenMax is max concurrent probes in half-open state (default: 1).
	HalfOpenMax int `yaml:"half_open_max" json:"half_open_max" validate:"gte=1"`
}

// DefaultBreakerConfig returns the defaults used for external oracles.
func DefaultBreakerConfig() BreakerConfig {
	return BreakerConfig{
		FailureThreshold: 3,
		SuccessThreshold: 2,
		OpenDuration:     30 * time.Second,
		HalfOpenMax:      1,
	}
}

// BreakerStats is a snapshot of breaker counters.
type BreakerStats struct {
	State           string    `json:"state"`
	TotalCalls      int64     `json:"total_calls"`
	TotalFailures   int64     `json:"total_failures"`
	TotalRejections int64     `json:"total_rejections"`
	CurrentFailures int       `json:"current_failures"`
	LastStateChange time.Time `json:"last_state_change"`
}

// Breaker stops calling an oracle that keeps failing.
//
// Description:
//
//	After FailureThreshold consecutive failures the breaker opens and
//	rejects calls. Once OpenDuration has passed, up to HalfOpenMax probe
//	calls are let through; SuccessThreshold successes close it again and
//	any failure reopens it.
//
// Thread Safety: Safe for concurrent use.
type Breaker struct {
	config BreakerConfig
	now    func() time.Time

	mu              sync.Mutex
	state           BreakerState
	failures        int
	successes       int
	lastStateChange time.Time
	halfOpenActive  int

	totalCalls      int64
	totalFailures   int64
	totalRejections int64
}

// NewBreaker creates a closed breaker.
func NewBreaker(config BreakerConfig) *Breaker {
	if config.FailureThreshold <= 0 {
		config.FailureThreshold = 1
	}
	if config.SuccessThreshold <= 0 {
		config.SuccessThreshold = 1
	}
	if config.HalfOpenMax <= 0 {
		config.HalfOpenMax = 1
	}
	return &Breaker{
		config:          config,
		now:             time.Now,
		state:           BreakerClosed,
		lastStateChange: time.Now(),
	}
}

// State returns the current state.
func (b *Breaker) State() BreakerState {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// Allow reports whether a call may proceed. The returned release func, when
// non-nil, must be called once the call finishes.
func (b *Breaker) Allow() (bool, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.totalCalls++

	switch b.state {
	case BreakerClosed:
		return true, nil
	case BreakerOpen:
		if b.now().Sub(b.lastStateChange) >= b.config.OpenDuration {
			b.transitionTo(BreakerHalfOpen)
			return b.tryHalfOpen()
		}
		b.totalRejections++
		return false, nil
	case BreakerHalfOpen:
		return b.tryHalfOpen()
	}
	return false, nil
}

// tryHalfOpen must be called with the lock held.
func (b *Breaker) tryHalfOpen() (bool, func()) {
	if b.halfOpenActive >= b.config.HalfOpenMax {
		b.totalRejections++
		return false, nil
	}
	b.halfOpenActive++
	return true, func() {
		b.mu.Lock()
		b.halfOpenActive--
		b.mu.Unlock()
	}
}

// RecordSuccess records a successful call.
func (b *Breaker) RecordSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.failures = 0
	if b.state == BreakerHalfOpen {
		b.successes++
		if b.successes >= b.config.SuccessThreshold {
			b.transitionTo(BreakerClosed)
		}
	}
}

// RecordFailure records a failed call.
func (b *Breaker) RecordFailure() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.totalFailures++
	b.failures++
	b.successes = 0

	switch b.state {
	case BreakerClosed:
		if b.failures >= b.config.FailureThreshold {
			b.transitionTo(BreakerOpen)
		}
	case BreakerHalfOpen:
		b.transitionTo(BreakerOpen)
	}
}

func (b *Breaker) transitionTo(s BreakerState) {
	b.state = s
	b.lastStateChange = b.now()
	b.failures = 0
	b.successes = 0
}

// Stats returns a snapshot of the breaker counters.
func (b *Breaker) Stats() BreakerStats {
	b.mu.Lock()
	defer b.mu.Unlock()
	return BreakerStats{
		State:           b.state.String(),
		TotalCalls:      b.totalCalls,
		TotalFailures:   b.totalFailures,
		TotalRejections: b.totalRejections,
		CurrentFailures: b.failures,
		LastStateChange: b.lastStateChange,
	}
}

// Reset closes the breaker and clears its counters.
func (b *Breaker) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.state = BreakerClosed
	b.failures = 0
	b.successes = 0
	b.halfOpenActive = 0
	b.lastStateChange = b.now()
}

// Guarded wraps an Oracle with a Breaker. Invalid candidates do not count
// as failures.
type Guarded struct {
	inner   Oracle
	breaker *Breaker
}

// Guard wraps o with b.
func Guard(o Oracle, b *Breaker) *Guarded {
	return &Guarded{inner: o, breaker: b}
}

// Name implements Oracle.
func (g *Guarded) Name() string { return g.inner.Name() }

// Breaker returns the wrapped breaker.
func (g *Guarded) Breaker() *Breaker { return g.breaker }

// Evaluate implements Oracle.
func (g *Guarded) Evaluate(ctx context.Context, c Candidate) (egraph.Cost, error) {
	allowed, release := g.breaker.Allow()
	if !allowed {
		return egraph.Infinity, newError(g.inner.Name(), c, KindBreaker, ErrCircuitOpen)
	}
	if release != nil {
		defer release()
	}

	cost, err := g.inner.Evaluate(ctx, c)
	if err != nil {
		if KindOf(err) != KindInvalid {
			g.breaker.RecordFailure()
		}
		return egraph.Infinity, err
	}
	g.breaker.RecordSuccess()
	return cost, nil
}
