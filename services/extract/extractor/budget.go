// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package extractor

import (
	"context"
	"fmt"
	"time"
)

// BudgetConfig limits a single extraction pass.
type BudgetConfig struct {
	MaxVisits int64         `json:"max_visits" yaml:"max_visits"` // node evaluations
	TimeLimit time.Duration `json:"time_limit" yaml:"time_limit"` // wall clock
}

// Unlimited reports whether no limit is configured.
func (c BudgetConfig) Unlimited() bool {
	return c.MaxVisits <= 0 && c.TimeLimit <= 0
}

// timeCheckInterval is how many visits pass between clock and context
// checks.
const timeCheckInterval = 256

// Budget tracks node visits during one pass.
//
// Exhaustion is sticky: once a limit is hit, every later Visit returns
// ErrBudgetExhausted and the pass stops with its partial fixed point.
//
// Thread Safety: NOT safe for concurrent use. Each pass owns its budget.
type Budget struct {
	config    BudgetConfig
	ctx       context.Context
	startTime time.Time
	deadline  time.Time

	visits      int64
	exhausted   bool
	exhaustedBy string
}

// NewBudget creates a budget bound to ctx. Context cancellation counts as
// exhaustion.
func NewBudget(ctx context.Context, config BudgetConfig) *Budget {
	now := time.Now()
	b := &Budget{config: config, ctx: ctx, startTime: now}
	if config.TimeLimit > 0 {
		b.deadline = now.Add(config.TimeLimit)
	}
	return b
}

// Visit records one node evaluation.
//
// Outputs:
//   - error: nil while within budget, otherwise ErrVisitLimitExceeded,
//     ErrTimeLimitExceeded, the context error, or ErrBudgetExhausted on
//     later calls.
func (b *Budget) Visit() error {
	if b.exhausted {
		return ErrBudgetExhausted
	}
	b.visits++
	if b.config.MaxVisits > 0 && b.visits > b.config.MaxVisits {
		b.exhausted = true
		b.exhaustedBy = "visits"
		return ErrVisitLimitExceeded
	}
	if b.visits%timeCheckInterval != 0 {
		return nil
	}
	if err := b.ctx.Err(); err != nil {
		b.exhausted = true
		b.exhaustedBy = "context"
		return err
	}
	if !b.deadline.IsZero() && time.Now().After(b.deadline) {
		b.exhausted = true
		b.exhaustedBy = "time"
		return ErrTimeLimitExceeded
	}
	return nil
}

// Visits returns the number of recorded visits.
func (b *Budget) Visits() int64 {
	return b.visits
}

// Exhausted reports whether a limit was hit.
func (b *Budget) Exhausted() bool {
	return b.exhausted
}

// ExhaustedBy names the limit that was hit, or "".
func (b *Budget) ExhaustedBy() string {
	return b.exhaustedBy
}

// Elapsed returns the time since the budget was created.
func (b *Budget) Elapsed() time.Duration {
	return time.Since(b.startTime)
}

// String returns a human-readable budget status.
func (b *Budget) String() string {
	status := ""
	if b.exhausted {
		status = fmt.Sprintf(" [EXHAUSTED by %s]", b.exhaustedBy)
	}
	return fmt.Sprintf("Budget{visits=%d/%d, time=%v/%v}%s",
		b.visits, b.config.MaxVisits,
		b.Elapsed().Round(time.Millisecond), b.config.TimeLimit,
		status)
}
