// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package extractor implements the propagation-based extractors and the
// contract every extraction algorithm satisfies.
//
// FixedPoint relaxes all classes in full passes until nothing improves.
// Incremental reaches the same fixed point with a parent-propagation work
// queue and can resume from a previous result with a localized eviction,
// which the search extractor uses to generate neighbors.
package extractor

import (
	"errors"
	"fmt"

	"github.com/AleutianAI/egx/services/extract/egraph"
)

// Sentinel errors for extraction.
var (
	// ErrUnresolvedRoot is returned when a pass ends without a finite cost
	// for every root class, usually because the budget ran out.
	ErrUnresolvedRoot = errors.New("root class unresolved")

	// ErrBudgetExhausted is returned by Budget.Visit once a limit is hit.
	ErrBudgetExhausted = errors.New("extraction budget exhausted")

	// ErrVisitLimitExceeded means the node-visit limit was reached.
	ErrVisitLimitExceeded = errors.New("visit limit exceeded")

	// ErrTimeLimitExceeded means the wall-clock limit was reached.
	ErrTimeLimitExceeded = errors.New("time limit exceeded")

	// ErrNilSeed is returned by Resume without a seed result.
	ErrNilSeed = errors.New("resume requires a seed result")
)

// InvariantError reports a final result that failed validation. It marks
// an internal bug; the result is never returned alongside it.
type InvariantError struct {
	Extractor string
	Err       error
}

// Error returns a formatted error message.
func (e *InvariantError) Error() string {
	return fmt.Sprintf("%s produced an invalid extraction: %v", e.Extractor, e.Err)
}

// Unwrap returns the underlying validation error.
func (e *InvariantError) Unwrap() error {
	return e.Err
}

// Finalize validates res against roots. A failing result is replaced by an
// *InvariantError so callers never see an invalid extraction.
func Finalize(name string, g *egraph.Graph, roots []egraph.ClassID, res *egraph.Result) (*egraph.Result, error) {
	if err := res.Validate(g, roots); err != nil {
		return nil, &InvariantError{Extractor: name, Err: err}
	}
	return res, nil
}
