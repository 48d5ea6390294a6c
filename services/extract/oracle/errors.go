// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package oracle scores candidate extractions with an external or internal
// cost model.
//
// Every implementation satisfies Oracle. Failures are reported as *Error
// and never abort a search: EvaluateBatch maps them to infinite cost.
package oracle

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidCandidate means the candidate is cyclic or incomplete.
	ErrInvalidCandidate = errors.New("invalid candidate")

	// ErrCircuitOpen means the breaker is rejecting calls.
	ErrCircuitOpen = errors.New("oracle circuit breaker is open")

	// ErrNoDelay means the tool output had no parsable delay.
	ErrNoDelay = errors.New("no delay in oracle output")

	// ErrPanic means an oracle call panicked.
	ErrPanic = errors.New("oracle call panicked")
)

// Kind classifies an oracle failure.
type Kind string

const (
	KindInvalid   Kind = "invalid"
	KindIO        Kind = "io"
	KindExit      Kind = "exit"
	KindParse     Kind = "parse"
	KindTransport Kind = "transport"
	KindTimeout   Kind = "timeout"
	KindBreaker   Kind = "breaker"
	KindPanic     Kind = "panic"
)

// Error is a failed evaluation of one candidate.
type Error struct {
	Oracle      string
	CandidateID string
	Kind        Kind
	Err         error
}

// Error returns a formatted error message.
func (e *Error) Error() string {
	return fmt.Sprintf("oracle %s (%s) candidate %s: %v", e.Oracle, e.Kind, e.CandidateID, e.Err)
}

// Unwrap returns the underlying error.
func (e *Error) Unwrap() error {
	return e.Err
}

func newError(oracle string, c Candidate, kind Kind, err error) *Error {
	return &Error{Oracle: oracle, CandidateID: c.ID, Kind: kind, Err: err}
}

// KindOf returns the Kind of the first *Error in err's chain, or "" when
// there is none.
func KindOf(err error) Kind {
	var oe *Error
	if errors.As(err, &oe) {
		return oe.Kind
	}
	return ""
}
