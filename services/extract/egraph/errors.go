// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package egraph provides the e-graph model consumed by every extractor.
//
// An e-graph groups interchangeable representations (nodes) of the same
// value into equivalence classes. Nodes reference their children by node
// id; the class owning a child node is the logical dependency.
//
// # Thread Safety
//
// Graph is NOT safe for concurrent use during building. It is designed for:
//   - Single-writer access during build phase (AddNode, SetRoots calls)
//   - Read-only access after Freeze() is called
//
// After Freeze(), the graph can be shared by any number of extraction
// workers without locking.
//
// # Lifecycle
//
//  1. Create with New()
//  2. Build with AddNode() and SetRoots()
//  3. Call Freeze() to validate and finalize
//  4. Extract, producing a Result per run
package egraph

import (
	"errors"
	"fmt"
)

// Sentinel errors for graph and result operations.
var (
	// ErrGraphFrozen is returned when attempting to modify a frozen graph.
	ErrGraphFrozen = errors.New("graph is frozen and cannot be modified")

	// ErrGraphNotFrozen is returned when a frozen graph is required.
	ErrGraphNotFrozen = errors.New("graph is not frozen")

	// ErrDuplicateNode is returned when adding a node with an existing ID.
	ErrDuplicateNode = errors.New("duplicate node ID")

	// ErrUnknownNode is returned when a child references a node that does
	// not exist in the graph.
	ErrUnknownNode = errors.New("unknown node")

	// ErrUnknownClass is returned when a root references a class that has
	// no nodes.
	ErrUnknownClass = errors.New("unknown class")

	// ErrInvalidCost is returned for negative or NaN intrinsic costs.
	ErrInvalidCost = errors.New("invalid node cost")

	// ErrNoRoots is returned by Freeze when no root classes were set.
	ErrNoRoots = errors.New("graph has no root classes")

	// ErrUnknownCostFunction is returned for a cost function name that is
	// not registered.
	ErrUnknownCostFunction = errors.New("unknown cost function")

	// ErrUnresolvedChoice is returned when a reachable class has no choice.
	ErrUnresolvedChoice = errors.New("reachable class has no choice")

	// ErrCyclicChoice is returned when the chosen nodes form a cycle.
	ErrCyclicChoice = errors.New("choices form a cycle")
)

// FormatError reports a malformed interchange file.
//
// The path is empty when the input did not come from a file.
type FormatError struct {
	Path string
	Err  error
}

// Error returns a formatted error message naming the offending file.
func (e *FormatError) Error() string {
	if e.Path == "" {
		return fmt.Sprintf("malformed input: %v", e.Err)
	}
	return fmt.Sprintf("malformed input %s: %v", e.Path, e.Err)
}

// Unwrap returns the underlying error.
func (e *FormatError) Unwrap() error {
	return e.Err
}
