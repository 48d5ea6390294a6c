// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package ilp implements the exact extractor as a 0/1 optimization
// problem solved with gophersat's pseudo-boolean optimizer.
//
// # Model
//
// One variable per class ("class active", roots forced true) and one per
// node ("node active"). A class is active iff exactly one of its nodes is.
// An active node implies the classes of its children are active; children
// shared by every node of a class are lifted to a class-level implication.
// A pre-pass bans nodes that cannot appear in any acyclic solution under a
// fixed topological order.
//
// The objective charges each active class its cheapest node cost and each
// active node its cost above that minimum, which equals the DAG cost of
// the decoded extraction.
package ilp

import "errors"

var (
	// ErrInfeasible means no acyclic extraction of the roots exists among
	// the nodes the cycle pre-pass allows.
	ErrInfeasible = errors.New("exact extraction infeasible")

	// ErrSolverInterrupted is returned when the context ends before the
	// solver finds any model.
	ErrSolverInterrupted = errors.New("solver interrupted")
)
