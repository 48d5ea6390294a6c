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

	"github.com/AleutianAI/egx/services/extract/egraph"
)

// Request carries the per-call extraction parameters.
type Request struct {
	// CostFunction is a name accepted by egraph.CostFunctionByName.
	CostFunction string

	// RandomProb controls randomized acceptance. Zero is deterministic.
	RandomProb float64

	// Seed seeds the random stream when RandomProb > 0.
	Seed uint64

	// Budget caps one pass. Zero means unlimited.
	Budget BudgetConfig
}

// Extractor turns a frozen graph into a validated, acyclic Result.
//
// Implementations must validate their result with egraph.Result.Validate
// before returning it and report a failure as *InvariantError.
type Extractor interface {
	Extract(ctx context.Context, g *egraph.Graph, roots []egraph.ClassID, req Request) (*egraph.Result, error)
}

// ParallelExtractor additionally accepts a sample count that sets the
// number of candidates explored per step.
type ParallelExtractor interface {
	Extractor
	ExtractParallel(ctx context.Context, g *egraph.Graph, roots []egraph.ClassID, req Request, numSamples int) (*egraph.Result, error)
}
