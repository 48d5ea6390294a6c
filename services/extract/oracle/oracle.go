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

	"github.com/google/uuid"

	"github.com/AleutianAI/egx/services/extract/egraph"
)

// Candidate is one extraction to score.
//
// ID is unique per evaluation request. Adapters derive scratch file names
// and request ids from it, so it must be set by the caller.
type Candidate struct {
	ID     string
	Graph  *egraph.Graph
	Roots  []egraph.ClassID
	Result *egraph.Result
}

// NewCandidate wraps res with a fresh random id.
func NewCandidate(g *egraph.Graph, roots []egraph.ClassID, res *egraph.Result) Candidate {
	return Candidate{ID: uuid.NewString(), Graph: g, Roots: roots, Result: res}
}

// Fingerprint identifies the extraction the candidate induces.
func (c Candidate) Fingerprint() string {
	return c.Result.Fingerprint(c.Graph, c.Roots)
}

// Oracle scores a candidate. A blocking call; safe for concurrent use.
type Oracle interface {
	Name() string
	Evaluate(ctx context.Context, c Candidate) (egraph.Cost, error)
}

// DAGCost scores candidates by their DAG cost. Used when no external
// oracle is configured.
type DAGCost struct{}

// Name implements Oracle.
func (DAGCost) Name() string { return "dag" }

// Evaluate implements Oracle.
func (o DAGCost) Evaluate(_ context.Context, c Candidate) (egraph.Cost, error) {
	if err := c.Result.Validate(c.Graph, c.Roots); err != nil {
		return egraph.Infinity, newError(o.Name(), c, KindInvalid, err)
	}
	return c.Result.DAGCost(c.Graph, c.Roots), nil
}

// TreeCost scores candidates by their tree cost.
type TreeCost struct{}

// Name implements Oracle.
func (TreeCost) Name() string { return "tree" }

// Evaluate implements Oracle.
func (o TreeCost) Evaluate(_ context.Context, c Candidate) (egraph.Cost, error) {
	if err := c.Result.Validate(c.Graph, c.Roots); err != nil {
		return egraph.Infinity, newError(o.Name(), c, KindInvalid, err)
	}
	return c.Result.TreeCost(c.Graph, c.Roots), nil
}

// Func adapts a function to Oracle.
type Func func(ctx context.Context, c Candidate) (egraph.Cost, error)

// Name implements Oracle.
func (Func) Name() string { return "func" }

// Evaluate implements Oracle.
func (f Func) Evaluate(ctx context.Context, c Candidate) (egraph.Cost, error) {
	return f(ctx, c)
}
