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
	"log/slog"
	"time"

	"github.com/AleutianAI/egx/services/extract/egraph"
)

// FixedPointName is the registry name of FixedPoint.
const FixedPointName = "fixed-point"

// FixedPoint relaxes every node of every class in full passes until a pass
// changes nothing.
//
// Description:
//
//	Costs per class only decrease and are bounded below by zero, and an
//	equal-cost node only replaces a choice with a higher node id, so the
//	loop terminates. Used as the correctness baseline and for small graphs.
//
// Thread Safety: Safe for concurrent use; each call owns its state.
type FixedPoint struct {
	logger *slog.Logger
}

// NewFixedPoint creates the extractor.
func NewFixedPoint() *FixedPoint {
	return &FixedPoint{logger: slog.Default()}
}

// WithFixedPointLogger sets the logger.
func (f *FixedPoint) WithFixedPointLogger(logger *slog.Logger) *FixedPoint {
	f.logger = logger
	return f
}

// Extract implements Extractor. RandomProb is ignored.
func (f *FixedPoint) Extract(ctx context.Context, g *egraph.Graph, roots []egraph.ClassID, req Request) (*egraph.Result, error) {
	costFn, err := egraph.CostFunctionByName(req.CostFunction)
	if err != nil {
		return nil, err
	}

	ctx, span := startExtractSpan(ctx, "FixedPoint", g.NumClasses(), req)
	start := time.Now()
	budget := NewBudget(ctx, req.Budget)
	res := egraph.NewResult()
	costs := make(egraph.Costs, g.NumClasses())
	var stats PassStats
	passes := 0

relax:
	for changed := true; changed; {
		changed = false
		passes++
		for _, cid := range g.ClassIDs() {
			class, _ := g.Class(cid)
			for _, nid := range class.Nodes {
				if budget.Visit() != nil {
					break relax
				}
				n, _ := g.Node(nid)
				c := costFn(g, n, costs)
				switch prev := costs.Get(cid); {
				case c < prev:
					costs[cid] = c
					res.Choose(cid, nid)
					stats.Commits++
					changed = true
				case c == prev && !c.IsInf():
					if preferTie(g, res, n) {
						res.Choose(cid, nid)
						stats.Commits++
						changed = true
					}
				}
			}
		}
	}
	stats.Visits = budget.Visits()
	stats.ExhaustedBy = budget.ExhaustedBy()

	final, err := finish(FixedPointName, g, roots, res, costs, stats)
	RecordExtraction(ctx, FixedPointName, time.Since(start), stats.Visits, err == nil)
	endExtractSpan(span, stats, err)
	if err != nil {
		return nil, err
	}
	f.logger.Debug("fixed point reached",
		slog.Int("passes", passes),
		slog.Int64("visits", stats.Visits),
		slog.Duration("elapsed", time.Since(start)),
	)
	return final, nil
}

// finish checks that every root has a finite cost and validates the
// result.
func finish(name string, g *egraph.Graph, roots []egraph.ClassID, res *egraph.Result, costs egraph.Costs, stats PassStats) (*egraph.Result, error) {
	for _, root := range roots {
		if costs.Get(root).IsInf() {
			if stats.ExhaustedBy != "" {
				return nil, fmt.Errorf("%w: %s (budget exhausted by %s)", ErrUnresolvedRoot, root, stats.ExhaustedBy)
			}
			return nil, fmt.Errorf("%w: %s", ErrUnresolvedRoot, root)
		}
	}
	return Finalize(name, g, roots, res)
}
