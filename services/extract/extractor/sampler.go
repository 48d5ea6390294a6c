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
	"math/rand/v2"

	"github.com/AleutianAI/egx/services/extract/egraph"
)

// Sample is one perturbed extraction with its metrics.
type Sample struct {
	Index    int
	Result   *egraph.Result
	DAGCost  egraph.Cost
	TreeCost egraph.Cost
	Stats    PassStats
}

// SampleOptions configures Sampler.
type SampleOptions struct {
	Count         int
	RandomProb    float64
	EvictFraction float64
	Seed          uint64
	Budget        BudgetConfig
}

// Sampler draws perturbed neighbors of a base result for offline datasets.
type Sampler struct {
	p *Propagator
}

// NewSampler creates a sampler over a prepared propagator.
func NewSampler(p *Propagator) *Sampler {
	return &Sampler{p: p}
}

// Sample resumes from base Count times, each with its own generator.
// Samples that fail validation are skipped, so fewer than Count may be
// returned.
func (s *Sampler) Sample(ctx context.Context, base *egraph.Result, roots []egraph.ClassID, opts SampleOptions) ([]Sample, error) {
	g := s.p.Graph()
	out := make([]Sample, 0, opts.Count)
	for i := 0; i < opts.Count; i++ {
		if err := ctx.Err(); err != nil {
			return out, err
		}
		rng := rand.New(rand.NewPCG(opts.Seed, uint64(i)+1))
		res, stats, err := s.p.Resume(ctx, base, PassOptions{
			RandomProb:    opts.RandomProb,
			Rand:          rng,
			EvictFraction: opts.EvictFraction,
			Budget:        opts.Budget,
		})
		if err != nil {
			return out, err
		}
		if res.Validate(g, roots) != nil {
			continue
		}
		dag, sub := res.DAGResult(g, roots)
		out = append(out, Sample{
			Index:    i,
			Result:   sub,
			DAGCost:  dag,
			TreeCost: sub.TreeCost(g, roots),
			Stats:    stats,
		})
	}
	return out, nil
}
