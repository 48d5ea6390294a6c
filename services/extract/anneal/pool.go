// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package anneal

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"sort"

	"golang.org/x/sync/semaphore"

	"github.com/AleutianAI/egx/services/extract/egraph"
	"github.com/AleutianAI/egx/services/extract/extractor"
)

// ErrWorkerPanic marks a neighbor worker that panicked.
var ErrWorkerPanic = errors.New("neighbor worker panicked")

// neighborFunc derives one neighbor of seed.
type neighborFunc func(ctx context.Context, p *extractor.Propagator, seed *egraph.Result, opts extractor.PassOptions) (*egraph.Result, extractor.PassStats, error)

func resumeNeighbor(ctx context.Context, p *extractor.Propagator, seed *egraph.Result, opts extractor.PassOptions) (*egraph.Result, extractor.PassStats, error) {
	return p.Resume(ctx, seed, opts)
}

// generated is the single message each worker sends.
type generated struct {
	worker int
	result *egraph.Result
	stats  extractor.PassStats
	err    error
}

// generation is one fan-out round.
type generation struct {
	prop      *extractor.Propagator
	seed      *egraph.Result
	req       extractor.Request
	iteration int
	count     int
	workers   int
	evict     float64
	neighbor  neighborFunc
}

// run spawns count workers, at most workers at a time, and collects
// exactly count messages. A panicking worker still sends one message, so
// the collector never waits on a dead producer. Results are ordered by
// worker index.
func (gen generation) run(ctx context.Context) []generated {
	out := make(chan generated, gen.count)
	sem := semaphore.NewWeighted(int64(gen.workers))

	for i := 0; i < gen.count; i++ {
		if err := sem.Acquire(ctx, 1); err != nil {
			for j := i; j < gen.count; j++ {
				out <- generated{worker: j, err: err}
			}
			break
		}
		go func(i int) {
			defer sem.Release(1)
			msg := generated{worker: i}
			defer func() {
				if r := recover(); r != nil {
					msg = generated{worker: i, err: fmt.Errorf("%w: %v", ErrWorkerPanic, r)}
				}
				out <- msg
			}()

			stream := uint64(gen.iteration)*uint64(gen.count) + uint64(i) + 1
			rng := rand.New(rand.NewPCG(gen.req.Seed, stream))
			msg.result, msg.stats, msg.err = gen.neighbor(ctx, gen.prop, gen.seed, extractor.PassOptions{
				RandomProb:    gen.req.RandomProb,
				Rand:          rng,
				EvictFraction: gen.evict,
				Budget:        gen.req.Budget,
			})
		}(i)
	}

	msgs := make([]generated, 0, gen.count)
	for k := 0; k < gen.count; k++ {
		msgs = append(msgs, <-out)
	}
	sort.Slice(msgs, func(a, b int) bool { return msgs[a].worker < msgs[b].worker })
	return msgs
}
