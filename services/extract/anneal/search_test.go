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
	"io"
	"log/slog"
	"math/rand/v2"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/egx/services/extract/egraph"
	"github.com/AleutianAI/egx/services/extract/egraph/egraphtest"
	"github.com/AleutianAI/egx/services/extract/extractor"
	"github.com/AleutianAI/egx/services/extract/oracle"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.Workers = 4
	cfg.Samples = 6
	cfg.Iterations = 8
	return cfg
}

func testRequest(seed uint64) extractor.Request {
	return extractor.Request{
		CostFunction: egraph.NodeSumCostName,
		RandomProb:   0.3,
		Seed:         seed,
	}
}

func baseline(t *testing.T, g *egraph.Graph) *egraph.Result {
	t.Helper()
	res, err := extractor.NewIncremental().Extract(context.Background(), g, g.Roots(), extractor.Request{
		CostFunction: egraph.NodeSumCostName,
	})
	require.NoError(t, err)
	return res
}

func TestSearch_NeverWorseThanBase(t *testing.T) {
	for seed := uint64(1); seed <= 5; seed++ {
		g := egraphtest.Random(seed, 40)
		roots := g.Roots()
		base := baseline(t, g)

		rep, err := New(testConfig(), nil).WithLogger(quietLogger()).Run(context.Background(), g, roots, testRequest(seed), 0)
		require.NoError(t, err)

		require.NoError(t, rep.Result.Validate(g, roots))
		assert.Empty(t, rep.Result.FindCycles(g, roots))
		assert.Equal(t, base.DAGCost(g, roots), rep.BaseCost)
		assert.LessOrEqual(t, rep.Cost, rep.BaseCost)
		assert.Equal(t, rep.Cost, rep.Result.DAGCost(g, roots))
		assert.Len(t, rep.Iterations, 8)
		assert.Equal(t, PhaseDone, rep.Phase)
		for _, it := range rep.Iterations {
			assert.LessOrEqual(t, it.Best, rep.BaseCost)
		}
	}
}

func TestSearch_Deterministic(t *testing.T) {
	g := egraphtest.Random(11, 50)
	run := func() *Report {
		rep, err := New(testConfig(), nil).WithLogger(quietLogger()).Run(context.Background(), g, g.Roots(), testRequest(42), 0)
		require.NoError(t, err)
		return rep
	}
	a, b := run(), run()
	assert.True(t, a.Result.Equal(b.Result))
	assert.Equal(t, a.Cost, b.Cost)
	assert.Equal(t, a.Iterations, b.Iterations)
}

func TestSearch_ExtractParallelUsesSampleCount(t *testing.T) {
	g := egraphtest.Diamond()
	cfg := testConfig()
	cfg.Iterations = 2

	var calls atomic.Int32
	o := oracle.Func(func(ctx context.Context, c oracle.Candidate) (egraph.Cost, error) {
		calls.Add(1)
		return oracle.DAGCost{}.Evaluate(ctx, c)
	})
	e := New(cfg, o).WithLogger(quietLogger())
	e.neighbor = func(ctx context.Context, p *extractor.Propagator, seed *egraph.Result, opts extractor.PassOptions) (*egraph.Result, extractor.PassStats, error) {
		// Distinct neighbors so none are deduplicated.
		res := seed.Clone()
		res.Choose("A", egraph.NodeID([]string{"a1", "a2"}[opts.Rand.IntN(2)]))
		res.Choose("B", egraph.NodeID([]string{"b1", "b2"}[opts.Rand.IntN(2)]))
		res.Choose("S", "s")
		return res, extractor.PassStats{}, nil
	}

	res, err := e.ExtractParallel(context.Background(), g, g.Roots(), testRequest(3), 3)
	require.NoError(t, err)
	require.NoError(t, res.Validate(g, g.Roots()))
	// One base evaluation plus at most 3 per iteration.
	assert.LessOrEqual(t, calls.Load(), int32(1+2*3))
	assert.LessOrEqual(t, res.DAGCost(g, g.Roots()), egraph.Cost(7))
}

func TestSearch_FindsSharedOptimum(t *testing.T) {
	g := egraphtest.Diamond()
	e := New(testConfig(), nil).WithLogger(quietLogger())
	e.neighbor = func(ctx context.Context, p *extractor.Propagator, seed *egraph.Result, opts extractor.PassOptions) (*egraph.Result, extractor.PassStats, error) {
		res := seed.Clone()
		res.Choose("A", "a1")
		res.Choose("B", "b1")
		res.Choose("S", "s")
		return res, extractor.PassStats{}, nil
	}

	rep, err := e.Run(context.Background(), g, g.Roots(), testRequest(1), 0)
	require.NoError(t, err)
	assert.Equal(t, egraph.Cost(7), rep.BaseCost)
	assert.Equal(t, egraph.Cost(6), rep.Cost)
	assert.False(t, rep.FromBase)
}

func TestSearch_OracleFailures(t *testing.T) {
	g := egraphtest.Random(5, 40)
	roots := g.Roots()

	var calls atomic.Int64
	flaky := oracle.Func(func(ctx context.Context, c oracle.Candidate) (egraph.Cost, error) {
		n := calls.Add(1)
		if n%5 == 2 || n%5 == 4 {
			return egraph.Infinity, errors.New("abc exited 1")
		}
		return oracle.DAGCost{}.Evaluate(ctx, c)
	})

	rep, err := New(testConfig(), flaky).WithLogger(quietLogger()).Run(context.Background(), g, roots, testRequest(9), 5)
	require.NoError(t, err)
	require.NoError(t, rep.Result.Validate(g, roots))
	assert.LessOrEqual(t, rep.Cost, rep.BaseCost)

	failed := 0
	for _, it := range rep.Iterations {
		failed += it.Failed
	}
	assert.Positive(t, failed)
}

func TestSearch_AllCandidatesFailKeepsBase(t *testing.T) {
	g := egraphtest.Random(6, 40)
	roots := g.Roots()
	base := baseline(t, g)

	var calls atomic.Int64
	onlyBase := oracle.Func(func(ctx context.Context, c oracle.Candidate) (egraph.Cost, error) {
		if calls.Add(1) == 1 {
			return oracle.DAGCost{}.Evaluate(ctx, c)
		}
		return egraph.Infinity, errors.New("unavailable")
	})
	rep, err := New(testConfig(), onlyBase).WithLogger(quietLogger()).Run(context.Background(), g, roots, testRequest(2), 5)
	require.NoError(t, err)
	assert.True(t, rep.FromBase)
	assert.True(t, rep.Result.Equal(base))
	for _, it := range rep.Iterations {
		assert.Zero(t, it.Scored)
		assert.False(t, it.Accepted)
	}

	// A failing base is still returned when nothing else scores.
	never := oracle.Func(func(context.Context, oracle.Candidate) (egraph.Cost, error) {
		return egraph.Infinity, errors.New("unavailable")
	})
	rep, err = New(testConfig(), never).WithLogger(quietLogger()).Run(context.Background(), g, roots, testRequest(2), 5)
	require.NoError(t, err)
	assert.True(t, rep.FromBase)
	assert.True(t, rep.BaseCost.IsInf())
	assert.True(t, rep.Result.Equal(base))
}

func TestSearch_WorkerPanicsAreAbsent(t *testing.T) {
	g := egraphtest.Random(3, 30)
	roots := g.Roots()

	var calls atomic.Int64
	e := New(testConfig(), nil).WithLogger(quietLogger())
	e.neighbor = func(ctx context.Context, p *extractor.Propagator, seed *egraph.Result, opts extractor.PassOptions) (*egraph.Result, extractor.PassStats, error) {
		if calls.Add(1)%2 == 0 {
			panic("corrupted queue")
		}
		return p.Resume(ctx, seed, opts)
	}

	rep, err := e.Run(context.Background(), g, roots, testRequest(4), 0)
	require.NoError(t, err)
	require.NoError(t, rep.Result.Validate(g, roots))

	absent := 0
	for _, it := range rep.Iterations {
		absent += it.Absent
		assert.Equal(t, 6, it.Absent+it.Generated)
	}
	assert.Equal(t, 8*6/2, absent)
}

func TestSearch_CyclicCandidatesDiscarded(t *testing.T) {
	g := egraphtest.Cyclic()
	e := New(testConfig(), nil).WithLogger(quietLogger())
	e.neighbor = func(context.Context, *extractor.Propagator, *egraph.Result, extractor.PassOptions) (*egraph.Result, extractor.PassStats, error) {
		return egraphtest.CyclicChoice(), extractor.PassStats{}, nil
	}

	rep, err := e.Run(context.Background(), g, g.Roots(), testRequest(1), 0)
	require.NoError(t, err)
	assert.True(t, rep.FromBase)
	require.NoError(t, rep.Result.Validate(g, g.Roots()))
	for _, it := range rep.Iterations {
		assert.Equal(t, 6, it.Cyclic)
		assert.Zero(t, it.Scored)
	}
}

func TestSearch_UnknownCostFunction(t *testing.T) {
	g := egraphtest.SingleLeaf()
	_, err := New(testConfig(), nil).WithLogger(quietLogger()).Extract(context.Background(), g, g.Roots(), extractor.Request{CostFunction: "nope"})
	assert.ErrorIs(t, err, egraph.ErrUnknownCostFunction)
}

func TestGeneration_CollectsEveryWorker(t *testing.T) {
	g := egraphtest.SingleLeaf()
	prop, err := extractor.NewPropagator(g, egraph.NodeSumCostName)
	require.NoError(t, err)

	msgs := generation{
		prop:    prop,
		seed:    egraph.NewResult(),
		count:   7,
		workers: 3,
		evict:   0.1,
		neighbor: func(context.Context, *extractor.Propagator, *egraph.Result, extractor.PassOptions) (*egraph.Result, extractor.PassStats, error) {
			panic("boom")
		},
	}.run(context.Background())

	require.Len(t, msgs, 7)
	for i, m := range msgs {
		assert.Equal(t, i, m.worker)
		assert.ErrorIs(t, m.err, ErrWorkerPanic)
	}
}

func TestSelectAndAccept(t *testing.T) {
	sched := DefaultConfig().Schedule()
	rng := rand.New(rand.NewPCG(1, 2))
	cands := []scored{{cost: 1, fingerprint: "a"}, {cost: 1000, fingerprint: "b"}}

	assert.Equal(t, "a", selectCandidate(cands, 0.5, sched, rng).fingerprint)
	for i := 0; i < 20; i++ {
		assert.Equal(t, "a", selectCandidate(cands, 10, sched, rng).fingerprint)
	}

	assert.True(t, accept(5, 5, 0.1, sched, rng))
	assert.True(t, accept(4, 5, 0.1, sched, rng))
	assert.True(t, accept(4, egraph.Infinity, 0.1, sched, rng))
	assert.False(t, accept(6, 5, 0.5, sched, rng))
	assert.False(t, accept(1e9, 5, 100, sched, rng))
	assert.True(t, accept(5.000001, 5, 1e9, sched, rng))
}

func TestSchedule(t *testing.T) {
	cfg := DefaultConfig()
	s := cfg.Schedule()
	assert.Equal(t, 20, s.Boundary)
	assert.InDelta(t, 95.0, s.Next(100, 0), 1e-9)
	assert.InDelta(t, 80.0, s.Next(100, 20), 1e-9)
	assert.Equal(t, "slow", s.Cooling(19))
	assert.Equal(t, "fast", s.Cooling(20))
	assert.True(t, s.IsHigh(1.5))
	assert.False(t, s.IsHigh(1))

	cfg.PhaseBoundary = 5
	assert.Equal(t, 5, cfg.Schedule().Boundary)
}

func TestConfig_Validate(t *testing.T) {
	require.NoError(t, DefaultConfig().Validate())

	bad := DefaultConfig()
	bad.Workers = 0
	bad.SlowCooling = 1.5
	err := bad.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "workers")
	assert.Contains(t, err.Error(), "slow_cooling")
}

func TestPhase_String(t *testing.T) {
	assert.Equal(t, "generate_base", PhaseGenerateBase.String())
	assert.Equal(t, "done", PhaseDone.String())
	assert.Equal(t, "unknown", Phase(99).String())
}
