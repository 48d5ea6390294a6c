// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package oracle_test

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/egx/services/extract/egraph"
	"github.com/AleutianAI/egx/services/extract/egraph/egraphtest"
	"github.com/AleutianAI/egx/services/extract/oracle"
)

func circuitCandidate() oracle.Candidate {
	r := egraph.NewResult()
	for class, node := range map[egraph.ClassID]egraph.NodeID{
		"cout": "out", "cnot": "not", "cor": "or", "cand": "and",
		"ca": "a", "cb": "b", "cone": "one",
	} {
		r.Choose(class, node)
	}
	g := egraphtest.Circuit()
	return oracle.NewCandidate(g, g.Roots(), r)
}

func cyclicCandidate() oracle.Candidate {
	g := egraphtest.Cyclic()
	return oracle.NewCandidate(g, g.Roots(), egraphtest.CyclicChoice())
}

func TestMetricOracles(t *testing.T) {
	ctx := context.Background()
	c := circuitCandidate()

	cost, err := oracle.DAGCost{}.Evaluate(ctx, c)
	require.NoError(t, err)
	assert.Equal(t, egraph.Cost(3), cost)

	cost, err = oracle.TreeCost{}.Evaluate(ctx, c)
	require.NoError(t, err)
	assert.Equal(t, egraph.Cost(4), cost)
}

func TestMetricOracles_RejectCycle(t *testing.T) {
	for _, o := range []oracle.Oracle{oracle.DAGCost{}, oracle.TreeCost{}} {
		cost, err := o.Evaluate(context.Background(), cyclicCandidate())
		require.Error(t, err, o.Name())
		assert.True(t, cost.IsInf())
		assert.Equal(t, oracle.KindInvalid, oracle.KindOf(err))
		assert.ErrorIs(t, err, egraph.ErrCyclicChoice)
	}
}

func TestNewCandidate_UniqueIDs(t *testing.T) {
	a, b := circuitCandidate(), circuitCandidate()
	assert.NotEqual(t, a.ID, b.ID)
	assert.Equal(t, a.Fingerprint(), b.Fingerprint())
}

func TestEvaluateBatch_FailuresBecomeInfinity(t *testing.T) {
	base := circuitCandidate()
	cands := make([]oracle.Candidate, 5)
	for i := range cands {
		cands[i] = base
		cands[i].ID = fmt.Sprintf("c%d", i)
	}

	boom := errors.New("tool crashed")
	o := oracle.Func(func(ctx context.Context, c oracle.Candidate) (egraph.Cost, error) {
		switch c.ID {
		case "c1":
			return egraph.Infinity, boom
		case "c3":
			panic("bad netlist")
		}
		return egraph.Cost(len(c.ID)), nil
	})

	scores := oracle.EvaluateBatch(context.Background(), o, cands, 2, nil)
	require.Len(t, scores, 5)
	for i, s := range scores {
		assert.Equal(t, i, s.Index)
		assert.Equal(t, cands[i].ID, s.Candidate.ID)
	}

	assert.ErrorIs(t, scores[1].Err, boom)
	assert.True(t, scores[1].Cost.IsInf())
	assert.ErrorIs(t, scores[3].Err, oracle.ErrPanic)
	assert.Equal(t, oracle.KindPanic, oracle.KindOf(scores[3].Err))
	assert.True(t, scores[3].Cost.IsInf())

	for _, i := range []int{0, 2, 4} {
		assert.NoError(t, scores[i].Err)
		assert.Equal(t, egraph.Cost(2), scores[i].Cost)
	}
}

func TestEvaluate_InfiniteCostIsAnError(t *testing.T) {
	o := oracle.Func(func(context.Context, oracle.Candidate) (egraph.Cost, error) {
		return egraph.Infinity, nil
	})
	s := oracle.Evaluate(context.Background(), o, circuitCandidate())
	require.Error(t, s.Err)
	assert.Equal(t, oracle.KindInvalid, oracle.KindOf(s.Err))
}

func TestEvaluateBatch_RespectsLimit(t *testing.T) {
	var inFlight, peak atomic.Int32
	release := make(chan struct{})
	o := oracle.Func(func(context.Context, oracle.Candidate) (egraph.Cost, error) {
		n := inFlight.Add(1)
		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}
		<-release
		inFlight.Add(-1)
		return 1, nil
	})

	cands := make([]oracle.Candidate, 6)
	for i := range cands {
		cands[i] = circuitCandidate()
	}

	done := make(chan []oracle.Score)
	go func() { done <- oracle.EvaluateBatch(context.Background(), o, cands, 2, nil) }()
	for range cands {
		release <- struct{}{}
	}
	scores := <-done

	assert.LessOrEqual(t, peak.Load(), int32(2))
	for _, s := range scores {
		assert.NoError(t, s.Err)
	}
}

type mapStore struct {
	data map[string]egraph.Cost
	puts int
}

func (m *mapStore) Get(_ context.Context, key string) (egraph.Cost, bool, error) {
	c, ok := m.data[key]
	return c, ok, nil
}

func (m *mapStore) Put(_ context.Context, key string, cost egraph.Cost) error {
	m.data[key] = cost
	m.puts++
	return nil
}

func TestCached(t *testing.T) {
	var calls atomic.Int32
	inner := oracle.Func(func(_ context.Context, c oracle.Candidate) (egraph.Cost, error) {
		calls.Add(1)
		return 7, nil
	})
	store := &mapStore{data: map[string]egraph.Cost{}}
	cached := oracle.NewCached(inner, 8, store)
	ctx := context.Background()

	first, second := circuitCandidate(), circuitCandidate()
	cost, err := cached.Evaluate(ctx, first)
	require.NoError(t, err)
	assert.Equal(t, egraph.Cost(7), cost)

	// Same extraction under a different id hits the memory tier.
	cost, err = cached.Evaluate(ctx, second)
	require.NoError(t, err)
	assert.Equal(t, egraph.Cost(7), cost)
	assert.Equal(t, int32(1), calls.Load())
	assert.Equal(t, 1, store.puts)

	stats := cached.Stats()
	assert.Equal(t, int64(1), stats.Hits)
	assert.Equal(t, 1, stats.Size)

	// A fresh decorator over the same store hits the persistent tier.
	again := oracle.NewCached(inner, 8, store)
	cost, err = again.Evaluate(ctx, first)
	require.NoError(t, err)
	assert.Equal(t, egraph.Cost(7), cost)
	assert.Equal(t, int32(1), calls.Load())
}

func TestCached_FailuresNotCached(t *testing.T) {
	var calls atomic.Int32
	inner := oracle.Func(func(context.Context, oracle.Candidate) (egraph.Cost, error) {
		calls.Add(1)
		return egraph.Infinity, errors.New("unavailable")
	})
	store := &mapStore{data: map[string]egraph.Cost{}}
	cached := oracle.NewCached(inner, 8, store)

	for range 3 {
		_, err := cached.Evaluate(context.Background(), circuitCandidate())
		require.Error(t, err)
	}
	assert.Equal(t, int32(3), calls.Load())
	assert.Zero(t, store.puts)
}

func TestCacheKey_DependsOnOracleAndExtraction(t *testing.T) {
	c := circuitCandidate()
	assert.NotEqual(t, oracle.CacheKey("abc", c), oracle.CacheKey("ml", c))

	other := c
	other.Result = c.Result.Clone()
	other.Result.Choose("cand", "and2")
	assert.NotEqual(t, oracle.CacheKey("abc", c), oracle.CacheKey("abc", other))
}

func TestNew(t *testing.T) {
	cfg := oracle.DefaultConfig()
	o, closer, err := oracle.New(cfg, nil)
	require.NoError(t, err)
	assert.Equal(t, oracle.DAGName, o.Name())
	assert.NoError(t, closer.Close())

	cfg.Kind = oracle.ABCName
	o, _, err = oracle.New(cfg, nil)
	require.NoError(t, err)
	assert.IsType(t, &oracle.Guarded{}, o)
	assert.Equal(t, oracle.ABCName, o.Name())

	cfg.ABC.Library = "cells.genlib; write /etc/passwd"
	_, _, err = oracle.New(cfg, nil)
	assert.Error(t, err)

	cfg.ABC.Library = "cells.genlib"
	cfg.ABC.OutputNames = []string{"y0", "y0"}
	_, _, err = oracle.New(cfg, nil)
	assert.Error(t, err)

	cfg.Kind = "nope"
	_, _, err = oracle.New(cfg, nil)
	assert.Error(t, err)
}
