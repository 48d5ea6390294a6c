// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package cache

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/egx/services/extract/egraph"
	"github.com/AleutianAI/egx/services/extract/egraph/egraphtest"
	"github.com/AleutianAI/egx/services/extract/oracle"
)

func TestCostStore_GetPut(t *testing.T) {
	s, err := Open(InMemoryConfig())
	require.NoError(t, err)
	defer s.Close()
	ctx := context.Background()

	_, ok, err := s.Get(ctx, "missing")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, s.Put(ctx, "k", 12.25))
	cost, ok, err := s.Get(ctx, "k")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, egraph.Cost(12.25), cost)

	require.NoError(t, s.Put(ctx, "inf", egraph.Infinity))
	_, ok, err = s.Get(ctx, "inf")
	require.NoError(t, err)
	assert.False(t, ok)

	n, err := s.Len()
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	require.NoError(t, s.Purge())
	n, err = s.Len()
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestCostStore_Persists(t *testing.T) {
	dir := t.TempDir()
	cfg := DefaultConfig()
	cfg.Enabled = true
	cfg.Path = dir
	cfg.GCInterval = time.Hour

	s, err := Open(cfg)
	require.NoError(t, err)
	require.NoError(t, s.Put(context.Background(), "abc/g/r", 3.5))
	require.NoError(t, s.Close())
	require.NoError(t, s.Close())

	s, err = Open(cfg)
	require.NoError(t, err)
	defer s.Close()
	cost, ok, err := s.Get(context.Background(), "abc/g/r")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, egraph.Cost(3.5), cost)
}

func TestCostStore_Closed(t *testing.T) {
	s, err := Open(InMemoryConfig())
	require.NoError(t, err)
	require.NoError(t, s.Close())

	_, _, err = s.Get(context.Background(), "k")
	assert.ErrorIs(t, err, ErrClosed)
	assert.ErrorIs(t, s.Put(context.Background(), "k", 1), ErrClosed)
}

func TestOpen_RequiresPath(t *testing.T) {
	_, err := Open(Config{Enabled: true})
	assert.Error(t, err)
}

func TestCostStore_BacksCachedOracle(t *testing.T) {
	s, err := Open(InMemoryConfig())
	require.NoError(t, err)
	defer s.Close()

	calls := 0
	inner := oracle.Func(func(ctx context.Context, c oracle.Candidate) (egraph.Cost, error) {
		calls++
		return oracle.DAGCost{}.Evaluate(ctx, c)
	})

	g := egraphtest.Diamond()
	res := egraph.NewResult()
	for class, node := range map[egraph.ClassID]egraph.NodeID{"R": "r", "A": "a2", "B": "b2"} {
		res.Choose(class, node)
	}

	first := oracle.NewCached(inner, 4, s)
	cost, err := first.Evaluate(context.Background(), oracle.NewCandidate(g, g.Roots(), res))
	require.NoError(t, err)
	assert.Equal(t, egraph.Cost(7), cost)

	second := oracle.NewCached(inner, 4, s)
	cost, err = second.Evaluate(context.Background(), oracle.NewCandidate(g, g.Roots(), res))
	require.NoError(t, err)
	assert.Equal(t, egraph.Cost(7), cost)
	assert.Equal(t, 1, calls)
}
