// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package ilp_test

import (
	"context"
	"runtime"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/egx/services/extract/egraph"
	"github.com/AleutianAI/egx/services/extract/egraph/egraphtest"
	"github.com/AleutianAI/egx/services/extract/extractor"
	"github.com/AleutianAI/egx/services/extract/ilp"
)

var sumReq = extractor.Request{CostFunction: egraph.NodeSumCostName}

func configs() map[string]ilp.Config {
	cold := ilp.DefaultConfig()
	cold.WarmStart = false
	return map[string]ilp.Config{"warm": ilp.DefaultConfig(), "cold": cold}
}

func TestExact_Scenarios(t *testing.T) {
	tests := []struct {
		name  string
		graph *egraph.Graph
		dag   egraph.Cost
		pick  map[egraph.ClassID]egraph.NodeID
	}{
		{"single leaf", egraphtest.SingleLeaf(), 1, map[egraph.ClassID]egraph.NodeID{"C0": "n0"}},
		{"shared subexpression", egraphtest.SharedSubexpression(), 3, map[egraph.ClassID]egraph.NodeID{"A": "n2"}},
		{"cycle avoided", egraphtest.Cyclic(), 10, map[egraph.ClassID]egraph.NodeID{"X": "x2"}},
		{"sharing beats greedy", egraphtest.Diamond(), 6, map[egraph.ClassID]egraph.NodeID{"A": "a1", "B": "b1", "S": "s"}},
		{"circuit", egraphtest.Circuit(), 3, map[egraph.ClassID]egraph.NodeID{"cand": "and", "cor": "or"}},
	}
	for cname, cfg := range configs() {
		for _, tt := range tests {
			t.Run(cname+"/"+tt.name, func(t *testing.T) {
				g := tt.graph
				res, err := ilp.New(cfg).Extract(context.Background(), g, g.Roots(), sumReq)
				require.NoError(t, err)
				assert.Empty(t, res.FindCycles(g, g.Roots()))
				assert.Equal(t, tt.dag, res.DAGCost(g, g.Roots()))
				for class, node := range tt.pick {
					got, _ := res.Choice(class)
					assert.Equal(t, node, got, "class %s", class)
				}
			})
		}
	}
}

func TestExact_NeverWorseThanIncremental(t *testing.T) {
	exact := ilp.New(ilp.DefaultConfig())
	inc := extractor.NewIncremental()
	for seed := uint64(1); seed <= 6; seed++ {
		g := egraphtest.Random(seed, 40)
		want, err := inc.Extract(context.Background(), g, g.Roots(), sumReq)
		require.NoError(t, err)
		got, err := exact.Extract(context.Background(), g, g.Roots(), sumReq)
		require.NoError(t, err, "seed %d", seed)
		assert.Empty(t, got.FindCycles(g, g.Roots()))
		assert.LessOrEqual(t, float64(got.DAGCost(g, g.Roots())), float64(want.DAGCost(g, g.Roots())), "seed %d", seed)
	}
}

func TestExact_Infeasible(t *testing.T) {
	g := egraphtest.Build([]*egraph.Node{egraphtest.N("r", "R", "f", 1, "r")}, "R")
	for cname, cfg := range configs() {
		t.Run(cname, func(t *testing.T) {
			_, err := ilp.New(cfg).Extract(context.Background(), g, g.Roots(), sumReq)
			assert.ErrorIs(t, err, ilp.ErrInfeasible)
		})
	}
}

func TestExact_UnknownCostFunction(t *testing.T) {
	g := egraphtest.SingleLeaf()
	_, err := ilp.New(ilp.DefaultConfig()).Extract(context.Background(), g, g.Roots(), extractor.Request{CostFunction: "x"})
	assert.ErrorIs(t, err, egraph.ErrUnknownCostFunction)
}

func TestExact_TimeoutReleasesSolver(t *testing.T) {
	g := egraphtest.Random(3, 1500)
	before := runtime.NumGoroutine()

	ex := ilp.New(ilp.Config{CostScale: 1000, Timeout: time.Millisecond})
	res, err := ex.Extract(context.Background(), g, g.Roots(), sumReq)
	if err != nil {
		assert.ErrorIs(t, err, ilp.ErrSolverInterrupted)
	} else {
		assert.Empty(t, res.FindCycles(g, g.Roots()))
	}

	assert.Eventually(t, func() bool {
		return runtime.NumGoroutine() <= before
	}, 10*time.Second, 10*time.Millisecond, "solver goroutine still running")
}
