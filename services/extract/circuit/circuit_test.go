// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package circuit_test

import (
	"strings"
	"testing"

	"github.com/sebdah/goldie/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/egx/services/extract/circuit"
	"github.com/AleutianAI/egx/services/extract/egraph"
	"github.com/AleutianAI/egx/services/extract/egraph/egraphtest"
)

func circuitChoice() *egraph.Result {
	r := egraph.NewResult()
	for class, node := range map[egraph.ClassID]egraph.NodeID{
		"cout": "out", "cnot": "not", "cor": "or", "cand": "and",
		"ca": "a", "cb": "b", "cone": "one",
	} {
		r.Choose(class, node)
	}
	return r
}

func golden(t *testing.T) *goldie.Goldie {
	return goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
}

func TestBuild_Eqn(t *testing.T) {
	g := egraphtest.Circuit()
	nl, err := circuit.Build(g, g.Roots(), circuitChoice(), circuit.Options{})
	require.NoError(t, err)

	assert.Equal(t, []string{"a", "b"}, nl.Inputs)
	require.Len(t, nl.Wires, 1)
	assert.Equal(t, "new_n_cand", nl.Wires[0].Name)
	golden(t).Assert(t, "circuit_eqn", []byte(nl.String()))
}

func TestBuild_WireNamesStayUnique(t *testing.T) {
	g := egraphtest.Build([]*egraph.Node{
		egraphtest.N("x", "cx", "x", 0),
		egraphtest.N("y", "cy", "y", 0),
		egraphtest.N("n1", "a-b", "*", 1, "x", "y"),
		egraphtest.N("n2", "a_b", "+", 1, "x", "y"),
		egraphtest.N("p", "cp", "+", 1, "n1", "n2"),
		egraphtest.N("q", "cq", "*", 1, "n1", "n2"),
		egraphtest.N("out", "cout", "&", 0, "p", "q"),
	}, "cout")
	r := egraph.NewResult()
	for class, node := range map[egraph.ClassID]egraph.NodeID{
		"cx": "x", "cy": "y", "a-b": "n1", "a_b": "n2", "cp": "p", "cq": "q", "cout": "out",
	} {
		r.Choose(class, node)
	}

	nl, err := circuit.Build(g, g.Roots(), r, circuit.Options{})
	require.NoError(t, err)
	require.Len(t, nl.Wires, 2)
	assert.Equal(t, "new_n_a_b", nl.Wires[0].Name)
	assert.Equal(t, "new_n_a_b_1", nl.Wires[1].Name)
	assert.NotEqual(t, nl.Wires[0].Expr, nl.Wires[1].Expr)
}

func TestBuild_NamedOutputs(t *testing.T) {
	g := egraphtest.Circuit()
	names, err := circuit.ReadOutputOrder(strings.NewReader("INORDER = a b;\nOUTORDER = y0\n  y1;\ny0 = a;\n"))
	require.NoError(t, err)
	assert.Equal(t, []string{"y0", "y1"}, names)

	nl, err := circuit.Build(g, g.Roots(), circuitChoice(), circuit.Options{OutputNames: names})
	require.NoError(t, err)
	golden(t).Assert(t, "circuit_named_eqn", []byte(nl.String()))

	_, err = circuit.Build(g, g.Roots(), circuitChoice(), circuit.Options{OutputNames: []string{"only"}})
	assert.ErrorIs(t, err, circuit.ErrOutputCount)
}

func TestBuild_SingleOutputWithConstant(t *testing.T) {
	g := egraphtest.Build([]*egraph.Node{
		egraphtest.N("x", "cx", "x", 0),
		egraphtest.N("one", "c1", "1", 0),
		egraphtest.N("and", "cr", "*", 1, "x", "one"),
		egraphtest.N("or3", "co", "+", 1, "x", "x", "one"),
		egraphtest.N("top", "ct", "+", 1, "and", "or3"),
	}, "ct")
	r := egraph.NewResult()
	for class, node := range map[egraph.ClassID]egraph.NodeID{
		"cx": "x", "c1": "one", "cr": "and", "co": "or3", "ct": "top",
	} {
		r.Choose(class, node)
	}
	nl, err := circuit.Build(g, g.Roots(), r, circuit.Options{})
	require.NoError(t, err)
	assert.Equal(t, []string{"x"}, nl.Inputs)
	assert.Empty(t, nl.Wires)
	require.Len(t, nl.Outputs, 1)
	assert.Equal(t, "((x * 1) + ((x + x) + 1))", nl.Outputs[0].Expr)
}

func TestBuild_RejectsCycle(t *testing.T) {
	g := egraphtest.Cyclic()
	_, err := circuit.Build(g, g.Roots(), egraphtest.CyclicChoice(), circuit.Options{})
	assert.ErrorIs(t, err, egraph.ErrCyclicChoice)
}

func TestReadOutputOrder_Missing(t *testing.T) {
	_, err := circuit.ReadOutputOrder(strings.NewReader("INORDER = a;\n"))
	assert.ErrorIs(t, err, circuit.ErrNoOutOrder)
}

func TestExtractFeatures(t *testing.T) {
	g := egraphtest.Circuit()
	f, err := circuit.ExtractFeatures(g, g.Roots(), circuitChoice())
	require.NoError(t, err)

	var sb strings.Builder
	sb.WriteString("# edges\n")
	sb.WriteString(f.EdgeList)
	sb.WriteString("# nodes\n")
	sb.WriteString(f.NodeCSV)
	sb.WriteString("# summary\n")
	sb.Write(f.Summary)
	sb.WriteString("\n")
	golden(t).Assert(t, "circuit_features", []byte(sb.String()))
}
