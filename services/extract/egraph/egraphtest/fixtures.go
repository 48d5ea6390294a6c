// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package egraphtest provides e-graph fixtures shared by extractor tests.
package egraphtest

import (
	"fmt"
	"math/rand/v2"

	"github.com/AleutianAI/egx/services/extract/egraph"
)

// N is shorthand for building a node in fixtures.
func N(id, class, op string, cost float64, children ...string) *egraph.Node {
	kids := make([]egraph.NodeID, len(children))
	for i, c := range children {
		kids[i] = egraph.NodeID(c)
	}
	return &egraph.Node{
		ID:       egraph.NodeID(id),
		Op:       op,
		Children: kids,
		Class:    egraph.ClassID(class),
		Cost:     egraph.Cost(cost),
	}
}

// Build freezes a graph from nodes and roots and panics on error. Only for
// fixtures known to be well formed.
func Build(nodes []*egraph.Node, roots ...string) *egraph.Graph {
	g := egraph.New()
	for _, n := range nodes {
		if err := g.AddNode(n); err != nil {
			panic(err)
		}
	}
	ids := make([]egraph.ClassID, len(roots))
	for i, r := range roots {
		ids[i] = egraph.ClassID(r)
	}
	if err := g.SetRoots(ids...); err != nil {
		panic(err)
	}
	if err := g.Freeze(); err != nil {
		panic(err)
	}
	return g
}

// SingleLeaf is one class C0 holding one leaf x of cost 1.
func SingleLeaf() *egraph.Graph {
	return Build([]*egraph.Node{N("n0", "C0", "x", 1)}, "C0")
}

// SharedSubexpression has class A with f(B) cost 5 and g(B) cost 2, and a
// leaf class B of cost 1. The optimal DAG cost is 3.
func SharedSubexpression() *egraph.Graph {
	return Build([]*egraph.Node{
		N("n1", "A", "f", 5, "b"),
		N("n2", "A", "g", 2, "b"),
		N("b", "B", "x", 1),
	}, "A")
}

// Cyclic has classes X and Y whose cheap nodes reference each other, plus
// expensive leaves that break the cycle.
func Cyclic() *egraph.Graph {
	return Build([]*egraph.Node{
		N("x1", "X", "f", 1, "y1"),
		N("x2", "X", "a", 10),
		N("y1", "Y", "g", 1, "x1"),
		N("y2", "Y", "b", 10),
	}, "X")
}

// CyclicChoice selects x1 and y1 in Cyclic, closing the X→Y→X cycle.
func CyclicChoice() *egraph.Result {
	r := egraph.NewResult()
	r.Choose("X", "x1")
	r.Choose("Y", "y1")
	return r
}

// Diamond rewards sharing: the greedy per-class choice picks the two
// leaves (DAG cost 7) while sharing S through g and h costs 6.
func Diamond() *egraph.Graph {
	return Build([]*egraph.Node{
		N("r", "R", "f", 1, "a1", "b1"),
		N("a1", "A", "g", 1, "s"),
		N("a2", "A", "p", 3),
		N("b1", "B", "h", 1, "s"),
		N("b2", "B", "q", 3),
		N("s", "S", "s", 3),
	}, "R")
}

// Circuit is a two-output boolean circuit: !(a*b) and (a*b)+b, bundled by
// a root "&" node. The AND gate is shared between outputs.
func Circuit() *egraph.Graph {
	return Build([]*egraph.Node{
		N("a", "ca", "a", 0),
		N("b", "cb", "b", 0),
		N("one", "cone", "1", 0),
		N("and", "cand", "*", 1, "a", "b"),
		N("and2", "cand", "*", 3, "b", "a"),
		N("not", "cnot", "!", 1, "and"),
		N("or", "cor", "+", 1, "and", "b"),
		N("or1", "cor", "*", 1, "or", "one"),
		N("out", "cout", "&", 0, "not", "or"),
	}, "cout")
}

// Random builds a layered graph with the given number of classes. Class i
// draws children from classes below i so an acyclic extraction always
// exists; about one node in eight also references a class above it,
// creating node-level cycles an extractor must avoid.
func Random(seed uint64, classes int) *egraph.Graph {
	rng := rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
	leaves := classes / 4
	if leaves < 1 {
		leaves = 1
	}
	var nodes []*egraph.Node
	// firstNode[i] is a node of class i usable as a child reference.
	firstNode := make([]string, classes)
	for i := 0; i < classes; i++ {
		class := fmt.Sprintf("c%d", i)
		count := 1 + rng.IntN(3)
		for j := 0; j < count; j++ {
			id := fmt.Sprintf("n%d_%d", i, j)
			if j == 0 {
				firstNode[i] = id
			}
			cost := float64(1 + rng.IntN(9))
			if i < leaves {
				nodes = append(nodes, N(id, class, fmt.Sprintf("in%d", i), cost))
				continue
			}
			arity := 1 + rng.IntN(2)
			kids := make([]string, 0, arity+1)
			for k := 0; k < arity; k++ {
				kids = append(kids, firstNode[rng.IntN(i)])
			}
			if j > 0 && rng.IntN(8) == 0 && i+1 < classes {
				// Forward reference resolved below once the class exists.
				kids = append(kids, fmt.Sprintf("n%d_0", i+1+rng.IntN(classes-i-1)))
			}
			nodes = append(nodes, N(id, class, "op", cost, kids...))
		}
	}
	return Build(nodes, fmt.Sprintf("c%d", classes-1))
}
