// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package ilp

import (
	"math"

	"github.com/crillab/gophersat/solver"

	"github.com/AleutianAI/egx/services/extract/egraph"
)

// model is the pseudo-boolean encoding of one graph.
//
// Variables are numbered from 1: classes first in graph order, then nodes
// in graph order.
type model struct {
	g       *egraph.Graph
	allowed map[egraph.NodeID]bool

	classVar map[egraph.ClassID]int
	nodeVar  map[egraph.NodeID]int

	constrs []solver.PBConstr
	costVar []int
	costW   []int
	weight  map[int]int
}

func buildModel(g *egraph.Graph, roots []egraph.ClassID, scale float64) *model {
	m := &model{
		g:        g,
		allowed:  allowedNodes(g),
		classVar: make(map[egraph.ClassID]int, g.NumClasses()),
		nodeVar:  make(map[egraph.NodeID]int, g.NumNodes()),
		weight:   make(map[int]int),
	}
	v := 1
	for _, cid := range g.ClassIDs() {
		m.classVar[cid] = v
		v++
	}
	for _, nid := range g.NodeIDs() {
		m.nodeVar[nid] = v
		v++
	}

	for _, root := range roots {
		m.constrs = append(m.constrs, solver.PropClause(m.classVar[root]))
	}
	for _, cid := range g.ClassIDs() {
		m.encodeClass(cid, scale)
	}
	return m
}

func (m *model) encodeClass(cid egraph.ClassID, scale float64) {
	g := m.g
	class, _ := g.Class(cid)
	cv := m.classVar[cid]

	var active []int
	var nodes []*egraph.Node
	for _, nid := range class.Nodes {
		nv := m.nodeVar[nid]
		if !m.allowed[nid] {
			m.constrs = append(m.constrs, solver.PropClause(-nv))
			continue
		}
		n, _ := g.Node(nid)
		active = append(active, nv)
		nodes = append(nodes, n)
	}
	if len(active) == 0 {
		m.constrs = append(m.constrs, solver.PropClause(-cv))
		return
	}

	// Exactly one active node iff the class is active.
	for _, nv := range active {
		m.constrs = append(m.constrs, solver.PropClause(-nv, cv))
	}
	m.constrs = append(m.constrs, solver.PropClause(append([]int{-cv}, active...)...))
	if len(active) > 1 {
		m.constrs = append(m.constrs, solver.AtMost(active, 1))
	}

	// Child classes required by every node become class-level implications.
	shared := childClasses(g, nodes[0])
	for _, n := range nodes[1:] {
		own := childClasses(g, n)
		for c := range shared {
			if !own[c] {
				delete(shared, c)
			}
		}
	}
	for _, c := range sortedClasses(shared) {
		m.constrs = append(m.constrs, solver.PropClause(-cv, m.classVar[c]))
	}
	for i, n := range nodes {
		for _, c := range sortedClasses(childClasses(g, n)) {
			if shared[c] {
				continue
			}
			m.constrs = append(m.constrs, solver.PropClause(-active[i], m.classVar[c]))
		}
	}

	minCost := nodes[0].Cost
	for _, n := range nodes[1:] {
		if n.Cost < minCost {
			minCost = n.Cost
		}
	}
	m.addCost(cv, scaled(minCost, scale))
	for i, n := range nodes {
		m.addCost(active[i], scaled(n.Cost-minCost, scale))
	}
}

func (m *model) addCost(v, w int) {
	if w <= 0 {
		return
	}
	m.costVar = append(m.costVar, v)
	m.costW = append(m.costW, w)
	m.weight[v] = w
}

// objective returns the scaled objective value of res, and false when res
// uses a node the model bans.
func (m *model) objective(res *egraph.Result, roots []egraph.ClassID) (int, bool) {
	_, sub := res.DAGResult(m.g, roots)
	total := 0
	for _, cid := range sub.Classes() {
		nid, _ := sub.Choice(cid)
		if !m.allowed[nid] {
			return 0, false
		}
		total += m.weight[m.classVar[cid]] + m.weight[m.nodeVar[nid]]
	}
	return total, true
}

// cost is the scaled objective value of a solver model.
func (m *model) cost(values []bool) int {
	total := 0
	for i, v := range m.costVar {
		if v-1 < len(values) && values[v-1] {
			total += m.costW[i]
		}
	}
	return total
}

// bound restricts the objective to at most limit.
func (m *model) bound(limit int) {
	lits := append([]int(nil), m.costVar...)
	m.constrs = append(m.constrs, solver.LtEq(lits, append([]int(nil), m.costW...), limit))
}

// problem builds the solver input with the objective attached.
func (m *model) problem() *solver.Problem {
	pb := solver.ParsePBConstrs(m.constrs)
	if len(m.costVar) > 0 {
		lits := make([]solver.Lit, len(m.costVar))
		for i, v := range m.costVar {
			lits[i] = solver.IntToLit(int32(v))
		}
		pb.SetCostFunc(lits, append([]int(nil), m.costW...))
	}
	return pb
}

// decode reads the chosen node of every active class from a model.
func (m *model) decode(values []bool) *egraph.Result {
	res := egraph.NewResult()
	isTrue := func(v int) bool { return v-1 < len(values) && values[v-1] }
	for _, cid := range m.g.ClassIDs() {
		if !isTrue(m.classVar[cid]) {
			continue
		}
		class, _ := m.g.Class(cid)
		for _, nid := range class.Nodes {
			if isTrue(m.nodeVar[nid]) {
				res.Choose(cid, nid)
				break
			}
		}
	}
	return res
}

func childClasses(g *egraph.Graph, n *egraph.Node) map[egraph.ClassID]bool {
	out := make(map[egraph.ClassID]bool, len(n.Children))
	for _, child := range n.Children {
		out[g.ClassOf(child)] = true
	}
	return out
}

func sortedClasses(set map[egraph.ClassID]bool) []egraph.ClassID {
	ids := make([]egraph.ClassID, 0, len(set))
	for id := range set {
		ids = append(ids, id)
	}
	egraph.SortClassIDs(ids)
	return ids
}

func scaled(c egraph.Cost, scale float64) int {
	return int(math.Round(float64(c) * scale))
}
