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
	"sort"

	"github.com/AleutianAI/egx/services/extract/egraph"
)

// allowedNodes returns the nodes that may be active.
//
// Classes receive the next counter value the first time one of their
// nodes has all child classes ordered (leaves qualify immediately). A node
// is allowed when each child class has a strictly smaller order than its
// own class, so any selection of allowed nodes is acyclic.
func allowedNodes(g *egraph.Graph) map[egraph.NodeID]bool {
	position := make(map[egraph.NodeID]int, g.NumNodes())
	for i, nid := range g.NodeIDs() {
		position[nid] = i
	}

	pending := make(map[egraph.ClassID][]egraph.NodeID)
	var stack []egraph.NodeID
	for _, nid := range g.NodeIDs() {
		n, _ := g.Node(nid)
		if n.IsLeaf() {
			stack = append(stack, nid)
			continue
		}
		for _, child := range n.Children {
			cc := g.ClassOf(child)
			pending[cc] = append(pending[cc], nid)
		}
	}

	order := make(map[egraph.ClassID]int, g.NumClasses())
	memo := make(map[egraph.NodeID]bool, g.NumNodes())
	next := 0

	for len(stack) > 0 {
		nid := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if _, seen := memo[nid]; seen {
			continue
		}
		n, _ := g.Node(nid)

		update := false
		switch {
		case n.IsLeaf():
			update = true
		case childrenOrdered(g, n, order):
			own, ok := order[n.Class]
			if !ok {
				update = true
				break
			}
			if !childrenBelow(g, n, order, own) {
				memo[nid] = false
				continue
			}
			update = true
		}
		if !update {
			continue
		}

		if _, ok := order[n.Class]; !ok {
			order[n.Class] = next
			next++
		}
		memo[nid] = true
		if waiting, ok := pending[n.Class]; ok {
			delete(pending, n.Class)
			stack = append(stack, waiting...)
			sort.Slice(stack, func(i, j int) bool { return position[stack[i]] < position[stack[j]] })
			stack = dedupSorted(stack)
		}
	}

	allowed := make(map[egraph.NodeID]bool, len(memo))
	for nid, ok := range memo {
		if ok {
			allowed[nid] = true
		}
	}
	return allowed
}

func childrenOrdered(g *egraph.Graph, n *egraph.Node, order map[egraph.ClassID]int) bool {
	for _, child := range n.Children {
		if _, ok := order[g.ClassOf(child)]; !ok {
			return false
		}
	}
	return true
}

func childrenBelow(g *egraph.Graph, n *egraph.Node, order map[egraph.ClassID]int, own int) bool {
	for _, child := range n.Children {
		if order[g.ClassOf(child)] >= own {
			return false
		}
	}
	return true
}

func dedupSorted(ids []egraph.NodeID) []egraph.NodeID {
	if len(ids) < 2 {
		return ids
	}
	out := ids[:1]
	for _, id := range ids[1:] {
		if id != out[len(out)-1] {
			out = append(out, id)
		}
	}
	return out
}
