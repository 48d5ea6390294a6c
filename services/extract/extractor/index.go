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

import "github.com/AleutianAI/egx/services/extract/egraph"

// Index holds the parent relation and leaf set of a graph.
//
// Built once per graph and shared read-only by every worker.
type Index struct {
	parents map[egraph.ClassID][]egraph.NodeID
	leaves  []egraph.NodeID
}

// BuildIndex records, for each node and each of its children, that the
// node is a parent of the child's class. A node appears at most once per
// child class.
func BuildIndex(g *egraph.Graph) *Index {
	idx := &Index{parents: make(map[egraph.ClassID][]egraph.NodeID, g.NumClasses())}
	for _, nid := range g.NodeIDs() {
		n, _ := g.Node(nid)
		if n.IsLeaf() {
			idx.leaves = append(idx.leaves, nid)
			continue
		}
		seen := make(map[egraph.ClassID]bool, len(n.Children))
		for _, child := range n.Children {
			class := g.ClassOf(child)
			if seen[class] {
				continue
			}
			seen[class] = true
			idx.parents[class] = append(idx.parents[class], nid)
		}
	}
	return idx
}

// Parents returns the nodes that have a child in class.
func (idx *Index) Parents(class egraph.ClassID) []egraph.NodeID {
	return idx.parents[class]
}

// Leaves returns the nodes without children in graph order.
func (idx *Index) Leaves() []egraph.NodeID {
	return idx.leaves
}
