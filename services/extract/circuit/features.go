// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package circuit

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/AleutianAI/egx/services/extract/egraph"
)

// Features are the graph files sent to the ML cost service.
type Features struct {
	// EdgeList has one "src dst" line per child→parent edge, using class
	// indices.
	EdgeList string

	// NodeCSV has one row per reachable class.
	NodeCSV string

	// Summary is a JSON object of aggregate statistics.
	Summary []byte
}

type summary struct {
	Classes int            `json:"classes"`
	Edges   int            `json:"edges"`
	Inputs  int            `json:"inputs"`
	Outputs int            `json:"outputs"`
	Depth   int            `json:"depth"`
	DAGCost egraph.Cost    `json:"dag_cost"`
	Ops     map[string]int `json:"ops"`
}

// ExtractFeatures derives the feature files of an extraction. Classes are
// indexed in canonical order over the reachable sub-result.
func ExtractFeatures(g *egraph.Graph, roots []egraph.ClassID, res *egraph.Result) (*Features, error) {
	if err := res.Validate(g, roots); err != nil {
		return nil, err
	}
	dag, sub := res.DAGResult(g, roots)
	classes := sub.Classes()
	index := make(map[egraph.ClassID]int, len(classes))
	for i, cid := range classes {
		index[cid] = i
	}

	b := &builder{g: g, res: sub}
	var outputs []egraph.ClassID
	for _, root := range roots {
		outputs = b.flatten(root, outputs)
	}

	fanout := make([]int, len(classes))
	var edges strings.Builder
	edgeCount := 0
	s := summary{Classes: len(classes), Outputs: len(outputs), DAGCost: dag, Ops: make(map[string]int)}
	for _, cid := range classes {
		n := b.node(cid)
		s.Ops[n.Op]++
		if n.IsLeaf() && !isConstant(n.Op) {
			s.Inputs++
		}
		for _, child := range n.Children {
			ci := index[g.ClassOf(child)]
			fanout[ci]++
			edgeCount++
			fmt.Fprintf(&edges, "%d %d\n", ci, index[cid])
		}
	}
	s.Edges = edgeCount

	var csv strings.Builder
	csv.WriteString("id,class,op,cost,fanin,fanout\n")
	for i, cid := range classes {
		n := b.node(cid)
		fmt.Fprintf(&csv, "%d,%s,%s,%s,%d,%d\n",
			i, cid, n.Op, strconv.FormatFloat(float64(n.Cost), 'g', -1, 64), len(n.Children), fanout[i])
	}

	depth := make(map[egraph.ClassID]int, len(classes))
	for _, root := range roots {
		if d := b.depth(root, depth); d > s.Depth {
			s.Depth = d
		}
	}

	js, err := json.Marshal(s)
	if err != nil {
		return nil, fmt.Errorf("encoding summary: %w", err)
	}
	return &Features{EdgeList: edges.String(), NodeCSV: csv.String(), Summary: js}, nil
}

// depth is the longest edge count from cid down to a leaf.
func (b *builder) depth(cid egraph.ClassID, memo map[egraph.ClassID]int) int {
	if d, ok := memo[cid]; ok {
		return d
	}
	n := b.node(cid)
	d := 0
	for _, child := range n.Children {
		if cd := b.depth(b.g.ClassOf(child), memo) + 1; cd > d {
			d = cd
		}
	}
	memo[cid] = d
	return d
}
