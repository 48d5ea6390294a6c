// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package egraph

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"os"
)

type nodeJSON struct {
	Op       string   `json:"op"`
	Children []NodeID `json:"children"`
	EClass   ClassID  `json:"eclass"`
	Cost     *Cost    `json:"cost,omitempty"`
}

type graphJSON struct {
	Nodes        map[NodeID]nodeJSON `json:"nodes"`
	RootEClasses []ClassID           `json:"root_eclasses"`
}

// DefaultNodeCost is used when an interchange node omits "cost".
const DefaultNodeCost Cost = 1

// ReadGraph decodes the graph interchange format and freezes the result.
//
// # Description
//
// Accepts {"nodes": {id: {op, children, eclass, cost}}, "root_eclasses":
// [...]}. Unknown fields are ignored. Any decoding or validation failure
// is returned as a *FormatError without a path.
func ReadGraph(r io.Reader) (*Graph, error) {
	var raw graphJSON
	if err := json.NewDecoder(r).Decode(&raw); err != nil {
		return nil, &FormatError{Err: err}
	}
	g := New()
	for id, rn := range raw.Nodes {
		if rn.EClass == "" {
			return nil, &FormatError{Err: fmt.Errorf("node %s has no eclass", id)}
		}
		cost := DefaultNodeCost
		if rn.Cost != nil {
			cost = *rn.Cost
		}
		n := &Node{ID: id, Op: rn.Op, Children: rn.Children, Class: rn.EClass, Cost: cost}
		if err := g.AddNode(n); err != nil {
			return nil, &FormatError{Err: err}
		}
	}
	if err := g.SetRoots(raw.RootEClasses...); err != nil {
		return nil, &FormatError{Err: err}
	}
	if err := g.Freeze(); err != nil {
		return nil, &FormatError{Err: err}
	}
	return g, nil
}

// LoadGraph reads a graph interchange file. Errors carry the path.
func LoadGraph(path string) (*Graph, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, &FormatError{Path: path, Err: err}
	}
	defer f.Close()
	g, err := ReadGraph(bufio.NewReader(f))
	if err != nil {
		if fe, ok := err.(*FormatError); ok {
			fe.Path = path
			return nil, fe
		}
		return nil, &FormatError{Path: path, Err: err}
	}
	return g, nil
}

// WriteGraph encodes g in the interchange format.
func WriteGraph(w io.Writer, g *Graph) error {
	raw := graphJSON{
		Nodes:        make(map[NodeID]nodeJSON, len(g.nodes)),
		RootEClasses: g.roots,
	}
	for id, n := range g.nodes {
		cost := n.Cost
		children := n.Children
		if children == nil {
			children = []NodeID{}
		}
		raw.Nodes[id] = nodeJSON{Op: n.Op, Children: children, EClass: n.Class, Cost: &cost}
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(raw)
}

// ReadResult decodes the result interchange format.
func ReadResult(r io.Reader) (*Result, error) {
	res := NewResult()
	if err := json.NewDecoder(r).Decode(res); err != nil {
		return nil, &FormatError{Err: err}
	}
	return res, nil
}

// LoadResult reads a result interchange file. Errors carry the path.
func LoadResult(path string) (*Result, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, &FormatError{Path: path, Err: err}
	}
	defer f.Close()
	res, err := ReadResult(bufio.NewReader(f))
	if err != nil {
		if fe, ok := err.(*FormatError); ok {
			fe.Path = path
			return nil, fe
		}
		return nil, &FormatError{Path: path, Err: err}
	}
	return res, nil
}

// WriteResult encodes r as indented JSON.
func WriteResult(w io.Writer, r *Result) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(r)
}

// SaveResult writes r to path, creating or truncating the file.
func SaveResult(path string, r *Result) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating result file: %w", err)
	}
	if err := WriteResult(f, r); err != nil {
		f.Close()
		return fmt.Errorf("writing result file %s: %w", path, err)
	}
	return f.Close()
}
