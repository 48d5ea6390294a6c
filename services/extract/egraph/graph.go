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
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"math"
	"sort"
	"strconv"
)

// ClassID identifies an equivalence class.
type ClassID string

// NodeID identifies one representation inside a class.
type NodeID string

// Node is one e-node.
//
// Children reference nodes, not classes. The class owning each child node
// is the logical dependency.
type Node struct {
	ID       NodeID
	Op       string
	Children []NodeID
	Class    ClassID
	Cost     Cost
}

// IsLeaf reports whether the node has no children.
func (n *Node) IsLeaf() bool {
	return len(n.Children) == 0
}

// Class is an equivalence class. Nodes is never empty once the graph is
// frozen.
type Class struct {
	ID    ClassID
	Nodes []NodeID
}

// Graph is an arena of classes and nodes addressed by id.
//
// Description:
//
//	Nodes and classes are stored in flat maps with deterministic iteration
//	orders computed at Freeze time. Node-level cycles are allowed; only an
//	extraction must be acyclic.
//
// Thread Safety: Safe for concurrent reads after Freeze().
type Graph struct {
	nodes   map[NodeID]*Node
	classes map[ClassID]*Class
	roots   []ClassID

	classOrder []ClassID
	nodeOrder  []NodeID

	fingerprint string
	frozen      bool
}

// New creates an empty, unfrozen graph.
func New() *Graph {
	return &Graph{
		nodes:   make(map[NodeID]*Node),
		classes: make(map[ClassID]*Class),
	}
}

// AddNode adds a node and registers it with its owning class.
//
// Inputs:
//   - n: The node. The graph takes ownership; callers must not mutate it.
//
// Outputs:
//   - error: ErrGraphFrozen, ErrDuplicateNode or ErrInvalidCost.
func (g *Graph) AddNode(n *Node) error {
	if g.frozen {
		return ErrGraphFrozen
	}
	if _, exists := g.nodes[n.ID]; exists {
		return fmt.Errorf("%w: %s", ErrDuplicateNode, n.ID)
	}
	if math.IsNaN(float64(n.Cost)) || n.Cost < 0 || n.Cost.IsInf() {
		return fmt.Errorf("%w: node %s cost %v", ErrInvalidCost, n.ID, float64(n.Cost))
	}
	g.nodes[n.ID] = n
	class, ok := g.classes[n.Class]
	if !ok {
		class = &Class{ID: n.Class}
		g.classes[n.Class] = class
	}
	class.Nodes = append(class.Nodes, n.ID)
	return nil
}

// SetRoots records the ordered root classes.
func (g *Graph) SetRoots(roots ...ClassID) error {
	if g.frozen {
		return ErrGraphFrozen
	}
	g.roots = append(g.roots[:0], roots...)
	return nil
}

// Freeze validates references and makes the graph read-only.
//
// Description:
//
//	Checks that every child references an existing node and every root
//	references an existing class, then sorts class members and computes
//	the iteration orders and the content fingerprint.
//
// Outputs:
//   - error: ErrUnknownNode, ErrUnknownClass or ErrNoRoots. The graph stays
//     unfrozen on error.
func (g *Graph) Freeze() error {
	if g.frozen {
		return nil
	}
	if len(g.roots) == 0 {
		return ErrNoRoots
	}
	for _, n := range g.nodes {
		for _, child := range n.Children {
			if _, ok := g.nodes[child]; !ok {
				return fmt.Errorf("%w: %s (child of %s)", ErrUnknownNode, child, n.ID)
			}
		}
	}
	for _, root := range g.roots {
		if _, ok := g.classes[root]; !ok {
			return fmt.Errorf("%w: root %s", ErrUnknownClass, root)
		}
	}

	g.classOrder = make([]ClassID, 0, len(g.classes))
	for id, class := range g.classes {
		sortNodeIDs(class.Nodes)
		g.classOrder = append(g.classOrder, id)
	}
	sortClassIDs(g.classOrder)

	g.nodeOrder = make([]NodeID, 0, len(g.nodes))
	for _, cid := range g.classOrder {
		g.nodeOrder = append(g.nodeOrder, g.classes[cid].Nodes...)
	}

	g.fingerprint = g.computeFingerprint()
	g.frozen = true
	return nil
}

// Frozen reports whether Freeze has completed.
func (g *Graph) Frozen() bool {
	return g.frozen
}

// Node returns the node with the given id.
func (g *Graph) Node(id NodeID) (*Node, bool) {
	n, ok := g.nodes[id]
	return n, ok
}

// Class returns the class with the given id.
func (g *Graph) Class(id ClassID) (*Class, bool) {
	c, ok := g.classes[id]
	return c, ok
}

// ClassOf returns the class owning node id, or "" if the node is unknown.
func (g *Graph) ClassOf(id NodeID) ClassID {
	if n, ok := g.nodes[id]; ok {
		return n.Class
	}
	return ""
}

// ClassIDs returns all class ids in deterministic order. Callers must not
// modify the returned slice.
func (g *Graph) ClassIDs() []ClassID {
	return g.classOrder
}

// NodeIDs returns all node ids grouped by class in deterministic order.
// Callers must not modify the returned slice.
func (g *Graph) NodeIDs() []NodeID {
	return g.nodeOrder
}

// Roots returns the root classes. Callers must not modify the returned
// slice.
func (g *Graph) Roots() []ClassID {
	return g.roots
}

// NumClasses returns the number of classes.
func (g *Graph) NumClasses() int {
	return len(g.classes)
}

// NumNodes returns the number of nodes.
func (g *Graph) NumNodes() int {
	return len(g.nodes)
}

// Fingerprint returns a hex digest of the graph content. Empty until
// frozen.
func (g *Graph) Fingerprint() string {
	return g.fingerprint
}

func (g *Graph) computeFingerprint() string {
	h := sha256.New()
	for _, nid := range g.nodeOrder {
		n := g.nodes[nid]
		h.Write([]byte(n.ID))
		h.Write([]byte{0})
		h.Write([]byte(n.Op))
		h.Write([]byte{0})
		h.Write([]byte(n.Class))
		h.Write([]byte{0})
		h.Write([]byte(strconv.FormatFloat(float64(n.Cost), 'g', -1, 64)))
		for _, child := range n.Children {
			h.Write([]byte{1})
			h.Write([]byte(child))
		}
		h.Write([]byte{'\n'})
	}
	for _, root := range g.roots {
		h.Write([]byte(root))
		h.Write([]byte{2})
	}
	return hex.EncodeToString(h.Sum(nil)[:16])
}

// lessID orders ids numerically when both parse as integers and
// lexicographically otherwise, so "2" sorts before "10".
func lessID(a, b string) bool {
	ai, aerr := strconv.ParseInt(a, 10, 64)
	bi, berr := strconv.ParseInt(b, 10, 64)
	switch {
	case aerr == nil && berr == nil:
		return ai < bi
	case aerr == nil:
		return true
	case berr == nil:
		return false
	}
	if len(a) != len(b) {
		return len(a) < len(b)
	}
	return a < b
}

func sortClassIDs(ids []ClassID) {
	sort.Slice(ids, func(i, j int) bool { return lessID(string(ids[i]), string(ids[j])) })
}

func sortNodeIDs(ids []NodeID) {
	sort.Slice(ids, func(i, j int) bool { return lessID(string(ids[i]), string(ids[j])) })
}

// SortClassIDs sorts ids in the graph's canonical order.
func SortClassIDs(ids []ClassID) {
	sortClassIDs(ids)
}

// LessNodeID reports whether a sorts before b in the graph's canonical
// order. Extractors use it to break cost ties.
func LessNodeID(a, b NodeID) bool {
	return lessID(string(a), string(b))
}
