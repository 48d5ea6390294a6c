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
	"encoding/json"
	"fmt"
)

// Result is a selection of one node per class.
//
// Description:
//
//	A Result is mutated only through Choose. Once returned by an extractor
//	it is treated as an immutable value; use Clone to derive a seed for
//	further search.
//
// Thread Safety: Not safe for concurrent mutation. Concurrent reads are
// safe.
type Result struct {
	choices map[ClassID]NodeID
}

// NewResult creates an empty result.
func NewResult() *Result {
	return &Result{choices: make(map[ClassID]NodeID)}
}

// Choose sets the chosen node for class, replacing any existing choice.
func (r *Result) Choose(class ClassID, node NodeID) {
	r.choices[class] = node
}

// Choice returns the chosen node for class.
func (r *Result) Choice(class ClassID) (NodeID, bool) {
	n, ok := r.choices[class]
	return n, ok
}

// Len returns the number of classes with a choice.
func (r *Result) Len() int {
	return len(r.choices)
}

// Classes returns the classes with a choice, sorted.
func (r *Result) Classes() []ClassID {
	ids := make([]ClassID, 0, len(r.choices))
	for id := range r.choices {
		ids = append(ids, id)
	}
	sortClassIDs(ids)
	return ids
}

// Clone returns an independent copy.
func (r *Result) Clone() *Result {
	out := &Result{choices: make(map[ClassID]NodeID, len(r.choices))}
	for k, v := range r.choices {
		out.choices[k] = v
	}
	return out
}

// Equal reports whether both results hold identical choices.
func (r *Result) Equal(other *Result) bool {
	if len(r.choices) != len(other.choices) {
		return false
	}
	for k, v := range r.choices {
		if ov, ok := other.choices[k]; !ok || ov != v {
			return false
		}
	}
	return true
}

// chosen returns the chosen node of class, or nil when there is none or
// the choice does not exist in g.
func (r *Result) chosen(g *Graph, class ClassID) *Node {
	nid, ok := r.choices[class]
	if !ok {
		return nil
	}
	n, ok := g.nodes[nid]
	if !ok {
		return nil
	}
	return n
}

// TreeCost is the cost of the fully unfolded extraction: shared subtrees
// are counted once per occurrence. Returns Infinity if a reachable class
// has no choice or the choices are cyclic.
func (r *Result) TreeCost(g *Graph, roots []ClassID) Cost {
	memo := make(map[ClassID]Cost)
	inProgress := make(map[ClassID]bool)

	var visit func(class ClassID) Cost
	visit = func(class ClassID) Cost {
		if c, ok := memo[class]; ok {
			return c
		}
		if inProgress[class] {
			return Infinity
		}
		n := r.chosen(g, class)
		if n == nil {
			return Infinity
		}
		inProgress[class] = true
		total := n.Cost
		for _, child := range n.Children {
			total += visit(g.ClassOf(child))
		}
		delete(inProgress, class)
		memo[class] = total
		return total
	}

	var total Cost
	for _, root := range roots {
		total += visit(root)
	}
	return total
}

// DAGCost sums each reachable class's chosen node cost exactly once.
// Returns Infinity if a reachable class has no choice.
func (r *Result) DAGCost(g *Graph, roots []ClassID) Cost {
	cost, _ := r.DAGResult(g, roots)
	return cost
}

// DAGResult computes the DAG cost and also returns the result restricted
// to the classes reachable from roots.
//
// Outputs:
//   - Cost: Sum of chosen node costs over reachable classes, or Infinity.
//   - *Result: The reachable sub-result. Never nil.
func (r *Result) DAGResult(g *Graph, roots []ClassID) (Cost, *Result) {
	sub := NewResult()
	var total Cost
	stack := make([]ClassID, 0, len(roots))
	for i := len(roots) - 1; i >= 0; i-- {
		stack = append(stack, roots[i])
	}
	for len(stack) > 0 {
		class := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if _, seen := sub.choices[class]; seen {
			continue
		}
		n := r.chosen(g, class)
		if n == nil {
			total = Infinity
			continue
		}
		sub.choices[class] = n.ID
		total += n.Cost
		for i := len(n.Children) - 1; i >= 0; i-- {
			stack = append(stack, g.ClassOf(n.Children[i]))
		}
	}
	return total, sub
}

type visitState uint8

const (
	unvisited visitState = iota
	inProgress
	done
)

// FindCycles walks the choices depth-first from every root with
// three-state marking. A class reached while still in progress closes a
// cycle and is reported. The returned slice is empty for a valid result.
// Classes without a choice are treated as done; see Unresolved.
func (r *Result) FindCycles(g *Graph, roots []ClassID) []ClassID {
	state := make(map[ClassID]visitState)
	var cycles []ClassID
	reported := make(map[ClassID]bool)

	var visit func(class ClassID)
	visit = func(class ClassID) {
		switch state[class] {
		case done:
			return
		case inProgress:
			if !reported[class] {
				reported[class] = true
				cycles = append(cycles, class)
			}
			return
		}
		n := r.chosen(g, class)
		if n == nil {
			state[class] = done
			return
		}
		state[class] = inProgress
		for _, child := range n.Children {
			visit(g.ClassOf(child))
		}
		state[class] = done
	}

	for _, root := range roots {
		visit(root)
	}
	return cycles
}

// Unresolved returns the classes reachable from roots that have no valid
// choice, sorted.
func (r *Result) Unresolved(g *Graph, roots []ClassID) []ClassID {
	seen := make(map[ClassID]bool)
	var missing []ClassID
	stack := append([]ClassID(nil), roots...)
	for len(stack) > 0 {
		class := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if seen[class] {
			continue
		}
		seen[class] = true
		n := r.chosen(g, class)
		if n == nil {
			missing = append(missing, class)
			continue
		}
		for _, child := range n.Children {
			stack = append(stack, g.ClassOf(child))
		}
	}
	sortClassIDs(missing)
	return missing
}

// Validate checks that every reachable class is resolved and the choices
// are acyclic.
//
// Outputs:
//   - error: nil, or an error wrapping ErrUnresolvedChoice or
//     ErrCyclicChoice naming the offending classes.
func (r *Result) Validate(g *Graph, roots []ClassID) error {
	if missing := r.Unresolved(g, roots); len(missing) > 0 {
		return fmt.Errorf("%w: %v", ErrUnresolvedChoice, missing)
	}
	if cycles := r.FindCycles(g, roots); len(cycles) > 0 {
		return fmt.Errorf("%w: %v", ErrCyclicChoice, cycles)
	}
	return nil
}

// Fingerprint hashes the choices reachable from roots. Two results that
// induce the same extraction share a fingerprint even if they differ in
// unreachable classes.
func (r *Result) Fingerprint(g *Graph, roots []ClassID) string {
	_, sub := r.DAGResult(g, roots)
	classes := sub.Classes()
	h := sha256.New()
	for _, c := range classes {
		h.Write([]byte(c))
		h.Write([]byte{'='})
		h.Write([]byte(sub.choices[c]))
		h.Write([]byte{'\n'})
	}
	return hex.EncodeToString(h.Sum(nil)[:16])
}

type resultJSON struct {
	Choices map[ClassID]NodeID `json:"choices"`
}

// MarshalJSON encodes {"choices": {...}} with keys sorted.
func (r *Result) MarshalJSON() ([]byte, error) {
	return json.Marshal(resultJSON{Choices: r.choices})
}

// UnmarshalJSON decodes {"choices": {...}}.
func (r *Result) UnmarshalJSON(data []byte) error {
	var raw resultJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	if raw.Choices == nil {
		raw.Choices = make(map[ClassID]NodeID)
	}
	r.choices = raw.Choices
	return nil
}
