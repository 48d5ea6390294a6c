// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package circuit converts an extraction back into a flattened boolean
// netlist in the eqn format read by ABC, and derives the graph feature
// files consumed by the ML cost service.
//
// Operators follow the e-graph's boolean language: "*" AND, "+" OR, "!"
// NOT, "0"/"1" constants, and "&" bundling several outputs at a root.
package circuit

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/AleutianAI/egx/services/extract/egraph"
)

// BundleOp marks a root node whose children are separate outputs.
const BundleOp = "&"

// WirePrefix prefixes the names of shared intermediate signals.
const WirePrefix = "new_n_"

var (
	// ErrOutputCount is returned when explicit output names do not match
	// the number of outputs.
	ErrOutputCount = errors.New("output name count mismatch")

	// ErrNoOutOrder is returned when a reference eqn has no OUTORDER line.
	ErrNoOutOrder = errors.New("no OUTORDER line")
)

// Assignment is one "name = expr;" line.
type Assignment struct {
	Name string
	Expr string
}

// Netlist is a rendered extraction.
type Netlist struct {
	Inputs  []string
	Outputs []Assignment
	Wires   []Assignment
}

// Options controls rendering.
type Options struct {
	// OutputNames replaces the default p[i] names. Its length must match
	// the number of outputs.
	OutputNames []string
}

type builder struct {
	g     *egraph.Graph
	res   *egraph.Result
	refs  map[egraph.ClassID]int
	wires map[egraph.ClassID]string
	exprs map[egraph.ClassID]string
	ins   map[string]bool
}

// Build renders res as a netlist.
//
// # Description
//
// Outputs are the root classes, with "&" bundles flattened. A non-leaf
// class referenced more than once becomes a named wire new_n_<class>
// emitted once; classes whose sanitized ids clash get numeric suffixes. Leaves other than the constants are inputs.
//
// # Outputs
//
//   - *Netlist: The rendered netlist.
//   - error: A validation error if res is cyclic or incomplete, or
//     ErrOutputCount.
func Build(g *egraph.Graph, roots []egraph.ClassID, res *egraph.Result, opts Options) (*Netlist, error) {
	if err := res.Validate(g, roots); err != nil {
		return nil, err
	}
	b := &builder{
		g:     g,
		res:   res,
		refs:  make(map[egraph.ClassID]int),
		wires: make(map[egraph.ClassID]string),
		exprs: make(map[egraph.ClassID]string),
		ins:   make(map[string]bool),
	}

	var outputs []egraph.ClassID
	for _, root := range roots {
		outputs = b.flatten(root, outputs)
	}
	if opts.OutputNames != nil && len(opts.OutputNames) != len(outputs) {
		return nil, fmt.Errorf("%w: %d names for %d outputs", ErrOutputCount, len(opts.OutputNames), len(outputs))
	}

	seen := make(map[egraph.ClassID]bool)
	for _, out := range outputs {
		b.refs[out]++
		b.count(out, seen)
	}
	var shared []egraph.ClassID
	for cid := range seen {
		if !b.node(cid).IsLeaf() && b.refs[cid] > 1 {
			shared = append(shared, cid)
		}
	}
	egraph.SortClassIDs(shared)
	taken := make(map[string]bool, len(shared))
	for _, cid := range shared {
		b.wires[cid] = wireName(string(cid), taken)
	}

	nl := &Netlist{}
	for i, out := range outputs {
		name := fmt.Sprintf("p[%d]", i)
		if opts.OutputNames != nil {
			name = opts.OutputNames[i]
		}
		nl.Outputs = append(nl.Outputs, Assignment{Name: name, Expr: b.ref(out)})
	}

	for _, cid := range shared {
		nl.Wires = append(nl.Wires, Assignment{Name: b.wires[cid], Expr: b.expr(cid)})
	}

	for in := range b.ins {
		nl.Inputs = append(nl.Inputs, in)
	}
	sort.Strings(nl.Inputs)
	return nl, nil
}

func (b *builder) node(cid egraph.ClassID) *egraph.Node {
	nid, _ := b.res.Choice(cid)
	n, _ := b.g.Node(nid)
	return n
}

func (b *builder) flatten(cid egraph.ClassID, acc []egraph.ClassID) []egraph.ClassID {
	n := b.node(cid)
	if n.Op != BundleOp {
		return append(acc, cid)
	}
	for _, child := range n.Children {
		acc = b.flatten(b.g.ClassOf(child), acc)
	}
	return acc
}

// count tallies references to each class below cid, visiting every class
// once.
func (b *builder) count(cid egraph.ClassID, seen map[egraph.ClassID]bool) {
	if seen[cid] {
		return
	}
	seen[cid] = true
	n := b.node(cid)
	if n.IsLeaf() {
		if !isConstant(n.Op) {
			b.ins[n.Op] = true
		}
		return
	}
	for _, child := range n.Children {
		cc := b.g.ClassOf(child)
		b.refs[cc]++
		b.count(cc, seen)
	}
}

// ref returns how a parent refers to cid: a wire name for shared non-leaf
// classes, the inline expression otherwise.
func (b *builder) ref(cid egraph.ClassID) string {
	if name, ok := b.wires[cid]; ok {
		return name
	}
	return b.expr(cid)
}

func (b *builder) expr(cid egraph.ClassID) string {
	if e, ok := b.exprs[cid]; ok {
		return e
	}
	n := b.node(cid)
	var e string
	switch len(n.Children) {
	case 0:
		e = n.Op
	case 1:
		e = fmt.Sprintf("%s(%s)", n.Op, b.ref(b.g.ClassOf(n.Children[0])))
	default:
		e = b.ref(b.g.ClassOf(n.Children[0]))
		for _, child := range n.Children[1:] {
			e = fmt.Sprintf("(%s %s %s)", e, n.Op, b.ref(b.g.ClassOf(child)))
		}
	}
	b.exprs[cid] = e
	return e
}

func isConstant(op string) bool {
	return op == "0" || op == "1"
}

// wireName returns new_n_<id> with id sanitized, adding a numeric suffix
// when another class already took the name.
func wireName(id string, taken map[string]bool) string {
	base := WirePrefix + sanitize(id)
	name := base
	for i := 1; taken[name]; i++ {
		name = fmt.Sprintf("%s_%d", base, i)
	}
	taken[name] = true
	return name
}

func sanitize(id string) string {
	var sb strings.Builder
	for _, r := range id {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_':
			sb.WriteRune(r)
		default:
			sb.WriteByte('_')
		}
	}
	return sb.String()
}

// WriteEqn writes the netlist in eqn syntax.
func (nl *Netlist) WriteEqn(w io.Writer) error {
	bw := bufio.NewWriter(w)
	names := make([]string, len(nl.Outputs))
	for i, o := range nl.Outputs {
		names[i] = o.Name
	}
	fmt.Fprintf(bw, "INORDER = %s;\n", strings.Join(nl.Inputs, " "))
	fmt.Fprintf(bw, "OUTORDER = %s;\n", strings.Join(names, " "))
	for _, o := range nl.Outputs {
		fmt.Fprintf(bw, "%s = %s;\n", o.Name, o.Expr)
	}
	for _, wire := range nl.Wires {
		fmt.Fprintf(bw, "%s = %s;\n", wire.Name, wire.Expr)
	}
	return bw.Flush()
}

// String renders the netlist in eqn syntax.
func (nl *Netlist) String() string {
	var sb strings.Builder
	_ = nl.WriteEqn(&sb)
	return sb.String()
}

// ReadOutputOrder returns the names listed on the OUTORDER line of an eqn
// file. The statement may span several lines up to its semicolon.
func ReadOutputOrder(r io.Reader) ([]string, error) {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	var stmt strings.Builder
	collecting := false
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if !collecting {
			if !strings.HasPrefix(line, "OUTORDER") {
				continue
			}
			collecting = true
			line = strings.TrimSpace(strings.TrimPrefix(line, "OUTORDER"))
			line = strings.TrimSpace(strings.TrimPrefix(line, "="))
		}
		if i := strings.IndexByte(line, ';'); i >= 0 {
			stmt.WriteString(line[:i])
			return strings.Fields(stmt.String()), nil
		}
		stmt.WriteString(line)
		stmt.WriteByte(' ')
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	if collecting {
		return strings.Fields(stmt.String()), nil
	}
	return nil, ErrNoOutOrder
}
