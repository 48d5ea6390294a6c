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

import (
	"context"
	"log/slog"
	"math"
	"math/rand/v2"
	"time"

	"github.com/AleutianAI/egx/services/extract/egraph"
)

// Registry names of the incremental extractors.
const (
	IncrementalName       = "incremental"
	RandomIncrementalName = "random-incremental"
)

// DefaultEvictFraction is the share of decided classes evicted by Resume.
const DefaultEvictFraction = 0.1

// PassOptions tunes one propagation pass.
type PassOptions struct {
	// RandomProb is the probability of skipping a strict improvement and
	// of taking an equal-cost alternative. Ignored when Rand is nil.
	RandomProb float64

	// Rand is the pass's private generator. Nil means deterministic.
	Rand *rand.Rand

	// EvictFraction is the share of decided classes Resume evicts.
	EvictFraction float64

	Budget BudgetConfig
}

// PassStats summarizes one pass.
type PassStats struct {
	Visits      int64
	Commits     int
	Evicted     int
	ExhaustedBy string
}

// Propagator runs work-queue propagation over one graph.
//
// Description:
//
//	Holds the graph, its parent index and the resolved cost function. A
//	pass pops a node, recomputes its cost from the current child costs,
//	and on improvement commits it and enqueues the parents of its class.
//
// Thread Safety: Safe for concurrent use. Every pass owns its costs,
// result and queue; the graph and index are only read.
type Propagator struct {
	g      *egraph.Graph
	idx    *Index
	costFn egraph.CostFunc
}

// NewPropagator builds the parent index and resolves costFunction.
//
// Outputs:
//   - error: egraph.ErrUnknownCostFunction for an unknown name.
func NewPropagator(g *egraph.Graph, costFunction string) (*Propagator, error) {
	costFn, err := egraph.CostFunctionByName(costFunction)
	if err != nil {
		return nil, err
	}
	return &Propagator{g: g, idx: BuildIndex(g), costFn: costFn}, nil
}

// Graph returns the propagator's graph.
func (p *Propagator) Graph() *egraph.Graph {
	return p.g
}

// pass is the private state of one propagation run.
type pass struct {
	p      *Propagator
	costs  egraph.Costs
	result *egraph.Result
	queue  *UniqueQueue
	budget *Budget
	rng    *rand.Rand
	prob   float64

	// guard rejects commits that would close a cycle through the current
	// choices. Needed once costs may be stale.
	guard bool
	stats PassStats
}

func (p *Propagator) newPass(ctx context.Context, opts PassOptions) *pass {
	ps := &pass{
		p:      p,
		costs:  make(egraph.Costs, p.g.NumClasses()),
		result: egraph.NewResult(),
		queue:  NewUniqueQueue(p.g.NumNodes()),
		budget: NewBudget(ctx, opts.Budget),
		rng:    opts.Rand,
	}
	if ps.rng != nil {
		ps.prob = opts.RandomProb
	}
	return ps
}

// Extract runs a fresh pass seeded with every leaf node.
func (p *Propagator) Extract(ctx context.Context, opts PassOptions) (*egraph.Result, egraph.Costs, PassStats) {
	ps := p.newPass(ctx, opts)
	for _, leaf := range p.idx.Leaves() {
		ps.queue.Insert(leaf)
	}
	ps.run()
	return ps.result, ps.costs, ps.stats
}

// Resume derives a neighbor of seed.
//
// Description:
//
//	Per-class costs are taken from the seed's choices. A random sample of
//	EvictFraction of the decided classes loses its cost; the nodes of each
//	evicted class and the parents of that class are enqueued in shuffled
//	order, and propagation re-runs. Untouched classes keep their choice
//	unless a propagated change offers a strictly better alternative, or an
//	equal-cost one with probability RandomProb.
//
// Inputs:
//   - seed: A valid result. It is cloned, never mutated.
//   - opts: Rand must be non-nil; it drives eviction and ordering.
//
// Outputs:
//   - *egraph.Result: The neighbor. Not validated; callers check cycles.
//   - PassStats: Visit and eviction counts.
//   - error: ErrNilSeed.
func (p *Propagator) Resume(ctx context.Context, seed *egraph.Result, opts PassOptions) (*egraph.Result, PassStats, error) {
	if seed == nil {
		return nil, PassStats{}, ErrNilSeed
	}
	if opts.Rand == nil {
		opts.Rand = rand.New(rand.NewPCG(0, 0))
	}
	ps := p.newPass(ctx, opts)
	ps.result = seed.Clone()
	ps.guard = true
	ps.seedCosts()

	decided := make([]egraph.ClassID, 0, len(ps.costs))
	for _, cid := range p.g.ClassIDs() {
		if c, ok := ps.costs[cid]; ok && !c.IsInf() {
			decided = append(decided, cid)
		}
	}
	fraction := opts.EvictFraction
	if fraction <= 0 {
		fraction = DefaultEvictFraction
	}
	k := int(math.Ceil(fraction * float64(len(decided))))
	if k > len(decided) {
		k = len(decided)
	}
	for i := 0; i < k; i++ {
		j := i + ps.rng.IntN(len(decided)-i)
		decided[i], decided[j] = decided[j], decided[i]
		evicted := decided[i]
		delete(ps.costs, evicted)
		class, _ := p.g.Class(evicted)
		for _, nid := range class.Nodes {
			ps.queue.Insert(nid)
		}
		for _, parent := range p.idx.Parents(evicted) {
			ps.queue.Insert(parent)
		}
	}
	ps.stats.Evicted = k
	ps.queue.Shuffle(ps.rng.Shuffle)
	ps.run()
	return ps.result, ps.stats, nil
}

// seedCosts evaluates every chosen class bottom-up through the current
// choices. Classes on a cycle or with a missing choice stay unknown.
func (ps *pass) seedCosts() {
	g := ps.p.g
	onStack := make(map[egraph.ClassID]bool)
	var eval func(cid egraph.ClassID) egraph.Cost
	eval = func(cid egraph.ClassID) egraph.Cost {
		if c, ok := ps.costs[cid]; ok {
			return c
		}
		if onStack[cid] {
			return egraph.Infinity
		}
		nid, ok := ps.result.Choice(cid)
		if !ok {
			return egraph.Infinity
		}
		n, ok := g.Node(nid)
		if !ok {
			return egraph.Infinity
		}
		onStack[cid] = true
		for _, child := range n.Children {
			eval(g.ClassOf(child))
		}
		delete(onStack, cid)
		c := ps.p.costFn(g, n, ps.costs)
		if !c.IsInf() {
			ps.costs[cid] = c
		}
		return c
	}
	for _, cid := range ps.result.Classes() {
		eval(cid)
	}
}

func (ps *pass) run() {
	g := ps.p.g
	for {
		nid, ok := ps.queue.Pop()
		if !ok {
			break
		}
		if ps.budget.Visit() != nil {
			break
		}
		n, _ := g.Node(nid)
		ps.consider(n)
	}
	ps.stats.Visits = ps.budget.Visits()
	ps.stats.ExhaustedBy = ps.budget.ExhaustedBy()
}

// consider applies the acceptance rule to one node.
//
//   - unknown class cost: take any finite cost
//   - strictly better: take it, skipped with probability prob
//   - equal cost, random pass: swap with probability prob, no propagation
//   - equal cost, deterministic pass: swap when n has the lower node id
func (ps *pass) consider(n *egraph.Node) {
	g := ps.p.g
	cid := n.Class
	c := ps.p.costFn(g, n, ps.costs)
	if c.IsInf() {
		return
	}
	prev := ps.costs.Get(cid)
	switch {
	case prev.IsInf():
		ps.commit(n, c)
	case c < prev:
		if ps.prob > 0 && ps.rng.Float64() < ps.prob {
			return
		}
		ps.commit(n, c)
	case c == prev && ps.prob > 0:
		if cur, ok := ps.result.Choice(cid); ok && cur == n.ID {
			return
		}
		if ps.rng.Float64() < ps.prob && !closesCycle(g, ps.result, n) {
			ps.result.Choose(cid, n.ID)
			ps.stats.Commits++
		}
	case c == prev:
		if preferTie(g, ps.result, n) {
			ps.result.Choose(cid, n.ID)
			ps.stats.Commits++
		}
	}
}

func (ps *pass) commit(n *egraph.Node, c egraph.Cost) {
	if ps.guard && closesCycle(ps.p.g, ps.result, n) {
		return
	}
	ps.costs[n.Class] = c
	ps.result.Choose(n.Class, n.ID)
	ps.stats.Commits++
	for _, parent := range ps.p.idx.Parents(n.Class) {
		ps.queue.Insert(parent)
	}
}

// preferTie reports whether n, costing the same as its class's current
// choice, should replace it: n must sort first by node id and must not
// close a cycle. FixedPoint and Incremental share this rule so that both
// settle on the same node for every class.
func preferTie(g *egraph.Graph, res *egraph.Result, n *egraph.Node) bool {
	cur, ok := res.Choice(n.Class)
	if !ok || !egraph.LessNodeID(n.ID, cur) {
		return false
	}
	return !closesCycle(g, res, n)
}

// closesCycle reports whether choosing n for its class would let the
// current choices reach that class again from n's children.
func closesCycle(g *egraph.Graph, res *egraph.Result, n *egraph.Node) bool {
	target := n.Class
	seen := make(map[egraph.ClassID]bool)
	stack := make([]egraph.ClassID, 0, len(n.Children))
	for _, child := range n.Children {
		stack = append(stack, g.ClassOf(child))
	}
	for len(stack) > 0 {
		cid := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if cid == target {
			return true
		}
		if seen[cid] {
			continue
		}
		seen[cid] = true
		nid, ok := res.Choice(cid)
		if !ok {
			continue
		}
		child, _ := g.Node(nid)
		for _, gc := range child.Children {
			stack = append(stack, g.ClassOf(gc))
		}
	}
	return false
}

// Incremental is the work-queue extractor.
//
// With Request.RandomProb = 0 it is deterministic and reaches the same
// fixed point as FixedPoint. A positive RandomProb randomizes acceptance
// from a generator seeded with Request.Seed.
type Incremental struct {
	name   string
	random bool
	logger *slog.Logger
}

// NewIncremental creates the deterministic incremental extractor. It
// ignores Request.RandomProb.
func NewIncremental() *Incremental {
	return &Incremental{name: IncrementalName, logger: slog.Default()}
}

// NewRandomIncremental creates the incremental extractor that honors
// Request.RandomProb.
func NewRandomIncremental() *Incremental {
	return &Incremental{name: RandomIncrementalName, random: true, logger: slog.Default()}
}

// WithIncrementalLogger sets the logger.
func (e *Incremental) WithIncrementalLogger(logger *slog.Logger) *Incremental {
	e.logger = logger
	return e
}

// Extract implements Extractor.
func (e *Incremental) Extract(ctx context.Context, g *egraph.Graph, roots []egraph.ClassID, req Request) (*egraph.Result, error) {
	p, err := NewPropagator(g, req.CostFunction)
	if err != nil {
		return nil, err
	}
	return e.ExtractWith(ctx, p, roots, req)
}

// ExtractWith runs a fresh pass on a prepared propagator, reusing its
// index.
func (e *Incremental) ExtractWith(ctx context.Context, p *Propagator, roots []egraph.ClassID, req Request) (*egraph.Result, error) {
	ctx, span := startExtractSpan(ctx, "Incremental", p.g.NumClasses(), req)
	start := time.Now()

	opts := PassOptions{Budget: req.Budget}
	if e.random && req.RandomProb > 0 {
		opts.Rand = rand.New(rand.NewPCG(req.Seed, req.Seed^0x5851f42d4c957f2d))
		opts.RandomProb = req.RandomProb
	}
	res, costs, stats := p.Extract(ctx, opts)

	final, err := finish(e.name, p.g, roots, res, costs, stats)
	RecordExtraction(ctx, e.name, time.Since(start), stats.Visits, err == nil)
	endExtractSpan(span, stats, err)
	if err != nil {
		return nil, err
	}
	e.logger.Debug("incremental extraction complete",
		slog.String("extractor", e.name),
		slog.Int64("visits", stats.Visits),
		slog.Int("commits", stats.Commits),
		slog.Duration("elapsed", time.Since(start)),
	)
	return final, nil
}
