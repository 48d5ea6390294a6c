// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package anneal

import (
	"context"
	"log/slog"
	"math"
	"math/rand/v2"
	"sort"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/AleutianAI/egx/services/extract/egraph"
	"github.com/AleutianAI/egx/services/extract/extractor"
	"github.com/AleutianAI/egx/services/extract/oracle"
)

// Name is the registered name of the search extractor.
const Name = "search"

// IterationStats summarizes one annealing iteration.
type IterationStats struct {
	Iteration   int         `json:"iteration"`
	Temperature float64     `json:"temperature"`
	Cooling     string      `json:"cooling"`
	Generated   int         `json:"generated"`
	Absent      int         `json:"absent"`
	Cyclic      int         `json:"cyclic"`
	Duplicates  int         `json:"duplicates"`
	Failed      int         `json:"failed"`
	Scored      int         `json:"scored"`
	Accepted    bool        `json:"accepted"`
	Current     egraph.Cost `json:"current"`
	Best        egraph.Cost `json:"best"`
}

// Report is the full outcome of a search run.
type Report struct {
	Result     *egraph.Result
	Cost       egraph.Cost
	BaseCost   egraph.Cost
	FromBase   bool
	Phase      Phase
	Iterations []IterationStats
}

// scored is an evaluated, valid candidate.
type scored struct {
	result      *egraph.Result
	fingerprint string
	cost        egraph.Cost
}

// Extractor is the simulated-annealing search extractor.
//
// Description:
//
//	Runs GenerateBase, Evaluate, Anneal and Done in order. The base is the
//	deterministic incremental extraction scored by the oracle. Each anneal
//	iteration fans out one resumable incremental pass per sample, seeded
//	from the current result with its own random stream, discards cyclic
//	and duplicate neighbors, scores the rest in one oracle batch, then
//	selects and accepts a candidate. The best result ever scored is
//	returned only when it beats the base.
//
// Thread Safety: Safe for concurrent use. A run owns all mutable state.
type Extractor struct {
	config   Config
	oracle   oracle.Oracle
	logger   *slog.Logger
	neighbor neighborFunc
}

// New creates a search extractor. A nil oracle scores by DAG cost.
func New(config Config, o oracle.Oracle) *Extractor {
	if o == nil {
		o = oracle.DAGCost{}
	}
	if config.Workers < 1 {
		config.Workers = 1
	}
	if config.Samples < 1 {
		config.Samples = 1
	}
	return &Extractor{
		config:   config,
		oracle:   o,
		logger:   slog.Default(),
		neighbor: resumeNeighbor,
	}
}

// WithLogger sets the logger.
func (e *Extractor) WithLogger(logger *slog.Logger) *Extractor {
	if logger != nil {
		e.logger = logger
	}
	return e
}

// Extract implements extractor.Extractor with Config.Samples candidates per
// iteration.
func (e *Extractor) Extract(ctx context.Context, g *egraph.Graph, roots []egraph.ClassID, req extractor.Request) (*egraph.Result, error) {
	return e.ExtractParallel(ctx, g, roots, req, e.config.Samples)
}

// ExtractParallel implements extractor.ParallelExtractor.
func (e *Extractor) ExtractParallel(ctx context.Context, g *egraph.Graph, roots []egraph.ClassID, req extractor.Request, numSamples int) (*egraph.Result, error) {
	rep, err := e.Run(ctx, g, roots, req, numSamples)
	if err != nil {
		return nil, err
	}
	return rep.Result, nil
}

// Run performs a search and reports every iteration.
//
// Inputs:
//   - numSamples: Candidates per iteration. Values < 1 use Config.Samples.
//
// Outputs:
//   - *Report: The returned result is validated and never costs more than
//     the base under the oracle.
//   - error: Errors from the base extraction, or *extractor.InvariantError.
func (e *Extractor) Run(ctx context.Context, g *egraph.Graph, roots []egraph.ClassID, req extractor.Request, numSamples int) (*Report, error) {
	if numSamples < 1 {
		numSamples = e.config.Samples
	}
	ctx, span := tracer.Start(ctx, "anneal.Extractor.Extract")
	defer span.End()
	start := time.Now()

	rep, visits, err := e.run(ctx, g, roots, req, numSamples)
	extractor.RecordExtraction(ctx, Name, time.Since(start), visits, err == nil)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	span.SetAttributes(
		attribute.Int("anneal.iterations", len(rep.Iterations)),
		attribute.Bool("anneal.from_base", rep.FromBase),
		attribute.Float64("anneal.cost", float64(rep.Cost)),
	)
	e.logger.Info("search complete",
		slog.String("oracle", e.oracle.Name()),
		slog.Int("iterations", len(rep.Iterations)),
		slog.String("base_cost", rep.BaseCost.String()),
		slog.String("cost", rep.Cost.String()),
		slog.Bool("from_base", rep.FromBase),
		slog.Duration("elapsed", time.Since(start)),
	)
	return rep, nil
}

func (e *Extractor) run(ctx context.Context, g *egraph.Graph, roots []egraph.ClassID, req extractor.Request, numSamples int) (*Report, int64, error) {
	rep := &Report{Phase: PhaseGenerateBase}

	prop, err := extractor.NewPropagator(g, req.CostFunction)
	if err != nil {
		return nil, 0, err
	}
	base, err := extractor.NewIncremental().WithIncrementalLogger(e.logger).ExtractWith(ctx, prop, roots, extractor.Request{
		CostFunction: req.CostFunction,
		Budget:       req.Budget,
	})
	if err != nil {
		return nil, 0, err
	}

	e.transition(rep, PhaseEvaluate)
	baseScore := oracle.Evaluate(ctx, e.oracle, oracle.NewCandidate(g, roots, base))
	if baseScore.Err != nil {
		e.logger.Warn("base evaluation failed",
			slog.String("oracle", e.oracle.Name()),
			slog.String("error", baseScore.Err.Error()),
		)
	}
	rep.BaseCost = baseScore.Cost

	e.transition(rep, PhaseAnneal)
	sched := e.config.Schedule()
	rng := rand.New(rand.NewPCG(req.Seed, 0x9e3779b97f4a7c15))
	current, currentCost := base, baseScore.Cost
	best, bestCost := base, baseScore.Cost
	temperature := sched.Initial
	var visits int64

	for it := 0; it < e.config.Iterations; it++ {
		if ctx.Err() != nil {
			e.logger.Info("search cancelled", slog.Int("iteration", it))
			break
		}
		itCtx, itSpan := startIterationSpan(ctx, it, temperature)
		recordTemperature(itCtx, temperature)

		stats := IterationStats{Iteration: it, Temperature: temperature, Cooling: sched.Cooling(it)}
		msgs := generation{
			prop:      prop,
			seed:      current,
			req:       req,
			iteration: it,
			count:     numSamples,
			workers:   e.config.Workers,
			evict:     e.config.EvictFraction,
			neighbor:  e.neighbor,
		}.run(itCtx)
		for _, m := range msgs {
			visits += m.stats.Visits
		}

		cands := e.score(itCtx, g, roots, msgs, &stats)
		if len(cands) > 0 {
			if cands[0].cost < bestCost {
				best, bestCost = cands[0].result, cands[0].cost
			}
			pick := selectCandidate(cands, temperature, sched, rng)
			if accept(pick.cost, currentCost, temperature, sched, rng) {
				current, currentCost = pick.result, pick.cost
				stats.Accepted = true
				recordCandidates(itCtx, "accepted", 1)
			} else {
				recordCandidates(itCtx, "rejected", 1)
			}
		}
		stats.Current, stats.Best = currentCost, bestCost
		rep.Iterations = append(rep.Iterations, stats)
		itSpan.SetAttributes(
			attribute.Int("anneal.scored", stats.Scored),
			attribute.Bool("anneal.accepted", stats.Accepted),
		)
		itSpan.End()

		e.logger.Debug("search iteration",
			slog.Int("iteration", it),
			slog.Float64("temperature", temperature),
			slog.Int("scored", stats.Scored),
			slog.Int("failed", stats.Failed+stats.Absent),
			slog.Bool("accepted", stats.Accepted),
			slog.String("current", currentCost.String()),
			slog.String("best", bestCost.String()),
		)
		if it+1 == sched.Boundary {
			e.logger.Info("search cooling switched to fast", slog.Int("iteration", it+1))
		}
		temperature = sched.Next(temperature, it)
	}

	e.transition(rep, PhaseDone)
	rep.Result, rep.Cost = best, bestCost
	if bestCost >= rep.BaseCost {
		rep.Result, rep.Cost, rep.FromBase = base, rep.BaseCost, true
	}
	final, err := extractor.Finalize(Name, g, roots, rep.Result)
	if err != nil {
		return nil, visits, err
	}
	rep.Result = final
	return rep, visits, nil
}

func (e *Extractor) transition(rep *Report, next Phase) {
	e.logger.Info("search phase",
		slog.String("from", rep.Phase.String()),
		slog.String("to", next.String()),
	)
	rep.Phase = next
}

// score validates and deduplicates worker output, evaluates the survivors
// in one oracle batch and returns the finite ones ordered by cost, then
// fingerprint.
func (e *Extractor) score(ctx context.Context, g *egraph.Graph, roots []egraph.ClassID, msgs []generated, stats *IterationStats) []scored {
	seen := make(map[string]bool, len(msgs))
	var (
		cands []oracle.Candidate
		fps   []string
	)
	for _, m := range msgs {
		if m.err != nil {
			stats.Absent++
			e.logger.Warn("neighbor generation failed",
				slog.Int("worker", m.worker),
				slog.String("error", m.err.Error()),
			)
			continue
		}
		stats.Generated++
		if m.result.Validate(g, roots) != nil {
			stats.Cyclic++
			continue
		}
		c := oracle.NewCandidate(g, roots, m.result)
		fp := c.Fingerprint()
		if seen[fp] {
			stats.Duplicates++
			continue
		}
		seen[fp] = true
		cands = append(cands, c)
		fps = append(fps, fp)
	}

	limit := e.config.OracleConcurrency
	if limit <= 0 {
		limit = len(cands)
	}
	var out []scored
	for _, s := range oracle.EvaluateBatch(ctx, e.oracle, cands, limit, e.logger) {
		if s.Err != nil || s.Cost.IsInf() {
			stats.Failed++
			continue
		}
		out = append(out, scored{result: s.Candidate.Result, fingerprint: fps[s.Index], cost: s.Cost})
	}
	stats.Scored = len(out)

	recordCandidates(ctx, "absent", stats.Absent)
	recordCandidates(ctx, "cyclic", stats.Cyclic)
	recordCandidates(ctx, "duplicate", stats.Duplicates)
	recordCandidates(ctx, "failed", stats.Failed)
	recordCandidates(ctx, "scored", stats.Scored)

	sort.Slice(out, func(i, j int) bool {
		if out[i].cost != out[j].cost {
			return out[i].cost < out[j].cost
		}
		return out[i].fingerprint < out[j].fingerprint
	})
	return out
}

// selectCandidate picks from cands, which are sorted by cost. Above the
// high temperature the pick is weighted by exp(-(cost-min)/T); otherwise
// the cheapest wins.
func selectCandidate(cands []scored, t float64, sched Schedule, rng *rand.Rand) scored {
	if len(cands) == 1 || !sched.IsHigh(t) {
		return cands[0]
	}
	minCost := float64(cands[0].cost)
	weights := make([]float64, len(cands))
	var total float64
	for i, c := range cands {
		weights[i] = math.Exp(-(float64(c.cost) - minCost) / t)
		total += weights[i]
	}
	r := rng.Float64() * total
	for i, w := range weights {
		r -= w
		if r < 0 {
			return cands[i]
		}
	}
	return cands[len(cands)-1]
}

// accept is the Metropolis rule. Worse candidates are only considered
// above the high temperature.
func accept(candidate, current egraph.Cost, t float64, sched Schedule, rng *rand.Rand) bool {
	if candidate <= current {
		return true
	}
	if !sched.IsHigh(t) {
		return false
	}
	return rng.Float64() < math.Exp(-float64(candidate-current)/t)
}
