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
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/crillab/gophersat/solver"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/AleutianAI/egx/services/extract/egraph"
	"github.com/AleutianAI/egx/services/extract/extractor"
)

// Name is the registry name of the exact extractor.
const Name = "exact"

var tracer = otel.Tracer("egx.ilp")

// Config tunes the exact extractor.
type Config struct {
	// CostScale converts real costs to the solver's integer weights.
	CostScale float64 `json:"cost_scale" yaml:"cost_scale" validate:"gt=0"`

	// WarmStart runs the incremental extractor first. Its cost bounds the
	// objective and it is returned if the solver's answer is not cheaper.
	WarmStart bool `json:"warm_start" yaml:"warm_start"`

	// Timeout bounds the solve. Zero means no limit beyond the context.
	Timeout time.Duration `json:"timeout" yaml:"timeout"`
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{CostScale: 1000, WarmStart: true}
}

// Extractor is the exact extractor.
//
// The objective is always the DAG cost. Request.CostFunction is validated
// and used by the warm start.
//
// Thread Safety: Safe for concurrent use.
type Extractor struct {
	config Config
	warm   *extractor.Incremental
	logger *slog.Logger
}

// New creates the exact extractor.
func New(config Config) *Extractor {
	if config.CostScale <= 0 {
		config.CostScale = DefaultConfig().CostScale
	}
	return &Extractor{config: config, warm: extractor.NewIncremental(), logger: slog.Default()}
}

// WithLogger sets the logger.
func (e *Extractor) WithLogger(logger *slog.Logger) *Extractor {
	e.logger = logger
	e.warm.WithIncrementalLogger(logger)
	return e
}

// Extract implements extractor.Extractor.
//
// # Outputs
//
//   - *egraph.Result: An acyclic extraction of minimum DAG cost over the
//     nodes the cycle pre-pass allows. If the context ends first, the best
//     model found so far, or the warm start when it is cheaper.
//   - error: ErrInfeasible, ErrSolverInterrupted, or *InvariantError if the
//     decoded result is cyclic.
func (e *Extractor) Extract(ctx context.Context, g *egraph.Graph, roots []egraph.ClassID, req extractor.Request) (*egraph.Result, error) {
	if _, err := egraph.CostFunctionByName(req.CostFunction); err != nil {
		return nil, err
	}
	ctx, span := tracer.Start(ctx, "ilp.Extractor.Extract",
		trace.WithAttributes(attribute.Int("egraph.classes", g.NumClasses())),
	)
	defer span.End()
	start := time.Now()

	res, err := e.extract(ctx, g, roots, req, span)
	extractor.RecordExtraction(ctx, Name, time.Since(start), 0, err == nil)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	return res, nil
}

func (e *Extractor) extract(ctx context.Context, g *egraph.Graph, roots []egraph.ClassID, req extractor.Request, span trace.Span) (*egraph.Result, error) {
	m := buildModel(g, roots, e.config.CostScale)
	span.SetAttributes(
		attribute.Int("ilp.constraints", len(m.constrs)),
		attribute.Int("ilp.banned", g.NumNodes()-len(m.allowed)),
	)

	var warm *egraph.Result
	if e.config.WarmStart {
		r, err := e.warm.Extract(ctx, g, roots, req)
		if err != nil {
			e.logger.Warn("warm start failed", slog.String("error", err.Error()))
		} else {
			warm = r
			if limit, ok := m.objective(r, roots); ok {
				m.bound(limit)
			}
		}
	}

	if e.config.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.config.Timeout)
		defer cancel()
	}

	values, optimal, err := solve(ctx, m)
	if err != nil {
		if warm != nil {
			e.logger.Warn("solver gave no answer, returning warm start", slog.String("error", err.Error()))
			return warm, nil
		}
		return nil, err
	}
	span.SetAttributes(attribute.Bool("ilp.optimal", optimal))
	if !optimal {
		e.logger.Warn("solver interrupted, returning best model found")
	}

	res := m.decode(values)
	if err := res.Validate(g, roots); err != nil {
		return nil, &extractor.InvariantError{Extractor: Name, Err: err}
	}
	if warm != nil && warm.DAGCost(g, roots) < res.DAGCost(g, roots) {
		e.logger.Debug("warm start cheaper than solver answer",
			slog.String("warm", warm.DAGCost(g, roots).String()),
			slog.String("exact", res.DAGCost(g, roots).String()),
		)
		return warm, nil
	}
	e.logger.Debug("exact extraction solved",
		slog.Int("constraints", len(m.constrs)),
		slog.String("dag_cost", res.DAGCost(g, roots).String()),
	)
	return res, nil
}

// solve minimizes the objective on its own goroutine, one SAT call per
// improving model, each tightening the bound below the last cost. When
// ctx ends the wait stops at once, the goroutine exits at its next call
// boundary, and the best model found so far is returned with optimal set
// to false.
func solve(ctx context.Context, m *model) (values []bool, optimal bool, err error) {
	found := make(chan []bool)
	stop := make(chan struct{})
	go func() {
		defer close(found)
		minimize(solver.New(m.problem()), m, found, stop)
	}()

	var best []bool
	for {
		select {
		case v, ok := <-found:
			if !ok {
				if best == nil {
					return nil, false, ErrInfeasible
				}
				return best, true, nil
			}
			best = v
		case <-ctx.Done():
			close(stop)
			if best == nil {
				return nil, false, fmt.Errorf("%w: %v", ErrSolverInterrupted, ctx.Err())
			}
			return best, false, nil
		}
	}
}

// minimize publishes every improving model on found until the problem
// becomes unsatisfiable, a zero-cost model is found, or stop is closed.
func minimize(s *solver.Solver, m *model, found chan<- []bool, stop <-chan struct{}) {
	total := 0
	for _, w := range m.costW {
		total += w
	}
	for s.Solve() == solver.Sat {
		values := s.Model()
		select {
		case found <- values:
		case <-stop:
			return
		}
		cost := m.cost(values)
		if cost == 0 {
			return
		}
		select {
		case <-stop:
			return
		default:
		}
		// sum(w * !x) >= total - cost + 1 is sum(w * x) <= cost - 1.
		lits := make([]solver.Lit, len(m.costVar))
		for i, v := range m.costVar {
			lits[i] = solver.IntToLit(int32(-v))
		}
		s.AppendClause(solver.NewPBClause(lits, append([]int(nil), m.costW...), total-cost+1))
	}
}
