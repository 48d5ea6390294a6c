// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package oracle

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/AleutianAI/egx/services/extract/egraph"
)

// Score is the outcome of one evaluation. Cost is Infinity when Err is
// set.
type Score struct {
	Index     int
	Candidate Candidate
	Cost      egraph.Cost
	Err       error
}

// Evaluate scores one candidate, mapping every failure, including a panic,
// to Infinity.
func Evaluate(ctx context.Context, o Oracle, c Candidate) Score {
	ctx, span := startEvaluateSpan(ctx, o.Name(), c.ID)
	defer span.End()
	start := time.Now()

	cost, err := safeEvaluate(ctx, o, c)
	if err == nil && cost.IsInf() {
		err = newError(o.Name(), c, KindInvalid, errors.New("oracle returned infinite cost"))
	}
	if err != nil {
		cost = egraph.Infinity
		span.RecordError(err)
	}
	recordCall(ctx, o.Name(), time.Since(start), outcomeOf(err))
	return Score{Candidate: c, Cost: cost, Err: err}
}

func safeEvaluate(ctx context.Context, o Oracle, c Candidate) (cost egraph.Cost, err error) {
	defer func() {
		if r := recover(); r != nil {
			cost = egraph.Infinity
			err = newError(o.Name(), c, KindPanic, fmt.Errorf("%w: %v", ErrPanic, r))
		}
	}()
	return o.Evaluate(ctx, c)
}

// EvaluateBatch scores candidates concurrently with at most limit calls in
// flight. It never fails: each failed candidate gets Infinity and its
// error. Scores are returned in candidate order.
func EvaluateBatch(ctx context.Context, o Oracle, candidates []Candidate, limit int, logger *slog.Logger) []Score {
	if logger == nil {
		logger = slog.Default()
	}
	scores := make([]Score, len(candidates))
	var eg errgroup.Group
	if limit > 0 {
		eg.SetLimit(limit)
	}
	for i, c := range candidates {
		eg.Go(func() error {
			s := Evaluate(ctx, o, c)
			s.Index = i
			if s.Err != nil {
				logger.Warn("oracle evaluation failed",
					slog.String("oracle", o.Name()),
					slog.String("candidate", c.ID),
					slog.String("error", s.Err.Error()),
				)
			}
			scores[i] = s
			return nil
		})
	}
	_ = eg.Wait()
	return scores
}

func outcomeOf(err error) string {
	if err == nil {
		return "ok"
	}
	if k := KindOf(err); k != "" {
		return string(k)
	}
	return "error"
}
