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
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

var (
	tracer = otel.Tracer("egx.oracle")
	meter  = otel.Meter("egx.oracle")
)

var (
	callLatency metric.Float64Histogram
	callTotal   metric.Int64Counter
	cacheHits   metric.Int64Counter
	cacheMisses metric.Int64Counter

	metricsOnce sync.Once
	metricsErr  error
)

func initMetrics() error {
	metricsOnce.Do(func() {
		var err error

		callLatency, err = meter.Float64Histogram(
			"egx_oracle_duration_seconds",
			metric.WithDescription("Duration of oracle evaluations"),
			metric.WithUnit("s"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		callTotal, err = meter.Int64Counter(
			"egx_oracle_calls_total",
			metric.WithDescription("Oracle evaluations by outcome"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		cacheHits, err = meter.Int64Counter(
			"egx_cache_hits_total",
			metric.WithDescription("Oracle cost cache hits"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		cacheMisses, err = meter.Int64Counter(
			"egx_cache_misses_total",
			metric.WithDescription("Oracle cost cache misses"),
		)
		if err != nil {
			metricsErr = err
			return
		}
	})
	return metricsErr
}

func recordCall(ctx context.Context, oracle string, duration time.Duration, outcome string) {
	if err := initMetrics(); err != nil {
		return
	}
	attrs := metric.WithAttributes(
		attribute.String("oracle", oracle),
		attribute.String("outcome", outcome),
	)
	callLatency.Record(ctx, duration.Seconds(), attrs)
	callTotal.Add(ctx, 1, attrs)
}

func recordCache(ctx context.Context, oracle, tier string, hit bool) {
	if err := initMetrics(); err != nil {
		return
	}
	attrs := metric.WithAttributes(attribute.String("oracle", oracle), attribute.String("tier", tier))
	if hit {
		cacheHits.Add(ctx, 1, attrs)
		return
	}
	cacheMisses.Add(ctx, 1, attrs)
}

func startEvaluateSpan(ctx context.Context, oracle, candidate string) (context.Context, trace.Span) {
	return tracer.Start(ctx, "oracle."+oracle+".Evaluate",
		trace.WithAttributes(
			attribute.String("oracle.name", oracle),
			attribute.String("oracle.candidate", candidate),
		),
	)
}
