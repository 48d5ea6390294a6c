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
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

// Package-level tracer and meter for extraction passes.
var (
	tracer = otel.Tracer("egx.extractor")
	meter  = otel.Meter("egx.extractor")
)

var (
	extractLatency metric.Float64Histogram
	extractTotal   metric.Int64Counter
	visitsTotal    metric.Int64Counter

	metricsOnce sync.Once
	metricsErr  error
)

func initMetrics() error {
	metricsOnce.Do(func() {
		var err error

		extractLatency, err = meter.Float64Histogram(
			"egx_extraction_duration_seconds",
			metric.WithDescription("Duration of extraction passes"),
			metric.WithUnit("s"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		extractTotal, err = meter.Int64Counter(
			"egx_extraction_total",
			metric.WithDescription("Total number of extraction passes"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		visitsTotal, err = meter.Int64Counter(
			"egx_extraction_visits_total",
			metric.WithDescription("Node evaluations performed by extraction passes"),
		)
		if err != nil {
			metricsErr = err
			return
		}
	})
	return metricsErr
}

// RecordExtraction records one finished extraction. Exported so extractors
// in other packages report under the same instruments.
func RecordExtraction(ctx context.Context, name string, duration time.Duration, visits int64, success bool) {
	if err := initMetrics(); err != nil {
		return
	}
	attrs := metric.WithAttributes(
		attribute.String("extractor", name),
		attribute.Bool("success", success),
	)
	extractLatency.Record(ctx, duration.Seconds(), attrs)
	extractTotal.Add(ctx, 1, attrs)
	if visits > 0 {
		visitsTotal.Add(ctx, visits, metric.WithAttributes(attribute.String("extractor", name)))
	}
}

func startExtractSpan(ctx context.Context, name string, classes int, req Request) (context.Context, trace.Span) {
	return tracer.Start(ctx, name+".Extract",
		trace.WithAttributes(
			attribute.Int("egraph.classes", classes),
			attribute.String("extract.cost_function", req.CostFunction),
			attribute.Float64("extract.random_prob", req.RandomProb),
		),
	)
}

func endExtractSpan(span trace.Span, stats PassStats, err error) {
	span.SetAttributes(
		attribute.Int64("extract.visits", stats.Visits),
		attribute.Int("extract.commits", stats.Commits),
		attribute.String("extract.exhausted_by", stats.ExhaustedBy),
	)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}
