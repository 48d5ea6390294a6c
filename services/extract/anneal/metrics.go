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
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

var (
	tracer = otel.Tracer("egx.anneal")
	meter  = otel.Meter("egx.anneal")
)

var (
	candidatesTotal  metric.Int64Counter
	temperatureGauge metric.Float64Gauge

	metricsOnce sync.Once
	metricsErr  error
)

func initMetrics() error {
	metricsOnce.Do(func() {
		var err error

		candidatesTotal, err = meter.Int64Counter(
			"egx_search_candidates_total",
			metric.WithDescription("Search candidates by outcome"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		temperatureGauge, err = meter.Float64Gauge(
			"egx_search_temperature",
			metric.WithDescription("Current annealing temperature"),
		)
		if err != nil {
			metricsErr = err
			return
		}
	})
	return metricsErr
}

func recordCandidates(ctx context.Context, outcome string, n int) {
	if n == 0 {
		return
	}
	if err := initMetrics(); err != nil {
		return
	}
	candidatesTotal.Add(ctx, int64(n), metric.WithAttributes(attribute.String("outcome", outcome)))
}

func recordTemperature(ctx context.Context, t float64) {
	if err := initMetrics(); err != nil {
		return
	}
	temperatureGauge.Record(ctx, t)
}

func startIterationSpan(ctx context.Context, it int, temperature float64) (context.Context, trace.Span) {
	return tracer.Start(ctx, "anneal.iteration",
		trace.WithAttributes(
			attribute.Int("anneal.iteration", it),
			attribute.Float64("anneal.temperature", temperature),
		),
	)
}
