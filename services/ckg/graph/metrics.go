// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package graph

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

// Package-level tracer and meter for graph construction and queries.
var (
	tracer = otel.Tracer("ckg.graph")
	meter  = otel.Meter("ckg.graph")
)

// Metrics for build and query operations.
var (
	buildLatency metric.Float64Histogram
	buildTotal   metric.Int64Counter
	nodesWritten metric.Int64Histogram
	queryLatency metric.Float64Histogram

	metricsOnce sync.Once
	metricsErr  error
)

// initMetrics initializes the metrics. Safe to call multiple times.
func initMetrics() error {
	metricsOnce.Do(func() {
		var err error

		buildLatency, err = meter.Float64Histogram(
			"ckg_build_duration_seconds",
			metric.WithDescription("Duration of graph builds"),
			metric.WithUnit("s"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		buildTotal, err = meter.Int64Counter(
			"ckg_builds_total",
			metric.WithDescription("Total number of graph builds"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		nodesWritten, err = meter.Int64Histogram(
			"ckg_build_nodes_written",
			metric.WithDescription("Number of nodes written per build"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		queryLatency, err = meter.Float64Histogram(
			"ckg_query_duration_seconds",
			metric.WithDescription("Duration of graph queries"),
			metric.WithUnit("s"),
		)
		if err != nil {
			metricsErr = err
			return
		}
	})
	return metricsErr
}

// recordBuildMetrics records metrics for one build.
func recordBuildMetrics(ctx context.Context, projectID string, duration time.Duration, nodeCount int, success bool) {
	if err := initMetrics(); err != nil {
		return // Silently skip if metrics init failed
	}

	attrs := metric.WithAttributes(
		attribute.String("project_id", projectID),
		attribute.Bool("success", success),
	)

	buildLatency.Record(ctx, duration.Seconds(), attrs)
	buildTotal.Add(ctx, 1, attrs)
	nodesWritten.Record(ctx, int64(nodeCount), attrs)
}

// recordQueryMetrics records the latency of one query operation.
func recordQueryMetrics(ctx context.Context, operation string, duration time.Duration) {
	if err := initMetrics(); err != nil {
		return
	}
	queryLatency.Record(ctx, duration.Seconds(),
		metric.WithAttributes(attribute.String("operation", operation)))
}

// startBuildSpan creates a span for one graph build.
//
// The caller must call span.End().
func startBuildSpan(ctx context.Context, projectID string, entityCount, relationshipCount int) (context.Context, trace.Span) {
	return tracer.Start(ctx, "Builder.Build",
		trace.WithAttributes(
			attribute.String("ckg.project_id", projectID),
			attribute.Int("ckg.entity_count", entityCount),
			attribute.Int("ckg.relationship_count", relationshipCount),
		),
	)
}
