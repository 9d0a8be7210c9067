// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package parser

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

// Package-level tracer and meter for entity extraction.
var (
	tracer = otel.Tracer("ckg.parser")
	meter  = otel.Meter("ckg.parser")
)

// Metrics for parse operations.
var (
	parseLatency      metric.Float64Histogram
	parseTotal        metric.Int64Counter
	entitiesExtracted metric.Int64Histogram
	parseFileErrors   metric.Int64Counter

	metricsOnce sync.Once
	metricsErr  error
)

// initMetrics initializes the metrics. Safe to call multiple times.
func initMetrics() error {
	metricsOnce.Do(func() {
		var err error

		parseLatency, err = meter.Float64Histogram(
			"ckg_parse_duration_seconds",
			metric.WithDescription("Duration of per-language parse batches"),
			metric.WithUnit("s"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		parseTotal, err = meter.Int64Counter(
			"ckg_parse_batches_total",
			metric.WithDescription("Total number of parse batches"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		entitiesExtracted, err = meter.Int64Histogram(
			"ckg_entities_extracted",
			metric.WithDescription("Number of entities extracted per batch"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		parseFileErrors, err = meter.Int64Counter(
			"ckg_parse_file_errors_total",
			metric.WithDescription("Total number of recovered per-file parse errors"),
		)
		if err != nil {
			metricsErr = err
			return
		}
	})
	return metricsErr
}

// recordBatchMetrics records metrics for one parse batch.
func recordBatchMetrics(ctx context.Context, language string, duration time.Duration, entityCount, fileErrorCount int) {
	if err := initMetrics(); err != nil {
		return // Silently skip if metrics init failed
	}

	attrs := metric.WithAttributes(attribute.String("language", language))

	parseLatency.Record(ctx, duration.Seconds(), attrs)
	parseTotal.Add(ctx, 1, attrs)
	entitiesExtracted.Record(ctx, int64(entityCount), attrs)

	if fileErrorCount > 0 {
		parseFileErrors.Add(ctx, int64(fileErrorCount), attrs)
	}
}

// startBatchSpan creates a span for one parse batch.
//
// The caller must call span.End().
func startBatchSpan(ctx context.Context, language string, fileCount int) (context.Context, trace.Span) {
	return tracer.Start(ctx, "Parser.ParseFiles",
		trace.WithAttributes(
			attribute.String("ckg.language", language),
			attribute.Int("ckg.file_count", fileCount),
		),
	)
}

// setBatchSpanResult sets the result attributes on a batch span.
func setBatchSpanResult(span trace.Span, entityCount, relationshipCount, errorCount int) {
	span.SetAttributes(
		attribute.Int("ckg.entity_count", entityCount),
		attribute.Int("ckg.relationship_count", relationshipCount),
		attribute.Int("ckg.error_count", errorCount),
	)
}
