// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package analysis turns graph query results into architectural findings:
// circular dependencies and probably-unused entities.
//
// The analyzer consumes the graph query layer only; it never touches the
// store directly.
package analysis

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/aidino/repochat-sub003/services/ckg/entity"
	"github.com/aidino/repochat-sub003/services/ckg/graph"
)

// FindingType classifies an architectural finding.
type FindingType string

const (
	// FindingCircularDependency marks a strongly connected component of
	// size > 1 in the dependency graph.
	FindingCircularDependency FindingType = "circular_dependency"

	// FindingUnusedEntity marks an entity with no incoming CALLS or
	// REFERENCES edges. Heuristic, not proof of dead code.
	FindingUnusedEntity FindingType = "unused_entity"
)

// Severity ranks a finding.
type Severity string

const (
	SeverityInfo     Severity = "info"
	SeverityWarning  Severity = "warning"
	SeverityCritical Severity = "critical"
)

// Finding is one architectural observation.
type Finding struct {
	// Type classifies the finding.
	Type FindingType `json:"type"`

	// Severity ranks the finding for reporting.
	Severity Severity `json:"severity"`

	// Score orders findings of the same type; higher is worse. For
	// cycles this is the component size plus its internal edge count.
	Score int `json:"score"`

	// Description is the human-readable summary.
	Description string `json:"description"`

	// Entities lists the triggering entities.
	Entities []*entity.CodeEntity `json:"entities"`
}

// Report bundles the findings of one analysis run.
type Report struct {
	ProjectID  string    `json:"project_id"`
	Findings   []Finding `json:"findings"`
	DurationMs int64     `json:"duration_ms"`
}

// defaultExclusions suppresses the entity names that are routinely
// "unused" by graph degree but invoked by runtimes and frameworks.
var defaultExclusions = []string{
	// Go entry points and common interface methods.
	"main", "init", "TestMain", "String", "Error", "Close", "ServeHTTP",
	"MarshalJSON", "UnmarshalJSON",
	// Python dunder lifecycle.
	"__init__", "__main__", "__str__", "__repr__", "__enter__", "__exit__",
	// Kotlin/Dart overrides and Flutter lifecycle.
	"toString", "equals", "hashCode", "build", "initState", "dispose",
	"onCreate", "onDestroy",
}

// Option configures an Analyzer.
type Option func(*Analyzer)

// WithExclusions replaces the unused-entity exclusion name list.
func WithExclusions(names ...string) Option {
	return func(a *Analyzer) {
		a.exclusions = make(map[string]bool, len(names))
		for _, n := range names {
			a.exclusions[n] = true
		}
	}
}

// WithKeepExported excludes public entities from unused findings. Off by
// default: an exported-but-unreferenced symbol is usually worth a look in
// application code, but library surfaces want this on.
func WithKeepExported(keep bool) Option {
	return func(a *Analyzer) {
		a.keepExported = keep
	}
}

// WithCycleScope sets the entity kind cycles are detected at.
func WithCycleScope(kind entity.Kind) Option {
	return func(a *Analyzer) {
		if kind != entity.KindUnknown {
			a.cycleScope = kind
		}
	}
}

// Analyzer produces architectural findings from the graph.
//
// # Thread Safety
//
// Analyzer is immutable after construction and safe for concurrent use.
type Analyzer struct {
	query        *graph.Query
	exclusions   map[string]bool
	keepExported bool
	cycleScope   entity.Kind
}

// NewAnalyzer creates an Analyzer over the given query layer.
func NewAnalyzer(q *graph.Query, opts ...Option) (*Analyzer, error) {
	if q == nil {
		return nil, fmt.Errorf("%w: query layer is required", ErrInvalidInput)
	}

	a := &Analyzer{
		query:      q,
		exclusions: make(map[string]bool, len(defaultExclusions)),
		cycleScope: entity.KindClass,
	}
	for _, n := range defaultExclusions {
		a.exclusions[n] = true
	}
	for _, opt := range opts {
		opt(a)
	}
	return a, nil
}

// Analyze runs both finding passes and bundles the results.
func (a *Analyzer) Analyze(ctx context.Context, projectID string) (*Report, error) {
	start := time.Now()

	cycles, err := a.AnalyzeCycles(ctx, projectID)
	if err != nil {
		return nil, err
	}
	unused, err := a.AnalyzeUnused(ctx, projectID)
	if err != nil {
		return nil, err
	}

	return &Report{
		ProjectID:  projectID,
		Findings:   append(cycles, unused...),
		DurationMs: time.Since(start).Milliseconds(),
	}, nil
}

// AnalyzeCycles reports circular dependencies at the configured scope,
// scored by component size and internal edge count.
func (a *Analyzer) AnalyzeCycles(ctx context.Context, projectID string) ([]Finding, error) {
	if projectID == "" {
		return nil, fmt.Errorf("%w: project ID is required", ErrInvalidInput)
	}

	cycles, err := a.query.FindCircularDependencies(ctx, projectID, a.cycleScope)
	if err != nil {
		return nil, fmt.Errorf("cycle detection: %w", err)
	}

	findings := make([]Finding, 0, len(cycles))
	for _, c := range cycles {
		score := len(c.Entities) + c.EdgeCount

		severity := SeverityInfo
		switch {
		case len(c.Entities) >= 5 || c.EdgeCount >= 2*len(c.Entities):
			severity = SeverityCritical
		case len(c.Entities) >= 3:
			severity = SeverityWarning
		}

		names := make([]string, 0, len(c.Entities))
		for _, e := range c.Entities {
			names = append(names, e.QualifiedName)
		}

		findings = append(findings, Finding{
			Type:     FindingCircularDependency,
			Severity: severity,
			Score:    score,
			Description: fmt.Sprintf("circular dependency between %d %s entities (%d internal edges): %s",
				len(c.Entities), a.cycleScope, c.EdgeCount, strings.Join(names, " -> ")),
			Entities: c.Entities,
		})
	}

	return findings, nil
}

// AnalyzeUnused reports entities with no incoming CALLS or REFERENCES,
// filtered through the exclusion list.
func (a *Analyzer) AnalyzeUnused(ctx context.Context, projectID string) ([]Finding, error) {
	if projectID == "" {
		return nil, fmt.Errorf("%w: project ID is required", ErrInvalidInput)
	}

	unused, err := a.query.FindUnusedEntities(ctx, projectID, a.excluded)
	if err != nil {
		return nil, fmt.Errorf("unused detection: %w", err)
	}

	findings := make([]Finding, 0, len(unused))
	for _, e := range unused {
		findings = append(findings, Finding{
			Type:     FindingUnusedEntity,
			Severity: SeverityInfo,
			Score:    1,
			Description: fmt.Sprintf("%s %s (%s:%d) has no incoming calls or references",
				strings.ToLower(e.Kind.String()), e.QualifiedName, e.FilePath, e.StartLine),
			Entities: []*entity.CodeEntity{e},
		})
	}

	return findings, nil
}

// excluded is the exclusion predicate handed to the query layer.
func (a *Analyzer) excluded(e *entity.CodeEntity) bool {
	if a.exclusions[e.Name] {
		return true
	}
	if a.keepExported && e.Visibility == entity.VisibilityPublic {
		return true
	}
	return false
}
