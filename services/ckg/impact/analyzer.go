// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package impact classifies the blast radius of a change set: for each
// changed entity, who is affected and how risky the change is.
package impact

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aidino/repochat-sub003/services/ckg/entity"
	"github.com/aidino/repochat-sub003/services/ckg/graph"
)

// DefaultDepth is how far impact traversal follows CALLS edges when no
// depth is configured.
const DefaultDepth = 2

// RiskLevel ranks one changed entity's blast radius.
type RiskLevel string

const (
	RiskLow      RiskLevel = "LOW"
	RiskMedium   RiskLevel = "MEDIUM"
	RiskHigh     RiskLevel = "HIGH"
	RiskCritical RiskLevel = "CRITICAL"
)

// Classification distinguishes directly affected entities from
// transitively affected ones.
type Classification string

const (
	// ClassDirect marks entities one CALLS hop from the change.
	ClassDirect Classification = "direct"

	// ClassIndirect marks entities more than one hop away.
	ClassIndirect Classification = "indirect"
)

// AffectedEntity is one entity touched by a change.
type AffectedEntity struct {
	Entity         *entity.CodeEntity `json:"entity"`
	Classification Classification     `json:"classification"`

	// Depth is the CALLS distance from the changed entity (1 = direct).
	Depth int `json:"depth"`
}

// ChangeSet is the diff-extraction collaborator's view of a change.
type ChangeSet struct {
	// ChangedFiles lists the files the change touches, relative to the
	// project root.
	ChangedFiles []string `json:"changed_files,omitempty"`

	// ChangedEntityNames lists changed entities by qualified name.
	ChangedEntityNames []string `json:"changed_entity_names"`
}

// Finding is the impact verdict for one changed entity.
type Finding struct {
	// QualifiedName is the changed entity as named in the change set.
	QualifiedName string `json:"qualified_name"`

	// Entity is the resolved graph entity. Nil when the entity is not in
	// the graph (newly introduced).
	Entity *entity.CodeEntity `json:"entity,omitempty"`

	// Unknown is set when the entity is absent from the graph: impact
	// cannot be assessed for a newly introduced entity.
	Unknown bool `json:"unknown,omitempty"`

	// Isolated is set when the entity exists but has no callers and no
	// callees.
	Isolated bool `json:"isolated,omitempty"`

	// Affected lists impacted entities with their classification.
	Affected []AffectedEntity `json:"affected,omitempty"`

	// FanIn is the direct caller count of the changed entity.
	FanIn int `json:"fan_in"`

	// Risk is the risk level derived from fan-in and affected count.
	Risk RiskLevel `json:"risk"`

	// Description is the human-readable summary.
	Description string `json:"description"`
}

// Report bundles the findings for one change set.
type Report struct {
	ProjectID  string    `json:"project_id"`
	Findings   []Finding `json:"findings"`
	DurationMs int64     `json:"duration_ms"`
}

// Option configures an Analyzer.
type Option func(*Analyzer)

// WithDepth sets the traversal depth for impact classification.
func WithDepth(depth int) Option {
	return func(a *Analyzer) {
		if depth > 0 {
			a.depth = depth
		}
	}
}

// Analyzer assesses change impact against the committed graph.
//
// # Thread Safety
//
// Analyzer is immutable after construction and safe for concurrent use.
type Analyzer struct {
	query *graph.Query
	depth int
}

// NewAnalyzer creates an impact Analyzer over the given query layer.
func NewAnalyzer(q *graph.Query, opts ...Option) (*Analyzer, error) {
	if q == nil {
		return nil, fmt.Errorf("%w: query layer is required", ErrInvalidInput)
	}
	a := &Analyzer{query: q, depth: DefaultDepth}
	for _, opt := range opts {
		opt(a)
	}
	return a, nil
}

// Analyze emits one finding per changed entity in the change set.
//
// # Inputs
//
//   - ctx: cancellation context.
//   - projectID: the graph to assess against.
//   - changes: the change set. ChangedEntityNames drives the analysis.
//
// # Outputs
//
//   - *Report: one finding per changed entity, in change-set order.
//   - error: ErrInvalidInput, or a query failure.
func (a *Analyzer) Analyze(ctx context.Context, projectID string, changes ChangeSet) (*Report, error) {
	if projectID == "" {
		return nil, fmt.Errorf("%w: project ID is required", ErrInvalidInput)
	}

	start := time.Now()
	report := &Report{ProjectID: projectID}

	for _, name := range changes.ChangedEntityNames {
		finding, err := a.analyzeEntity(ctx, projectID, name)
		if err != nil {
			return nil, err
		}
		report.Findings = append(report.Findings, *finding)
	}

	report.DurationMs = time.Since(start).Milliseconds()
	return report, nil
}

// analyzeEntity assesses one changed entity.
func (a *Analyzer) analyzeEntity(ctx context.Context, projectID, qualifiedName string) (*Finding, error) {
	changed, err := a.query.GetEntityByQualifiedName(ctx, projectID, qualifiedName)
	if errors.Is(err, graph.ErrNotFound) {
		return &Finding{
			QualifiedName: qualifiedName,
			Unknown:       true,
			Risk:          RiskLow,
			Description:   fmt.Sprintf("unknown impact: %s is not in the graph (newly introduced entity)", qualifiedName),
		}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("resolve %s: %w", qualifiedName, err)
	}

	finding := &Finding{QualifiedName: qualifiedName, Entity: changed}

	// Widen the traversal one depth at a time; an entity's depth is the
	// first ring it appears in, which also fixes its classification.
	seen := make(map[string]bool)
	for depth := 1; depth <= a.depth; depth++ {
		callers, err := a.query.FindCallers(ctx, projectID, changed.ID, depth)
		if err != nil {
			return nil, fmt.Errorf("callers of %s: %w", qualifiedName, err)
		}
		callees, err := a.query.FindCallees(ctx, projectID, changed.ID, depth)
		if err != nil {
			return nil, fmt.Errorf("callees of %s: %w", qualifiedName, err)
		}

		if depth == 1 {
			finding.FanIn = len(callers)
		}

		for _, e := range append(callers, callees...) {
			if seen[e.ID] || e.ID == changed.ID {
				continue
			}
			seen[e.ID] = true

			affected := AffectedEntity{Entity: e, Classification: ClassIndirect, Depth: depth}
			if depth == 1 {
				affected.Classification = ClassDirect
			}
			finding.Affected = append(finding.Affected, affected)
		}
	}

	if len(finding.Affected) == 0 {
		finding.Isolated = true
		finding.Risk = RiskLow
		finding.Description = fmt.Sprintf("%s has no callers or callees: isolated change", qualifiedName)
		return finding, nil
	}

	finding.Risk = riskLevel(finding.FanIn, len(finding.Affected))
	finding.Description = fmt.Sprintf("%s affects %d entities (%d direct callers): %s risk",
		qualifiedName, len(finding.Affected), finding.FanIn, finding.Risk)
	return finding, nil
}

// riskLevel maps fan-in and blast radius to a risk level. Fan-in weighs
// double: many callers means many places to break.
func riskLevel(fanIn, affectedCount int) RiskLevel {
	score := fanIn*2 + affectedCount
	switch {
	case score >= 20:
		return RiskCritical
	case score >= 10:
		return RiskHigh
	case score >= 4:
		return RiskMedium
	}
	return RiskLow
}
