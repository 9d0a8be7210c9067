// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package analysis

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aidino/repochat-sub003/services/ckg/entity"
	"github.com/aidino/repochat-sub003/services/ckg/graph"
	"github.com/aidino/repochat-sub003/services/ckg/store"
)

func class(file, name string) *entity.CodeEntity {
	return &entity.CodeEntity{
		ID:            entity.GenerateID("go", file, name),
		Kind:          entity.KindClass,
		Name:          name,
		QualifiedName: name,
		FilePath:      file,
		StartLine:     1,
		EndLine:       20,
		Visibility:    entity.VisibilityPublic,
		Language:      "go",
	}
}

func method(file, name string, vis entity.Visibility) *entity.CodeEntity {
	return &entity.CodeEntity{
		ID:            entity.GenerateID("go", file, name),
		Kind:          entity.KindMethod,
		Name:          name,
		QualifiedName: name,
		FilePath:      file,
		StartLine:     1,
		EndLine:       2,
		Visibility:    vis,
		Language:      "go",
	}
}

func references(src, dst *entity.CodeEntity) *entity.Relationship {
	return &entity.Relationship{
		Type:       entity.RelReferences,
		SourceID:   src.ID,
		TargetID:   dst.ID,
		Confidence: entity.ConfidenceExact,
	}
}

func calls(src, dst *entity.CodeEntity) *entity.Relationship {
	return &entity.Relationship{
		Type:       entity.RelCalls,
		SourceID:   src.ID,
		TargetID:   dst.ID,
		Confidence: entity.ConfidenceExact,
	}
}

func buildGraph(t *testing.T, entities []*entity.CodeEntity, rels []*entity.Relationship) *graph.Query {
	t.Helper()

	driver := store.NewMemoryDriver()
	t.Cleanup(func() { _ = driver.Close() })

	b, err := graph.NewBuilder(driver)
	require.NoError(t, err)
	_, err = b.Build(context.Background(), "p1", entities, rels)
	require.NoError(t, err)

	q, err := graph.NewQuery(driver)
	require.NoError(t, err)
	return q
}

func TestAnalyzeCyclesSeverity(t *testing.T) {
	a := class("a.go", "A")
	bb := class("b.go", "B")
	c := class("c.go", "C")

	q := buildGraph(t,
		[]*entity.CodeEntity{a, bb, c},
		[]*entity.Relationship{references(a, bb), references(bb, c), references(c, a)})

	analyzer, err := NewAnalyzer(q)
	require.NoError(t, err)

	findings, err := analyzer.AnalyzeCycles(context.Background(), "p1")
	require.NoError(t, err)
	require.Len(t, findings, 1)

	f := findings[0]
	assert.Equal(t, FindingCircularDependency, f.Type)
	assert.Equal(t, SeverityWarning, f.Severity, "three members, three edges")
	assert.Equal(t, 6, f.Score)
	assert.Len(t, f.Entities, 3)
	assert.Contains(t, f.Description, "circular dependency")
	assert.Contains(t, f.Description, "A")
}

func TestAnalyzeCyclesDenseComponentIsCritical(t *testing.T) {
	a := class("a.go", "A")
	bb := class("b.go", "B")

	// Two members with four internal edges: dense enough to escalate.
	q := buildGraph(t,
		[]*entity.CodeEntity{a, bb},
		[]*entity.Relationship{
			references(a, bb), references(bb, a),
			calls(a, bb), calls(bb, a),
		})

	analyzer, err := NewAnalyzer(q)
	require.NoError(t, err)

	findings, err := analyzer.AnalyzeCycles(context.Background(), "p1")
	require.NoError(t, err)
	require.Len(t, findings, 1)
	assert.Equal(t, SeverityCritical, findings[0].Severity)
}

func TestAnalyzeUnusedAppliesExclusions(t *testing.T) {
	mainFn := method("main.go", "main", entity.VisibilityPackage)
	helper := method("main.go", "helper", entity.VisibilityPackage)
	orphan := method("main.go", "orphan", entity.VisibilityPackage)

	q := buildGraph(t,
		[]*entity.CodeEntity{mainFn, helper, orphan},
		[]*entity.Relationship{calls(mainFn, helper)})

	analyzer, err := NewAnalyzer(q)
	require.NoError(t, err)

	findings, err := analyzer.AnalyzeUnused(context.Background(), "p1")
	require.NoError(t, err)

	// main is excluded by default; orphan is the only finding.
	require.Len(t, findings, 1)
	assert.Equal(t, FindingUnusedEntity, findings[0].Type)
	assert.Equal(t, "orphan", findings[0].Entities[0].Name)
	assert.Contains(t, findings[0].Description, "no incoming calls")
}

func TestAnalyzeUnusedKeepExported(t *testing.T) {
	exported := method("api.go", "PublicAPI", entity.VisibilityPublic)
	private := method("api.go", "internalHelper", entity.VisibilityPackage)

	q := buildGraph(t, []*entity.CodeEntity{exported, private}, nil)

	analyzer, err := NewAnalyzer(q, WithKeepExported(true))
	require.NoError(t, err)

	findings, err := analyzer.AnalyzeUnused(context.Background(), "p1")
	require.NoError(t, err)
	require.Len(t, findings, 1)
	assert.Equal(t, "internalHelper", findings[0].Entities[0].Name)
}

func TestAnalyzeCustomExclusions(t *testing.T) {
	handler := method("hooks.go", "onMessage", entity.VisibilityPackage)

	q := buildGraph(t, []*entity.CodeEntity{handler}, nil)

	analyzer, err := NewAnalyzer(q, WithExclusions("onMessage"))
	require.NoError(t, err)

	findings, err := analyzer.AnalyzeUnused(context.Background(), "p1")
	require.NoError(t, err)
	assert.Empty(t, findings)
}

func TestAnalyzeBundlesReport(t *testing.T) {
	a := class("a.go", "A")
	bb := class("b.go", "B")
	orphan := method("main.go", "orphan", entity.VisibilityPackage)

	q := buildGraph(t,
		[]*entity.CodeEntity{a, bb, orphan},
		[]*entity.Relationship{references(a, bb), references(bb, a)})

	analyzer, err := NewAnalyzer(q)
	require.NoError(t, err)

	report, err := analyzer.Analyze(context.Background(), "p1")
	require.NoError(t, err)

	assert.Equal(t, "p1", report.ProjectID)

	var types []FindingType
	for _, f := range report.Findings {
		types = append(types, f.Type)
	}
	assert.Contains(t, types, FindingCircularDependency)
	assert.Contains(t, types, FindingUnusedEntity)
}

func TestAnalyzerValidation(t *testing.T) {
	_, err := NewAnalyzer(nil)
	require.ErrorIs(t, err, ErrInvalidInput)
}
