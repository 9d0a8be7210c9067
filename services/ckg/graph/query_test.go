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
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aidino/repochat-sub003/services/ckg/entity"
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
		Language:      "go",
	}
}

func contains(parent, child *entity.CodeEntity) *entity.Relationship {
	return &entity.Relationship{
		Type:       entity.RelContains,
		SourceID:   parent.ID,
		TargetID:   child.ID,
		Confidence: entity.ConfidenceExact,
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

// callChainGraph builds main -> a -> b -> c with a side caller of b.
func callChainGraph(t *testing.T) (*Query, map[string]*entity.CodeEntity) {
	t.Helper()

	driver := store.NewMemoryDriver()
	t.Cleanup(func() { _ = driver.Close() })

	b, err := NewBuilder(driver)
	require.NoError(t, err)

	ents := map[string]*entity.CodeEntity{
		"main": method("main.go", "main"),
		"a":    method("main.go", "a"),
		"b":    method("svc.go", "b"),
		"c":    method("svc.go", "c"),
		"side": method("side.go", "side"),
	}
	rels := []*entity.Relationship{
		calls(ents["main"], ents["a"]),
		calls(ents["a"], ents["b"]),
		calls(ents["b"], ents["c"]),
		calls(ents["side"], ents["b"]),
	}

	var list []*entity.CodeEntity
	for _, e := range ents {
		list = append(list, e)
	}
	_, err = b.Build(context.Background(), "p1", list, rels)
	require.NoError(t, err)

	q, err := NewQuery(driver)
	require.NoError(t, err)
	return q, ents
}

func ids(entities []*entity.CodeEntity) []string {
	out := make([]string, 0, len(entities))
	for _, e := range entities {
		out = append(out, e.ID)
	}
	return out
}

func TestGetProjectOverview(t *testing.T) {
	q, _ := callChainGraph(t)

	overview, err := q.GetProjectOverview(context.Background(), "p1")
	require.NoError(t, err)

	assert.Equal(t, 5, overview.CountsByKind["Method"])
	assert.Equal(t, 1, overview.CountsByKind["Project"])
	assert.Equal(t, 4, overview.Relationships)
	assert.Equal(t, 5, overview.Languages["go"])
}

func TestFindCallersDirect(t *testing.T) {
	q, ents := callChainGraph(t)

	// Default depth: direct callers only.
	callers, err := q.FindCallers(context.Background(), "p1", ents["b"].ID, 0)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{ents["a"].ID, ents["side"].ID}, ids(callers))
}

func TestFindCallersTransitive(t *testing.T) {
	q, ents := callChainGraph(t)

	callers, err := q.FindCallers(context.Background(), "p1", ents["c"].ID, 3)
	require.NoError(t, err)
	assert.ElementsMatch(t,
		[]string{ents["b"].ID, ents["a"].ID, ents["side"].ID, ents["main"].ID},
		ids(callers))
}

func TestFindCalleesBounded(t *testing.T) {
	q, ents := callChainGraph(t)

	callees, err := q.FindCallees(context.Background(), "p1", ents["main"].ID, 2)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{ents["a"].ID, ents["b"].ID}, ids(callees),
		"depth 2 must stop before c")
}

func TestFindCallersUnknownEntity(t *testing.T) {
	q, _ := callChainGraph(t)

	_, err := q.FindCallers(context.Background(), "p1", "go:ghost.go:ghost", 1)
	require.ErrorIs(t, err, ErrNotFound)
}

func TestFindCircularDependencies(t *testing.T) {
	driver := store.NewMemoryDriver()
	b, err := NewBuilder(driver)
	require.NoError(t, err)

	// A -> B -> C -> A at class level, D outside the cycle.
	a := class("a.go", "A")
	bb := class("b.go", "B")
	c := class("c.go", "C")
	d := class("d.go", "D")

	_, err = b.Build(context.Background(), "p1",
		[]*entity.CodeEntity{a, bb, c, d},
		[]*entity.Relationship{
			references(a, bb), references(bb, c), references(c, a),
			references(d, a),
		})
	require.NoError(t, err)

	q, err := NewQuery(driver)
	require.NoError(t, err)

	cycles, err := q.FindCircularDependencies(context.Background(), "p1", entity.KindClass)
	require.NoError(t, err)
	require.Len(t, cycles, 1)

	cycle := cycles[0]
	assert.ElementsMatch(t, []string{a.ID, bb.ID, c.ID}, cycle.EntityIDs)
	assert.Equal(t, cycle.EntityIDs[0], a.ID, "canonical order starts at the smallest ID")
	assert.Equal(t, 3, cycle.EdgeCount)
}

func TestFindCircularDependenciesLiftsMethodCalls(t *testing.T) {
	driver := store.NewMemoryDriver()
	b, err := NewBuilder(driver)
	require.NoError(t, err)

	// Classes X and Y with methods calling across: a class-level cycle
	// even though no class references the other directly.
	x := class("x.go", "X")
	y := class("y.go", "Y")
	xm := method("x.go", "X.doX")
	ym := method("y.go", "Y.doY")

	_, err = b.Build(context.Background(), "p1",
		[]*entity.CodeEntity{x, y, xm, ym},
		[]*entity.Relationship{
			contains(x, xm), contains(y, ym),
			calls(xm, ym), calls(ym, xm),
		})
	require.NoError(t, err)

	q, err := NewQuery(driver)
	require.NoError(t, err)

	cycles, err := q.FindCircularDependencies(context.Background(), "p1", entity.KindClass)
	require.NoError(t, err)
	require.Len(t, cycles, 1)
	assert.ElementsMatch(t, []string{x.ID, y.ID}, cycles[0].EntityIDs)
}

func TestFindCircularDependenciesNoCycle(t *testing.T) {
	driver := store.NewMemoryDriver()
	b, err := NewBuilder(driver)
	require.NoError(t, err)

	a := class("a.go", "A")
	bb := class("b.go", "B")
	_, err = b.Build(context.Background(), "p1",
		[]*entity.CodeEntity{a, bb},
		[]*entity.Relationship{references(a, bb)})
	require.NoError(t, err)

	q, err := NewQuery(driver)
	require.NoError(t, err)

	cycles, err := q.FindCircularDependencies(context.Background(), "p1", entity.KindClass)
	require.NoError(t, err)
	assert.Empty(t, cycles)
}

func TestFindUnusedEntities(t *testing.T) {
	q, ents := callChainGraph(t)

	// main and side have no incoming calls.
	unused, err := q.FindUnusedEntities(context.Background(), "p1", nil)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{ents["main"].ID, ents["side"].ID}, ids(unused))

	// An exclusion predicate filters entry points out of the findings.
	unused, err = q.FindUnusedEntities(context.Background(), "p1", func(e *entity.CodeEntity) bool {
		return e.Name == "main"
	})
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{ents["side"].ID}, ids(unused))
}

func TestGetEntityByQualifiedName(t *testing.T) {
	q, ents := callChainGraph(t)

	got, err := q.GetEntityByQualifiedName(context.Background(), "p1", "main")
	require.NoError(t, err)
	assert.Equal(t, ents["main"].ID, got.ID)

	_, err = q.GetEntityByQualifiedName(context.Background(), "p1", "nope")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestQueriesAreConcurrencySafe(t *testing.T) {
	q, ents := callChainGraph(t)

	done := make(chan struct{})
	for i := 0; i < 8; i++ {
		go func() {
			defer func() { done <- struct{}{} }()
			_, err := q.FindCallers(context.Background(), "p1", ents["b"].ID, 2)
			assert.NoError(t, err)
			_, err = q.GetProjectOverview(context.Background(), "p1")
			assert.NoError(t, err)
		}()
	}
	for i := 0; i < 8; i++ {
		<-done
	}
}

func TestCycleCanonicalOrderIsStable(t *testing.T) {
	// The same cycle inserted with edges in different order reports the
	// same canonical member ordering.
	build := func(relOrder []int) []Cycle {
		driver := store.NewMemoryDriver()
		b, err := NewBuilder(driver)
		require.NoError(t, err)

		a := class("a.go", "A")
		bb := class("b.go", "B")
		c := class("c.go", "C")
		rels := []*entity.Relationship{
			references(a, bb), references(bb, c), references(c, a),
		}
		ordered := make([]*entity.Relationship, 0, len(rels))
		for _, idx := range relOrder {
			ordered = append(ordered, rels[idx])
		}

		_, err = b.Build(context.Background(), "p1",
			[]*entity.CodeEntity{c, a, bb}, ordered)
		require.NoError(t, err)

		q, err := NewQuery(driver)
		require.NoError(t, err)
		cycles, err := q.FindCircularDependencies(context.Background(), "p1", entity.KindClass)
		require.NoError(t, err)
		return cycles
	}

	first := build([]int{0, 1, 2})
	second := build([]int{2, 0, 1})

	require.Len(t, first, 1)
	require.Len(t, second, 1)
	assert.Equal(t, first[0].EntityIDs, second[0].EntityIDs)
	assert.True(t, strings.HasPrefix(first[0].EntityIDs[0], "go:a.go:"),
		"rotation starts from the smallest entity ID")
}
