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
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aidino/repochat-sub003/services/ckg/entity"
)

const kotlinFixture = `package com.example.pets

interface Speaker {
    fun speak(): String
}

open class Animal(val name: String) {
    fun describe(): String {
        return name
    }
}

class Dog(name: String) : Animal(name), Speaker {
    override fun speak(): String {
        return bark()
    }

    private fun bark(): String {
        return "woof"
    }
}

fun adopt(name: String, age: Int): Dog {
    return Dog(name)
}
`

func TestKotlinParserExtractsEntities(t *testing.T) {
	root := t.TempDir()
	writeFixture(t, root, "pets.kt", kotlinFixture)

	p := NewKotlinParser()
	result, err := p.ParseFiles(context.Background(), root, []string{"pets.kt"})
	require.NoError(t, err)
	require.Empty(t, result.FileErrors)
	assert.Equal(t, "kotlin", result.Language)

	assert.Equal(t, 2, countKind(result.Entities, entity.KindClass))
	assert.Equal(t, 1, countKind(result.Entities, entity.KindInterface))

	dog := findEntity(t, result.Entities, entity.KindClass, "Dog")
	bark := findEntity(t, result.Entities, entity.KindMethod, "Dog.bark")
	assert.Equal(t, entity.VisibilityPrivate, bark.Visibility)
	require.NotNil(t, findRel(result.Relationships, entity.RelContains, dog.ID, bark.ID))

	adopt := findEntity(t, result.Entities, entity.KindMethod, "adopt")
	assert.Equal(t, 2, adopt.Arity)

	file := findEntity(t, result.Entities, entity.KindFile, "pets.kt")
	require.NotNil(t, findRel(result.Relationships, entity.RelContains, file.ID, adopt.ID))
}

func TestKotlinParserSupertypes(t *testing.T) {
	root := t.TempDir()
	writeFixture(t, root, "pets.kt", kotlinFixture)

	result, err := NewKotlinParser().ParseFiles(context.Background(), root, []string{"pets.kt"})
	require.NoError(t, err)

	animal := findEntity(t, result.Entities, entity.KindClass, "Animal")
	speaker := findEntity(t, result.Entities, entity.KindInterface, "Speaker")
	dog := findEntity(t, result.Entities, entity.KindClass, "Dog")

	assert.NotNil(t, findRel(result.Relationships, entity.RelExtends, dog.ID, animal.ID))
	assert.NotNil(t, findRel(result.Relationships, entity.RelExtends, dog.ID, speaker.ID))
}

func TestKotlinParserCallResolution(t *testing.T) {
	root := t.TempDir()
	writeFixture(t, root, "pets.kt", kotlinFixture)

	result, err := NewKotlinParser().ParseFiles(context.Background(), root, []string{"pets.kt"})
	require.NoError(t, err)

	speak := findEntity(t, result.Entities, entity.KindMethod, "Dog.speak")
	bark := findEntity(t, result.Entities, entity.KindMethod, "Dog.bark")

	// Pattern extraction reports no call-site arity, so resolution is
	// heuristic by name.
	call := findRel(result.Relationships, entity.RelCalls, speak.ID, bark.ID)
	require.NotNil(t, call)
	assert.Equal(t, entity.ConfidenceHeuristic, call.Confidence)
}

const dartFixture = `abstract class Shape {
  double area();
}

class Circle extends Shape implements Comparable {
  double radius = 0;

  double area() {
    return compute(radius);
  }

  double compute(double r) {
    return 3.14 * r * r;
  }
}

void describe(Shape shape) {
  shape.area();
}
`

func TestDartParserExtractsEntities(t *testing.T) {
	root := t.TempDir()
	writeFixture(t, root, "shapes.dart", dartFixture)

	p := NewDartParser()
	result, err := p.ParseFiles(context.Background(), root, []string{"shapes.dart"})
	require.NoError(t, err)
	require.Empty(t, result.FileErrors)
	assert.Equal(t, "dart", result.Language)

	assert.Equal(t, 2, countKind(result.Entities, entity.KindClass))

	circle := findEntity(t, result.Entities, entity.KindClass, "Circle")
	area := findEntity(t, result.Entities, entity.KindMethod, "Circle.area")
	require.NotNil(t, findRel(result.Relationships, entity.RelContains, circle.ID, area.ID))

	describe := findEntity(t, result.Entities, entity.KindMethod, "describe")
	assert.Equal(t, 1, describe.Arity)
}

func TestDartParserSupertypes(t *testing.T) {
	root := t.TempDir()
	writeFixture(t, root, "shapes.dart", dartFixture)

	result, err := NewDartParser().ParseFiles(context.Background(), root, []string{"shapes.dart"})
	require.NoError(t, err)

	shape := findEntity(t, result.Entities, entity.KindClass, "Shape")
	circle := findEntity(t, result.Entities, entity.KindClass, "Circle")

	ext := findRel(result.Relationships, entity.RelExtends, circle.ID, shape.ID)
	require.NotNil(t, ext, "Circle extends Shape")

	// "implements Comparable" has no in-batch target: no edge fabricated.
	for _, r := range result.Relationships {
		assert.NotEqual(t, entity.RelImplements, r.Type)
	}
}

func TestDartParserCallResolution(t *testing.T) {
	root := t.TempDir()
	writeFixture(t, root, "shapes.dart", dartFixture)

	result, err := NewDartParser().ParseFiles(context.Background(), root, []string{"shapes.dart"})
	require.NoError(t, err)

	area := findEntity(t, result.Entities, entity.KindMethod, "Circle.area")
	compute := findEntity(t, result.Entities, entity.KindMethod, "Circle.compute")

	require.NotNil(t, findRel(result.Relationships, entity.RelCalls, area.ID, compute.ID))
}

func TestRegistryDispatch(t *testing.T) {
	r := DefaultRegistry()

	for _, tc := range []struct {
		language string
		ext      string
	}{
		{"go", ".go"},
		{"python", ".py"},
		{"kotlin", ".kt"},
		{"dart", ".dart"},
	} {
		byLang, ok := r.ForLanguage(tc.language)
		require.True(t, ok, tc.language)
		byExt, ok := r.ForExtension(tc.ext)
		require.True(t, ok, tc.ext)
		assert.Same(t, byLang, byExt)
	}

	_, ok := r.ForLanguage("cobol")
	assert.False(t, ok)
	assert.ElementsMatch(t, []string{"go", "python", "kotlin", "dart"}, r.Languages())
}

func TestRegistryReplacement(t *testing.T) {
	r := NewRegistry()
	first := NewGoParser()
	second := NewGoParser(WithGoMaxFileSize(1024))

	r.Register(first)
	r.Register(second)

	got, ok := r.ForLanguage("go")
	require.True(t, ok)
	assert.Same(t, Parser(second), got)
}
