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
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aidino/repochat-sub003/services/ckg/entity"
)

func writeFixture(t *testing.T, root, name, content string) {
	t.Helper()
	path := filepath.Join(root, name)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func findEntity(t *testing.T, entities []*entity.CodeEntity, kind entity.Kind, qualifiedName string) *entity.CodeEntity {
	t.Helper()
	for _, e := range entities {
		if e.Kind == kind && e.QualifiedName == qualifiedName {
			return e
		}
	}
	t.Fatalf("entity %v %q not found", kind, qualifiedName)
	return nil
}

func countKind(entities []*entity.CodeEntity, kind entity.Kind) int {
	n := 0
	for _, e := range entities {
		if e.Kind == kind {
			n++
		}
	}
	return n
}

func findRel(rels []*entity.Relationship, relType entity.RelType, sourceID, targetID string) *entity.Relationship {
	for _, r := range rels {
		if r.Type == relType && r.SourceID == sourceID && r.TargetID == targetID {
			return r
		}
	}
	return nil
}

const goFixture = `package store

type Repository interface {
	Save(id string) error
}

type UserStore struct {
	BaseStore
	db    *Database
	cache map[string]string
}

func (s *UserStore) Save(id string) error {
	return s.persist(id)
}

func (s *UserStore) persist(id string) error {
	return nil
}

func NewUserStore(db *Database) *UserStore {
	validate(db)
	return &UserStore{}
}

func validate(db *Database) {}

type Database struct{}
`

func TestGoParserExtractsEntities(t *testing.T) {
	root := t.TempDir()
	writeFixture(t, root, "store.go", goFixture)

	p := NewGoParser()
	result, err := p.ParseFiles(context.Background(), root, []string{"store.go"})
	require.NoError(t, err)
	require.Empty(t, result.FileErrors)
	assert.Equal(t, 1, result.FilesParsed)
	assert.Equal(t, "go", result.Language)

	file := findEntity(t, result.Entities, entity.KindFile, "store.go")
	assert.Equal(t, "store.go", file.Name)
	assert.Equal(t, 1, file.StartLine)

	iface := findEntity(t, result.Entities, entity.KindInterface, "Repository")
	assert.Equal(t, entity.VisibilityPublic, iface.Visibility)

	cls := findEntity(t, result.Entities, entity.KindClass, "UserStore")
	assert.Equal(t, "go", cls.Language)

	save := findEntity(t, result.Entities, entity.KindMethod, "UserStore.Save")
	assert.Equal(t, 1, save.Arity)
	assert.Equal(t, "func(id string) error", save.Signature)

	persist := findEntity(t, result.Entities, entity.KindMethod, "UserStore.persist")
	assert.Equal(t, entity.VisibilityPackage, persist.Visibility)

	// Two structs declared, two Class entities extracted.
	assert.Equal(t, 2, countKind(result.Entities, entity.KindClass))

	// Named fields become Field entities under the struct.
	db := findEntity(t, result.Entities, entity.KindField, "UserStore.db")
	require.NotNil(t, findRel(result.Relationships, entity.RelContains, cls.ID, db.ID))
}

func TestGoParserStructuralRelationships(t *testing.T) {
	root := t.TempDir()
	writeFixture(t, root, "store.go", goFixture)

	result, err := NewGoParser().ParseFiles(context.Background(), root, []string{"store.go"})
	require.NoError(t, err)

	file := findEntity(t, result.Entities, entity.KindFile, "store.go")
	cls := findEntity(t, result.Entities, entity.KindClass, "UserStore")
	save := findEntity(t, result.Entities, entity.KindMethod, "UserStore.Save")
	ctor := findEntity(t, result.Entities, entity.KindMethod, "NewUserStore")

	assert.NotNil(t, findRel(result.Relationships, entity.RelContains, file.ID, cls.ID))
	assert.NotNil(t, findRel(result.Relationships, entity.RelContains, cls.ID, save.ID))
	assert.NotNil(t, findRel(result.Relationships, entity.RelContains, file.ID, ctor.ID))
}

func TestGoParserResolvesCalls(t *testing.T) {
	root := t.TempDir()
	writeFixture(t, root, "store.go", goFixture)

	result, err := NewGoParser().ParseFiles(context.Background(), root, []string{"store.go"})
	require.NoError(t, err)

	save := findEntity(t, result.Entities, entity.KindMethod, "UserStore.Save")
	persist := findEntity(t, result.Entities, entity.KindMethod, "UserStore.persist")
	ctor := findEntity(t, result.Entities, entity.KindMethod, "NewUserStore")
	validate := findEntity(t, result.Entities, entity.KindMethod, "validate")

	call := findRel(result.Relationships, entity.RelCalls, save.ID, persist.ID)
	require.NotNil(t, call, "Save should call persist")
	assert.Equal(t, entity.ConfidenceExact, call.Confidence)

	require.NotNil(t, findRel(result.Relationships, entity.RelCalls, ctor.ID, validate.ID))
}

func TestGoParserEmbeddedTypeExtends(t *testing.T) {
	root := t.TempDir()
	writeFixture(t, root, "base.go", "package store\n\ntype BaseStore struct{}\n")
	writeFixture(t, root, "store.go", goFixture)

	result, err := NewGoParser().ParseFiles(context.Background(), root, []string{"base.go", "store.go"})
	require.NoError(t, err)

	base := findEntity(t, result.Entities, entity.KindClass, "BaseStore")
	cls := findEntity(t, result.Entities, entity.KindClass, "UserStore")

	ext := findRel(result.Relationships, entity.RelExtends, cls.ID, base.ID)
	require.NotNil(t, ext, "embedded BaseStore should resolve to EXTENDS")
}

func TestGoParserSyntaxErrorRecovered(t *testing.T) {
	root := t.TempDir()
	writeFixture(t, root, "good.go", "package store\n\nfunc OK() {}\n")
	writeFixture(t, root, "broken.go", "package store\n\nfunc Broken( {\n")

	result, err := NewGoParser().ParseFiles(context.Background(), root, []string{"good.go", "broken.go"})
	require.NoError(t, err, "a broken file must not abort the batch")

	require.NotEmpty(t, result.FileErrors)
	assert.Equal(t, "broken.go", result.FileErrors[0].FilePath)
	findEntity(t, result.Entities, entity.KindMethod, "OK")
}

func TestGoParserMissingFileRecovered(t *testing.T) {
	root := t.TempDir()
	writeFixture(t, root, "good.go", "package store\n\nfunc OK() {}\n")

	result, err := NewGoParser().ParseFiles(context.Background(), root, []string{"good.go", "nope.go"})
	require.NoError(t, err)

	assert.Equal(t, 1, result.FilesParsed)
	require.Len(t, result.FileErrors, 1)
	assert.Equal(t, "nope.go", result.FileErrors[0].FilePath)
}

func TestGoParserFileSizeLimit(t *testing.T) {
	root := t.TempDir()
	writeFixture(t, root, "big.go", "package store\n\nfunc Big() {}\n")

	p := NewGoParser(WithGoMaxFileSize(8))
	result, err := p.ParseFiles(context.Background(), root, []string{"big.go"})
	require.NoError(t, err)

	assert.Zero(t, result.FilesParsed)
	require.Len(t, result.FileErrors, 1)
	assert.Contains(t, result.FileErrors[0].Message, "exceeds limit")
}

func TestGoParserCanceledContext(t *testing.T) {
	root := t.TempDir()
	writeFixture(t, root, "good.go", "package store\n\nfunc OK() {}\n")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewGoParser().ParseFiles(ctx, root, []string{"good.go"})
	require.ErrorIs(t, err, ErrContextCanceled)
}

func TestGoParserDeterministicIDs(t *testing.T) {
	root := t.TempDir()
	writeFixture(t, root, "store.go", goFixture)

	first, err := NewGoParser().ParseFiles(context.Background(), root, []string{"store.go"})
	require.NoError(t, err)
	second, err := NewGoParser().ParseFiles(context.Background(), root, []string{"store.go"})
	require.NoError(t, err)

	require.Equal(t, len(first.Entities), len(second.Entities))
	for i := range first.Entities {
		assert.Equal(t, first.Entities[i].ID, second.Entities[i].ID)
	}
}
