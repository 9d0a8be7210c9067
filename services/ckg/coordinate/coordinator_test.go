// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package coordinate

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aidino/repochat-sub003/services/ckg/entity"
)

func writeFile(t *testing.T, root, name, content string) {
	t.Helper()
	path := filepath.Join(root, name)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func seedProject(t *testing.T) string {
	t.Helper()
	root := t.TempDir()
	writeFile(t, root, "main.go", "package main\n\nfunc main() {\n\trun()\n}\n\nfunc run() {}\n")
	writeFile(t, root, "util.py", "def helper():\n    pass\n")
	writeFile(t, root, "notes.txt", "not source code\n")
	return root
}

func TestCoordinateMergesLanguages(t *testing.T) {
	root := seedProject(t)
	c := NewCoordinator()

	result, err := c.Coordinate(context.Background(), ProjectSource{
		ProjectID: "proj-1",
		RootPath:  root,
		Files:     []string{"main.go", "util.py", "notes.txt"},
	})
	require.NoError(t, err)

	assert.Equal(t, "proj-1", result.ProjectID)
	require.Contains(t, result.Stats, "go")
	require.Contains(t, result.Stats, "python")
	assert.Equal(t, 1, result.Stats["go"].Files)
	assert.Equal(t, 1, result.Stats["python"].Files)

	// The unsupported .txt file is a warning, never a failure.
	require.Len(t, result.Warnings, 1)
	assert.Contains(t, result.Warnings[0], "unsupported language")
	assert.Contains(t, result.Warnings[0], "notes.txt")

	var languages []string
	for _, e := range result.Entities {
		languages = append(languages, e.Language)
	}
	assert.Contains(t, languages, "go")
	assert.Contains(t, languages, "python")
}

func TestCoordinateLanguageFilter(t *testing.T) {
	root := seedProject(t)
	c := NewCoordinator()

	result, err := c.Coordinate(context.Background(), ProjectSource{
		ProjectID: "proj-1",
		RootPath:  root,
		Languages: []string{"go"},
		Files:     []string{"main.go", "util.py"},
	})
	require.NoError(t, err)

	assert.Contains(t, result.Stats, "go")
	assert.NotContains(t, result.Stats, "python")
	require.Len(t, result.Warnings, 1)
	assert.Contains(t, result.Warnings[0], "excluded by request")
}

func TestCoordinateRecoversPerFileErrors(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "ok.go", "package main\n\nfunc OK() {}\n")

	c := NewCoordinator()
	result, err := c.Coordinate(context.Background(), ProjectSource{
		ProjectID: "proj-1",
		RootPath:  root,
		Files:     []string{"ok.go", "missing.go"},
	})
	require.NoError(t, err, "a missing file must not fail coordination")

	require.Len(t, result.Errors, 1)
	assert.Equal(t, "missing.go", result.Errors[0].FilePath)
	assert.Equal(t, 1, result.Stats["go"].Files)
	assert.Equal(t, 1, result.Stats["go"].ErrorCount)
}

func TestCoordinateUnreadableRoot(t *testing.T) {
	c := NewCoordinator()

	_, err := c.Coordinate(context.Background(), ProjectSource{
		ProjectID: "proj-1",
		RootPath:  filepath.Join(t.TempDir(), "does-not-exist"),
		Files:     []string{"main.go"},
	})
	require.ErrorIs(t, err, ErrRootUnreadable)
}

func TestCoordinateValidation(t *testing.T) {
	c := NewCoordinator()
	root := t.TempDir()

	_, err := c.Coordinate(context.Background(), ProjectSource{RootPath: root})
	require.ErrorIs(t, err, ErrInvalidInput)

	_, err = c.Coordinate(context.Background(), ProjectSource{ProjectID: "p"})
	require.ErrorIs(t, err, ErrInvalidInput)
}

func TestCoordinateEmptyFileList(t *testing.T) {
	c := NewCoordinator()
	root := t.TempDir()

	result, err := c.Coordinate(context.Background(), ProjectSource{
		ProjectID: "proj-1",
		RootPath:  root,
	})
	require.NoError(t, err)
	assert.Empty(t, result.Entities)
	assert.Empty(t, result.Stats)
}

func TestCoordinateNamespacedIDs(t *testing.T) {
	root := t.TempDir()
	// Same qualified name in two languages must not collide.
	writeFile(t, root, "svc.go", "package main\n\nfunc process() {}\n")
	writeFile(t, root, "svc.py", "def process():\n    pass\n")

	c := NewCoordinator()
	result, err := c.Coordinate(context.Background(), ProjectSource{
		ProjectID: "proj-1",
		RootPath:  root,
		Files:     []string{"svc.go", "svc.py"},
	})
	require.NoError(t, err)

	seen := map[string]bool{}
	var methods []*entity.CodeEntity
	for _, e := range result.Entities {
		require.False(t, seen[e.ID], "duplicate entity ID %s", e.ID)
		seen[e.ID] = true
		if e.Kind == entity.KindMethod {
			methods = append(methods, e)
		}
	}
	require.Len(t, methods, 2)
	assert.NotEqual(t, methods[0].ID, methods[1].ID)
}
