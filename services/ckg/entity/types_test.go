// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package entity

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateIDDeterministic(t *testing.T) {
	id1 := GenerateID("go", "pkg/user.go", "UserService.Create")
	id2 := GenerateID("go", "pkg/user.go", "UserService.Create")
	assert.Equal(t, id1, id2)
	assert.Equal(t, "go:pkg/user.go:UserService.Create", id1)
}

func TestGenerateIDNamespacing(t *testing.T) {
	// Same qualified name in different languages or files must not collide.
	goID := GenerateID("go", "a/svc.go", "Service")
	pyID := GenerateID("python", "a/svc.py", "Service")
	otherFile := GenerateID("go", "b/svc.go", "Service")

	assert.NotEqual(t, goID, pyID)
	assert.NotEqual(t, goID, otherFile)
}

func TestKindJSONRoundTrip(t *testing.T) {
	data, err := json.Marshal(KindClass)
	require.NoError(t, err)
	assert.Equal(t, `"Class"`, string(data))

	var k Kind
	require.NoError(t, json.Unmarshal(data, &k))
	assert.Equal(t, KindClass, k)

	// Numeric fallback for old payloads.
	require.NoError(t, json.Unmarshal([]byte("5"), &k))
	assert.Equal(t, KindMethod, k)
}

func TestConfidenceJSON(t *testing.T) {
	data, err := json.Marshal(ConfidenceHeuristic)
	require.NoError(t, err)
	assert.Equal(t, `"heuristic"`, string(data))

	var c Confidence
	require.NoError(t, json.Unmarshal(data, &c))
	assert.Equal(t, ConfidenceHeuristic, c)
}

func TestCodeEntityValidate(t *testing.T) {
	valid := &CodeEntity{
		ID:            GenerateID("go", "a.go", "Foo"),
		Kind:          KindClass,
		Name:          "Foo",
		QualifiedName: "Foo",
		FilePath:      "a.go",
		StartLine:     1,
		EndLine:       10,
		Language:      "go",
	}
	require.NoError(t, valid.Validate())

	tests := []struct {
		name   string
		mutate func(*CodeEntity)
		field  string
	}{
		{"empty name", func(e *CodeEntity) { e.Name = "" }, "Name"},
		{"unknown kind", func(e *CodeEntity) { e.Kind = KindUnknown }, "Kind"},
		{"empty path", func(e *CodeEntity) { e.FilePath = "" }, "FilePath"},
		{"path traversal", func(e *CodeEntity) { e.FilePath = "../etc/passwd" }, "FilePath"},
		{"zero start line", func(e *CodeEntity) { e.StartLine = 0 }, "StartLine"},
		{"end before start", func(e *CodeEntity) { e.EndLine = 0 }, "EndLine"},
		{"empty language", func(e *CodeEntity) { e.Language = "" }, "Language"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := *valid
			tt.mutate(&e)
			err := e.Validate()
			require.Error(t, err)
			var verr ValidationError
			require.ErrorAs(t, err, &verr)
			assert.Equal(t, tt.field, verr.Field)
		})
	}
}

func TestProjectEntitySkipsLocationChecks(t *testing.T) {
	p := &CodeEntity{
		ID:   ProjectEntityID("proj-1"),
		Kind: KindProject,
		Name: "proj-1",
	}
	assert.NoError(t, p.Validate())
}

func TestRelationshipValidate(t *testing.T) {
	r := &Relationship{
		Type:     RelCalls,
		SourceID: "go:a.go:A.foo",
		TargetID: "go:b.go:B.bar",
	}
	require.NoError(t, r.Validate())

	r2 := *r
	r2.TargetID = ""
	assert.Error(t, r2.Validate())

	r3 := *r
	r3.Type = RelUnknown
	assert.Error(t, r3.Validate())
}
