// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package entity defines the data model for the code knowledge graph.
//
// This package contains the core records shared by every stage of the
// engine: parsers produce CodeEntity and Relationship values, the graph
// builder persists them, and the analyzers read them back. All parser
// implementations (Go, Python, Kotlin, Dart) produce output conforming
// to these types.
//
// Design principles:
//   - Language-agnostic: types work for any supported language
//   - Deterministic IDs: re-parsing unchanged source yields identical IDs
//   - No map[string]interface{} - concrete types only
package entity

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Kind represents the type of code entity extracted from source code.
//
// Each kind maps to a common programming construct that exists across
// multiple languages. Language-specific constructs are mapped to the
// closest general kind (e.g., a Go struct maps to Class).
type Kind int

const (
	// KindUnknown indicates an unrecognized or unparseable entity.
	KindUnknown Kind = iota

	// KindProject represents the project root node.
	// Exactly one per project graph, created by the graph builder.
	KindProject

	// KindFile represents a source file.
	KindFile

	// KindClass represents a class-like type definition.
	// Examples: Go struct, Python class, Kotlin class, Dart class.
	KindClass

	// KindInterface represents an interface or protocol definition.
	// Examples: Go interface, Python Protocol, Kotlin interface.
	KindInterface

	// KindMethod represents a function or method declaration.
	// Top-level functions are represented as methods of their file scope.
	KindMethod

	// KindField represents a field within a class or struct.
	KindField

	// KindParameter represents a declared function or method parameter.
	KindParameter
)

// kindNames maps Kind values to their string representations.
var kindNames = map[Kind]string{
	KindUnknown:   "unknown",
	KindProject:   "Project",
	KindFile:      "File",
	KindClass:     "Class",
	KindInterface: "Interface",
	KindMethod:    "Method",
	KindField:     "Field",
	KindParameter: "Parameter",
}

// String returns the string representation of the Kind.
//
// Returns "unknown" for unrecognized values.
func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return "unknown"
}

// MarshalJSON implements json.Marshaler for Kind.
//
// Serializes the kind as a JSON string (e.g., "Class") rather than
// a number for better readability and forward compatibility.
func (k Kind) MarshalJSON() ([]byte, error) {
	return json.Marshal(k.String())
}

// UnmarshalJSON implements json.Unmarshaler for Kind.
//
// Accepts both string values (e.g., "Class") and numeric values
// for backward compatibility.
func (k *Kind) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		*k = ParseKind(s)
		return nil
	}

	var i int
	if err := json.Unmarshal(data, &i); err != nil {
		return fmt.Errorf("Kind must be string or int: %w", err)
	}
	*k = Kind(i)
	return nil
}

// ParseKind converts a string to a Kind.
//
// Returns KindUnknown if the string is not recognized.
func ParseKind(s string) Kind {
	for kind, name := range kindNames {
		if name == s {
			return kind
		}
	}
	return KindUnknown
}

// Visibility represents the declared access level of an entity.
type Visibility int

const (
	// VisibilityDefault indicates the language default or an unknown level.
	// Used when the grammar does not expose visibility information.
	VisibilityDefault Visibility = iota

	// VisibilityPublic indicates a publicly accessible entity.
	// In Go: exported identifier. In Python: no underscore prefix.
	VisibilityPublic

	// VisibilityPrivate indicates a private entity.
	VisibilityPrivate

	// VisibilityProtected indicates a protected entity (subclass access).
	VisibilityProtected

	// VisibilityPackage indicates package or internal scope.
	// In Go: unexported identifier. In Kotlin: internal.
	VisibilityPackage
)

// visibilityNames maps Visibility values to their string representations.
var visibilityNames = map[Visibility]string{
	VisibilityDefault:   "default",
	VisibilityPublic:    "public",
	VisibilityPrivate:   "private",
	VisibilityProtected: "protected",
	VisibilityPackage:   "package",
}

// String returns the string representation of the Visibility.
func (v Visibility) String() string {
	if name, ok := visibilityNames[v]; ok {
		return name
	}
	return "default"
}

// MarshalJSON implements json.Marshaler for Visibility.
func (v Visibility) MarshalJSON() ([]byte, error) {
	return json.Marshal(v.String())
}

// UnmarshalJSON implements json.Unmarshaler for Visibility.
func (v *Visibility) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		*v = ParseVisibility(s)
		return nil
	}

	var i int
	if err := json.Unmarshal(data, &i); err != nil {
		return fmt.Errorf("Visibility must be string or int: %w", err)
	}
	*v = Visibility(i)
	return nil
}

// ParseVisibility converts a string to a Visibility.
//
// Returns VisibilityDefault if the string is not recognized.
func ParseVisibility(s string) Visibility {
	for vis, name := range visibilityNames {
		if name == s {
			return vis
		}
	}
	return VisibilityDefault
}

// RelType represents the type of a directed relationship between entities.
type RelType int

const (
	// RelUnknown indicates an unrecognized relationship type.
	RelUnknown RelType = iota

	// RelContains represents structural nesting.
	// Examples: Project->File, File->Class, Class->Method.
	RelContains

	// RelCalls represents a call from one callable entity to another.
	RelCalls

	// RelExtends represents class inheritance or embedding.
	RelExtends

	// RelImplements represents interface implementation.
	RelImplements

	// RelReferences represents any other use of an entity by name.
	RelReferences
)

// relTypeNames maps RelType values to their string representations.
var relTypeNames = map[RelType]string{
	RelUnknown:    "UNKNOWN",
	RelContains:   "CONTAINS",
	RelCalls:      "CALLS",
	RelExtends:    "EXTENDS",
	RelImplements: "IMPLEMENTS",
	RelReferences: "REFERENCES",
}

// String returns the string representation of the RelType.
func (t RelType) String() string {
	if name, ok := relTypeNames[t]; ok {
		return name
	}
	return "UNKNOWN"
}

// MarshalJSON implements json.Marshaler for RelType.
func (t RelType) MarshalJSON() ([]byte, error) {
	return json.Marshal(t.String())
}

// UnmarshalJSON implements json.Unmarshaler for RelType.
func (t *RelType) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		*t = ParseRelType(s)
		return nil
	}

	var i int
	if err := json.Unmarshal(data, &i); err != nil {
		return fmt.Errorf("RelType must be string or int: %w", err)
	}
	*t = RelType(i)
	return nil
}

// ParseRelType converts a string to a RelType.
//
// Returns RelUnknown if the string is not recognized.
func ParseRelType(s string) RelType {
	for t, name := range relTypeNames {
		if name == s {
			return t
		}
	}
	return RelUnknown
}

// Confidence indicates how certain the extractor is about a relationship.
type Confidence int

const (
	// ConfidenceExact indicates the relationship was resolved unambiguously.
	ConfidenceExact Confidence = iota

	// ConfidenceHeuristic indicates the relationship was resolved by a
	// documented tie-break rule and may point at the wrong declaration.
	// Downstream analyzers may discount heuristic edges.
	ConfidenceHeuristic
)

// String returns the string representation of the Confidence.
func (c Confidence) String() string {
	if c == ConfidenceHeuristic {
		return "heuristic"
	}
	return "exact"
}

// MarshalJSON implements json.Marshaler for Confidence.
func (c Confidence) MarshalJSON() ([]byte, error) {
	return json.Marshal(c.String())
}

// UnmarshalJSON implements json.Unmarshaler for Confidence.
func (c *Confidence) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		var i int
		if err := json.Unmarshal(data, &i); err != nil {
			return fmt.Errorf("Confidence must be string or int: %w", err)
		}
		*c = Confidence(i)
		return nil
	}
	if s == "heuristic" {
		*c = ConfidenceHeuristic
	} else {
		*c = ConfidenceExact
	}
	return nil
}

// GenerateID creates a deterministic identifier for an entity.
//
// Format: "language:file_path:qualified_name"
//
// The ID is derived from stable declaration properties only, never from
// random values or timestamps, so re-parsing unchanged source yields
// identical IDs. Namespacing by language and file path avoids collisions
// between same-named entities in different files or languages.
//
// Callers MUST validate that filePath is within the project boundary
// before calling this function; it performs no path validation itself.
func GenerateID(language, filePath, qualifiedName string) string {
	return fmt.Sprintf("%s:%s:%s", language, filePath, qualifiedName)
}

// ProjectEntityID returns the ID of the synthetic project root entity.
func ProjectEntityID(projectID string) string {
	return fmt.Sprintf("project:%s", projectID)
}

// CodeEntity represents a code construct as a graph node.
//
// An entity is any named code construct: file, class, method, field, etc.
// Entities form the nodes in the code graph, with relationships
// representing edges like CALLS or EXTENDS.
type CodeEntity struct {
	// ID is the deterministic identifier, see GenerateID.
	ID string `json:"id"`

	// Kind indicates what type of entity this is.
	Kind Kind `json:"kind"`

	// Name is the entity's identifier as it appears in source code.
	Name string `json:"name"`

	// QualifiedName is the name qualified by its enclosing scopes.
	// Example: "UserService.Create" for a method of class UserService.
	QualifiedName string `json:"qualified_name"`

	// FilePath is the path to the containing file, relative to project root.
	FilePath string `json:"file_path"`

	// StartLine is the 1-indexed line where the declaration starts.
	StartLine int `json:"start_line"`

	// EndLine is the 1-indexed line where the declaration ends.
	EndLine int `json:"end_line"`

	// Visibility is the declared access level.
	// VisibilityDefault when the grammar does not provide one.
	Visibility Visibility `json:"visibility"`

	// Language is the source language tag, e.g. "go", "python".
	Language string `json:"language"`

	// Signature holds parameter types and return type for methods.
	// Empty when the grammar does not provide it.
	Signature string `json:"signature,omitempty"`

	// Arity is the declared parameter count for methods.
	// Used for call-site resolution; zero for non-method entities.
	Arity int `json:"arity,omitempty"`
}

// Validate checks if the CodeEntity has valid field values.
//
// Returns nil if valid, or a ValidationError describing the first
// invalid field.
func (e *CodeEntity) Validate() error {
	if e.ID == "" {
		return ValidationError{Field: "ID", Message: "must not be empty"}
	}

	if e.Name == "" {
		return ValidationError{Field: "Name", Message: "must not be empty"}
	}

	if e.Kind == KindUnknown {
		return ValidationError{Field: "Kind", Message: "must not be unknown"}
	}

	// The synthetic project root has no file location.
	if e.Kind == KindProject {
		return nil
	}

	if e.FilePath == "" {
		return ValidationError{Field: "FilePath", Message: "must not be empty"}
	}

	// Check for path traversal attempts
	if strings.Contains(e.FilePath, "..") {
		return ValidationError{Field: "FilePath", Message: "must not contain path traversal (..)"}
	}

	if e.StartLine < 1 {
		return ValidationError{Field: "StartLine", Message: "must be >= 1 (1-indexed)"}
	}

	if e.EndLine < e.StartLine {
		return ValidationError{Field: "EndLine", Message: "must be >= StartLine"}
	}

	if e.Language == "" {
		return ValidationError{Field: "Language", Message: "must not be empty"}
	}

	return nil
}

// Relationship represents a typed, directed edge between two entities.
type Relationship struct {
	// Type is the relationship type (CONTAINS, CALLS, ...).
	Type RelType `json:"type"`

	// SourceID is the entity ID of the edge source.
	SourceID string `json:"source_id"`

	// TargetID is the entity ID of the edge target.
	TargetID string `json:"target_id"`

	// Confidence marks whether the edge was resolved exactly or by heuristic.
	Confidence Confidence `json:"confidence"`

	// SourceLine is the 1-indexed line of the relationship site
	// (e.g. the call site for CALLS edges). Zero when not applicable.
	SourceLine int `json:"source_line,omitempty"`
}

// Validate checks if the Relationship has valid field values.
func (r *Relationship) Validate() error {
	if r.Type == RelUnknown {
		return ValidationError{Field: "Type", Message: "must not be unknown"}
	}

	if r.SourceID == "" {
		return ValidationError{Field: "SourceID", Message: "must not be empty"}
	}

	if r.TargetID == "" {
		return ValidationError{Field: "TargetID", Message: "must not be empty"}
	}

	return nil
}

// ValidationError represents a validation failure with field context.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}
