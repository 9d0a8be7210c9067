// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package parser provides language-specific extraction of code entities
// and relationships for the knowledge graph.
//
// Each supported language has one Parser implementation. Implementations
// are selected through an explicit Registry keyed by language tag; adding
// a language means registering a new implementation, never branching
// caller logic.
package parser

import (
	"context"
	"sync"

	"github.com/aidino/repochat-sub003/services/ckg/entity"
)

// FileError records a recovered, per-file parse failure.
//
// A FileError never aborts a batch: the file contributes zero or partial
// entities and the error is reported alongside the successful results.
type FileError struct {
	// FilePath is the failing file, relative to the project root.
	FilePath string `json:"file_path"`

	// Message is a human-readable description of the failure.
	Message string `json:"message"`
}

// Result contains the output of parsing one language's file batch.
type Result struct {
	// Language is the language tag of this batch, e.g. "go".
	Language string `json:"language"`

	// Entities contains all entities extracted from the batch.
	Entities []*entity.CodeEntity `json:"entities"`

	// Relationships contains all relationships resolved within the batch.
	// Both endpoints always reference entities present in Entities.
	Relationships []*entity.Relationship `json:"relationships"`

	// FileErrors contains recovered per-file failures.
	FileErrors []FileError `json:"file_errors,omitempty"`

	// FilesParsed is the number of files that produced entities.
	FilesParsed int `json:"files_parsed"`

	// DurationMs is how long the batch took in milliseconds.
	DurationMs int64 `json:"duration_ms"`
}

// Parser defines the contract for language-specific entity extraction.
//
// # Description
//
// Parser implementations extract entities and relationships from a batch
// of source files of one language. Call sites and type references are
// resolved within the batch only; cross-language resolution is out of
// scope (the engine does best-effort symbol resolution, not compiler-grade
// resolution).
//
// # Thread Safety
//
// Implementations must be safe for concurrent use. Multiple goroutines
// may call ParseFiles simultaneously with different batches.
type Parser interface {
	// ParseFiles parses the given files (paths relative to rootPath) and
	// returns the extracted entities and batch-resolved relationships.
	//
	// Individual file failures are recovered into Result.FileErrors; a
	// non-nil error is returned only for whole-batch failures such as a
	// canceled context.
	ParseFiles(ctx context.Context, rootPath string, paths []string) (*Result, error)

	// Language returns the canonical language tag this parser handles,
	// e.g. "go", "python", "kotlin", "dart".
	Language() string

	// Extensions returns the file extensions this parser handles,
	// including the leading dot. Extensions are lowercase.
	Extensions() []string
}

// Registry manages parser instances by language tag and file extension.
//
// # Description
//
// Registry is the polymorphism point of the coordinator: files are
// dispatched to the parser registered for their language tag. Languages
// with no registered parser are skipped by the caller with a recorded
// warning.
//
// # Thread Safety
//
// Registry is fully thread-safe. Registration uses write locks, lookups
// use read locks.
type Registry struct {
	mu          sync.RWMutex
	byLanguage  map[string]Parser
	byExtension map[string]Parser
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{
		byLanguage:  make(map[string]Parser),
		byExtension: make(map[string]Parser),
	}
}

// DefaultRegistry returns a Registry with all built-in parsers registered:
// Go and Python (full grammar), Kotlin and Dart (pattern-based).
func DefaultRegistry() *Registry {
	r := NewRegistry()
	r.Register(NewGoParser())
	r.Register(NewPythonParser())
	r.Register(NewKotlinParser())
	r.Register(NewDartParser())
	return r
}

// Register adds a parser to the registry.
//
// A parser registered for an already-registered language or extension
// replaces the previous registration.
func (r *Registry) Register(p Parser) {
	if p == nil {
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	r.byLanguage[p.Language()] = p
	for _, ext := range p.Extensions() {
		r.byExtension[ext] = p
	}
}

// ForLanguage returns the parser registered for the given language tag.
func (r *Registry) ForLanguage(language string) (Parser, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	p, ok := r.byLanguage[language]
	return p, ok
}

// ForExtension returns the parser registered for the given file extension
// (including the leading dot).
func (r *Registry) ForExtension(ext string) (Parser, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	p, ok := r.byExtension[ext]
	return p, ok
}

// Languages returns the language tags with a registered parser.
func (r *Registry) Languages() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	langs := make([]string, 0, len(r.byLanguage))
	for lang := range r.byLanguage {
		langs = append(langs, lang)
	}
	return langs
}
