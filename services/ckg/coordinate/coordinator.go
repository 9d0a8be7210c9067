// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package coordinate groups project files by language and drives the
// language parsers concurrently, merging their results into one view of
// the project.
package coordinate

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/aidino/repochat-sub003/services/ckg/entity"
	"github.com/aidino/repochat-sub003/services/ckg/parser"
)

// ProjectSource describes one project scan request.
type ProjectSource struct {
	// ProjectID identifies the project being scanned.
	ProjectID string `json:"project_id"`

	// RootPath is the absolute path to the project root. All file paths
	// are relative to it.
	RootPath string `json:"root_path"`

	// Languages optionally restricts the scan to the given language tags.
	// Empty means every registered language.
	Languages []string `json:"languages,omitempty"`

	// Files lists the source files to scan, relative to RootPath.
	Files []string `json:"files"`
}

// LanguageStats summarizes one language batch.
type LanguageStats struct {
	Language      string `json:"language"`
	Files         int    `json:"files"`
	Entities      int    `json:"entities"`
	Relationships int    `json:"relationships"`
	ErrorCount    int    `json:"error_count"`
	DurationMs    int64  `json:"duration_ms"`
}

// Result is the merged output of one coordinated scan.
type Result struct {
	// ProjectID echoes the scanned project.
	ProjectID string `json:"project_id"`

	// Entities contains all entities from every language batch.
	Entities []*entity.CodeEntity `json:"entities"`

	// Relationships contains all relationships from every language batch.
	Relationships []*entity.Relationship `json:"relationships"`

	// Stats holds per-language batch statistics keyed by language tag.
	Stats map[string]LanguageStats `json:"stats"`

	// Errors aggregates recovered per-file parse errors across batches.
	Errors []parser.FileError `json:"errors,omitempty"`

	// Warnings records skipped files, e.g. unsupported languages.
	Warnings []string `json:"warnings,omitempty"`

	// DurationMs is the total coordination time in milliseconds.
	DurationMs int64 `json:"duration_ms"`
}

// Option configures a Coordinator.
type Option func(*Coordinator)

// WithRegistry replaces the parser registry.
func WithRegistry(r *parser.Registry) Option {
	return func(c *Coordinator) {
		if r != nil {
			c.registry = r
		}
	}
}

// WithMaxWorkers bounds the number of concurrent language batches.
func WithMaxWorkers(n int) Option {
	return func(c *Coordinator) {
		if n > 0 {
			c.maxWorkers = n
		}
	}
}

// WithLogger sets the logger used for coordination events.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Coordinator) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// Coordinator dispatches file batches to language parsers.
//
// # Description
//
// Coordinator groups the requested files by language (via the parser
// registry's extension mapping), runs one parse task per language on a
// bounded worker pool, and merges the batch results. A file whose language
// has no registered parser is skipped with a recorded warning; only an
// unreadable project root fails the whole call.
//
// # Thread Safety
//
// Coordinator is safe for concurrent use. Each Coordinate call owns its
// result buffers; workers write only to their own slot.
type Coordinator struct {
	registry   *parser.Registry
	maxWorkers int
	logger     *slog.Logger
}

// NewCoordinator creates a Coordinator with the default parser registry
// and a worker limit of runtime.NumCPU().
func NewCoordinator(opts ...Option) *Coordinator {
	c := &Coordinator{
		registry:   parser.DefaultRegistry(),
		maxWorkers: runtime.NumCPU(),
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// languageBatch is one language's share of the file list.
type languageBatch struct {
	language string
	parser   parser.Parser
	files    []string
}

// Coordinate scans the given project source and returns the merged
// entities and relationships of every supported language batch.
//
// # Inputs
//
//   - ctx: cancellation context. Cancellation aborts in-flight batches.
//   - src: the project scan request. ProjectID, RootPath, and Files are
//     required.
//
// # Outputs
//
//   - *Result: merged scan output. Per-file failures appear in
//     Result.Errors, skipped files in Result.Warnings.
//   - error: ErrInvalidInput for a malformed request, ErrRootUnreadable
//     when the root cannot be accessed, or a context error.
func (c *Coordinator) Coordinate(ctx context.Context, src ProjectSource) (*Result, error) {
	if ctx == nil {
		return nil, fmt.Errorf("%w: nil context", ErrInvalidInput)
	}
	if src.ProjectID == "" {
		return nil, fmt.Errorf("%w: project ID is required", ErrInvalidInput)
	}
	if src.RootPath == "" {
		return nil, fmt.Errorf("%w: root path is required", ErrInvalidInput)
	}

	info, err := os.Stat(src.RootPath)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRootUnreadable, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("%w: %s is not a directory", ErrRootUnreadable, src.RootPath)
	}

	start := time.Now()
	result := &Result{
		ProjectID:     src.ProjectID,
		Entities:      make([]*entity.CodeEntity, 0),
		Relationships: make([]*entity.Relationship, 0),
		Stats:         make(map[string]LanguageStats),
	}

	batches := c.groupByLanguage(src, result)
	if len(batches) == 0 {
		result.DurationMs = time.Since(start).Milliseconds()
		return result, nil
	}

	c.logger.Info("coordinating project scan",
		slog.String("project_id", src.ProjectID),
		slog.Int("files", len(src.Files)),
		slog.Int("language_batches", len(batches)))

	// One parse task per language; each worker writes only its own slot.
	parseResults := make([]*parser.Result, len(batches))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.maxWorkers)
	for i, batch := range batches {
		i, batch := i, batch
		g.Go(func() error {
			pr, err := batch.parser.ParseFiles(gctx, src.RootPath, batch.files)
			if err != nil {
				return fmt.Errorf("parse %s batch: %w", batch.language, err)
			}
			parseResults[i] = pr
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	// Merge in batch order; batches are sorted by language so the merged
	// output is deterministic.
	for _, pr := range parseResults {
		result.Entities = append(result.Entities, pr.Entities...)
		result.Relationships = append(result.Relationships, pr.Relationships...)
		result.Errors = append(result.Errors, pr.FileErrors...)
		result.Stats[pr.Language] = LanguageStats{
			Language:      pr.Language,
			Files:         pr.FilesParsed,
			Entities:      len(pr.Entities),
			Relationships: len(pr.Relationships),
			ErrorCount:    len(pr.FileErrors),
			DurationMs:    pr.DurationMs,
		}
	}

	result.DurationMs = time.Since(start).Milliseconds()

	c.logger.Info("project scan complete",
		slog.String("project_id", src.ProjectID),
		slog.Int("entities", len(result.Entities)),
		slog.Int("relationships", len(result.Relationships)),
		slog.Int("errors", len(result.Errors)),
		slog.Int64("duration_ms", result.DurationMs))

	return result, nil
}

// groupByLanguage splits the file list into per-language batches,
// recording a warning for every file with no registered parser or a
// language excluded by the request filter.
func (c *Coordinator) groupByLanguage(src ProjectSource, result *Result) []languageBatch {
	allowed := map[string]bool{}
	for _, lang := range src.Languages {
		allowed[lang] = true
	}

	byLanguage := make(map[string]*languageBatch)
	for _, file := range src.Files {
		ext := filepath.Ext(file)
		p, ok := c.registry.ForExtension(ext)
		if !ok {
			result.Warnings = append(result.Warnings,
				fmt.Sprintf("unsupported language: no parser for %s (file %s)", ext, file))
			continue
		}
		if len(allowed) > 0 && !allowed[p.Language()] {
			result.Warnings = append(result.Warnings,
				fmt.Sprintf("language %s excluded by request (file %s)", p.Language(), file))
			continue
		}

		batch, ok := byLanguage[p.Language()]
		if !ok {
			batch = &languageBatch{language: p.Language(), parser: p}
			byLanguage[p.Language()] = batch
		}
		batch.files = append(batch.files, file)
	}

	batches := make([]languageBatch, 0, len(byLanguage))
	for _, b := range byLanguage {
		batches = append(batches, *b)
	}
	sort.Slice(batches, func(i, j int) bool {
		return batches[i].language < batches[j].language
	})
	return batches
}
