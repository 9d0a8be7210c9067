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
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"
	"unicode/utf8"

	"github.com/aidino/repochat-sub003/services/ckg/entity"
)

// File size limits shared by all parsers.
const (
	// DefaultMaxFileSize is the maximum file size a parser will accept (10MB).
	DefaultMaxFileSize = 10 * 1024 * 1024

	// WarnFileSize is the threshold at which a warning is logged (1MB).
	WarnFileSize = 1 * 1024 * 1024
)

// fileResult holds the per-file output of a language parser before
// batch-level resolution.
type fileResult struct {
	entities []*entity.CodeEntity

	// rels holds structural CONTAINS edges whose endpoints are already
	// known within the file.
	rels []*entity.Relationship

	// calls holds unresolved call sites for batch resolution.
	calls []callSite

	// typeRefs holds unresolved type references for batch resolution.
	typeRefs []typeRef

	// errors holds recovered, partial-parse error messages.
	errors []string
}

// fileExtractor is the per-file capability each language parser implements.
// parseBatch drives it across a file batch and performs the shared work:
// I/O, guards, error recovery, and batch-level call/type resolution.
type fileExtractor interface {
	Language() string
	maxSize() int64
	extractFile(ctx context.Context, content []byte, filePath string) (*fileResult, error)
}

// parseBatch runs the shared batch pipeline for one language parser.
//
// Per-file failures (unreadable file, size limit, invalid UTF-8, parser
// failure) are recovered into Result.FileErrors and never abort the batch.
// Only a canceled context aborts the whole call.
func parseBatch(ctx context.Context, ext fileExtractor, rootPath string, paths []string) (*Result, error) {
	if ctx == nil {
		return nil, ErrInvalidInput
	}

	ctx, span := startBatchSpan(ctx, ext.Language(), len(paths))
	defer span.End()

	start := time.Now()
	result := &Result{
		Language:      ext.Language(),
		Entities:      make([]*entity.CodeEntity, 0),
		Relationships: make([]*entity.Relationship, 0),
		FileErrors:    make([]FileError, 0),
	}

	var calls []callSite
	var typeRefs []typeRef

	for _, path := range paths {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrContextCanceled, err)
		}

		content, err := os.ReadFile(filepath.Join(rootPath, path))
		if err != nil {
			result.FileErrors = append(result.FileErrors, FileError{
				FilePath: path,
				Message:  fmt.Sprintf("read: %v", err),
			})
			continue
		}

		if int64(len(content)) > ext.maxSize() {
			result.FileErrors = append(result.FileErrors, FileError{
				FilePath: path,
				Message:  fmt.Sprintf("%v: size %d exceeds limit %d", ErrFileTooLarge, len(content), ext.maxSize()),
			})
			continue
		}

		if len(content) > WarnFileSize {
			slog.Warn("parsing large file",
				slog.String("file", path),
				slog.Int("size_bytes", len(content)))
		}

		if !utf8.Valid(content) {
			result.FileErrors = append(result.FileErrors, FileError{
				FilePath: path,
				Message:  ErrInvalidContent.Error(),
			})
			continue
		}

		fr, err := ext.extractFile(ctx, content, path)
		if err != nil {
			result.FileErrors = append(result.FileErrors, FileError{
				FilePath: path,
				Message:  err.Error(),
			})
			// Partial entities from a failed file are still usable.
			if fr == nil {
				continue
			}
		}

		for _, msg := range fr.errors {
			result.FileErrors = append(result.FileErrors, FileError{FilePath: path, Message: msg})
		}

		result.Entities = append(result.Entities, fr.entities...)
		result.Relationships = append(result.Relationships, fr.rels...)
		calls = append(calls, fr.calls...)
		typeRefs = append(typeRefs, fr.typeRefs...)
		result.FilesParsed++
	}

	// Batch-level resolution: call sites and type references are matched
	// against entities of this batch only.
	resolver := newBatchResolver(result.Entities)
	result.Relationships = append(result.Relationships, resolver.resolveCalls(calls)...)
	result.Relationships = append(result.Relationships, resolver.resolveTypeRefs(typeRefs)...)

	result.DurationMs = time.Since(start).Milliseconds()

	setBatchSpanResult(span, len(result.Entities), len(result.Relationships), len(result.FileErrors))
	recordBatchMetrics(ctx, ext.Language(), time.Since(start), len(result.Entities), len(result.FileErrors))

	return result, nil
}

// newFileEntity builds the File entity for a parsed source file.
func newFileEntity(language, filePath string, content []byte) *entity.CodeEntity {
	lines := bytes.Count(content, []byte("\n")) + 1
	return &entity.CodeEntity{
		ID:            entity.GenerateID(language, filePath, filePath),
		Kind:          entity.KindFile,
		Name:          filepath.Base(filePath),
		QualifiedName: filePath,
		FilePath:      filePath,
		StartLine:     1,
		EndLine:       lines,
		Visibility:    entity.VisibilityDefault,
		Language:      language,
	}
}

// containsEdge builds a CONTAINS relationship between two entities.
func containsEdge(parentID, childID string, line int) *entity.Relationship {
	return &entity.Relationship{
		Type:       entity.RelContains,
		SourceID:   parentID,
		TargetID:   childID,
		Confidence: entity.ConfidenceExact,
		SourceLine: line,
	}
}
