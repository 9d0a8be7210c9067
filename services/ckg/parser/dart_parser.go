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
	"regexp"
	"strings"

	"github.com/aidino/repochat-sub003/services/ckg/entity"
)

// Dart has no grammar binding in this module either; like the Kotlin
// extractor this one is pattern-based and best-effort. Classes, mixins,
// enums, and function declarations are matched line by line.
var (
	dartClassRe = regexp.MustCompile(`^\s*(?:(?:abstract|base|final|sealed|interface)\s+)*(class|mixin|enum)\s+(\w+)(?:<[^>]*>)?(?:\s+(extends|with|implements|on)\s+([^{]+))?`)
	dartFuncRe  = regexp.MustCompile(`^\s*(?:static\s+)?(?:(?:[\w<>,?\s\[\]]+\s+)?)?(\w+)\s*\(([^)]*)\)\s*(?:async\s*\*?\s*)?\{`)
	dartCallRe  = regexp.MustCompile(`(?:^|[^\w.])(\w+)\s*\(`)
)

var dartKeywords = map[string]bool{
	"if": true, "else": true, "for": true, "while": true, "switch": true,
	"return": true, "class": true, "void": true, "var": true, "final": true,
	"const": true, "new": true, "try": true, "catch": true, "throw": true,
	"print": true, "assert": true, "await": true, "async": true,
	"yield": true, "super": true, "this": true, "required": true,
	"setState": true, "build": true,
}

// DartParserOption configures a DartParser instance.
type DartParserOption func(*DartParser)

// WithDartMaxFileSize sets the maximum file size the parser will accept.
func WithDartMaxFileSize(bytes int64) DartParserOption {
	return func(p *DartParser) {
		if bytes > 0 {
			p.maxFileSize = bytes
		}
	}
}

// DartParser implements the Parser interface for Dart source code using
// pattern-based extraction.
//
// # Thread Safety
//
// DartParser instances are safe for concurrent use.
type DartParser struct {
	maxFileSize int64
}

// NewDartParser creates a new DartParser with the given options.
func NewDartParser(opts ...DartParserOption) *DartParser {
	p := &DartParser{maxFileSize: DefaultMaxFileSize}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// ParseFiles extracts entities and relationships from a batch of Dart files.
func (p *DartParser) ParseFiles(ctx context.Context, rootPath string, paths []string) (*Result, error) {
	return parseBatch(ctx, p, rootPath, paths)
}

// Language returns the canonical language tag for this parser.
func (p *DartParser) Language() string { return "dart" }

// Extensions returns the file extensions this parser handles.
func (p *DartParser) Extensions() []string { return []string{".dart"} }

func (p *DartParser) maxSize() int64 { return p.maxFileSize }

func (p *DartParser) extractFile(ctx context.Context, content []byte, filePath string) (*fileResult, error) {
	fr := &fileResult{}
	file := newFileEntity("dart", filePath, content)
	fr.entities = append(fr.entities, file)

	lines := strings.Split(string(content), "\n")

	var currentClass *entity.CodeEntity
	var classIndent int
	var currentMethodID string

	for i, line := range lines {
		lineNo := i + 1
		trimmed := strings.TrimSpace(line)
		if trimmed == "" || strings.HasPrefix(trimmed, "//") || strings.HasPrefix(trimmed, "*") {
			continue
		}
		indent := len(line) - len(strings.TrimLeft(line, " \t"))

		if m := dartClassRe.FindStringSubmatch(line); m != nil {
			name := m[2]
			cls := &entity.CodeEntity{
				ID:            entity.GenerateID("dart", filePath, name),
				Kind:          entity.KindClass,
				Name:          name,
				QualifiedName: name,
				FilePath:      filePath,
				StartLine:     lineNo,
				EndLine:       lineNo,
				Visibility:    dartVisibility(name),
				Language:      "dart",
			}
			fr.entities = append(fr.entities, cls)
			fr.rels = append(fr.rels, containsEdge(file.ID, cls.ID, lineNo))

			for _, ref := range dartSupertypes(line) {
				fr.typeRefs = append(fr.typeRefs, ref.bind(cls.ID, lineNo))
			}

			currentClass = cls
			classIndent = indent
			currentMethodID = ""
			continue
		}

		if m := dartFuncRe.FindStringSubmatch(line); m != nil {
			name := m[1]
			if dartKeywords[name] || name == "" {
				continue
			}
			// Constructors share the class name; skip them so the class
			// entity is not shadowed by a same-named method.
			if currentClass != nil && name == currentClass.Name {
				continue
			}
			parent := file
			qn := name
			if currentClass != nil && indent > classIndent {
				parent = currentClass
				qn = currentClass.Name + "." + name
			}
			fn := &entity.CodeEntity{
				ID:            entity.GenerateID("dart", filePath, qn),
				Kind:          entity.KindMethod,
				Name:          name,
				QualifiedName: qn,
				FilePath:      filePath,
				StartLine:     lineNo,
				EndLine:       lineNo,
				Visibility:    dartVisibility(name),
				Language:      "dart",
				Signature:     name + "(" + strings.TrimSpace(m[2]) + ")",
				Arity:         countParams(m[2]),
			}
			fr.entities = append(fr.entities, fn)
			fr.rels = append(fr.rels, containsEdge(parent.ID, fn.ID, lineNo))
			currentMethodID = fn.ID
			continue
		}

		if currentMethodID != "" {
			for _, m := range dartCallRe.FindAllStringSubmatch(trimmed, -1) {
				name := m[1]
				if dartKeywords[name] || isUpperInitial(name) {
					continue
				}
				fr.calls = append(fr.calls, callSite{
					CallerID: currentMethodID,
					Name:     name,
					Arity:    -1,
					Line:     lineNo,
				})
			}
		}
	}

	return fr, nil
}

// pendingTypeRef is a supertype reference before it is bound to its
// declaring class entity.
type pendingTypeRef struct {
	name string
	rel  entity.RelType
}

func (p pendingTypeRef) bind(sourceID string, line int) typeRef {
	return typeRef{SourceID: sourceID, Name: p.name, Rel: p.rel, Line: line}
}

// dartSupertypes extracts extends/with/implements clauses from a class
// declaration header. "extends" and "with" map to EXTENDS, "implements"
// to IMPLEMENTS.
func dartSupertypes(header string) []pendingTypeRef {
	if idx := strings.Index(header, "{"); idx >= 0 {
		header = header[:idx]
	}

	var out []pendingTypeRef
	for _, clause := range []struct {
		keyword string
		rel     entity.RelType
	}{
		{"extends", entity.RelExtends},
		{"with", entity.RelExtends},
		{"implements", entity.RelImplements},
	} {
		idx := strings.Index(header, " "+clause.keyword+" ")
		if idx < 0 {
			continue
		}
		rest := header[idx+len(clause.keyword)+2:]
		// The clause runs until the next clause keyword.
		for _, stop := range []string{" extends ", " with ", " implements ", " on "} {
			if j := strings.Index(rest, stop); j >= 0 {
				rest = rest[:j]
			}
		}
		for _, part := range splitTopLevel(rest, ',') {
			part = strings.TrimSpace(part)
			if k := strings.IndexAny(part, "<("); k > 0 {
				part = part[:k]
			}
			part = strings.TrimSpace(part)
			if part != "" && part != "Object" {
				out = append(out, pendingTypeRef{name: part, rel: clause.rel})
			}
		}
	}
	return out
}

// dartVisibility follows the underscore convention: identifiers starting
// with an underscore are library-private.
func dartVisibility(name string) entity.Visibility {
	if strings.HasPrefix(name, "_") {
		return entity.VisibilityPrivate
	}
	return entity.VisibilityPublic
}
