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

// Kotlin has no grammar binding in this module, so extraction is
// pattern-based: declarations are matched line by line. This finds classes,
// interfaces, objects, and functions reliably; expression bodies and nesting
// depth are not tracked, so members attach to the nearest preceding type.
var (
	kotlinClassRe = regexp.MustCompile(`^\s*(?:(public|private|protected|internal)\s+)?(?:(?:abstract|open|final|sealed|data|inner|enum|annotation)\s+)*(class|interface|object)\s+(\w+)(?:<[^>]*>)?(?:\s*(?:\([^)]*\))?\s*:\s*([^{]+))?`)
	kotlinFunRe   = regexp.MustCompile(`^\s*(?:(public|private|protected|internal)\s+)?(?:(?:override|open|abstract|final|suspend|inline|operator|infix|tailrec)\s+)*fun\s+(?:<[^>]*>\s+)?(?:[\w.<>?]+\.)?(\w+)\s*\(([^)]*)\)`)
	kotlinCallRe  = regexp.MustCompile(`(?:^|[^\w.])(\w+)\s*\(`)
)

var kotlinKeywords = map[string]bool{
	"if": true, "else": true, "when": true, "for": true, "while": true,
	"return": true, "fun": true, "class": true, "interface": true,
	"object": true, "val": true, "var": true, "try": true, "catch": true,
	"throw": true, "listOf": true, "mapOf": true, "setOf": true,
	"mutableListOf": true, "mutableMapOf": true, "println": true,
	"print": true, "require": true, "check": true, "error": true,
	"arrayOf": true, "lazy": true, "apply": true, "also": true,
	"let": true, "run": true, "with": true, "synchronized": true,
}

// KotlinParserOption configures a KotlinParser instance.
type KotlinParserOption func(*KotlinParser)

// WithKotlinMaxFileSize sets the maximum file size the parser will accept.
func WithKotlinMaxFileSize(bytes int64) KotlinParserOption {
	return func(p *KotlinParser) {
		if bytes > 0 {
			p.maxFileSize = bytes
		}
	}
}

// KotlinParser implements the Parser interface for Kotlin source code
// using pattern-based extraction.
//
// # Thread Safety
//
// KotlinParser instances are safe for concurrent use.
type KotlinParser struct {
	maxFileSize int64
}

// NewKotlinParser creates a new KotlinParser with the given options.
func NewKotlinParser(opts ...KotlinParserOption) *KotlinParser {
	p := &KotlinParser{maxFileSize: DefaultMaxFileSize}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// ParseFiles extracts entities and relationships from a batch of Kotlin files.
func (p *KotlinParser) ParseFiles(ctx context.Context, rootPath string, paths []string) (*Result, error) {
	return parseBatch(ctx, p, rootPath, paths)
}

// Language returns the canonical language tag for this parser.
func (p *KotlinParser) Language() string { return "kotlin" }

// Extensions returns the file extensions this parser handles.
func (p *KotlinParser) Extensions() []string { return []string{".kt", ".kts"} }

func (p *KotlinParser) maxSize() int64 { return p.maxFileSize }

func (p *KotlinParser) extractFile(ctx context.Context, content []byte, filePath string) (*fileResult, error) {
	fr := &fileResult{}
	file := newFileEntity("kotlin", filePath, content)
	fr.entities = append(fr.entities, file)

	lines := strings.Split(string(content), "\n")

	// Last declared type at each indentation depth; members attach to the
	// most recent type whose indentation is shallower than theirs.
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

		if m := kotlinClassRe.FindStringSubmatch(line); m != nil {
			kind := entity.KindClass
			if m[2] == "interface" {
				kind = entity.KindInterface
			}
			name := m[3]
			cls := &entity.CodeEntity{
				ID:            entity.GenerateID("kotlin", filePath, name),
				Kind:          kind,
				Name:          name,
				QualifiedName: name,
				FilePath:      filePath,
				StartLine:     lineNo,
				EndLine:       lineNo,
				Visibility:    kotlinVisibility(m[1]),
				Language:      "kotlin",
			}
			fr.entities = append(fr.entities, cls)
			fr.rels = append(fr.rels, containsEdge(file.ID, cls.ID, lineNo))

			for _, ref := range kotlinSupertypes(m[4]) {
				fr.typeRefs = append(fr.typeRefs, typeRef{
					SourceID: cls.ID,
					Name:     ref,
					Rel:      entity.RelExtends,
					Line:     lineNo,
				})
			}

			currentClass = cls
			classIndent = indent
			currentMethodID = ""
			continue
		}

		if m := kotlinFunRe.FindStringSubmatch(line); m != nil {
			name := m[2]
			parent := file
			qn := name
			if currentClass != nil && indent > classIndent {
				parent = currentClass
				qn = currentClass.Name + "." + name
			}
			fn := &entity.CodeEntity{
				ID:            entity.GenerateID("kotlin", filePath, qn),
				Kind:          entity.KindMethod,
				Name:          name,
				QualifiedName: qn,
				FilePath:      filePath,
				StartLine:     lineNo,
				EndLine:       lineNo,
				Visibility:    kotlinVisibility(m[1]),
				Language:      "kotlin",
				Signature:     "fun " + name + "(" + strings.TrimSpace(m[3]) + ")",
				Arity:         countParams(m[3]),
			}
			fr.entities = append(fr.entities, fn)
			fr.rels = append(fr.rels, containsEdge(parent.ID, fn.ID, lineNo))
			currentMethodID = fn.ID
			continue
		}

		if currentMethodID != "" {
			for _, m := range kotlinCallRe.FindAllStringSubmatch(trimmed, -1) {
				name := m[1]
				if kotlinKeywords[name] || isUpperInitial(name) {
					// Uppercase initials are constructor calls or type
					// references, which this extractor does not resolve.
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

// kotlinSupertypes splits the supertype list of a declaration header,
// dropping constructor arguments and generic parameters.
func kotlinSupertypes(list string) []string {
	if strings.TrimSpace(list) == "" {
		return nil
	}
	var out []string
	for _, part := range splitTopLevel(list, ',') {
		part = strings.TrimSpace(part)
		if idx := strings.IndexAny(part, "(<"); idx > 0 {
			part = part[:idx]
		}
		part = strings.TrimSpace(part)
		if part != "" && part != "Any" {
			out = append(out, part)
		}
	}
	return out
}

func kotlinVisibility(modifier string) entity.Visibility {
	switch modifier {
	case "private":
		return entity.VisibilityPrivate
	case "protected":
		return entity.VisibilityProtected
	case "internal":
		return entity.VisibilityPackage
	case "public":
		return entity.VisibilityPublic
	}
	return entity.VisibilityPublic
}

// countParams counts comma-separated parameters at the top nesting level.
func countParams(params string) int {
	params = strings.TrimSpace(params)
	if params == "" {
		return 0
	}
	return len(splitTopLevel(params, ','))
}

// splitTopLevel splits on sep, ignoring separators nested inside
// parentheses or angle brackets.
func splitTopLevel(s string, sep byte) []string {
	var out []string
	depth := 0
	start := 0
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case '(', '<', '[':
			depth++
		case ')', '>', ']':
			if depth > 0 {
				depth--
			}
		case sep:
			if depth == 0 {
				out = append(out, s[start:i])
				start = i + 1
			}
		}
	}
	out = append(out, s[start:])
	return out
}

func isUpperInitial(name string) bool {
	return name != "" && name[0] >= 'A' && name[0] <= 'Z'
}
