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
	"sort"
	"strconv"

	"github.com/aidino/repochat-sub003/services/ckg/entity"
)

// callSite records one unresolved call observed while parsing a file.
type callSite struct {
	// CallerID is the entity ID of the enclosing method.
	CallerID string

	// Name is the callee identifier at the call site
	// (the last segment for selector/attribute calls).
	Name string

	// Arity is the argument count at the call site.
	Arity int

	// Line is the 1-indexed call-site line.
	Line int
}

// typeRef records one unresolved type reference observed while parsing.
type typeRef struct {
	// SourceID is the entity ID of the referencing entity.
	SourceID string

	// Name is the referenced type name.
	Name string

	// Rel is the relationship type to materialize on resolution.
	Rel entity.RelType

	// Line is the 1-indexed reference line.
	Line int
}

// batchResolver resolves call sites and type references against the
// entities of one parse batch.
//
// Resolution policy (deterministic, documented):
//   - Candidates are matched by name. For calls, a single candidate that
//     also matches the call-site arity resolves with exact confidence.
//   - When multiple candidates match, the first declared candidate in
//     (file path, start line, qualified name) order wins and the edge is
//     marked heuristic.
//   - Calls and references that match no entity in the batch produce no
//     edge: targets are never fabricated.
type batchResolver struct {
	methodsByName map[string][]*entity.CodeEntity
	typesByName   map[string][]*entity.CodeEntity
}

// newBatchResolver indexes the batch entities for resolution.
func newBatchResolver(entities []*entity.CodeEntity) *batchResolver {
	r := &batchResolver{
		methodsByName: make(map[string][]*entity.CodeEntity),
		typesByName:   make(map[string][]*entity.CodeEntity),
	}

	for _, e := range entities {
		switch e.Kind {
		case entity.KindMethod:
			r.methodsByName[e.Name] = append(r.methodsByName[e.Name], e)
		case entity.KindClass, entity.KindInterface:
			r.typesByName[e.Name] = append(r.typesByName[e.Name], e)
		}
	}

	// Stable declaration order: file path, then start line, then
	// qualified name. This is the documented tie-break for ambiguous
	// resolution.
	for _, m := range []map[string][]*entity.CodeEntity{r.methodsByName, r.typesByName} {
		for _, candidates := range m {
			sort.SliceStable(candidates, func(i, j int) bool {
				a, b := candidates[i], candidates[j]
				if a.FilePath != b.FilePath {
					return a.FilePath < b.FilePath
				}
				if a.StartLine != b.StartLine {
					return a.StartLine < b.StartLine
				}
				return a.QualifiedName < b.QualifiedName
			})
		}
	}

	return r
}

// resolveCalls materializes CALLS edges for the given call sites.
//
// Duplicate edges from the same (caller, target, line) are emitted once.
func (r *batchResolver) resolveCalls(sites []callSite) []*entity.Relationship {
	rels := make([]*entity.Relationship, 0, len(sites))
	seen := make(map[[3]string]bool)

	for _, site := range sites {
		candidates := r.methodsByName[site.Name]
		if len(candidates) == 0 {
			continue
		}

		// Prefer name+arity matches.
		var arityMatches []*entity.CodeEntity
		for _, c := range candidates {
			if c.Arity == site.Arity {
				arityMatches = append(arityMatches, c)
			}
		}

		var target *entity.CodeEntity
		confidence := entity.ConfidenceHeuristic

		switch {
		case len(arityMatches) == 1:
			target = arityMatches[0]
			confidence = entity.ConfidenceExact
		case len(arityMatches) > 1:
			target = arityMatches[0]
		default:
			// Name-only fallback: first declared candidate.
			target = candidates[0]
		}

		key := [3]string{site.CallerID, target.ID, lineKey(site.Line)}
		if seen[key] {
			continue
		}
		seen[key] = true

		rels = append(rels, &entity.Relationship{
			Type:       entity.RelCalls,
			SourceID:   site.CallerID,
			TargetID:   target.ID,
			Confidence: confidence,
			SourceLine: site.Line,
		})
	}

	return rels
}

// resolveTypeRefs materializes EXTENDS/IMPLEMENTS/REFERENCES edges for the
// given type references. IMPLEMENTS edges require an Interface target;
// non-interface matches are skipped.
func (r *batchResolver) resolveTypeRefs(refs []typeRef) []*entity.Relationship {
	rels := make([]*entity.Relationship, 0, len(refs))
	seen := make(map[[3]string]bool)

	for _, ref := range refs {
		candidates := r.typesByName[ref.Name]
		if len(candidates) == 0 {
			continue
		}

		var target *entity.CodeEntity
		for _, c := range candidates {
			if ref.Rel == entity.RelImplements && c.Kind != entity.KindInterface {
				continue
			}
			target = c
			break
		}
		if target == nil {
			continue
		}

		confidence := entity.ConfidenceExact
		if len(candidates) > 1 {
			confidence = entity.ConfidenceHeuristic
		}

		key := [3]string{ref.SourceID, target.ID, ref.Rel.String()}
		if seen[key] {
			continue
		}
		seen[key] = true

		rels = append(rels, &entity.Relationship{
			Type:       ref.Rel,
			SourceID:   ref.SourceID,
			TargetID:   target.ID,
			Confidence: confidence,
			SourceLine: ref.Line,
		})
	}

	return rels
}

// lineKey formats a line number for deduplication keys.
func lineKey(line int) string {
	return strconv.Itoa(line)
}
