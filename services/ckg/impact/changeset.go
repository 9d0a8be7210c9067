// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package impact

import (
	"context"
	"fmt"
	"strings"

	"github.com/sourcegraph/go-diff/diff"

	"github.com/aidino/repochat-sub003/services/ckg/entity"
	"github.com/aidino/repochat-sub003/services/ckg/graph"
)

// ChangeSetFromDiff derives a ChangeSet from a unified diff.
//
// # Description
//
// Parses the diff, collects the touched file paths (stripping the a/ b/
// prefixes git writes), and resolves changed entity names by intersecting
// the changed line ranges with the committed entities of those files. An
// entity is considered changed when any added-side hunk overlaps its line
// range.
//
// # Inputs
//
//   - ctx: cancellation context.
//   - q: query layer over the project graph.
//   - projectID: the graph to resolve entities against.
//   - unifiedDiff: the raw diff text.
//
// # Outputs
//
//   - ChangeSet: changed files plus the qualified names of overlapping
//     Method/Class/Interface entities.
//   - error: ErrInvalidDiff when the diff cannot be parsed.
func ChangeSetFromDiff(ctx context.Context, q *graph.Query, projectID string, unifiedDiff []byte) (ChangeSet, error) {
	if q == nil {
		return ChangeSet{}, fmt.Errorf("%w: query layer is required", ErrInvalidInput)
	}

	fileDiffs, err := diff.ParseMultiFileDiff(unifiedDiff)
	if err != nil {
		return ChangeSet{}, fmt.Errorf("%w: %v", ErrInvalidDiff, err)
	}

	cs := ChangeSet{}
	changedRanges := make(map[string][][2]int)

	for _, fd := range fileDiffs {
		path := fd.NewName
		if path == "" || path == "/dev/null" {
			path = fd.OrigName
		}
		path = strings.TrimPrefix(path, "a/")
		path = strings.TrimPrefix(path, "b/")
		if path == "" || path == "/dev/null" {
			continue
		}
		cs.ChangedFiles = append(cs.ChangedFiles, path)

		for _, hunk := range fd.Hunks {
			start := int(hunk.NewStartLine)
			end := start + int(hunk.NewLines) - 1
			if end < start {
				end = start
			}
			changedRanges[path] = append(changedRanges[path], [2]int{start, end})
		}
	}

	names, err := changedEntityNames(ctx, q, projectID, changedRanges)
	if err != nil {
		return ChangeSet{}, err
	}
	cs.ChangedEntityNames = names
	return cs, nil
}

// changedEntityNames intersects changed line ranges with committed
// entities of the touched files.
func changedEntityNames(ctx context.Context, q *graph.Query, projectID string, ranges map[string][][2]int) ([]string, error) {
	if len(ranges) == 0 {
		return nil, nil
	}

	var names []string
	seen := make(map[string]bool)
	for _, kind := range []entity.Kind{entity.KindMethod, entity.KindClass, entity.KindInterface} {
		entities, err := q.EntitiesByKind(ctx, projectID, kind)
		if err != nil {
			return nil, fmt.Errorf("entities of kind %s: %w", kind, err)
		}
		for _, e := range entities {
			spans, ok := ranges[e.FilePath]
			if !ok {
				continue
			}
			for _, span := range spans {
				if span[0] <= e.EndLine && span[1] >= e.StartLine {
					if !seen[e.QualifiedName] {
						seen[e.QualifiedName] = true
						names = append(names, e.QualifiedName)
					}
					break
				}
			}
		}
	}
	return names, nil
}
