// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package graph builds and queries the persistent code knowledge graph.
//
// The builder performs replace-all project builds against a store.Driver;
// the query layer provides read-only traversals (callers, callees, cycles,
// unused entities) over the committed graph.
package graph

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/aidino/repochat-sub003/services/ckg/entity"
	"github.com/aidino/repochat-sub003/services/ckg/store"
)

// slowBuildThreshold is the soft latency limit past which a build is
// logged as slow.
const slowBuildThreshold = 5 * time.Second

// nodeKindOrder fixes the kind grouping order for node insertion.
var nodeKindOrder = []entity.Kind{
	entity.KindProject,
	entity.KindFile,
	entity.KindClass,
	entity.KindInterface,
	entity.KindMethod,
	entity.KindField,
	entity.KindParameter,
}

// BuildResult reports the outcome of one graph build.
type BuildResult struct {
	// BuildID uniquely identifies this build run.
	BuildID string `json:"build_id"`

	// ProjectID is the project that was built.
	ProjectID string `json:"project_id"`

	// NodesCreated is the number of entity nodes written.
	NodesCreated int `json:"nodes_created"`

	// RelationshipsCreated is the number of edges written.
	RelationshipsCreated int `json:"relationships_created"`

	// Errors holds non-fatal problems, e.g. invalid entities skipped.
	Errors []string `json:"errors,omitempty"`

	// Warnings holds skipped records and non-fatal relationship-stage
	// problems, e.g. dangling relationships or failed edge batches.
	Warnings []string `json:"warnings,omitempty"`

	// DurationMs is the total build time in milliseconds.
	DurationMs int64 `json:"duration_ms"`
}

// BuilderOption configures a Builder.
type BuilderOption func(*Builder)

// WithBuilderLogger sets the logger used for build events.
func WithBuilderLogger(logger *slog.Logger) BuilderOption {
	return func(b *Builder) {
		if logger != nil {
			b.logger = logger
		}
	}
}

// Builder writes project graphs to the store.
//
// # Description
//
// Build replaces a project's graph wholesale: the previous slice is
// deleted and all nodes are inserted in the same store transaction, so a
// failed build leaves the prior graph intact. Relationships are inserted
// after the node commit; a relationship with a missing endpoint is skipped
// with a warning, never a failure.
//
// # Thread Safety
//
// Builds for the same project ID serialize on a per-project mutex.
// Different projects build concurrently.
type Builder struct {
	driver store.Driver
	logger *slog.Logger

	mu           sync.Mutex
	projectLocks map[string]*sync.Mutex
}

// NewBuilder creates a Builder on the given store driver.
func NewBuilder(driver store.Driver, opts ...BuilderOption) (*Builder, error) {
	if driver == nil {
		return nil, fmt.Errorf("%w: driver is required", ErrInvalidInput)
	}
	b := &Builder{
		driver:       driver,
		logger:       slog.Default(),
		projectLocks: make(map[string]*sync.Mutex),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b, nil
}

// projectLock returns the mutex serializing builds of one project.
func (b *Builder) projectLock(projectID string) *sync.Mutex {
	b.mu.Lock()
	defer b.mu.Unlock()

	lock, ok := b.projectLocks[projectID]
	if !ok {
		lock = &sync.Mutex{}
		b.projectLocks[projectID] = lock
	}
	return lock
}

// Build replaces the project's graph with the given entities and
// relationships.
//
// # Inputs
//
//   - ctx: cancellation context.
//   - projectID: the project whose graph slice is replaced.
//   - entities: all entities of the scan. Invalid entities are skipped
//     with an error entry.
//   - rels: all relationships of the scan. Edges with endpoints missing
//     from entities are skipped with a warning.
//
// # Outputs
//
//   - *BuildResult: counts, warnings, and non-fatal errors.
//   - error: ErrBuildFailed when node insertion failed after one retry;
//     the previous graph is left intact in that case.
func (b *Builder) Build(ctx context.Context, projectID string, entities []*entity.CodeEntity, rels []*entity.Relationship) (*BuildResult, error) {
	if ctx == nil {
		return nil, fmt.Errorf("%w: nil context", ErrInvalidInput)
	}
	if projectID == "" {
		return nil, fmt.Errorf("%w: project ID is required", ErrInvalidInput)
	}

	lock := b.projectLock(projectID)
	lock.Lock()
	defer lock.Unlock()

	ctx, span := startBuildSpan(ctx, projectID, len(entities), len(rels))
	defer span.End()

	start := time.Now()
	result := &BuildResult{
		BuildID:   uuid.NewString(),
		ProjectID: projectID,
	}

	nodes, nodeIDs := b.prepareNodes(projectID, entities, result)
	edges := b.prepareEdges(projectID, nodes, nodeIDs, rels, result)

	// Delete + node inserts run in one transaction: either the whole new
	// node set commits or the prior graph survives untouched.
	stmts := make([]store.Statement, 0, len(nodes)+1)
	stmts = append(stmts, store.Statement{Op: store.OpDeleteProject, ProjectID: projectID})
	for _, kind := range nodeKindOrder {
		for _, n := range nodes {
			if n.Kind == kind {
				stmts = append(stmts, store.Statement{Op: store.OpCreateNode, ProjectID: projectID, Node: n})
			}
		}
	}

	writeResult, err := b.writeWithRetry(ctx, projectID, stmts)
	if err != nil {
		recordBuildMetrics(ctx, projectID, time.Since(start), 0, false)
		return nil, fmt.Errorf("%w: node insertion: %v", ErrBuildFailed, err)
	}
	result.NodesCreated = writeResult.NodesCreated

	// Relationships insert after the node commit, grouped by type.
	// Failures here are non-fatal: the build still reports success.
	for _, relType := range []entity.RelType{
		entity.RelContains, entity.RelCalls, entity.RelExtends,
		entity.RelImplements, entity.RelReferences,
	} {
		batch := make([]store.Statement, 0)
		for _, e := range edges {
			if e.Type == relType {
				batch = append(batch, store.Statement{Op: store.OpCreateRelationship, ProjectID: projectID, Rel: e})
			}
		}
		if len(batch) == 0 {
			continue
		}
		wr, err := b.driver.RunWrite(ctx, batch)
		if err != nil {
			msg := fmt.Sprintf("relationship batch %s failed: %v", relType, err)
			result.Warnings = append(result.Warnings, msg)
			b.logger.Warn("relationship batch failed",
				slog.String("project_id", projectID),
				slog.String("rel_type", relType.String()),
				slog.String("error", err.Error()))
			continue
		}
		result.RelationshipsCreated += wr.RelationshipsCreated
	}

	result.DurationMs = time.Since(start).Milliseconds()
	if time.Since(start) > slowBuildThreshold {
		b.logger.Warn("slow graph build",
			slog.String("project_id", projectID),
			slog.Int64("duration_ms", result.DurationMs))
	}

	b.logger.Info("graph build complete",
		slog.String("project_id", projectID),
		slog.String("build_id", result.BuildID),
		slog.Int("nodes", result.NodesCreated),
		slog.Int("relationships", result.RelationshipsCreated),
		slog.Int("warnings", len(result.Warnings)))

	recordBuildMetrics(ctx, projectID, time.Since(start), result.NodesCreated, true)
	return result, nil
}

// prepareNodes validates and dedupes entities and prepends the project
// node. Returns the node list and the set of node IDs.
func (b *Builder) prepareNodes(projectID string, entities []*entity.CodeEntity, result *BuildResult) ([]*entity.CodeEntity, map[string]bool) {
	nodes := make([]*entity.CodeEntity, 0, len(entities)+1)
	nodeIDs := make(map[string]bool, len(entities)+1)

	project := &entity.CodeEntity{
		ID:            entity.ProjectEntityID(projectID),
		Kind:          entity.KindProject,
		Name:          projectID,
		QualifiedName: projectID,
	}
	nodes = append(nodes, project)
	nodeIDs[project.ID] = true

	for _, e := range entities {
		if e == nil {
			continue
		}
		if err := e.Validate(); err != nil {
			result.Errors = append(result.Errors, fmt.Sprintf("invalid entity %s: %v", e.ID, err))
			continue
		}
		if nodeIDs[e.ID] {
			result.Warnings = append(result.Warnings, fmt.Sprintf("duplicate entity ID %s, first declaration kept", e.ID))
			continue
		}
		nodeIDs[e.ID] = true
		nodes = append(nodes, e)
	}

	return nodes, nodeIDs
}

// prepareEdges validates relationships, drops dangling ones with a
// warning, and adds the Project-CONTAINS-File edges.
func (b *Builder) prepareEdges(projectID string, nodes []*entity.CodeEntity, nodeIDs map[string]bool, rels []*entity.Relationship, result *BuildResult) []*entity.Relationship {
	edges := make([]*entity.Relationship, 0, len(rels))

	projectNodeID := entity.ProjectEntityID(projectID)
	for _, n := range nodes {
		if n.Kind == entity.KindFile {
			edges = append(edges, &entity.Relationship{
				Type:       entity.RelContains,
				SourceID:   projectNodeID,
				TargetID:   n.ID,
				Confidence: entity.ConfidenceExact,
			})
		}
	}

	for _, r := range rels {
		if r == nil {
			continue
		}
		if err := r.Validate(); err != nil {
			result.Errors = append(result.Errors, fmt.Sprintf("invalid relationship: %v", err))
			continue
		}
		if !nodeIDs[r.SourceID] || !nodeIDs[r.TargetID] {
			msg := fmt.Sprintf("dangling relationship %s %s -> %s skipped", r.Type, r.SourceID, r.TargetID)
			result.Warnings = append(result.Warnings, msg)
			b.logger.Warn("dangling relationship skipped",
				slog.String("project_id", projectID),
				slog.String("rel_type", r.Type.String()),
				slog.String("source", r.SourceID),
				slog.String("target", r.TargetID))
			continue
		}
		edges = append(edges, r)
	}

	return edges
}

// writeWithRetry runs the node transaction, retrying once on failure.
func (b *Builder) writeWithRetry(ctx context.Context, projectID string, stmts []store.Statement) (store.WriteResult, error) {
	wr, err := b.driver.RunWrite(ctx, stmts)
	if err == nil {
		return wr, nil
	}
	if ctx.Err() != nil {
		return store.WriteResult{}, err
	}

	b.logger.Warn("node transaction failed, retrying once",
		slog.String("project_id", projectID),
		slog.String("error", err.Error()))

	return b.driver.RunWrite(ctx, stmts)
}
