// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package store

import (
	"context"
	"fmt"
	"sync"

	"github.com/aidino/repochat-sub003/services/ckg/entity"
)

// MemoryDriver is a mutex-guarded in-process Driver.
//
// # Description
//
// MemoryDriver keeps the whole graph in maps keyed by project ID. It is
// the zero-config default and the backend unit tests run against. Writes
// are staged against copies and swapped in under the lock, so a RunWrite
// call is atomic with respect to readers.
//
// # Thread Safety
//
// Fully thread-safe. Reads take a read lock, writes an exclusive lock.
type MemoryDriver struct {
	mu sync.RWMutex

	// nodes: project ID -> entity ID -> node.
	nodes map[string]map[string]*entity.CodeEntity

	// edges: project ID -> edge list.
	edges map[string][]*entity.Relationship

	closed bool
}

// NewMemoryDriver creates an empty in-memory driver.
func NewMemoryDriver() *MemoryDriver {
	return &MemoryDriver{
		nodes: make(map[string]map[string]*entity.CodeEntity),
		edges: make(map[string][]*entity.Relationship),
	}
}

// RunRead executes one structured read query against the in-memory graph.
func (d *MemoryDriver) RunRead(ctx context.Context, q Query) ([]Row, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := q.Validate(); err != nil {
		return nil, err
	}

	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		return nil, ErrClosed
	}

	var rows []Row
	switch q.Op {
	case QueryNodeByID:
		if n, ok := d.nodes[q.ProjectID][q.EntityID]; ok {
			rows = append(rows, Row{Node: n})
		}

	case QueryNodesByKind:
		for _, n := range d.nodes[q.ProjectID] {
			if q.Kind == entity.KindUnknown || n.Kind == q.Kind {
				rows = append(rows, Row{Node: n})
			}
		}

	case QueryOutgoingEdges:
		for _, e := range d.edges[q.ProjectID] {
			if e.SourceID == q.EntityID && q.matchesRelFilter(e.Type) {
				rows = append(rows, Row{Edge: e})
			}
		}

	case QueryIncomingEdges:
		for _, e := range d.edges[q.ProjectID] {
			if e.TargetID == q.EntityID && q.matchesRelFilter(e.Type) {
				rows = append(rows, Row{Edge: e})
			}
		}

	case QueryAllEdges:
		for _, e := range d.edges[q.ProjectID] {
			if q.matchesRelFilter(e.Type) {
				rows = append(rows, Row{Edge: e})
			}
		}
	}

	return rows, nil
}

// RunWrite applies the statements atomically: the new project state is
// staged on copies and swapped in only when every statement applied.
func (d *MemoryDriver) RunWrite(ctx context.Context, stmts []Statement) (WriteResult, error) {
	if err := ctx.Err(); err != nil {
		return WriteResult{}, err
	}
	for i, s := range stmts {
		if err := s.Validate(); err != nil {
			return WriteResult{}, fmt.Errorf("statement %d: %w", i, err)
		}
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return WriteResult{}, ErrClosed
	}

	// Stage per-project copies of everything the statements touch.
	stagedNodes := make(map[string]map[string]*entity.CodeEntity)
	stagedEdges := make(map[string][]*entity.Relationship)
	stage := func(project string) {
		if _, ok := stagedNodes[project]; ok {
			return
		}
		nodes := make(map[string]*entity.CodeEntity, len(d.nodes[project]))
		for id, n := range d.nodes[project] {
			nodes[id] = n
		}
		stagedNodes[project] = nodes
		stagedEdges[project] = append([]*entity.Relationship(nil), d.edges[project]...)
	}

	var result WriteResult
	for _, s := range stmts {
		stage(s.ProjectID)
		switch s.Op {
		case OpDeleteProject:
			result.NodesDeleted += len(stagedNodes[s.ProjectID])
			result.EdgesDeleted += len(stagedEdges[s.ProjectID])
			stagedNodes[s.ProjectID] = make(map[string]*entity.CodeEntity)
			stagedEdges[s.ProjectID] = nil

		case OpCreateNode:
			n := *s.Node
			stagedNodes[s.ProjectID][n.ID] = &n
			result.NodesCreated++

		case OpCreateRelationship:
			e := *s.Rel
			stagedEdges[s.ProjectID] = append(stagedEdges[s.ProjectID], &e)
			result.RelationshipsCreated++
		}
	}

	for project, nodes := range stagedNodes {
		d.nodes[project] = nodes
		d.edges[project] = stagedEdges[project]
	}

	return result, nil
}

// Close marks the driver closed. Subsequent calls return ErrClosed.
func (d *MemoryDriver) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.closed = true
	return nil
}
