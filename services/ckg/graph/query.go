// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package graph

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/aidino/repochat-sub003/services/ckg/entity"
	"github.com/aidino/repochat-sub003/services/ckg/store"
)

// DefaultTraversalDepth is the caller/callee depth when none is given:
// direct neighbors only.
const DefaultTraversalDepth = 1

// dependencyRelTypes are the edge types considered for cycle detection.
var dependencyRelTypes = []entity.RelType{
	entity.RelCalls, entity.RelReferences, entity.RelExtends,
}

// Overview summarizes one project's graph.
type Overview struct {
	ProjectID     string         `json:"project_id"`
	CountsByKind  map[string]int `json:"counts_by_kind"`
	Relationships int            `json:"relationships"`
	Languages     map[string]int `json:"languages"`
}

// Cycle is one circular dependency finding: the members of a strongly
// connected component, canonically ordered.
type Cycle struct {
	// EntityIDs lists the cycle members starting from the
	// lexicographically smallest ID.
	EntityIDs []string `json:"entity_ids"`

	// Entities holds the member entities in EntityIDs order.
	Entities []*entity.CodeEntity `json:"entities"`

	// EdgeCount is the number of dependency edges internal to the cycle.
	EdgeCount int `json:"edge_count"`
}

// Query provides read-only traversals over a committed project graph.
//
// # Thread Safety
//
// All operations are read-only and safe for concurrent invocation.
type Query struct {
	driver store.Driver
}

// NewQuery creates a Query layer on the given store driver.
func NewQuery(driver store.Driver) (*Query, error) {
	if driver == nil {
		return nil, fmt.Errorf("%w: driver is required", ErrInvalidInput)
	}
	return &Query{driver: driver}, nil
}

// GetProjectOverview returns entity counts by kind and language plus the
// total relationship count.
func (q *Query) GetProjectOverview(ctx context.Context, projectID string) (*Overview, error) {
	if projectID == "" {
		return nil, fmt.Errorf("%w: project ID is required", ErrInvalidInput)
	}
	start := time.Now()
	defer func() { recordQueryMetrics(ctx, "GetProjectOverview", time.Since(start)) }()

	nodes, err := q.driver.RunRead(ctx, store.Query{Op: store.QueryNodesByKind, ProjectID: projectID})
	if err != nil {
		return nil, fmt.Errorf("overview nodes: %w", err)
	}
	edges, err := q.driver.RunRead(ctx, store.Query{Op: store.QueryAllEdges, ProjectID: projectID})
	if err != nil {
		return nil, fmt.Errorf("overview edges: %w", err)
	}

	overview := &Overview{
		ProjectID:     projectID,
		CountsByKind:  make(map[string]int),
		Relationships: len(edges),
		Languages:     make(map[string]int),
	}
	for _, row := range nodes {
		overview.CountsByKind[row.Node.Kind.String()]++
		if row.Node.Language != "" {
			overview.Languages[row.Node.Language]++
		}
	}
	return overview, nil
}

// GetEntity fetches one entity by ID.
func (q *Query) GetEntity(ctx context.Context, projectID, entityID string) (*entity.CodeEntity, error) {
	rows, err := q.driver.RunRead(ctx, store.Query{
		Op: store.QueryNodeByID, ProjectID: projectID, EntityID: entityID,
	})
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, entityID)
	}
	return rows[0].Node, nil
}

// EntitiesByKind returns every entity of one kind, sorted by ID.
func (q *Query) EntitiesByKind(ctx context.Context, projectID string, kind entity.Kind) ([]*entity.CodeEntity, error) {
	if projectID == "" {
		return nil, fmt.Errorf("%w: project ID is required", ErrInvalidInput)
	}
	rows, err := q.driver.RunRead(ctx, store.Query{
		Op: store.QueryNodesByKind, ProjectID: projectID, Kind: kind,
	})
	if err != nil {
		return nil, err
	}

	out := make([]*entity.CodeEntity, 0, len(rows))
	for _, row := range rows {
		out = append(out, row.Node)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// GetEntityByQualifiedName finds the first entity whose qualified name
// matches, in (filePath, startLine) order.
func (q *Query) GetEntityByQualifiedName(ctx context.Context, projectID, qualifiedName string) (*entity.CodeEntity, error) {
	rows, err := q.driver.RunRead(ctx, store.Query{Op: store.QueryNodesByKind, ProjectID: projectID})
	if err != nil {
		return nil, err
	}

	var matches []*entity.CodeEntity
	for _, row := range rows {
		if row.Node.QualifiedName == qualifiedName {
			matches = append(matches, row.Node)
		}
	}
	if len(matches) == 0 {
		return nil, fmt.Errorf("%w: qualified name %s", ErrNotFound, qualifiedName)
	}
	sort.Slice(matches, func(i, j int) bool {
		if matches[i].FilePath != matches[j].FilePath {
			return matches[i].FilePath < matches[j].FilePath
		}
		return matches[i].StartLine < matches[j].StartLine
	})
	return matches[0], nil
}

// FindCallers returns the entities that reach entityID by following CALLS
// edges backward, up to maxDepth hops. A maxDepth of zero or less means
// DefaultTraversalDepth.
func (q *Query) FindCallers(ctx context.Context, projectID, entityID string, maxDepth int) ([]*entity.CodeEntity, error) {
	start := time.Now()
	defer func() { recordQueryMetrics(ctx, "FindCallers", time.Since(start)) }()
	return q.traverseCalls(ctx, projectID, entityID, maxDepth, store.QueryIncomingEdges)
}

// FindCallees returns the entities reachable from entityID by following
// CALLS edges forward, up to maxDepth hops.
func (q *Query) FindCallees(ctx context.Context, projectID, entityID string, maxDepth int) ([]*entity.CodeEntity, error) {
	start := time.Now()
	defer func() { recordQueryMetrics(ctx, "FindCallees", time.Since(start)) }()
	return q.traverseCalls(ctx, projectID, entityID, maxDepth, store.QueryOutgoingEdges)
}

// traverseCalls is a bounded BFS over CALLS edges in one direction.
func (q *Query) traverseCalls(ctx context.Context, projectID, entityID string, maxDepth int, direction store.QueryOp) ([]*entity.CodeEntity, error) {
	if projectID == "" || entityID == "" {
		return nil, fmt.Errorf("%w: project ID and entity ID are required", ErrInvalidInput)
	}
	if maxDepth <= 0 {
		maxDepth = DefaultTraversalDepth
	}

	// The start entity must exist; traversal from a ghost is an error,
	// not an empty result.
	if _, err := q.GetEntity(ctx, projectID, entityID); err != nil {
		return nil, err
	}

	visited := map[string]bool{entityID: true}
	frontier := []string{entityID}
	var found []*entity.CodeEntity

	for depth := 0; depth < maxDepth && len(frontier) > 0; depth++ {
		var next []string
		for _, id := range frontier {
			rows, err := q.driver.RunRead(ctx, store.Query{
				Op:        direction,
				ProjectID: projectID,
				EntityID:  id,
				RelTypes:  []entity.RelType{entity.RelCalls},
			})
			if err != nil {
				return nil, fmt.Errorf("traverse %s: %w", id, err)
			}
			for _, row := range rows {
				neighbor := row.Edge.SourceID
				if direction == store.QueryOutgoingEdges {
					neighbor = row.Edge.TargetID
				}
				if visited[neighbor] {
					continue
				}
				visited[neighbor] = true
				next = append(next, neighbor)

				e, err := q.GetEntity(ctx, projectID, neighbor)
				if err != nil {
					// Edge to a node outside the committed set; skip.
					continue
				}
				found = append(found, e)
			}
		}
		frontier = next
	}

	sort.Slice(found, func(i, j int) bool { return found[i].ID < found[j].ID })
	return found, nil
}

// FindCircularDependencies reports every strongly connected component of
// size > 1 in the induced dependency graph of the given scope kind.
//
// # Description
//
// Dependency edges (CALLS, REFERENCES, EXTENDS) between entities are
// lifted to their enclosing scope-kind ancestors via CONTAINS edges: a
// call between two methods becomes a dependency between their classes
// when the scope kind is Class. SCCs are computed with an iterative
// Tarjan pass, O(V+E), and each cycle is reported once in canonical
// order starting from its lexicographically smallest entity ID.
func (q *Query) FindCircularDependencies(ctx context.Context, projectID string, scopeKind entity.Kind) ([]Cycle, error) {
	if projectID == "" {
		return nil, fmt.Errorf("%w: project ID is required", ErrInvalidInput)
	}
	if scopeKind == entity.KindUnknown {
		scopeKind = entity.KindClass
	}
	start := time.Now()
	defer func() { recordQueryMetrics(ctx, "FindCircularDependencies", time.Since(start)) }()

	scope, adjacency, edgeCounts, err := q.induceScopeGraph(ctx, projectID, scopeKind)
	if err != nil {
		return nil, err
	}

	sccs := stronglyConnected(scope, adjacency)

	cycles := make([]Cycle, 0, len(sccs))
	for _, scc := range sccs {
		ids := canonicalCycleOrder(scc)
		cycle := Cycle{EntityIDs: ids}
		for _, id := range ids {
			cycle.Entities = append(cycle.Entities, scope[id])
		}
		member := make(map[string]bool, len(ids))
		for _, id := range ids {
			member[id] = true
		}
		for _, id := range ids {
			for neighbor, count := range edgeCounts[id] {
				if member[neighbor] {
					cycle.EdgeCount += count
				}
			}
		}
		cycles = append(cycles, cycle)
	}

	sort.Slice(cycles, func(i, j int) bool {
		return cycles[i].EntityIDs[0] < cycles[j].EntityIDs[0]
	})
	return cycles, nil
}

// induceScopeGraph builds the scope-kind dependency graph: nodes of the
// scope kind, and edges lifted from dependency edges between any entities
// to their scope ancestors.
func (q *Query) induceScopeGraph(ctx context.Context, projectID string, scopeKind entity.Kind) (map[string]*entity.CodeEntity, map[string][]string, map[string]map[string]int, error) {
	nodeRows, err := q.driver.RunRead(ctx, store.Query{Op: store.QueryNodesByKind, ProjectID: projectID})
	if err != nil {
		return nil, nil, nil, fmt.Errorf("scope nodes: %w", err)
	}
	edgeRows, err := q.driver.RunRead(ctx, store.Query{Op: store.QueryAllEdges, ProjectID: projectID})
	if err != nil {
		return nil, nil, nil, fmt.Errorf("scope edges: %w", err)
	}

	scope := make(map[string]*entity.CodeEntity)
	kinds := make(map[string]entity.Kind)
	for _, row := range nodeRows {
		kinds[row.Node.ID] = row.Node.Kind
		if row.Node.Kind == scopeKind {
			scope[row.Node.ID] = row.Node
		}
	}

	// parent[child] = container, from CONTAINS edges.
	parent := make(map[string]string)
	for _, row := range edgeRows {
		if row.Edge.Type == entity.RelContains {
			parent[row.Edge.TargetID] = row.Edge.SourceID
		}
	}

	// ancestor climbs CONTAINS links until a scope-kind node is found.
	ancestor := func(id string) string {
		for hops := 0; hops < 64; hops++ {
			if kinds[id] == scopeKind {
				return id
			}
			next, ok := parent[id]
			if !ok {
				return ""
			}
			id = next
		}
		return ""
	}

	adjacency := make(map[string][]string, len(scope))
	edgeCounts := make(map[string]map[string]int, len(scope))
	seen := make(map[[2]string]bool)
	for _, row := range edgeRows {
		ok := false
		for _, t := range dependencyRelTypes {
			if row.Edge.Type == t {
				ok = true
				break
			}
		}
		if !ok {
			continue
		}

		src := ancestor(row.Edge.SourceID)
		dst := ancestor(row.Edge.TargetID)
		if src == "" || dst == "" || src == dst {
			continue
		}

		if edgeCounts[src] == nil {
			edgeCounts[src] = make(map[string]int)
		}
		edgeCounts[src][dst]++
		if !seen[[2]string{src, dst}] {
			seen[[2]string{src, dst}] = true
			adjacency[src] = append(adjacency[src], dst)
		}
	}

	// Deterministic edge order for a deterministic SCC traversal.
	for _, neighbors := range adjacency {
		sort.Strings(neighbors)
	}

	return scope, adjacency, edgeCounts, nil
}

// stronglyConnected computes SCCs with an iterative Tarjan pass. The
// explicit frame stack replaces recursion so deep graphs cannot overflow
// the goroutine stack. Only components of size > 1 are returned.
func stronglyConnected(scope map[string]*entity.CodeEntity, adjacency map[string][]string) [][]string {
	index := 0
	nodeIndex := make(map[string]int, len(scope))
	nodeLowLink := make(map[string]int, len(scope))
	onStack := make(map[string]bool, len(scope))
	sccStack := make([]string, 0, len(scope))
	var sccs [][]string

	type callFrame struct {
		nodeID    string
		edgeIndex int
		phase     int // 0=init, 1=edges, 2=post-child, 3=finalize
		childID   string
	}

	strongConnect := func(startID string) {
		callStack := []callFrame{{nodeID: startID}}

		for len(callStack) > 0 {
			frame := &callStack[len(callStack)-1]

			switch frame.phase {
			case 0:
				nodeIndex[frame.nodeID] = index
				nodeLowLink[frame.nodeID] = index
				index++
				sccStack = append(sccStack, frame.nodeID)
				onStack[frame.nodeID] = true
				frame.phase = 1

			case 1:
				neighbors := adjacency[frame.nodeID]
				advanced := false
				for frame.edgeIndex < len(neighbors) {
					next := neighbors[frame.edgeIndex]
					frame.edgeIndex++

					if _, visited := nodeIndex[next]; !visited {
						frame.phase = 2
						frame.childID = next
						callStack = append(callStack, callFrame{nodeID: next})
						advanced = true
						break
					}
					if onStack[next] && nodeIndex[next] < nodeLowLink[frame.nodeID] {
						nodeLowLink[frame.nodeID] = nodeIndex[next]
					}
				}
				if !advanced && frame.phase == 1 {
					frame.phase = 3
				}

			case 2:
				if nodeLowLink[frame.childID] < nodeLowLink[frame.nodeID] {
					nodeLowLink[frame.nodeID] = nodeLowLink[frame.childID]
				}
				frame.phase = 1

			case 3:
				if nodeLowLink[frame.nodeID] == nodeIndex[frame.nodeID] {
					var scc []string
					for {
						w := sccStack[len(sccStack)-1]
						sccStack = sccStack[:len(sccStack)-1]
						onStack[w] = false
						scc = append(scc, w)
						if w == frame.nodeID {
							break
						}
					}
					if len(scc) > 1 {
						sccs = append(sccs, scc)
					}
				}
				callStack = callStack[:len(callStack)-1]
			}
		}
	}

	// Visit nodes in sorted order so component discovery is stable.
	ids := make([]string, 0, len(scope))
	for id := range scope {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		if _, visited := nodeIndex[id]; !visited {
			strongConnect(id)
		}
	}

	return sccs
}

// canonicalCycleOrder sorts the SCC member list so it starts at the
// lexicographically smallest ID. An SCC with more than two members has
// no single traversal order, so members are reported sorted rather than
// as a walk; any discovery order of the same cycle compares equal.
func canonicalCycleOrder(scc []string) []string {
	sorted := append([]string(nil), scc...)
	sort.Strings(sorted)
	return sorted
}

// FindUnusedEntities returns entities with zero incoming CALLS or
// REFERENCES edges, excluding Project and File structural nodes and any
// entity matched by the exclusion predicate.
//
// This is a heuristic signal: reflective or framework-invoked code shows
// up here even though it is live.
func (q *Query) FindUnusedEntities(ctx context.Context, projectID string, exclude func(*entity.CodeEntity) bool) ([]*entity.CodeEntity, error) {
	if projectID == "" {
		return nil, fmt.Errorf("%w: project ID is required", ErrInvalidInput)
	}
	start := time.Now()
	defer func() { recordQueryMetrics(ctx, "FindUnusedEntities", time.Since(start)) }()

	nodeRows, err := q.driver.RunRead(ctx, store.Query{Op: store.QueryNodesByKind, ProjectID: projectID})
	if err != nil {
		return nil, fmt.Errorf("unused nodes: %w", err)
	}
	edgeRows, err := q.driver.RunRead(ctx, store.Query{
		Op:        store.QueryAllEdges,
		ProjectID: projectID,
		RelTypes:  []entity.RelType{entity.RelCalls, entity.RelReferences},
	})
	if err != nil {
		return nil, fmt.Errorf("unused edges: %w", err)
	}

	used := make(map[string]bool, len(edgeRows))
	for _, row := range edgeRows {
		used[row.Edge.TargetID] = true
	}

	var unused []*entity.CodeEntity
	for _, row := range nodeRows {
		n := row.Node
		if n.Kind == entity.KindProject || n.Kind == entity.KindFile {
			continue
		}
		if used[n.ID] {
			continue
		}
		if exclude != nil && exclude(n) {
			continue
		}
		unused = append(unused, n)
	}

	sort.Slice(unused, func(i, j int) bool { return unused[i].ID < unused[j].ID })
	return unused, nil
}
