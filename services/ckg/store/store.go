// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package store defines the persistent graph store abstraction and its
// drivers.
//
// The graph builder and query layers never speak a query language. They
// submit structured Statement and Query values to a Driver, which keeps the
// store swappable: the embedded BadgerDB driver is the reference backend,
// the in-memory driver serves tests and zero-config runs.
package store

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/aidino/repochat-sub003/services/ckg/entity"
)

// StatementOp enumerates the write operations a driver must support.
type StatementOp int

const (
	// OpDeleteProject removes every node and edge tagged with ProjectID.
	OpDeleteProject StatementOp = iota + 1

	// OpCreateNode upserts one entity node under ProjectID.
	OpCreateNode

	// OpCreateRelationship inserts one edge under ProjectID. Endpoint
	// existence is the caller's concern; drivers store what they are given.
	OpCreateRelationship
)

// Statement is one structured write operation.
type Statement struct {
	Op        StatementOp
	ProjectID string

	// Node is required for OpCreateNode.
	Node *entity.CodeEntity

	// Rel is required for OpCreateRelationship.
	Rel *entity.Relationship
}

// Validate checks that the statement is well-formed for its operation.
func (s Statement) Validate() error {
	if s.ProjectID == "" {
		return fmt.Errorf("%w: statement requires a project ID", ErrInvalidInput)
	}
	switch s.Op {
	case OpDeleteProject:
		return nil
	case OpCreateNode:
		if s.Node == nil {
			return fmt.Errorf("%w: create node statement without node", ErrInvalidInput)
		}
		return nil
	case OpCreateRelationship:
		if s.Rel == nil {
			return fmt.Errorf("%w: create relationship statement without relationship", ErrInvalidInput)
		}
		return nil
	}
	return fmt.Errorf("%w: unknown statement op %d", ErrInvalidInput, s.Op)
}

// QueryOp enumerates the read operations a driver must support.
type QueryOp int

const (
	// QueryNodeByID fetches one node by entity ID.
	QueryNodeByID QueryOp = iota + 1

	// QueryNodesByKind fetches all nodes of one kind. KindUnknown fetches
	// every node of the project.
	QueryNodesByKind

	// QueryOutgoingEdges fetches edges whose source is EntityID,
	// optionally filtered by RelTypes.
	QueryOutgoingEdges

	// QueryIncomingEdges fetches edges whose target is EntityID,
	// optionally filtered by RelTypes.
	QueryIncomingEdges

	// QueryAllEdges fetches every edge of the project, optionally
	// filtered by RelTypes.
	QueryAllEdges
)

// Query is one structured read operation.
type Query struct {
	Op        QueryOp
	ProjectID string

	// EntityID scopes QueryNodeByID and the edge-neighborhood queries.
	EntityID string

	// Kind filters QueryNodesByKind. KindUnknown means all kinds.
	Kind entity.Kind

	// RelTypes filters edge queries. Empty means all types.
	RelTypes []entity.RelType
}

// Validate checks that the query is well-formed for its operation.
func (q Query) Validate() error {
	if q.ProjectID == "" {
		return fmt.Errorf("%w: query requires a project ID", ErrInvalidInput)
	}
	switch q.Op {
	case QueryNodesByKind, QueryAllEdges:
		return nil
	case QueryNodeByID, QueryOutgoingEdges, QueryIncomingEdges:
		if q.EntityID == "" {
			return fmt.Errorf("%w: query requires an entity ID", ErrInvalidInput)
		}
		return nil
	}
	return fmt.Errorf("%w: unknown query op %d", ErrInvalidInput, q.Op)
}

// matchesRelFilter reports whether a relationship type passes the filter.
func (q Query) matchesRelFilter(t entity.RelType) bool {
	if len(q.RelTypes) == 0 {
		return true
	}
	for _, want := range q.RelTypes {
		if t == want {
			return true
		}
	}
	return false
}

// Row is one result of a read query: a node or an edge, never both.
type Row struct {
	Node *entity.CodeEntity
	Edge *entity.Relationship
}

// WriteResult reports what a committed write changed.
type WriteResult struct {
	NodesCreated         int
	RelationshipsCreated int
	NodesDeleted         int
	EdgesDeleted         int
}

// Driver is the pluggable persistence contract.
//
// # Thread Safety
//
// Implementations must support concurrent RunRead calls and concurrent
// RunRead/RunWrite interleaving. Statements within one RunWrite call are
// applied atomically: either all take effect or none do.
type Driver interface {
	// RunRead executes one structured read query.
	RunRead(ctx context.Context, q Query) ([]Row, error)

	// RunWrite executes the given statements in one transaction.
	RunWrite(ctx context.Context, stmts []Statement) (WriteResult, error)

	// Close releases driver resources. The driver is unusable afterwards.
	Close() error
}

// Driver names accepted by Connect.
const (
	DriverMemory = "memory"
	DriverBadger = "badger"
)

// Config selects and configures a store driver.
type Config struct {
	// Driver is the driver name: "memory" (default) or "badger".
	Driver string `yaml:"driver"`

	// Path is the BadgerDB directory. Ignored by the memory driver and
	// when InMemory is set.
	Path string `yaml:"path"`

	// InMemory runs the badger driver without disk persistence.
	InMemory bool `yaml:"in_memory"`

	// SyncWrites enables synchronous writes for durability.
	SyncWrites bool `yaml:"sync_writes"`

	// GCInterval is how often the badger driver runs value log garbage
	// collection. Zero disables GC.
	GCInterval time.Duration `yaml:"gc_interval"`

	// Logger receives driver-internal log output. Nil disables it.
	Logger *slog.Logger `yaml:"-"`
}

// DefaultConfig returns the zero-config default: the in-memory driver.
func DefaultConfig() Config {
	return Config{Driver: DriverMemory}
}

// Connect opens the driver named in the config.
func Connect(cfg Config) (Driver, error) {
	switch cfg.Driver {
	case "", DriverMemory:
		return NewMemoryDriver(), nil
	case DriverBadger:
		return NewBadgerDriver(cfg)
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownDriver, cfg.Driver)
}
