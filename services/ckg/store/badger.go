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
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"sync"
	"time"

	"github.com/dgraph-io/badger/v4"

	"github.com/aidino/repochat-sub003/services/ckg/entity"
)

// Key layout. Forward edges and a reverse index are written together so
// incoming-edge queries are a prefix scan, not a full edge scan.
//
//	n|<project>|<entityID>                     -> CodeEntity JSON
//	e|<project>|<srcID>|<type>|<dstID>|<line>  -> Relationship JSON
//	r|<project>|<dstID>|<type>|<srcID>|<line>  -> Relationship JSON
//
// The source line is part of the edge key: two calls from the same
// method to the same target at different lines are distinct edges and
// must not overwrite each other.
//
// Entity IDs use ':' as their separator, so '|' stays unambiguous.
const (
	nodePrefix    = "n|"
	edgePrefix    = "e|"
	reversePrefix = "r|"
	keySep        = "|"
)

// BadgerDriver is the embedded persistent Driver backed by BadgerDB.
//
// # Description
//
// BadgerDriver stores nodes and edges as JSON values under prefix-scannable
// keys. One RunWrite call maps to one badger transaction, which gives the
// builder its all-or-nothing replace semantics. A background loop runs
// value log garbage collection at the configured interval.
//
// # Thread Safety
//
// Fully thread-safe; BadgerDB transactions provide snapshot isolation for
// concurrent readers.
type BadgerDriver struct {
	db     *badger.DB
	logger *slog.Logger

	gcStop chan struct{}
	gcDone chan struct{}

	closeOnce sync.Once
	closeErr  error
}

// badgerLogger adapts slog.Logger to BadgerDB's Logger interface.
type badgerLogger struct {
	logger *slog.Logger
}

func (l *badgerLogger) Errorf(format string, args ...interface{}) {
	l.logger.Error(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Warningf(format string, args ...interface{}) {
	l.logger.Warn(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Infof(format string, args ...interface{}) {
	l.logger.Info(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Debugf(format string, args ...interface{}) {
	l.logger.Debug(fmt.Sprintf(format, args...))
}

// NewBadgerDriver opens a BadgerDB-backed driver.
//
// # Inputs
//
//   - cfg: driver configuration. Path is required unless InMemory is set.
//
// # Outputs
//
//   - *BadgerDriver: the opened driver. Caller must Close it.
//   - error: non-nil when the path is missing or the database cannot open.
func NewBadgerDriver(cfg Config) (*BadgerDriver, error) {
	if !cfg.InMemory && cfg.Path == "" {
		return nil, fmt.Errorf("%w: badger driver requires a path", ErrInvalidInput)
	}

	var opts badger.Options
	if cfg.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		if err := os.MkdirAll(cfg.Path, 0750); err != nil {
			return nil, fmt.Errorf("create store directory %s: %w", cfg.Path, err)
		}
		opts = badger.DefaultOptions(cfg.Path)
	}
	opts = opts.WithSyncWrites(cfg.SyncWrites)
	opts = opts.WithNumVersionsToKeep(1)

	if cfg.Logger != nil {
		opts = opts.WithLogger(&badgerLogger{logger: cfg.Logger})
	} else {
		opts = opts.WithLogger(nil)
	}

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open badger store: %w", err)
	}

	d := &BadgerDriver{
		db:     db,
		logger: cfg.Logger,
		gcStop: make(chan struct{}),
		gcDone: make(chan struct{}),
	}

	if cfg.GCInterval > 0 && !cfg.InMemory {
		go d.gcLoop(cfg.GCInterval)
	} else {
		close(d.gcDone)
	}

	return d, nil
}

// gcLoop periodically triggers value log garbage collection until Close.
func (d *BadgerDriver) gcLoop(interval time.Duration) {
	defer close(d.gcDone)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-d.gcStop:
			return
		case <-ticker.C:
			// badger returns ErrNoRewrite when there is nothing to
			// collect; that is the common case, not a failure.
			if err := d.db.RunValueLogGC(0.5); err != nil && err != badger.ErrNoRewrite {
				if d.logger != nil {
					d.logger.Warn("badger value log GC failed", slog.String("error", err.Error()))
				}
			}
		}
	}
}

// RunRead executes one structured read query.
func (d *BadgerDriver) RunRead(ctx context.Context, q Query) ([]Row, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := q.Validate(); err != nil {
		return nil, err
	}
	if d.db.IsClosed() {
		return nil, ErrClosed
	}

	var rows []Row
	err := d.db.View(func(txn *badger.Txn) error {
		switch q.Op {
		case QueryNodeByID:
			item, err := txn.Get(nodeKey(q.ProjectID, q.EntityID))
			if err == badger.ErrKeyNotFound {
				return nil
			}
			if err != nil {
				return err
			}
			n, err := decodeNode(item)
			if err != nil {
				return err
			}
			rows = append(rows, Row{Node: n})
			return nil

		case QueryNodesByKind:
			return scanPrefix(txn, []byte(nodePrefix+q.ProjectID+keySep), func(item *badger.Item) error {
				n, err := decodeNode(item)
				if err != nil {
					return err
				}
				if q.Kind == entity.KindUnknown || n.Kind == q.Kind {
					rows = append(rows, Row{Node: n})
				}
				return nil
			})

		case QueryOutgoingEdges:
			return scanEdges(txn, []byte(edgePrefix+q.ProjectID+keySep+q.EntityID+keySep), q, &rows)

		case QueryIncomingEdges:
			return scanEdges(txn, []byte(reversePrefix+q.ProjectID+keySep+q.EntityID+keySep), q, &rows)

		case QueryAllEdges:
			return scanEdges(txn, []byte(edgePrefix+q.ProjectID+keySep), q, &rows)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("badger read: %w", err)
	}
	return rows, nil
}

// RunWrite executes the statements in one badger transaction.
func (d *BadgerDriver) RunWrite(ctx context.Context, stmts []Statement) (WriteResult, error) {
	if err := ctx.Err(); err != nil {
		return WriteResult{}, err
	}
	for i, s := range stmts {
		if err := s.Validate(); err != nil {
			return WriteResult{}, fmt.Errorf("statement %d: %w", i, err)
		}
	}
	if d.db.IsClosed() {
		return WriteResult{}, ErrClosed
	}

	var result WriteResult
	err := d.db.Update(func(txn *badger.Txn) error {
		for _, s := range stmts {
			switch s.Op {
			case OpDeleteProject:
				if err := d.deleteProject(txn, s.ProjectID, &result); err != nil {
					return err
				}

			case OpCreateNode:
				value, err := json.Marshal(s.Node)
				if err != nil {
					return fmt.Errorf("encode node %s: %w", s.Node.ID, err)
				}
				if err := txn.Set(nodeKey(s.ProjectID, s.Node.ID), value); err != nil {
					return err
				}
				result.NodesCreated++

			case OpCreateRelationship:
				value, err := json.Marshal(s.Rel)
				if err != nil {
					return fmt.Errorf("encode relationship: %w", err)
				}
				if err := txn.Set(edgeKey(s.ProjectID, s.Rel), value); err != nil {
					return err
				}
				if err := txn.Set(reverseKey(s.ProjectID, s.Rel), value); err != nil {
					return err
				}
				result.RelationshipsCreated++
			}
		}
		return nil
	})
	if err != nil {
		return WriteResult{}, fmt.Errorf("%w: %v", ErrWriteFailed, err)
	}
	return result, nil
}

// deleteProject removes every key of one project inside the transaction.
func (d *BadgerDriver) deleteProject(txn *badger.Txn, projectID string, result *WriteResult) error {
	for _, prefix := range []string{
		nodePrefix + projectID + keySep,
		edgePrefix + projectID + keySep,
		reversePrefix + projectID + keySep,
	} {
		var keys [][]byte
		err := scanPrefix(txn, []byte(prefix), func(item *badger.Item) error {
			keys = append(keys, item.KeyCopy(nil))
			return nil
		})
		if err != nil {
			return err
		}
		for _, key := range keys {
			if err := txn.Delete(key); err != nil {
				return err
			}
			switch prefix[0] {
			case 'n':
				result.NodesDeleted++
			case 'e':
				result.EdgesDeleted++
			}
		}
	}
	return nil
}

// Close stops the GC loop and closes the database. Safe to call twice.
func (d *BadgerDriver) Close() error {
	d.closeOnce.Do(func() {
		close(d.gcStop)
		<-d.gcDone
		d.closeErr = d.db.Close()
	})
	return d.closeErr
}

func nodeKey(projectID, entityID string) []byte {
	return []byte(nodePrefix + projectID + keySep + entityID)
}

func edgeKey(projectID string, r *entity.Relationship) []byte {
	return []byte(edgePrefix + projectID + keySep + r.SourceID + keySep + r.Type.String() + keySep + r.TargetID + keySep + strconv.Itoa(r.SourceLine))
}

func reverseKey(projectID string, r *entity.Relationship) []byte {
	return []byte(reversePrefix + projectID + keySep + r.TargetID + keySep + r.Type.String() + keySep + r.SourceID + keySep + strconv.Itoa(r.SourceLine))
}

// scanPrefix iterates every item under a key prefix.
func scanPrefix(txn *badger.Txn, prefix []byte, fn func(item *badger.Item) error) error {
	opts := badger.DefaultIteratorOptions
	opts.Prefix = prefix

	it := txn.NewIterator(opts)
	defer it.Close()

	for it.Rewind(); it.ValidForPrefix(prefix); it.Next() {
		if err := fn(it.Item()); err != nil {
			return err
		}
	}
	return nil
}

// scanEdges decodes relationship values under a prefix into rows.
func scanEdges(txn *badger.Txn, prefix []byte, q Query, rows *[]Row) error {
	return scanPrefix(txn, prefix, func(item *badger.Item) error {
		e, err := decodeEdge(item)
		if err != nil {
			return err
		}
		if q.matchesRelFilter(e.Type) {
			*rows = append(*rows, Row{Edge: e})
		}
		return nil
	})
}

func decodeNode(item *badger.Item) (*entity.CodeEntity, error) {
	var n entity.CodeEntity
	err := item.Value(func(value []byte) error {
		return json.Unmarshal(value, &n)
	})
	if err != nil {
		return nil, fmt.Errorf("decode node %s: %w", item.Key(), err)
	}
	return &n, nil
}

func decodeEdge(item *badger.Item) (*entity.Relationship, error) {
	var e entity.Relationship
	err := item.Value(func(value []byte) error {
		return json.Unmarshal(value, &e)
	})
	if err != nil {
		return nil, fmt.Errorf("decode edge %s: %w", item.Key(), err)
	}
	return &e, nil
}
