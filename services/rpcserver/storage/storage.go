// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package storage provides the durable roster and invocation-log store for
// one experiment, backed by BadgerDB.
//
// Each experiment owns one Badger directory. The keyspace:
//
//	student/<id>          JSON Student
//	log/<seq, 20 digits>  JSON LogRow (append-only)
//	meta/schema_version   current row schema version
//
// Log keys are zero-padded sequence numbers, so key order is append order.
// Ordering queries still sort by the timestamp column: rows are appended in
// commit order, not submission order, and the timestamp is authoritative.
//
// # Recovery
//
// If Badger cannot open the directory (version/format mismatch after a
// crash mid-write), the directory is renamed aside with a timestamp suffix
// and a fresh store is initialized. Data loss is possible; availability is
// prioritized and the backup is logged loudly for the operator.
//
// # Concurrency
//
// Every logical operation is one Badger transaction. Badger runs them under
// snapshot isolation; a log write that loses a conflict race is retried
// once before the error propagates.
package storage

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/dgraph-io/badger/v4"
)

const (
	studentPrefix    = "student/"
	logPrefix        = "log/"
	schemaVersionKey = "meta/schema_version"
	logSeqKey        = "meta/log_seq"

	// schemaVersion is the current LogRow schema. Version 1 rows predate
	// the experiment_name and trial fields.
	schemaVersion = "2"

	// FetchLimit is the hard ceiling on rows returned by FetchLogs,
	// regardless of what the caller requests.
	FetchLimit = 10_000

	seqBandwidth = 128
)

// Options configures a Store. The zero value is not usable; use Path for
// a persistent store or InMemory for tests.
type Options struct {
	// Path is the Badger directory for this experiment's data.
	// Ignored when InMemory is true.
	Path string

	// InMemory enables in-memory mode (no disk persistence).
	// Useful for testing.
	InMemory bool

	// SyncWrites enables synchronous writes for durability.
	SyncWrites bool

	// Logger receives Badger's internal logging. If nil, it is disabled.
	Logger *slog.Logger
}

// DefaultOptions returns production settings for an experiment directory.
func DefaultOptions(path string) Options {
	return Options{Path: path, SyncWrites: true}
}

// InMemoryOptions returns settings for tests: no disk I/O, no sync.
func InMemoryOptions() Options {
	return Options{InMemory: true}
}

// Store is the roster + log store for one experiment.
type Store struct {
	db   *badger.DB
	seq  *badger.Sequence
	path string
}

// badgerLogger adapts slog to Badger's Logger interface.
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
	l.logger.Debug(fmt.Sprintf(format, args...))
}
func (l *badgerLogger) Debugf(format string, args ...interface{}) {
	l.logger.Debug(fmt.Sprintf(format, args...))
}

func badgerOptions(opts Options) badger.Options {
	var bopts badger.Options
	if opts.InMemory {
		bopts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		bopts = badger.DefaultOptions(opts.Path).WithSyncWrites(opts.SyncWrites)
	}
	if opts.Logger != nil {
		bopts = bopts.WithLogger(&badgerLogger{logger: opts.Logger})
	} else {
		bopts = bopts.WithLogger(nil)
	}
	return bopts
}

// Open opens (or creates) the store and applies pending schema migrations.
//
// On an unreadable on-disk store, the directory is backed up aside and a
// fresh one is created in its place; the server starts either way.
func Open(opts Options) (*Store, error) {
	if !opts.InMemory {
		if err := os.MkdirAll(filepath.Dir(opts.Path), 0o755); err != nil {
			return nil, fmt.Errorf("creating storage parent directory: %w", err)
		}
	}

	db, err := badger.Open(badgerOptions(opts))
	if err != nil && !opts.InMemory {
		backup := fmt.Sprintf("%s.corrupt.%s", opts.Path, time.Now().UTC().Format("20060102150405"))
		slog.Warn("storage unreadable; backing up and reinitializing an empty store",
			"path", opts.Path, "backup", backup, "error", err)
		if renameErr := os.Rename(opts.Path, backup); renameErr != nil {
			return nil, fmt.Errorf("opening storage at %s: %w", opts.Path, err)
		}
		db, err = badger.Open(badgerOptions(opts))
	}
	if err != nil {
		return nil, fmt.Errorf("opening storage: %w", err)
	}

	seq, err := db.GetSequence([]byte(logSeqKey), seqBandwidth)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("opening log sequence: %w", err)
	}

	s := &Store{db: db, seq: seq, path: opts.Path}
	if err := s.migrate(); err != nil {
		s.Close()
		return nil, fmt.Errorf("migrating storage schema: %w", err)
	}
	return s, nil
}

// Close releases the sequence lease and closes the database.
func (s *Store) Close() error {
	var firstErr error
	if s.seq != nil {
		firstErr = s.seq.Release()
	}
	if err := s.db.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	return firstErr
}

// runOnce wraps a single Badger update with one retry on a conflict race.
func (s *Store) runOnce(fn func(txn *badger.Txn) error) error {
	err := s.db.Update(fn)
	if errors.Is(err, badger.ErrConflict) {
		err = s.db.Update(fn)
	}
	return err
}

func studentKey(id string) []byte { return []byte(studentPrefix + id) }

func logKey(id uint64) []byte { return []byte(fmt.Sprintf("%s%020d", logPrefix, id)) }
