// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package storage

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/dgraph-io/badger/v4"

	"github.com/AleutianAI/classlab/services/rpcserver/datatypes"
)

// ErrResultErrorExclusive reports a log write that violates the
// one-of-result-or-error invariant.
var ErrResultErrorExclusive = errors.New("log row must set exactly one of result and error")

// Order values for FetchLogs.
const (
	OrderLatest   = "latest"
	OrderEarliest = "earliest"
)

// FetchOptions filters and bounds a log query. All provided filters are
// ANDed. N is clamped to FetchLimit server-side.
type FetchOptions struct {
	StudentID      string
	ExperimentName string
	Trial          string
	Start          *time.Time
	End            *time.Time
	N              int
	Order          string
}

// LogEvent appends one immutable log row for an attempted invocation.
// Exactly one of result/errMsg must be non-nil; the timestamp is assigned
// here, in UTC. The write is retried once on a transaction conflict.
func (s *Store) LogEvent(studentID, experimentName, trial, funcName string, args json.RawMessage, result json.RawMessage, errMsg *string) error {
	if (result == nil) == (errMsg == nil) {
		return ErrResultErrorExclusive
	}

	id, err := s.seq.Next()
	if err != nil {
		return fmt.Errorf("allocating log id: %w", err)
	}
	row := datatypes.LogRow{
		ID:             int64(id),
		TS:             time.Now().UTC(),
		StudentID:      studentID,
		ExperimentName: experimentName,
		Trial:          trial,
		FuncName:       funcName,
		Args:           args,
		Result:         result,
		Error:          errMsg,
	}
	encoded, err := json.Marshal(row)
	if err != nil {
		return err
	}
	return s.runOnce(func(txn *badger.Txn) error {
		return txn.Set(logKey(id), encoded)
	})
}

// FetchLogs returns log rows matching the filters, ordered by timestamp
// (descending for latest, ascending for earliest; row id breaks timestamp
// ties deterministically), limited to min(N, FetchLimit) rows. Timestamps
// come back in UTC.
func (s *Store) FetchLogs(opts FetchOptions) ([]datatypes.LogRow, error) {
	n := opts.N
	if n < 1 {
		n = 1
	}
	if n > FetchLimit {
		n = FetchLimit
	}

	rows := []datatypes.LogRow{}
	err := s.db.View(func(txn *badger.Txn) error {
		iopts := badger.DefaultIteratorOptions
		iopts.Prefix = []byte(logPrefix)
		it := txn.NewIterator(iopts)
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			var row datatypes.LogRow
			if err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &row)
			}); err != nil {
				return err
			}
			if !matches(&row, &opts) {
				continue
			}
			row.TS = row.TS.UTC()
			rows = append(rows, row)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	earliest := opts.Order == OrderEarliest
	sort.Slice(rows, func(i, j int) bool {
		if !rows[i].TS.Equal(rows[j].TS) {
			if earliest {
				return rows[i].TS.Before(rows[j].TS)
			}
			return rows[i].TS.After(rows[j].TS)
		}
		if earliest {
			return rows[i].ID < rows[j].ID
		}
		return rows[i].ID > rows[j].ID
	})
	if len(rows) > n {
		rows = rows[:n]
	}
	return rows, nil
}

func matches(row *datatypes.LogRow, opts *FetchOptions) bool {
	if opts.StudentID != "" && row.StudentID != opts.StudentID {
		return false
	}
	if opts.ExperimentName != "" && row.ExperimentName != opts.ExperimentName {
		return false
	}
	if opts.Trial != "" && row.Trial != opts.Trial {
		return false
	}
	if opts.Start != nil && row.TS.Before(*opts.Start) {
		return false
	}
	if opts.End != nil && row.TS.After(*opts.End) {
		return false
	}
	return true
}

// DeleteLogsByStudent removes every log row for the student and returns
// the number of rows deleted.
func (s *Store) DeleteLogsByStudent(studentID string) (int, error) {
	count := 0
	err := s.runOnce(func(txn *badger.Txn) error {
		var err error
		count, err = deleteLogsInTxn(txn, studentID)
		return err
	})
	if err != nil {
		return 0, err
	}
	return count, nil
}

// deleteLogsInTxn deletes a student's log rows inside an open transaction,
// so callers can combine it with other deletes atomically.
func deleteLogsInTxn(txn *badger.Txn, studentID string) (int, error) {
	var keys [][]byte
	iopts := badger.DefaultIteratorOptions
	iopts.Prefix = []byte(logPrefix)
	it := txn.NewIterator(iopts)
	for it.Rewind(); it.Valid(); it.Next() {
		var row datatypes.LogRow
		if err := it.Item().Value(func(val []byte) error {
			return json.Unmarshal(val, &row)
		}); err != nil {
			it.Close()
			return 0, err
		}
		if row.StudentID == studentID {
			keys = append(keys, it.Item().KeyCopy(nil))
		}
	}
	it.Close()

	for _, key := range keys {
		if err := txn.Delete(key); err != nil {
			return 0, err
		}
	}
	return len(keys), nil
}

// DistinctStudentsWithLogs returns the sorted, deduplicated student ids
// that have at least one log row.
func (s *Store) DistinctStudentsWithLogs() ([]string, error) {
	return s.distinctLogField(func(row *datatypes.LogRow) string { return row.StudentID })
}

// DistinctExperiments returns the sorted, deduplicated non-empty trial
// labels found in the logs. The name is historical: trial labels are what
// the log-options UI presents as "experiments".
func (s *Store) DistinctExperiments() ([]string, error) {
	return s.distinctLogField(func(row *datatypes.LogRow) string { return row.Trial })
}

func (s *Store) distinctLogField(field func(*datatypes.LogRow) string) ([]string, error) {
	seen := make(map[string]bool)
	err := s.db.View(func(txn *badger.Txn) error {
		iopts := badger.DefaultIteratorOptions
		iopts.Prefix = []byte(logPrefix)
		it := txn.NewIterator(iopts)
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			var row datatypes.LogRow
			if err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &row)
			}); err != nil {
				return err
			}
			if v := field(&row); v != "" {
				seen[v] = true
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	out := make([]string, 0, len(seen))
	for v := range seen {
		out = append(out, v)
	}
	sort.Strings(out)
	return out, nil
}
