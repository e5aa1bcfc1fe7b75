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
	"log/slog"
	"strings"

	"github.com/dgraph-io/badger/v4"

	"github.com/AleutianAI/classlab/services/rpcserver/datatypes"
)

// AddStudent inserts a roster row. Idempotent: if the id already exists the
// call succeeds as a no-op and the existing row keeps its original name and
// email, guarding against concurrent duplicate-add races.
func (s *Store) AddStudent(id, name, email string) error {
	if strings.TrimSpace(id) == "" {
		return fmt.Errorf("missing or empty student_id")
	}
	row, err := json.Marshal(datatypes.Student{StudentID: id, Name: name, Email: email})
	if err != nil {
		return err
	}
	return s.runOnce(func(txn *badger.Txn) error {
		_, err := txn.Get(studentKey(id))
		if err == nil {
			slog.Debug("student already exists, skipping insert", "student_id", id)
			return nil
		}
		if !errors.Is(err, badger.ErrKeyNotFound) {
			return err
		}
		return txn.Set(studentKey(id), row)
	})
}

// AddStudentsBulk imports a roster best-effort: rows whose id already
// exists are skipped and counted, malformed rows (missing id) are reported,
// and if the batched insert fails the remaining rows are retried one by one
// so a single bad row costs as little as possible.
func (s *Store) AddStudentsBulk(rows []datatypes.Student) datatypes.BulkAddReport {
	report := datatypes.BulkAddReport{Errors: []string{}, TotalProcessed: len(rows)}

	existing := make(map[string]bool)
	if err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		opts.Prefix = []byte(studentPrefix)
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			existing[strings.TrimPrefix(string(it.Item().Key()), studentPrefix)] = true
		}
		return nil
	}); err != nil {
		slog.Warn("could not check existing students", "error", err)
	}

	var fresh []datatypes.Student
	for _, row := range rows {
		id := strings.TrimSpace(row.StudentID)
		if id == "" {
			report.Errors = append(report.Errors, "Missing or empty student_id")
			continue
		}
		if existing[id] {
			report.Skipped++
			continue
		}
		existing[id] = true // dedupe within the batch too
		fresh = append(fresh, datatypes.Student{
			StudentID: id,
			Name:      strings.TrimSpace(row.Name),
			Email:     strings.TrimSpace(row.Email),
		})
	}
	if len(fresh) == 0 {
		return report
	}

	err := s.runOnce(func(txn *badger.Txn) error {
		for _, st := range fresh {
			row, err := json.Marshal(st)
			if err != nil {
				return err
			}
			if err := txn.Set(studentKey(st.StudentID), row); err != nil {
				return err
			}
		}
		return nil
	})
	if err == nil {
		report.Added = len(fresh)
		slog.Info("bulk added students", "count", report.Added)
		return report
	}

	slog.Warn("bulk insert failed, falling back to individual inserts", "error", err)
	for _, st := range fresh {
		if err := s.AddStudent(st.StudentID, st.Name, st.Email); err != nil {
			report.Errors = append(report.Errors, fmt.Sprintf("Failed to add %s: %v", st.StudentID, err))
			continue
		}
		report.Added++
	}
	return report
}

// StudentExists reports whether a roster row exists for id.
func (s *Store) StudentExists(id string) (bool, error) {
	var exists bool
	err := s.db.View(func(txn *badger.Txn) error {
		_, err := txn.Get(studentKey(id))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		exists = true
		return nil
	})
	return exists, err
}

// ListStudents returns all roster rows ordered by student id. Key order is
// byte order on the id, so the iterator yields them sorted already.
func (s *Store) ListStudents() ([]datatypes.Student, error) {
	students := []datatypes.Student{}
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(studentPrefix)
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			var st datatypes.Student
			if err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &st)
			}); err != nil {
				return err
			}
			students = append(students, st)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return students, nil
}

// DeleteStudent removes a student and all their logs in one transaction:
// either both deletes commit or neither does. Returns false if no roster
// row existed.
func (s *Store) DeleteStudent(id string) (bool, error) {
	deleted := false
	err := s.runOnce(func(txn *badger.Txn) error {
		deleted = false
		_, err := txn.Get(studentKey(id))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		if _, err := deleteLogsInTxn(txn, id); err != nil {
			return err
		}
		if err := txn.Delete(studentKey(id)); err != nil {
			return err
		}
		deleted = true
		return nil
	})
	return deleted, err
}
