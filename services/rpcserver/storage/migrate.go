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
	"log/slog"

	"github.com/dgraph-io/badger/v4"

	"github.com/AleutianAI/classlab/services/rpcserver/datatypes"
)

// migrate upgrades log rows persisted under an older schema and stamps the
// current version. Version 1 rows predate the experiment_name and trial
// fields; they are rewritten in the current shape with those fields empty.
// Runs once per open; a store already at the current version is a no-op.
func (s *Store) migrate() error {
	current := ""
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(schemaVersionKey))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			current = string(val)
			return nil
		})
	})
	if err != nil {
		return err
	}
	if current == schemaVersion {
		return nil
	}

	rewritten := 0
	err = s.runOnce(func(txn *badger.Txn) error {
		rewritten = 0
		iopts := badger.DefaultIteratorOptions
		iopts.Prefix = []byte(logPrefix)
		it := txn.NewIterator(iopts)

		type rewrite struct {
			key []byte
			val []byte
		}
		var rewrites []rewrite
		for it.Rewind(); it.Valid(); it.Next() {
			var raw map[string]json.RawMessage
			var key []byte
			if err := it.Item().Value(func(val []byte) error {
				key = it.Item().KeyCopy(nil)
				return json.Unmarshal(val, &raw)
			}); err != nil {
				it.Close()
				return err
			}
			_, hasExp := raw["experiment_name"]
			_, hasTrial := raw["trial"]
			if hasExp && hasTrial {
				continue
			}
			var row datatypes.LogRow
			encoded, err := remarshalRow(raw, &row)
			if err != nil {
				it.Close()
				return err
			}
			rewrites = append(rewrites, rewrite{key: key, val: encoded})
		}
		it.Close()

		for _, rw := range rewrites {
			if err := txn.Set(rw.key, rw.val); err != nil {
				return err
			}
			rewritten++
		}
		return txn.Set([]byte(schemaVersionKey), []byte(schemaVersion))
	})
	if err != nil {
		return err
	}
	if rewritten > 0 {
		slog.Warn("migrated log rows to current schema", "rows", rewritten, "version", schemaVersion)
	}
	return nil
}

// remarshalRow decodes a raw row into the current LogRow shape and encodes
// it back, which fills in any fields the old schema lacked.
func remarshalRow(raw map[string]json.RawMessage, row *datatypes.LogRow) ([]byte, error) {
	combined, err := json.Marshal(raw)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(combined, row); err != nil {
		return nil, err
	}
	return json.Marshal(row)
}
