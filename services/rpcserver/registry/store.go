// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package registry

import (
	"sync/atomic"
)

// Store holds the current Registry snapshot for one experiment.
//
// Reload replaces the snapshot wholesale; Snapshot hands out the current
// one. In-flight calls that already took a snapshot keep evaluating against
// it, which gives the no-tearing reload guarantee.
type Store struct {
	dir     string
	current atomic.Pointer[Registry]
}

// NewStore loads dir and returns a Store holding the initial snapshot.
func NewStore(dir string) (*Store, error) {
	reg, err := Load(dir)
	if err != nil {
		return nil, err
	}
	s := &Store{dir: dir}
	s.current.Store(reg)
	return s, nil
}

// Dir returns the funcs directory this store loads from.
func (s *Store) Dir() string { return s.dir }

// Snapshot returns the current registry. Never nil.
func (s *Store) Snapshot() *Registry {
	return s.current.Load()
}

// Reload builds a fresh registry from the directory and swaps it in,
// returning the new function count. On error the previous snapshot stays
// in place.
func (s *Store) Reload() (int, error) {
	reg, err := Load(s.dir)
	if err != nil {
		return 0, err
	}
	s.current.Store(reg)
	return reg.Len(), nil
}
