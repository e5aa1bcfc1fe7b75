// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package state holds the process-wide server state for the RPC server.
//
// The central piece is the active-experiment gate: a single mutable cell
// naming the experiment that currently accepts student traffic. Every
// dispatch and every student-facing query reads it; only the admin
// start/stop endpoints write it.
//
// # Thread Safety
//
// All methods are safe for concurrent use. Reads and writes are a single
// mutex-guarded cell, never a long-held resource: a slow student call does
// not block the gate.
//
// # Design
//
// State is an injectable struct, not a package global. Tests construct
// independent instances; the server constructs exactly one in main and
// passes it down.
package state

import (
	"errors"
	"fmt"
	"sort"
	"sync"
)

// ErrNoActive is returned by Stop when no experiment is active.
var ErrNoActive = errors.New("no active experiment to stop")

// ConflictError reports a start attempt while a different experiment is active.
type ConflictError struct {
	Active    string
	Requested string
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("experiment %q is already active, stop it first (requested %q)", e.Active, e.Requested)
}

// State is the single source of truth for which experiment accepts student
// traffic, which experiment contexts have been mounted, and the admin
// session epoch.
type State struct {
	mu      sync.RWMutex
	active  string
	mounted map[string]bool

	// authEpoch invalidates admin sessions in bulk. A session records the
	// epoch at login; a mismatch on a later request means the session was
	// issued before the last experiment stop and must re-authenticate.
	authEpoch uint64
}

// New returns an empty State: no active experiment, nothing mounted.
func New() *State {
	return &State{mounted: make(map[string]bool)}
}

// Active returns the currently active experiment name. The second return is
// false when no experiment is active.
func (s *State) Active() (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.active, s.active != ""
}

// Start marks name as the active experiment.
//
// Starting the already-active experiment is a no-op. Starting while a
// different experiment is active fails with *ConflictError and leaves the
// state unchanged; the caller must Stop first.
func (s *State) Start(name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.active != "" && s.active != name {
		return &ConflictError{Active: s.active, Requested: name}
	}
	s.active = name
	return nil
}

// Stop clears the active experiment and bumps the auth epoch so that all
// admin sessions issued before the stop are invalidated (an admin who was
// operating on the stopped tenant must log in again before operating on the
// next one).
//
// Returns the name that was active, or ErrNoActive if nothing was.
func (s *State) Stop() (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.active == "" {
		return "", ErrNoActive
	}
	prev := s.active
	s.active = ""
	s.authEpoch++
	return prev, nil
}

// MarkMounted records that an experiment context has been constructed.
// Mounting is once-per-process-per-name; callers check IsMounted first.
func (s *State) MarkMounted(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.mounted[name] = true
}

// IsMounted reports whether an experiment context was already constructed.
func (s *State) IsMounted(name string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.mounted[name]
}

// Mounted returns the names of all mounted experiments, sorted.
func (s *State) Mounted() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	names := make([]string, 0, len(s.mounted))
	for name := range s.mounted {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// AuthEpoch returns the current admin session epoch.
func (s *State) AuthEpoch() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.authEpoch
}
