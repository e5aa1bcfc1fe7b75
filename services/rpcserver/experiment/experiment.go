// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package experiment binds one experiment's function registry, storage,
// and admin credentials into a context addressable by name, and manages
// the set of mounted contexts for the process.
//
// On disk an experiment is a directory under <root>/experiments/:
//
//	experiments/<name>/
//	  funcs/                    *.hcl function files
//	  db/                       Badger storage
//	  admin_credentials.json    optional admin record
//
// Mounting an experiment context is idempotent per name for the process
// lifetime: the first Mount builds storage and registry, later Mounts
// return the cached context.
package experiment

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/AleutianAI/classlab/pkg/validation"
	"github.com/AleutianAI/classlab/services/rpcserver/auth"
	"github.com/AleutianAI/classlab/services/rpcserver/registry"
	"github.com/AleutianAI/classlab/services/rpcserver/state"
	"github.com/AleutianAI/classlab/services/rpcserver/storage"
)

// ErrUnknownExperiment reports a name with no directory on disk.
type ErrUnknownExperiment struct{ Name string }

func (e *ErrUnknownExperiment) Error() string {
	return fmt.Sprintf("experiment %q not found", e.Name)
}

// Context is one experiment's bundle of registry, storage, and credentials.
type Context struct {
	Name     string
	Registry *registry.Store
	Storage  *storage.Store
	Creds    *auth.Credentials
}

// Verify checks an admin login attempt against this experiment's
// credentials.
func (c *Context) Verify(username, password string) bool {
	return c.Creds.Verify(username, password)
}

// Manager builds and caches experiment contexts under one project root.
type Manager struct {
	root string
	gate *state.State

	mu          sync.Mutex
	contexts    map[string]*Context
	defaultName string
	watchCtx    context.Context
}

// NewManager returns a Manager rooted at the directory containing
// experiments/.
func NewManager(root string, gate *state.State) *Manager {
	return &Manager{
		root:     root,
		gate:     gate,
		contexts: make(map[string]*Context),
	}
}

// EnableWatch makes every subsequently mounted experiment watch its funcs
// directory and auto-reload the registry on changes, until ctx is
// cancelled. Call before mounting.
func (m *Manager) EnableWatch(ctx context.Context) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.watchCtx = ctx
}

// ExperimentsDir returns the directory experiments live under.
func (m *Manager) ExperimentsDir() string {
	return filepath.Join(m.root, "experiments")
}

func (m *Manager) experimentDir(name string) string {
	return filepath.Join(m.ExperimentsDir(), name)
}

// Discover lists the experiment directories present on disk, sorted.
// A missing experiments/ directory yields an empty list, not an error.
func (m *Manager) Discover() []string {
	entries, err := os.ReadDir(m.ExperimentsDir())
	if err != nil {
		return nil
	}
	var names []string
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		if err := validation.ValidateExperimentName(e.Name()); err != nil {
			slog.Warn("skipping experiment directory with invalid name", "dir", e.Name(), "error", err)
			continue
		}
		names = append(names, e.Name())
	}
	sort.Strings(names)
	return names
}

// Exists reports whether an experiment directory is present on disk. This
// is rechecked on every start request so experiment folders can be added
// without a restart.
func (m *Manager) Exists(name string) bool {
	if validation.ValidateExperimentName(name) != nil {
		return false
	}
	info, err := os.Stat(m.experimentDir(name))
	return err == nil && info.IsDir()
}

// Mount returns the context for name, building it on first use. The
// mounted set in the gate mirrors the cache so "start" stays idempotent
// across repeated invocations.
func (m *Manager) Mount(name string) (*Context, error) {
	if err := validation.ValidateExperimentName(name); err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if ctx, ok := m.contexts[name]; ok {
		return ctx, nil
	}
	if !m.existsLocked(name) {
		return nil, &ErrUnknownExperiment{Name: name}
	}

	dir := m.experimentDir(name)
	dbPath := filepath.Join(dir, "db")
	funcsDir := filepath.Join(dir, "funcs")
	credsPath := filepath.Join(dir, "admin_credentials.json")

	slog.Info("mounting experiment", "experiment", name, "db", dbPath, "funcs", funcsDir)

	if err := os.MkdirAll(funcsDir, 0o755); err != nil {
		return nil, fmt.Errorf("preparing funcs directory for %s: %w", name, err)
	}

	store, err := storage.Open(storage.DefaultOptions(dbPath))
	if err != nil {
		return nil, fmt.Errorf("opening storage for %s: %w", name, err)
	}
	regStore, err := registry.NewStore(funcsDir)
	if err != nil {
		store.Close()
		return nil, fmt.Errorf("loading functions for %s: %w", name, err)
	}

	creds := auth.Load(credsPath)
	if creds.NeedsMigration() {
		if err := creds.MigrateFile(); err != nil {
			slog.Warn("credential migration failed; keeping in-memory hash for this run",
				"experiment", name, "error", err)
		}
	}

	if m.watchCtx != nil {
		go func() {
			if err := regStore.Watch(m.watchCtx); err != nil && !errors.Is(err, context.Canceled) {
				slog.Warn("funcs watcher stopped", "experiment", name, "error", err)
			}
		}()
	}

	ctx := &Context{Name: name, Registry: regStore, Storage: store, Creds: creds}
	m.contexts[name] = ctx
	m.gate.MarkMounted(name)
	return ctx, nil
}

func (m *Manager) existsLocked(name string) bool {
	info, err := os.Stat(m.experimentDir(name))
	return err == nil && info.IsDir()
}

// Get returns an already-mounted context.
func (m *Manager) Get(name string) (*Context, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ctx, ok := m.contexts[name]
	return ctx, ok
}

// SetDefault records which experiment the root-level APIs bind to.
func (m *Manager) SetDefault(name string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.defaultName = name
}

// Default returns the context the root-level APIs are bound to, if any.
func (m *Manager) Default() (*Context, bool) {
	m.mu.Lock()
	name := m.defaultName
	m.mu.Unlock()
	if name == "" {
		return nil, false
	}
	return m.Get(name)
}

// DefaultName returns the configured default experiment name ("" if none).
func (m *Manager) DefaultName() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.defaultName
}

// Close closes every mounted context's storage.
func (m *Manager) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	for name, ctx := range m.contexts {
		if err := ctx.Storage.Close(); err != nil {
			slog.Warn("closing experiment storage", "experiment", name, "error", err)
		}
	}
}

// ChooseDefault picks the experiment the root APIs bind to: the preferred
// name when it exists, else "default", else "default_experiment", else the
// first discovered, else none.
func ChooseDefault(preferred string, discovered []string) string {
	present := make(map[string]bool, len(discovered))
	for _, name := range discovered {
		present[name] = true
	}
	if preferred != "" && present[preferred] {
		return preferred
	}
	for _, candidate := range []string{"default", "default_experiment"} {
		if present[candidate] {
			return candidate
		}
	}
	if len(discovered) > 0 {
		return discovered[0]
	}
	return ""
}
