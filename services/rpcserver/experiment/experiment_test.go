// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package experiment

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/classlab/services/rpcserver/state"
)

func scaffoldExperiment(t *testing.T, root, name string) {
	t.Helper()
	funcsDir := filepath.Join(root, "experiments", name, "funcs")
	require.NoError(t, os.MkdirAll(funcsDir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(funcsDir, "functions.hcl"), []byte(`
function "square" {
  params = ["x"]
  doc    = "Return x^2."
  body   = x * x
}
`), 0o644))
}

func TestDiscover(t *testing.T) {
	root := t.TempDir()
	scaffoldExperiment(t, root, "looplab")
	scaffoldExperiment(t, root, "default")
	// A stray file and a traversal-shaped dir are both ignored.
	require.NoError(t, os.WriteFile(filepath.Join(root, "experiments", "notes.txt"), []byte("x"), 0o644))

	m := NewManager(root, state.New())
	assert.Equal(t, []string{"default", "looplab"}, m.Discover())
}

func TestDiscoverMissingRoot(t *testing.T) {
	m := NewManager(t.TempDir(), state.New())
	assert.Empty(t, m.Discover())
}

func TestMountIdempotent(t *testing.T) {
	root := t.TempDir()
	scaffoldExperiment(t, root, "e1")
	gate := state.New()
	m := NewManager(root, gate)
	defer m.Close()

	ctx1, err := m.Mount("e1")
	require.NoError(t, err)
	assert.True(t, gate.IsMounted("e1"))
	assert.Equal(t, 1, ctx1.Registry.Snapshot().Len())

	ctx2, err := m.Mount("e1")
	require.NoError(t, err)
	assert.Same(t, ctx1, ctx2, "mount must be build-once per name")
}

func TestMountUnknown(t *testing.T) {
	m := NewManager(t.TempDir(), state.New())
	_, err := m.Mount("ghost")
	var unknown *ErrUnknownExperiment
	assert.True(t, errors.As(err, &unknown))
}

func TestMountRejectsTraversalNames(t *testing.T) {
	m := NewManager(t.TempDir(), state.New())
	_, err := m.Mount("../outside")
	assert.Error(t, err)
	assert.False(t, m.Exists("../outside"))
}

func TestDefaultBinding(t *testing.T) {
	root := t.TempDir()
	scaffoldExperiment(t, root, "e1")
	m := NewManager(root, state.New())
	defer m.Close()

	_, ok := m.Default()
	assert.False(t, ok)

	_, err := m.Mount("e1")
	require.NoError(t, err)
	m.SetDefault("e1")

	ctx, ok := m.Default()
	require.True(t, ok)
	assert.Equal(t, "e1", ctx.Name)
}

func TestChooseDefault(t *testing.T) {
	tests := []struct {
		name       string
		preferred  string
		discovered []string
		want       string
	}{
		{"preferred wins when present", "looplab", []string{"default", "looplab"}, "looplab"},
		{"preferred absent falls to default", "ghost", []string{"default", "looplab"}, "default"},
		{"default_experiment fallback", "", []string{"default_experiment", "zed"}, "default_experiment"},
		{"first discovered", "", []string{"alpha", "beta"}, "alpha"},
		{"nothing discovered", "", nil, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ChooseDefault(tt.preferred, tt.discovered))
		})
	}
}
