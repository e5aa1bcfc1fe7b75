// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package registry

import (
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zclconf/go-cty/cty"
)

func writeFuncs(t *testing.T, dir, name, contents string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(contents), 0o644))
}

const basicFuncs = `
function "square" {
  params = ["x"]
  doc    = "Return x^2."
  body   = x * x
}

function "rosenbrock" {
  params   = ["x", "y", "a", "b"]
  defaults = { a = 1, b = 100 }
  doc      = "Classic Rosenbrock function."
  body     = pow(a - x, 2) + b * pow(y - pow(x, 2), 2)
}

function "_helper" {
  params = ["x"]
  body   = x
}
`

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	writeFuncs(t, dir, "functions.hcl", basicFuncs)

	reg, err := Load(dir)
	require.NoError(t, err)

	assert.Equal(t, []string{"rosenbrock", "square"}, reg.Names())

	_, ok := reg.Lookup("_helper")
	assert.False(t, ok, "private functions must not register")

	sq, ok := reg.Lookup("square")
	require.True(t, ok)
	assert.Equal(t, "(x)", sq.Signature())
	assert.Equal(t, "Return x^2.", sq.Doc)

	ros, ok := reg.Lookup("rosenbrock")
	require.True(t, ok)
	assert.Equal(t, "(x, y, a=1, b=100)", ros.Signature())
}

func TestCall(t *testing.T) {
	dir := t.TempDir()
	writeFuncs(t, dir, "functions.hcl", basicFuncs)
	reg, err := Load(dir)
	require.NoError(t, err)

	sq, _ := reg.Lookup("square")
	got, err := sq.Call([]cty.Value{cty.NumberIntVal(7)})
	require.NoError(t, err)
	assert.True(t, got.RawEquals(cty.NumberIntVal(49)))

	ros, _ := reg.Lookup("rosenbrock")
	// Defaults a=1, b=100 bind for the missing trailing args; minimum is at (1, 1).
	got, err = ros.Call([]cty.Value{cty.NumberIntVal(1), cty.NumberIntVal(1)})
	require.NoError(t, err)
	assert.True(t, got.RawEquals(cty.NumberIntVal(0)))
}

func TestCallArity(t *testing.T) {
	dir := t.TempDir()
	writeFuncs(t, dir, "functions.hcl", basicFuncs)
	reg, err := Load(dir)
	require.NoError(t, err)

	sq, _ := reg.Lookup("square")

	var arity *ArityError

	_, err = sq.Call(nil)
	require.Error(t, err)
	assert.True(t, errors.As(err, &arity), "missing required arg should be an arity error")

	_, err = sq.Call([]cty.Value{cty.NumberIntVal(1), cty.NumberIntVal(2)})
	require.Error(t, err)
	assert.True(t, errors.As(err, &arity), "extra arg should be an arity error")
}

func TestCallEvaluationError(t *testing.T) {
	dir := t.TempDir()
	writeFuncs(t, dir, "functions.hcl", `
function "bad" {
  params = ["x"]
  body   = x + "not a number"
}
`)
	reg, err := Load(dir)
	require.NoError(t, err)

	bad, ok := reg.Lookup("bad")
	require.True(t, ok, "functions with non-evaluable bodies still register; they fail at call time")

	_, err = bad.Call([]cty.Value{cty.NumberIntVal(1)})
	require.Error(t, err)
}

func TestLoadSkipsBadFile(t *testing.T) {
	dir := t.TempDir()
	writeFuncs(t, dir, "broken.hcl", `function "oops" {`)
	writeFuncs(t, dir, "good.hcl", `
function "cubic" {
  params = ["x"]
  body   = x * x * x
}
`)

	reg, err := Load(dir)
	require.NoError(t, err, "one broken file must not abort the registry build")
	assert.Equal(t, []string{"cubic"}, reg.Names())
}

func TestLoadLastWinsShadowing(t *testing.T) {
	dir := t.TempDir()
	// Sorted filename order: a.hcl loads before b.hcl, so b's definition wins.
	writeFuncs(t, dir, "a.hcl", `
function "square" {
  params = ["x"]
  body   = x
}
`)
	writeFuncs(t, dir, "b.hcl", `
function "square" {
  params = ["x"]
  body   = x * x
}
`)

	reg, err := Load(dir)
	require.NoError(t, err)

	sq, ok := reg.Lookup("square")
	require.True(t, ok)
	got, err := sq.Call([]cty.Value{cty.NumberIntVal(3)})
	require.NoError(t, err)
	assert.True(t, got.RawEquals(cty.NumberIntVal(9)), "definition from the later file must win")
}

func TestLoadRejectsBadDefaults(t *testing.T) {
	dir := t.TempDir()
	writeFuncs(t, dir, "functions.hcl", `
function "gap" {
  params   = ["a", "b", "c"]
  defaults = { b = 1 }
  body     = a + b + c
}

function "ok" {
  params = ["x"]
  body   = x
}
`)

	reg, err := Load(dir)
	require.NoError(t, err)
	_, ok := reg.Lookup("gap")
	assert.False(t, ok, "required param after defaulted one must be rejected")
	_, ok = reg.Lookup("ok")
	assert.True(t, ok)
}

func TestLoadEmptyDirectory(t *testing.T) {
	reg, err := Load(t.TempDir())
	require.NoError(t, err, "empty registry is a warning, not an error")
	assert.Equal(t, 0, reg.Len())
}

func TestStoreReloadAtomic(t *testing.T) {
	dir := t.TempDir()
	writeFuncs(t, dir, "functions.hcl", basicFuncs)

	store, err := NewStore(dir)
	require.NoError(t, err)

	// Concurrent readers must always see a complete snapshot: either the
	// old 2-function mapping or the new 1-function mapping.
	var wg sync.WaitGroup
	stop := make(chan struct{})
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-stop:
					return
				default:
				}
				snap := store.Snapshot()
				n := snap.Len()
				if n != 2 && n != 1 {
					t.Errorf("torn registry snapshot: %d functions", n)
					return
				}
			}
		}()
	}

	writeFuncs(t, dir, "functions.hcl", `
function "identity" {
  params = ["x"]
  body   = x
}
`)
	for i := 0; i < 50; i++ {
		_, err := store.Reload()
		require.NoError(t, err)
	}
	close(stop)
	wg.Wait()

	assert.Equal(t, 1, store.Snapshot().Len())
}

func TestInFlightCallSurvivesReload(t *testing.T) {
	dir := t.TempDir()
	writeFuncs(t, dir, "functions.hcl", basicFuncs)
	store, err := NewStore(dir)
	require.NoError(t, err)

	old := store.Snapshot()
	sq, ok := old.Lookup("square")
	require.True(t, ok)

	// Swap the registry out from under the in-flight call.
	require.NoError(t, os.Remove(filepath.Join(dir, "functions.hcl")))
	_, err = store.Reload()
	require.NoError(t, err)
	require.Equal(t, 0, store.Snapshot().Len())

	got, err := sq.Call([]cty.Value{cty.NumberIntVal(4)})
	require.NoError(t, err, "calls keep the snapshot they started with")
	assert.True(t, got.RawEquals(cty.NumberIntVal(16)))
}
