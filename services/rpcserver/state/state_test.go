// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package state

import (
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStartStop(t *testing.T) {
	s := New()

	_, ok := s.Active()
	assert.False(t, ok, "fresh state should have no active experiment")

	require.NoError(t, s.Start("e1"))
	active, ok := s.Active()
	require.True(t, ok)
	assert.Equal(t, "e1", active)

	// Restarting the same experiment is a no-op.
	require.NoError(t, s.Start("e1"))

	prev, err := s.Stop()
	require.NoError(t, err)
	assert.Equal(t, "e1", prev)
	_, ok = s.Active()
	assert.False(t, ok)
}

func TestStartConflictLeavesStateUnchanged(t *testing.T) {
	s := New()
	require.NoError(t, s.Start("e1"))

	err := s.Start("e2")
	require.Error(t, err)

	var conflict *ConflictError
	require.True(t, errors.As(err, &conflict))
	assert.Equal(t, "e1", conflict.Active)
	assert.Equal(t, "e2", conflict.Requested)

	active, ok := s.Active()
	require.True(t, ok)
	assert.Equal(t, "e1", active, "failed start must not mutate the gate")
}

func TestStopWithoutActive(t *testing.T) {
	s := New()
	_, err := s.Stop()
	assert.ErrorIs(t, err, ErrNoActive)
	_, ok := s.Active()
	assert.False(t, ok)
}

func TestStopBumpsAuthEpoch(t *testing.T) {
	s := New()
	epoch := s.AuthEpoch()

	require.NoError(t, s.Start("e1"))
	assert.Equal(t, epoch, s.AuthEpoch(), "start must not invalidate sessions")

	_, err := s.Stop()
	require.NoError(t, err)
	assert.Equal(t, epoch+1, s.AuthEpoch(), "stop must invalidate sessions")
}

func TestMounted(t *testing.T) {
	s := New()
	assert.False(t, s.IsMounted("e1"))

	s.MarkMounted("e2")
	s.MarkMounted("e1")
	s.MarkMounted("e1") // idempotent

	assert.True(t, s.IsMounted("e1"))
	assert.True(t, s.IsMounted("e2"))
	assert.Equal(t, []string{"e1", "e2"}, s.Mounted())
}

func TestConcurrentGateAccess(t *testing.T) {
	s := New()
	require.NoError(t, s.Start("e1"))

	var wg sync.WaitGroup
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				if name, ok := s.Active(); ok && name != "e1" {
					t.Errorf("torn gate read: %q", name)
					return
				}
				s.IsMounted("e1")
			}
		}()
	}
	wg.Wait()
}
