// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package middleware provides HTTP middleware for the rpcserver service.
//
// This package contains the admin session layer and the active-experiment
// gate used by the HTTP surface.
//
// # Session Model
//
// Admin sessions are cookie-backed. A session carries two values:
//
//   - authenticated: set true by a successful login
//   - auth_epoch: the gate's auth epoch at login time
//
// Stopping an experiment bumps the gate's auth epoch, so every session
// issued before the stop fails the epoch comparison and is treated as
// logged out. No server-side session store is needed for this: the epoch
// check invalidates stale cookies on their next use.
//
// # Secret Rotation
//
// The cookie secret mixes the configured SESSION_SECRET_KEY with a nonce
// generated at process start. Restarting the server therefore invalidates
// all outstanding admin cookies, which is the intended behavior for a
// classroom tool that is started fresh per session.
package middleware

import (
	"github.com/gin-contrib/sessions"
	"github.com/gin-contrib/sessions/cookie"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/AleutianAI/classlab/services/rpcserver/state"
)

// =============================================================================
// Session Keys
// =============================================================================

const (
	sessionName = "classlab_session"

	authenticatedKey = "authenticated"
	authEpochKey     = "auth_epoch"
)

// =============================================================================
// Session Setup
// =============================================================================

// NewSessionSecret derives the cookie-signing secret from the configured
// base key plus a fresh per-process nonce. An empty base still yields a
// usable random secret.
func NewSessionSecret(base string) []byte {
	return []byte(base + uuid.NewString())
}

// Sessions returns the cookie session middleware. Apply it before any
// handler that calls SetAuthenticated or IsAuthenticated.
func Sessions(secret []byte) gin.HandlerFunc {
	store := cookie.NewStore(secret)
	store.Options(sessions.Options{
		Path:     "/",
		MaxAge:   12 * 60 * 60,
		HttpOnly: true,
	})
	return sessions.Sessions(sessionName, store)
}

// =============================================================================
// Session Helpers
// =============================================================================

// SetAuthenticated marks the current session as an admin session, stamping
// it with the gate's current auth epoch.
func SetAuthenticated(c *gin.Context, gate *state.State) error {
	session := sessions.Default(c)
	session.Set(authenticatedKey, true)
	session.Set(authEpochKey, gate.AuthEpoch())
	return session.Save()
}

// ClearAuthenticated logs the current session out.
func ClearAuthenticated(c *gin.Context) error {
	session := sessions.Default(c)
	session.Delete(authenticatedKey)
	session.Delete(authEpochKey)
	return session.Save()
}

// IsAuthenticated reports whether the current session is a live admin
// session. A session from before the last experiment stop carries a stale
// epoch and is rejected.
func IsAuthenticated(c *gin.Context, gate *state.State) bool {
	session := sessions.Default(c)

	flag, ok := session.Get(authenticatedKey).(bool)
	if !ok || !flag {
		return false
	}
	epoch, ok := session.Get(authEpochKey).(uint64)
	if !ok {
		return false
	}
	return epoch == gate.AuthEpoch()
}
