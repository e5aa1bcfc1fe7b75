// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package handlers

import (
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/AleutianAI/classlab/services/rpcserver/datatypes"
	"github.com/AleutianAI/classlab/services/rpcserver/middleware"
)

// Login authenticates an instructor against the resolved experiment's
// credentials and issues a session cookie stamped with the current auth
// epoch.
func Login(env *Env, resolve Resolver) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req datatypes.LoginRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"detail": err.Error()})
			return
		}
		expCtx, ok := resolve(c)
		if !ok {
			return
		}

		if !expCtx.Verify(req.Username, req.Password) {
			slog.Warn("failed admin login", "experiment", expCtx.Name, "username", req.Username)
			c.JSON(http.StatusUnauthorized, gin.H{"detail": "Invalid credentials"})
			return
		}
		if err := middleware.SetAuthenticated(c, env.Gate); err != nil {
			writeError(c, err)
			return
		}
		slog.Info("admin login", "experiment", expCtx.Name, "username", req.Username)
		c.JSON(http.StatusOK, gin.H{"message": "Login successful"})
	}
}

// Logout clears the admin session.
func Logout(env *Env) gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := middleware.ClearAuthenticated(c); err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"message": "Logged out"})
	}
}

// Ping answers ok for a live admin session. The RequireAdmin middleware
// does the actual check.
func Ping() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"ok": true})
	}
}
