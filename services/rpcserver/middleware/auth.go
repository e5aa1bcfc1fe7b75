// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/AleutianAI/classlab/services/rpcserver/state"
)

// RequireAdmin creates a middleware that rejects requests without a live
// admin session.
//
// # Description
//
// Checks the session via IsAuthenticated, which includes the auth-epoch
// comparison: sessions issued before the last experiment stop are treated
// as logged out. Unauthenticated requests are aborted with 401.
//
// # Examples
//
//	admin := router.Group("/api/admin")
//	admin.Use(middleware.RequireAdmin(gate))
func RequireAdmin(gate *state.State) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !IsAuthenticated(c, gate) {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"detail": "Not authenticated",
			})
			return
		}
		c.Next()
	}
}
