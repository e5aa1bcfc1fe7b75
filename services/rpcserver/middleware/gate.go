// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package middleware

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/AleutianAI/classlab/services/rpcserver/state"
)

// RequireAnyActive creates a middleware that rejects requests while no
// experiment is active, without pinning a particular one. The root routes
// use it: they are bound to the default experiment but stay usable while
// any experiment is running.
func RequireAnyActive(gate *state.State) gin.HandlerFunc {
	return func(c *gin.Context) {
		if _, ok := gate.Active(); !ok {
			c.AbortWithStatusJSON(http.StatusConflict, gin.H{
				"detail": "No active experiment. Start one from the landing page.",
			})
			return
		}
		c.Next()
	}
}

// RequireActive creates a middleware that rejects requests for an
// experiment that is not the active one.
//
// # Description
//
// nameOf resolves the experiment a request targets (the :name path param
// for namespaced routes). Requests are aborted with 409 when no experiment
// is active or a different one is, so an inactive experiment's functions
// and roster stay invisible.
func RequireActive(gate *state.State, nameOf func(*gin.Context) string) gin.HandlerFunc {
	return func(c *gin.Context) {
		active, ok := gate.Active()
		if !ok {
			c.AbortWithStatusJSON(http.StatusConflict, gin.H{
				"detail": "No active experiment. Start one from the landing page.",
			})
			return
		}
		if name := nameOf(c); name != active {
			c.AbortWithStatusJSON(http.StatusConflict, gin.H{
				"detail": fmt.Sprintf("Experiment '%s' is active. Open that UI or stop it first.", active),
			})
			return
		}
		c.Next()
	}
}
