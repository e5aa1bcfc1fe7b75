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
)

// ListFunctions returns the callable surface of the resolved experiment as
// a map of function name to signature and doc string.
func ListFunctions(env *Env, resolve Resolver) gin.HandlerFunc {
	return func(c *gin.Context) {
		expCtx, ok := resolve(c)
		if !ok {
			return
		}

		reg := expCtx.Registry.Snapshot()
		out := make(map[string]datatypes.FunctionInfo, reg.Len())
		for _, name := range reg.Names() {
			fn, _ := reg.Lookup(name)
			out[name] = datatypes.FunctionInfo{
				Signature: fn.Signature(),
				Doc:       fn.Doc,
			}
		}
		c.JSON(http.StatusOK, out)
	}
}

// ReloadFunctions rebuilds the experiment's function registry from its
// funcs directory and reports the new count.
func ReloadFunctions(env *Env, resolve Resolver) gin.HandlerFunc {
	return func(c *gin.Context) {
		expCtx, ok := resolve(c)
		if !ok {
			return
		}

		count, err := expCtx.Registry.Reload()
		if err != nil {
			slog.Error("function reload failed", "experiment", expCtx.Name, "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"detail": "Failed to reload functions"})
			return
		}
		slog.Info("functions reloaded", "experiment", expCtx.Name, "functions", count)
		c.JSON(http.StatusOK, gin.H{"status": "ok", "functions": count})
	}
}
