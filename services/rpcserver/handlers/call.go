// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/AleutianAI/classlab/services/rpcserver/datatypes"
)

// Call handles a function invocation against the resolved experiment.
//
// requireContext makes experiment_name mandatory in the request body; root
// calls use it so a client talking to the root API states which experiment
// it believes is active rather than silently hitting the default one.
func Call(env *Env, resolve Resolver, requireContext bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req datatypes.CallRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"detail": err.Error()})
			return
		}

		expCtx, ok := resolve(c)
		if !ok {
			return
		}
		if requireContext && req.ExperimentName == "" {
			c.JSON(http.StatusConflict, gin.H{"detail": "Missing experiment_name in request."})
			return
		}

		result, err := env.Dispatcher.Call(c.Request.Context(), expCtx, &req)
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"result": result})
	}
}
