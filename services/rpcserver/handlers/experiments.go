// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package handlers

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/AleutianAI/classlab/services/rpcserver/datatypes"
	"github.com/AleutianAI/classlab/services/rpcserver/experiment"
	"github.com/AleutianAI/classlab/services/rpcserver/state"
)

// activeOrNil renders the gate for JSON bodies: the active experiment's
// name, or null.
func activeOrNil(gate *state.State) any {
	if name, ok := gate.Active(); ok {
		return name
	}
	return nil
}

// ListExperiments returns the names of every experiment directory on disk,
// mounted or not.
func ListExperiments(env *Env) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, env.Manager.Discover())
	}
}

// ActiveExperiment reports the gate.
func ActiveExperiment(env *Env) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"active": activeOrNil(env.Gate)})
	}
}

// Health is the liveness endpoint.
func Health(env *Env) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"ok":      true,
			"active":  activeOrNil(env.Gate),
			"version": env.Version,
		})
	}
}

// StartExperiment activates an experiment, mounting it first if it was
// added to the experiments directory after startup. Starting while a
// different experiment is active fails with 409 and changes nothing;
// starting the already-active experiment is a no-op that answers ok.
func StartExperiment(env *Env) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req datatypes.StartExperimentRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"detail": err.Error()})
			return
		}

		if _, err := env.Manager.Mount(req.Name); err != nil {
			var unknown *experiment.ErrUnknownExperiment
			if errors.As(err, &unknown) {
				c.JSON(http.StatusNotFound, gin.H{"detail": fmt.Sprintf("Experiment '%s' not found", req.Name)})
				return
			}
			writeError(c, err)
			return
		}

		if err := env.Gate.Start(req.Name); err != nil {
			var conflict *state.ConflictError
			if errors.As(err, &conflict) {
				c.JSON(http.StatusConflict, gin.H{
					"detail": fmt.Sprintf("Experiment '%s' is already active. Stop it first.", conflict.Active),
				})
				return
			}
			writeError(c, err)
			return
		}
		slog.Info("experiment started", "experiment", req.Name)
		c.JSON(http.StatusOK, gin.H{"active": req.Name})
	}
}

// StopExperiment deactivates the active experiment. Outstanding admin
// sessions are invalidated as a side effect of the gate's epoch bump.
func StopExperiment(env *Env) gin.HandlerFunc {
	return func(c *gin.Context) {
		stopped, err := env.Gate.Stop()
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"detail": "No active experiment to stop"})
			return
		}
		slog.Info("experiment stopped", "experiment", stopped)
		c.JSON(http.StatusOK, gin.H{"stopped": stopped, "active": nil})
	}
}
