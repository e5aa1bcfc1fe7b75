// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package handlers implements the HTTP endpoints of the rpcserver service.
//
// Handlers come in two flavors wired from the same constructors: root
// handlers bound to the default experiment, and namespaced handlers under
// /exp/:name bound to whichever mounted experiment the path names. The
// difference is captured by a Resolver; everything downstream of context
// resolution is shared.
//
// Error bodies follow one shape everywhere: {"detail": "<message>"}.
package handlers

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"

	"github.com/AleutianAI/classlab/pkg/validation"
	"github.com/AleutianAI/classlab/services/rpcserver/dispatch"
	"github.com/AleutianAI/classlab/services/rpcserver/experiment"
	"github.com/AleutianAI/classlab/services/rpcserver/state"
)

func init() {
	// The studentid tag backs the binding rules on roster request bodies.
	if v, ok := binding.Validator.Engine().(*validator.Validate); ok {
		_ = v.RegisterValidation("studentid", func(fl validator.FieldLevel) bool {
			return validation.ValidateStudentID(fl.Field().String()) == nil
		})
	}
}

// Env bundles the shared server dependencies handlers need.
type Env struct {
	Gate       *state.State
	Manager    *experiment.Manager
	Dispatcher *dispatch.Dispatcher
	Version    string
}

// Resolver locates the experiment context a request targets. A false
// return means the resolver already wrote the error response.
type Resolver func(c *gin.Context) (*experiment.Context, bool)

// DefaultResolver resolves to the default experiment, answering 503 when
// no experiments are available.
func DefaultResolver(env *Env) Resolver {
	return func(c *gin.Context) (*experiment.Context, bool) {
		expCtx, ok := env.Manager.Default()
		if !ok {
			c.JSON(http.StatusServiceUnavailable, gin.H{"detail": "No experiments available"})
			return nil, false
		}
		return expCtx, true
	}
}

// NamedResolver resolves the :name path parameter against the mounted
// experiments, answering 404 for anything unmounted.
func NamedResolver(env *Env) Resolver {
	return func(c *gin.Context) (*experiment.Context, bool) {
		name := c.Param("name")
		expCtx, ok := env.Manager.Get(name)
		if !ok {
			c.JSON(http.StatusNotFound, gin.H{"detail": "Experiment '" + name + "' not found"})
			return nil, false
		}
		return expCtx, true
	}
}

// writeError maps the dispatch error taxonomy onto HTTP statuses. Anything
// outside the taxonomy is a server fault: logged, and answered with a
// generic 500 so internals stay out of response bodies.
func writeError(c *gin.Context, err error) {
	var (
		gateErr       *dispatch.GateConflictError
		notFoundErr   *dispatch.NotFoundError
		forbiddenErr  *dispatch.ForbiddenError
		validationErr *dispatch.ValidationError
		execErr       *dispatch.ExecutionError
	)
	switch {
	case errors.As(err, &gateErr):
		c.JSON(http.StatusConflict, gin.H{"detail": gateErr.Error()})
	case errors.As(err, &notFoundErr):
		c.JSON(http.StatusNotFound, gin.H{"detail": notFoundErr.Error()})
	case errors.As(err, &forbiddenErr):
		c.JSON(http.StatusForbidden, gin.H{"detail": forbiddenErr.Error()})
	case errors.As(err, &validationErr):
		c.JSON(http.StatusBadRequest, gin.H{"detail": validationErr.Error()})
	case errors.As(err, &execErr):
		c.JSON(http.StatusBadRequest, gin.H{"detail": execErr.Error()})
	default:
		slog.Error("request failed", "path", c.FullPath(), "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"detail": "Internal server error"})
	}
}
