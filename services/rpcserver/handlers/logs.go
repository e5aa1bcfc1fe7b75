// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package handlers

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/AleutianAI/classlab/services/rpcserver/storage"
)

// API-level bounds on log page size. The storage layer has its own, much
// larger ceiling.
const (
	defaultLogN = 100
	maxLogN     = 1000
)

// parseLogCommon reads the n and order query params shared by both log
// endpoints. A false return means an error was already written.
func parseLogCommon(c *gin.Context) (int, string, bool) {
	n := defaultLogN
	if raw := c.Query("n"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 || parsed > maxLogN {
			c.JSON(http.StatusBadRequest, gin.H{"detail": "n must be an integer between 1 and 1000"})
			return 0, "", false
		}
		n = parsed
	}

	order := storage.OrderLatest
	switch c.DefaultQuery("order", "latest") {
	case "latest":
	case "earliest":
		order = storage.OrderEarliest
	default:
		c.JSON(http.StatusBadRequest, gin.H{"detail": "order must be 'latest' or 'earliest'"})
		return 0, "", false
	}
	return n, order, true
}

// parseTimeParam parses an optional RFC 3339 query param.
func parseTimeParam(c *gin.Context, key string) (*time.Time, bool) {
	raw := c.Query(key)
	if raw == "" {
		return nil, true
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"detail": key + " must be an RFC 3339 timestamp"})
		return nil, false
	}
	return &t, true
}

// firstNonEmpty returns the first non-empty string.
func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

// Logs is the student-facing log endpoint. It accepts the historical alias
// query params (sid for student_id; exp, trial_name and experiment_name
// for trial) and an optional start_time/end_time window.
func Logs(env *Env, resolve Resolver) gin.HandlerFunc {
	return func(c *gin.Context) {
		expCtx, ok := resolve(c)
		if !ok {
			return
		}
		n, order, ok := parseLogCommon(c)
		if !ok {
			return
		}
		start, ok := parseTimeParam(c, "start_time")
		if !ok {
			return
		}
		end, ok := parseTimeParam(c, "end_time")
		if !ok {
			return
		}

		student := firstNonEmpty(c.Query("student_id"), c.Query("sid"))
		trial := firstNonEmpty(c.Query("trial"), c.Query("trial_name"), c.Query("experiment_name"), c.Query("exp"))

		rows, err := expCtx.Storage.FetchLogs(storage.FetchOptions{
			StudentID: student,
			Trial:     trial,
			Start:     start,
			End:       end,
			N:         n,
			Order:     order,
		})
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"logs": rows})
	}
}

// AdminLogs is the instructor log endpoint. Narrower param surface than
// Logs: student_id plus trial (experiment_name accepted as its alias).
func AdminLogs(env *Env, resolve Resolver) gin.HandlerFunc {
	return func(c *gin.Context) {
		expCtx, ok := resolve(c)
		if !ok {
			return
		}
		n, order, ok := parseLogCommon(c)
		if !ok {
			return
		}

		trial := firstNonEmpty(c.Query("trial"), c.Query("experiment_name"))

		rows, err := expCtx.Storage.FetchLogs(storage.FetchOptions{
			StudentID: c.Query("student_id"),
			Trial:     trial,
			N:         n,
			Order:     order,
		})
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"logs": rows})
	}
}

// PurgeStudentLogs deletes every log row a student produced, keeping the
// roster row. Purging a student with no logs is not an error.
func PurgeStudentLogs(env *Env, resolve Resolver) gin.HandlerFunc {
	return func(c *gin.Context) {
		expCtx, ok := resolve(c)
		if !ok {
			return
		}
		id := c.Param("student_id")

		deleted, err := expCtx.Storage.DeleteLogsByStudent(id)
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok", "deleted": deleted})
	}
}

// LogOptions reports the distinct student ids and trial labels present in
// the experiment's logs, for populating filter dropdowns.
func LogOptions(env *Env, resolve Resolver) gin.HandlerFunc {
	return func(c *gin.Context) {
		expCtx, ok := resolve(c)
		if !ok {
			return
		}

		students, err := expCtx.Storage.DistinctStudentsWithLogs()
		if err != nil {
			writeError(c, err)
			return
		}
		experiments, err := expCtx.Storage.DistinctExperiments()
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"students":    students,
			"experiments": experiments,
			"trials":      experiments,
		})
	}
}
