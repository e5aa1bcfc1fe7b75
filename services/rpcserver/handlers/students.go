// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package handlers

import (
	"fmt"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/AleutianAI/classlab/services/rpcserver/datatypes"
)

// AddStudent registers one student on the experiment's roster. Re-adding
// an existing id is a no-op that still answers ok.
func AddStudent(env *Env, resolve Resolver) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req datatypes.AddStudentRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"detail": err.Error()})
			return
		}
		expCtx, ok := resolve(c)
		if !ok {
			return
		}

		if err := expCtx.Storage.AddStudent(req.StudentID, req.Name, req.Email); err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	}
}

// BulkAddStudents imports a roster batch best-effort: valid rows are
// added, duplicates are skipped, invalid rows are reported. The batch is
// never rejected wholesale.
func BulkAddStudents(env *Env, resolve Resolver) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req datatypes.BulkAddRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"detail": err.Error()})
			return
		}
		expCtx, ok := resolve(c)
		if !ok {
			return
		}

		rows := make([]datatypes.Student, len(req.Students))
		for i, s := range req.Students {
			rows[i] = datatypes.Student{StudentID: s.StudentID, Name: s.Name, Email: s.Email}
		}
		report := expCtx.Storage.AddStudentsBulk(rows)
		slog.Info("bulk roster import",
			"experiment", expCtx.Name,
			"added", report.Added,
			"skipped", report.Skipped,
			"errors", len(report.Errors))
		c.JSON(http.StatusOK, report)
	}
}

// ListStudents returns the full roster sorted by student id.
func ListStudents(env *Env, resolve Resolver) gin.HandlerFunc {
	return func(c *gin.Context) {
		expCtx, ok := resolve(c)
		if !ok {
			return
		}
		students, err := expCtx.Storage.ListStudents()
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"students": students})
	}
}

// DeleteStudent removes a student and every log row they produced, in one
// atomic storage operation.
func DeleteStudent(env *Env, resolve Resolver) gin.HandlerFunc {
	return func(c *gin.Context) {
		expCtx, ok := resolve(c)
		if !ok {
			return
		}
		id := c.Param("student_id")

		deleted, err := expCtx.Storage.DeleteStudent(id)
		if err != nil {
			writeError(c, err)
			return
		}
		if !deleted {
			c.JSON(http.StatusNotFound, gin.H{"detail": fmt.Sprintf("Student ID '%s' not found.", id)})
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"status":  "ok",
			"message": fmt.Sprintf("Student '%s' and all associated logs have been deleted.", id),
		})
	}
}

// IsRegistered reports whether a student id is on the roster. Public: the
// student UI uses it to validate ids before calling.
func IsRegistered(env *Env, resolve Resolver) gin.HandlerFunc {
	return func(c *gin.Context) {
		expCtx, ok := resolve(c)
		if !ok {
			return
		}
		id := c.Query("student_id")
		if id == "" {
			c.JSON(http.StatusBadRequest, gin.H{"detail": "student_id is required"})
			return
		}

		registered, err := expCtx.Storage.StudentExists(id)
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"registered": registered})
	}
}
