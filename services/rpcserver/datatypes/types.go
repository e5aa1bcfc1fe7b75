// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package datatypes defines the wire and storage types shared across the
// RPC server: roster rows, invocation log rows, and request/response
// bodies for the HTTP surface.
package datatypes

import (
	"encoding/json"
	"time"
)

// Student is one roster row, owned by a single experiment's storage.
type Student struct {
	StudentID string `json:"student_id"`
	Name      string `json:"name"`
	Email     string `json:"email,omitempty"`
}

// LogRow is one immutable invocation record. Exactly one of Result/Error
// is set: Result for a successful invocation, Error for one that raised.
// TS is assigned at write time and stored in UTC; it, not ID, is
// authoritative for latest/earliest ordering.
type LogRow struct {
	ID             int64           `json:"id"`
	TS             time.Time       `json:"ts"`
	StudentID      string          `json:"student_id"`
	ExperimentName string          `json:"experiment_name"`
	Trial          string          `json:"trial"`
	FuncName       string          `json:"func_name"`
	Args           json.RawMessage `json:"args_json"`
	Result         json.RawMessage `json:"result_json"`
	Error          *string         `json:"error"`
}

// BulkAddReport is the best-effort outcome of a bulk roster import.
type BulkAddReport struct {
	Added          int      `json:"added"`
	Skipped        int      `json:"skipped"`
	Errors         []string `json:"errors"`
	TotalProcessed int      `json:"total_processed"`
}

// CallRequest is the body of POST /call.
//
// Args are positional, JSON-typed. Trial tags the run within the
// experiment; Experiment is the legacy name for the same field and loses
// to Trial when both are sent. ExperimentName is the caller's experiment
// context and must match the active experiment.
type CallRequest struct {
	StudentID      string            `json:"student_id" binding:"required"`
	FuncName       string            `json:"func_name" binding:"required"`
	Args           []json.RawMessage `json:"args"`
	Trial          string            `json:"trial"`
	Experiment     string            `json:"experiment"`
	ExperimentName string            `json:"experiment_name"`
}

// TrialLabel resolves the effective trial tag for logging.
func (r *CallRequest) TrialLabel() string {
	if r.Trial != "" {
		return r.Trial
	}
	return r.Experiment
}

// LoginRequest is the body of POST /admin/login.
type LoginRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

// AddStudentRequest is the body of POST /admin/add-student. The studentid
// rule is registered by the handlers package.
type AddStudentRequest struct {
	StudentID string `json:"student_id" binding:"required,studentid"`
	Name      string `json:"name" binding:"required"`
	Email     string `json:"email"`
}

// BulkAddRequest is the body of POST /admin/add-students-bulk.
type BulkAddRequest struct {
	Students []AddStudentRequest `json:"students" binding:"required"`
}

// StartExperimentRequest is the body of POST /api/experiments/start.
type StartExperimentRequest struct {
	Name string `json:"name" binding:"required"`
}

// FunctionInfo describes one registered function for GET /functions.
type FunctionInfo struct {
	Signature string `json:"signature"`
	Doc       string `json:"doc"`
}
