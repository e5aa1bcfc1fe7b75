// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package dispatch

import "fmt"

// The dispatcher's error taxonomy. Each kind maps to one HTTP status at
// the handler boundary and nowhere else:
//
//	GateConflictError  409  retryable after an admin start/stop
//	NotFoundError      404  unknown function or experiment
//	ForbiddenError     403  unregistered student
//	ValidationError    400  malformed/oversized arguments, never logged
//	ExecutionError     400  the function raised; logged before surfacing

// GateConflictError reports a call against the wrong or missing active
// experiment.
type GateConflictError struct{ Detail string }

func (e *GateConflictError) Error() string { return e.Detail }

// NotFoundError reports an unknown function or experiment.
type NotFoundError struct{ Detail string }

func (e *NotFoundError) Error() string { return e.Detail }

// ForbiddenError reports an unregistered student.
type ForbiddenError struct{ Detail string }

func (e *ForbiddenError) Error() string { return e.Detail }

// ValidationError reports arguments rejected before invocation.
type ValidationError struct{ Detail string }

func (e *ValidationError) Error() string { return e.Detail }

// ExecutionError reports an invocation that raised. The message is exposed
// to the caller verbatim, for classroom debuggability.
type ExecutionError struct{ Cause error }

func (e *ExecutionError) Error() string {
	return fmt.Sprintf("Function execution error: %v", e.Cause)
}

func (e *ExecutionError) Unwrap() error { return e.Cause }
