// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package validation provides input validation utilities for security-critical operations.
//
// This package contains validators for user-provided identifiers that end up
// in filesystem paths or storage keys. Using these validators prevents path
// traversal (an experiment name is also a directory name on disk) and keeps
// storage keys unambiguous.
package validation

import (
	"fmt"
	"regexp"
)

// experimentNamePattern matches valid experiment names.
// An experiment name doubles as a directory name under the experiments root,
// so it must never contain separators or dots.
var experimentNamePattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9_-]{0,63}$`)

// studentIDPattern matches valid student identifiers.
// Allows dots and @ so institutional IDs and email-style IDs both work.
var studentIDPattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9_.@-]{0,63}$`)

// funcNamePattern matches valid function names (HCL identifier subset).
var funcNamePattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]{0,63}$`)

// ValidateExperimentName validates an experiment name before it is used to
// resolve paths under the experiments root.
//
// Valid names:
//   - 1-64 characters
//   - Letters, digits, underscores, hyphens
//   - Must start with a letter or digit
//
// Returns an error if the name is invalid.
//
// Example:
//
//	if err := validation.ValidateExperimentName(name); err != nil {
//	    return fmt.Errorf("invalid experiment: %w", err)
//	}
//	// Safe to join onto the experiments directory
func ValidateExperimentName(name string) error {
	if name == "" {
		return fmt.Errorf("experiment name cannot be empty")
	}
	if !experimentNamePattern.MatchString(name) {
		return fmt.Errorf("invalid experiment name: %q (must be 1-64 alphanumeric chars, underscores, or hyphens)", name)
	}
	return nil
}

// ValidateStudentID validates a student identifier before it is used as a
// storage key.
func ValidateStudentID(id string) error {
	if id == "" {
		return fmt.Errorf("student_id cannot be empty")
	}
	if !studentIDPattern.MatchString(id) {
		return fmt.Errorf("invalid student_id: %q", id)
	}
	return nil
}

// ValidateFuncName validates a function name before registry lookup.
func ValidateFuncName(name string) error {
	if name == "" {
		return fmt.Errorf("function name cannot be empty")
	}
	if !funcNamePattern.MatchString(name) {
		return fmt.Errorf("invalid function name: %q", name)
	}
	return nil
}
