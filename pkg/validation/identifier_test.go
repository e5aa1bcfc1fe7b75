// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package validation

import "testing"

func TestValidateExperimentName(t *testing.T) {
	valid := []string{"default", "looplab", "exp-01", "Lab_2025", "0warmup"}
	for _, name := range valid {
		if err := ValidateExperimentName(name); err != nil {
			t.Errorf("ValidateExperimentName(%q) = %v, want nil", name, err)
		}
	}

	invalid := []string{"", "../etc", "a/b", "name.with.dots", "-leading", " padded ", "exp name"}
	for _, name := range invalid {
		if err := ValidateExperimentName(name); err == nil {
			t.Errorf("ValidateExperimentName(%q) = nil, want error", name)
		}
	}
}

func TestValidateStudentID(t *testing.T) {
	valid := []string{"s001", "jane.doe@school.edu", "A-123_456", "7"}
	for _, id := range valid {
		if err := ValidateStudentID(id); err != nil {
			t.Errorf("ValidateStudentID(%q) = %v, want nil", id, err)
		}
	}

	invalid := []string{"", ".hidden", "id with space", "a/b", "@lead"}
	for _, id := range invalid {
		if err := ValidateStudentID(id); err == nil {
			t.Errorf("ValidateStudentID(%q) = nil, want error", id)
		}
	}
}

func TestValidateFuncName(t *testing.T) {
	valid := []string{"square", "_hidden_ok_here", "rosenbrock2", "Echo"}
	for _, name := range valid {
		if err := ValidateFuncName(name); err != nil {
			t.Errorf("ValidateFuncName(%q) = %v, want nil", name, err)
		}
	}

	invalid := []string{"", "2fast", "do-thing", "a.b"}
	for _, name := range invalid {
		if err := ValidateFuncName(name); err == nil {
			t.Errorf("ValidateFuncName(%q) = nil, want error", name)
		}
	}
}
