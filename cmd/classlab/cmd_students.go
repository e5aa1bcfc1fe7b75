// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package main

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/AleutianAI/classlab/services/rpcserver/datatypes"
)

// =============================================================================
// COMMAND FLAGS
// =============================================================================

var addStudentEmail string // Optional email for add-student

// =============================================================================
// COMMAND DEFINITIONS
// =============================================================================

var addStudentCmd = &cobra.Command{
	Use:   "add-student <student_id> <name>",
	Short: "Register one student on the roster (admin)",
	Args:  cobra.ExactArgs(2),
	RunE:  runAddStudentCommand,
}

var importRosterCmd = &cobra.Command{
	Use:   "import-roster <file.csv>",
	Short: "Bulk-import a roster from a CSV file (admin)",
	Long: `Imports students from a CSV file with a header row.

Recognized columns: student_id (required), name (required), email.
The import is best-effort: duplicates are skipped and invalid rows are
reported, without failing the batch.`,
	Args: cobra.ExactArgs(1),
	RunE: runImportRosterCommand,
}

func init() {
	addStudentCmd.Flags().StringVar(&addStudentEmail, "email", "", "Student email")
	rootCmd.AddCommand(addStudentCmd)
	rootCmd.AddCommand(importRosterCmd)
}

// =============================================================================
// COMMAND IMPLEMENTATION
// =============================================================================

func runAddStudentCommand(cmd *cobra.Command, args []string) error {
	client, err := newAdminClient(cmd)
	if err != nil {
		return err
	}
	if err := client.AddStudent(cmd.Context(), args[0], args[1], addStudentEmail); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "added %s\n", args[0])
	return nil
}

// readRosterCSV parses a roster file into add-student requests. The header
// row names the columns; order does not matter.
func readRosterCSV(r io.Reader) ([]datatypes.AddStudentRequest, error) {
	reader := csv.NewReader(r)
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("reading CSV header: %w", err)
	}
	cols := make(map[string]int, len(header))
	for i, name := range header {
		cols[strings.ToLower(strings.TrimSpace(name))] = i
	}
	idCol, ok := cols["student_id"]
	if !ok {
		return nil, fmt.Errorf("CSV header must contain a student_id column")
	}
	nameCol, ok := cols["name"]
	if !ok {
		return nil, fmt.Errorf("CSV header must contain a name column")
	}
	emailCol, hasEmail := cols["email"]

	var students []datatypes.AddStudentRequest
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("reading CSV row: %w", err)
		}
		student := datatypes.AddStudentRequest{
			StudentID: strings.TrimSpace(record[idCol]),
			Name:      strings.TrimSpace(record[nameCol]),
		}
		if hasEmail && emailCol < len(record) {
			student.Email = strings.TrimSpace(record[emailCol])
		}
		students = append(students, student)
	}
	return students, nil
}

func runImportRosterCommand(cmd *cobra.Command, args []string) error {
	f, err := os.Open(args[0])
	if err != nil {
		return err
	}
	defer f.Close()

	students, err := readRosterCSV(f)
	if err != nil {
		return err
	}
	if len(students) == 0 {
		return fmt.Errorf("no student rows in %s", args[0])
	}

	client, err := newAdminClient(cmd)
	if err != nil {
		return err
	}
	report, err := client.BulkAddStudents(cmd.Context(), students)
	if err != nil {
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "processed %d rows: %d added, %d skipped, %d errors\n",
		report.TotalProcessed, report.Added, report.Skipped, len(report.Errors))
	for _, msg := range report.Errors {
		fmt.Fprintf(cmd.OutOrStdout(), "  error: %s\n", msg)
	}
	return nil
}
