// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package main

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

// =============================================================================
// COMMAND FLAGS
// =============================================================================

var (
	logsStudentID string // Filter by student id
	logsTrial     string // Filter by trial tag
	logsN         int    // Max rows
	logsOrder     string // latest or earliest
	logsJSON      bool   // Emit raw JSON rows
)

// =============================================================================
// COMMAND DEFINITION
// =============================================================================

var logsCmd = &cobra.Command{
	Use:   "logs",
	Short: "Fetch invocation logs from the active experiment",
	RunE:  runLogsCommand,
}

func init() {
	logsCmd.Flags().StringVar(&logsStudentID, "student", "", "Filter by student id")
	logsCmd.Flags().StringVar(&logsTrial, "trial", "", "Filter by trial tag")
	logsCmd.Flags().IntVarP(&logsN, "n", "n", 100, "Maximum rows to fetch (1-1000)")
	logsCmd.Flags().StringVar(&logsOrder, "order", "latest", "Row order: latest or earliest")
	logsCmd.Flags().BoolVar(&logsJSON, "json", false, "Emit rows as JSON for scripting")
	rootCmd.AddCommand(logsCmd)
}

// =============================================================================
// COMMAND IMPLEMENTATION
// =============================================================================

func runLogsCommand(cmd *cobra.Command, args []string) error {
	client, err := newClient()
	if err != nil {
		return err
	}
	rows, err := client.Logs(cmd.Context(), LogsQuery{
		StudentID: logsStudentID,
		Trial:     logsTrial,
		N:         logsN,
		Order:     logsOrder,
	})
	if err != nil {
		return err
	}

	if logsJSON {
		encoded, err := json.MarshalIndent(rows, "", "  ")
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), string(encoded))
		return nil
	}

	for _, row := range rows {
		outcome := "ok   " + string(row.Result)
		if row.Error != nil {
			outcome = "ERR  " + *row.Error
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s  %-12s %-16s %s\n",
			row.TS.Format(time.RFC3339), row.StudentID, row.FuncName, outcome)
	}
	return nil
}
