// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package main

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/AleutianAI/classlab/services/rpcserver/datatypes"
)

var errMissingCredentials = errors.New("admin commands need --username and --password")

// =============================================================================
// COMMAND FLAGS
// =============================================================================

var (
	callStudentID      string // Roster id to call as
	callTrial          string // Optional trial tag for the log row
	callExperimentName string // Experiment context sent with the request
)

// =============================================================================
// COMMAND DEFINITION
// =============================================================================

var callCmd = &cobra.Command{
	Use:   "call <func> [args...]",
	Short: "Invoke a function on the active experiment",
	Long: `Invokes a function as a registered student.

Arguments are parsed as JSON; anything that does not parse is sent as a
string, so both of these work:

  classlab call square 7 --student s001
  classlab call greet '"Ada"' --student s001
  classlab call greet Ada --student s001`,
	Args: cobra.MinimumNArgs(1),
	RunE: runCallCommand,
}

func init() {
	callCmd.Flags().StringVar(&callStudentID, "student", "", "Registered student id (required)")
	callCmd.Flags().StringVar(&callTrial, "trial", "", "Trial tag recorded with the invocation")
	callCmd.Flags().StringVar(&callExperimentName, "experiment-name", "",
		"Experiment context; defaults to the server's active experiment")
	_ = callCmd.MarkFlagRequired("student")
	rootCmd.AddCommand(callCmd)
}

// =============================================================================
// COMMAND IMPLEMENTATION
// =============================================================================

// parseArg turns a CLI token into a JSON value: valid JSON passes through,
// everything else becomes a JSON string.
func parseArg(token string) json.RawMessage {
	if json.Valid([]byte(token)) {
		return json.RawMessage(token)
	}
	quoted, err := json.Marshal(token)
	if err != nil {
		return json.RawMessage("null")
	}
	return quoted
}

func runCallCommand(cmd *cobra.Command, args []string) error {
	client, err := newClient()
	if err != nil {
		return err
	}

	ctxName := callExperimentName
	if ctxName == "" && flagExperiment == "" {
		// Root calls must state their experiment context; fill it in from
		// the server so plain student usage stays one command.
		ctxName, err = client.ActiveExperiment(cmd.Context())
		if err != nil {
			return err
		}
	}

	jsonArgs := make([]json.RawMessage, 0, len(args)-1)
	for _, token := range args[1:] {
		jsonArgs = append(jsonArgs, parseArg(token))
	}

	result, err := client.Call(cmd.Context(), &datatypes.CallRequest{
		StudentID:      callStudentID,
		FuncName:       args[0],
		Args:           jsonArgs,
		Trial:          callTrial,
		ExperimentName: ctxName,
	})
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), string(result))
	return nil
}
