// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package main

import (
	"fmt"
	"sort"

	"github.com/spf13/cobra"
)

var functionsCmd = &cobra.Command{
	Use:   "functions",
	Short: "List the callable functions of the active experiment",
	RunE:  runFunctionsCommand,
}

var registeredCmd = &cobra.Command{
	Use:   "registered <student_id>",
	Short: "Check whether a student id is on the roster",
	Args:  cobra.ExactArgs(1),
	RunE:  runRegisteredCommand,
}

func init() {
	rootCmd.AddCommand(functionsCmd)
	rootCmd.AddCommand(registeredCmd)
}

func runFunctionsCommand(cmd *cobra.Command, args []string) error {
	client, err := newClient()
	if err != nil {
		return err
	}
	funcs, err := client.Functions(cmd.Context())
	if err != nil {
		return err
	}

	names := make([]string, 0, len(funcs))
	for name := range funcs {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		info := funcs[name]
		fmt.Fprintf(cmd.OutOrStdout(), "%s%s\n", name, info.Signature)
		if info.Doc != "" {
			fmt.Fprintf(cmd.OutOrStdout(), "    %s\n", info.Doc)
		}
	}
	return nil
}

func runRegisteredCommand(cmd *cobra.Command, args []string) error {
	client, err := newClient()
	if err != nil {
		return err
	}
	registered, err := client.IsRegistered(cmd.Context(), args[0])
	if err != nil {
		return err
	}
	if registered {
		fmt.Fprintln(cmd.OutOrStdout(), "registered")
	} else {
		fmt.Fprintln(cmd.OutOrStdout(), "not registered")
	}
	return nil
}
