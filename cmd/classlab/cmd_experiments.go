// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var experimentsCmd = &cobra.Command{
	Use:   "experiments",
	Short: "Inspect and control experiments",
}

var experimentsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List the experiments known to the server",
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newClient()
		if err != nil {
			return err
		}
		names, err := client.Experiments(cmd.Context())
		if err != nil {
			return err
		}
		active, err := client.ActiveExperiment(cmd.Context())
		if err != nil {
			return err
		}
		for _, name := range names {
			marker := "  "
			if name == active {
				marker = "* "
			}
			fmt.Fprintln(cmd.OutOrStdout(), marker+name)
		}
		return nil
	},
}

var experimentsActiveCmd = &cobra.Command{
	Use:   "active",
	Short: "Show the active experiment",
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newClient()
		if err != nil {
			return err
		}
		active, err := client.ActiveExperiment(cmd.Context())
		if err != nil {
			return err
		}
		if active == "" {
			fmt.Fprintln(cmd.OutOrStdout(), "(none)")
			return nil
		}
		fmt.Fprintln(cmd.OutOrStdout(), active)
		return nil
	},
}

var experimentsStartCmd = &cobra.Command{
	Use:   "start <name>",
	Short: "Activate an experiment (admin)",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAdminClient(cmd)
		if err != nil {
			return err
		}
		if err := client.StartExperiment(cmd.Context(), args[0]); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "active: %s\n", args[0])
		return nil
	},
}

var experimentsStopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Deactivate the active experiment (admin)",
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAdminClient(cmd)
		if err != nil {
			return err
		}
		stopped, err := client.StopExperiment(cmd.Context())
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "stopped: %s\n", stopped)
		return nil
	},
}

func init() {
	experimentsCmd.AddCommand(experimentsListCmd)
	experimentsCmd.AddCommand(experimentsActiveCmd)
	experimentsCmd.AddCommand(experimentsStartCmd)
	experimentsCmd.AddCommand(experimentsStopCmd)
	rootCmd.AddCommand(experimentsCmd)
}
