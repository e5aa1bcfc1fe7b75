// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// classlab is the command-line client for the classlab RPC server: list
// functions, invoke them as a student, inspect logs, and manage
// experiments and rosters as an instructor.
package main

import (
	"log"

	"github.com/spf13/cobra"
)

// =============================================================================
// Persistent Flags
// =============================================================================

var (
	flagServer     string // Base URL of the classlab server
	flagExperiment string // Namespaced experiment; empty targets the root surface
	flagUsername   string // Admin username for commands that need a session
	flagPassword   string // Admin password for commands that need a session
)

var rootCmd = &cobra.Command{
	Use:   "classlab",
	Short: "Client for the classlab classroom RPC server",
	Long: `classlab talks to a running classlab RPC server.

Student workflow:
  classlab functions                        # discover callable functions
  classlab call square 7 --student s001     # invoke one
  classlab logs --student s001              # review past invocations

Instructor workflow:
  classlab experiments start lab1 -u admin -p <pw>
  classlab add-student s001 "Ada Lovelace" -u admin -p <pw>
  classlab import-roster roster.csv -u admin -p <pw>`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&flagServer, "server", "http://localhost:8000",
		"Base URL of the classlab server")
	rootCmd.PersistentFlags().StringVarP(&flagExperiment, "experiment", "e", "",
		"Target a mounted experiment by name instead of the root surface")
	rootCmd.PersistentFlags().StringVarP(&flagUsername, "username", "u", "",
		"Admin username (admin commands only)")
	rootCmd.PersistentFlags().StringVarP(&flagPassword, "password", "p", "",
		"Admin password (admin commands only)")
}

// newClient builds the API client from the persistent flags.
func newClient() (*Client, error) {
	return NewClient(flagServer, flagExperiment)
}

// newAdminClient builds a client and opens an admin session with the
// credential flags.
func newAdminClient(cmd *cobra.Command) (*Client, error) {
	client, err := newClient()
	if err != nil {
		return nil, err
	}
	if flagUsername == "" || flagPassword == "" {
		return nil, errMissingCredentials
	}
	if err := client.Login(cmd.Context(), flagUsername, flagPassword); err != nil {
		return nil, err
	}
	return client, nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		log.Fatalf("Error executing command: %v", err)
	}
}
