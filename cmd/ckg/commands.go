// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/aidino/repochat-sub003/pkg/logging"
	"github.com/aidino/repochat-sub003/services/ckg/store"
)

// Exit codes for scripting and CI integration.
const (
	exitSuccess = 0
	exitError   = 1

	// exitRisk signals that analyze or impact findings crossed the
	// requested threshold.
	exitRisk = 2
)

// --- Global Command Variables ---
var (
	configPath string
	logLevel   string
	jsonOutput bool
	quiet      bool

	cliConfig Config
	logger    *logging.Logger

	rootCmd = &cobra.Command{
		Use:   "ckg",
		Short: "Build and query code knowledge graphs",
		Long: `ckg scans multi-language repositories into a code knowledge graph
and answers structural questions about it.

Workflow:
  ckg scan myproject --root ./src     Build the graph for a project
  ckg query overview myproject        Inspect what was indexed
  ckg query callers myproject SYMBOL  Walk the call graph
  ckg analyze myproject               Find cycles and unused entities
  ckg impact myproject --diff-file pr.diff   Assess a change's blast radius

The graph persists in a local badger store (default ~/.ckg/graph), so
query, analyze, and impact work without rescanning.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			path := configPath
			explicit := cmd.Flags().Changed("config")
			if path == "" {
				path = defaultConfigFile
			}

			cfg, err := loadConfig(path, explicit)
			if err != nil {
				return err
			}

			// Flags override file values.
			if cmd.Flags().Changed("log-level") {
				cfg.Log.Level = logLevel
			}
			if quiet {
				cfg.Log.Quiet = true
			}
			if jsonOutput {
				// Keep stderr logs out of piped JSON output.
				cfg.Log.Quiet = true
			}

			if err := cfg.validate(); err != nil {
				return err
			}

			cliConfig = cfg
			logger = logging.New(cfg.loggerConfig())
			return nil
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if logger != nil {
				_ = logger.Close()
			}
		},
	}
)

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "",
		"Path to config file (default ckg.yaml if present)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info",
		"Log level: debug, info, warn, error")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false,
		"Output as JSON for scripting")
	rootCmd.PersistentFlags().BoolVar(&quiet, "quiet", false,
		"Disable stderr logging")

	rootCmd.AddCommand(scanCmd)
	rootCmd.AddCommand(queryCmd)
	rootCmd.AddCommand(analyzeCmd)
	rootCmd.AddCommand(impactCmd)
}

// openStore connects the configured graph store driver.
func openStore() (store.Driver, error) {
	driver, err := store.Connect(cliConfig.storeConfig(logger.Slog()))
	if err != nil {
		return nil, fmt.Errorf("opening %s store: %w", cliConfig.Store.Driver, err)
	}
	return driver, nil
}

// outputJSON writes any result as indented JSON on stdout.
func outputJSON(result any) error {
	encoder := json.NewEncoder(os.Stdout)
	encoder.SetIndent("", "  ")
	return encoder.Encode(result)
}
