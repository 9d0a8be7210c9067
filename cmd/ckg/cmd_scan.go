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
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/spf13/cobra"

	"github.com/aidino/repochat-sub003/services/ckg/coordinate"
	"github.com/aidino/repochat-sub003/services/ckg/graph"
	"github.com/aidino/repochat-sub003/services/ckg/parser"
)

// =============================================================================
// COMMAND FLAGS
// =============================================================================

var (
	scanRoot      string
	scanLanguages []string
	scanTimeout   time.Duration
)

// =============================================================================
// COMMAND DEFINITION
// =============================================================================

var scanCmd = &cobra.Command{
	Use:   "scan PROJECT_ID",
	Short: "Scan a repository and build its knowledge graph",
	Long: `Scan a repository, extract code entities and relationships, and
replace the project's graph in the store.

The scan walks the root directory for supported source files
(Go, Python, Kotlin, Dart), parses them concurrently per language,
and writes the resulting graph in a single atomic build. Rescanning
the same PROJECT_ID replaces the previous graph; other projects are
untouched.

Examples:
  ckg scan myproject
  ckg scan myproject --root ./services --language go --language python
  ckg scan myproject --json`,
	Args: cobra.ExactArgs(1),
	RunE: runScan,
}

func init() {
	scanCmd.Flags().StringVar(&scanRoot, "root", ".",
		"Repository root to scan")
	scanCmd.Flags().StringSliceVar(&scanLanguages, "language", nil,
		"Restrict scanning to these languages (repeatable)")
	scanCmd.Flags().DurationVar(&scanTimeout, "timeout", 10*time.Minute,
		"Overall scan timeout")
}

// scanSummary is the JSON shape of a completed scan.
type scanSummary struct {
	ProjectID     string                              `json:"project_id"`
	BuildID       string                              `json:"build_id"`
	Files         int                                 `json:"files"`
	Nodes         int                                 `json:"nodes"`
	Relationships int                                 `json:"relationships"`
	Stats         map[string]coordinate.LanguageStats `json:"stats"`
	Errors        []string                            `json:"errors,omitempty"`
	Warnings      []string                            `json:"warnings,omitempty"`
	DurationMs    int64                               `json:"duration_ms"`
}

// =============================================================================
// COMMAND IMPLEMENTATION
// =============================================================================

func runScan(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithTimeout(cmd.Context(), scanTimeout)
	defer cancel()

	projectID := args[0]
	started := time.Now()

	registry := parser.DefaultRegistry()
	languages := scanLanguages
	if len(languages) == 0 {
		languages = cliConfig.Scan.Languages
	}

	files, err := collectSourceFiles(scanRoot, registry, cliConfig.Scan.ExcludeDirs)
	if err != nil {
		return err
	}
	if len(files) == 0 {
		return fmt.Errorf("no supported source files under %s", scanRoot)
	}
	logger.Info("scan started",
		"project_id", projectID,
		"root", scanRoot,
		"files", len(files),
	)

	coordinator := coordinate.NewCoordinator(
		coordinate.WithRegistry(registry),
		coordinate.WithMaxWorkers(cliConfig.Scan.MaxWorkers),
		coordinate.WithLogger(logger.Slog()),
	)
	parsed, err := coordinator.Coordinate(ctx, coordinate.ProjectSource{
		ProjectID: projectID,
		RootPath:  scanRoot,
		Languages: languages,
		Files:     files,
	})
	if err != nil {
		return fmt.Errorf("scanning %s: %w", scanRoot, err)
	}

	driver, err := openStore()
	if err != nil {
		return err
	}
	defer driver.Close()

	builder, err := graph.NewBuilder(driver, graph.WithBuilderLogger(logger.Slog()))
	if err != nil {
		return err
	}
	build, err := builder.Build(ctx, projectID, parsed.Entities, parsed.Relationships)
	if err != nil {
		return fmt.Errorf("building graph for %s: %w", projectID, err)
	}

	summary := scanSummary{
		ProjectID:     projectID,
		BuildID:       build.BuildID,
		Files:         len(files),
		Nodes:         build.NodesCreated,
		Relationships: build.RelationshipsCreated,
		Stats:         parsed.Stats,
		Warnings:      append(parsed.Warnings, build.Warnings...),
		DurationMs:    time.Since(started).Milliseconds(),
	}
	for _, fe := range parsed.Errors {
		summary.Errors = append(summary.Errors, fmt.Sprintf("%s: %s", fe.FilePath, fe.Message))
	}
	summary.Errors = append(summary.Errors, build.Errors...)

	if jsonOutput {
		return outputJSON(summary)
	}
	printScanSummary(summary)
	return nil
}

// printScanSummary writes a human-readable scan report to stdout.
func printScanSummary(s scanSummary) {
	fmt.Printf("Scanned %s: %d files, %d nodes, %d relationships (%dms)\n",
		s.ProjectID, s.Files, s.Nodes, s.Relationships, s.DurationMs)

	languages := make([]string, 0, len(s.Stats))
	for lang := range s.Stats {
		languages = append(languages, lang)
	}
	sort.Strings(languages)
	for _, lang := range languages {
		st := s.Stats[lang]
		fmt.Printf("  %-8s %4d files  %5d entities  %5d relationships\n",
			st.Language, st.Files, st.Entities, st.Relationships)
	}

	if len(s.Errors) > 0 {
		fmt.Printf("\n%d files had parse errors:\n", len(s.Errors))
		for _, e := range s.Errors {
			fmt.Printf("  %s\n", e)
		}
	}
	if len(s.Warnings) > 0 {
		fmt.Printf("\n%d warnings:\n", len(s.Warnings))
		for _, w := range s.Warnings {
			fmt.Printf("  %s\n", w)
		}
	}
}
