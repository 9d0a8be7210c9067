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
	"errors"
	"fmt"
	"sort"

	"github.com/spf13/cobra"

	"github.com/aidino/repochat-sub003/services/ckg/entity"
	"github.com/aidino/repochat-sub003/services/ckg/graph"
)

// =============================================================================
// COMMAND FLAGS
// =============================================================================

var (
	queryDepth       int
	queryFailIfEmpty bool
)

// =============================================================================
// COMMAND DEFINITIONS
// =============================================================================

// queryCmd is the parent query command.
var queryCmd = &cobra.Command{
	Use:   "query",
	Short: "Query a project's knowledge graph",
	Long: `Commands for querying a scanned project's knowledge graph.

Prerequisites:
  Run 'ckg scan PROJECT_ID' first to build the graph.

Subcommands:
  overview - Entity and relationship counts for a project
  callers  - Find entities that call a symbol
  callees  - Find entities called by a symbol

Symbols are qualified names as extracted by the scan, for example
"UserStore.Save" (Go method), "Dog.speak" (Python method), or a bare
function name like "process".

Examples:
  ckg query overview myproject
  ckg query callers myproject "UserStore.Save" --depth 3
  ckg query callees myproject "main" --json`,
}

var queryOverviewCmd = &cobra.Command{
	Use:   "overview PROJECT_ID",
	Short: "Show entity and relationship counts for a project",
	Args:  cobra.ExactArgs(1),
	RunE:  runQueryOverview,
}

var queryCallersCmd = &cobra.Command{
	Use:   "callers PROJECT_ID SYMBOL",
	Short: "Find entities that call a symbol",
	Long: `Find entities that call the specified symbol, up to --depth hops
away through the call graph.

Examples:
  ckg query callers myproject "UserStore.Save"
  ckg query callers myproject "validate" --depth 5
  ckg query callers myproject "process" --json`,
	Args: cobra.ExactArgs(2),
	RunE: runQueryCallers,
}

var queryCalleesCmd = &cobra.Command{
	Use:   "callees PROJECT_ID SYMBOL",
	Short: "Find entities called by a symbol",
	Args:  cobra.ExactArgs(2),
	RunE:  runQueryCallees,
}

func init() {
	queryCmd.PersistentFlags().IntVar(&queryDepth, "depth", 0,
		"Maximum traversal depth (0 = direct only)")
	queryCmd.PersistentFlags().BoolVar(&queryFailIfEmpty, "fail-if-empty", false,
		"Exit with error if no results found")

	queryCmd.AddCommand(queryOverviewCmd)
	queryCmd.AddCommand(queryCallersCmd)
	queryCmd.AddCommand(queryCalleesCmd)
}

// traversalResult is the JSON shape of a callers or callees query.
type traversalResult struct {
	ProjectID string               `json:"project_id"`
	Symbol    string               `json:"symbol"`
	Direction string               `json:"direction"`
	Depth     int                  `json:"depth"`
	Results   []*entity.CodeEntity `json:"results"`
}

// =============================================================================
// COMMAND IMPLEMENTATIONS
// =============================================================================

func runQueryOverview(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	projectID := args[0]

	q, closeStore, err := openQuery()
	if err != nil {
		return err
	}
	defer closeStore()

	overview, err := q.GetProjectOverview(ctx, projectID)
	if err != nil {
		return fmt.Errorf("overview for %s: %w", projectID, err)
	}

	if jsonOutput {
		return outputJSON(overview)
	}
	printOverview(overview)
	return nil
}

func runQueryCallers(cmd *cobra.Command, args []string) error {
	return runTraversal(cmd.Context(), args[0], args[1], "callers")
}

func runQueryCallees(cmd *cobra.Command, args []string) error {
	return runTraversal(cmd.Context(), args[0], args[1], "callees")
}

// runTraversal resolves the symbol and walks the call graph in the
// requested direction.
func runTraversal(ctx context.Context, projectID, symbol, direction string) error {
	q, closeStore, err := openQuery()
	if err != nil {
		return err
	}
	defer closeStore()

	start, err := q.GetEntityByQualifiedName(ctx, projectID, symbol)
	if err != nil {
		if errors.Is(err, graph.ErrNotFound) {
			return fmt.Errorf("symbol %q not found in project %s", symbol, projectID)
		}
		return err
	}

	depth := queryDepth
	if depth <= 0 {
		depth = graph.DefaultTraversalDepth
	}

	var results []*entity.CodeEntity
	if direction == "callers" {
		results, err = q.FindCallers(ctx, projectID, start.ID, depth)
	} else {
		results, err = q.FindCallees(ctx, projectID, start.ID, depth)
	}
	if err != nil {
		return fmt.Errorf("%s of %q: %w", direction, symbol, err)
	}

	if queryFailIfEmpty && len(results) == 0 {
		return fmt.Errorf("no %s found for %q", direction, symbol)
	}

	if jsonOutput {
		return outputJSON(traversalResult{
			ProjectID: projectID,
			Symbol:    symbol,
			Direction: direction,
			Depth:     depth,
			Results:   results,
		})
	}
	printTraversal(symbol, direction, results)
	return nil
}

// =============================================================================
// HELPER FUNCTIONS
// =============================================================================

// openQuery connects the store and wraps it in a Query. The returned
// func closes the store.
func openQuery() (*graph.Query, func(), error) {
	driver, err := openStore()
	if err != nil {
		return nil, nil, err
	}
	q, err := graph.NewQuery(driver)
	if err != nil {
		driver.Close()
		return nil, nil, err
	}
	return q, func() { _ = driver.Close() }, nil
}

// printOverview writes a human-readable project overview to stdout.
func printOverview(o *graph.Overview) {
	fmt.Printf("Project %s:\n\n", o.ProjectID)

	kinds := make([]string, 0, len(o.CountsByKind))
	for kind := range o.CountsByKind {
		kinds = append(kinds, kind)
	}
	sort.Strings(kinds)
	for _, kind := range kinds {
		fmt.Printf("  %-10s %6d\n", kind, o.CountsByKind[kind])
	}
	fmt.Printf("\n  Relationships: %d\n", o.Relationships)

	if len(o.Languages) > 0 {
		languages := make([]string, 0, len(o.Languages))
		for lang := range o.Languages {
			languages = append(languages, lang)
		}
		sort.Strings(languages)
		fmt.Println("\n  Languages:")
		for _, lang := range languages {
			fmt.Printf("    %-8s %6d entities\n", lang, o.Languages[lang])
		}
	}
}

// printTraversal writes callers or callees as text.
func printTraversal(symbol, direction string, results []*entity.CodeEntity) {
	fmt.Printf("%s of %s:\n\n", capitalize(direction), symbol)

	if len(results) == 0 {
		fmt.Printf("  No %s found.\n", direction)
		return
	}
	for _, e := range results {
		fmt.Printf("  %s:%d  %s\n", e.FilePath, e.StartLine, e.QualifiedName)
	}
	fmt.Printf("\nFound %d %s\n", len(results), direction)
}

// capitalize upper-cases the first letter of a direction word.
func capitalize(s string) string {
	if s == "" {
		return s
	}
	return string(s[0]-'a'+'A') + s[1:]
}
