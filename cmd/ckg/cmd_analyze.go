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
	"fmt"

	"github.com/spf13/cobra"

	"github.com/aidino/repochat-sub003/services/ckg/analysis"
	"github.com/aidino/repochat-sub003/services/ckg/entity"
)

// =============================================================================
// COMMAND FLAGS
// =============================================================================

var (
	analyzeScope        string
	analyzeKeepExported bool
	analyzeExclude      []string
	analyzeCyclesOnly   bool
	analyzeUnusedOnly   bool
	analyzeFailOn       string
)

// =============================================================================
// COMMAND DEFINITION
// =============================================================================

var analyzeCmd = &cobra.Command{
	Use:   "analyze PROJECT_ID",
	Short: "Detect circular dependencies and unused entities",
	Long: `Analyze a project's knowledge graph for architectural problems.

Two detectors run by default:
  - Circular dependencies: strongly connected components among classes
    (or methods with --scope Method)
  - Unused entities: entities with no incoming calls or references
    (heuristic; entry points and framework overrides are excluded)

Examples:
  ckg analyze myproject
  ckg analyze myproject --cycles --scope Method
  ckg analyze myproject --unused --keep-exported
  ckg analyze myproject --fail-on warning --json

CI/CD Integration:
  ckg analyze myproject --fail-on critical
  (exits 2 if any finding reaches the given severity)`,
	Args: cobra.ExactArgs(1),
	RunE: runAnalyze,
}

func init() {
	analyzeCmd.Flags().StringVar(&analyzeScope, "scope", "Class",
		"Cycle detection scope: Class or Method")
	analyzeCmd.Flags().BoolVar(&analyzeKeepExported, "keep-exported", false,
		"Never report public entities as unused")
	analyzeCmd.Flags().StringSliceVar(&analyzeExclude, "exclude", nil,
		"Extra entity names to exclude from unused detection")
	analyzeCmd.Flags().BoolVar(&analyzeCyclesOnly, "cycles", false,
		"Run only cycle detection")
	analyzeCmd.Flags().BoolVar(&analyzeUnusedOnly, "unused", false,
		"Run only unused entity detection")
	analyzeCmd.Flags().StringVar(&analyzeFailOn, "fail-on", "",
		"Exit with code 2 if a finding reaches this severity: info, warning, critical")
}

// =============================================================================
// COMMAND IMPLEMENTATION
// =============================================================================

func runAnalyze(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	projectID := args[0]

	scope := entity.ParseKind(analyzeScope)
	if scope != entity.KindClass && scope != entity.KindMethod {
		return fmt.Errorf("invalid --scope %q (want Class or Method)", analyzeScope)
	}
	failOn, err := parseSeverity(analyzeFailOn)
	if err != nil {
		return err
	}
	if analyzeCyclesOnly && analyzeUnusedOnly {
		return fmt.Errorf("--cycles and --unused are mutually exclusive; omit both to run both")
	}

	q, closeStore, err := openQuery()
	if err != nil {
		return err
	}
	defer closeStore()

	opts := []analysis.Option{analysis.WithCycleScope(scope)}
	if analyzeKeepExported {
		opts = append(opts, analysis.WithKeepExported(true))
	}
	if len(analyzeExclude) > 0 {
		opts = append(opts, analysis.WithExclusions(analyzeExclude...))
	}
	analyzer, err := analysis.NewAnalyzer(q, opts...)
	if err != nil {
		return err
	}

	var report *analysis.Report
	switch {
	case analyzeCyclesOnly:
		findings, err := analyzer.AnalyzeCycles(ctx, projectID)
		if err != nil {
			return fmt.Errorf("analyzing %s: %w", projectID, err)
		}
		report = &analysis.Report{ProjectID: projectID, Findings: findings}
	case analyzeUnusedOnly:
		findings, err := analyzer.AnalyzeUnused(ctx, projectID)
		if err != nil {
			return fmt.Errorf("analyzing %s: %w", projectID, err)
		}
		report = &analysis.Report{ProjectID: projectID, Findings: findings}
	default:
		report, err = analyzer.Analyze(ctx, projectID)
		if err != nil {
			return fmt.Errorf("analyzing %s: %w", projectID, err)
		}
	}

	if jsonOutput {
		if err := outputJSON(report); err != nil {
			return err
		}
	} else {
		printAnalysisReport(report)
	}

	if failOn != "" && severityReached(report.Findings, failOn) {
		return fmt.Errorf("%w: findings at or above %s severity", errThresholdExceeded, failOn)
	}
	return nil
}

// =============================================================================
// HELPER FUNCTIONS
// =============================================================================

// severityRank orders severities for threshold checks.
var severityRank = map[analysis.Severity]int{
	analysis.SeverityInfo:     1,
	analysis.SeverityWarning:  2,
	analysis.SeverityCritical: 3,
}

// parseSeverity validates a --fail-on value. Empty disables the check.
func parseSeverity(s string) (analysis.Severity, error) {
	if s == "" {
		return "", nil
	}
	sev := analysis.Severity(s)
	if _, ok := severityRank[sev]; !ok {
		return "", fmt.Errorf("invalid --fail-on %q (want info, warning, or critical)", s)
	}
	return sev, nil
}

// severityReached reports whether any finding is at or above the
// threshold severity.
func severityReached(findings []analysis.Finding, threshold analysis.Severity) bool {
	for _, f := range findings {
		if severityRank[f.Severity] >= severityRank[threshold] {
			return true
		}
	}
	return false
}

// printAnalysisReport writes a human-readable report to stdout.
func printAnalysisReport(report *analysis.Report) {
	fmt.Printf("Analysis of %s:\n\n", report.ProjectID)

	if len(report.Findings) == 0 {
		fmt.Println("  No findings.")
		return
	}
	for _, f := range report.Findings {
		fmt.Printf("  [%s/%s] %s\n", f.Type, f.Severity, f.Description)
		for _, e := range f.Entities {
			fmt.Printf("      %s:%d  %s\n", e.FilePath, e.StartLine, e.QualifiedName)
		}
	}
	fmt.Printf("\n%d findings\n", len(report.Findings))
}
