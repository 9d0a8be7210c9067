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
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/aidino/repochat-sub003/services/ckg/impact"
)

// maxDiffSize caps the diff read. Review diffs beyond this are not
// meaningfully analyzable entity by entity.
const maxDiffSize = 10 << 20 // 10 MiB

// =============================================================================
// COMMAND FLAGS
// =============================================================================

var (
	impactDiffFile  string
	impactEntities  []string
	impactDepth     int
	impactThreshold string
)

// =============================================================================
// COMMAND DEFINITION
// =============================================================================

var impactCmd = &cobra.Command{
	Use:   "impact PROJECT_ID",
	Short: "Analyze the impact of a code change",
	Long: `Analyze the blast radius of a change against a scanned project.

The change is given either as a unified diff (--diff-file, "-" for
stdin) or as explicit qualified entity names (--entity). Diff hunks
are mapped to the entities whose line spans they touch; each changed
entity's callers and callees are then walked to the requested depth
and a risk level is derived from fan-in and affected count.

Entities in the diff that are not in the graph are reported as
unknown: a rescan is needed before their impact can be assessed.

Examples:
  ckg impact myproject --diff-file change.diff
  git diff main | ckg impact myproject --diff-file -
  ckg impact myproject --entity "UserStore.Save" --depth 3
  ckg impact myproject --diff-file pr.diff --threshold HIGH --json

CI/CD Integration:
  ckg impact myproject --diff-file pr.diff --threshold MEDIUM
  (exits 2 if any finding reaches the threshold)`,
	Args: cobra.ExactArgs(1),
	RunE: runImpact,
}

func init() {
	impactCmd.Flags().StringVar(&impactDiffFile, "diff-file", "",
		"Unified diff to analyze (\"-\" reads stdin)")
	impactCmd.Flags().StringSliceVar(&impactEntities, "entity", nil,
		"Changed entity qualified names (repeatable, alternative to --diff-file)")
	impactCmd.Flags().IntVar(&impactDepth, "depth", 0,
		"Transitive traversal depth (0 = default 2)")
	impactCmd.Flags().StringVar(&impactThreshold, "threshold", "",
		"Exit with code 2 if a finding reaches this risk: LOW, MEDIUM, HIGH, CRITICAL")
}

// =============================================================================
// COMMAND IMPLEMENTATION
// =============================================================================

func runImpact(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	projectID := args[0]

	if impactDiffFile == "" && len(impactEntities) == 0 {
		return fmt.Errorf("either --diff-file or --entity is required")
	}
	if impactDiffFile != "" && len(impactEntities) > 0 {
		return fmt.Errorf("--diff-file and --entity are mutually exclusive")
	}
	threshold, err := parseRiskLevel(impactThreshold)
	if err != nil {
		return err
	}

	q, closeStore, err := openQuery()
	if err != nil {
		return err
	}
	defer closeStore()

	var changes impact.ChangeSet
	if impactDiffFile != "" {
		diffData, err := readDiff(impactDiffFile)
		if err != nil {
			return err
		}
		changes, err = impact.ChangeSetFromDiff(ctx, q, projectID, diffData)
		if err != nil {
			return fmt.Errorf("extracting change set: %w", err)
		}
		if len(changes.ChangedEntityNames) == 0 {
			logger.Warn("diff touches no known entities",
				"project_id", projectID,
				"changed_files", len(changes.ChangedFiles),
			)
		}
	} else {
		changes = impact.ChangeSet{ChangedEntityNames: impactEntities}
	}

	var opts []impact.Option
	if impactDepth > 0 {
		opts = append(opts, impact.WithDepth(impactDepth))
	}
	analyzer, err := impact.NewAnalyzer(q, opts...)
	if err != nil {
		return err
	}

	report, err := analyzer.Analyze(ctx, projectID, changes)
	if err != nil {
		return fmt.Errorf("impact analysis for %s: %w", projectID, err)
	}

	if jsonOutput {
		if err := outputJSON(report); err != nil {
			return err
		}
	} else {
		printImpactReport(report, changes)
	}

	if threshold != "" && riskReached(report.Findings, threshold) {
		return fmt.Errorf("%w: findings at or above %s risk", errThresholdExceeded, threshold)
	}
	return nil
}

// =============================================================================
// HELPER FUNCTIONS
// =============================================================================

// riskRank orders risk levels for threshold checks.
var riskRank = map[impact.RiskLevel]int{
	impact.RiskLow:      1,
	impact.RiskMedium:   2,
	impact.RiskHigh:     3,
	impact.RiskCritical: 4,
}

// parseRiskLevel validates a --threshold value. Empty disables the check.
func parseRiskLevel(s string) (impact.RiskLevel, error) {
	if s == "" {
		return "", nil
	}
	level := impact.RiskLevel(s)
	if _, ok := riskRank[level]; !ok {
		return "", fmt.Errorf("invalid --threshold %q (want LOW, MEDIUM, HIGH, or CRITICAL)", s)
	}
	return level, nil
}

// riskReached reports whether any finding is at or above the threshold.
func riskReached(findings []impact.Finding, threshold impact.RiskLevel) bool {
	for _, f := range findings {
		if riskRank[f.Risk] >= riskRank[threshold] {
			return true
		}
	}
	return false
}

// readDiff reads the diff from a file or stdin, bounded by maxDiffSize.
func readDiff(path string) ([]byte, error) {
	var r io.Reader
	if path == "-" {
		r = os.Stdin
	} else {
		f, err := os.Open(path)
		if err != nil {
			return nil, fmt.Errorf("opening diff %s: %w", path, err)
		}
		defer f.Close()
		r = f
	}

	data, err := io.ReadAll(io.LimitReader(r, maxDiffSize+1))
	if err != nil {
		return nil, fmt.Errorf("reading diff: %w", err)
	}
	if len(data) > maxDiffSize {
		return nil, fmt.Errorf("diff exceeds %d bytes", maxDiffSize)
	}
	return data, nil
}

// printImpactReport writes a human-readable impact report to stdout.
func printImpactReport(report *impact.Report, changes impact.ChangeSet) {
	fmt.Printf("Impact analysis for %s:\n\n", report.ProjectID)

	if len(changes.ChangedFiles) > 0 {
		fmt.Printf("Changed files: %d\n", len(changes.ChangedFiles))
	}
	if len(report.Findings) == 0 {
		fmt.Println("  No changed entities to analyze.")
		return
	}

	for _, f := range report.Findings {
		fmt.Printf("  [%s] %s\n", f.Risk, f.Description)
		switch {
		case f.Unknown:
			fmt.Println("      not in graph; rescan to assess impact")
		case f.Isolated:
			fmt.Println("      no callers or callees")
		default:
			fmt.Printf("      fan-in %d, %d affected\n", f.FanIn, len(f.Affected))
			for _, a := range f.Affected {
				fmt.Printf("        %-8s depth %d  %s:%d  %s\n",
					a.Classification, a.Depth,
					a.Entity.FilePath, a.Entity.StartLine, a.Entity.QualifiedName)
			}
		}
	}
	fmt.Printf("\n%d findings (%dms)\n", len(report.Findings), report.DurationMs)
}
