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
	"errors"
	"fmt"
	"os"
)

// errThresholdExceeded is returned by commands whose findings crossed
// the requested risk threshold. It maps to exitRisk so CI pipelines
// can distinguish "risky change" from "tool failure".
var errThresholdExceeded = errors.New("risk threshold exceeded")

func main() {
	if err := rootCmd.Execute(); err != nil {
		if errors.Is(err, errThresholdExceeded) {
			os.Exit(exitRisk)
		}
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(exitError)
	}
	os.Exit(exitSuccess)
}
