// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package graph

import "errors"

var (
	// ErrInvalidInput indicates missing or malformed build/query arguments.
	ErrInvalidInput = errors.New("invalid input")

	// ErrBuildFailed indicates node insertion failed after the retry. The
	// previous project graph is left intact.
	ErrBuildFailed = errors.New("graph build failed")

	// ErrNotFound indicates the requested entity does not exist in the graph.
	ErrNotFound = errors.New("entity not found")
)
