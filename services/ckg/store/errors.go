// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package store

import "errors"

var (
	// ErrInvalidInput indicates a malformed statement or query.
	ErrInvalidInput = errors.New("invalid input")

	// ErrUnknownDriver indicates an unrecognized driver name in the config.
	ErrUnknownDriver = errors.New("unknown store driver")

	// ErrClosed indicates the driver has been closed.
	ErrClosed = errors.New("store closed")

	// ErrWriteFailed indicates a transactional write could not be committed.
	ErrWriteFailed = errors.New("store write failed")
)
