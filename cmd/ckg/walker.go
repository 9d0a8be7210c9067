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
	"io/fs"
	"path/filepath"
	"strings"

	"github.com/aidino/repochat-sub003/services/ckg/parser"
)

// skipDirs are directory names never worth descending into: VCS
// metadata, dependency trees, and build output.
var skipDirs = map[string]bool{
	".git":         true,
	".hg":          true,
	".svn":         true,
	".idea":        true,
	".vscode":      true,
	"node_modules": true,
	"vendor":       true,
	"build":        true,
	"dist":         true,
	"target":       true,
	"__pycache__":  true,
	".dart_tool":   true,
	".gradle":      true,
	"venv":         true,
	".venv":        true,
}

// collectSourceFiles walks rootPath and returns the relative paths of
// every file a registered parser can handle.
//
// Directories in skipDirs or extraExcludes are pruned. Hidden
// directories (dot-prefixed) are pruned except for the root itself.
// The returned paths use the platform separator and are sorted by the
// walk's lexical order.
func collectSourceFiles(rootPath string, registry *parser.Registry, extraExcludes []string) ([]string, error) {
	excludes := make(map[string]bool, len(extraExcludes))
	for _, name := range extraExcludes {
		excludes[name] = true
	}

	var files []string
	err := filepath.WalkDir(rootPath, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		name := d.Name()
		if d.IsDir() {
			if path == rootPath {
				return nil
			}
			if skipDirs[name] || excludes[name] || strings.HasPrefix(name, ".") {
				return filepath.SkipDir
			}
			return nil
		}

		ext := filepath.Ext(name)
		if _, ok := registry.ForExtension(ext); !ok {
			return nil
		}

		rel, relErr := filepath.Rel(rootPath, path)
		if relErr != nil {
			return relErr
		}
		files = append(files, rel)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walking %s: %w", rootPath, err)
	}
	return files, nil
}
