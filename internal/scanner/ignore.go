// Copyright (C) 2026 Discoveryd Contributors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package scanner

import (
	"bufio"
	"os"
	"path/filepath"
	"strings"
)

// IgnoreSet combines user-supplied --ignore globs with the patterns found
// in conventional version-control ignore files (.gitignore) under each
// root. Matching is deliberately simple — filepath.Match-style globs
// against the path relative to the root — since nothing in this
// codebase's dependency set carries a richer gitignore engine, and the
// spec's size-gate and incremental-index invariants don't require
// negation or directory-scoped gitignore semantics to hold.
type IgnoreSet struct {
	globs []string
}

// NewIgnoreSet builds an IgnoreSet from explicit globs plus every
// .gitignore found under root.
func NewIgnoreSet(root string, extraGlobs []string) *IgnoreSet {
	set := &IgnoreSet{globs: append([]string{}, extraGlobs...)}
	_ = filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return nil
		}
		if d.Name() != ".gitignore" {
			return nil
		}
		set.globs = append(set.globs, readGitignore(path)...)
		return nil
	})
	return set
}

func readGitignore(path string) []string {
	f, err := os.Open(path)
	if err != nil {
		return nil
	}
	defer f.Close()

	var globs []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		globs = append(globs, line)
	}
	return globs
}

// Match reports whether relPath (relative to a scan root, using forward
// slashes) should be excluded.
func (s *IgnoreSet) Match(relPath string) bool {
	base := filepath.Base(relPath)
	for _, g := range s.globs {
		pattern := strings.TrimSuffix(strings.TrimPrefix(g, "/"), "/")
		if ok, _ := filepath.Match(pattern, relPath); ok {
			return true
		}
		if ok, _ := filepath.Match(pattern, base); ok {
			return true
		}
		if strings.Contains(relPath, "/"+pattern+"/") || strings.HasPrefix(relPath, pattern+"/") {
			return true
		}
	}
	return false
}
