// Copyright (C) 2026 Discoveryd Contributors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package scanner

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestScanFullHonorsIgnoreAndSizeGate(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, "a.php"), []byte("<?php class A {}"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(root, ".gitignore"), []byte("skip.php\n"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(root, "skip.php"), []byte("<?php class Skip {}"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(root, "notes.txt"), []byte("not php"), 0o644))

	big := strings.Repeat("x", 20)
	require.NoError(t, os.WriteFile(filepath.Join(root, "big.php"), []byte(big), 0o644))

	// a.php is 16 bytes and big.php 20, so the limit sits between them.
	s := &Scanner{Roots: []string{root}, MaxFileSize: 18}
	files, err := s.ScanFull(context.Background())
	require.NoError(t, err)

	var names []string
	for _, f := range files {
		names = append(names, filepath.Base(f.Path))
	}
	assert.ElementsMatch(t, []string{"a.php"}, names)
}

func TestScanFullAcceptsExactlyAtSizeLimit(t *testing.T) {
	root := t.TempDir()
	exact := strings.Repeat("y", 10)
	require.NoError(t, os.WriteFile(filepath.Join(root, "exact.php"), []byte(exact), 0o644))

	s := &Scanner{Roots: []string{root}, MaxFileSize: 10}
	files, err := s.ScanFull(context.Background())
	require.NoError(t, err)
	require.Len(t, files, 1)
	assert.Equal(t, "exact.php", filepath.Base(files[0].Path))
}

func TestScanSubsetReadsExactFiles(t *testing.T) {
	root := t.TempDir()
	p := filepath.Join(root, "one.php")
	require.NoError(t, os.WriteFile(p, []byte("<?php"), 0o644))

	s := &Scanner{Roots: []string{root}}
	files, err := s.ScanSubset(context.Background(), []string{p})
	require.NoError(t, err)
	require.Len(t, files, 1)
	assert.Equal(t, []byte("<?php"), files[0].Contents)
}
