// Copyright (C) 2026 Discoveryd Contributors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateRequiresOutputWhenNotWatching(t *testing.T) {
	opts := &Options{Paths: []string{"/src"}}
	err := Validate(opts)
	assert.Error(t, err)
}

func TestValidateRequiresSocketAndPIDWhenWatching(t *testing.T) {
	opts := &Options{Paths: []string{"/src"}, Output: "/out/cache.php", Watch: true}
	assert.Error(t, Validate(opts))

	opts.Socket = "/tmp/d.sock"
	opts.PIDFile = "/tmp/d.pid"
	assert.NoError(t, Validate(opts))
}

func TestLoadFileMissingIsNotAnError(t *testing.T) {
	d, err := LoadFile(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)
	assert.Empty(t, d.Paths)
}

func TestApplyDefaultsLeavesExplicitFlagsUntouched(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("paths: [/default]\noutput: /default/out.php\n"), 0o644))

	d, err := LoadFile(path)
	require.NoError(t, err)

	opts := &Options{Output: "/explicit/out.php"}
	ApplyDefaults(opts, d)
	assert.Equal(t, []string{"/default"}, opts.Paths)
	assert.Equal(t, "/explicit/out.php", opts.Output)
}
