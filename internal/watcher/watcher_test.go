// Copyright (C) 2026 Discoveryd Contributors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package watcher

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWatcherEmitsBatchOnCreate(t *testing.T) {
	root := t.TempDir()

	w := &Watcher{Roots: []string{root}, Debounce: 30 * time.Millisecond}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	batches, err := w.Subscribe(ctx)
	require.NoError(t, err)
	defer w.Close()

	target := filepath.Join(root, "new.php")
	require.NoError(t, os.WriteFile(target, []byte("<?php"), 0o644))

	select {
	case b := <-batches:
		assert.Contains(t, b.Created, target)
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for change batch")
	}
}

func TestClassifyCollapsesCreateThenDelete(t *testing.T) {
	b := newBatch()
	classify(b, fsnotify.Event{Name: "/x/a.php", Op: fsnotify.Create})
	classify(b, fsnotify.Event{Name: "/x/a.php", Op: fsnotify.Remove})

	_, created := b.Created["/x/a.php"]
	assert.False(t, created)
	_, deleted := b.Deleted["/x/a.php"]
	assert.True(t, deleted)
}
