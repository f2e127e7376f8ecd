// Copyright (C) 2026 Discoveryd Contributors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package cache

import (
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSelectorPicksImmediatelyOnFirstCall(t *testing.T) {
	var sel Selector
	assert.Equal(t, Hybrid, sel.Evaluate(50<<20))
}

func TestSelectorRequiresTwoCrossingsBeforeSwitching(t *testing.T) {
	var sel Selector
	assert.Equal(t, Memory, sel.Evaluate(1<<20))

	// Single crossing: stays on Memory.
	assert.Equal(t, Memory, sel.Evaluate(20<<20))
	// Second consecutive crossing: now switches.
	assert.Equal(t, Hybrid, sel.Evaluate(20<<20))
}

func TestSelectorResetsPendingOnReversal(t *testing.T) {
	var sel Selector
	sel.Evaluate(1 << 20)     // Memory, initialized
	sel.Evaluate(20 << 20)    // first Hybrid observation, not yet switched
	got := sel.Evaluate(1 << 20) // reverses back to Memory before the switch lands
	assert.Equal(t, Memory, got)
}

func TestMemoryStorePublishIsAtomicUnderConcurrentReaders(t *testing.T) {
	s := NewMemoryStore()
	require.NoError(t, s.Publish([]byte("first")))

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			got := s.Get()
			assert.True(t, string(got) == "first" || string(got) == "second")
		}()
	}
	require.NoError(t, s.Publish([]byte("second")))
	wg.Wait()

	assert.Equal(t, "second", string(s.Get()))
}

func TestFileStorePublishThenGetRoundTrips(t *testing.T) {
	path := filepath.Join(t.TempDir(), "artifact.php")
	s, err := NewFileStore(path)
	require.NoError(t, err)

	require.NoError(t, s.Publish([]byte("<?php return [];")))
	assert.Equal(t, "<?php return [];", string(s.Get()))

	require.NoError(t, s.Publish([]byte("<?php return ['a'];")))
	assert.Equal(t, "<?php return ['a'];", string(s.Get()))
}

func TestHybridStoreMirrorsToDisk(t *testing.T) {
	path := filepath.Join(t.TempDir(), "artifact.php")
	s, err := NewHybridStore(path)
	require.NoError(t, err)

	require.NoError(t, s.Publish([]byte("<?php return [];")))
	assert.Equal(t, "<?php return [];", string(s.Get()))
	assert.Equal(t, "<?php return [];", string(s.disk.Get()))
}
