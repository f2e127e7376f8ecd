// Copyright (C) 2026 Discoveryd Contributors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package index

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/discoveryd/discoveryd/internal/fingerprint"
)

func TestReconcileDetectsNewChangedAndMissing(t *testing.T) {
	idx, err := New(nil)
	require.NoError(t, err)

	t0 := time.Now()
	require.NoError(t, idx.Commit(map[string]fingerprint.FileFingerprint{
		"a.php": {Path: "a.php", Size: 10, ModTime: t0},
		"b.php": {Path: "b.php", Size: 20, ModTime: t0},
	}, nil))

	current := map[string]fingerprint.FileFingerprint{
		"a.php": {Path: "a.php", Size: 10, ModTime: t0},       // unchanged
		"b.php": {Path: "b.php", Size: 99, ModTime: t0},       // changed
		"c.php": {Path: "c.php", Size: 5, ModTime: t0},        // new
	}

	rec := idx.Reconcile(current)
	assert.ElementsMatch(t, []string{"b.php", "c.php"}, rec.ToParse)
	assert.ElementsMatch(t, []string{}, nonNil(rec.ToEvict))
}

func TestReconcileDetectsEviction(t *testing.T) {
	idx, err := New(nil)
	require.NoError(t, err)
	t0 := time.Now()
	require.NoError(t, idx.Commit(map[string]fingerprint.FileFingerprint{
		"a.php": {Path: "a.php", Size: 10, ModTime: t0},
	}, nil))

	rec := idx.Reconcile(map[string]fingerprint.FileFingerprint{})
	assert.ElementsMatch(t, []string{"a.php"}, rec.ToEvict)
	assert.Empty(t, rec.ToParse)
}

func TestBadgerStoreRoundTrips(t *testing.T) {
	store, err := OpenBadgerStore(t.TempDir(), nil)
	require.NoError(t, err)
	defer store.Close()

	t0 := time.Now().UTC().Truncate(time.Second)
	want := map[string]fingerprint.FileFingerprint{
		"a.php": {Path: "a.php", Size: 10, ModTime: t0},
		"b.php": {Path: "b.php", Size: 20, ModTime: t0, ContentHash: "deadbeef"},
	}
	require.NoError(t, store.Save(want))

	got, err := store.Load()
	require.NoError(t, err)
	assert.Equal(t, want["a.php"].Size, got["a.php"].Size)
	assert.Equal(t, want["b.php"].ContentHash, got["b.php"].ContentHash)

	// Pruning: dropping a.php from the saved set removes it from the store.
	delete(want, "a.php")
	require.NoError(t, store.Save(want))
	got, err = store.Load()
	require.NoError(t, err)
	_, stillThere := got["a.php"]
	assert.False(t, stillThere)
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
