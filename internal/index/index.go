// Copyright (C) 2026 Discoveryd Contributors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package index implements the Incremental Index: the map from path to
// FileFingerprint that turns a coarse change batch from the Watcher into
// the precise set of files that actually need re-parsing. See spec §4.3.
package index

import (
	"sync"

	"github.com/discoveryd/discoveryd/internal/fingerprint"
)

// Reconciliation is the result of comparing a fresh fingerprint snapshot
// against what the index already knew.
type Reconciliation struct {
	ToParse []string // fingerprint differs or is absent
	ToEvict []string // previously known, now missing
}

// PersistentStore is the optional on-disk mirror used when --incremental
// is passed, so fingerprints survive a daemon restart. See badgerstore.go
// for the concrete implementation.
type PersistentStore interface {
	Load() (map[string]fingerprint.FileFingerprint, error)
	Save(map[string]fingerprint.FileFingerprint) error
	Close() error
}

// Index holds the current path -> FileFingerprint map for the daemon's
// lifetime, optionally backed by a PersistentStore.
type Index struct {
	mu    sync.Mutex
	known map[string]fingerprint.FileFingerprint
	store PersistentStore
}

// New creates an index, optionally seeded from a persistent store (nil
// when --incremental was not passed).
func New(store PersistentStore) (*Index, error) {
	idx := &Index{known: make(map[string]fingerprint.FileFingerprint), store: store}
	if store != nil {
		loaded, err := store.Load()
		if err != nil {
			return nil, err
		}
		idx.known = loaded
	}
	return idx, nil
}

// Reconcile compares current against the index's knowledge and returns the
// precise work implied, without mutating state — the caller applies the
// result only after the Scanner+Parser have produced replacement symbols,
// per spec §4.3's ordering ("After Scanner+Parser complete a batch...").
func (idx *Index) Reconcile(current map[string]fingerprint.FileFingerprint) Reconciliation {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	var rec Reconciliation
	for path, fp := range current {
		if prior, ok := idx.known[path]; !ok || !prior.Equal(fp) {
			rec.ToParse = append(rec.ToParse, path)
		}
	}
	for path := range idx.known {
		if _, ok := current[path]; !ok {
			rec.ToEvict = append(rec.ToEvict, path)
		}
	}
	return rec
}

// Commit records the fingerprints that a completed batch actually applied:
// newly parsed files get their new fingerprint, evicted files are removed.
// Must be called after the corresponding metadata.Index.Apply so a reader
// racing both never sees fingerprints ahead of symbols.
func (idx *Index) Commit(upserts map[string]fingerprint.FileFingerprint, evicted []string) error {
	idx.mu.Lock()
	for path, fp := range upserts {
		idx.known[path] = fp
	}
	for _, path := range evicted {
		delete(idx.known, path)
	}
	var snapshot map[string]fingerprint.FileFingerprint
	if idx.store != nil {
		snapshot = make(map[string]fingerprint.FileFingerprint, len(idx.known))
		for k, v := range idx.known {
			snapshot[k] = v
		}
	}
	idx.mu.Unlock()

	if idx.store != nil {
		return idx.store.Save(snapshot)
	}
	return nil
}

// Close releases the persistent store, if any.
func (idx *Index) Close() error {
	if idx.store != nil {
		return idx.store.Close()
	}
	return nil
}
