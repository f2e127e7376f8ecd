// Copyright (C) 2026 Discoveryd Contributors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package cache implements the adaptive Cache Store: the component that
// holds the rendered CacheArtifact and serves it to IPC clients while
// accepting atomic replacements from the rescan pipeline. See spec §4.5.
package cache

// Strategy is the selected storage variant for a given codebase weight.
type Strategy int

const (
	Memory Strategy = iota
	Hybrid
	File
)

func (s Strategy) String() string {
	switch s {
	case Memory:
		return "memory"
	case Hybrid:
		return "hybrid"
	case File:
		return "file"
	default:
		return "unknown"
	}
}

const (
	memoryToHybridThreshold = 10 << 20  // ~10 MiB
	hybridToFileThreshold   = 100 << 20 // ~100 MiB
)

// Selector picks a Strategy from total source byte weight, damped by
// hysteresis so a codebase hovering near a threshold does not flap
// between variants on every rescan. A crossing only takes effect once it
// has been observed twice in a row.
type Selector struct {
	current      Strategy
	pendingNext  Strategy
	pendingSeen  int
	initialized  bool
}

// Evaluate returns the strategy that should be in effect given the new
// total byte weight. The very first call always picks immediately (there
// is nothing to dampen against yet, per spec §4.5's "selected once, at
// boot").
func (sel *Selector) Evaluate(totalBytes int64) Strategy {
	proposed := strategyFor(totalBytes)
	if !sel.initialized {
		sel.initialized = true
		sel.current = proposed
		return sel.current
	}
	if proposed == sel.current {
		sel.pendingSeen = 0
		return sel.current
	}
	if proposed == sel.pendingNext {
		sel.pendingSeen++
	} else {
		sel.pendingNext = proposed
		sel.pendingSeen = 1
	}
	if sel.pendingSeen >= 2 {
		sel.current = proposed
		sel.pendingSeen = 0
	}
	return sel.current
}

func strategyFor(totalBytes int64) Strategy {
	switch {
	case totalBytes < memoryToHybridThreshold:
		return Memory
	case totalBytes < hybridToFileThreshold:
		return Hybrid
	default:
		return File
	}
}

// Store holds the current CacheArtifact and accepts atomic replacements.
// A reader that begins Get() before a concurrent Publish completes sees
// either the pre- or post-publish bytes in full, never a blend.
type Store interface {
	// Get returns a copy of the current artifact bytes.
	Get() []byte
	// Publish atomically replaces the current artifact.
	Publish(artifact []byte) error
	// Strategy reports which variant backs this store.
	Strategy() Strategy
	// Close releases any resources (disk mirrors, open files).
	Close() error
}
