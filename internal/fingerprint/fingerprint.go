// Copyright (C) 2026 Discoveryd Contributors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package fingerprint defines the per-file identity record the Incremental
// Index uses to decide whether a file needs re-parsing.
package fingerprint

import "time"

// FileFingerprint identifies a file's observed state at scan time.
//
// Equality is over (Size, ModTime) unless ContentHash is populated, in
// which case ContentHash alone is the key — see Equal.
type FileFingerprint struct {
	Path        string
	Size        int64
	ModTime     time.Time
	ContentHash string // optional: sub-second mtime disambiguation
}

// Equal reports whether two fingerprints for the same path represent the
// same observed file state.
func (f FileFingerprint) Equal(other FileFingerprint) bool {
	if f.ContentHash != "" || other.ContentHash != "" {
		return f.ContentHash == other.ContentHash
	}
	return f.Size == other.Size && f.ModTime.Equal(other.ModTime)
}
