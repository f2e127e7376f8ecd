// Copyright (C) 2026 Discoveryd Contributors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package parser defines the external-collaborator boundary: any concrete
// Parser that turns file contents into metadata.Symbol values is
// acceptable, and any concrete Formatter that renders a MetadataIndex
// snapshot into cache-artifact bytes is acceptable. This core dictates
// neither syntax-tree traversal strategy nor artifact text layout. See
// spec §5 and §6.
package parser

import (
	"context"

	"github.com/discoveryd/discoveryd/internal/metadata"
)

// Parser extracts symbols from one file's contents. path is the file's
// path relative to the root it was found under, matching
// metadata.Symbol.Path.
type Parser interface {
	// Parse returns every symbol declared in content. A syntactically
	// invalid file is not an error: return whatever symbols could be
	// recovered plus a nil error, matching the tolerant behavior the
	// daemon depends on to keep serving a stale-but-valid artifact.
	Parse(ctx context.Context, path string, content []byte) ([]metadata.Symbol, error)
}

// Formatter renders a stable snapshot of the MetadataIndex into the bytes
// that become the cache artifact. Formatter implementations own the
// textual layout entirely; this core only guarantees the snapshot handed
// to Format was consistent and that the returned bytes are published
// atomically.
type Formatter interface {
	Format(snapshot map[string]metadata.Symbol, pretty bool) ([]byte, error)
}
