// Copyright (C) 2026 Discoveryd Contributors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package scanner walks the configured roots, applies ignore rules and the
// size gate, and dispatches file reads in parallel. It is stateless — it
// decides nothing about *which* files changed, only enumerates candidates
// given a set of paths or roots. See spec §4.2.
package scanner

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/cespare/xxhash/v2"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"
)

// MaxFileSize is the default size gate: files strictly larger than this
// are skipped. Exactly at the limit is accepted, per spec §4.2 and
// invariant 3 in §8.
const MaxFileSize = 10 * 1 << 20 // 10 MiB

// File is one candidate file, its contents, and a content hash cheap
// enough to compute on every read. The hash lets the Incremental Index
// disambiguate a rewrite that lands within the same filesystem mtime
// tick as its predecessor, which bare (size, mtime) fingerprinting can't.
//
// Path is relative to the root it was found under, per spec §3's
// SymbolMetadata source path contract, even though every root the daemon
// scans has already been made absolute by daemon.canonicalize; only a
// path handed to ScanSubset that lies under no configured root keeps its
// given form. AbsPath is the same file's absolute path, which
// FileFingerprint keys on instead (spec §3 gives FileFingerprint and
// SymbolMetadata different path conventions on purpose).
type File struct {
	Path        string
	AbsPath     string
	Contents    []byte
	ContentHash string
}

// Scanner walks roots and reads candidate files.
type Scanner struct {
	Roots       []string
	ExtraGlobs  []string
	MaxFileSize int64
	Logger      *slog.Logger
	// Tracer, if set, wraps each scan in a span. Nil is safe: every
	// method falls back to the no-op tracer.
	Tracer trace.Tracer
}

func (s *Scanner) tracer() trace.Tracer {
	if s.Tracer != nil {
		return s.Tracer
	}
	return trace.NewNoopTracerProvider().Tracer("scanner")
}

func (s *Scanner) maxSize() int64 {
	if s.MaxFileSize > 0 {
		return s.MaxFileSize
	}
	return MaxFileSize
}

func (s *Scanner) logger() *slog.Logger {
	if s.Logger != nil {
		return s.Logger
	}
	return slog.Default()
}

// ScanFull walks every configured root and returns every candidate file's
// path and contents, read in parallel across available cores.
func (s *Scanner) ScanFull(ctx context.Context) ([]File, error) {
	ctx, span := s.tracer().Start(ctx, "scanner.ScanFull")
	defer span.End()

	var candidates []string
	for _, root := range s.Roots {
		ignores := NewIgnoreSet(root, s.ExtraGlobs)
		paths, err := s.walk(root, ignores)
		if err != nil {
			return nil, err
		}
		candidates = append(candidates, paths...)
	}
	return s.readAll(ctx, candidates)
}

// ScanSubset reads exactly the given paths, applying only the size gate
// (ignore rules were already evaluated when the Watcher/Incremental Index
// selected these paths — re-evaluating here would just duplicate work).
func (s *Scanner) ScanSubset(ctx context.Context, paths []string) ([]File, error) {
	ctx, span := s.tracer().Start(ctx, "scanner.ScanSubset")
	defer span.End()
	return s.readAll(ctx, paths)
}

func (s *Scanner) walk(root string, ignores *IgnoreSet) ([]string, error) {
	var out []string
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			s.logger().Warn("scan: cannot read entry", "path", path, "error", err)
			return nil
		}
		if d.IsDir() {
			return nil
		}
		rel, relErr := filepath.Rel(root, path)
		if relErr != nil {
			rel = path
		}
		if ignores.Match(rel) {
			return nil
		}
		if filepath.Ext(path) != ".php" {
			return nil
		}
		out = append(out, path)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// RelativePath finds the configured root a candidate's absolute path is
// nested under, and returns the path relative to it. Every root is itself
// absolute by the time the Scanner sees it (daemon.canonicalize resolves
// them at boot), so a plain prefix-by-filepath.Rel check is sufficient —
// no root is nested inside another in any supported configuration.
// Exported so callers that only have an absolute path (e.g. the Watcher's
// deleted-path set) can compute the same relative key the Scanner uses
// for File.Path, keeping eviction keys consistent with upsert keys.
func RelativePath(roots []string, absPath string) (rel string, ok bool) {
	for _, root := range roots {
		r, err := filepath.Rel(root, absPath)
		if err != nil || strings.HasPrefix(r, "..") {
			continue
		}
		return r, true
	}
	return "", false
}

// readAll reads every path's contents in parallel, applying the size gate
// per-file. Work is parallelizable because downstream index updates are
// keyed by FQN and path; result ordering carries no meaning. Each result's
// Path is resolved relative to its owning root (see RelativePath) before
// being handed back; a path under no configured root is logged and kept
// exactly as given.
func (s *Scanner) readAll(ctx context.Context, paths []string) ([]File, error) {
	results := make([]*File, len(paths))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(runtime.NumCPU())

	for i, p := range paths {
		i, p := i, p
		g.Go(func() error {
			select {
			case <-gctx.Done():
				return gctx.Err()
			default:
			}
			rel, ok := RelativePath(s.Roots, p)
			if !ok {
				s.logger().Warn("scan: path is not under any configured root, using it verbatim", "path", p)
				rel = p
			}
			info, err := os.Stat(p)
			if err != nil {
				s.logger().Warn("scan: cannot stat file", "path", p, "error", err)
				return nil
			}
			if info.Size() > s.maxSize() {
				s.logger().Warn("scan: file exceeds size limit, skipping",
					"path", p, "size", info.Size(), "limit", s.maxSize())
				return nil
			}
			data, err := os.ReadFile(p)
			if err != nil {
				s.logger().Warn("scan: cannot read file", "path", p, "error", err)
				return nil
			}
			results[i] = &File{
				Path:        rel,
				AbsPath:     p,
				Contents:    data,
				ContentHash: fmt.Sprintf("%016x", xxhash.Sum64(data)),
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	out := make([]File, 0, len(results))
	for _, r := range results {
		if r != nil {
			out = append(out, *r)
		}
	}
	return out, nil
}
