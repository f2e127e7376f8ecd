// Copyright (C) 2026 Discoveryd Contributors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package daemon is the Supervisor: it owns the boot sequence (lock,
// full scan, populate index, format, publish, arm watcher, accept IPC)
// and the steady-state event loop (watcher batches feeding the
// incremental rescan pipeline, concurrently with IPC connections),
// coordinated with golang.org/x/sync/errgroup the way the teacher
// coordinates its peer read/write loops. See spec §4.7/§2.
package daemon

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/discoveryd/discoveryd/internal/cache"
	"github.com/discoveryd/discoveryd/internal/fingerprint"
	"github.com/discoveryd/discoveryd/internal/index"
	"github.com/discoveryd/discoveryd/internal/ipc"
	"github.com/discoveryd/discoveryd/internal/lockmgr"
	"github.com/discoveryd/discoveryd/internal/metadata"
	"github.com/discoveryd/discoveryd/internal/metrics"
	"github.com/discoveryd/discoveryd/internal/parser"
	"github.com/discoveryd/discoveryd/internal/scanner"
	"github.com/discoveryd/discoveryd/internal/tracing"
	"github.com/discoveryd/discoveryd/internal/watcher"
)

// Config is everything the Supervisor needs to boot, independent of how
// it was sourced (flags vs config file) — see package config for that
// layer.
type Config struct {
	Roots       []string
	Output      string
	IgnoreGlobs []string
	Watch       bool
	SocketPath  string
	PIDFile     string
	Incremental bool
	Pretty      bool
	Force       bool
}

// Supervisor wires every component together for one daemon lifetime.
type Supervisor struct {
	Cfg       Config
	Parser    parser.Parser
	Formatter parser.Formatter
	Logger    *slog.Logger
	Metrics   *metrics.Registry
	Store     cache.Store
	// Verbose controls whether the tracer's stdouttrace exporter actually
	// writes spans (to stderr); it is off by default to keep one-shot scans quiet.
	Verbose bool

	locks      lockmgr.Manager
	lockHndl   *lockmgr.Handle
	symbols    *metadata.Index
	fps        *index.Index
	persistor  *index.BadgerStore
	scan       *scanner.Scanner
	watch      *watcher.Watcher
	server     *ipc.Server
	tracer     trace.Tracer
	tracerStop tracing.Shutdown
	// mirror guarantees --output always holds the latest artifact even
	// when the selected Strategy is Memory, which otherwise never
	// touches disk. File and Hybrid already write Cfg.Output as their
	// own canonical/mirrored copy, so mirror is only exercised when
	// Store.Strategy() reports Memory.
	mirror *cache.FileStore
}

func (s *Supervisor) logger() *slog.Logger {
	if s.Logger != nil {
		return s.Logger
	}
	return slog.Default()
}

// Boot runs the boot sequence through to a servable cache artifact:
// canonicalize roots, acquire the lock, write the PID file, full scan,
// populate the index, render, publish. It does not yet arm the watcher
// or start accepting IPC connections — call Run for that.
func (s *Supervisor) Boot(ctx context.Context) error {
	canonicalRoots, err := canonicalize(s.Cfg.Roots)
	if err != nil {
		return fmt.Errorf("canonicalizing roots: %w", err)
	}
	s.Cfg.Roots = canonicalRoots

	outputPath, err := canonicalizePath(s.Cfg.Output)
	if err != nil {
		return fmt.Errorf("canonicalizing output path: %w", err)
	}
	s.Cfg.Output = outputPath

	if s.Cfg.SocketPath != "" {
		socketPath, err := canonicalizePath(s.Cfg.SocketPath)
		if err != nil {
			return fmt.Errorf("canonicalizing socket path: %w", err)
		}
		s.Cfg.SocketPath = socketPath
	}
	if s.Cfg.PIDFile != "" {
		pidPath, err := canonicalizePath(s.Cfg.PIDFile)
		if err != nil {
			return fmt.Errorf("canonicalizing pid path: %w", err)
		}
		s.Cfg.PIDFile = pidPath
	}

	if s.Metrics == nil {
		s.Metrics = metrics.New()
	}

	tracer, stop, terr := tracing.New("discoveryd", s.Verbose)
	if terr != nil {
		return fmt.Errorf("starting tracer: %w", terr)
	}
	s.tracer = tracer
	s.tracerStop = stop

	if s.locks.Probe == nil {
		s.locks.Probe = ipc.Probe
	}
	handle, err := s.locks.Acquire(ctx, canonicalLockKey(s.Cfg), s.Cfg.SocketPath, s.Cfg.Force)
	if err != nil {
		return err
	}
	s.lockHndl = handle

	if err := s.writePIDFile(); err != nil {
		_ = s.locks.Release(s.lockHndl)
		return err
	}

	store, err := s.openCacheStore()
	if err != nil {
		return err
	}
	s.Store = store
	s.Metrics.CacheStrategy.Set(float64(store.Strategy()))

	s.symbols = metadata.NewIndex()

	if s.Cfg.Incremental {
		dir := filepath.Join(filepath.Dir(s.Cfg.Output), ".discoveryd-fingerprints")
		bs, berr := index.OpenBadgerStore(dir, s.logger())
		if berr != nil {
			return fmt.Errorf("opening incremental store: %w", berr)
		}
		s.persistor = bs
	}
	fps, err := index.New(persistStoreOrNil(s.persistor))
	if err != nil {
		return fmt.Errorf("opening incremental index: %w", err)
	}
	s.fps = fps

	s.scan = &scanner.Scanner{Roots: s.Cfg.Roots, ExtraGlobs: s.Cfg.IgnoreGlobs, Logger: s.logger(), Tracer: s.tracer}

	files, err := s.scan.ScanFull(ctx)
	if err != nil {
		return fmt.Errorf("initial scan: %w", err)
	}

	if err := s.parseAndApply(ctx, files, nil, true); err != nil {
		return fmt.Errorf("initial parse: %w", err)
	}

	return s.publish()
}

// Run arms the watcher (when configured) and the IPC server, then blocks
// until ctx is cancelled, coordinating both loops with an errgroup so a
// failure in either tears down the other.
func (s *Supervisor) Run(ctx context.Context) error {
	defer s.Shutdown()

	g, gctx := errgroup.WithContext(ctx)

	s.server = &ipc.Server{
		SocketPath: s.Cfg.SocketPath,
		Store:      s.Store,
		Stats:      s.renderStats,
		Logger:     s.logger(),
	}
	if s.Cfg.Watch {
		if err := s.server.Listen(); err != nil {
			return err
		}
		g.Go(func() error { return s.server.Serve(gctx) })
	}

	if s.Cfg.Watch {
		s.watch = &watcher.Watcher{Roots: s.Cfg.Roots, ExtraGlobs: s.Cfg.IgnoreGlobs, Logger: s.logger()}
		batches, err := s.watch.Subscribe(gctx)
		if err != nil {
			return fmt.Errorf("arming watcher: %w", err)
		}
		g.Go(func() error { return s.watchLoop(gctx, batches) })
	}

	return g.Wait()
}

func (s *Supervisor) watchLoop(ctx context.Context, batches <-chan watcher.ChangeBatch) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case batch, ok := <-batches:
			if !ok {
				return nil
			}
			if err := s.handleBatch(ctx, batch); err != nil {
				s.logger().Error("daemon: handling change batch failed, serving stale artifact", "error", err)
			}
		}
	}
}

func (s *Supervisor) handleBatch(ctx context.Context, batch watcher.ChangeBatch) error {
	if batch.Resync {
		s.Metrics.ResyncsTotal.Inc()
		files, err := s.scan.ScanFull(ctx)
		if err != nil {
			return err
		}
		if err := s.parseAndApply(ctx, files, nil, true); err != nil {
			return err
		}
		return s.publish()
	}

	var paths []string
	for p := range batch.Created {
		paths = append(paths, p)
	}
	for p := range batch.Modified {
		paths = append(paths, p)
	}
	var evicted []string
	for p := range batch.Deleted {
		evicted = append(evicted, p)
	}
	if len(paths) == 0 && len(evicted) == 0 {
		return nil
	}

	files, err := s.scan.ScanSubset(ctx, paths)
	if err != nil {
		return err
	}
	if err := s.parseAndApply(ctx, files, evicted, false); err != nil {
		return err
	}
	return s.publish()
}

// parseAndApply parses scanned files, applies the resulting batch to the
// metadata index and the fingerprint index in that order (so a concurrent
// reader of the metadata index never observes fingerprints ahead of the
// symbols they describe), and records metrics.
//
// evicted carries the absolute paths of files the Watcher observed as
// deleted (nil for a Boot/Resync full scan, where deletions instead show
// up as paths present in the fingerprint index but absent from files).
//
// fullScan marks a scan that enumerated every configured root, the only
// kind the Incremental Index's Reconcile contract applies to per spec
// §4.3 — a watcher-driven subset batch already names exactly the files
// that changed, so reconciling it against the fingerprint index would
// misread every untouched file as missing and evict it.
func (s *Supervisor) parseAndApply(ctx context.Context, files []scanner.File, evicted []string, fullScan bool) error {
	ctx, span := s.tracer.Start(ctx, "daemon.parseAndApply")
	defer span.End()

	start := time.Now()

	fps := make(map[string]fingerprint.FileFingerprint, len(files))
	for _, f := range files {
		fps[f.AbsPath] = fingerprint.FileFingerprint{
			Path:        f.AbsPath,
			Size:        int64(len(f.Contents)),
			ModTime:     time.Now(),
			ContentHash: f.ContentHash,
		}
	}

	var reconcileEvict []string
	toParse := files
	if fullScan {
		rec := s.fps.Reconcile(fps)
		changed := make(map[string]bool, len(rec.ToParse))
		for _, p := range rec.ToParse {
			changed[p] = true
		}
		toParse = toParse[:0]
		for _, f := range files {
			// Skip the reparse only when the fingerprint confirms no
			// change AND this process already holds that file's symbols
			// in memory — right after Boot the index is empty, so every
			// file still gets its first parse regardless of what the
			// persisted fingerprint store remembers from a prior run.
			if !changed[f.AbsPath] && s.symbols.HasPath(f.Path) {
				continue
			}
			toParse = append(toParse, f)
		}
		reconcileEvict = rec.ToEvict
	}

	var upserts []metadata.Symbol
	for _, f := range toParse {
		syms, err := s.Parser.Parse(ctx, f.Path, f.Contents)
		if err != nil {
			s.logger().Warn("daemon: parser error, skipping file", "path", f.Path, "error", err)
			continue
		}
		upserts = append(upserts, syms...)
	}

	metaEvict := make([]string, 0, len(evicted)+len(reconcileEvict)+len(toParse))
	for _, abs := range evicted {
		if rel, ok := scanner.RelativePath(s.Cfg.Roots, abs); ok {
			metaEvict = append(metaEvict, rel)
		}
	}
	for _, abs := range reconcileEvict {
		if rel, ok := scanner.RelativePath(s.Cfg.Roots, abs); ok {
			metaEvict = append(metaEvict, rel)
		}
	}
	for _, f := range toParse {
		metaEvict = append(metaEvict, f.Path)
	}
	s.symbols.Apply(metadata.Batch{Upserts: upserts, Evict: metaEvict})

	fpEvict := append([]string{}, evicted...)
	fpEvict = append(fpEvict, reconcileEvict...)
	if err := s.fps.Commit(fps, fpEvict); err != nil {
		return fmt.Errorf("committing fingerprints: %w", err)
	}

	s.Metrics.ScansTotal.Inc()
	s.Metrics.ScanDuration.Observe(time.Since(start).Seconds())
	s.Metrics.SymbolsTotal.Set(float64(s.symbols.Len()))
	return nil
}

func (s *Supervisor) publish() error {
	snapshot := s.symbols.Snapshot()
	artifact, err := s.Formatter.Format(snapshot, s.Cfg.Pretty)
	if err != nil {
		s.Metrics.PublishFailures.Inc()
		return fmt.Errorf("formatting artifact: %w", err)
	}
	if err := s.Store.Publish(artifact); err != nil {
		s.Metrics.PublishFailures.Inc()
		return fmt.Errorf("publishing artifact: %w", err)
	}
	if s.Store.Strategy() == cache.Memory && s.mirror != nil {
		if err := s.mirror.Publish(artifact); err != nil {
			s.Metrics.PublishFailures.Inc()
			return fmt.Errorf("mirroring artifact to output path: %w", err)
		}
	}
	return nil
}

func (s *Supervisor) renderStats() string {
	text, err := s.Metrics.Render()
	if err != nil {
		return fmt.Sprintf("ERROR: %s\n", err)
	}
	return text
}

func (s *Supervisor) openCacheStore() (cache.Store, error) {
	var sel cache.Selector
	weight, err := totalSourceWeight(s.Cfg.Roots)
	if err != nil {
		return nil, fmt.Errorf("weighing codebase: %w", err)
	}

	switch sel.Evaluate(weight) {
	case cache.Hybrid:
		return cache.NewHybridStore(s.Cfg.Output)
	case cache.File:
		return cache.NewFileStore(s.Cfg.Output)
	default:
		mirror, merr := cache.NewFileStore(s.Cfg.Output)
		if merr != nil {
			return nil, merr
		}
		s.mirror = mirror
		return cache.NewMemoryStore(), nil
	}
}

func (s *Supervisor) writePIDFile() error {
	if s.Cfg.PIDFile == "" {
		return nil
	}
	return os.WriteFile(s.Cfg.PIDFile, []byte(fmt.Sprintf("%d\n", os.Getpid())), 0o644)
}

// Shutdown releases the lock and removes the PID file. The IPC server's
// listening socket is removed by its own Close, invoked when Serve
// returns via Server.Close.
func (s *Supervisor) Shutdown() {
	if s.persistor != nil {
		_ = s.persistor.Close()
	}
	if s.Cfg.PIDFile != "" {
		_ = os.Remove(s.Cfg.PIDFile)
	}
	if s.lockHndl != nil {
		_ = s.locks.Release(s.lockHndl)
	}
	if s.tracerStop != nil {
		_ = s.tracerStop(context.Background())
	}
}

func canonicalize(roots []string) ([]string, error) {
	out := make([]string, 0, len(roots))
	for _, r := range roots {
		abs, err := filepath.Abs(r)
		if err != nil {
			return nil, err
		}
		resolved, err := filepath.EvalSymlinks(abs)
		if err != nil {
			return nil, fmt.Errorf("resolving %s: %w", r, err)
		}
		out = append(out, resolved)
	}
	return out, nil
}

// canonicalizePath resolves path the way canonicalize resolves roots —
// filepath.Abs then filepath.EvalSymlinks — except it tolerates path's
// final component not existing yet, since the output file, socket, and
// pid file are all created by this process rather than found by it. When
// the full path cannot be resolved, only the parent directory is required
// to exist and gets resolved through symlinks; the base name is then
// appended unresolved.
func canonicalizePath(path string) (string, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", err
	}
	if resolved, rerr := filepath.EvalSymlinks(abs); rerr == nil {
		return resolved, nil
	}
	dir, err := filepath.EvalSymlinks(filepath.Dir(abs))
	if err != nil {
		return "", fmt.Errorf("resolving %s: %w", path, err)
	}
	return filepath.Join(dir, filepath.Base(abs)), nil
}

// canonicalLockKey derives the lock's identity from the output path
// rather than the source roots: two invocations targeting the same
// artifact must contend for one lock even if given different root sets.
// cfg.Output is assumed already canonicalized by Boot via
// canonicalizePath, which is what lets two --output flags that reach the
// same file through different symlinks collide on one lock (spec §4.1,
// §7's open question).
func canonicalLockKey(cfg Config) string {
	return cfg.Output
}

func totalSourceWeight(roots []string) (int64, error) {
	var total int64
	for _, root := range roots {
		err := filepath.Walk(root, func(path string, info os.FileInfo, err error) error {
			if err != nil {
				return nil
			}
			if !info.IsDir() {
				total += info.Size()
			}
			return nil
		})
		if err != nil {
			return 0, err
		}
	}
	return total, nil
}

func persistStoreOrNil(bs *index.BadgerStore) index.PersistentStore {
	if bs == nil {
		return nil
	}
	return bs
}
