// Copyright (C) 2026 Discoveryd Contributors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package watcher converts raw filesystem notifications into debounced
// ChangeBatch values. Event semantics differ across platforms (a rename
// may appear as delete+create; a directory move may enumerate its
// contents); this package normalizes everything to the
// {created, modified, deleted} shape plus the Resync sentinel and leaves
// the decision of what to actually do to package index. See spec §4.4.
package watcher

import (
	"context"
	"io/fs"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"golang.org/x/time/rate"

	"github.com/discoveryd/discoveryd/internal/scanner"
)

// ChangeBatch is a debounced, deduplicated set of filesystem path changes.
type ChangeBatch struct {
	Created  map[string]struct{}
	Modified map[string]struct{}
	Deleted  map[string]struct{}
	// Resync, when true, instructs downstream to treat every root as
	// dirty — the documented recovery path for notification loss.
	Resync bool
}

func newBatch() *ChangeBatch {
	return &ChangeBatch{
		Created:  make(map[string]struct{}),
		Modified: make(map[string]struct{}),
		Deleted:  make(map[string]struct{}),
	}
}

func (b *ChangeBatch) empty() bool {
	return len(b.Created) == 0 && len(b.Modified) == 0 && len(b.Deleted) == 0 && !b.Resync
}

// Watcher subscribes to filesystem events under a set of roots and emits
// coalesced ChangeBatch values on the channel Subscribe returns.
type Watcher struct {
	Roots       []string
	ExtraGlobs  []string
	Debounce    time.Duration
	Logger      *slog.Logger
	ResyncLimit *rate.Limiter

	fsw     *fsnotify.Watcher
	out     chan ChangeBatch
	ignores map[string]*scanner.IgnoreSet
}

func (w *Watcher) logger() *slog.Logger {
	if w.Logger != nil {
		return w.Logger
	}
	return slog.Default()
}

func (w *Watcher) debounce() time.Duration {
	if w.Debounce > 0 {
		return w.Debounce
	}
	return 150 * time.Millisecond
}

// Subscribe arms the watcher on every root (recursively) and returns the
// channel on which coalesced batches are emitted. Subscribe returns once
// the watcher is armed; batches continue to arrive until ctx is done.
func (w *Watcher) Subscribe(ctx context.Context) (<-chan ChangeBatch, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	w.fsw = fsw
	w.out = make(chan ChangeBatch, 4)
	w.ignores = make(map[string]*scanner.IgnoreSet, len(w.Roots))
	if w.ResyncLimit == nil {
		w.ResyncLimit = rate.NewLimiter(rate.Every(time.Second), 1)
	}

	for _, root := range w.Roots {
		w.ignores[root] = scanner.NewIgnoreSet(root, w.ExtraGlobs)
		if err := addRecursive(fsw, root); err != nil {
			return nil, err
		}
	}

	go w.loop(ctx)
	return w.out, nil
}

func addRecursive(fsw *fsnotify.Watcher, root string) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if d.IsDir() {
			return fsw.Add(path)
		}
		return nil
	})
}

// Close stops the underlying fsnotify watcher.
func (w *Watcher) Close() error {
	if w.fsw == nil {
		return nil
	}
	return w.fsw.Close()
}

func (w *Watcher) loop(ctx context.Context) {
	defer close(w.out)

	var mu sync.Mutex
	batch := newBatch()
	timer := time.NewTimer(w.debounce())
	timer.Stop()

	flush := func() {
		mu.Lock()
		if batch.empty() {
			mu.Unlock()
			return
		}
		toSend := *batch
		batch = newBatch()
		mu.Unlock()
		select {
		case w.out <- toSend:
		case <-ctx.Done():
		}
	}

	for {
		select {
		case <-ctx.Done():
			return
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			w.logger().Warn("watcher error", "error", err)
			if w.ResyncLimit.Allow() {
				mu.Lock()
				batch.Resync = true
				mu.Unlock()
				resetTimer(timer, w.debounce())
			}
		case ev, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			if w.shouldIgnore(ev.Name) {
				continue
			}
			mu.Lock()
			classify(batch, ev)
			mu.Unlock()
			resetTimer(timer, w.debounce())
		case <-timer.C:
			flush()
		}
	}
}

func resetTimer(t *time.Timer, d time.Duration) {
	t.Stop()
	t.Reset(d)
}

// classify applies "last observed state wins" within the coalescing
// window: a create-then-delete for the same path collapses to a single
// Deleted entry (it is not dropped from the batch), and a
// delete-then-create collapses to modified.
func classify(b *ChangeBatch, ev fsnotify.Event) {
	path := ev.Name
	switch {
	case ev.Op&fsnotify.Create != 0:
		_, wasDeleted := b.Deleted[path]
		delete(b.Deleted, path)
		if _, wasKnown := b.Modified[path]; wasKnown || wasDeleted {
			b.Modified[path] = struct{}{}
		} else {
			b.Created[path] = struct{}{}
		}
	case ev.Op&fsnotify.Write != 0:
		if _, wasCreated := b.Created[path]; !wasCreated {
			b.Modified[path] = struct{}{}
		}
	case ev.Op&fsnotify.Remove != 0, ev.Op&fsnotify.Rename != 0:
		delete(b.Created, path)
		delete(b.Modified, path)
		b.Deleted[path] = struct{}{}
	}
}

func (w *Watcher) shouldIgnore(path string) bool {
	for root, ignores := range w.ignores {
		rel, err := filepath.Rel(root, path)
		if err != nil {
			continue
		}
		if ignores.Match(rel) {
			return true
		}
	}
	return filepath.Ext(path) != ".php" && filepath.Ext(path) != ""
}
