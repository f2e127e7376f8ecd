// Copyright (C) 2026 Discoveryd Contributors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package lockmgr implements the single-writer lock protocol: one daemon
// may hold the lock for a given cache output path at a time, a crashed
// predecessor must not strand a successor, and an unlink-then-recreate of
// the lock path by a third party must not let a second acquirer believe it
// holds the lock. See spec §4.1.
//
// The lock's identity is the inode of the open file descriptor, not the
// path — the path is only a rendezvous. Acquire re-stats the lock path
// after locking and compares inodes with the open descriptor to detect
// that case.
package lockmgr

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/go-openapi/strfmt"
	"github.com/pkg/errors"

	"github.com/discoveryd/discoveryd/internal/clock"
)

// ProtocolVersion is bumped whenever the wire protocol in package ipc
// changes in a way that matters to a probing client.
const ProtocolVersion = "1"

var (
	// ErrAlreadyHeld is returned when a live incumbent holds the lock.
	// This is a normal outcome, not a failure the caller should retry.
	ErrAlreadyHeld = errors.New("lock already held by a live process")
	// ErrReapExhausted is returned when reap mode's bounded retry loop
	// gives up without acquiring the lock.
	ErrReapExhausted = errors.New("lock reap retries exhausted")
)

// Record is the on-disk sentinel written into the lock file once acquired.
type Record struct {
	PID             int             `json:"pid"`
	SocketPath      string          `json:"socket_path"`
	StartedAt       strfmt.DateTime `json:"started_at"`
	ProtocolVersion string          `json:"protocol_version"`
}

// AlreadyHeldError carries the incumbent's record so the Supervisor can
// print a message naming its PID and socket, per spec §7.
type AlreadyHeldError struct {
	Incumbent Record
}

func (e *AlreadyHeldError) Error() string {
	return fmt.Sprintf("lock held by pid %d (socket %s)", e.Incumbent.PID, e.Incumbent.SocketPath)
}

func (e *AlreadyHeldError) Unwrap() error { return ErrAlreadyHeld }

// HealthProbe checks whether a daemon listening on socketPath is alive,
// with the given timeout. Implemented by package ipc's client-side ping;
// injected here so this package never imports the IPC transport.
type HealthProbe func(ctx context.Context, socketPath string, timeout time.Duration) bool

// Manager acquires and releases the per-output-path lock.
type Manager struct {
	// Dir is the conventional temporary directory the lock path is
	// rooted in. Defaults to <os.TempDir()>/discoveryd/locks when empty.
	Dir string
	// Probe is consulted when the advisory lock is already held, to
	// decide whether the incumbent is alive or reapable.
	Probe HealthProbe
	// Clock is the injectable time source for backoff sleeps.
	Clock clock.Clock
	// ProbeTimeout bounds each health probe; spec calls for "sub-second"
	// since this gates interactive boot.
	ProbeTimeout time.Duration
	// ReapCap bounds the total time spent in reap-mode backoff.
	ReapCap time.Duration
}

// Handle represents a held lock. Release is idempotent.
type Handle struct {
	file     *os.File
	path     string
	released bool
}

func newManager(m *Manager) {
	if m.Dir == "" {
		m.Dir = filepath.Join(os.TempDir(), "discoveryd", "locks")
	}
	if m.Clock == nil {
		m.Clock = clock.Real{}
	}
	if m.ProbeTimeout == 0 {
		m.ProbeTimeout = 400 * time.Millisecond
	}
	if m.ReapCap == 0 {
		m.ReapCap = 3 * time.Second
	}
}

// LockPath derives the deterministic lock file path for a canonicalized
// output path: sha256 truncated to 16 hex chars, long enough to avoid
// collisions across a user's handful of projects.
func (m *Manager) LockPath(canonicalOutputPath string) string {
	newManager(m)
	sum := sha256.Sum256([]byte(canonicalOutputPath))
	return filepath.Join(m.Dir, hex.EncodeToString(sum[:])[:16]+".lock")
}

// Acquire implements spec §4.1's algorithm. canonicalOutputPath must
// already be canonicalized by the caller (the Supervisor, per boot step 1).
// force, if true, unlinks any existing lock file before attempting to
// acquire — the explicit user affirmation from --force; never set this
// from an automated retry path.
func (m *Manager) Acquire(ctx context.Context, canonicalOutputPath, socketPath string, force bool) (*Handle, error) {
	newManager(m)
	if err := os.MkdirAll(m.Dir, 0o755); err != nil {
		return nil, errors.Wrap(err, "lock directory unwritable")
	}
	lockPath := m.LockPath(canonicalOutputPath)

	if force {
		_ = os.Remove(lockPath)
	}

	h, err := m.tryAcquire(lockPath)
	if err == nil {
		if werr := m.writeRecord(h, socketPath); werr != nil {
			_ = m.Release(h)
			return nil, werr
		}
		return h, nil
	}
	if !errors.Is(err, errLocked) {
		return nil, err
	}

	incumbent, rerr := m.readRecord(lockPath)
	if rerr == nil && m.Probe != nil {
		probeCtx, cancel := context.WithTimeout(ctx, m.ProbeTimeout)
		alive := m.Probe(probeCtx, incumbent.SocketPath, m.ProbeTimeout)
		cancel()
		if alive {
			return nil, &AlreadyHeldError{Incumbent: incumbent}
		}
	}

	return m.reap(ctx, lockPath, socketPath)
}

// reap retries acquisition with exponential backoff, on the assumption
// that the incumbent is dead and the OS will release its advisory lock
// once its descriptors close.
func (m *Manager) reap(ctx context.Context, lockPath, socketPath string) (*Handle, error) {
	backoff := 50 * time.Millisecond
	deadline := m.Clock.Now().Add(m.ReapCap)
	for m.Clock.Now().Before(deadline) {
		h, err := m.tryAcquire(lockPath)
		if err == nil {
			if werr := m.writeRecord(h, socketPath); werr != nil {
				_ = m.Release(h)
				return nil, werr
			}
			return h, nil
		}
		if !errors.Is(err, errLocked) {
			return nil, err
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-m.Clock.After(backoff):
		}
		backoff *= 2
		if backoff > 500*time.Millisecond {
			backoff = 500 * time.Millisecond
		}
	}
	return nil, ErrReapExhausted
}

// tryAcquire opens-or-creates the lock file and attempts the platform
// advisory lock, then verifies the path still refers to the descriptor we
// just locked (inode check), retrying the whole open+lock if a third party
// unlinked and recreated it out from under us.
func (m *Manager) tryAcquire(lockPath string) (*Handle, error) {
	for {
		f, err := os.OpenFile(lockPath, os.O_CREATE|os.O_RDWR, 0o644)
		if err != nil {
			return nil, errors.Wrap(err, "opening lock file")
		}
		if err := platformLock(f); err != nil {
			f.Close()
			if errors.Is(err, errLocked) {
				return nil, errLocked
			}
			return nil, errors.Wrap(err, "acquiring advisory lock")
		}

		same, statErr := sameInode(f, lockPath)
		if statErr != nil {
			_ = platformUnlock(f)
			f.Close()
			return nil, errors.Wrap(statErr, "verifying lock inode")
		}
		if !same {
			// Someone unlinked and recreated the path between our
			// open and our lock. Our fd's lock is now orphaned from
			// the path; release it and retry the whole sequence.
			_ = platformUnlock(f)
			f.Close()
			continue
		}
		return &Handle{file: f, path: lockPath}, nil
	}
}

func (m *Manager) writeRecord(h *Handle, socketPath string) error {
	rec := Record{
		PID:             os.Getpid(),
		SocketPath:      socketPath,
		StartedAt:       strfmt.DateTime(time.Now().UTC()),
		ProtocolVersion: ProtocolVersion,
	}
	data, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return errors.Wrap(err, "encoding lock record")
	}
	if err := h.file.Truncate(0); err != nil {
		return errors.Wrap(err, "truncating lock file")
	}
	if _, err := h.file.WriteAt(data, 0); err != nil {
		return errors.Wrap(err, "writing lock record")
	}
	return h.file.Sync()
}

func (m *Manager) readRecord(lockPath string) (Record, error) {
	data, err := os.ReadFile(lockPath)
	if err != nil {
		return Record{}, err
	}
	var rec Record
	if err := json.Unmarshal(data, &rec); err != nil {
		return Record{}, errors.Wrap(err, "decoding lock record")
	}
	return rec, nil
}

// Release unlocks and removes the lock file. Idempotent.
func (m *Manager) Release(h *Handle) error {
	if h == nil || h.released {
		return nil
	}
	h.released = true
	err := platformUnlock(h.file)
	closeErr := h.file.Close()
	_ = os.Remove(h.path)
	if err != nil {
		return err
	}
	return closeErr
}
