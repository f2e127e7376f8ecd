// Copyright (C) 2026 Discoveryd Contributors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package lockmgr

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestManager(t *testing.T, probe HealthProbe) *Manager {
	t.Helper()
	return &Manager{
		Dir:          t.TempDir(),
		Probe:        probe,
		ProbeTimeout: 50 * time.Millisecond,
		ReapCap:      300 * time.Millisecond,
	}
}

func TestAcquireThenAlreadyHeldWhenAlive(t *testing.T) {
	m := newTestManager(t, func(ctx context.Context, socketPath string, timeout time.Duration) bool {
		return true
	})

	h1, err := m.Acquire(context.Background(), "/out/a.php-cache.php", "/tmp/sock-a", false)
	require.NoError(t, err)
	defer m.Release(h1)

	_, err = m.Acquire(context.Background(), "/out/a.php-cache.php", "/tmp/sock-b", false)
	require.Error(t, err)
	var alreadyHeld *AlreadyHeldError
	require.ErrorAs(t, err, &alreadyHeld)
	assert.Equal(t, os.Getpid(), alreadyHeld.Incumbent.PID)
}

func TestAcquireReapsWhenIncumbentDead(t *testing.T) {
	m := newTestManager(t, func(ctx context.Context, socketPath string, timeout time.Duration) bool {
		return false
	})

	lockPath := m.LockPath("/out/b.php-cache.php")
	require.NoError(t, os.MkdirAll(filepath.Dir(lockPath), 0o755))

	f, err := os.OpenFile(lockPath, os.O_CREATE|os.O_RDWR, 0o644)
	require.NoError(t, err)
	require.NoError(t, platformLock(f))

	// Simulate a crash: close the descriptor without unlocking explicitly.
	// The OS releases the flock on close, which is exactly the condition
	// reap mode exists to exploit.
	require.NoError(t, f.Close())

	h, err := m.Acquire(context.Background(), "/out/b.php-cache.php", "/tmp/sock-c", false)
	require.NoError(t, err)
	defer m.Release(h)
}

func TestForceUnlinksBeforeAcquire(t *testing.T) {
	m := newTestManager(t, nil)
	lockPath := m.LockPath("/out/c.php-cache.php")
	require.NoError(t, os.MkdirAll(filepath.Dir(lockPath), 0o755))
	require.NoError(t, os.WriteFile(lockPath, []byte("stale"), 0o644))

	h, err := m.Acquire(context.Background(), "/out/c.php-cache.php", "/tmp/sock-d", true)
	require.NoError(t, err)
	defer m.Release(h)
}

func TestReleaseIsIdempotent(t *testing.T) {
	m := newTestManager(t, nil)
	h, err := m.Acquire(context.Background(), "/out/d.php-cache.php", "/tmp/sock-e", false)
	require.NoError(t, err)

	require.NoError(t, m.Release(h))
	require.NoError(t, m.Release(h))
}

func TestInodeVerificationDetectsUnlinkRecreate(t *testing.T) {
	m := newTestManager(t, nil)
	lockPath := m.LockPath("/out/e.php-cache.php")
	require.NoError(t, os.MkdirAll(filepath.Dir(lockPath), 0o755))

	h, err := m.tryAcquire(lockPath)
	require.NoError(t, err)
	defer m.Release(h)

	same, err := sameInode(h.file, lockPath)
	require.NoError(t, err)
	assert.True(t, same)

	require.NoError(t, os.Remove(lockPath))
	require.NoError(t, os.WriteFile(lockPath, []byte("impostor"), 0o644))

	same, err = sameInode(h.file, lockPath)
	require.NoError(t, err)
	assert.False(t, same)
}
