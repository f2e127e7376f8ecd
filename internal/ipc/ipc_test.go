// Copyright (C) 2026 Discoveryd Contributors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package ipc

import (
	"context"
	"net"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/discoveryd/discoveryd/internal/cache"
)

func dial(t *testing.T, sock string) net.Conn {
	t.Helper()
	conn, err := net.DialTimeout("unix", sock, time.Second)
	require.NoError(t, err)
	return conn
}

func startTestServer(t *testing.T) (*Server, string) {
	t.Helper()
	sock := filepath.Join(t.TempDir(), "discoveryd.sock")
	store := cache.NewMemoryStore()
	require.NoError(t, store.Publish([]byte("<?php return ['A' => 1];")))

	s := &Server{
		SocketPath: sock,
		Store:      store,
		Stats:      func() string { return "files=1\n" },
	}
	require.NoError(t, s.Listen())

	ctx, cancel := context.WithCancel(context.Background())
	go s.Serve(ctx)
	t.Cleanup(cancel)
	return s, sock
}

func TestPingReturnsPong(t *testing.T) {
	_, sock := startTestServer(t)
	assert.True(t, Probe(context.Background(), sock, time.Second))
}

func TestGetCacheCodeReturnsPublishedArtifact(t *testing.T) {
	_, sock := startTestServer(t)

	conn := dial(t, sock)
	defer conn.Close()
	_, err := conn.Write([]byte("getCacheCode\n"))
	require.NoError(t, err)

	buf := make([]byte, 4096)
	n, err := conn.Read(buf)
	require.NoError(t, err)
	assert.Equal(t, "<?php return ['A' => 1];", string(buf[:n]))
}

func TestUnknownCommandReturnsError(t *testing.T) {
	_, sock := startTestServer(t)

	conn := dial(t, sock)
	defer conn.Close()
	_, err := conn.Write([]byte("bogus\n"))
	require.NoError(t, err)

	buf := make([]byte, 4096)
	n, err := conn.Read(buf)
	require.NoError(t, err)
	assert.Contains(t, string(buf[:n]), "ERROR:")
}
