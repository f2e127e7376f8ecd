// Copyright (C) 2026 Discoveryd Contributors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package cache

import (
	"os"
	"path/filepath"

	"github.com/google/uuid"
	"github.com/pkg/errors"
)

// FileStore holds the artifact entirely on disk, read back on every Get.
// For codebases heavy enough to reach this tier, keeping a second
// in-memory copy alongside the canonical file buys nothing but RSS. Every
// Publish writes through a uniquely-named temp file in the same
// directory and renames it over the canonical path, so a reader never
// observes a partially written artifact — grounded on the
// temp-file-then-rename discipline in the teacher's dag/checkpoint.go.
type FileStore struct {
	path string
	dir  string
}

// NewFileStore roots a FileStore at path, creating the parent directory
// if it is missing; the canonical file itself need not exist.
func NewFileStore(path string) (*FileStore, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, errors.Wrap(err, "creating cache store directory")
	}
	return &FileStore{path: path, dir: dir}, nil
}

func (s *FileStore) Get() []byte {
	data, err := os.ReadFile(s.path)
	if err != nil {
		return nil
	}
	return data
}

func (s *FileStore) Publish(artifact []byte) error {
	tmpName := filepath.Join(s.dir, ".cache-"+uuid.NewString()+".tmp")

	f, err := os.OpenFile(tmpName, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o640)
	if err != nil {
		return errors.Wrap(err, "creating temp artifact")
	}
	success := false
	defer func() {
		if !success {
			os.Remove(tmpName)
		}
	}()

	if _, err := f.Write(artifact); err != nil {
		f.Close()
		return errors.Wrap(err, "writing temp artifact")
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return errors.Wrap(err, "syncing temp artifact")
	}
	if err := f.Close(); err != nil {
		return errors.Wrap(err, "closing temp artifact")
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		return errors.Wrap(err, "promoting temp artifact")
	}
	success = true
	return nil
}

func (s *FileStore) Strategy() Strategy { return File }

func (s *FileStore) Close() error { return nil }
