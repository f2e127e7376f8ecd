// Copyright (C) 2026 Discoveryd Contributors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package index

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"

	"github.com/dgraph-io/badger/v4"
	"github.com/pkg/errors"

	"github.com/discoveryd/discoveryd/internal/fingerprint"
)

// BadgerStore mirrors the Incremental Index's fingerprint map to an
// embedded BadgerDB database so fingerprints survive a daemon restart or
// a later non-watching `--incremental` scan. Symbols are not persisted,
// so the first full scan of each process still re-parses every file; the
// stored fingerprints only decide which paths that scan reports as gone.
// Value-log GC is never run: fingerprint records are small and short-lived
// relative to badger's compaction economics, so there is nothing here
// worth collecting continuously.
type BadgerStore struct {
	db *badger.DB
}

var fingerprintKeyPrefix = []byte("fp:")

// OpenBadgerStore opens (creating if absent) a BadgerDB database rooted at
// dir for fingerprint persistence.
func OpenBadgerStore(dir string, logger *slog.Logger) (*BadgerStore, error) {
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, errors.Wrap(err, "creating fingerprint store directory")
	}
	opts := badger.DefaultOptions(dir).WithSyncWrites(true)
	if logger != nil {
		opts = opts.WithLogger(&slogAdapter{logger: logger})
	} else {
		opts = opts.WithLogger(nil)
	}
	db, err := badger.Open(opts)
	if err != nil {
		return nil, errors.Wrap(err, "opening fingerprint store")
	}
	return &BadgerStore{db: db}, nil
}

// Load reads every fingerprint record back into a map.
func (s *BadgerStore) Load() (map[string]fingerprint.FileFingerprint, error) {
	out := make(map[string]fingerprint.FileFingerprint)
	err := s.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()
		for it.Seek(fingerprintKeyPrefix); it.ValidForPrefix(fingerprintKeyPrefix); it.Next() {
			item := it.Item()
			var fp fingerprint.FileFingerprint
			err := item.Value(func(val []byte) error {
				return json.Unmarshal(val, &fp)
			})
			if err != nil {
				return err
			}
			out[fp.Path] = fp
		}
		return nil
	})
	if err != nil {
		return nil, errors.Wrap(err, "loading fingerprints")
	}
	return out, nil
}

// Save replaces the stored fingerprint set with the given map through one
// badger WriteBatch. A WriteBatch commits in as many transactions as its
// size needs, so a crash mid-write can leave a mix of the prior and the
// new set.
func (s *BadgerStore) Save(fps map[string]fingerprint.FileFingerprint) error {
	wb := s.db.NewWriteBatch()
	defer wb.Cancel()

	err := s.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()
		for it.Seek(fingerprintKeyPrefix); it.ValidForPrefix(fingerprintKeyPrefix); it.Next() {
			key := append([]byte{}, it.Item().Key()...)
			path := string(key[len(fingerprintKeyPrefix):])
			if _, stillPresent := fps[path]; !stillPresent {
				if err := wb.Delete(key); err != nil {
					return err
				}
			}
		}
		return nil
	})
	if err != nil {
		return errors.Wrap(err, "pruning stale fingerprint keys")
	}

	for path, fp := range fps {
		data, err := json.Marshal(fp)
		if err != nil {
			return errors.Wrap(err, "encoding fingerprint")
		}
		if err := wb.Set(append(append([]byte{}, fingerprintKeyPrefix...), path...), data); err != nil {
			return err
		}
	}
	if err := wb.Flush(); err != nil {
		return errors.Wrap(err, "flushing fingerprint batch")
	}
	return nil
}

// Close closes the underlying database.
func (s *BadgerStore) Close() error {
	return s.db.Close()
}

type slogAdapter struct {
	logger *slog.Logger
}

func (l *slogAdapter) Errorf(format string, args ...interface{}) {
	l.logger.Error(fmt.Sprintf(format, args...))
}
func (l *slogAdapter) Warningf(format string, args ...interface{}) {
	l.logger.Warn(fmt.Sprintf(format, args...))
}
func (l *slogAdapter) Infof(format string, args ...interface{}) {
	l.logger.Info(fmt.Sprintf(format, args...))
}
func (l *slogAdapter) Debugf(format string, args ...interface{}) {
	l.logger.Debug(fmt.Sprintf(format, args...))
}
