// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package lease

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"time"

	"golang.org/x/sys/unix"
)

// sentinelMode is the permission set for new FIFOs. Only the service
// user may open them.
const sentinelMode = 0o600

// Store keeps one FIFO per lease in a flat directory, named by lease
// ID. Its contents are the durable record of outstanding leases.
type Store struct {
	dir string
}

// StoreEntry is one FIFO found by [Store.List].
type StoreEntry struct {
	ID       string
	Path     string
	Modified time.Time
}

// NewStore returns a Store rooted at dir. The directory is not created.
func NewStore(dir string) *Store {
	return &Store{dir: dir}
}

// Dir returns the state directory.
func (s *Store) Dir() string { return s.dir }

// Path returns the FIFO path for a lease ID.
func (s *Store) Path(id string) string {
	return filepath.Join(s.dir, id)
}

// Create makes the FIFO for id and returns its path. An existing entry
// of any kind is an error.
func (s *Store) Create(id string) (string, error) {
	path := s.Path(id)
	if err := unix.Mkfifo(path, sentinelMode); err != nil {
		return "", &ResourceCreationError{Op: "mkfifo", Path: path, Err: err}
	}
	return path, nil
}

// Remove unlinks the FIFO for id. A missing FIFO is not an error.
func (s *Store) Remove(id string) error {
	err := os.Remove(s.Path(id))
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return nil
}

// List returns every FIFO in the state directory sorted by ID, and the
// names of any other entries it skipped.
func (s *Store) List() (entries []StoreEntry, skipped []string, err error) {
	dirEntries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, nil, &RecoveryScanError{Dir: s.dir, Err: err}
	}

	for _, dirEntry := range dirEntries {
		if dirEntry.Type()&fs.ModeNamedPipe == 0 {
			skipped = append(skipped, dirEntry.Name())
			continue
		}
		entry := StoreEntry{
			ID:   dirEntry.Name(),
			Path: s.Path(dirEntry.Name()),
		}
		// The FIFO may vanish between ReadDir and Info; keep it with a
		// zero time rather than dropping a live lease.
		if info, err := dirEntry.Info(); err == nil {
			entry.Modified = info.ModTime()
		}
		entries = append(entries, entry)
	}

	sort.Slice(entries, func(i, j int) bool { return entries[i].ID < entries[j].ID })
	return entries, skipped, nil
}
