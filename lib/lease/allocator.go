// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package lease

import (
	"errors"
	"io/fs"
	"math/rand/v2"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// allocateAttempts bounds the retries when a generated name collides
// with an existing entry.
const allocateAttempts = 10000

// Allocator creates uniquely named directories under a root.
type Allocator struct {
	root string
}

// NewAllocator returns an Allocator for root. The root must already
// exist.
func NewAllocator(root string) *Allocator {
	return &Allocator{root: root}
}

// Root returns the directory leases are allocated under.
func (a *Allocator) Root() string { return a.root }

// Path returns the directory path for a lease ID.
func (a *Allocator) Path(id string) string {
	return filepath.Join(a.root, id)
}

// Allocate creates root/<prefix><random><suffix> with mode 0700 and
// returns its absolute path. The prefix and suffix are used literally,
// including any '*'.
func (a *Allocator) Allocate(prefix, suffix string) (string, error) {
	if strings.ContainsRune(prefix, os.PathSeparator) || strings.ContainsRune(suffix, os.PathSeparator) {
		return "", &ResourceCreationError{
			Op:   "mkdir",
			Path: filepath.Join(a.root, prefix+"*"+suffix),
			Err:  errors.New("prefix and suffix must not contain a path separator"),
		}
	}

	var err error
	for range allocateAttempts {
		path := filepath.Join(a.root, prefix+strconv.FormatUint(uint64(rand.Uint32()), 10)+suffix)
		err = os.Mkdir(path, 0o700)
		if err == nil {
			return path, nil
		}
		if !errors.Is(err, fs.ErrExist) {
			return "", &ResourceCreationError{Op: "mkdir", Path: path, Err: err}
		}
	}
	return "", &ResourceCreationError{Op: "mkdir", Path: filepath.Join(a.root, prefix+"*"+suffix), Err: err}
}

// Remove deletes path and everything under it. A missing path is not
// an error.
func (a *Allocator) Remove(path string) error {
	return os.RemoveAll(path)
}
