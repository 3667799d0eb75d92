// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package lease

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"testing"

	"golang.org/x/sys/unix"
)

func TestStoreCreateMakesPrivateFIFO(t *testing.T) {
	store := NewStore(t.TempDir())

	path, err := store.Create("build-123")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if path != filepath.Join(store.Dir(), "build-123") {
		t.Errorf("path = %q", path)
	}

	info, err := os.Lstat(path)
	if err != nil {
		t.Fatalf("Lstat: %v", err)
	}
	if info.Mode()&fs.ModeNamedPipe == 0 {
		t.Errorf("mode = %v, want named pipe", info.Mode())
	}
	if perm := info.Mode().Perm(); perm&0o077 != 0 {
		t.Errorf("permissions = %v, want no group or other access", perm)
	}
}

func TestStoreCreateExistingFails(t *testing.T) {
	store := NewStore(t.TempDir())
	if _, err := store.Create("dup"); err != nil {
		t.Fatalf("first Create: %v", err)
	}

	_, err := store.Create("dup")
	var creationErr *ResourceCreationError
	if !errors.As(err, &creationErr) {
		t.Fatalf("error = %v, want *ResourceCreationError", err)
	}
	if !errors.Is(err, unix.EEXIST) {
		t.Errorf("error = %v, want EEXIST", err)
	}
}

func TestStoreRemoveIsIdempotent(t *testing.T) {
	store := NewStore(t.TempDir())
	if _, err := store.Create("gone"); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if err := store.Remove("gone"); err != nil {
		t.Fatalf("first Remove: %v", err)
	}
	if err := store.Remove("gone"); err != nil {
		t.Errorf("second Remove: %v", err)
	}
}

func TestStoreListReturnsOnlyFIFOs(t *testing.T) {
	store := NewStore(t.TempDir())
	for _, id := range []string{"tmp-b", "tmp-a"} {
		if _, err := store.Create(id); err != nil {
			t.Fatalf("Create(%s): %v", id, err)
		}
	}
	if err := os.WriteFile(store.Path("notes.txt"), []byte("x"), 0o600); err != nil {
		t.Fatal(err)
	}
	if err := os.Mkdir(store.Path("subdir"), 0o700); err != nil {
		t.Fatal(err)
	}

	entries, skipped, err := store.List()
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(entries) != 2 || entries[0].ID != "tmp-a" || entries[1].ID != "tmp-b" {
		t.Errorf("entries = %+v, want tmp-a and tmp-b in order", entries)
	}
	if entries[0].Modified.IsZero() {
		t.Error("entry modification time not populated")
	}
	if len(skipped) != 2 {
		t.Errorf("skipped = %v, want two entries", skipped)
	}
}

func TestStoreListMissingDirectory(t *testing.T) {
	store := NewStore(filepath.Join(t.TempDir(), "absent"))

	_, _, err := store.List()
	var scanErr *RecoveryScanError
	if !errors.As(err, &scanErr) {
		t.Fatalf("error = %v, want *RecoveryScanError", err)
	}
	if !errors.Is(err, fs.ErrNotExist) {
		t.Errorf("error = %v, want ErrNotExist", err)
	}
}
