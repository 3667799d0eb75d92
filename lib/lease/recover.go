// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package lease

import (
	"errors"
	"io/fs"
	"os"
)

// Recover rebuilds the lease index from the state directory and arms a
// watch on every sentinel found. It must be called before Run.
//
// Nothing is created and no handles are handed out: a recovered lease
// keeps whatever holder it had before the restart. Sentinels whose
// holders exited while the service was down report hang-up on the
// first pass of Run and are reclaimed then.
//
// An unreadable state directory is a *RecoveryScanError. Entries that
// are not FIFOs, and sentinels whose watch cannot be armed, are logged
// and skipped.
func (m *Manager) Recover() error {
	if m.started.Load() {
		return errors.New("lease manager: Recover called after Run")
	}

	entries, skipped, err := m.store.List()
	if err != nil {
		return err
	}
	for _, name := range skipped {
		m.logger.Warn("ignoring non-FIFO entry in lease state directory",
			"path", m.store.Path(name),
		)
	}

	recovered := 0
	for _, entry := range entries {
		if _, exists := m.leases[entry.ID]; exists {
			continue
		}

		directory := m.allocator.Path(entry.ID)
		if _, err := os.Stat(directory); errors.Is(err, fs.ErrNotExist) {
			m.logger.Warn("recovered lease has no directory",
				"lease", entry.ID,
				"path", directory,
			)
		}

		if err := m.watches.Register(entry.ID, entry.Path); err != nil {
			m.logger.Error("cannot re-arm lease watch",
				"lease", entry.ID,
				"error", err,
			)
			continue
		}

		m.leases[entry.ID] = &Lease{
			ID:        entry.ID,
			Directory: directory,
			Sentinel:  entry.Path,
			State:     StateActive,
			Created:   entry.Modified,
			Recovered: true,
		}
		recovered++
	}

	m.logger.Info("lease recovery complete",
		"state_dir", m.store.Dir(),
		"recovered", recovered,
		"skipped", len(skipped),
	)
	return nil
}
