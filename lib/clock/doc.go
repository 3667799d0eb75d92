// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package clock provides an injectable wall clock.
//
// Components that timestamp things take a Clock instead of calling
// time.Now directly. Production code passes Real(); tests pass a
// FakeClock and move it explicitly:
//
//	c := clock.Fake(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
//	manager, _ := lease.NewManager(lease.Config{Clock: c, ...})
//	c.Advance(time.Hour)
//
// Blocking waits in this module are driven by descriptors and
// channels, not timers, so only Now and Since are abstracted.
package clock
