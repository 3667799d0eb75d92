// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package lease

import (
	"errors"
	"fmt"
)

// ErrStopped is returned by requests made after [Manager.Run] has
// returned.
var ErrStopped = errors.New("lease manager stopped")

// ResourceCreationError reports a failure to create the directory or
// sentinel of a new lease, or to open a handle to either. Anything
// already created for the lease has been removed by the time the
// error is returned.
type ResourceCreationError struct {
	Op   string
	Path string
	Err  error
}

func (e *ResourceCreationError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Op, e.Path, e.Err)
}

func (e *ResourceCreationError) Unwrap() error { return e.Err }

// WatchRegistrationError reports a failure to arm the closure watch on
// a sentinel.
type WatchRegistrationError struct {
	Path string
	Err  error
}

func (e *WatchRegistrationError) Error() string {
	return fmt.Sprintf("watching sentinel %s: %v", e.Path, e.Err)
}

func (e *WatchRegistrationError) Unwrap() error { return e.Err }

// ReclaimError reports a failed removal during reclamation. It is
// logged, never returned to a client.
type ReclaimError struct {
	ID   string
	Op   string
	Path string
	Err  error
}

func (e *ReclaimError) Error() string {
	return fmt.Sprintf("reclaiming lease %s: %s %s: %v", e.ID, e.Op, e.Path, e.Err)
}

func (e *ReclaimError) Unwrap() error { return e.Err }

// RecoveryScanError reports that the state directory could not be
// listed at startup.
type RecoveryScanError struct {
	Dir string
	Err error
}

func (e *RecoveryScanError) Error() string {
	return fmt.Sprintf("scanning lease state directory %s: %v", e.Dir, e.Err)
}

func (e *RecoveryScanError) Unwrap() error { return e.Err }
