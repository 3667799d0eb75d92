// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package leaseclient is the typed client for dirlease-daemon's socket.
//
// [Client.CreateLease] returns the leased directory's path together
// with the two descriptors the daemon passes back: an open handle on
// the directory and the write end of the lease's sentinel. The lease
// lasts until every copy of the sentinel handle is closed, so callers
// that exec a child typically clear close-on-exec on it (see
// process.Inherit) and let the child's exit release it.
package leaseclient
