// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package lease manages the lifecycle of leased directories.
//
// A lease pairs a freshly created directory under a root with a
// sentinel FIFO in a state directory. The holder keeps the FIFO's
// write end open for as long as it needs the directory; when the last
// write descriptor closes (normal exit, crash, or SIGKILL), the
// [Manager] observes hang-up on its read end and deletes both the
// directory and the FIFO.
//
// The state directory is the only durable record. After a restart,
// [Manager.Recover] re-arms a watch on every FIFO it finds, so leases
// whose holders are still running survive and leases whose holders
// exited while the service was down are reclaimed on the first pass of
// [Manager.Run].
//
// All lease state is owned by the goroutine running [Manager.Run].
// [Manager.CreateLease] and [Manager.List] are messages to that
// goroutine and are safe to call concurrently.
package lease
