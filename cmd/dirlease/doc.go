// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// dirlease is the client for dirlease-daemon.
//
// The main entry point is "dirlease run", which requests a lease and
// execs a command holding it:
//
//	dirlease run --prefix build- -- sh -c 'cd /proc/self/fd/$DIRLEASE_FD && make'
//	dirlease run --placeholder @FD@ -- tool --workdir-fd @FD@
//
// The child inherits two descriptors: the leased directory and the
// write end of the lease's sentinel. It needs neither to be closed
// explicitly; when the child and everything it forked have exited, the
// daemon deletes the directory.
package main
