// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// dirlease-daemon leases ephemeral directories to local processes.
//
// Clients connect to a Unix socket and send a create-lease request.
// The daemon creates a directory under the configured root and a FIFO
// of the same name in its state directory, then passes back two open
// descriptors: the directory and the FIFO's write end. When the last
// copy of that write end closes, however the holder exits, the daemon
// deletes the directory and the FIFO.
//
// Leases survive a daemon restart. On startup every FIFO in the state
// directory is re-armed; holders that exited while the daemon was down
// are reclaimed immediately.
//
// Usage:
//
//	dirlease-daemon [--config FILE] [--root DIR] [--state-dir DIR]
//	                [--run-dir DIR] [--socket PATH]
//	                [--default-prefix PREFIX] [--log-level LEVEL]
//
// Flags override the config file, which overrides the defaults. The
// config file is --config, else $DIRLEASE_CONFIG, else none.
package main
