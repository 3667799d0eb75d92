// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package process provides binary entrypoint helpers for the dirlease
// binaries:
//
//   - Fatal error reporting to stderr when the logger may not be
//     initialized (pre-logger).
//   - Replacing the current process image with a child command while
//     deliberately passing selected descriptors through exec(2).
//
// Descriptors received over a Unix socket arrive close-on-exec. A
// leased directory handle and its sentinel must survive into the child
// command, so [Inherit] clears the flag on exactly the descriptors the
// caller names and nothing else.
package process
