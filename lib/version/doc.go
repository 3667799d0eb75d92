// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package version reports which build of dirlease is running.
//
// [GitCommit], [GitDirty], and [BuildTime] are stamped with -ldflags -X
// by release builds and read "unknown" otherwise. [Info] is the one-line
// form printed by "dirlease version" and logged at daemon startup;
// [Full] adds the Go toolchain and platform for "dirlease-daemon
// --version".
package version
