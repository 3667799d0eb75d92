// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package cli is the command tree behind the dirlease client: pflag
// parsing per command, help output, typo suggestions, exit codes, and
// the CLI's logger and JSON output helpers.
package cli
