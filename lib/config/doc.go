// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package config provides configuration loading for dirlease-daemon and
// the dirlease client.
//
// Configuration comes from a single YAML file named by the --config
// flag or the DIRLEASE_CONFIG environment variable. When neither is
// set, [Default] is used as-is. Command-line flags on the daemon are
// applied on top of whatever was loaded; environment variables never
// override file values, except through explicit ${VAR} references in
// path fields.
//
// The resulting [Config] is constructed once in main and passed by
// value or pointer to each component. No package reads configuration
// from globals.
package config
