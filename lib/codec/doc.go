// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package codec provides the shared CBOR encoding configuration for
// the dirlease socket protocol.
//
// Every message between dirlease-daemon and its clients is CBOR. JSON
// appears only at the CLI edge (dirlease list --json). Keeping the
// encoder and decoder modes in one place means the daemon and every
// client produce identical bytes for the same logical value.
//
// For buffer-oriented operations:
//
//	data, err := codec.Marshal(value)
//	err = codec.Unmarshal(data, &value)
//
// For stream-oriented operations (sockets):
//
//	encoder := codec.NewEncoder(conn)
//	decoder := codec.NewDecoder(conn)
//
// Types that only ever travel over the socket use `cbor` struct tags.
// Types that are also printed by the CLI as JSON use `json` tags, which
// fxamacker/cbor reads as a fallback. Never put both tags on one field.
package codec
