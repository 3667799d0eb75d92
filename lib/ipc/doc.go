// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package ipc defines the CBOR-encoded message types for the
// dirlease client↔daemon Unix socket protocol. Both cmd/dirlease-daemon
// and lib/leaseclient import this package so the wire types are
// defined once rather than mirrored.
package ipc
