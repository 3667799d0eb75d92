// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package service provides the Unix socket request/response layer used
// by dirlease-daemon and its clients.
//
// The protocol is one CBOR request per connection. The client writes a
// CBOR map with an "action" field and any action-specific fields,
// half-closes, and reads a single [Response] envelope. The server then
// closes the connection.
//
// Handlers registered with [SocketServer.HandleFiles] may return open
// files alongside their result. The server sends those descriptors as
// one SCM_RIGHTS control message attached to the response bytes, sets
// the envelope's Files count, and closes its own copies once the write
// completes. [ServiceClient.CallFiles] receives them as *os.File values
// in the same order.
//
// # Authentication
//
// There is none. Access to the socket is controlled by filesystem
// permissions on the runtime directory. Callers that can connect can
// create leases.
package service
