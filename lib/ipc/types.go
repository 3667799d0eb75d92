// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package ipc

import "time"

// Action names understood by dirlease-daemon.
const (
	// ActionCreateLease allocates a directory and sentinel. The
	// response carries [CreateLeaseResponse] data and two descriptors:
	// the directory handle, then the sentinel write handle.
	ActionCreateLease = "create-lease"

	// ActionListLeases reports every lease that has not been reclaimed.
	ActionListLeases = "list-leases"
)

// Descriptor positions in a create-lease response.
const (
	DirectoryFileIndex = 0
	SentinelFileIndex  = 1
	CreateLeaseFiles   = 2
)

// CreateLeaseRequest is the action-specific body of a create-lease
// request. An empty Prefix selects the daemon's default prefix; an
// empty Suffix means no suffix.
type CreateLeaseRequest struct {
	Action string `cbor:"action"`
	Prefix string `cbor:"prefix,omitempty"`
	Suffix string `cbor:"suffix,omitempty"`
}

// CreateLeaseResponse identifies the new lease. The handles themselves
// travel out of band as SCM_RIGHTS.
type CreateLeaseResponse struct {
	// ID is the lease identifier: the directory's base name and the
	// sentinel's file name in the daemon's state directory.
	ID string `cbor:"id"`

	// Path is the absolute path of the leased directory, for callers
	// that prefer paths over the passed directory handle.
	Path string `cbor:"path"`
}

// LeaseEntry describes one outstanding lease. Uses json tags because
// `dirlease list --json` prints it directly.
type LeaseEntry struct {
	ID        string    `json:"id"`
	Path      string    `json:"path"`
	Sentinel  string    `json:"sentinel"`
	Created   time.Time `json:"created"`
	Recovered bool      `json:"recovered,omitempty"`
}

// ListLeasesResponse is the data of a list-leases response.
type ListLeasesResponse struct {
	Leases []LeaseEntry `json:"leases"`
}
