// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package leaseclient

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/bureau-foundation/dirlease/lib/ipc"
	"github.com/bureau-foundation/dirlease/lib/service"
)

// Lease is a granted lease as seen by the client. The caller owns
// both files.
type Lease struct {
	ID   string
	Path string

	// Directory is a read-only handle on the leased directory.
	Directory *os.File

	// Sentinel is the write end of the lease's FIFO. The daemon
	// reclaims the directory when the last copy of it is closed.
	Sentinel *os.File
}

// Close releases both handles. Closing the sentinel ends the lease
// unless another process still holds a copy.
func (l *Lease) Close() error {
	return errors.Join(l.Directory.Close(), l.Sentinel.Close())
}

// Client talks to dirlease-daemon.
type Client struct {
	service *service.ServiceClient
}

// New returns a Client for the daemon listening on socketPath. No
// connection is made until the first call.
func New(socketPath string) *Client {
	return &Client{service: service.NewServiceClient(socketPath)}
}

// SocketPath returns the daemon socket this client targets.
func (c *Client) SocketPath() string {
	return c.service.SocketPath()
}

// CreateLease asks the daemon for a new directory. An empty prefix
// selects the daemon's default. Daemon-side failures are returned as
// *service.ServiceError.
func (c *Client) CreateLease(ctx context.Context, prefix, suffix string) (*Lease, error) {
	fields := make(map[string]any, 2)
	if prefix != "" {
		fields["prefix"] = prefix
	}
	if suffix != "" {
		fields["suffix"] = suffix
	}

	var response ipc.CreateLeaseResponse
	files, err := c.service.CallFiles(ctx, ipc.ActionCreateLease, fields, &response)
	if err != nil {
		return nil, err
	}
	if len(files) != ipc.CreateLeaseFiles {
		for _, file := range files {
			file.Close()
		}
		return nil, fmt.Errorf("create-lease returned %d descriptors, want %d", len(files), ipc.CreateLeaseFiles)
	}
	if response.ID == "" || response.Path == "" {
		for _, file := range files {
			file.Close()
		}
		return nil, errors.New("create-lease response is missing the lease id or path")
	}

	return &Lease{
		ID:        response.ID,
		Path:      response.Path,
		Directory: files[ipc.DirectoryFileIndex],
		Sentinel:  files[ipc.SentinelFileIndex],
	}, nil
}

// List returns the daemon's outstanding leases, oldest first.
func (c *Client) List(ctx context.Context) ([]ipc.LeaseEntry, error) {
	var response ipc.ListLeasesResponse
	if err := c.service.Call(ctx, ipc.ActionListLeases, nil, &response); err != nil {
		return nil, err
	}
	return response.Leases, nil
}
