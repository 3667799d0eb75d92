// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/bureau-foundation/dirlease/lib/codec"
	"github.com/bureau-foundation/dirlease/lib/ipc"
	"github.com/bureau-foundation/dirlease/lib/lease"
	"github.com/bureau-foundation/dirlease/lib/service"
)

// leaser is the part of *lease.Manager the socket handlers use.
type leaser interface {
	CreateLease(ctx context.Context, prefix, suffix string) (*lease.Grant, error)
	List(ctx context.Context) ([]lease.Lease, error)
}

type handlers struct {
	leases leaser
	logger *slog.Logger
}

func registerHandlers(server *service.SocketServer, leases leaser, logger *slog.Logger) {
	h := &handlers{leases: leases, logger: logger}
	server.HandleFiles(ipc.ActionCreateLease, h.handleCreateLease)
	server.Handle(ipc.ActionListLeases, h.handleListLeases)
}

// handleCreateLease grants a lease and hands both descriptors to the
// socket server, which closes its copies once they are sent. If the
// client has gone away by then, that close is the last writer and the
// lease is reclaimed.
func (h *handlers) handleCreateLease(ctx context.Context, raw []byte) (any, []*os.File, error) {
	var request ipc.CreateLeaseRequest
	if err := codec.Unmarshal(raw, &request); err != nil {
		return nil, nil, fmt.Errorf("invalid create-lease request: %w", err)
	}

	grant, err := h.leases.CreateLease(ctx, request.Prefix, request.Suffix)
	if err != nil {
		h.logger.Warn("lease creation failed",
			"prefix", request.Prefix,
			"suffix", request.Suffix,
			"error", err,
		)
		return nil, nil, err
	}

	files := make([]*os.File, ipc.CreateLeaseFiles)
	files[ipc.DirectoryFileIndex] = grant.Directory
	files[ipc.SentinelFileIndex] = grant.Sentinel
	return ipc.CreateLeaseResponse{ID: grant.ID, Path: grant.Path}, files, nil
}

func (h *handlers) handleListLeases(ctx context.Context, raw []byte) (any, error) {
	leases, err := h.leases.List(ctx)
	if err != nil {
		return nil, err
	}

	entries := make([]ipc.LeaseEntry, len(leases))
	for i, held := range leases {
		entries[i] = ipc.LeaseEntry{
			ID:        held.ID,
			Path:      held.Directory,
			Sentinel:  held.Sentinel,
			Created:   held.Created,
			Recovered: held.Recovered,
		}
	}
	return ipc.ListLeasesResponse{Leases: entries}, nil
}
