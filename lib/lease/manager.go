// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package lease

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"sync/atomic"
	"time"

	"golang.org/x/sys/unix"

	"github.com/bureau-foundation/dirlease/lib/clock"
)

// DefaultPrefix names directories when neither the client nor the
// configuration supplies a prefix.
const DefaultPrefix = "tmp"

// State is the lifecycle position of a lease.
type State int

const (
	// StateActive leases have an armed watch and an existing directory.
	StateActive State = iota + 1

	// StateReclaiming leases are having their directory and sentinel
	// removed.
	StateReclaiming

	// StateReclaimed is terminal. The lease is no longer indexed.
	StateReclaimed
)

func (s State) String() string {
	switch s {
	case StateActive:
		return "active"
	case StateReclaiming:
		return "reclaiming"
	case StateReclaimed:
		return "reclaimed"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Lease describes one outstanding (or just reclaimed) lease.
type Lease struct {
	// ID is the directory's base name and the sentinel's file name.
	ID string

	// Directory is the absolute path of the leased directory.
	Directory string

	// Sentinel is the absolute path of the lease's FIFO.
	Sentinel string

	State State

	// Created is when the lease was granted. Recovered leases report
	// the FIFO's modification time.
	Created time.Time

	// Recovered is true for leases re-armed by [Manager.Recover].
	Recovered bool
}

// Grant is a freshly created lease with open handles to its directory
// and the write end of its sentinel. The caller owns both files; the
// lease is reclaimed once every copy of Sentinel is closed.
type Grant struct {
	ID   string
	Path string

	// Directory is opened O_RDONLY|O_DIRECTORY.
	Directory *os.File

	// Sentinel is the FIFO write end, opened O_WRONLY|O_NONBLOCK.
	Sentinel *os.File
}

// Close closes both handles.
func (g *Grant) Close() error {
	return errors.Join(g.Directory.Close(), g.Sentinel.Close())
}

// Config configures a [Manager].
type Config struct {
	// Root is the directory leased directories are created under.
	Root string

	// StateDir holds one FIFO per lease. It must persist across
	// restarts for recovery and must differ from Root.
	StateDir string

	// DefaultPrefix replaces an empty client prefix. Empty means
	// [DefaultPrefix].
	DefaultPrefix string

	Logger *slog.Logger

	// Clock stamps lease creation. Nil means clock.Real().
	Clock clock.Clock

	// OnReclaim, when set, is called from the Run goroutine after each
	// lease has been reclaimed.
	OnReclaim func(Lease)
}

// watcher is the subset of [Dispatcher] the Manager drives.
type watcher interface {
	Register(id, sentinel string) error
	Deregister(id string) error
	Wait() ([]Event, error)
	Wake()
	Close() error
}

// request is a unit of work executed on the Run goroutine.
type request struct {
	ctx   context.Context
	run   func() (any, error)
	reply chan result

	// discard releases a result nobody is waiting for.
	discard func(any)
}

type result struct {
	value any
	err   error
}

// Manager owns every lease. Its state is confined to the goroutine
// running [Manager.Run]; other goroutines reach it through
// CreateLease and List.
type Manager struct {
	allocator     *Allocator
	store         *Store
	watches       watcher
	defaultPrefix string
	logger        *slog.Logger
	clock         clock.Clock
	onReclaim     func(Lease)

	leases map[string]*Lease

	requests chan request
	done     chan struct{}
	started  atomic.Bool
}

// NewManager validates config and returns a Manager ready for Recover
// and Run. Both directories must already exist.
func NewManager(config Config) (*Manager, error) {
	if config.Root == "" {
		return nil, errors.New("lease manager: root directory is required")
	}
	if config.StateDir == "" {
		return nil, errors.New("lease manager: state directory is required")
	}
	if filepath.Clean(config.Root) == filepath.Clean(config.StateDir) {
		return nil, fmt.Errorf("lease manager: root and state directory must differ (both %s)", config.Root)
	}

	prefix := config.DefaultPrefix
	if prefix == "" {
		prefix = DefaultPrefix
	}
	logger := config.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	wallClock := config.Clock
	if wallClock == nil {
		wallClock = clock.Real()
	}

	dispatcher, err := NewDispatcher()
	if err != nil {
		return nil, fmt.Errorf("lease manager: %w", err)
	}

	return &Manager{
		allocator:     NewAllocator(config.Root),
		store:         NewStore(config.StateDir),
		watches:       dispatcher,
		defaultPrefix: prefix,
		logger:        logger,
		clock:         wallClock,
		onReclaim:     config.OnReclaim,
		leases:        make(map[string]*Lease),
		requests:      make(chan request, 64),
		done:          make(chan struct{}),
	}, nil
}

// CreateLease allocates a directory and sentinel pair and returns open
// handles to both. An empty prefix means the configured default; an
// empty suffix means none.
//
// The watch on the sentinel is armed before the write end is opened,
// so a holder that dies at any point after the grant leaves is always
// observed. On failure every resource created for the lease has been
// released and the error is a *ResourceCreationError or
// *WatchRegistrationError.
//
// If ctx ends after the grant was produced but before it could be
// returned, its handles are closed and the lease is reclaimed by the
// normal path.
func (m *Manager) CreateLease(ctx context.Context, prefix, suffix string) (*Grant, error) {
	value, err := m.submit(ctx, request{
		run: func() (any, error) { return m.createLease(prefix, suffix) },
		discard: func(value any) {
			if grant, ok := value.(*Grant); ok && grant != nil {
				grant.Close()
			}
		},
	})
	if err != nil {
		return nil, err
	}
	return value.(*Grant), nil
}

// List returns a snapshot of every active lease, oldest first.
func (m *Manager) List(ctx context.Context) ([]Lease, error) {
	value, err := m.submit(ctx, request{
		run: func() (any, error) { return m.list(), nil },
	})
	if err != nil {
		return nil, err
	}
	return value.([]Lease), nil
}

// Done is closed when Run has returned.
func (m *Manager) Done() <-chan struct{} { return m.done }

// Run is the Manager's event loop. It executes queued requests and
// reclaims leases whose sentinels close, until ctx is cancelled. On
// return every watch descriptor has been closed; directories and
// sentinels are left in place for the next [Manager.Recover].
//
// Run may be called once.
func (m *Manager) Run(ctx context.Context) error {
	if !m.started.CompareAndSwap(false, true) {
		return errors.New("lease manager: Run called twice")
	}
	defer close(m.done)
	defer m.shutdown()

	stopWaking := context.AfterFunc(ctx, m.watches.Wake)
	defer stopWaking()

	m.logger.Info("lease manager running", "leases", len(m.leases))

	for {
		if ctx.Err() != nil {
			return nil
		}
		m.serveRequests()

		events, err := m.watches.Wait()
		if err != nil {
			return fmt.Errorf("lease manager: %w", err)
		}
		for _, event := range events {
			m.handleEvent(event)
		}
	}
}

// submit queues req for the Run goroutine and waits for its result.
func (m *Manager) submit(ctx context.Context, req request) (any, error) {
	req.ctx = ctx
	req.reply = make(chan result, 1)

	select {
	case <-m.done:
		return nil, ErrStopped
	case <-ctx.Done():
		return nil, ctx.Err()
	case m.requests <- req:
	}
	m.watches.Wake()

	select {
	case reply := <-req.reply:
		return reply.value, reply.err
	case <-m.done:
		select {
		case reply := <-req.reply:
			return reply.value, reply.err
		default:
			return nil, ErrStopped
		}
	case <-ctx.Done():
		go m.abandon(req)
		return nil, ctx.Err()
	}
}

// abandon waits for the result of a request whose caller gave up and
// releases it.
func (m *Manager) abandon(req request) {
	var reply result
	select {
	case reply = <-req.reply:
	case <-m.done:
		select {
		case reply = <-req.reply:
		default:
			return
		}
	}
	if reply.err == nil && req.discard != nil {
		req.discard(reply.value)
	}
}

// serveRequests runs every queued request without blocking.
func (m *Manager) serveRequests() {
	for {
		select {
		case req := <-m.requests:
			if err := req.ctx.Err(); err != nil {
				req.reply <- result{err: err}
				continue
			}
			value, err := req.run()
			req.reply <- result{value: value, err: err}
		default:
			return
		}
	}
}

// shutdown rejects queued requests and releases every watch.
func (m *Manager) shutdown() {
	for drained := false; !drained; {
		select {
		case req := <-m.requests:
			req.reply <- result{err: ErrStopped}
		default:
			drained = true
		}
	}
	if err := m.watches.Close(); err != nil {
		m.logger.Warn("closing sentinel watches", "error", err)
	}
	m.logger.Info("lease manager stopped", "leases", len(m.leases))
}

func (m *Manager) handleEvent(event Event) {
	if event.Data > 0 {
		m.logger.Warn("discarded unexpected data on lease sentinel",
			"lease", event.ID,
			"sentinel", event.Sentinel,
			"bytes", event.Data,
		)
	}
	if event.Closed {
		m.reclaim(event.ID)
	}
}

// createLease runs on the Run goroutine.
func (m *Manager) createLease(prefix, suffix string) (grant *Grant, err error) {
	if prefix == "" {
		prefix = m.defaultPrefix
	}

	var releases releaseStack
	defer func() {
		if err != nil {
			releases.unwind(m.logger)
		}
	}()

	directory, err := m.allocator.Allocate(prefix, suffix)
	if err != nil {
		return nil, err
	}
	releases.push("remove directory", directory, func() error { return m.allocator.Remove(directory) })

	id := filepath.Base(directory)
	sentinel, err := m.store.Create(id)
	if err != nil {
		return nil, err
	}
	releases.push("remove sentinel", sentinel, func() error { return m.store.Remove(id) })

	if err := m.watches.Register(id, sentinel); err != nil {
		return nil, err
	}
	releases.push("disarm watch", sentinel, func() error { return m.watches.Deregister(id) })

	directoryFile, err := openHandle(directory, unix.O_RDONLY|unix.O_DIRECTORY|unix.O_CLOEXEC)
	if err != nil {
		return nil, &ResourceCreationError{Op: "open directory", Path: directory, Err: err}
	}
	releases.push("close directory handle", directory, directoryFile.Close)

	sentinelFile, err := openHandle(sentinel, unix.O_WRONLY|unix.O_NONBLOCK|unix.O_CLOEXEC)
	if err != nil {
		return nil, &ResourceCreationError{Op: "open sentinel", Path: sentinel, Err: err}
	}

	m.leases[id] = &Lease{
		ID:        id,
		Directory: directory,
		Sentinel:  sentinel,
		State:     StateActive,
		Created:   m.clock.Now(),
	}
	m.logger.Info("lease granted", "lease", id, "path", directory)

	return &Grant{
		ID:        id,
		Path:      directory,
		Directory: directoryFile,
		Sentinel:  sentinelFile,
	}, nil
}

// reclaim removes a lease's directory and sentinel. It runs only in
// response to a closure event, and a lease is reclaimed at most once.
func (m *Manager) reclaim(id string) {
	lease, exists := m.leases[id]
	if !exists || lease.State != StateActive {
		return
	}
	lease.State = StateReclaiming

	if err := m.allocator.Remove(lease.Directory); err != nil {
		m.logger.Error("lease reclamation incomplete",
			"lease", id,
			"error", &ReclaimError{ID: id, Op: "remove directory", Path: lease.Directory, Err: err},
		)
	}
	if err := m.store.Remove(id); err != nil {
		m.logger.Error("lease reclamation incomplete",
			"lease", id,
			"error", &ReclaimError{ID: id, Op: "remove sentinel", Path: lease.Sentinel, Err: err},
		)
	}

	lease.State = StateReclaimed
	delete(m.leases, id)
	m.logger.Info("lease reclaimed",
		"lease", id,
		"path", lease.Directory,
		"held", m.clock.Since(lease.Created).Round(time.Millisecond),
	)

	if m.onReclaim != nil {
		m.onReclaim(*lease)
	}
}

func (m *Manager) list() []Lease {
	leases := make([]Lease, 0, len(m.leases))
	for _, lease := range m.leases {
		leases = append(leases, *lease)
	}
	sort.Slice(leases, func(i, j int) bool {
		if !leases[i].Created.Equal(leases[j].Created) {
			return leases[i].Created.Before(leases[j].Created)
		}
		return leases[i].ID < leases[j].ID
	})
	return leases
}

// openHandle opens path with exactly the given flags. os.OpenFile would
// add its own flags.
func openHandle(path string, flags int) (*os.File, error) {
	fd, err := unix.Open(path, flags, 0)
	if err != nil {
		return nil, err
	}
	return os.NewFile(uintptr(fd), path), nil
}

// releaseStack undoes partially completed work in reverse order.
type releaseStack []release

type release struct {
	what string
	path string
	undo func() error
}

func (s *releaseStack) push(what, path string, undo func() error) {
	*s = append(*s, release{what: what, path: path, undo: undo})
}

// unwind runs every release, newest first. Failures are logged; the
// caller already has the error that triggered the rollback.
func (s *releaseStack) unwind(logger *slog.Logger) {
	for i := len(*s) - 1; i >= 0; i-- {
		r := (*s)[i]
		if err := r.undo(); err != nil {
			logger.Warn("lease rollback step failed", "step", r.what, "path", r.path, "error", err)
		}
	}
	*s = nil
}
