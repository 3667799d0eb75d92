// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"os"
	"runtime"
	"sync"
	"syscall"
	"time"

	"golang.org/x/sys/unix"

	"github.com/bureau-foundation/dirlease/lib/codec"
)

// ActionFunc processes a socket request for a specific action. The raw
// parameter is the full CBOR request (including the "action" field).
// The handler decodes action-specific fields from this raw message.
//
// Return a value to include in the success response, or an error for
// a failure response. If the returned value is nil, the response
// contains only {ok: true}.
type ActionFunc func(ctx context.Context, raw []byte) (any, error)

// FileActionFunc is an ActionFunc that also hands open files to the
// caller. Ownership of the returned files passes to the server, which
// closes them after the response is written, on success and failure
// alike.
type FileActionFunc func(ctx context.Context, raw []byte) (any, []*os.File, error)

// Response is the wire-format envelope for all socket protocol
// responses.
type Response struct {
	OK    bool             `cbor:"ok"`
	Error string           `cbor:"error,omitempty"`
	Data  codec.RawMessage `cbor:"data,omitempty"`

	// Files is the number of descriptors attached to this response as
	// SCM_RIGHTS ancillary data.
	Files int `cbor:"files,omitempty"`
}

// SocketServer serves a CBOR request-response protocol on a Unix
// socket. Each connection handles exactly one request-response cycle.
//
// Actions are registered with Handle or HandleFiles before calling
// Serve. Unknown actions receive an error response.
type SocketServer struct {
	socketPath string
	handlers   map[string]FileActionFunc
	logger     *slog.Logger

	// activeConnections tracks in-flight request handlers. Serve waits
	// for them before returning.
	activeConnections sync.WaitGroup
}

// NewSocketServer creates a server that will listen on socketPath.
func NewSocketServer(socketPath string, logger *slog.Logger) *SocketServer {
	return &SocketServer{
		socketPath: socketPath,
		handlers:   make(map[string]FileActionFunc),
		logger:     logger,
	}
}

// Handle registers a handler for the given action name. Panics if the
// action is already registered.
func (s *SocketServer) Handle(action string, handler ActionFunc) {
	s.HandleFiles(action, func(ctx context.Context, raw []byte) (any, []*os.File, error) {
		result, err := handler(ctx, raw)
		return result, nil, err
	})
}

// HandleFiles registers a handler that may return files to pass to the
// caller. Panics if the action is already registered.
func (s *SocketServer) HandleFiles(action string, handler FileActionFunc) {
	if _, exists := s.handlers[action]; exists {
		panic(fmt.Sprintf("service.SocketServer: duplicate handler for action %q", action))
	}
	s.handlers[action] = handler
}

// Serve starts accepting connections on the Unix socket and dispatches
// requests to registered action handlers. Blocks until ctx is
// cancelled, then stops accepting new connections and waits for active
// handlers to complete.
//
// Any existing socket file at the configured path is removed before
// listening. The socket file is removed on return.
func (s *SocketServer) Serve(ctx context.Context) error {
	if err := os.Remove(s.socketPath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("removing stale socket %s: %w", s.socketPath, err)
	}

	listener, err := net.Listen("unix", s.socketPath)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", s.socketPath, err)
	}
	defer func() {
		listener.Close()
		os.Remove(s.socketPath)
	}()

	// Unblock Accept when the context is cancelled.
	go func() {
		<-ctx.Done()
		listener.Close()
	}()

	s.logger.Info("socket server listening", "path", s.socketPath)

	for {
		conn, err := listener.Accept()
		if err != nil {
			if ctx.Err() != nil {
				break
			}
			if errors.Is(err, net.ErrClosed) {
				break
			}
			s.logger.Error("accept failed", "error", err)
			continue
		}

		s.activeConnections.Add(1)
		go func() {
			defer s.activeConnections.Done()
			s.handleConnection(ctx, conn)
		}()
	}

	s.activeConnections.Wait()
	return nil
}

// readTimeout is how long we wait for the client to send its request.
const readTimeout = 30 * time.Second

// writeTimeout is how long we wait for the response to be written.
const writeTimeout = 10 * time.Second

// maxRequestSize bounds a single CBOR request. Lease requests are a
// few dozen bytes.
const maxRequestSize = 64 * 1024

// handleConnection processes one request-response cycle.
func (s *SocketServer) handleConnection(ctx context.Context, conn net.Conn) {
	defer conn.Close()

	conn.SetReadDeadline(time.Now().Add(readTimeout))

	var raw codec.RawMessage
	if err := codec.NewDecoder(io.LimitReader(conn, maxRequestSize)).Decode(&raw); err != nil {
		if errors.Is(err, io.EOF) {
			// Client connected but sent nothing.
			return
		}
		s.writeError(conn, fmt.Sprintf("invalid request: %v", err))
		return
	}

	var header struct {
		Action string `cbor:"action"`
	}
	if err := codec.Unmarshal(raw, &header); err != nil {
		s.writeError(conn, fmt.Sprintf("invalid request: %v", err))
		return
	}
	if header.Action == "" {
		s.writeError(conn, "missing required field: action")
		return
	}

	handler, exists := s.handlers[header.Action]
	if !exists {
		s.writeError(conn, fmt.Sprintf("unknown action %q", header.Action))
		return
	}

	result, files, err := handler(ctx, []byte(raw))
	defer closeFiles(files)
	if err != nil {
		s.logger.Debug("action failed",
			"action", header.Action,
			"error", err,
		)
		s.writeError(conn, err.Error())
		return
	}

	s.writeSuccess(conn, result, files)
}

// writeError sends a failure response: {ok: false, error: "..."}.
// Write failures are logged at debug level; the connection is closing
// regardless.
func (s *SocketServer) writeError(conn net.Conn, message string) {
	conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	if err := codec.NewEncoder(conn).Encode(Response{
		OK:    false,
		Error: message,
	}); err != nil {
		s.logger.Debug("failed to write error response", "error", err)
	}
}

// writeSuccess sends a success response, attaching files as SCM_RIGHTS
// when there are any.
func (s *SocketServer) writeSuccess(conn net.Conn, result any, files []*os.File) {
	conn.SetWriteDeadline(time.Now().Add(writeTimeout))

	response := Response{OK: true, Files: len(files)}

	if result != nil {
		data, err := codec.Marshal(result)
		if err != nil {
			s.writeError(conn, fmt.Sprintf("internal: marshaling response: %v", err))
			return
		}
		response.Data = data
	}

	if len(files) == 0 {
		if err := codec.NewEncoder(conn).Encode(response); err != nil {
			s.logger.Debug("failed to write success response", "error", err)
		}
		return
	}

	unixConn, ok := conn.(*net.UnixConn)
	if !ok {
		s.writeError(conn, "internal: descriptor passing requires a unix socket")
		return
	}

	payload, err := codec.Marshal(response)
	if err != nil {
		s.writeError(conn, fmt.Sprintf("internal: marshaling response: %v", err))
		return
	}

	if err := writeWithRights(unixConn, payload, files); err != nil {
		level := slog.LevelWarn
		if isClientGone(err) {
			level = slog.LevelDebug
		}
		s.logger.Log(context.Background(), level, "failed to pass descriptors", "files", len(files), "error", err)
	}
}

// isClientGone reports whether err means the peer closed its end
// before the response was written.
func isClientGone(err error) bool {
	if errors.Is(err, io.EOF) || errors.Is(err, net.ErrClosed) {
		return true
	}
	var errno syscall.Errno
	if errors.As(err, &errno) {
		return errno == syscall.EPIPE || errno == syscall.ECONNRESET
	}
	return false
}

// writeWithRights sends payload with the descriptors of files attached
// to its first byte. The rights travel with the first segment only; any
// short-write remainder is sent as plain data.
func writeWithRights(conn *net.UnixConn, payload []byte, files []*os.File) error {
	descriptors := make([]int, len(files))
	for i, file := range files {
		// File.Fd would force the descriptor into blocking mode, which
		// leaks into the receiver's copy of the open file description.
		rawConn, err := file.SyscallConn()
		if err != nil {
			return fmt.Errorf("descriptor for %s: %w", file.Name(), err)
		}
		if err := rawConn.Control(func(fd uintptr) { descriptors[i] = int(fd) }); err != nil {
			return fmt.Errorf("descriptor for %s: %w", file.Name(), err)
		}
	}

	written, _, err := conn.WriteMsgUnix(payload, unix.UnixRights(descriptors...), nil)
	runtime.KeepAlive(files)
	if err != nil {
		return err
	}
	if written < len(payload) {
		if _, err := conn.Write(payload[written:]); err != nil {
			return err
		}
	}
	return nil
}

func closeFiles(files []*os.File) {
	for _, file := range files {
		if file != nil {
			file.Close()
		}
	}
}
