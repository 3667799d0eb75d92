// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package service

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"time"

	"golang.org/x/sys/unix"

	"github.com/bureau-foundation/dirlease/lib/codec"
)

// dialTimeout is the maximum time to wait for a connection to the
// service socket.
const dialTimeout = 5 * time.Second

// responseReadTimeout is how long the client waits for the response
// after writing the request, unless ctx carries an earlier deadline.
const responseReadTimeout = 45 * time.Second

// maxResponseSize is the maximum size of a single CBOR response.
const maxResponseSize = 1024 * 1024

// maxResponseFiles bounds the descriptors accepted in one response.
const maxResponseFiles = 8

// ServiceError is returned when the server responds with ok=false.
type ServiceError struct {
	Action  string
	Message string
}

func (e *ServiceError) Error() string {
	return fmt.Sprintf("service error on %q: %s", e.Action, e.Message)
}

// ServiceClient sends CBOR requests to a service socket. Each call
// opens a new connection, matching the server's one-request-per-
// connection model.
type ServiceClient struct {
	socketPath string
}

// NewServiceClient creates a client for the socket at socketPath.
func NewServiceClient(socketPath string) *ServiceClient {
	return &ServiceClient{socketPath: socketPath}
}

// SocketPath returns the socket this client connects to.
func (c *ServiceClient) SocketPath() string {
	return c.socketPath
}

// Call sends a CBOR request and decodes the response data into result.
// Any descriptors the server attaches are closed.
//
// The fields parameter may contain any handler-specific request
// fields; the client adds "action" automatically. On failure (ok=false)
// Call returns a *ServiceError. Connection and encoding errors are
// returned as plain errors.
func (c *ServiceClient) Call(ctx context.Context, action string, fields map[string]any, result any) error {
	files, err := c.CallFiles(ctx, action, fields, result)
	closeFiles(files)
	return err
}

// CallFiles is Call for actions that pass descriptors back. On success
// the caller owns the returned files. On any error no files are
// returned and every received descriptor has been closed.
func (c *ServiceClient) CallFiles(ctx context.Context, action string, fields map[string]any, result any) ([]*os.File, error) {
	request := make(map[string]any, len(fields)+1)
	for key, value := range fields {
		request[key] = value
	}
	request["action"] = action

	response, files, err := c.send(ctx, request)
	if err != nil {
		return nil, fmt.Errorf("calling %q on %s: %w", action, c.socketPath, err)
	}

	if !response.OK {
		closeFiles(files)
		return nil, &ServiceError{
			Action:  action,
			Message: response.Error,
		}
	}

	if response.Files != len(files) {
		closeFiles(files)
		return nil, fmt.Errorf("calling %q: response announced %d descriptors, received %d",
			action, response.Files, len(files))
	}

	if result != nil && len(response.Data) > 0 {
		if err := codec.Unmarshal(response.Data, result); err != nil {
			closeFiles(files)
			return nil, fmt.Errorf("decoding response data for %q: %w", action, err)
		}
	}

	return files, nil
}

// send connects, writes the request, and reads the full response along
// with any SCM_RIGHTS descriptors.
func (c *ServiceClient) send(ctx context.Context, request any) (*Response, []*os.File, error) {
	dialer := net.Dialer{Timeout: dialTimeout}
	conn, err := dialer.DialContext(ctx, "unix", c.socketPath)
	if err != nil {
		return nil, nil, fmt.Errorf("connecting: %w", err)
	}
	defer conn.Close()

	unixConn, ok := conn.(*net.UnixConn)
	if !ok {
		return nil, nil, fmt.Errorf("connecting: %s is not a unix socket", c.socketPath)
	}

	if err := codec.NewEncoder(unixConn).Encode(request); err != nil {
		return nil, nil, fmt.Errorf("writing request: %w", err)
	}
	unixConn.CloseWrite()

	deadline := time.Now().Add(responseReadTimeout)
	if ctxDeadline, ok := ctx.Deadline(); ok && ctxDeadline.Before(deadline) {
		deadline = ctxDeadline
	}
	unixConn.SetReadDeadline(deadline)

	payload, files, err := readWithRights(unixConn)
	if err != nil {
		closeFiles(files)
		return nil, nil, fmt.Errorf("reading response: %w", err)
	}

	var response Response
	if err := codec.NewDecoder(bytes.NewReader(payload)).Decode(&response); err != nil {
		closeFiles(files)
		return nil, nil, fmt.Errorf("reading response: %w", err)
	}

	return &response, files, nil
}

// readWithRights reads until EOF, collecting every descriptor carried
// in SCM_RIGHTS control messages. Descriptors are returned even on
// error so the caller can close them.
func readWithRights(conn *net.UnixConn) ([]byte, []*os.File, error) {
	var payload bytes.Buffer
	var files []*os.File

	buffer := make([]byte, 4096)
	oob := make([]byte, unix.CmsgSpace(4*maxResponseFiles))
	for {
		n, oobn, flags, _, err := conn.ReadMsgUnix(buffer, oob)
		if oobn > 0 {
			received, parseErr := parseRights(oob[:oobn])
			files = append(files, received...)
			if parseErr != nil {
				return nil, files, parseErr
			}
		}
		if flags&unix.MSG_CTRUNC != 0 {
			return nil, files, fmt.Errorf("descriptor control message truncated")
		}
		payload.Write(buffer[:n])
		if payload.Len() > maxResponseSize {
			return nil, files, fmt.Errorf("response exceeds %d bytes", maxResponseSize)
		}
		if err != nil {
			if errors.Is(err, io.EOF) {
				return payload.Bytes(), files, nil
			}
			return nil, files, err
		}
		if n == 0 && oobn == 0 {
			return payload.Bytes(), files, nil
		}
	}
}

func parseRights(oob []byte) ([]*os.File, error) {
	messages, err := unix.ParseSocketControlMessage(oob)
	if err != nil {
		return nil, fmt.Errorf("parsing control message: %w", err)
	}
	var files []*os.File
	for _, message := range messages {
		descriptors, err := unix.ParseUnixRights(&message)
		if err != nil {
			continue
		}
		for _, descriptor := range descriptors {
			files = append(files, os.NewFile(uintptr(descriptor), fmt.Sprintf("passed-fd-%d", descriptor)))
		}
	}
	return files, nil
}
