// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package cli

import (
	"bytes"
	"errors"
	"log/slog"
	"strings"
	"testing"
)

func TestWriteJSONNilSlice(t *testing.T) {
	var buffer bytes.Buffer
	var empty []string
	if err := WriteJSON(&buffer, empty); err != nil {
		t.Fatalf("WriteJSON: %v", err)
	}
	if strings.TrimSpace(buffer.String()) != "[]" {
		t.Errorf("output = %q, want []", buffer.String())
	}
}

func TestExitError(t *testing.T) {
	var err error = &ExitError{Code: 3}
	var coder interface{ ExitCode() int }
	if !errors.As(err, &coder) || coder.ExitCode() != 3 {
		t.Errorf("ExitError does not report code 3")
	}
}

func TestNewLoggerFormat(t *testing.T) {
	var buffer bytes.Buffer
	newLogger(&buffer, true, slog.LevelInfo).Info("leased", "path", "/tmp/x")
	if !strings.Contains(buffer.String(), "path=/tmp/x") {
		t.Errorf("terminal output = %q, want text format", buffer.String())
	}

	buffer.Reset()
	newLogger(&buffer, false, slog.LevelInfo).Info("leased", "path", "/tmp/x")
	if !strings.HasPrefix(buffer.String(), "{") {
		t.Errorf("pipe output = %q, want JSON", buffer.String())
	}

	buffer.Reset()
	newLogger(&buffer, false, slog.LevelInfo).Debug("hidden")
	if buffer.Len() != 0 {
		t.Errorf("debug logged at info level: %q", buffer.String())
	}
}
