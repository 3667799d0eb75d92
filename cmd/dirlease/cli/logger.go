// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package cli

import (
	"io"
	"log/slog"
	"os"

	"golang.org/x/term"
)

// NewCommandLogger returns the CLI's logger on stderr. Terminals get
// slog's text format; pipes and files get JSON, matching the daemon.
// DIRLEASE_DEBUG=1 lowers the level to debug.
func NewCommandLogger() *slog.Logger {
	level := slog.LevelInfo
	if os.Getenv("DIRLEASE_DEBUG") != "" {
		level = slog.LevelDebug
	}
	return newLogger(os.Stderr, term.IsTerminal(int(os.Stderr.Fd())), level)
}

func newLogger(output io.Writer, terminal bool, level slog.Level) *slog.Logger {
	options := &slog.HandlerOptions{Level: level}
	if terminal {
		return slog.New(slog.NewTextHandler(output, options))
	}
	return slog.New(slog.NewJSONHandler(output, options))
}
