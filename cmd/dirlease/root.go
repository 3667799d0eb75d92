// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/pflag"

	"github.com/bureau-foundation/dirlease/cmd/dirlease/cli"
	"github.com/bureau-foundation/dirlease/lib/clock"
	"github.com/bureau-foundation/dirlease/lib/config"
	"github.com/bureau-foundation/dirlease/lib/process"
	"github.com/bureau-foundation/dirlease/lib/version"
)

// socketEnvironmentVariable overrides the config-derived socket path.
const socketEnvironmentVariable = "DIRLEASE_SOCKET"

func rootCommand(stdout io.Writer, execFunc process.ExecFunc) *cli.Command {
	return &cli.Command{
		Name:        "dirlease",
		Description: "dirlease leases ephemeral directories that are deleted when the holder exits.",
		Subcommands: []*cli.Command{
			runCommand(execFunc),
			listCommand(stdout, clock.Real()),
			versionCommand(stdout),
		},
	}
}

// addSocketFlag binds --socket on flagSet.
func addSocketFlag(flagSet *pflag.FlagSet, target *string) {
	flagSet.StringVar(target, "socket", "",
		"daemon socket path (default: $"+socketEnvironmentVariable+", else the configured socket)")
}

// resolveSocket picks the daemon socket: the flag, then
// $DIRLEASE_SOCKET, then the config file's socket path.
func resolveSocket(flagValue string) (string, error) {
	if flagValue != "" {
		return flagValue, nil
	}
	if fromEnvironment := os.Getenv(socketEnvironmentVariable); fromEnvironment != "" {
		return fromEnvironment, nil
	}
	cfg, err := config.Resolve("")
	if err != nil {
		return "", fmt.Errorf("locating daemon socket: %w", err)
	}
	return cfg.SocketPath(), nil
}

func versionCommand(stdout io.Writer) *cli.Command {
	return &cli.Command{
		Name:    "version",
		Summary: "Print version information",
		Run: func(args []string) error {
			if len(args) > 0 {
				return fmt.Errorf("version takes no arguments")
			}
			fmt.Fprintf(stdout, "dirlease %s\n", version.Info())
			return nil
		},
	}
}
