// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/pflag"

	"github.com/bureau-foundation/dirlease/cmd/dirlease/cli"
	"github.com/bureau-foundation/dirlease/lib/leaseclient"
	"github.com/bureau-foundation/dirlease/lib/process"
)

// defaultDescriptorVariable carries the directory descriptor number
// when no placeholder is given.
const defaultDescriptorVariable = "DIRLEASE_FD"

// requestTimeout bounds the create-lease round trip.
const requestTimeout = 30 * time.Second

type runParams struct {
	socket      string
	prefix      string
	suffix      string
	envName     string
	placeholder string
	pathEnv     string
}

// substitution describes how the leased directory is announced to the
// child.
type substitution struct {
	// envName receives the directory descriptor number. Empty when
	// placeholder is used instead.
	envName string

	// placeholder is replaced by the descriptor number in every
	// argument.
	placeholder string

	// pathEnv, when set, receives the directory's path.
	pathEnv string
}

func runCommand(execFunc process.ExecFunc) *cli.Command {
	var params runParams
	return &cli.Command{
		Name:    "run",
		Summary: "Run a command holding a leased directory",
		Description: `Request a leased directory and exec a command holding it.

The command inherits an open descriptor on the directory and the write
end of the lease's sentinel. The directory is deleted once the command
and every process that inherited the sentinel have exited.`,
		Usage: "dirlease run [flags] -- <command> [args...]",
		Examples: []cli.Example{
			{
				Description: "Build in a scratch directory named build-NNN",
				Command:     "dirlease run --prefix build- -- sh -c 'cd /proc/self/fd/$DIRLEASE_FD && make'",
			},
			{
				Description: "Pass the descriptor number as an argument",
				Command:     "dirlease run --placeholder @FD@ -- tool --workdir-fd @FD@",
			},
			{
				Description: "Export the path as well",
				Command:     "dirlease run --path-env SCRATCH -- sh -c 'echo $SCRATCH'",
			},
		},
		Flags: func() *pflag.FlagSet {
			flagSet := pflag.NewFlagSet("run", pflag.ContinueOnError)
			flagSet.SetInterspersed(false)
			addSocketFlag(flagSet, &params.socket)
			flagSet.StringVar(&params.prefix, "prefix", "", "directory name prefix (default: the daemon's)")
			flagSet.StringVar(&params.suffix, "suffix", "", "directory name suffix")
			flagSet.StringVar(&params.envName, "env", "", "environment variable for the descriptor number (default "+defaultDescriptorVariable+")")
			flagSet.StringVar(&params.placeholder, "placeholder", "", "replace this token in the command's arguments with the descriptor number")
			flagSet.StringVar(&params.pathEnv, "path-env", "", "also export the directory path in this variable")
			return flagSet
		},
		Run: func(args []string) error {
			return runLeased(params, args, execFunc)
		},
	}
}

func (p runParams) plan() (substitution, error) {
	if p.envName != "" && p.placeholder != "" {
		return substitution{}, errors.New("--env and --placeholder are mutually exclusive")
	}
	result := substitution{
		envName:     p.envName,
		placeholder: p.placeholder,
		pathEnv:     p.pathEnv,
	}
	if result.placeholder == "" && result.envName == "" {
		result.envName = defaultDescriptorVariable
	}
	for _, name := range []string{result.envName, result.pathEnv} {
		if strings.ContainsAny(name, "=\x00") {
			return substitution{}, fmt.Errorf("invalid environment variable name %q", name)
		}
	}
	return result, nil
}

func runLeased(params runParams, args []string, execFunc process.ExecFunc) error {
	if len(args) == 0 {
		return errors.New("a command is required (dirlease run [flags] -- <command> [args...])")
	}
	announce, err := params.plan()
	if err != nil {
		return err
	}
	socketPath, err := resolveSocket(params.socket)
	if err != nil {
		return err
	}

	logger := cli.NewCommandLogger().With("command", "run")

	ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
	defer cancel()

	held, err := leaseclient.New(socketPath).CreateLease(ctx, params.prefix, params.suffix)
	if err != nil {
		return fmt.Errorf("requesting lease from %s: %w", socketPath, err)
	}

	if err := process.Inherit(held.Directory, held.Sentinel); err != nil {
		held.Close()
		return err
	}
	descriptor, err := process.Descriptor(held.Directory)
	if err != nil {
		held.Close()
		return err
	}

	argv, env := announce.apply(args, os.Environ(), descriptor, held.Path)
	if announce.placeholder != "" && !containsPlaceholder(args, announce.placeholder) {
		logger.Warn("placeholder does not appear in the command", "placeholder", announce.placeholder)
	}
	logger.Debug("exec with leased directory",
		"lease", held.ID,
		"path", held.Path,
		"fd", descriptor,
		"argv", argv,
	)

	if err := process.Exec(execFunc, argv, env); err != nil {
		// The sentinel closes here, so the daemon reclaims the lease.
		held.Close()
		return err
	}
	return nil
}

// apply returns the child's argv and environment.
func (s substitution) apply(args, environ []string, descriptor int, path string) ([]string, []string) {
	number := strconv.Itoa(descriptor)

	argv := make([]string, len(args))
	for i, arg := range args {
		if s.placeholder != "" {
			arg = strings.ReplaceAll(arg, s.placeholder, number)
		}
		argv[i] = arg
	}

	env := append([]string(nil), environ...)
	if s.envName != "" {
		env = setEnv(env, s.envName, number)
	}
	if s.pathEnv != "" {
		env = setEnv(env, s.pathEnv, path)
	}
	return argv, env
}

func containsPlaceholder(args []string, placeholder string) bool {
	for _, arg := range args {
		if strings.Contains(arg, placeholder) {
			return true
		}
	}
	return false
}

// setEnv replaces name in env, or appends it.
func setEnv(env []string, name, value string) []string {
	entry := name + "=" + value
	for i, existing := range env {
		if strings.HasPrefix(existing, name+"=") {
			env[i] = entry
			return env
		}
	}
	return append(env, entry)
}
