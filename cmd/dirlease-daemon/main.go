// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/pflag"
	"golang.org/x/sync/errgroup"

	"github.com/bureau-foundation/dirlease/lib/config"
	"github.com/bureau-foundation/dirlease/lib/lease"
	"github.com/bureau-foundation/dirlease/lib/process"
	"github.com/bureau-foundation/dirlease/lib/service"
	"github.com/bureau-foundation/dirlease/lib/version"
)

func main() {
	if err := run(os.Args[1:]); err != nil {
		process.Fatal(err)
	}
}

// daemonFlags holds command-line overrides. Empty strings leave the
// config value alone.
type daemonFlags struct {
	configPath    string
	root          string
	stateDir      string
	runDir        string
	socketPath    string
	defaultPrefix string
	logLevel      string
	logFormat     string
	showVersion   bool
}

func parseFlags(args []string) (*daemonFlags, error) {
	var flags daemonFlags
	flagSet := pflag.NewFlagSet("dirlease-daemon", pflag.ContinueOnError)
	flagSet.StringVar(&flags.configPath, "config", "", "path to dirlease.yaml (default: $"+config.EnvironmentVariable+")")
	flagSet.StringVar(&flags.root, "root", "", "directory leased directories are created under")
	flagSet.StringVar(&flags.stateDir, "state-dir", "", "directory holding one sentinel FIFO per lease (must persist across restarts)")
	flagSet.StringVar(&flags.runDir, "run-dir", "", "runtime directory for the socket")
	flagSet.StringVar(&flags.socketPath, "socket", "", "socket path (default: <run-dir>/"+config.SocketName+")")
	flagSet.StringVar(&flags.defaultPrefix, "default-prefix", "", "directory name prefix when a client sends none")
	flagSet.StringVar(&flags.logLevel, "log-level", "", "debug, info, warn, or error")
	flagSet.StringVar(&flags.logFormat, "log-format", "", "json or text")
	flagSet.BoolVar(&flags.showVersion, "version", false, "print version information and exit")
	if err := flagSet.Parse(args); err != nil {
		return nil, err
	}
	if flagSet.NArg() > 0 {
		return nil, fmt.Errorf("unexpected arguments: %v", flagSet.Args())
	}
	return &flags, nil
}

// loadConfig resolves the config file and applies flag overrides.
func loadConfig(flags *daemonFlags) (*config.Config, error) {
	cfg, err := config.Resolve(flags.configPath)
	if err != nil {
		return nil, err
	}

	override := func(target *string, value string) {
		if value != "" {
			*target = value
		}
	}
	override(&cfg.Paths.Root, flags.root)
	override(&cfg.Paths.State, flags.stateDir)
	override(&cfg.Paths.Run, flags.runDir)
	override(&cfg.Service.SocketPath, flags.socketPath)
	override(&cfg.Service.DefaultPrefix, flags.defaultPrefix)
	override(&cfg.Log.Level, flags.logLevel)
	override(&cfg.Log.Format, flags.logFormat)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// newLogger builds the daemon logger from validated config.
func newLogger(cfg *config.Config, output io.Writer) *slog.Logger {
	level, _ := cfg.LogLevel()
	options := &slog.HandlerOptions{Level: level}
	if cfg.Log.Format == "text" {
		return slog.New(slog.NewTextHandler(output, options))
	}
	return slog.New(slog.NewJSONHandler(output, options))
}

func run(args []string) error {
	flags, err := parseFlags(args)
	if errors.Is(err, pflag.ErrHelp) {
		return nil
	}
	if err != nil {
		return err
	}
	if flags.showVersion {
		fmt.Printf("dirlease-daemon %s\n", version.Full())
		return nil
	}

	cfg, err := loadConfig(flags)
	if err != nil {
		return err
	}

	logger := newLogger(cfg, os.Stderr)
	slog.SetDefault(logger)

	if err := cfg.EnsurePaths(); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger.Info("dirlease-daemon starting",
		"version", version.Info(),
		"root", cfg.Paths.Root,
		"state_dir", cfg.Paths.State,
		"socket", cfg.SocketPath(),
	)

	if err := serve(ctx, cfg, logger); err != nil {
		return err
	}
	logger.Info("dirlease-daemon stopped")
	return nil
}

// serve recovers outstanding leases, then runs the lease manager and
// the socket server until ctx is cancelled or either fails.
func serve(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	manager, err := lease.NewManager(lease.Config{
		Root:          cfg.Paths.Root,
		StateDir:      cfg.Paths.State,
		DefaultPrefix: cfg.Service.DefaultPrefix,
		Logger:        logger,
	})
	if err != nil {
		return err
	}

	if err := manager.Recover(); err != nil {
		return err
	}

	server := service.NewSocketServer(cfg.SocketPath(), logger)
	registerHandlers(server, manager, logger)

	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() error {
		return manager.Run(groupCtx)
	})
	group.Go(func() error {
		return server.Serve(groupCtx)
	})
	return group.Wait()
}
