// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/bureau-foundation/dirlease/lib/config"
)

func TestParseFlags(t *testing.T) {
	flags, err := parseFlags([]string{
		"--root", "/srv/leases",
		"--state-dir=/var/lib/dirlease",
		"--default-prefix", "job-",
		"--log-level", "debug",
	})
	if err != nil {
		t.Fatalf("parseFlags: %v", err)
	}
	if flags.root != "/srv/leases" || flags.stateDir != "/var/lib/dirlease" ||
		flags.defaultPrefix != "job-" || flags.logLevel != "debug" {
		t.Errorf("flags = %+v", flags)
	}

	if _, err := parseFlags([]string{"stray"}); err == nil {
		t.Error("positional argument accepted")
	}
	if _, err := parseFlags([]string{"--no-such-flag"}); err == nil {
		t.Error("unknown flag accepted")
	}
}

func TestLoadConfigFlagsOverrideFile(t *testing.T) {
	t.Setenv(config.EnvironmentVariable, "")
	dir := t.TempDir()
	configPath := filepath.Join(dir, "dirlease.yaml")
	contents := "paths:\n" +
		"  root: " + filepath.Join(dir, "root") + "\n" +
		"  state: " + filepath.Join(dir, "state") + "\n" +
		"service:\n" +
		"  default_prefix: fromfile-\n" +
		"log:\n" +
		"  level: warn\n"
	if err := os.WriteFile(configPath, []byte(contents), 0o600); err != nil {
		t.Fatal(err)
	}

	cfg, err := loadConfig(&daemonFlags{
		configPath:    configPath,
		defaultPrefix: "fromflag-",
	})
	if err != nil {
		t.Fatalf("loadConfig: %v", err)
	}
	if cfg.Service.DefaultPrefix != "fromflag-" {
		t.Errorf("default prefix = %q, want flag value", cfg.Service.DefaultPrefix)
	}
	if cfg.Paths.Root != filepath.Join(dir, "root") || cfg.Log.Level != "warn" {
		t.Errorf("file values not applied: %+v", cfg)
	}
}

func TestLoadConfigRejectsInvalidOverrides(t *testing.T) {
	t.Setenv(config.EnvironmentVariable, "")
	dir := t.TempDir()
	_, err := loadConfig(&daemonFlags{
		root:     dir,
		stateDir: dir,
		logLevel: "loud",
	})
	if err == nil {
		t.Fatal("loadConfig accepted identical root and state with a bad level")
	}
	for _, want := range []string{"paths.state", "log.level"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("error %q does not mention %s", err, want)
		}
	}
}

func TestNewLoggerFormat(t *testing.T) {
	cfg := config.Default()

	var buffer bytes.Buffer
	cfg.Log.Format = "json"
	newLogger(cfg, &buffer).Info("granted", "lease", "tmp1")
	if !strings.HasPrefix(buffer.String(), "{") {
		t.Errorf("json output = %q", buffer.String())
	}

	buffer.Reset()
	cfg.Log.Format = "text"
	newLogger(cfg, &buffer).Info("granted", "lease", "tmp1")
	if !strings.Contains(buffer.String(), "lease=tmp1") {
		t.Errorf("text output = %q", buffer.String())
	}

	buffer.Reset()
	cfg.Log.Level = "error"
	newLogger(cfg, &buffer).Info("suppressed")
	if buffer.Len() != 0 {
		t.Errorf("info logged at error level: %q", buffer.String())
	}
}
