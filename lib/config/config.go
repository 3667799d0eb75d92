// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"
)

// EnvironmentVariable names the config file when --config is absent.
const EnvironmentVariable = "DIRLEASE_CONFIG"

// SocketName is the socket file name inside the runtime directory.
const SocketName = "dirlease.sock"

// Config is the complete dirlease configuration.
type Config struct {
	// Paths configures directory locations.
	Paths PathsConfig `yaml:"paths"`

	// Service configures the lease service itself.
	Service ServiceConfig `yaml:"service"`

	// Log configures the daemon's structured logger.
	Log LogConfig `yaml:"log"`
}

// PathsConfig configures directory locations.
type PathsConfig struct {
	// Root is where leased directories are created.
	// Default: the system temporary directory.
	Root string `yaml:"root"`

	// State holds one sentinel FIFO per outstanding lease. It must
	// survive daemon restarts for crash recovery to work, and must not
	// be the same directory as Root.
	// Default: ${HOME}/.local/state/dirlease/leases
	State string `yaml:"state"`

	// Run is the runtime directory for the daemon's socket.
	// Default: ${XDG_RUNTIME_DIR:-/tmp}/dirlease
	Run string `yaml:"run"`
}

// ServiceConfig configures lease allocation and the IPC endpoint.
type ServiceConfig struct {
	// SocketPath overrides the socket location. Empty means
	// <paths.run>/dirlease.sock.
	SocketPath string `yaml:"socket_path"`

	// DefaultPrefix is used for directory names when a client sends an
	// empty prefix.
	// Default: tmp
	DefaultPrefix string `yaml:"default_prefix"`
}

// LogConfig configures logging.
type LogConfig struct {
	// Level is one of debug, info, warn, error.
	// Default: info
	Level string `yaml:"level"`

	// Format is json or text.
	// Default: json
	Format string `yaml:"format"`
}

// Default returns the default configuration with all path variables
// expanded.
func Default() *Config {
	cfg := &Config{
		Paths: PathsConfig{
			Root:  os.TempDir(),
			State: "${HOME}/.local/state/dirlease/leases",
			Run:   "${XDG_RUNTIME_DIR:-/tmp}/dirlease",
		},
		Service: ServiceConfig{
			DefaultPrefix: "tmp",
		},
		Log: LogConfig{
			Level:  "info",
			Format: "json",
		},
	}
	cfg.expandVariables()
	return cfg
}

// Load loads configuration from the file named by DIRLEASE_CONFIG.
// Fails when the variable is not set.
func Load() (*Config, error) {
	configPath := os.Getenv(EnvironmentVariable)
	if configPath == "" {
		return nil, fmt.Errorf("%s environment variable not set; "+
			"set it to the path of your dirlease.yaml config file, or use --config flag", EnvironmentVariable)
	}
	return LoadFile(configPath)
}

// Resolve loads the file at path if non-empty, otherwise the file named
// by DIRLEASE_CONFIG if set, otherwise returns Default.
func Resolve(path string) (*Config, error) {
	if path != "" {
		return LoadFile(path)
	}
	if os.Getenv(EnvironmentVariable) != "" {
		return Load()
	}
	return Default(), nil
}

// LoadFile loads configuration from a specific file path, merged over
// the defaults.
func LoadFile(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config %s: %w", path, err)
	}

	cfg.expandVariables()
	return cfg, nil
}

// SocketPath returns the daemon socket location.
func (c *Config) SocketPath() string {
	if c.Service.SocketPath != "" {
		return c.Service.SocketPath
	}
	return filepath.Join(c.Paths.Run, SocketName)
}

// LogLevel parses Log.Level.
func (c *Config) LogLevel() (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(c.Log.Level)); err != nil {
		return slog.LevelInfo, fmt.Errorf("log.level: %w", err)
	}
	return level, nil
}

// expandVariables expands ${VAR} and ${VAR:-default} patterns in paths.
func (c *Config) expandVariables() {
	vars := map[string]string{
		"HOME": os.Getenv("HOME"),
	}

	c.Paths.Root = expandVars(c.Paths.Root, vars)
	c.Paths.State = expandVars(c.Paths.State, vars)
	c.Paths.Run = expandVars(c.Paths.Run, vars)
	vars["DIRLEASE_RUN_DIR"] = c.Paths.Run
	c.Service.SocketPath = expandVars(c.Service.SocketPath, vars)
}

var varPattern = regexp.MustCompile(`\$\{([^}:]+)(?::-([^}]*))?\}`)

func expandVars(s string, vars map[string]string) string {
	return varPattern.ReplaceAllStringFunc(s, func(match string) string {
		parts := varPattern.FindStringSubmatch(match)
		if len(parts) < 2 {
			return match
		}

		name := parts[1]
		defaultValue := ""
		if len(parts) >= 3 {
			defaultValue = parts[2]
		}

		// Provided vars first, then the process environment.
		if value, ok := vars[name]; ok && value != "" {
			return value
		}
		if value := os.Getenv(name); value != "" {
			return value
		}
		return defaultValue
	})
}

// Validate checks the configuration for errors. All problems are
// reported together.
func (c *Config) Validate() error {
	var errs []error

	requireAbsolute := func(name, path string) {
		if path == "" {
			errs = append(errs, fmt.Errorf("%s is required", name))
			return
		}
		if !filepath.IsAbs(path) {
			errs = append(errs, fmt.Errorf("%s must be an absolute path, got %q", name, path))
		}
	}
	requireAbsolute("paths.root", c.Paths.Root)
	requireAbsolute("paths.state", c.Paths.State)
	requireAbsolute("paths.run", c.Paths.Run)
	if c.Service.SocketPath != "" {
		requireAbsolute("service.socket_path", c.Service.SocketPath)
	}

	// A sentinel is named after its directory; sharing one parent would
	// make every FIFO collide with the directory it guards.
	if c.Paths.Root != "" && c.Paths.State != "" &&
		filepath.Clean(c.Paths.Root) == filepath.Clean(c.Paths.State) {
		errs = append(errs, fmt.Errorf("paths.state must differ from paths.root (%s)", c.Paths.Root))
	}

	if strings.ContainsRune(c.Service.DefaultPrefix, filepath.Separator) {
		errs = append(errs, fmt.Errorf("service.default_prefix must not contain %q", filepath.Separator))
	}

	if _, err := c.LogLevel(); err != nil {
		errs = append(errs, err)
	}
	if c.Log.Format != "json" && c.Log.Format != "text" {
		errs = append(errs, fmt.Errorf("log.format must be json or text, got %q", c.Log.Format))
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}

// EnsurePaths creates the state and runtime directories if they do not
// exist. Both hold private data and are created mode 0700. Root is not
// created: it is usually a shared temporary directory that must already
// exist.
func (c *Config) EnsurePaths() error {
	for _, path := range []string{c.Paths.State, c.Paths.Run} {
		if err := os.MkdirAll(path, 0o700); err != nil {
			return fmt.Errorf("creating %s: %w", path, err)
		}
	}
	if info, err := os.Stat(c.Paths.Root); err != nil {
		return fmt.Errorf("lease root: %w", err)
	} else if !info.IsDir() {
		return fmt.Errorf("lease root %s is not a directory", c.Paths.Root)
	}
	return nil
}
