// Copyright 2026 The Detpack Authors
// SPDX-License-Identifier: Apache-2.0

// Package config provides configuration loading for Detpack tools.
//
// Configuration is loaded from a single file specified by:
//   - DETPACK_CONFIG environment variable, or
//   - --config flag passed to the command
//
// There are no fallbacks or automatic discovery. This ensures
// deterministic, auditable configuration with no hidden overrides —
// the same discipline the archiver applies to its own inputs. The
// only expansion performed is ${HOME} and similar path variables for
// portability.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the master configuration for Detpack tools.
type Config struct {
	// Paths configures directory and file locations.
	Paths PathsConfig `yaml:"paths"`

	// Build configures archive builds.
	Build BuildConfig `yaml:"build"`

	// Verify configures determinism checks.
	Verify VerifyConfig `yaml:"verify"`
}

// PathsConfig configures directory and file locations.
type PathsConfig struct {
	// Archives is the default output directory for built archives.
	Archives string `yaml:"archives"`

	// Index is the path of the dedup index file.
	Index string `yaml:"index"`
}

// BuildConfig configures archive builds.
type BuildConfig struct {
	// Timeout is the wall-clock limit applied to a single build,
	// as a Go duration string. Empty means no limit. The timeout is
	// operational: it never changes what bytes a successful build
	// produces.
	Timeout string `yaml:"timeout"`
}

// VerifyConfig configures determinism checks.
type VerifyConfig struct {
	// Trials is the number of repeated builds per check. Must be at
	// least 2.
	Trials int `yaml:"trials"`
}

// Default returns the default configuration. These defaults are a
// base for the config file to override; running without any file at
// all is supported for the CLI.
func Default() *Config {
	homeDir, _ := os.UserHomeDir()
	defaultRoot := filepath.Join(homeDir, ".cache", "detpack")

	return &Config{
		Paths: PathsConfig{
			Archives: filepath.Join(defaultRoot, "archives"),
			Index:    filepath.Join(defaultRoot, "index.cbor"),
		},
		Build: BuildConfig{
			Timeout: "",
		},
		Verify: VerifyConfig{
			Trials: 5,
		},
	}
}

// Load loads configuration from the DETPACK_CONFIG environment
// variable. Fails if the variable is not set — there is no automatic
// discovery.
func Load() (*Config, error) {
	configPath := os.Getenv("DETPACK_CONFIG")
	if configPath == "" {
		return nil, fmt.Errorf("DETPACK_CONFIG environment variable not set; " +
			"set it to the path of your detpack.yaml config file, or use --config flag")
	}
	return LoadFile(configPath)
}

// LoadFile loads configuration from a specific file path, merging it
// over the defaults. Environment variables do not override config
// values.
func LoadFile(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config %s: %w", path, err)
	}

	cfg.expandVariables()
	return cfg, nil
}

// expandVariables expands ${VAR} and ${VAR:-default} patterns in
// paths.
func (c *Config) expandVariables() {
	vars := map[string]string{
		"HOME": os.Getenv("HOME"),
	}
	c.Paths.Archives = expandVars(c.Paths.Archives, vars)
	c.Paths.Index = expandVars(c.Paths.Index, vars)
}

// varPattern matches ${VAR} and ${VAR:-default}.
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

		if value, ok := vars[name]; ok && value != "" {
			return value
		}
		if value := os.Getenv(name); value != "" {
			return value
		}
		return defaultValue
	})
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	var errs []error

	if c.Paths.Archives == "" {
		errs = append(errs, fmt.Errorf("paths.archives is required"))
	}
	if c.Paths.Index == "" {
		errs = append(errs, fmt.Errorf("paths.index is required"))
	}
	if c.Verify.Trials < 2 {
		errs = append(errs, fmt.Errorf("verify.trials must be at least 2, got %d", c.Verify.Trials))
	}
	if _, err := c.BuildTimeout(); err != nil {
		errs = append(errs, err)
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}

// BuildTimeout parses the configured build timeout. Returns zero for
// an empty (unlimited) setting.
func (c *Config) BuildTimeout() (time.Duration, error) {
	if c.Build.Timeout == "" {
		return 0, nil
	}
	timeout, err := time.ParseDuration(c.Build.Timeout)
	if err != nil {
		return 0, fmt.Errorf("build.timeout %q is not a duration: %w", c.Build.Timeout, err)
	}
	if timeout <= 0 {
		return 0, fmt.Errorf("build.timeout must be positive, got %s", timeout)
	}
	return timeout, nil
}

// EnsurePaths creates the configured directories if they don't exist.
func (c *Config) EnsurePaths() error {
	for _, path := range []string{c.Paths.Archives, filepath.Dir(c.Paths.Index)} {
		if path == "" {
			continue
		}
		if err := os.MkdirAll(path, 0o755); err != nil {
			return fmt.Errorf("creating %s: %w", path, err)
		}
	}
	return nil
}
