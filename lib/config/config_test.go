// Copyright 2026 The Detpack Authors
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "detpack.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("writing config: %v", err)
	}
	return path
}

func TestDefaultValidates(t *testing.T) {
	if err := Default().Validate(); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}
}

func TestLoadFileOverridesDefaults(t *testing.T) {
	path := writeConfig(t, `
paths:
  archives: /data/archives
  index: /data/index.cbor
build:
  timeout: 90s
verify:
  trials: 7
`)

	cfg, err := LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile failed: %v", err)
	}
	if cfg.Paths.Archives != "/data/archives" {
		t.Errorf("archives = %s", cfg.Paths.Archives)
	}
	if cfg.Verify.Trials != 7 {
		t.Errorf("trials = %d, want 7", cfg.Verify.Trials)
	}
	timeout, err := cfg.BuildTimeout()
	if err != nil {
		t.Fatalf("BuildTimeout failed: %v", err)
	}
	if timeout != 90*time.Second {
		t.Errorf("timeout = %s, want 90s", timeout)
	}
}

func TestLoadFilePartialKeepsDefaults(t *testing.T) {
	path := writeConfig(t, `
verify:
  trials: 3
`)
	cfg, err := LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile failed: %v", err)
	}
	if cfg.Verify.Trials != 3 {
		t.Errorf("trials = %d, want 3", cfg.Verify.Trials)
	}
	if cfg.Paths.Archives == "" {
		t.Error("partial config lost the default archives path")
	}
}

func TestExpandsHome(t *testing.T) {
	t.Setenv("HOME", "/home/analyst")
	path := writeConfig(t, `
paths:
  archives: ${HOME}/archives
  index: ${HOME}/index.cbor
`)
	cfg, err := LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile failed: %v", err)
	}
	if cfg.Paths.Archives != "/home/analyst/archives" {
		t.Errorf("archives = %s, want /home/analyst/archives", cfg.Paths.Archives)
	}
}

func TestValidateRejectsBadValues(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"no archives path", func(c *Config) { c.Paths.Archives = "" }},
		{"no index path", func(c *Config) { c.Paths.Index = "" }},
		{"one trial", func(c *Config) { c.Verify.Trials = 1 }},
		{"bad timeout", func(c *Config) { c.Build.Timeout = "ninety seconds" }},
		{"negative timeout", func(c *Config) { c.Build.Timeout = "-5s" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			if err := cfg.Validate(); err == nil {
				t.Error("Validate accepted an invalid config")
			}
		})
	}
}

func TestLoadRequiresEnvVariable(t *testing.T) {
	t.Setenv("DETPACK_CONFIG", "")
	if _, err := Load(); err == nil {
		t.Fatal("Load without DETPACK_CONFIG should fail")
	}
}

func TestLoadUsesEnvVariable(t *testing.T) {
	path := writeConfig(t, "verify:\n  trials: 4\n")
	t.Setenv("DETPACK_CONFIG", path)
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Verify.Trials != 4 {
		t.Errorf("trials = %d, want 4", cfg.Verify.Trials)
	}
}
