// Copyright 2026 The Detpack Authors
// SPDX-License-Identifier: Apache-2.0

// Package commands assembles the detpack command tree.
package commands

import (
	"fmt"
	"os"

	"github.com/spf13/pflag"

	"github.com/isglobal-brge/detpack/cmd/detpack/cli"
	"github.com/isglobal-brge/detpack/lib/config"
)

// Root returns the top-level detpack command.
func Root() *cli.Command {
	return &cli.Command{
		Name:    "detpack",
		Summary: "Deterministic content-addressable archive tool",
		Description: `Build, verify, and extract deterministic tar.gz archives.

An archive built by detpack depends only on the logical content of the
source tree: file bytes and relative paths. Modification times,
ownership, permission bits, and directory iteration order are
normalized away, and the gzip header timestamp is suppressed, so the
same tree always produces the same bytes and the same content hash.
That hash is a reliable key for caching and deduplication.`,
		Subcommands: []*cli.Command{
			buildCommand(),
			extractCommand(),
			verifyCommand(),
			probeCommand(),
			indexCommand(),
		},
		Examples: []cli.Example{
			{
				Description: "Archive a job input directory",
				Command:     "detpack build ./inputs -o inputs.tar.gz --name inputs",
			},
			{
				Description: "Check that a tree archives reproducibly",
				Command:     "detpack verify ./inputs --trials 5",
			},
			{
				Description: "Extract an archive",
				Command:     "detpack extract inputs.tar.gz -d /tmp/work",
			},
		},
	}
}

// addConfigFlag registers the shared --config flag.
func addConfigFlag(flagSet *pflag.FlagSet, configPath *string) {
	flagSet.StringVar(configPath, "config", "", "path to detpack.yaml (default: DETPACK_CONFIG, else built-in defaults)")
}

// loadConfig resolves configuration: an explicit --config path wins,
// then DETPACK_CONFIG, then the built-in defaults.
func loadConfig(configPath string) (*config.Config, error) {
	var cfg *config.Config
	var err error
	switch {
	case configPath != "":
		cfg, err = config.LoadFile(configPath)
	case os.Getenv("DETPACK_CONFIG") != "":
		cfg, err = config.Load()
	default:
		cfg = config.Default()
	}
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}
