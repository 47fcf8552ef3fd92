// Copyright 2026 The Detpack Authors
// SPDX-License-Identifier: Apache-2.0

package commands

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/pflag"

	"github.com/isglobal-brge/detpack/cmd/detpack/cli"
	"github.com/isglobal-brge/detpack/lib/archive"
	"github.com/isglobal-brge/detpack/lib/dedup"
)

func buildCommand() *cli.Command {
	var (
		configPath  string
		outputPath  string
		archiveName string
		timeoutFlag string
		noIndex     bool
	)

	return &cli.Command{
		Name:    "build",
		Summary: "Build a deterministic tar.gz archive from a directory",
		Usage:   "detpack build <source-dir> [flags]",
		Description: `Archive a directory tree into a deterministic tar.gz.

Members are sorted by path; mtimes, ownership, and permission bits are
replaced with fixed policy constants; the gzip header carries no
timestamp. Building the same tree twice — on any host, at any time —
produces byte-identical output and the same content hash.

The content hash is printed to stdout and, unless --no-index is given,
recorded in the dedup index. A build whose hash is already indexed is
reported as a dedup hit.`,
		Examples: []cli.Example{
			{
				Description: "Archive with an explicit output path",
				Command:     "detpack build ./inputs -o inputs.tar.gz",
			},
			{
				Description: "Archive into the configured archives directory",
				Command:     "detpack build ./inputs --name methylation-batch-7",
			},
		},
		Flags: func() *pflag.FlagSet {
			flagSet := pflag.NewFlagSet("build", pflag.ContinueOnError)
			addConfigFlag(flagSet, &configPath)
			flagSet.StringVarP(&outputPath, "output", "o", "", "output archive path (.tar.gz or .tgz)")
			flagSet.StringVar(&archiveName, "name", "", "embedded root folder name (default: source directory basename)")
			flagSet.StringVar(&timeoutFlag, "timeout", "", "wall-clock build limit, e.g. 90s (default: config build.timeout)")
			flagSet.BoolVar(&noIndex, "no-index", false, "skip recording the result in the dedup index")
			return flagSet
		},
		Run: func(args []string) error {
			if len(args) != 1 {
				return fmt.Errorf("build requires exactly one source directory argument")
			}
			sourceRoot := args[0]

			cfg, err := loadConfig(configPath)
			if err != nil {
				return err
			}

			if archiveName == "" {
				archiveName = filepath.Base(filepath.Clean(sourceRoot))
			}
			if outputPath == "" {
				if err := cfg.EnsurePaths(); err != nil {
					return err
				}
				outputPath = filepath.Join(cfg.Paths.Archives, archiveName+".tar.gz")
			}

			timeout, err := resolveTimeout(cfg.Build.Timeout, timeoutFlag)
			if err != nil {
				return err
			}
			ctx := context.Background()
			if timeout > 0 {
				var cancel context.CancelFunc
				ctx, cancel = context.WithTimeout(ctx, timeout)
				defer cancel()
			}

			logger := cli.NewCommandLogger().With("command", "build", "source", sourceRoot)

			builder := archive.NewBuilder()
			started := time.Now()
			result, err := builder.Build(ctx, archive.Request{
				SourceRoot:  sourceRoot,
				OutputPath:  outputPath,
				ArchiveName: archiveName,
			})
			if err != nil {
				return err
			}
			logger.Info("archive built",
				"output", result.OutputPath,
				"hash", result.ContentHash.String(),
				"members", result.MemberCount,
				"uncompressed_bytes", result.TotalUncompressedBytes,
				"elapsed", time.Since(started).Round(time.Millisecond).String(),
			)

			if !noIndex {
				index, err := dedup.Open(cfg.Paths.Index)
				if err != nil {
					return err
				}
				deduplicated, err := index.Put(result, builder.Policy().Version)
				if err != nil {
					return err
				}
				if deduplicated {
					logger.Info("dedup hit: identical archive already indexed", "hash", result.ContentHash.String())
				}
			}

			fmt.Println(result.ContentHash)
			return nil
		},
	}
}

// resolveTimeout merges the config timeout with a flag override.
func resolveTimeout(configured, override string) (time.Duration, error) {
	value := configured
	if override != "" {
		value = override
	}
	if strings.TrimSpace(value) == "" {
		return 0, nil
	}
	timeout, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("invalid timeout %q: %w", value, err)
	}
	if timeout <= 0 {
		return 0, fmt.Errorf("timeout must be positive, got %s", timeout)
	}
	return timeout, nil
}
