// Copyright 2026 The Detpack Authors
// SPDX-License-Identifier: Apache-2.0

package commands

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/spf13/pflag"

	"github.com/isglobal-brge/detpack/cmd/detpack/cli"
	"github.com/isglobal-brge/detpack/lib/archive"
)

func verifyCommand() *cli.Command {
	var (
		configPath string
		trials     int
	)

	return &cli.Command{
		Name:    "verify",
		Summary: "Check that a tree archives to the same hash every time",
		Usage:   "detpack verify <source-dir> [flags]",
		Description: `Build a tree repeatedly and compare content hashes.

Each trial is a complete, independent build into a throwaway file.
All trials must produce the same hash; any divergence is reported
with the distinct hash set for diagnosis. Exits 0 when the check
passes and 1 when it fails.`,
		Examples: []cli.Example{
			{
				Description: "Five-trial stability check",
				Command:     "detpack verify ./inputs --trials 5",
			},
		},
		Flags: func() *pflag.FlagSet {
			flagSet := pflag.NewFlagSet("verify", pflag.ContinueOnError)
			addConfigFlag(flagSet, &configPath)
			flagSet.IntVar(&trials, "trials", 0, "number of builds to compare (default: config verify.trials)")
			return flagSet
		},
		Run: func(args []string) error {
			if len(args) != 1 {
				return fmt.Errorf("verify requires exactly one source directory argument")
			}
			sourceRoot := args[0]

			cfg, err := loadConfig(configPath)
			if err != nil {
				return err
			}
			if trials == 0 {
				trials = cfg.Verify.Trials
			}

			logger := cli.NewCommandLogger().With("command", "verify", "source", sourceRoot)

			archiveName := filepath.Base(filepath.Clean(sourceRoot))
			report, err := archive.NewBuilder().VerifyTree(context.Background(), sourceRoot, archiveName, trials)
			if err != nil {
				return err
			}

			if !report.Deterministic() {
				logger.Error("determinism check failed", "trials", report.Trials, "distinct_hashes", len(report.Distinct))
				for i, digest := range report.Distinct {
					fmt.Printf("distinct hash %d: %s\n", i+1, digest)
				}
				fmt.Println(report)
				return &cli.ExitError{Code: 1}
			}

			logger.Info("determinism check passed", "trials", report.Trials, "hash", report.Distinct[0].String())
			fmt.Println(report)
			return nil
		},
	}
}
