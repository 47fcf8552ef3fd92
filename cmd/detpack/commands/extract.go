// Copyright 2026 The Detpack Authors
// SPDX-License-Identifier: Apache-2.0

package commands

import (
	"context"
	"fmt"

	"github.com/spf13/pflag"

	"github.com/isglobal-brge/detpack/cmd/detpack/cli"
	"github.com/isglobal-brge/detpack/lib/archive"
)

func extractCommand() *cli.Command {
	var destDir string

	return &cli.Command{
		Name:    "extract",
		Summary: "Extract a detpack tar.gz archive",
		Usage:   "detpack extract <archive> [flags]",
		Description: `Materialize an archive's contents under a destination directory.

Only the tar.gz profile is accepted: the extension must be .tar.gz or
.tgz and the file must carry the gzip signature. Anything else is
rejected without writing a byte. The path of the extracted root is
printed to stdout — the single top-level directory when the archive
has one root entry (the layout detpack build produces), otherwise the
destination directory itself.`,
		Examples: []cli.Example{
			{
				Description: "Extract into a working directory",
				Command:     "detpack extract inputs.tar.gz -d /tmp/work",
			},
		},
		Flags: func() *pflag.FlagSet {
			flagSet := pflag.NewFlagSet("extract", pflag.ContinueOnError)
			flagSet.StringVarP(&destDir, "dest", "d", ".", "destination directory")
			return flagSet
		},
		Run: func(args []string) error {
			if len(args) != 1 {
				return fmt.Errorf("extract requires exactly one archive argument")
			}

			extractedRoot, err := archive.Extract(context.Background(), args[0], destDir)
			if err != nil {
				return err
			}
			fmt.Println(extractedRoot)
			return nil
		},
	}
}
