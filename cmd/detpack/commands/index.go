// Copyright 2026 The Detpack Authors
// SPDX-License-Identifier: Apache-2.0

package commands

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/pflag"

	"github.com/isglobal-brge/detpack/cmd/detpack/cli"
	"github.com/isglobal-brge/detpack/lib/archive"
	"github.com/isglobal-brge/detpack/lib/dedup"
)

func indexCommand() *cli.Command {
	return &cli.Command{
		Name:    "index",
		Summary: "Inspect and manage the dedup index",
		Description: `Work with the content-addressed archive index.

The index maps content hashes to built archives. Because builds are
deterministic, a hash hit means the archive already exists byte for
byte — uploading or rebuilding it would be wasted work.`,
		Subcommands: []*cli.Command{
			indexListCommand(),
			indexLookupCommand(),
			indexRemoveCommand(),
		},
	}
}

func indexListCommand() *cli.Command {
	var configPath string

	return &cli.Command{
		Name:    "list",
		Summary: "List indexed archives",
		Usage:   "detpack index list [flags]",
		Flags: func() *pflag.FlagSet {
			flagSet := pflag.NewFlagSet("list", pflag.ContinueOnError)
			addConfigFlag(flagSet, &configPath)
			return flagSet
		},
		Run: func(args []string) error {
			index, err := openIndex(configPath)
			if err != nil {
				return err
			}

			records := index.Records()
			if len(records) == 0 {
				fmt.Println("index is empty")
				return nil
			}

			tw := tabwriter.NewWriter(os.Stdout, 2, 0, 3, ' ', 0)
			fmt.Fprintln(tw, "HASH\tMEMBERS\tSIZE\tPOLICY\tPATH")
			for _, record := range records {
				fmt.Fprintf(tw, "%s\t%d\t%d\t%s\t%s\n",
					record.Hash[:12], record.MemberCount, record.ArchiveBytes,
					record.PolicyVersion, record.Path)
			}
			return tw.Flush()
		},
	}
}

func indexLookupCommand() *cli.Command {
	var configPath string

	return &cli.Command{
		Name:    "lookup",
		Summary: "Look up a content hash",
		Usage:   "detpack index lookup <hash> [flags]",
		Description: `Resolve a content hash to its indexed archive.

Prints the archive path on a hit. Exits 1 on a miss — a miss is a
valid outcome for dedup callers, not an error.`,
		Flags: func() *pflag.FlagSet {
			flagSet := pflag.NewFlagSet("lookup", pflag.ContinueOnError)
			addConfigFlag(flagSet, &configPath)
			return flagSet
		},
		Run: func(args []string) error {
			if len(args) != 1 {
				return fmt.Errorf("lookup requires exactly one hash argument")
			}
			digest, err := archive.ParseHash(args[0])
			if err != nil {
				return err
			}

			index, err := openIndex(configPath)
			if err != nil {
				return err
			}

			record, ok := index.Lookup(digest)
			if !ok {
				fmt.Printf("not indexed: %s\n", digest)
				return &cli.ExitError{Code: 1}
			}
			fmt.Println(record.Path)
			return nil
		},
	}
}

func indexRemoveCommand() *cli.Command {
	var configPath string

	return &cli.Command{
		Name:    "remove",
		Summary: "Remove a content hash from the index",
		Usage:   "detpack index remove <hash> [flags]",
		Description: `Drop an index record. The archive file itself is not deleted.`,
		Flags: func() *pflag.FlagSet {
			flagSet := pflag.NewFlagSet("remove", pflag.ContinueOnError)
			addConfigFlag(flagSet, &configPath)
			return flagSet
		},
		Run: func(args []string) error {
			if len(args) != 1 {
				return fmt.Errorf("remove requires exactly one hash argument")
			}
			digest, err := archive.ParseHash(args[0])
			if err != nil {
				return err
			}

			index, err := openIndex(configPath)
			if err != nil {
				return err
			}

			removed, err := index.Remove(digest)
			if err != nil {
				return err
			}
			if !removed {
				fmt.Printf("not indexed: %s\n", digest)
				return &cli.ExitError{Code: 1}
			}
			fmt.Printf("removed %s\n", digest)
			return nil
		},
	}
}

// openIndex loads configuration and opens the dedup index it points at.
func openIndex(configPath string) (*dedup.Index, error) {
	cfg, err := loadConfig(configPath)
	if err != nil {
		return nil, err
	}
	return dedup.Open(cfg.Paths.Index)
}
