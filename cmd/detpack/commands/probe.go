// Copyright 2026 The Detpack Authors
// SPDX-License-Identifier: Apache-2.0

package commands

import (
	"fmt"

	"github.com/isglobal-brge/detpack/cmd/detpack/cli"
	"github.com/isglobal-brge/detpack/lib/archive"
)

func probeCommand() *cli.Command {
	return &cli.Command{
		Name:    "probe",
		Summary: "Check whether a deterministic archive backend is available",
		Usage:   "detpack probe",
		Description: `Run the backend capability self-test.

The native backend archives a fixed entry set twice in memory and
requires byte-identical output. Exits 0 when the backend satisfies
the deterministic profile and 1 when it does not — a host that fails
this probe cannot build archives, and builds on it fail fast rather
than producing bytes that hash differently elsewhere.`,
		Run: func(args []string) error {
			if len(args) != 0 {
				return fmt.Errorf("probe takes no arguments")
			}

			backend := archive.NewTarGzipBackend()
			if err := archive.NewSelfTestProbe(backend).Check(); err != nil {
				fmt.Printf("backend %s: UNAVAILABLE: %v\n", backend.Name(), err)
				return &cli.ExitError{Code: 1}
			}
			fmt.Printf("backend %s: ok\n", backend.Name())
			return nil
		},
	}
}
