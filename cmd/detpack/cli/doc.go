// Copyright 2026 The Detpack Authors
// SPDX-License-Identifier: Apache-2.0

// Package cli is the command framework for the detpack binary:
// subcommand dispatch, flag parsing via pflag, structured help
// output, and typo suggestions.
package cli
