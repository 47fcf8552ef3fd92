// Copyright 2026 The Detpack Authors
// SPDX-License-Identifier: Apache-2.0

// The detpack binary builds, verifies, and extracts deterministic
// tar.gz archives, and manages the content-addressed dedup index
// over them. Run "detpack --help" for the command tree.
package main
