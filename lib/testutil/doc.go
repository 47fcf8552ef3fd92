// Copyright 2026 The Detpack Authors
// SPDX-License-Identifier: Apache-2.0

// Package testutil provides shared test helpers for Detpack packages.
package testutil
