// Copyright 2026 The Detpack Authors
// SPDX-License-Identifier: Apache-2.0

package archive

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
)

// DeterminismReport is the outcome of a repeated-build check.
type DeterminismReport struct {
	// Trials is the number of builds performed.
	Trials int

	// Hashes are the content hashes in trial order.
	Hashes []Hash

	// Distinct is the deduplicated hash set, in first-seen order. A
	// deterministic backend produces exactly one element; anything
	// more identifies which trials diverged.
	Distinct []Hash
}

// Deterministic reports whether every trial produced the same hash.
func (r *DeterminismReport) Deterministic() bool {
	return len(r.Distinct) == 1
}

// String summarizes the report for logs and CLI output.
func (r *DeterminismReport) String() string {
	if r.Deterministic() {
		return fmt.Sprintf("deterministic: %d trials, hash %s", r.Trials, r.Distinct[0])
	}
	return fmt.Sprintf("NOT deterministic: %d trials produced %d distinct hashes", r.Trials, len(r.Distinct))
}

// VerifyDeterminism runs buildFn trials times and reports whether
// every run produced the same content hash. This automates the manual
// "build five times, compare digests" check as a repeatable property:
// trials must be at least 2, since a single build cannot witness
// instability.
func VerifyDeterminism(ctx context.Context, trials int, buildFn func(ctx context.Context) (Hash, error)) (*DeterminismReport, error) {
	if trials < 2 {
		return nil, fmt.Errorf("determinism check needs at least 2 trials, got %d", trials)
	}

	report := &DeterminismReport{Trials: trials}
	seen := make(map[Hash]bool)

	for trial := 0; trial < trials; trial++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		digest, err := buildFn(ctx)
		if err != nil {
			return nil, fmt.Errorf("trial %d: %w", trial+1, err)
		}
		report.Hashes = append(report.Hashes, digest)
		if !seen[digest] {
			seen[digest] = true
			report.Distinct = append(report.Distinct, digest)
		}
	}
	return report, nil
}

// VerifyTree builds sourceRoot trials times into throwaway files
// under a temporary directory and reports hash stability. Each trial
// is a complete, independent build — enumeration, normalization,
// serialization, compression — so the check exercises the entire
// pipeline, not just the hash function.
func (b *Builder) VerifyTree(ctx context.Context, sourceRoot, archiveName string, trials int) (*DeterminismReport, error) {
	scratchDir, err := os.MkdirTemp("", "detpack-verify-")
	if err != nil {
		return nil, fmt.Errorf("creating verify scratch directory: %w", err)
	}
	defer os.RemoveAll(scratchDir)

	trial := 0
	return VerifyDeterminism(ctx, trials, func(ctx context.Context) (Hash, error) {
		trial++
		outputPath := filepath.Join(scratchDir, fmt.Sprintf("trial-%d.tar.gz", trial))
		result, err := b.Build(ctx, Request{
			SourceRoot:  sourceRoot,
			OutputPath:  outputPath,
			ArchiveName: archiveName,
		})
		if err != nil {
			return Hash{}, err
		}
		return result.ContentHash, nil
	})
}
