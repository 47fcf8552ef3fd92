// Copyright 2026 The Detpack Authors
// SPDX-License-Identifier: Apache-2.0

package archive

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// Request describes one archive build.
type Request struct {
	// SourceRoot is the directory tree to archive. Must exist and be
	// readable.
	SourceRoot string

	// OutputPath is where the finished archive lands. The parent
	// directory must be writable, and the extension must be .tar.gz
	// or .tgz.
	OutputPath string

	// ArchiveName is the logical root folder name embedded in the
	// archive. Every member is serialized under this prefix.
	ArchiveName string
}

// Result describes a finished build. Computed fresh on every
// invocation and never mutated after return.
type Result struct {
	// OutputPath is the path the archive was written to.
	OutputPath string

	// ContentHash is the BLAKE3 digest of the final archive bytes —
	// the value a dedup layer keys on.
	ContentHash Hash

	// MemberCount is the number of tree entries serialized, not
	// counting the synthesized root member.
	MemberCount int

	// TotalUncompressedBytes is the sum of regular file sizes in the
	// tree.
	TotalUncompressedBytes int64
}

// Builder turns directory trees into deterministic tar.gz archives.
// The zero value is not usable; construct with NewBuilder. A Builder
// is safe for concurrent use: builds share no mutable state beyond
// the probe's one-time-initialized result.
type Builder struct {
	backend Backend
	probe   Probe
	policy  Policy
}

// BuilderOption configures a Builder.
type BuilderOption func(*Builder)

// WithBackend substitutes the archive backend.
func WithBackend(backend Backend) BuilderOption {
	return func(b *Builder) { b.backend = backend }
}

// WithProbe substitutes the capability probe.
func WithProbe(probe Probe) BuilderOption {
	return func(b *Builder) { b.probe = probe }
}

// WithPolicy substitutes the normalization policy. Archives built
// under different policies hash differently even for identical trees.
func WithPolicy(policy Policy) BuilderOption {
	return func(b *Builder) { b.policy = policy }
}

// NewBuilder returns a Builder with the native tar.gz backend, a
// cached self-test probe over that backend, and PolicyV1.
func NewBuilder(options ...BuilderOption) *Builder {
	builder := &Builder{
		backend: NewTarGzipBackend(),
		policy:  PolicyV1,
	}
	for _, option := range options {
		option(builder)
	}
	if builder.probe == nil {
		builder.probe = NewCachedProbe(NewSelfTestProbe(builder.backend))
	}
	return builder
}

// Policy returns the normalization policy this builder applies.
func (b *Builder) Policy() Policy {
	return b.policy
}

// Build produces the archive described by request. The mapping from
// tree contents to archive bytes is a pure function: wall-clock time,
// filesystem ownership, directory iteration order, and process
// environment never reach the output.
//
// On any mid-build failure the partially-written output is removed
// before the error is returned — a failed build never leaves a
// corrupt archive behind. Retrying a failed build is safe and
// idempotent; the retried build yields the same hash the original
// would have.
func (b *Builder) Build(ctx context.Context, request Request) (*Result, error) {
	if err := CheckExtension(request.OutputPath); err != nil {
		return nil, err
	}
	if err := validateArchiveName(request.ArchiveName); err != nil {
		return nil, fmt.Errorf("invalid archive request: %w", err)
	}

	// Capability gate. No fallback: a build on a host without a
	// compliant backend must fail loudly, not degrade to bytes that
	// hash differently elsewhere.
	if err := b.probe.Check(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}

	entries, err := CollectEntries(request.SourceRoot)
	if err != nil {
		return nil, err
	}
	if len(entries) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrEmptyTree, request.SourceRoot)
	}

	// Wall-clock reads here are operational measurement only — they
	// inform the timeout error, never the output bytes.
	start := time.Now()
	result, err := b.serialize(ctx, request, entries)
	if err != nil {
		// Map a deadline that fired mid-build to the operational
		// timeout error; everything else passes through.
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, &BuildTimeoutError{Elapsed: time.Since(start)}
		}
		return nil, err
	}
	return result, nil
}

// serialize writes the archive to a temporary file next to the output
// path, hashing the bytes as they are produced, then renames into
// place. The rename is the commit point: readers of OutputPath see
// either nothing or a complete archive.
func (b *Builder) serialize(ctx context.Context, request Request, entries []Entry) (*Result, error) {
	outputDir := filepath.Dir(request.OutputPath)
	tmpFile, err := os.CreateTemp(outputDir, ".detpack-*.tar.gz")
	if err != nil {
		return nil, &WriteError{Path: request.OutputPath, Err: err}
	}
	tmpPath := tmpFile.Name()

	success := false
	defer func() {
		if !success {
			os.Remove(tmpPath)
		}
	}()

	// Hash the exact bytes that reach the file.
	hasher := newHasher()
	output := io.MultiWriter(tmpFile, hasher)

	if err := b.backend.ProduceArchive(ctx, request.ArchiveName, entries, b.policy, output); err != nil {
		tmpFile.Close()
		return nil, err
	}
	if err := tmpFile.Close(); err != nil {
		return nil, &WriteError{Path: request.OutputPath, Err: err}
	}

	if err := os.Rename(tmpPath, request.OutputPath); err != nil {
		return nil, &WriteError{Path: request.OutputPath, Err: err}
	}
	success = true

	var digest Hash
	copy(digest[:], hasher.Sum(nil))

	var totalBytes int64
	for _, entry := range entries {
		totalBytes += entry.Size
	}

	return &Result{
		OutputPath:             request.OutputPath,
		ContentHash:            digest,
		MemberCount:            len(entries),
		TotalUncompressedBytes: totalBytes,
	}, nil
}

// CheckExtension validates that path carries the single supported
// profile's extension. Any other extension is rejected at the
// boundary with ErrUnsupportedFormat — the deterministic guarantee is
// defined for exactly one container format, so alternatives are
// refused rather than decoded.
func CheckExtension(path string) error {
	lower := strings.ToLower(path)
	if strings.HasSuffix(lower, ".tar.gz") || strings.HasSuffix(lower, ".tgz") {
		return nil
	}
	return fmt.Errorf("%w: %s (want .tar.gz or .tgz)", ErrUnsupportedFormat, filepath.Base(path))
}
