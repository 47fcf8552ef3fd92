// Copyright 2026 The Detpack Authors
// SPDX-License-Identifier: Apache-2.0

package archive

import (
	"errors"
	"fmt"
	"time"
)

// Sentinel errors for the failure kinds callers dispatch on. All are
// returned wrapped with context; match with errors.Is.
var (
	// ErrMissingSource means the source tree does not exist or is not
	// a directory.
	ErrMissingSource = errors.New("source tree missing")

	// ErrBackendUnavailable means the capability probe found no
	// backend able to satisfy the deterministic profile. Fatal for
	// every build in the process — there is no fallback, because a
	// non-deterministic fallback would silently break the content
	// hash contract.
	ErrBackendUnavailable = errors.New("no deterministic archive backend available")

	// ErrUnsupportedFormat means an input or output path is not in
	// the single supported tar.gz profile. Alternative archive
	// formats are rejected at the boundary, not decoded.
	ErrUnsupportedFormat = errors.New("unsupported archive format")

	// ErrEmptyTree means the source tree contains zero entries. An
	// empty archive has no content to address, so the build refuses
	// it rather than minting a hash for nothing.
	ErrEmptyTree = errors.New("source tree is empty")
)

// WriteError reports a failure to write the archive output. The
// partially-written file has already been removed by the time the
// error is returned.
type WriteError struct {
	// Path is the output path that could not be written.
	Path string

	// Err is the underlying cause.
	Err error
}

func (e *WriteError) Error() string {
	return fmt.Sprintf("writing archive %s: %v", e.Path, e.Err)
}

func (e *WriteError) Unwrap() error {
	return e.Err
}

// BuildTimeoutError reports that a caller-imposed deadline expired
// mid-build. Timeouts are an operational concern, not a correctness
// one: retrying the same tree after a timeout yields the same hash
// the interrupted build would have produced.
type BuildTimeoutError struct {
	// Elapsed is how long the build ran before the deadline fired.
	Elapsed time.Duration
}

func (e *BuildTimeoutError) Error() string {
	return fmt.Sprintf("archive build timed out after %v", e.Elapsed)
}
