// Copyright 2026 The Detpack Authors
// SPDX-License-Identifier: Apache-2.0

package archive

import (
	"io/fs"
	"time"
)

// Policy is the fixed set of metadata overrides applied to every
// archive member and to the gzip container header. It is pure data:
// no field is derived from the clock, the environment, or the host.
// Applying the same policy to the same tree twice yields byte-identical
// output — that property is what the whole package exists for.
//
// Changing any field changes the bytes of every archive built with it,
// and therefore every content hash. Treat the values as protocol
// constants and bump Version when they move.
type Policy struct {
	// Version identifies the normalization profile. Recorded so a
	// dedup index can distinguish hashes produced under different
	// profiles.
	Version string

	// ModTime is stamped on every member. A constant well in the past
	// (not the Unix epoch, which some tools treat as "missing") so
	// extracted trees are visibly normalized.
	ModTime time.Time

	// UID and GID are stamped on every member in numeric form.
	// Symbolic owner names are always written empty — name-to-id
	// resolution differs across hosts and would leak host state into
	// the byte stream.
	UID int
	GID int

	// DirMode, FileMode, and ExecMode replace the on-disk permission
	// bits. The source tree's bits vary with umask and checkout tool,
	// so they are fully normalized rather than preserved. A source
	// file keeps only one bit of permission information: whether any
	// execute bit was set.
	DirMode  fs.FileMode
	FileMode fs.FileMode
	ExecMode fs.FileMode

	// GzipOS is the operating-system byte written to the gzip header.
	// 255 is the format's "unknown" value. The gzip MTIME field is
	// always written as zero (absent) — suppressed entirely rather
	// than fixed, since an absent field is the only encoding that
	// cannot drift.
	GzipOS byte

	// GzipLevel is the fixed compression level. Any constant level is
	// deterministic for a given compressor; the level is part of the
	// profile so two builds never disagree on it.
	GzipLevel int
}

// PolicyV1 is the current normalization profile: mtime fixed at
// 2000-01-01T00:00:00Z, numeric ownership 0:0, members sorted by
// byte-wise lexicographic path order, permission bits fully
// normalized, gzip header timestamp suppressed.
var PolicyV1 = Policy{
	Version:   "v1",
	ModTime:   time.Date(2000, time.January, 1, 0, 0, 0, 0, time.UTC),
	UID:       0,
	GID:       0,
	DirMode:   0o755,
	FileMode:  0o644,
	ExecMode:  0o755,
	GzipOS:    255,
	GzipLevel: 6,
}
