// Copyright 2026 The Detpack Authors
// SPDX-License-Identifier: Apache-2.0

// Package archive builds deterministic tar.gz archives from directory
// trees.
//
// The central contract: two trees with identical file contents and
// identical relative path sets produce byte-identical archives, and
// therefore identical content hashes, no matter when or where the
// build runs. Everything the package does serves that contract —
// members are sorted by path, filesystem metadata (mtime, uid/gid,
// permission bits) is overwritten with fixed policy constants, and
// the gzip header timestamp is suppressed so the compressor's own
// framing cannot reintroduce entropy.
//
// A downstream dedup layer (see lib/dedup) relies on the content hash
// as a cache key. The archiver's only promise to that layer is that
// the bytes are reproducible; the hash itself is the BLAKE3 digest of
// the final archive file.
package archive
