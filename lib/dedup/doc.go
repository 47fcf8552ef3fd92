// Copyright 2026 The Detpack Authors
// SPDX-License-Identifier: Apache-2.0

// Package dedup maintains a content-addressed index over built
// archives. Because the archiver guarantees that identical trees
// produce identical bytes, the content hash is a reliable dedup key:
// an incoming build whose hash is already indexed needs no storage,
// no upload, and no reprocessing.
//
// The index is a single CBOR file rewritten atomically on every
// mutation. Records are persisted in sorted hash order and encoded
// deterministically (lib/codec), so an index holding the same
// archives is itself byte-identical regardless of insertion history.
package dedup
