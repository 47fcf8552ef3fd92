// Copyright 2026 The Detpack Authors
// SPDX-License-Identifier: Apache-2.0

// Package codec provides Detpack's standard CBOR serialization.
//
// Encoding uses Core Deterministic Encoding (RFC 8949 §4.2): sorted
// map keys, smallest integer encoding, no indefinite-length items.
// The same logical value always serializes to the same bytes, which
// keeps persisted dedup index files byte-stable across rewrites — the
// same discipline the archiver applies to its own output.
//
// Decoding accepts standard CBOR and silently ignores unknown fields
// for forward compatibility.
package codec
