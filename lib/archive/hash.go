// Copyright 2026 The Detpack Authors
// SPDX-License-Identifier: Apache-2.0

package archive

import (
	"encoding/hex"
	"fmt"
	"hash"
	"io"
	"os"

	"github.com/zeebo/blake3"
)

// Hash is a 32-byte BLAKE3 digest of archive output bytes. It is the
// content-addressing key used by dedup layers.
type Hash [32]byte

// archiveDomainKey is the 32-byte key for BLAKE3 keyed hashing.
// Domain separation ensures archive hashes can never collide with
// hashes computed over the same bytes in another context. The byte
// values are the ASCII encoding of the domain name, zero-padded to
// 32 bytes, so the key is inspectable in hex dumps without losing
// any cryptographic property.
var archiveDomainKey = [32]byte{
	'd', 'e', 't', 'p', 'a', 'c', 'k', '.',
	'a', 'r', 'c', 'h', 'i', 'v', 'e', 0,
	0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0,
}

// newHasher returns a keyed BLAKE3 hasher in the archive domain.
func newHasher() hash.Hash {
	hasher, err := blake3.NewKeyed(archiveDomainKey[:])
	if err != nil {
		// NewKeyed only fails for a wrong key length, which the
		// fixed-size array rules out.
		panic("archive: BLAKE3 keyed hash initialization failed: " + err.Error())
	}
	return hasher
}

// HashBytes computes the archive-domain BLAKE3 hash of data.
func HashBytes(data []byte) Hash {
	hasher := newHasher()
	hasher.Write(data)
	var digest Hash
	copy(digest[:], hasher.Sum(nil))
	return digest
}

// HashFile computes the archive-domain BLAKE3 hash of a file's
// contents, streaming so large archives are not held in memory.
func HashFile(path string) (Hash, error) {
	file, err := os.Open(path)
	if err != nil {
		return Hash{}, fmt.Errorf("opening %s for hashing: %w", path, err)
	}
	defer file.Close()

	hasher := newHasher()
	if _, err := io.Copy(hasher, file); err != nil {
		return Hash{}, fmt.Errorf("hashing %s: %w", path, err)
	}
	var digest Hash
	copy(digest[:], hasher.Sum(nil))
	return digest, nil
}

// String returns the hex-encoded digest. This is the canonical format
// used in dedup indexes, logs, and CLI output.
func (h Hash) String() string {
	return hex.EncodeToString(h[:])
}

// ParseHash parses a 64-character hex string into a Hash.
func ParseHash(hexString string) (Hash, error) {
	var digest Hash
	decoded, err := hex.DecodeString(hexString)
	if err != nil {
		return digest, fmt.Errorf("parsing content hash: %w", err)
	}
	if len(decoded) != 32 {
		return digest, fmt.Errorf("content hash is %d bytes, want 32", len(decoded))
	}
	copy(digest[:], decoded)
	return digest, nil
}
