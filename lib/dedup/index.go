// Copyright 2026 The Detpack Authors
// SPDX-License-Identifier: Apache-2.0

package dedup

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/isglobal-brge/detpack/lib/archive"
	"github.com/isglobal-brge/detpack/lib/codec"
)

// indexVersion is the on-disk format version. Bumped only for
// incompatible record changes; unknown fields in records are already
// tolerated by the decoder.
const indexVersion = 1

// Record describes one indexed archive.
type Record struct {
	// Hash is the hex-encoded content hash of the archive bytes —
	// the dedup key.
	Hash string `cbor:"hash"`

	// Path is where the archive lives.
	Path string `cbor:"path"`

	// MemberCount is the number of tree entries in the archive.
	MemberCount int `cbor:"member_count"`

	// UncompressedBytes is the sum of regular file sizes in the
	// archived tree.
	UncompressedBytes int64 `cbor:"uncompressed_bytes"`

	// ArchiveBytes is the size of the archive file itself.
	ArchiveBytes int64 `cbor:"archive_bytes"`

	// PolicyVersion is the normalization profile the archive was
	// built under. Hashes are only comparable within one profile.
	PolicyVersion string `cbor:"policy_version"`
}

// indexFile is the persisted representation.
type indexFile struct {
	Version  int      `cbor:"version"`
	Archives []Record `cbor:"archives"`
}

// Index is a content-addressed archive index backed by one CBOR
// file. Safe for concurrent use; every mutation rewrites the file
// atomically before returning.
type Index struct {
	path string

	mu      sync.Mutex
	records map[string]Record
}

// Open loads the index at path, creating an empty one if the file
// does not exist yet.
func Open(path string) (*Index, error) {
	index := &Index{
		path:    path,
		records: make(map[string]Record),
	}

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return index, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading dedup index %s: %w", path, err)
	}

	var file indexFile
	if err := codec.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("decoding dedup index %s: %w", path, err)
	}
	if file.Version != indexVersion {
		return nil, fmt.Errorf("dedup index %s has version %d, want %d", path, file.Version, indexVersion)
	}
	for _, record := range file.Archives {
		index.records[record.Hash] = record
	}
	return index, nil
}

// Put indexes a build result. Returns true if the hash was already
// present (a dedup hit) — the index is left untouched in that case,
// since the existing archive is byte-identical by the archiver's
// contract. The policyVersion must be the profile the build ran
// under.
func (idx *Index) Put(result *archive.Result, policyVersion string) (bool, error) {
	info, err := os.Stat(result.OutputPath)
	if err != nil {
		return false, fmt.Errorf("stating archive %s: %w", result.OutputPath, err)
	}

	idx.mu.Lock()
	defer idx.mu.Unlock()

	key := result.ContentHash.String()
	if _, exists := idx.records[key]; exists {
		return true, nil
	}

	idx.records[key] = Record{
		Hash:              key,
		Path:              result.OutputPath,
		MemberCount:       result.MemberCount,
		UncompressedBytes: result.TotalUncompressedBytes,
		ArchiveBytes:      info.Size(),
		PolicyVersion:     policyVersion,
	}
	if err := idx.saveLocked(); err != nil {
		delete(idx.records, key)
		return false, err
	}
	return false, nil
}

// Lookup returns the record for a content hash, if indexed.
func (idx *Index) Lookup(hash archive.Hash) (Record, bool) {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	record, ok := idx.records[hash.String()]
	return record, ok
}

// Remove drops a content hash from the index. Returns true if it was
// present. The archive file itself is not touched — storage cleanup
// is the caller's concern.
func (idx *Index) Remove(hash archive.Hash) (bool, error) {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	key := hash.String()
	record, exists := idx.records[key]
	if !exists {
		return false, nil
	}
	delete(idx.records, key)
	if err := idx.saveLocked(); err != nil {
		idx.records[key] = record
		return false, err
	}
	return true, nil
}

// Records returns all records sorted by hash. The order matches the
// persisted order, so listing output is stable across runs.
func (idx *Index) Records() []Record {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	return idx.sortedLocked()
}

// Len returns the number of indexed archives.
func (idx *Index) Len() int {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	return len(idx.records)
}

// sortedLocked returns records in hash order. Caller holds mu.
func (idx *Index) sortedLocked() []Record {
	records := make([]Record, 0, len(idx.records))
	for _, record := range idx.records {
		records = append(records, record)
	}
	sort.Slice(records, func(i, j int) bool {
		return records[i].Hash < records[j].Hash
	})
	return records
}

// saveLocked writes the index to disk via atomic rename. Caller
// holds mu.
func (idx *Index) saveLocked() error {
	data, err := codec.Marshal(indexFile{
		Version:  indexVersion,
		Archives: idx.sortedLocked(),
	})
	if err != nil {
		return fmt.Errorf("encoding dedup index: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(idx.path), 0o755); err != nil {
		return fmt.Errorf("creating dedup index directory: %w", err)
	}

	tmpFile, err := os.CreateTemp(filepath.Dir(idx.path), ".index-*.cbor")
	if err != nil {
		return fmt.Errorf("creating temp index file: %w", err)
	}
	tmpPath := tmpFile.Name()

	success := false
	defer func() {
		if !success {
			os.Remove(tmpPath)
		}
	}()

	if _, err := tmpFile.Write(data); err != nil {
		tmpFile.Close()
		return fmt.Errorf("writing dedup index: %w", err)
	}
	if err := tmpFile.Close(); err != nil {
		return fmt.Errorf("closing temp index file: %w", err)
	}
	if err := os.Rename(tmpPath, idx.path); err != nil {
		return fmt.Errorf("renaming dedup index to %s: %w", idx.path, err)
	}
	success = true
	return nil
}
