// Copyright 2026 The Detpack Authors
// SPDX-License-Identifier: Apache-2.0

package archive

import (
	"archive/tar"
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/klauspost/compress/gzip"
)

// Backend serializes a sorted entry list into compressed archive
// bytes under a normalization policy. It is an injection point: the
// builder never knows whether the backend binds a compression library
// directly or delegates elsewhere, only that the output honors the
// policy byte-for-byte.
type Backend interface {
	// Name identifies the backend in logs and probe failures.
	Name() string

	// ProduceArchive writes the complete archive for the given
	// entries to w. Entries arrive already sorted in canonical order;
	// the backend must serialize them in that order with all metadata
	// taken from policy, and must not embed any wall-clock value in
	// the container framing.
	ProduceArchive(ctx context.Context, archiveName string, entries []Entry, policy Policy, w io.Writer) error
}

// TarGzipBackend is the native backend: archive/tar serialization
// compressed with klauspost gzip. Binding the libraries directly
// avoids process-spawn overhead and argument-quoting hazards, and
// removes any dependency on a host tar binary's flag dialect.
type TarGzipBackend struct{}

// NewTarGzipBackend returns the native tar.gz backend.
func NewTarGzipBackend() *TarGzipBackend {
	return &TarGzipBackend{}
}

// Name implements Backend.
func (b *TarGzipBackend) Name() string {
	return "native-tar-gzip"
}

// ProduceArchive implements Backend. Members are written as
// archiveName/<relPath> so extraction produces a single named root
// directory. The gzip header carries no modification time (MTIME
// zero), no file name, and the policy's fixed OS byte — the three
// header fields that would otherwise vary across runs and hosts.
func (b *TarGzipBackend) ProduceArchive(ctx context.Context, archiveName string, entries []Entry, policy Policy, w io.Writer) error {
	gzipWriter, err := gzip.NewWriterLevel(w, policy.GzipLevel)
	if err != nil {
		return fmt.Errorf("initializing gzip writer: %w", err)
	}
	// The compressor serializes MTIME as uint32(ModTime.Unix()), so a
	// Unix-zero ModTime yields the field's 0 "not available" encoding.
	// The zero time.Time would not: its Unix value truncates to a
	// non-zero constant.
	gzipWriter.ModTime = time.Unix(0, 0)
	gzipWriter.OS = policy.GzipOS

	tarWriter := tar.NewWriter(gzipWriter)

	// Synthesized root member. Every entry lives under it.
	if err := tarWriter.WriteHeader(b.header(archiveName+"/", Entry{Kind: EntryDir}, policy)); err != nil {
		return fmt.Errorf("writing root member %s: %w", archiveName, err)
	}

	for _, entry := range entries {
		// A cancelled context aborts between members, not mid-member,
		// so the error surfaces at a clean boundary.
		if err := ctx.Err(); err != nil {
			return err
		}

		memberName := archiveName + "/" + entry.RelPath
		if entry.Kind == EntryDir {
			memberName += "/"
		}

		if err := tarWriter.WriteHeader(b.header(memberName, entry, policy)); err != nil {
			return fmt.Errorf("writing member header %s: %w", memberName, err)
		}

		if entry.Kind == EntryFile {
			if err := b.copyFileContent(tarWriter, entry); err != nil {
				return fmt.Errorf("writing member content %s: %w", memberName, err)
			}
		}
	}

	if err := tarWriter.Close(); err != nil {
		return fmt.Errorf("finalizing tar stream: %w", err)
	}
	if err := gzipWriter.Close(); err != nil {
		return fmt.Errorf("finalizing gzip stream: %w", err)
	}
	return nil
}

// header builds a tar header for entry with every metadata field
// taken from policy. GNU format keeps long paths representable
// without PAX extension records, which would carry their own
// key-value framing to keep deterministic.
func (b *TarGzipBackend) header(memberName string, entry Entry, policy Policy) *tar.Header {
	header := &tar.Header{
		Name:    memberName,
		ModTime: policy.ModTime,
		Uid:     policy.UID,
		Gid:     policy.GID,
		Uname:   "",
		Gname:   "",
		Format:  tar.FormatGNU,
	}

	switch entry.Kind {
	case EntryDir:
		header.Typeflag = tar.TypeDir
		header.Mode = int64(policy.DirMode)
	case EntrySymlink:
		header.Typeflag = tar.TypeSymlink
		header.Linkname = entry.LinkTarget
		header.Mode = int64(policy.FileMode)
	default:
		header.Typeflag = tar.TypeReg
		header.Size = entry.Size
		if entry.Executable {
			header.Mode = int64(policy.ExecMode)
		} else {
			header.Mode = int64(policy.FileMode)
		}
	}
	return header
}

// copyFileContent streams a file's bytes into the tar writer and
// verifies the size matched the header. A file that changed size
// between enumeration and serialization would corrupt the stream, so
// the mismatch is an error, not a truncation.
func (b *TarGzipBackend) copyFileContent(tarWriter *tar.Writer, entry Entry) error {
	file, err := os.Open(entry.sourcePath)
	if err != nil {
		return err
	}
	defer file.Close()

	written, err := io.Copy(tarWriter, file)
	if err != nil {
		return err
	}
	if written != entry.Size {
		return fmt.Errorf("file size changed during archiving: header says %d bytes, copied %d", entry.Size, written)
	}
	return nil
}
