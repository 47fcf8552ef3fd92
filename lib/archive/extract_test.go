// Copyright 2026 The Detpack Authors
// SPDX-License-Identifier: Apache-2.0

package archive

import (
	"archive/tar"
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/klauspost/compress/gzip"

	"github.com/isglobal-brge/detpack/lib/testutil"
)

func TestExtractRoundTrip(t *testing.T) {
	sourceFiles := map[string]string{
		"pheno.csv":          "id,age\nA,34\nB,51\n",
		"IDATs/A_1_Red.idat": "\x00\x01\x02\x03binary",
		"IDATs/A_1_Grn.idat": "\x04\x05\x06\x07binary",
		"notes/readme.txt":   "methylation input bundle\n",
	}
	root := t.TempDir()
	testutil.WriteTree(t, root, sourceFiles)

	outputPath := filepath.Join(t.TempDir(), "bundle.tar.gz")
	result, err := NewBuilder().Build(context.Background(), Request{
		SourceRoot:  root,
		OutputPath:  outputPath,
		ArchiveName: "bundle",
	})
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}

	destDir := t.TempDir()
	extractedRoot, err := Extract(context.Background(), result.OutputPath, destDir)
	if err != nil {
		t.Fatalf("Extract failed: %v", err)
	}

	// The archive has exactly one root entry, so Extract returns the
	// named root directory, not destDir.
	if extractedRoot != filepath.Join(destDir, "bundle") {
		t.Errorf("extracted root = %s, want %s", extractedRoot, filepath.Join(destDir, "bundle"))
	}

	// Contents and relative paths must match the source exactly.
	// Ownership and mtimes need not (and will not) match.
	extracted := testutil.ReadTree(t, extractedRoot)
	if len(extracted) != len(sourceFiles) {
		t.Errorf("extracted %d files, want %d", len(extracted), len(sourceFiles))
	}
	for relPath, want := range sourceFiles {
		got, ok := extracted[relPath]
		if !ok {
			t.Errorf("missing extracted file %s", relPath)
			continue
		}
		if got != want {
			t.Errorf("content mismatch for %s", relPath)
		}
	}
}

func TestExtractSymlinkRoundTrip(t *testing.T) {
	root := t.TempDir()
	testutil.WriteTree(t, root, map[string]string{"data/real.csv": "x,y\n"})
	if err := os.Symlink("data/real.csv", filepath.Join(root, "alias.csv")); err != nil {
		t.Fatalf("creating symlink: %v", err)
	}

	outputPath := filepath.Join(t.TempDir(), "bundle.tar.gz")
	result, err := NewBuilder().Build(context.Background(), Request{
		SourceRoot:  root,
		OutputPath:  outputPath,
		ArchiveName: "bundle",
	})
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}

	extractedRoot, err := Extract(context.Background(), result.OutputPath, t.TempDir())
	if err != nil {
		t.Fatalf("Extract failed: %v", err)
	}

	target, err := os.Readlink(filepath.Join(extractedRoot, "alias.csv"))
	if err != nil {
		t.Fatalf("reading extracted symlink: %v", err)
	}
	if target != "data/real.csv" {
		t.Errorf("symlink target = %q, want %q", target, "data/real.csv")
	}
}

func TestExtractRejectsUnsupportedExtension(t *testing.T) {
	_, err := Extract(context.Background(), filepath.Join(t.TempDir(), "bundle.zip"), t.TempDir())
	if !errors.Is(err, ErrUnsupportedFormat) {
		t.Fatalf("Extract(.zip) = %v, want ErrUnsupportedFormat", err)
	}
}

func TestExtractRejectsNonGzipContent(t *testing.T) {
	// Right extension, wrong signature: a ZIP renamed to .tar.gz must
	// still be refused before anything is written.
	fakePath := filepath.Join(t.TempDir(), "fake.tar.gz")
	if err := os.WriteFile(fakePath, []byte("PK\x03\x04 definitely not gzip"), 0o644); err != nil {
		t.Fatalf("writing fake archive: %v", err)
	}

	destDir := t.TempDir()
	_, err := Extract(context.Background(), fakePath, destDir)
	if !errors.Is(err, ErrUnsupportedFormat) {
		t.Fatalf("Extract(renamed zip) = %v, want ErrUnsupportedFormat", err)
	}

	entries, err := os.ReadDir(destDir)
	if err != nil {
		t.Fatalf("reading dest dir: %v", err)
	}
	if len(entries) != 0 {
		t.Errorf("rejected extract wrote %d entries", len(entries))
	}
}

func TestExtractMissingArchive(t *testing.T) {
	_, err := Extract(context.Background(), filepath.Join(t.TempDir(), "absent.tar.gz"), t.TempDir())
	if !errors.Is(err, ErrMissingSource) {
		t.Fatalf("Extract(missing) = %v, want ErrMissingSource", err)
	}
}

// writeForeignArchive produces a tar.gz whose members are chosen by
// the test, bypassing the builder's layout discipline. Members are
// regular files.
func writeForeignArchive(t *testing.T, path string, members map[string]string) {
	t.Helper()
	var buffer bytes.Buffer
	gzipWriter := gzip.NewWriter(&buffer)
	tarWriter := tar.NewWriter(gzipWriter)
	for name, content := range members {
		header := &tar.Header{
			Name: name,
			Mode: 0o644,
			Size: int64(len(content)),
		}
		if err := tarWriter.WriteHeader(header); err != nil {
			t.Fatalf("writing foreign header: %v", err)
		}
		if _, err := tarWriter.Write([]byte(content)); err != nil {
			t.Fatalf("writing foreign content: %v", err)
		}
	}
	if err := tarWriter.Close(); err != nil {
		t.Fatalf("closing tar: %v", err)
	}
	if err := gzipWriter.Close(); err != nil {
		t.Fatalf("closing gzip: %v", err)
	}
	if err := os.WriteFile(path, buffer.Bytes(), 0o644); err != nil {
		t.Fatalf("writing archive: %v", err)
	}
}

func TestExtractRejectsPathTraversal(t *testing.T) {
	for name, member := range map[string]string{
		"dotdot":   "../evil.txt",
		"absolute": "/etc/evil.txt",
		"nested":   "ok/../../evil.txt",
	} {
		t.Run(name, func(t *testing.T) {
			archivePath := filepath.Join(t.TempDir(), "evil.tar.gz")
			writeForeignArchive(t, archivePath, map[string]string{member: "pwned"})
			_, err := Extract(context.Background(), archivePath, t.TempDir())
			if err == nil {
				t.Fatalf("Extract accepted traversal member %q", member)
			}
		})
	}
}

func TestExtractMultipleRootsReturnsDestDir(t *testing.T) {
	archivePath := filepath.Join(t.TempDir(), "flat.tar.gz")
	writeForeignArchive(t, archivePath, map[string]string{
		"first.txt":  "one",
		"second.txt": "two",
	})

	destDir := t.TempDir()
	extractedRoot, err := Extract(context.Background(), archivePath, destDir)
	if err != nil {
		t.Fatalf("Extract failed: %v", err)
	}
	if extractedRoot != destDir {
		t.Errorf("extracted root = %s, want dest dir %s", extractedRoot, destDir)
	}
}

func TestExtractSingleRootFileReturnsDestDir(t *testing.T) {
	// The single-root return is defined for a top-level directory. A
	// foreign archive whose only member is a regular file extracts
	// fine, but the reported root is destDir, never the file itself.
	archivePath := filepath.Join(t.TempDir(), "lone.tar.gz")
	writeForeignArchive(t, archivePath, map[string]string{
		"only.txt": "solitary",
	})

	destDir := t.TempDir()
	extractedRoot, err := Extract(context.Background(), archivePath, destDir)
	if err != nil {
		t.Fatalf("Extract failed: %v", err)
	}
	if extractedRoot != destDir {
		t.Errorf("extracted root = %s, want dest dir %s", extractedRoot, destDir)
	}

	content, err := os.ReadFile(filepath.Join(destDir, "only.txt"))
	if err != nil {
		t.Fatalf("reading extracted file: %v", err)
	}
	if string(content) != "solitary" {
		t.Errorf("extracted content = %q, want %q", content, "solitary")
	}
}
