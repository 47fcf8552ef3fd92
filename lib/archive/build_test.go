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
	"testing"
	"time"

	"github.com/isglobal-brge/detpack/lib/testutil"
)

// sampleTree is the reference input: a CSV metadata table plus a
// subfolder of paired binary measurement files, the layout the job
// platform ships to workers.
func sampleTree(t *testing.T) string {
	t.Helper()
	root := t.TempDir()
	testutil.WriteTree(t, root, map[string]string{
		"pheno.csv":          "id,age,smoker\nA,34,no\nB,51,yes\n",
		"IDATs/A_1_Red.idat": "\x1d\x00\x9a\xffred-channel-binary-payload",
		"IDATs/A_1_Grn.idat": "\x1d\x00\x42\x07grn-channel-binary-payload",
	})
	return root
}

func buildOnce(t *testing.T, builder *Builder, sourceRoot string) *Result {
	t.Helper()
	outputPath := filepath.Join(t.TempDir(), "bundle.tar.gz")
	result, err := builder.Build(context.Background(), Request{
		SourceRoot:  sourceRoot,
		OutputPath:  outputPath,
		ArchiveName: "bundle",
	})
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	return result
}

func TestBuildDeterministicAcrossRuns(t *testing.T) {
	root := sampleTree(t)
	builder := NewBuilder()

	// Five builds with per-run delays: the hash must never move.
	var hashes []Hash
	for trial := 0; trial < 5; trial++ {
		if trial > 0 {
			time.Sleep(20 * time.Millisecond)
		}
		hashes = append(hashes, buildOnce(t, builder, root).ContentHash)
	}
	for trial, digest := range hashes {
		if digest != hashes[0] {
			t.Fatalf("trial %d hash %s differs from trial 0 hash %s", trial+1, digest, hashes[0])
		}
	}
}

func TestBuildDeterministicAcrossBuilders(t *testing.T) {
	// Separate builders stand in for separate processes: no shared
	// state may influence the bytes.
	root := sampleTree(t)
	first := buildOnce(t, NewBuilder(), root)
	second := buildOnce(t, NewBuilder(), root)
	if first.ContentHash != second.ContentHash {
		t.Fatalf("independent builders disagree: %s vs %s", first.ContentHash, second.ContentHash)
	}
}

func TestBuildGzipHeaderIsNormalized(t *testing.T) {
	// The fixed gzip header fields are part of the byte-stability
	// contract, so check the raw bytes, not just hash agreement:
	// MTIME (offsets 4-7) must be the zero "not available" encoding
	// and the OS byte (offset 9) the policy constant.
	root := sampleTree(t)
	result := buildOnce(t, NewBuilder(), root)

	file, err := os.Open(result.OutputPath)
	if err != nil {
		t.Fatalf("opening archive: %v", err)
	}
	defer file.Close()

	var header [10]byte
	if _, err := io.ReadFull(file, header[:]); err != nil {
		t.Fatalf("reading gzip header: %v", err)
	}

	if header[0] != 0x1f || header[1] != 0x8b {
		t.Fatalf("bad gzip magic %02x %02x", header[0], header[1])
	}
	for offset := 4; offset <= 7; offset++ {
		if header[offset] != 0 {
			t.Errorf("MTIME byte at offset %d = %#02x, want 0", offset, header[offset])
		}
	}
	if header[9] != PolicyV1.GzipOS {
		t.Errorf("OS byte = %d, want %d", header[9], PolicyV1.GzipOS)
	}
}

func TestBuildContentSensitivity(t *testing.T) {
	root := sampleTree(t)
	builder := NewBuilder()
	before := buildOnce(t, builder, root)

	// Flip one byte in one binary file.
	idatPath := filepath.Join(root, "IDATs", "A_1_Red.idat")
	content, err := os.ReadFile(idatPath)
	if err != nil {
		t.Fatalf("reading idat: %v", err)
	}
	content[2] ^= 0x01
	if err := os.WriteFile(idatPath, content, 0o644); err != nil {
		t.Fatalf("rewriting idat: %v", err)
	}

	after := buildOnce(t, builder, root)
	if before.ContentHash == after.ContentHash {
		t.Fatal("single-byte edit did not change the content hash")
	}
}

func TestBuildWriteOrderIndependence(t *testing.T) {
	// Two trees with the same final state, written in opposite
	// orders. Member ordering is canonicalized, so the on-disk write
	// order must not reach the bytes.
	files := map[string]string{
		"zzz.bin":     "last alphabetically",
		"aaa.txt":     "first alphabetically",
		"mid/file.md": "middle",
	}
	forward := t.TempDir()
	for _, name := range []string{"zzz.bin", "aaa.txt", "mid/file.md"} {
		testutil.WriteTree(t, forward, map[string]string{name: files[name]})
	}
	backward := t.TempDir()
	for _, name := range []string{"mid/file.md", "aaa.txt", "zzz.bin"} {
		testutil.WriteTree(t, backward, map[string]string{name: files[name]})
	}

	builder := NewBuilder()
	forwardResult := buildOnce(t, builder, forward)
	backwardResult := buildOnce(t, builder, backward)
	if forwardResult.ContentHash != backwardResult.ContentHash {
		t.Fatalf("write order leaked into hash: %s vs %s",
			forwardResult.ContentHash, backwardResult.ContentHash)
	}
}

func TestBuildMetadataIndependence(t *testing.T) {
	root := sampleTree(t)
	builder := NewBuilder()
	before := buildOnce(t, builder, root)

	// Perturb mtimes and permission bits across the tree. Ownership
	// cannot be changed without privileges, but it is normalized by
	// the same header override.
	ancient := time.Date(1987, time.June, 5, 12, 0, 0, 0, time.UTC)
	err := filepath.WalkDir(root, func(path string, entry os.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if err := os.Chtimes(path, ancient, ancient); err != nil {
			return err
		}
		if entry.Type().IsRegular() {
			// 0o600 differs from the policy's 0o644 and keeps the
			// file readable; the execute bit stays clear so the
			// normalized mode is unchanged.
			return os.Chmod(path, 0o600)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("perturbing metadata: %v", err)
	}

	after := buildOnce(t, builder, root)
	if before.ContentHash != after.ContentHash {
		t.Fatalf("filesystem metadata leaked into hash: %s vs %s",
			before.ContentHash, after.ContentHash)
	}
}

func TestBuildExecutableBitChangesHash(t *testing.T) {
	// The execute bit is the one permission bit that survives
	// normalization, so toggling it must change the bytes.
	root := t.TempDir()
	testutil.WriteTree(t, root, map[string]string{"run.sh": "#!/bin/sh\n"})
	builder := NewBuilder()
	plain := buildOnce(t, builder, root)

	if err := os.Chmod(filepath.Join(root, "run.sh"), 0o755); err != nil {
		t.Fatalf("chmod: %v", err)
	}
	executable := buildOnce(t, builder, root)
	if plain.ContentHash == executable.ContentHash {
		t.Fatal("execute bit did not change the content hash")
	}
}

func TestBuildResultMetadata(t *testing.T) {
	root := sampleTree(t)
	result := buildOnce(t, NewBuilder(), root)

	// pheno.csv, IDATs/, and two idat files.
	if result.MemberCount != 4 {
		t.Errorf("MemberCount = %d, want 4", result.MemberCount)
	}

	var want int64
	for _, name := range []string{"pheno.csv", "IDATs/A_1_Red.idat", "IDATs/A_1_Grn.idat"} {
		info, err := os.Stat(filepath.Join(root, filepath.FromSlash(name)))
		if err != nil {
			t.Fatalf("stat %s: %v", name, err)
		}
		want += info.Size()
	}
	if result.TotalUncompressedBytes != want {
		t.Errorf("TotalUncompressedBytes = %d, want %d", result.TotalUncompressedBytes, want)
	}

	digest, err := HashFile(result.OutputPath)
	if err != nil {
		t.Fatalf("HashFile: %v", err)
	}
	if digest != result.ContentHash {
		t.Errorf("ContentHash %s does not match digest of output file %s", result.ContentHash, digest)
	}
}

func TestBuildMissingSource(t *testing.T) {
	builder := NewBuilder()
	_, err := builder.Build(context.Background(), Request{
		SourceRoot:  filepath.Join(t.TempDir(), "does-not-exist"),
		OutputPath:  filepath.Join(t.TempDir(), "out.tar.gz"),
		ArchiveName: "out",
	})
	if !errors.Is(err, ErrMissingSource) {
		t.Fatalf("Build on missing source = %v, want ErrMissingSource", err)
	}
}

func TestBuildSourceIsFile(t *testing.T) {
	root := t.TempDir()
	testutil.WriteTree(t, root, map[string]string{"plain.txt": "not a directory"})
	builder := NewBuilder()
	_, err := builder.Build(context.Background(), Request{
		SourceRoot:  filepath.Join(root, "plain.txt"),
		OutputPath:  filepath.Join(t.TempDir(), "out.tar.gz"),
		ArchiveName: "out",
	})
	if !errors.Is(err, ErrMissingSource) {
		t.Fatalf("Build on file source = %v, want ErrMissingSource", err)
	}
}

func TestBuildEmptyTree(t *testing.T) {
	builder := NewBuilder()
	_, err := builder.Build(context.Background(), Request{
		SourceRoot:  t.TempDir(),
		OutputPath:  filepath.Join(t.TempDir(), "out.tar.gz"),
		ArchiveName: "out",
	})
	if !errors.Is(err, ErrEmptyTree) {
		t.Fatalf("Build on empty tree = %v, want ErrEmptyTree", err)
	}
}

func TestBuildRejectsUnsupportedExtension(t *testing.T) {
	builder := NewBuilder()
	for _, output := range []string{"out.zip", "out.tar", "out.tar.zst", "out"} {
		t.Run(output, func(t *testing.T) {
			_, err := builder.Build(context.Background(), Request{
				SourceRoot:  sampleTree(t),
				OutputPath:  filepath.Join(t.TempDir(), output),
				ArchiveName: "out",
			})
			if !errors.Is(err, ErrUnsupportedFormat) {
				t.Fatalf("Build to %s = %v, want ErrUnsupportedFormat", output, err)
			}
		})
	}
}

func TestBuildBackendUnavailable(t *testing.T) {
	builder := NewBuilder(WithProbe(StaticProbe{Err: fmt.Errorf("no compliant tar on this host")}))
	_, err := builder.Build(context.Background(), Request{
		SourceRoot:  sampleTree(t),
		OutputPath:  filepath.Join(t.TempDir(), "out.tar.gz"),
		ArchiveName: "out",
	})
	if !errors.Is(err, ErrBackendUnavailable) {
		t.Fatalf("Build without backend = %v, want ErrBackendUnavailable", err)
	}
}

func TestBuildInvalidArchiveName(t *testing.T) {
	builder := NewBuilder()
	for _, name := range []string{"", "a/b", "..", "."} {
		t.Run(fmt.Sprintf("%q", name), func(t *testing.T) {
			_, err := builder.Build(context.Background(), Request{
				SourceRoot:  sampleTree(t),
				OutputPath:  filepath.Join(t.TempDir(), "out.tar.gz"),
				ArchiveName: name,
			})
			if err == nil {
				t.Fatalf("Build with archive name %q should fail", name)
			}
		})
	}
}

// failingBackend writes some output and then errors, to exercise
// partial-output cleanup.
type failingBackend struct{}

func (failingBackend) Name() string { return "failing" }

func (failingBackend) ProduceArchive(ctx context.Context, archiveName string, entries []Entry, policy Policy, w io.Writer) error {
	w.Write([]byte("partial garbage"))
	return fmt.Errorf("mid-build failure")
}

func TestBuildRemovesPartialOutput(t *testing.T) {
	outputDir := t.TempDir()
	outputPath := filepath.Join(outputDir, "out.tar.gz")

	builder := NewBuilder(
		WithBackend(failingBackend{}),
		WithProbe(StaticProbe{}),
	)
	_, err := builder.Build(context.Background(), Request{
		SourceRoot:  sampleTree(t),
		OutputPath:  outputPath,
		ArchiveName: "out",
	})
	if err == nil {
		t.Fatal("Build with failing backend should fail")
	}

	// Neither a final archive nor a leftover temp file may survive.
	remaining, err := os.ReadDir(outputDir)
	if err != nil {
		t.Fatalf("reading output dir: %v", err)
	}
	for _, entry := range remaining {
		t.Errorf("failed build left %s behind", entry.Name())
	}
}

func TestBuildTimeout(t *testing.T) {
	// A context that is already past its deadline fires on the first
	// per-member check inside the backend.
	ctx, cancel := context.WithDeadline(context.Background(), time.Now().Add(-time.Second))
	defer cancel()

	builder := NewBuilder()
	_, err := builder.Build(ctx, Request{
		SourceRoot:  sampleTree(t),
		OutputPath:  filepath.Join(t.TempDir(), "out.tar.gz"),
		ArchiveName: "out",
	})
	var timeoutErr *BuildTimeoutError
	if !errors.As(err, &timeoutErr) {
		t.Fatalf("Build past deadline = %v, want BuildTimeoutError", err)
	}
}

func TestCheckExtension(t *testing.T) {
	tests := []struct {
		path string
		ok   bool
	}{
		{"bundle.tar.gz", true},
		{"bundle.tgz", true},
		{"BUNDLE.TAR.GZ", true},
		{"dir/with.dots/bundle.tar.gz", true},
		{"bundle.zip", false},
		{"bundle.tar", false},
		{"bundle.gz", false},
		{"bundle", false},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			err := CheckExtension(tt.path)
			if tt.ok && err != nil {
				t.Errorf("CheckExtension(%q) = %v, want nil", tt.path, err)
			}
			if !tt.ok && !errors.Is(err, ErrUnsupportedFormat) {
				t.Errorf("CheckExtension(%q) = %v, want ErrUnsupportedFormat", tt.path, err)
			}
		})
	}
}
