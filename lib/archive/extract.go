// Copyright 2026 The Detpack Authors
// SPDX-License-Identifier: Apache-2.0

package archive

import (
	"archive/tar"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/klauspost/compress/gzip"
)

// gzipMagic is the two-byte gzip signature. Checked in addition to
// the file extension so a renamed ZIP cannot sneak past the boundary.
var gzipMagic = [2]byte{0x1f, 0x8b}

// Extract materializes a tar.gz archive under destDir and returns the
// path the caller should treat as the extracted root: the single
// top-level directory if the archive contains exactly one root entry
// (the layout Build produces), otherwise destDir itself. The caller
// owns cleanup of destDir.
//
// Only the supported profile is accepted. A wrong extension or a
// non-gzip signature fails with ErrUnsupportedFormat before any byte
// is written.
func Extract(ctx context.Context, archivePath, destDir string) (string, error) {
	if err := CheckExtension(archivePath); err != nil {
		return "", err
	}

	file, err := os.Open(archivePath)
	if err != nil {
		if os.IsNotExist(err) {
			return "", fmt.Errorf("%w: %s", ErrMissingSource, archivePath)
		}
		return "", fmt.Errorf("opening archive %s: %w", archivePath, err)
	}
	defer file.Close()

	var magic [2]byte
	if _, err := io.ReadFull(file, magic[:]); err != nil {
		return "", fmt.Errorf("%w: %s is too short to be a gzip stream", ErrUnsupportedFormat, archivePath)
	}
	if magic != gzipMagic {
		return "", fmt.Errorf("%w: %s does not carry the gzip signature", ErrUnsupportedFormat, archivePath)
	}
	if _, err := file.Seek(0, io.SeekStart); err != nil {
		return "", fmt.Errorf("rewinding archive %s: %w", archivePath, err)
	}

	gzipReader, err := gzip.NewReader(file)
	if err != nil {
		return "", fmt.Errorf("%w: %s: %v", ErrUnsupportedFormat, archivePath, err)
	}
	defer gzipReader.Close()

	if err := os.MkdirAll(destDir, 0o755); err != nil {
		return "", &WriteError{Path: destDir, Err: err}
	}

	tarReader := tar.NewReader(gzipReader)
	roots := make(map[string]bool)

	for {
		if err := ctx.Err(); err != nil {
			return "", err
		}

		header, err := tarReader.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return "", fmt.Errorf("reading archive %s: %w", archivePath, err)
		}

		cleanName, err := sanitizeMemberName(header.Name)
		if err != nil {
			return "", fmt.Errorf("archive %s: %w", archivePath, err)
		}
		// A nested member implies its root component is a directory;
		// so does a top-level directory member itself.
		root := rootComponent(cleanName)
		roots[root] = roots[root] || cleanName != root || header.Typeflag == tar.TypeDir
		targetPath := filepath.Join(destDir, filepath.FromSlash(cleanName))

		switch header.Typeflag {
		case tar.TypeDir:
			if err := os.MkdirAll(targetPath, os.FileMode(header.Mode)&0o777); err != nil {
				return "", &WriteError{Path: targetPath, Err: err}
			}

		case tar.TypeReg:
			if err := extractFile(tarReader, targetPath, os.FileMode(header.Mode)&0o777); err != nil {
				return "", err
			}

		case tar.TypeSymlink:
			if err := checkLinkTarget(cleanName, header.Linkname); err != nil {
				return "", fmt.Errorf("archive %s: %w", archivePath, err)
			}
			if err := os.MkdirAll(filepath.Dir(targetPath), 0o755); err != nil {
				return "", &WriteError{Path: targetPath, Err: err}
			}
			if err := os.Symlink(header.Linkname, targetPath); err != nil {
				return "", &WriteError{Path: targetPath, Err: err}
			}

		default:
			return "", fmt.Errorf("%w: member %s has unsupported type %d",
				ErrUnsupportedFormat, header.Name, header.Typeflag)
		}
	}

	// The single-root shortcut applies only when that root is a
	// top-level directory; a lone file still reports destDir.
	if len(roots) == 1 {
		for root, isDir := range roots {
			if isDir {
				return filepath.Join(destDir, root), nil
			}
		}
	}
	return destDir, nil
}

// extractFile writes one regular member to disk, creating parent
// directories as needed.
func extractFile(r io.Reader, targetPath string, mode os.FileMode) error {
	if err := os.MkdirAll(filepath.Dir(targetPath), 0o755); err != nil {
		return &WriteError{Path: targetPath, Err: err}
	}
	file, err := os.OpenFile(targetPath, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, mode)
	if err != nil {
		return &WriteError{Path: targetPath, Err: err}
	}
	if _, err := io.Copy(file, r); err != nil {
		file.Close()
		os.Remove(targetPath)
		return &WriteError{Path: targetPath, Err: err}
	}
	if err := file.Close(); err != nil {
		return &WriteError{Path: targetPath, Err: err}
	}
	return nil
}

// sanitizeMemberName validates a member path and returns it in clean
// slash form. Absolute paths and paths escaping the destination via
// ".." are rejected — archive contents are attacker-controlled as far
// as extraction is concerned.
func sanitizeMemberName(name string) (string, error) {
	cleaned := strings.TrimSuffix(name, "/")
	if cleaned == "" {
		return "", fmt.Errorf("member has empty path")
	}
	if strings.HasPrefix(cleaned, "/") {
		return "", fmt.Errorf("member %q has an absolute path", name)
	}
	cleaned = filepath.ToSlash(filepath.Clean(cleaned))
	if cleaned == ".." || strings.HasPrefix(cleaned, "../") {
		return "", fmt.Errorf("member %q escapes the destination directory", name)
	}
	return cleaned, nil
}

// checkLinkTarget rejects symlink targets that would resolve outside
// the extraction root.
func checkLinkTarget(memberName, linkTarget string) error {
	if strings.HasPrefix(linkTarget, "/") {
		return fmt.Errorf("symlink %q targets absolute path %q", memberName, linkTarget)
	}
	resolved := filepath.ToSlash(filepath.Clean(filepath.Join(filepath.Dir(memberName), linkTarget)))
	if resolved == ".." || strings.HasPrefix(resolved, "../") {
		return fmt.Errorf("symlink %q escapes the destination directory via %q", memberName, linkTarget)
	}
	return nil
}

// rootComponent returns the first path component of a clean slash
// path.
func rootComponent(cleanName string) string {
	if index := strings.IndexByte(cleanName, '/'); index >= 0 {
		return cleanName[:index]
	}
	return cleanName
}
