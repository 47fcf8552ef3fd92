// Copyright 2026 The Detpack Authors
// SPDX-License-Identifier: Apache-2.0

package archive

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// Entry is one filesystem entry selected for archiving, with the
// metadata the backend needs to serialize it. Entries carry only
// content-derived information: the relative path, the kind, the size,
// the symlink target, and the single surviving permission bit
// (executable or not). Everything else comes from the Policy.
type Entry struct {
	// RelPath is the slash-separated path relative to the source
	// root. Never empty, never absolute, never contains "..".
	RelPath string

	// Kind distinguishes regular files, directories, and symlinks.
	Kind EntryKind

	// Size is the file size in bytes. Zero for directories and
	// symlinks.
	Size int64

	// LinkTarget is the symlink target, verbatim. Only set for
	// EntrySymlink.
	LinkTarget string

	// Executable records whether any execute bit was set on a regular
	// file. The backend maps this to the policy's ExecMode or FileMode.
	Executable bool

	// sourcePath is the absolute path to read content from.
	sourcePath string
}

// EntryKind is the type of filesystem entry.
type EntryKind uint8

const (
	// EntryFile is a regular file.
	EntryFile EntryKind = iota
	// EntryDir is a directory.
	EntryDir
	// EntrySymlink is a symbolic link.
	EntrySymlink
)

// String returns the human-readable name of an entry kind.
func (k EntryKind) String() string {
	switch k {
	case EntryFile:
		return "file"
	case EntryDir:
		return "dir"
	case EntrySymlink:
		return "symlink"
	default:
		return fmt.Sprintf("unknown(%d)", k)
	}
}

// CollectEntries walks sourceRoot and returns every entry beneath it,
// sorted by byte-wise lexicographic relative path. The sort is the
// canonical member order — directory iteration order from the OS is
// deliberately discarded. Ties cannot occur because paths are unique
// within a tree.
//
// The root directory itself is not returned; the backend synthesizes
// the archive's root member from the request's archive name.
//
// Sockets, devices, and other special files fail the walk: their
// presence means the tree is not plain content, and archiving them
// would require host-dependent metadata the deterministic profile
// forbids.
func CollectEntries(sourceRoot string) ([]Entry, error) {
	info, err := os.Stat(sourceRoot)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrMissingSource, sourceRoot)
		}
		return nil, fmt.Errorf("stating source root %s: %w", sourceRoot, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("%w: %s is not a directory", ErrMissingSource, sourceRoot)
	}

	var entries []Entry
	err = filepath.WalkDir(sourceRoot, func(path string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if path == sourceRoot {
			return nil
		}

		relPath, err := filepath.Rel(sourceRoot, path)
		if err != nil {
			return fmt.Errorf("computing relative path for %s: %w", path, err)
		}
		relPath = filepath.ToSlash(relPath)

		switch {
		case d.Type().IsDir():
			entries = append(entries, Entry{
				RelPath:    relPath,
				Kind:       EntryDir,
				sourcePath: path,
			})

		case d.Type().IsRegular():
			fileInfo, err := d.Info()
			if err != nil {
				return fmt.Errorf("stating %s: %w", path, err)
			}
			entries = append(entries, Entry{
				RelPath:    relPath,
				Kind:       EntryFile,
				Size:       fileInfo.Size(),
				Executable: fileInfo.Mode().Perm()&0o111 != 0,
				sourcePath: path,
			})

		case d.Type()&fs.ModeSymlink != 0:
			target, err := os.Readlink(path)
			if err != nil {
				return fmt.Errorf("reading symlink %s: %w", path, err)
			}
			entries = append(entries, Entry{
				RelPath:    relPath,
				Kind:       EntrySymlink,
				LinkTarget: target,
				sourcePath: path,
			})

		default:
			return fmt.Errorf("unsupported file type %s at %s", d.Type(), path)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	// Canonical order: byte-wise lexicographic on the relative path.
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].RelPath < entries[j].RelPath
	})

	return entries, nil
}

// validateArchiveName rejects archive names that cannot serve as the
// embedded root member: empty names, names with path separators, and
// path navigation components.
func validateArchiveName(name string) error {
	if name == "" {
		return fmt.Errorf("archive name is empty")
	}
	if strings.ContainsAny(name, "/\\") {
		return fmt.Errorf("archive name %q contains a path separator", name)
	}
	if name == "." || name == ".." {
		return fmt.Errorf("archive name %q is a path navigation component", name)
	}
	return nil
}
