// Copyright 2026 The Detpack Authors
// SPDX-License-Identifier: Apache-2.0

package testutil

import (
	"os"
	"path/filepath"
	"testing"
)

// WriteTree materializes files under root. Keys are slash-separated
// relative paths; a key ending in "/" creates an empty directory.
// Parent directories are created as needed. Fails the test on any
// filesystem error.
//
//	testutil.WriteTree(t, root, map[string]string{
//	    "pheno.csv":            "id,age\nA,34\n",
//	    "IDATs/A_1_Red.idat":   "\x01\x02\x03",
//	    "empty/":               "",
//	})
func WriteTree(t *testing.T, root string, files map[string]string) {
	t.Helper()
	for relPath, content := range files {
		fullPath := filepath.Join(root, filepath.FromSlash(relPath))
		if len(relPath) > 0 && relPath[len(relPath)-1] == '/' {
			if err := os.MkdirAll(fullPath, 0o755); err != nil {
				t.Fatalf("creating directory %s: %v", fullPath, err)
			}
			continue
		}
		if err := os.MkdirAll(filepath.Dir(fullPath), 0o755); err != nil {
			t.Fatalf("creating parent of %s: %v", fullPath, err)
		}
		if err := os.WriteFile(fullPath, []byte(content), 0o644); err != nil {
			t.Fatalf("writing %s: %v", fullPath, err)
		}
	}
}

// ReadTree returns the relative path → content mapping of every
// regular file under root, with slash-separated keys. Symlinks and
// empty directories are omitted. Fails the test on any filesystem
// error.
func ReadTree(t *testing.T, root string) map[string]string {
	t.Helper()
	files := make(map[string]string)
	err := filepath.WalkDir(root, func(path string, entry os.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if !entry.Type().IsRegular() {
			return nil
		}
		relPath, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		content, err := os.ReadFile(path)
		if err != nil {
			return err
		}
		files[filepath.ToSlash(relPath)] = string(content)
		return nil
	})
	if err != nil {
		t.Fatalf("reading tree %s: %v", root, err)
	}
	return files
}
