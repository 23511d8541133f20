package store

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// readJSON decodes path into v. A missing file or corrupt content leaves v
// untouched and returns ok=false; the caller starts from an empty document.
// Losing a corrupt store beats blocking every hook behind it.
func readJSON(path string, v any) bool {
	b, err := os.ReadFile(path) //nolint:gosec // G304: path comes from resolved store dir
	if err != nil {
		return false
	}
	if err := json.Unmarshal(b, v); err != nil {
		return false
	}
	return true
}

// writeJSONAtomic marshals v and replaces path via a sibling temp file and
// rename, so concurrent readers never observe a partial document.
func writeJSONAtomic(path string, v any) error {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal %s: %w", filepath.Base(path), err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp for %s: %w", path, err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(b); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return fmt.Errorf("write temp for %s: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("close temp for %s: %w", path, err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("rename %s: %w", path, err)
	}
	return nil
}

// updateFile runs fn under the file's advisory lock. fn receives the decoded
// document (or the zero value when the file is missing or corrupt) and
// reports whether the document changed.
func updateFile[T any](path string, fn func(doc *T) (changed bool, err error)) error {
	lock, err := lockFile(path)
	if err != nil {
		return err
	}
	defer unlockFile(lock)

	var doc T
	readJSON(path, &doc)

	changed, err := fn(&doc)
	if err != nil {
		return err
	}
	if !changed {
		return nil
	}
	return writeJSONAtomic(path, &doc)
}
