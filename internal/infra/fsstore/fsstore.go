// Package fsstore writes small state files atomically.
package fsstore

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

var (
	ErrInvalidPath       = errors.New("fsstore: invalid path")
	ErrEncodeFailed      = errors.New("fsstore: encode failed")
	ErrDecodeFailed      = errors.New("fsstore: decode failed")
	ErrAtomicWriteFailed = errors.New("fsstore: atomic write failed")
)

const (
	defaultDirPerm  = 0o700
	defaultFilePerm = 0o600
)

// FileOptions sets permissions for created directories and files
type FileOptions struct {
	DirPerm  os.FileMode
	FilePerm os.FileMode
}

func (o FileOptions) withDefaults() FileOptions {
	if o.DirPerm == 0 {
		o.DirPerm = defaultDirPerm
	}
	if o.FilePerm == 0 {
		o.FilePerm = defaultFilePerm
	}
	return o
}

func cleanPath(path string) (string, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return "", fmt.Errorf("%w: empty path", ErrInvalidPath)
	}
	return filepath.Clean(path), nil
}

// EnsureDir creates path and its parents
func EnsureDir(path string, perm os.FileMode) error {
	p, err := cleanPath(path)
	if err != nil {
		return err
	}
	if perm == 0 {
		perm = defaultDirPerm
	}
	if err := os.MkdirAll(p, perm); err != nil {
		return fmt.Errorf("fsstore ensure dir %s: %w", p, err)
	}
	return nil
}

// ReadJSON decodes path into out. It reports false when the file is absent or blank.
func ReadJSON(path string, out any) (bool, error) {
	p, err := cleanPath(path)
	if err != nil {
		return false, err
	}
	data, err := os.ReadFile(p)
	if errors.Is(err, os.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("read json %s: %w", p, err)
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return false, nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return false, fmt.Errorf("%w: decode %s: %v", ErrDecodeFailed, p, err)
	}
	return true, nil
}

// WriteJSONAtomic replaces path with the indented JSON encoding of v
func WriteJSONAtomic(path string, v any, opts FileOptions) error {
	p, err := cleanPath(path)
	if err != nil {
		return err
	}
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("%w: encode %s: %v", ErrEncodeFailed, p, err)
	}
	return WriteFileAtomic(p, append(data, '\n'), opts)
}

// WriteFileAtomic writes through a temp file in the same directory and renames it
// over path, so readers see either the old or the new content.
func WriteFileAtomic(path string, content []byte, opts FileOptions) error {
	p, err := cleanPath(path)
	if err != nil {
		return err
	}
	opts = opts.withDefaults()

	dir := filepath.Dir(p)
	if err := EnsureDir(dir, opts.DirPerm); err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(p)+".tmp.*")
	if err != nil {
		return fmt.Errorf("%w: create temp for %s: %v", ErrAtomicWriteFailed, p, err)
	}
	tmpPath := tmp.Name()
	defer func() {
		_ = tmp.Close()
		_ = os.Remove(tmpPath)
	}()

	if _, err := tmp.Write(content); err != nil {
		return fmt.Errorf("%w: write %s: %v", ErrAtomicWriteFailed, p, err)
	}
	if err := tmp.Sync(); err != nil {
		return fmt.Errorf("%w: sync %s: %v", ErrAtomicWriteFailed, p, err)
	}
	if err := tmp.Chmod(opts.FilePerm); err != nil {
		return fmt.Errorf("%w: chmod %s: %v", ErrAtomicWriteFailed, p, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("%w: close %s: %v", ErrAtomicWriteFailed, p, err)
	}
	if err := os.Rename(tmpPath, p); err != nil {
		return fmt.Errorf("%w: rename %s: %v", ErrAtomicWriteFailed, p, err)
	}

	// Directory sync is best effort
	if d, err := os.Open(dir); err == nil {
		_ = d.Sync()
		_ = d.Close()
	}
	return nil
}
