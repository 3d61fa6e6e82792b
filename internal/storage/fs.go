/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package storage

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/rs/zerolog"
)

// Filesystem stores artifacts under a root directory. Keys are relative
// paths; traversal outside the root is rejected.
type Filesystem struct {
	root   string
	logger zerolog.Logger
}

// NewFilesystem creates a filesystem store rooted at root.
func NewFilesystem(root string, logger zerolog.Logger) *Filesystem {
	return &Filesystem{root: root, logger: logger.With().Str("component", "fs_storage").Logger()}
}

func (f *Filesystem) resolve(key string) (string, error) {
	path := filepath.Join(f.root, filepath.FromSlash(key))
	rel, err := filepath.Rel(f.root, path)
	if err != nil || rel == ".." || len(rel) >= 3 && rel[:3] == ".."+string(filepath.Separator) {
		return "", fmt.Errorf("key %q escapes storage root", key)
	}
	return path, nil
}

func (f *Filesystem) Put(ctx context.Context, key string, r io.Reader) error {
	path, err := f.resolve(key)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create directories: %w", err)
	}
	dest, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create file: %w", err)
	}
	defer dest.Close()
	if _, err := io.Copy(dest, r); err != nil {
		os.Remove(path)
		return fmt.Errorf("write file: %w", err)
	}
	f.logger.Debug().Str("key", key).Msg("artifact stored")
	return nil
}

func (f *Filesystem) Get(ctx context.Context, key string) (io.ReadCloser, error) {
	path, err := f.resolve(key)
	if err != nil {
		return nil, err
	}
	return os.Open(path)
}

func (f *Filesystem) Delete(ctx context.Context, key string) error {
	path, err := f.resolve(key)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove file: %w", err)
	}
	return nil
}

func (f *Filesystem) URL(key string) string {
	path, err := f.resolve(key)
	if err != nil {
		return key
	}
	return path
}

// CheckAccess verifies the storage root exists and is a directory.
func (f *Filesystem) CheckAccess(ctx context.Context) error {
	info, err := os.Stat(f.root)
	if err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("storage root does not exist: %s", f.root)
		}
		return fmt.Errorf("cannot access storage root: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("storage root is not a directory: %s", f.root)
	}
	return nil
}
