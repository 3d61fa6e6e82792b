/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package storage abstracts where job inputs and outputs live: the local
// filesystem or S3-compatible object storage.
package storage

import (
	"context"
	"io"
)

// Store reads and writes job artifacts by key.
type Store interface {
	// Put writes the object under key, consuming r.
	Put(ctx context.Context, key string, r io.Reader) error

	// Get opens the object for reading. The caller closes it.
	Get(ctx context.Context, key string) (io.ReadCloser, error)

	// Delete removes the object. Deleting a missing object is not an error.
	Delete(ctx context.Context, key string) error

	// URL returns a location string for diagnostics and job records.
	URL(key string) string
}
