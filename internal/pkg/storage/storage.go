package storage

import (
	"context"
	"io"
)

// Storage defines the minimal interface for blob storage backends.
// Pet images go in on upload; finished videos go in on render completion.
type Storage interface {
	// Save stores a blob at the given key and returns an error on failure.
	Save(ctx context.Context, key string, reader io.Reader, contentType string) error

	// Delete removes a blob by its key. Returns nil if the blob doesn't exist.
	Delete(ctx context.Context, key string) error

	// GetURL returns the public URL for a blob given its key.
	GetURL(key string) string
}
