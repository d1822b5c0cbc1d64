// Package storage provides the blob store abstraction for uploaded
// statement files. The pipeline only ever writes a file once and re-reads it
// by its storage path; all other file metadata lives on the import record.
package storage

import (
	"context"
	"io"
	"time"

	"github.com/google/uuid"
)

// FileInfo contains metadata about a stored file
type FileInfo struct {
	ID          uuid.UUID `json:"id"`
	Name        string    `json:"name"`
	Size        int64     `json:"size"`
	ContentType string    `json:"content_type"`
	Path        string    `json:"path"` // Internal storage path
	CreatedAt   time.Time `json:"created_at"`
}

// Storage defines the interface for blob storage operations
type Storage interface {
	// Upload stores a file and returns its metadata
	Upload(ctx context.Context, userID uuid.UUID, filename string, contentType string, r io.Reader) (*FileInfo, error)

	// Open returns a reader for a previously stored file by its path
	Open(ctx context.Context, path string) (io.ReadCloser, error)

	// Delete removes a file by its path
	Delete(ctx context.Context, path string) error
}
