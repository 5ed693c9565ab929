// Package storage provides the object store gateway used to persist derived
// media artifacts. It defines the ObjectStore interface (port) with an S3
// implementation and a filesystem implementation for development and tests.
package storage

import (
	"context"
	"fmt"
	"io"
)

// Logical folders used by the pipeline.
const (
	FolderVideos     = "videos"
	FolderThumbnails = "thumbnails"
	FolderUploads    = "uploads"
)

// StorageError represents a failed object store operation.
type StorageError struct {
	Op  string // "upload" or "download"
	Key string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage %s %s: %v", e.Op, e.Key, e.Err)
}

func (e *StorageError) Unwrap() error {
	return e.Err
}

// ObjectStore defines durable artifact storage.
// Keys are derived deterministically from folder and filename; callers
// time-qualify filenames so overwrites cannot collide across uploads.
type ObjectStore interface {
	// Upload stores the data under folder/filename and returns a public URL.
	Upload(ctx context.Context, folder, filename, contentType string, data io.Reader) (url string, err error)

	// Download streams the object at key to a local file. Used by the
	// background compression worker.
	Download(ctx context.Context, key, destPath string) error
}
