package storage

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// FSStore implements ObjectStore on the local filesystem. It exists for
// development and tests; production deployments use S3Store.
type FSStore struct {
	rootDir string
	baseURL string
}

// Compile-time check that FSStore implements ObjectStore.
var _ ObjectStore = (*FSStore)(nil)

// NewFSStore creates a filesystem-backed object store rooted at rootDir.
// Returned URLs are baseURL + "/" + key.
func NewFSStore(rootDir, baseURL string) (*FSStore, error) {
	if rootDir == "" {
		rootDir = filepath.Join(os.TempDir(), "reels-objects")
	}
	if baseURL == "" {
		baseURL = "file://" + rootDir
	}

	if err := os.MkdirAll(rootDir, 0750); err != nil {
		return nil, fmt.Errorf("create object store directory: %w", err)
	}

	return &FSStore{rootDir: rootDir, baseURL: baseURL}, nil
}

// RootDir returns the directory objects are written under.
func (s *FSStore) RootDir() string {
	return s.rootDir
}

// Upload writes the data under rootDir/folder/filename.
func (s *FSStore) Upload(ctx context.Context, folder, filename, contentType string, data io.Reader) (string, error) {
	key := filepath.Join(folder, filename)

	select {
	case <-ctx.Done():
		return "", &StorageError{Op: "upload", Key: key, Err: ctx.Err()}
	default:
	}

	dest := filepath.Join(s.rootDir, key)
	if err := os.MkdirAll(filepath.Dir(dest), 0750); err != nil {
		return "", &StorageError{Op: "upload", Key: key, Err: err}
	}

	f, err := os.OpenFile(dest, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0600) // #nosec G304 - dest is derived from configured root
	if err != nil {
		return "", &StorageError{Op: "upload", Key: key, Err: err}
	}
	if _, err := io.Copy(f, data); err != nil {
		_ = f.Close()
		return "", &StorageError{Op: "upload", Key: key, Err: err}
	}
	if err := f.Close(); err != nil {
		return "", &StorageError{Op: "upload", Key: key, Err: err}
	}

	return s.baseURL + "/" + folder + "/" + filename, nil
}

// Download copies the object at key to destPath.
func (s *FSStore) Download(ctx context.Context, key, destPath string) error {
	select {
	case <-ctx.Done():
		return &StorageError{Op: "download", Key: key, Err: ctx.Err()}
	default:
	}

	src, err := os.Open(filepath.Join(s.rootDir, key)) // #nosec G304 - key is provided by trusted caller
	if err != nil {
		return &StorageError{Op: "download", Key: key, Err: err}
	}
	defer func() { _ = src.Close() }()

	f, err := os.OpenFile(destPath, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0600) // #nosec G304 - destPath is provided by trusted caller
	if err != nil {
		return &StorageError{Op: "download", Key: key, Err: err}
	}
	if _, err := io.Copy(f, src); err != nil {
		_ = f.Close()
		return &StorageError{Op: "download", Key: key, Err: err}
	}
	if err := f.Close(); err != nil {
		return &StorageError{Op: "download", Key: key, Err: err}
	}

	return nil
}
