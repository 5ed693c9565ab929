package storage

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func setupFSStore(t *testing.T) *FSStore {
	t.Helper()
	s, err := NewFSStore(t.TempDir(), "http://localhost/objects")
	if err != nil {
		t.Fatalf("NewFSStore() error = %v", err)
	}
	return s
}

func TestFSStore_Upload(t *testing.T) {
	s := setupFSStore(t)
	ctx := context.Background()

	t.Run("stores data and returns URL", func(t *testing.T) {
		url, err := s.Upload(ctx, FolderVideos, "reel-123.mp4", "video/mp4", bytes.NewReader([]byte("video")))
		if err != nil {
			t.Fatalf("Upload() error = %v", err)
		}

		if url != "http://localhost/objects/videos/reel-123.mp4" {
			t.Errorf("url = %q", url)
		}

		data, err := os.ReadFile(filepath.Join(s.RootDir(), "videos", "reel-123.mp4"))
		if err != nil {
			t.Fatalf("read stored object: %v", err)
		}
		if string(data) != "video" {
			t.Errorf("stored data = %q, want %q", data, "video")
		}
	})

	t.Run("overwrites existing key", func(t *testing.T) {
		if _, err := s.Upload(ctx, FolderUploads, "f.bin", "application/octet-stream", bytes.NewReader([]byte("one"))); err != nil {
			t.Fatalf("Upload() error = %v", err)
		}
		if _, err := s.Upload(ctx, FolderUploads, "f.bin", "application/octet-stream", bytes.NewReader([]byte("two"))); err != nil {
			t.Fatalf("Upload() error = %v", err)
		}

		data, err := os.ReadFile(filepath.Join(s.RootDir(), "uploads", "f.bin"))
		if err != nil {
			t.Fatalf("read stored object: %v", err)
		}
		if string(data) != "two" {
			t.Errorf("stored data = %q, want %q", data, "two")
		}
	})

	t.Run("cancelled context fails with StorageError", func(t *testing.T) {
		cancelled, cancel := context.WithCancel(context.Background())
		cancel()

		_, err := s.Upload(cancelled, FolderVideos, "x.mp4", "video/mp4", bytes.NewReader(nil))
		var serr *StorageError
		if !errors.As(err, &serr) {
			t.Fatalf("error type = %T, want *StorageError", err)
		}
		if serr.Op != "upload" {
			t.Errorf("op = %q, want upload", serr.Op)
		}
	})
}

func TestFSStore_Download(t *testing.T) {
	s := setupFSStore(t)
	ctx := context.Background()

	t.Run("copies object to destination", func(t *testing.T) {
		if _, err := s.Upload(ctx, FolderUploads, "src.mp4", "video/mp4", bytes.NewReader([]byte("payload"))); err != nil {
			t.Fatalf("Upload() error = %v", err)
		}

		dest := filepath.Join(t.TempDir(), "downloaded.mp4")
		if err := s.Download(ctx, "uploads/src.mp4", dest); err != nil {
			t.Fatalf("Download() error = %v", err)
		}

		data, err := os.ReadFile(dest)
		if err != nil {
			t.Fatalf("read downloaded file: %v", err)
		}
		if string(data) != "payload" {
			t.Errorf("downloaded data = %q, want %q", data, "payload")
		}
	})

	t.Run("missing key fails with StorageError", func(t *testing.T) {
		err := s.Download(ctx, "uploads/missing.mp4", filepath.Join(t.TempDir(), "d.mp4"))
		var serr *StorageError
		if !errors.As(err, &serr) {
			t.Fatalf("error type = %T, want *StorageError", err)
		}
		if serr.Op != "download" || serr.Key != "uploads/missing.mp4" {
			t.Errorf("unexpected error fields: %+v", serr)
		}
	})
}
