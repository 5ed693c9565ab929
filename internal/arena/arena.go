// Package arena manages scoped temporary files for the transcoding pipeline.
// An Arena owns every intermediate artifact created during one pipeline
// invocation and guarantees their removal when the invocation exits,
// regardless of which stage failed.
package arena

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// Arena tracks temporary files created during a single pipeline invocation.
// It is not shared across invocations; each call to the orchestrator creates
// its own Arena and defers ReleaseAll.
type Arena struct {
	mu      sync.Mutex
	baseDir string
	files   []string
	logger  *slog.Logger
}

// New creates an Arena rooted at baseDir. If baseDir is empty, os.TempDir()
// is used. The directory is created if it doesn't exist.
func New(baseDir string, logger *slog.Logger) (*Arena, error) {
	if baseDir == "" {
		baseDir = filepath.Join(os.TempDir(), "reels")
	}
	if logger == nil {
		logger = slog.Default()
	}

	if err := os.MkdirAll(baseDir, 0750); err != nil {
		return nil, fmt.Errorf("create arena directory: %w", err)
	}

	return &Arena{baseDir: baseDir, logger: logger}, nil
}

// BaseDir returns the directory under which artifacts are created.
func (a *Arena) BaseDir() string {
	return a.baseDir
}

// Acquire creates a uniquely named empty file with the given suffix
// (e.g. ".mp4") and registers it for release. The returned path is ready
// for writing by an external process.
func (a *Arena) Acquire(suffix string) (string, error) {
	name := fmt.Sprintf("artifact-%d-%s%s", time.Now().UnixNano(), randomHex(4), suffix)
	path := filepath.Join(a.baseDir, name)

	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0600)
	if err != nil {
		return "", fmt.Errorf("acquire temp file: %w", err)
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(path)
		return "", fmt.Errorf("close temp file: %w", err)
	}

	a.track(path)
	return path, nil
}

// AcquireWith creates a temp file with the given suffix and fills it from r.
func (a *Arena) AcquireWith(suffix string, r io.Reader) (string, error) {
	path, err := a.Acquire(suffix)
	if err != nil {
		return "", err
	}

	f, err := os.OpenFile(path, os.O_WRONLY|os.O_TRUNC, 0600) // #nosec G304 - path was just created by Acquire
	if err != nil {
		return "", fmt.Errorf("open temp file: %w", err)
	}
	if _, err := io.Copy(f, r); err != nil {
		_ = f.Close()
		return "", fmt.Errorf("write temp file: %w", err)
	}
	if err := f.Close(); err != nil {
		return "", fmt.Errorf("close temp file: %w", err)
	}

	return path, nil
}

// Count returns the number of files currently tracked.
func (a *Arena) Count() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.files)
}

// ReleaseAll removes every tracked file. It is idempotent and never fails
// the caller: missing files are ignored, other removal errors are logged.
func (a *Arena) ReleaseAll() {
	a.mu.Lock()
	files := a.files
	a.files = nil
	a.mu.Unlock()

	for _, path := range files {
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			a.logger.Warn("failed to remove temp file",
				slog.String("path", path),
				slog.String("error", err.Error()),
			)
		}
	}
}

func (a *Arena) track(path string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.files = append(a.files, path)
}

// randomHex returns n random bytes hex-encoded, falling back to a
// timestamp-derived value if crypto/rand fails.
func randomHex(n int) string {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return fmt.Sprintf("%x", time.Now().UnixNano())
	}
	return hex.EncodeToString(b)
}
