package queue

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"time"

	"github.com/reelhub/reels-api/internal/arena"
	"github.com/reelhub/reels-api/internal/media"
	"github.com/reelhub/reels-api/internal/storage"
)

// dequeueRetryDelay bounds how fast the worker retries after a broken
// Dequeue call, so a flapping broker does not produce a hot loop.
const dequeueRetryDelay = time.Second

// Consumer drains the queue and compresses each referenced file:
// download from the object store, re-encode with the upload profile,
// upload the result under a "compressed-" name, report the outcome.
type Consumer struct {
	queue      Queue
	store      storage.ObjectStore
	transcoder media.Transcoder
	tempDir    string
	logger     *slog.Logger
}

// NewConsumer creates a Consumer.
func NewConsumer(q Queue, store storage.ObjectStore, transcoder media.Transcoder, tempDir string, logger *slog.Logger) *Consumer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Consumer{
		queue:      q,
		store:      store,
		transcoder: transcoder,
		tempDir:    tempDir,
		logger:     logger,
	}
}

// Run processes jobs until ctx is cancelled or the queue closes.
// Individual job failures are reported and do not stop the loop.
func (c *Consumer) Run(ctx context.Context) error {
	c.logger.Info("compression worker started")
	for {
		job, err := c.queue.Dequeue(ctx)
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) || errors.Is(err, ErrClosed) {
			c.logger.Info("compression worker stopping")
			return nil
		}
		if err != nil {
			c.logger.Error("dequeue failed, retrying", slog.String("error", err.Error()))
			select {
			case <-ctx.Done():
				c.logger.Info("compression worker stopping")
				return nil
			case <-time.After(dequeueRetryDelay):
			}
			continue
		}

		c.logger.Info("processing job", slog.String("file_key", job.FileKey))
		url, err := c.process(ctx, job)
		if err != nil {
			c.logger.Error("job failed",
				slog.String("file_key", job.FileKey),
				slog.String("error", err.Error()),
			)
			if repErr := c.queue.ReportFailure(context.WithoutCancel(ctx), *job, err.Error()); repErr != nil {
				c.logger.Error("failed to report job failure", slog.String("error", repErr.Error()))
			}
			continue
		}

		c.logger.Info("job done",
			slog.String("file_key", job.FileKey),
			slog.String("compressed_url", url),
		)
		if repErr := c.queue.ReportResult(context.WithoutCancel(ctx), *job, Result{CompressedURL: url}); repErr != nil {
			c.logger.Error("failed to report job result", slog.String("error", repErr.Error()))
		}
	}
}

// process handles one job. Temp files are released on every exit path.
func (c *Consumer) process(ctx context.Context, job *Job) (string, error) {
	ar, err := arena.New(c.tempDir, c.logger)
	if err != nil {
		return "", fmt.Errorf("create arena: %w", err)
	}
	defer ar.ReleaseAll()

	inputPath, err := ar.Acquire(extOrMP4(job.OriginalName))
	if err != nil {
		return "", err
	}
	if err := c.store.Download(ctx, job.FileKey, inputPath); err != nil {
		return "", err
	}

	outputPath, err := ar.Acquire(".mp4")
	if err != nil {
		return "", err
	}
	if err := c.transcoder.Compress(ctx, inputPath, outputPath, media.UploadProfile); err != nil {
		return "", err
	}

	folder := job.Folder
	if folder == "" {
		folder = storage.FolderUploads
	}

	f, err := os.Open(outputPath) // #nosec G304 - path comes from the arena
	if err != nil {
		return "", fmt.Errorf("open artifact: %w", err)
	}
	defer func() { _ = f.Close() }()

	return c.store.Upload(ctx, folder, compressedName(job.OriginalName), "video/mp4", f)
}

// compressedName derives the output object name from the original filename.
func compressedName(original string) string {
	base := filepath.Base(original)
	ext := filepath.Ext(base)
	return "compressed-" + strings.TrimSuffix(base, ext) + ".mp4"
}

func extOrMP4(name string) string {
	if ext := filepath.Ext(name); ext != "" {
		return ext
	}
	return ".mp4"
}
