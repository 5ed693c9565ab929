// Package queue implements the background video-compression queue: a
// producer/consumer pair over a Redis list, with an in-memory variant
// for tests. Each job references an object already present in the store;
// the consumer downloads it, compresses it, uploads the result and
// reports the outcome.
package queue

import (
	"context"
	"errors"
)

// ErrClosed is returned by Dequeue when the queue has been shut down.
var ErrClosed = errors.New("queue: closed")

// Job describes a stored file awaiting compression.
type Job struct {
	// FileKey is the object-store key of the original upload,
	// e.g. "uploads/1701432000123-holiday.mov".
	FileKey string `json:"fileKey"`
	// OriginalName is the client-supplied filename, used to derive the
	// name of the compressed artifact.
	OriginalName string `json:"originalName"`
	// Folder is the destination folder for the compressed artifact.
	// Empty means the uploads folder.
	Folder string `json:"folder,omitempty"`
}

// Result is the success payload reported for a processed job.
type Result struct {
	CompressedURL string `json:"compressedUrl"`
}

// Failure is the payload reported for a job that could not be processed.
type Failure struct {
	Job    Job    `json:"job"`
	Reason string `json:"reason"`
}

// Queue is the transport between the API and the compression worker.
type Queue interface {
	// Enqueue submits a job for background processing.
	Enqueue(ctx context.Context, job Job) error

	// Dequeue blocks until a job is available or ctx is done.
	Dequeue(ctx context.Context) (*Job, error)

	// ReportResult records the outcome of a successfully processed job.
	ReportResult(ctx context.Context, job Job, res Result) error

	// ReportFailure records a terminal processing failure.
	ReportFailure(ctx context.Context, job Job, reason string) error
}
