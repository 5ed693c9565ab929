package queue

import (
	"context"
	"sync"
)

// MemoryQueue is an in-process Queue used in tests and single-binary runs.
type MemoryQueue struct {
	jobs chan Job
	done chan struct{}

	mu       sync.Mutex
	closed   bool
	results  []Result
	failures []Failure
}

// NewMemoryQueue creates a MemoryQueue with the given buffer size.
func NewMemoryQueue(size int) *MemoryQueue {
	return &MemoryQueue{
		jobs: make(chan Job, size),
		done: make(chan struct{}),
	}
}

func (q *MemoryQueue) Enqueue(_ context.Context, job Job) error {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return ErrClosed
	}
	q.mu.Unlock()
	// The jobs channel is never closed, so a Close racing with this send
	// cannot panic; it unblocks the send through done instead.
	select {
	case q.jobs <- job:
		return nil
	case <-q.done:
		return ErrClosed
	}
}

func (q *MemoryQueue) Dequeue(ctx context.Context) (*Job, error) {
	select {
	case job := <-q.jobs:
		return &job, nil
	case <-q.done:
		return nil, ErrClosed
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (q *MemoryQueue) ReportResult(_ context.Context, _ Job, res Result) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.results = append(q.results, res)
	return nil
}

func (q *MemoryQueue) ReportFailure(_ context.Context, job Job, reason string) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.failures = append(q.failures, Failure{Job: job, Reason: reason})
	return nil
}

// Close stops accepting jobs and unblocks pending Dequeue calls.
func (q *MemoryQueue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if !q.closed {
		q.closed = true
		close(q.done)
	}
}

// Results returns a copy of the reported results.
func (q *MemoryQueue) Results() []Result {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]Result, len(q.results))
	copy(out, q.results)
	return out
}

// Failures returns a copy of the reported failures.
func (q *MemoryQueue) Failures() []Failure {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]Failure, len(q.failures))
	copy(out, q.failures)
	return out
}
