package queue

import (
	"context"
	"errors"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/reelhub/reels-api/internal/media"
	"github.com/reelhub/reels-api/internal/storage"
)

// fakeTranscoder writes marker bytes instead of invoking ffmpeg.
type fakeTranscoder struct {
	mu      sync.Mutex
	err     error
	calls   int
	profile media.Profile
}

func (f *fakeTranscoder) Compress(_ context.Context, _, out string, profile media.Profile) error {
	f.mu.Lock()
	f.calls++
	f.profile = profile
	err := f.err
	f.mu.Unlock()
	if err != nil {
		return err
	}
	return os.WriteFile(out, []byte("compressed"), 0600)
}

func (f *fakeTranscoder) TrimCompress(ctx context.Context, in, out string, _ *media.Span, profile media.Profile) error {
	return f.Compress(ctx, in, out, profile)
}

func (f *fakeTranscoder) TrimAudio(context.Context, string, string, *media.Span) error { return nil }

func (f *fakeTranscoder) Mux(context.Context, string, string, string) error { return nil }

func (f *fakeTranscoder) ExtractThumbnail(context.Context, string, string, float64) error {
	return nil
}

func (f *fakeTranscoder) Duration(context.Context, string) (float64, error) { return 0, nil }

func newTestStore(t *testing.T) *storage.FSStore {
	t.Helper()
	store, err := storage.NewFSStore(t.TempDir(), "https://cdn.test")
	require.NoError(t, err)
	return store
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("condition not met in time")
}

func TestMemoryQueue(t *testing.T) {
	q := NewMemoryQueue(4)
	ctx := context.Background()

	require.NoError(t, q.Enqueue(ctx, Job{FileKey: "uploads/a.mov", OriginalName: "a.mov"}))
	job, err := q.Dequeue(ctx)
	require.NoError(t, err)
	assert.Equal(t, "uploads/a.mov", job.FileKey)

	cancelled, cancel := context.WithCancel(ctx)
	cancel()
	_, err = q.Dequeue(cancelled)
	assert.ErrorIs(t, err, context.Canceled)

	q.Close()
	_, err = q.Dequeue(ctx)
	assert.ErrorIs(t, err, ErrClosed)
	assert.ErrorIs(t, q.Enqueue(ctx, Job{}), ErrClosed)
}

func TestMemoryQueue_ConcurrentEnqueueClose(t *testing.T) {
	// Enqueue racing with Close must either deliver the job or return
	// ErrClosed; it must never panic on a closed channel.
	for i := 0; i < 50; i++ {
		q := NewMemoryQueue(0)
		var wg sync.WaitGroup
		wg.Add(2)
		go func() {
			defer wg.Done()
			err := q.Enqueue(context.Background(), Job{FileKey: "uploads/a.mov"})
			if err != nil {
				assert.ErrorIs(t, err, ErrClosed)
			}
		}()
		go func() {
			defer wg.Done()
			q.Close()
		}()
		wg.Wait()
	}
}

// flakyQueue fails the first Dequeue calls before delegating.
type flakyQueue struct {
	*MemoryQueue
	mu       sync.Mutex
	failures int
}

func (q *flakyQueue) Dequeue(ctx context.Context) (*Job, error) {
	q.mu.Lock()
	if q.failures > 0 {
		q.failures--
		q.mu.Unlock()
		return nil, errors.New("connection reset by peer")
	}
	q.mu.Unlock()
	return q.MemoryQueue.Dequeue(ctx)
}

func TestConsumer_RetriesAfterDequeueError(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	_, err := store.Upload(ctx, storage.FolderUploads, "retry.mov", "video/quicktime", strings.NewReader("raw"))
	require.NoError(t, err)

	q := &flakyQueue{MemoryQueue: NewMemoryQueue(1), failures: 1}
	tc := &fakeTranscoder{}
	consumer := NewConsumer(q, store, tc, t.TempDir(), nil)

	runCtx, stop := context.WithCancel(ctx)
	done := make(chan error, 1)
	go func() { done <- consumer.Run(runCtx) }()

	require.NoError(t, q.Enqueue(ctx, Job{FileKey: "uploads/retry.mov", OriginalName: "retry.mov"}))

	waitFor(t, func() bool { return len(q.Results()) == 1 })
	assert.Contains(t, q.Results()[0].CompressedURL, "compressed-retry.mp4")

	stop()
	require.NoError(t, <-done)
}

func TestConsumer_ProcessesJob(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	_, err := store.Upload(ctx, storage.FolderUploads, "1701-holiday.mov", "video/quicktime", strings.NewReader("raw"))
	require.NoError(t, err)

	q := NewMemoryQueue(1)
	tc := &fakeTranscoder{}
	consumer := NewConsumer(q, store, tc, t.TempDir(), nil)

	runCtx, stop := context.WithCancel(ctx)
	done := make(chan error, 1)
	go func() { done <- consumer.Run(runCtx) }()

	require.NoError(t, q.Enqueue(ctx, Job{
		FileKey:      "uploads/1701-holiday.mov",
		OriginalName: "1701-holiday.mov",
	}))

	waitFor(t, func() bool { return len(q.Results()) == 1 })
	res := q.Results()[0]
	assert.Equal(t, "https://cdn.test/uploads/compressed-1701-holiday.mp4", res.CompressedURL)
	assert.Equal(t, media.UploadProfile, tc.profile)

	stop()
	require.NoError(t, <-done)
}

func TestConsumer_ReportsFailureAndContinues(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	_, err := store.Upload(ctx, storage.FolderUploads, "ok.mov", "video/quicktime", strings.NewReader("raw"))
	require.NoError(t, err)

	q := NewMemoryQueue(2)
	tc := &fakeTranscoder{}
	consumer := NewConsumer(q, store, tc, t.TempDir(), nil)

	runCtx, stop := context.WithCancel(ctx)
	done := make(chan error, 1)
	go func() { done <- consumer.Run(runCtx) }()

	// First job references a missing object and must fail.
	require.NoError(t, q.Enqueue(ctx, Job{FileKey: "uploads/missing.mov", OriginalName: "missing.mov"}))
	// Second job is valid and must still be processed.
	require.NoError(t, q.Enqueue(ctx, Job{FileKey: "uploads/ok.mov", OriginalName: "ok.mov"}))

	waitFor(t, func() bool { return len(q.Failures()) == 1 && len(q.Results()) == 1 })
	assert.Equal(t, "uploads/missing.mov", q.Failures()[0].Job.FileKey)
	assert.Contains(t, q.Results()[0].CompressedURL, "compressed-ok.mp4")

	stop()
	require.NoError(t, <-done)
}

func TestConsumer_TranscodeFailureIsReported(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	_, err := store.Upload(ctx, storage.FolderUploads, "bad.mov", "video/quicktime", strings.NewReader("raw"))
	require.NoError(t, err)

	q := NewMemoryQueue(1)
	tc := &fakeTranscoder{err: &media.TranscodeError{Stage: media.StageCompress, Stderr: "corrupt", Err: errors.New("exit status 1")}}
	consumer := NewConsumer(q, store, tc, t.TempDir(), nil)

	runCtx, stop := context.WithCancel(ctx)
	done := make(chan error, 1)
	go func() { done <- consumer.Run(runCtx) }()

	require.NoError(t, q.Enqueue(ctx, Job{FileKey: "uploads/bad.mov", OriginalName: "bad.mov"}))

	waitFor(t, func() bool { return len(q.Failures()) == 1 })
	assert.Contains(t, q.Failures()[0].Reason, "compress")

	stop()
	require.NoError(t, <-done)
}

func TestCompressedName(t *testing.T) {
	assert.Equal(t, "compressed-holiday.mp4", compressedName("holiday.mov"))
	assert.Equal(t, "compressed-clip.mp4", compressedName("nested/dir/clip.mp4"))
	assert.Equal(t, "compressed-noext.mp4", compressedName("noext"))
}
