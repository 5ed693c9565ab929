package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/reelhub/reels-api/internal/actionlog"
	"github.com/reelhub/reels-api/internal/media"
	"github.com/reelhub/reels-api/internal/pipeline"
	"github.com/reelhub/reels-api/internal/queue"
	"github.com/reelhub/reels-api/internal/reel"
	"github.com/reelhub/reels-api/internal/storage"
)

// noopTranscoder satisfies media.Transcoder by copying marker bytes.
type noopTranscoder struct{}

func (noopTranscoder) Compress(_ context.Context, _, out string, _ media.Profile) error {
	return os.WriteFile(out, []byte("compressed"), 0600)
}

func (noopTranscoder) TrimCompress(_ context.Context, _, out string, _ *media.Span, _ media.Profile) error {
	return os.WriteFile(out, []byte("compressed"), 0600)
}

func (noopTranscoder) TrimAudio(_ context.Context, _, out string, _ *media.Span) error {
	return os.WriteFile(out, []byte("audio"), 0600)
}

func (noopTranscoder) Mux(_ context.Context, _, _, out string) error {
	return os.WriteFile(out, []byte("muxed"), 0600)
}

func (noopTranscoder) ExtractThumbnail(_ context.Context, _, out string, _ float64) error {
	return os.WriteFile(out, []byte("thumb"), 0600)
}

func (noopTranscoder) Duration(context.Context, string) (float64, error) { return 9.5, nil }

// allowAllFollows reports every author as followed.
type allowAllFollows struct{}

func (allowAllFollows) IsFollowing(context.Context, primitive.ObjectID, primitive.ObjectID) (bool, error) {
	return true, nil
}

type env struct {
	router http.Handler
	reels  *reel.MemoryRepository
	sink   *actionlog.MemorySink
	jobs   *queue.MemoryQueue
}

func newEnv(t *testing.T, opts ...HandlerOption) *env {
	t.Helper()

	store, err := storage.NewFSStore(t.TempDir(), "https://cdn.test")
	require.NoError(t, err)

	reels := reel.NewMemoryRepository()
	sink := actionlog.NewMemorySink()
	recorder := actionlog.NewRecorder(sink, nil)
	jobs := queue.NewMemoryQueue(4)
	orchestrator := pipeline.NewOrchestrator(
		noopTranscoder{}, store, reels, reel.NewMemoryMusicRepository(), recorder, nil,
		pipeline.WithTempDir(t.TempDir()),
		pipeline.WithPlaceholderThumbnail("https://placehold.co/640x360.jpg"),
		pipeline.WithQueue(jobs),
	)

	h := NewHandlers(orchestrator, reels, recorder, nil, opts...)
	return &env{
		router: NewRouter(h, testLogger(), DefaultConfig()),
		reels:  reels,
		sink:   sink,
		jobs:   jobs,
	}
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func (e *env) do(t *testing.T, method, path string, body io.Reader, contentType string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, body)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)
	return rec
}

func (e *env) doJSON(t *testing.T, method, path string, payload any) *httptest.ResponseRecorder {
	t.Helper()
	body, err := json.Marshal(payload)
	require.NoError(t, err)
	return e.do(t, method, path, bytes.NewReader(body), "application/json")
}

func (e *env) seedReel(t *testing.T, owner primitive.ObjectID) *reel.Reel {
	t.Helper()
	saved, err := e.reels.Insert(context.Background(), &reel.Reel{
		User:     owner,
		Username: "ada",
		VideoURL: "https://cdn.test/videos/seed.mp4",
		Status:   reel.StatusPublished,
	})
	require.NoError(t, err)
	return saved
}

func decodeBody[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&out))
	return out
}

func multipartUpload(t *testing.T, fields map[string]string, files map[string][]byte) (io.Reader, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for k, v := range fields {
		require.NoError(t, mw.WriteField(k, v))
	}
	for field, content := range files {
		fw, err := mw.CreateFormFile(field, field+".mp4")
		require.NoError(t, err)
		_, err = fw.Write(content)
		require.NoError(t, err)
	}
	require.NoError(t, mw.Close())
	return &buf, mw.FormDataContentType()
}

func TestHealth(t *testing.T) {
	e := newEnv(t)
	rec := e.do(t, http.MethodGet, "/health", nil, "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", decodeBody[HealthResponse](t, rec).Status)
}

func TestRequestIDHeader(t *testing.T) {
	e := newEnv(t)
	rec := e.do(t, http.MethodGet, "/health", nil, "")
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("X-Request-ID", "fixed-id")
	rec = httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)
	assert.Equal(t, "fixed-id", rec.Header().Get("X-Request-ID"))
}

func TestFullUpload(t *testing.T) {
	e := newEnv(t)
	owner := primitive.NewObjectID()

	body, contentType := multipartUpload(t,
		map[string]string{"user": owner.Hex(), "username": "ada", "caption": "hello"},
		map[string][]byte{"video": []byte("raw video")},
	)
	rec := e.do(t, http.MethodPost, "/api/reels/full-upload", body, contentType)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	resp := decodeBody[UploadResponse](t, rec)
	assert.True(t, resp.Success)
	require.NotNil(t, resp.Data)
	assert.Equal(t, owner, resp.Data.User)
	assert.Contains(t, resp.Data.VideoURL, "https://cdn.test/videos/")
	assert.Equal(t, reel.StatusPublished, resp.Data.Status)
	assert.InDelta(t, 9.5, resp.Data.Duration, 0.001)
}

func TestFullUpload_MissingVideo(t *testing.T) {
	e := newEnv(t)
	body, contentType := multipartUpload(t,
		map[string]string{"user": primitive.NewObjectID().Hex()}, nil,
	)
	rec := e.do(t, http.MethodPost, "/api/reels/full-upload", body, contentType)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.False(t, decodeBody[ErrorResponse](t, rec).Success)
}

func TestFullUpload_MissingUser(t *testing.T) {
	e := newEnv(t)
	body, contentType := multipartUpload(t,
		map[string]string{"username": "ada"},
		map[string][]byte{"video": []byte("raw video")},
	)
	rec := e.do(t, http.MethodPost, "/api/reels/full-upload", body, contentType)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestRawUpload(t *testing.T) {
	e := newEnv(t)

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile("file", "clip.mov")
	require.NoError(t, err)
	_, err = fw.Write([]byte("raw"))
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	rec := e.do(t, http.MethodPost, "/api/reels/upload-raw-file", &buf, mw.FormDataContentType())
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	resp := decodeBody[RawUploadResponse](t, rec)
	assert.True(t, resp.Success)
	assert.Contains(t, resp.File, "https://cdn.test/uploads/")
}

func TestRawUpload_Async(t *testing.T) {
	e := newEnv(t)

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	require.NoError(t, mw.WriteField("async", "true"))
	fw, err := mw.CreateFormFile("file", "clip.mov")
	require.NoError(t, err)
	_, err = fw.Write([]byte("raw"))
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	rec := e.do(t, http.MethodPost, "/api/reels/upload-raw-file", &buf, mw.FormDataContentType())
	require.Equal(t, http.StatusAccepted, rec.Code, rec.Body.String())

	resp := decodeBody[RawUploadResponse](t, rec)
	assert.True(t, resp.Success)
	assert.Contains(t, resp.File, "https://cdn.test/uploads/")

	job, err := e.jobs.Dequeue(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "uploads", job.Folder)
	assert.True(t, strings.HasSuffix(job.FileKey, "-clip.mov"), job.FileKey)
}

func TestRawUpload_MissingFile(t *testing.T) {
	e := newEnv(t)
	body, contentType := multipartUpload(t, map[string]string{"folder": "uploads"}, nil)
	rec := e.do(t, http.MethodPost, "/api/reels/upload-raw-file", body, contentType)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestMetadataUpload(t *testing.T) {
	e := newEnv(t)

	rec := e.doJSON(t, http.MethodPost, "/api/reels/upload", MetadataUploadRequest{
		User:     primitive.NewObjectID().Hex(),
		Username: "ada",
		VideoURL: "https://cdn.test/videos/v.mp4",
		Duration: 22,
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	resp := decodeBody[UploadResponse](t, rec)
	assert.Equal(t, "https://cdn.test/videos/v.mp4", resp.Data.VideoURL)

	// Missing videoUrl fails validation.
	rec = e.doJSON(t, http.MethodPost, "/api/reels/upload", MetadataUploadRequest{
		User: primitive.NewObjectID().Hex(),
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	// Malformed JSON.
	rec = e.do(t, http.MethodPost, "/api/reels/upload", strings.NewReader("{"), "application/json")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestListAndGet(t *testing.T) {
	e := newEnv(t)
	seeded := e.seedReel(t, primitive.NewObjectID())

	rec := e.do(t, http.MethodGet, "/api/reels", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decodeBody[[]*reel.Reel](t, rec), 1)

	rec = e.do(t, http.MethodGet, "/api/reels/"+seeded.ID.Hex(), nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, seeded.ID, decodeBody[*reel.Reel](t, rec).ID)

	rec = e.do(t, http.MethodGet, "/api/reels/not-a-hex", nil, "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = e.do(t, http.MethodGet, "/api/reels/"+primitive.NewObjectID().Hex(), nil, "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestShow(t *testing.T) {
	e := newEnv(t)
	for i := 0; i < 5; i++ {
		e.seedReel(t, primitive.NewObjectID())
	}

	rec := e.do(t, http.MethodGet, "/api/reels/show?limit=3", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decodeBody[FeedResponse](t, rec).Reels, 3)

	// Excluded reels never appear.
	all, err := e.reels.FindAll(context.Background())
	require.NoError(t, err)
	exclude := make([]string, 0, len(all))
	for _, item := range all[:4] {
		exclude = append(exclude, item.ID.Hex())
	}
	rec = e.do(t, http.MethodGet, "/api/reels/show?limit=10&exclude="+strings.Join(exclude, ","), nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	feed := decodeBody[FeedResponse](t, rec)
	require.Len(t, feed.Reels, 1)
	assert.Equal(t, all[4].ID, feed.Reels[0].ID)
}

func TestShowNew(t *testing.T) {
	e := newEnv(t, WithFollowChecker(allowAllFollows{}))
	e.seedReel(t, primitive.NewObjectID())

	rec := e.do(t, http.MethodGet, "/api/reels/shownew", nil, "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	viewer := primitive.NewObjectID().Hex()
	rec = e.do(t, http.MethodGet, "/api/reels/shownew?userId="+viewer, nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	feed := decodeBody[AnnotatedFeedResponse](t, rec)
	require.Len(t, feed.Reels, 1)
	assert.True(t, feed.Reels[0].IsFollowing)
}

func TestByMusic(t *testing.T) {
	e := newEnv(t)
	musicID := primitive.NewObjectID()
	_, err := e.reels.Insert(context.Background(), &reel.Reel{
		User:     primitive.NewObjectID(),
		VideoURL: "https://cdn.test/videos/m.mp4",
		Status:   reel.StatusPublished,
		Music:    &musicID,
	})
	require.NoError(t, err)

	rec := e.do(t, http.MethodGet, "/api/reels/by-music/"+musicID.Hex(), nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decodeBody[ReelsResponse](t, rec).Data, 1)

	rec = e.do(t, http.MethodGet, "/api/reels/by-music/bad", nil, "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = e.do(t, http.MethodGet, "/api/reels/by-music/"+primitive.NewObjectID().Hex(), nil, "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestView(t *testing.T) {
	e := newEnv(t)
	seeded := e.seedReel(t, primitive.NewObjectID())
	viewer := primitive.NewObjectID()

	rec := e.doJSON(t, http.MethodPost, "/api/reels/view", ViewRequest{
		ReelID: seeded.ID.Hex(), UserID: viewer.Hex(),
	})
	require.Equal(t, http.StatusOK, rec.Code)
	resp := decodeBody[ViewResponse](t, rec)
	assert.Equal(t, "View counted", resp.Message)
	assert.Equal(t, int64(1), resp.Views)

	// A repeat view from the same user is not double-counted.
	rec = e.doJSON(t, http.MethodPost, "/api/reels/view", ViewRequest{
		ReelID: seeded.ID.Hex(), UserID: viewer.Hex(),
	})
	require.Equal(t, http.StatusOK, rec.Code)
	resp = decodeBody[ViewResponse](t, rec)
	assert.Equal(t, "View already counted", resp.Message)
	assert.Equal(t, int64(1), resp.Views)

	rec = e.doJSON(t, http.MethodPost, "/api/reels/view", ViewRequest{
		ReelID: primitive.NewObjectID().Hex(), UserID: viewer.Hex(),
	})
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = e.doJSON(t, http.MethodPost, "/api/reels/view", ViewRequest{ReelID: seeded.ID.Hex()})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	// Only the counted view lands in the action log.
	entries := e.sink.Entries()
	require.Len(t, entries, 1)
	assert.Equal(t, actionlog.ActionViewReel, entries[0].Action)
}

func TestLikeToggle(t *testing.T) {
	e := newEnv(t)
	seeded := e.seedReel(t, primitive.NewObjectID())
	user := primitive.NewObjectID()
	path := "/api/reels/like/" + seeded.ID.Hex()

	rec := e.doJSON(t, http.MethodPut, path, LikeRequest{UserID: user.Hex()})
	require.Equal(t, http.StatusOK, rec.Code)
	resp := decodeBody[LikeResponse](t, rec)
	assert.True(t, resp.Liked)
	assert.Equal(t, 1, resp.Likes)

	rec = e.doJSON(t, http.MethodPut, path, LikeRequest{UserID: user.Hex()})
	require.Equal(t, http.StatusOK, rec.Code)
	resp = decodeBody[LikeResponse](t, rec)
	assert.False(t, resp.Liked)
	assert.Equal(t, 0, resp.Likes)

	rec = e.doJSON(t, http.MethodPut, "/api/reels/like/"+primitive.NewObjectID().Hex(), LikeRequest{UserID: user.Hex()})
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestShare(t *testing.T) {
	e := newEnv(t)
	seeded := e.seedReel(t, primitive.NewObjectID())

	rec := e.doJSON(t, http.MethodPut, "/api/reels/share/"+seeded.ID.Hex(), ShareRequest{
		SharedBy: primitive.NewObjectID().Hex(),
		SharedTo: primitive.NewObjectID().Hex(),
	})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, decodeBody[MessageResponse](t, rec).Success)

	updated, err := e.reels.FindByID(context.Background(), seeded.ID)
	require.NoError(t, err)
	assert.Len(t, updated.Shares, 1)

	rec = e.doJSON(t, http.MethodPut, "/api/reels/share/"+seeded.ID.Hex(), ShareRequest{SharedBy: "bad"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestUpdate(t *testing.T) {
	e := newEnv(t)
	seeded := e.seedReel(t, primitive.NewObjectID())

	caption := "updated caption"
	rec := e.doJSON(t, http.MethodPut, "/api/reels/update/"+seeded.ID.Hex(), UpdateReelRequest{Caption: &caption})
	require.Equal(t, http.StatusOK, rec.Code)
	resp := decodeBody[UploadResponse](t, rec)
	assert.Equal(t, caption, resp.Data.Caption)
	assert.Equal(t, seeded.VideoURL, resp.Data.VideoURL)

	rec = e.doJSON(t, http.MethodPut, "/api/reels/update/"+primitive.NewObjectID().Hex(), UpdateReelRequest{Caption: &caption})
	assert.Equal(t, http.StatusNotFound, rec.Code)

	bad := "not-hex"
	rec = e.doJSON(t, http.MethodPut, "/api/reels/update/"+seeded.ID.Hex(), UpdateReelRequest{Music: &bad})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestDelete(t *testing.T) {
	e := newEnv(t)
	owner := primitive.NewObjectID()
	seeded := e.seedReel(t, owner)

	rec := e.do(t, http.MethodDelete, "/api/reels/delete/"+seeded.ID.Hex(), nil, "")
	require.Equal(t, http.StatusOK, rec.Code)

	rec = e.do(t, http.MethodGet, "/api/reels/"+seeded.ID.Hex(), nil, "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = e.do(t, http.MethodDelete, "/api/reels/delete/"+seeded.ID.Hex(), nil, "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	entries := e.sink.Entries()
	require.Len(t, entries, 1)
	assert.Equal(t, actionlog.ActionDeleteReel, entries[0].Action)
	assert.Equal(t, owner, entries[0].User)
}

func TestCORSPreflight(t *testing.T) {
	e := newEnv(t)
	req := httptest.NewRequest(http.MethodOptions, "/api/reels/show", nil)
	req.Header.Set("Origin", "https://app.example.com")
	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "https://app.example.com", rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestClientIP(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.RemoteAddr = "198.51.100.4:5123"
	assert.Equal(t, "198.51.100.4", clientIP(req))

	req.Header.Set("X-Forwarded-For", "203.0.113.9, 10.0.0.1")
	assert.Equal(t, "203.0.113.9", clientIP(req))
}

func TestParseLimit(t *testing.T) {
	assert.Equal(t, defaultFeedLimit, parseLimit(""))
	assert.Equal(t, defaultFeedLimit, parseLimit("-2"))
	assert.Equal(t, defaultFeedLimit, parseLimit("abc"))
	assert.Equal(t, 25, parseLimit("25"))
}

func TestParseIDList(t *testing.T) {
	a, b := primitive.NewObjectID(), primitive.NewObjectID()
	ids := parseIDList(fmt.Sprintf("%s, %s,garbage", a.Hex(), b.Hex()))
	require.Len(t, ids, 2)
	assert.Equal(t, a, ids[0])
	assert.Equal(t, b, ids[1])
	assert.Nil(t, parseIDList(""))
}
