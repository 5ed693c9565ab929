// Package pipeline orchestrates video ingestion: staging the upload,
// trimming and compressing it, resolving and muxing music, extracting a
// thumbnail, pushing artifacts to the object store, and persisting the
// resulting reel. Temporary files are owned by a per-invocation arena
// that is released on every exit path.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/reelhub/reels-api/internal/actionlog"
	"github.com/reelhub/reels-api/internal/arena"
	"github.com/reelhub/reels-api/internal/media"
	"github.com/reelhub/reels-api/internal/queue"
	"github.com/reelhub/reels-api/internal/reel"
	"github.com/reelhub/reels-api/internal/storage"
)

// Validation errors. These short-circuit before any temp file is created.
var (
	// ErrUserMissing is returned when the owner reference is absent or invalid.
	ErrUserMissing = errors.New("pipeline: user is missing or invalid")
	// ErrVideoMissing is returned when no video payload was supplied.
	ErrVideoMissing = errors.New("pipeline: video file is missing")
	// ErrVideoURLMissing is returned by the metadata path when no videoUrl
	// was supplied.
	ErrVideoURLMissing = errors.New("pipeline: video url is missing")
	// ErrFileMissing is returned by the raw path when no file was supplied.
	ErrFileMissing = errors.New("pipeline: file is missing")
)

// ErrQueueUnavailable is returned by the async upload path when no
// compression queue is configured.
var ErrQueueUnavailable = errors.New("pipeline: compression queue is not configured")

// IsValidationError reports whether err is a client-caused input error.
func IsValidationError(err error) bool {
	return errors.Is(err, ErrUserMissing) ||
		errors.Is(err, ErrVideoMissing) ||
		errors.Is(err, ErrVideoURLMissing) ||
		errors.Is(err, ErrFileMissing)
}

// Fetcher downloads a remote file (the referenced music asset) to a local path.
type Fetcher interface {
	Fetch(ctx context.Context, url, destPath string) error
}

// HTTPFetcher implements Fetcher over an HTTP client.
type HTTPFetcher struct {
	Client *http.Client
}

// Fetch streams the URL body to destPath.
func (f *HTTPFetcher) Fetch(ctx context.Context, url, destPath string) error {
	client := f.Client
	if client == nil {
		client = http.DefaultClient
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("fetch %s: %w", url, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("fetch %s: unexpected status %d", url, resp.StatusCode)
	}

	out, err := os.OpenFile(destPath, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0600) // #nosec G304 - destPath comes from the arena
	if err != nil {
		return fmt.Errorf("open destination: %w", err)
	}
	if _, err := io.Copy(out, resp.Body); err != nil {
		_ = out.Close()
		return fmt.Errorf("write destination: %w", err)
	}
	return out.Close()
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithFetcher replaces the music fetcher. Used in tests.
func WithFetcher(f Fetcher) Option {
	return func(o *Orchestrator) { o.fetcher = f }
}

// WithTempDir sets the directory arenas are rooted at.
func WithTempDir(dir string) Option {
	return func(o *Orchestrator) { o.tempDir = dir }
}

// WithPlaceholderThumbnail sets the URL used when thumbnail handling fails.
func WithPlaceholderThumbnail(url string) Option {
	return func(o *Orchestrator) { o.placeholderThumb = url }
}

// WithQueue wires the background compression queue used by RawUploadAsync.
func WithQueue(q queue.Queue) Option {
	return func(o *Orchestrator) { o.queue = q }
}

// Orchestrator coordinates the upload pipeline.
type Orchestrator struct {
	transcoder media.Transcoder
	store      storage.ObjectStore
	reels      reel.Repository
	music      reel.MusicRepository
	recorder   *actionlog.Recorder
	fetcher    Fetcher
	queue      queue.Queue
	logger     *slog.Logger

	tempDir          string
	placeholderThumb string
}

// NewOrchestrator creates an Orchestrator with the given collaborators.
func NewOrchestrator(
	transcoder media.Transcoder,
	store storage.ObjectStore,
	reels reel.Repository,
	music reel.MusicRepository,
	recorder *actionlog.Recorder,
	logger *slog.Logger,
	opts ...Option,
) *Orchestrator {
	if logger == nil {
		logger = slog.Default()
	}
	o := &Orchestrator{
		transcoder: transcoder,
		store:      store,
		reels:      reels,
		music:      music,
		recorder:   recorder,
		fetcher:    &HTTPFetcher{},
		logger:     logger,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// RequestMeta carries the request origin recorded into the action log.
type RequestMeta struct {
	Device   string
	Location actionlog.Location
}

// FullUploadInput is the input of the interactive upload path.
// All time markers are milliseconds encoded as strings, exactly as
// submitted by the client; invalid markers silently disable trimming.
type FullUploadInput struct {
	User     string
	UserID   string
	Username string
	Caption  string

	Video         io.Reader
	VideoFilename string

	Thumbnail         io.Reader
	ThumbnailFilename string

	MusicID      string
	VideoStartMs string
	VideoEndMs   string
	MusicStartMs string
	MusicEndMs   string

	Meta RequestMeta
}

// FullUpload runs the complete ingestion pipeline and returns the
// persisted reel. Validation failures return before any temp file is
// created; every later failure still releases all arena handles.
func (o *Orchestrator) FullUpload(ctx context.Context, in FullUploadInput) (*reel.Reel, error) {
	owner, err := primitive.ObjectIDFromHex(in.User)
	if err != nil || in.User == "" {
		return nil, ErrUserMissing
	}
	if in.Video == nil {
		return nil, ErrVideoMissing
	}

	ar, err := arena.New(o.tempDir, o.logger)
	if err != nil {
		return nil, fmt.Errorf("create arena: %w", err)
	}
	// Cleanup is unconditional and not cancellable.
	defer ar.ReleaseAll()

	// Stage the uploaded bytes.
	inputPath, err := ar.AcquireWith(extOr(in.VideoFilename, ".mp4"), in.Video)
	if err != nil {
		return nil, fmt.Errorf("stage upload: %w", err)
	}

	// Trim and compress in one pass. Invalid bounds fall back to
	// full-length compression.
	compressedPath, err := ar.Acquire(".mp4")
	if err != nil {
		return nil, err
	}
	span := media.ParseSpan(in.VideoStartMs, in.VideoEndMs)
	if err := o.transcoder.TrimCompress(ctx, inputPath, compressedPath, span, media.ReelProfile); err != nil {
		return nil, err
	}

	finalVideoPath := compressedPath

	// Resolve and merge music, when referenced. Unresolvable references
	// are a soft failure: the reel is published without audio replacement.
	musicRef := o.resolveMusic(ctx, in.MusicID)
	if musicRef != nil {
		mergedPath, err := o.mergeMusic(ctx, ar, compressedPath, musicRef.track, in.MusicStartMs, in.MusicEndMs)
		if err != nil {
			return nil, err
		}
		finalVideoPath = mergedPath
	}

	// Upload the final video artifact.
	videoURL, err := o.uploadFile(ctx, storage.FolderVideos, artifactName("reel", ".mp4"), "video/mp4", finalVideoPath)
	if err != nil {
		return nil, err
	}

	// Resolve the thumbnail; failures fall back to the placeholder.
	thumbnailURL := o.resolveThumbnail(ctx, ar, in, finalVideoPath)

	// Probe the final duration; best effort.
	var duration float64
	if d, err := o.transcoder.Duration(ctx, finalVideoPath); err == nil {
		duration = d
	} else {
		o.logger.Warn("failed to probe final duration", slog.String("error", err.Error()))
	}

	newReel := &reel.Reel{
		User:         owner,
		UserID:       in.UserID,
		Username:     in.Username,
		VideoURL:     videoURL,
		ThumbnailURL: thumbnailURL,
		Caption:      in.Caption,
		Status:       reel.StatusPublished,
		Duration:     duration,
	}
	if musicRef != nil {
		id := musicRef.track.ID
		newReel.Music = &id
	}

	saved, err := o.reels.Insert(ctx, newReel)
	if err != nil {
		return nil, fmt.Errorf("persist reel: %w", err)
	}

	o.recordUpload(ctx, saved, in.Meta)

	o.logger.Info("reel uploaded",
		slog.String("reel_id", saved.ID.Hex()),
		slog.String("video_url", saved.VideoURL),
		slog.Float64("duration_sec", saved.Duration),
	)

	return saved, nil
}

// resolvedMusic pairs the music document with its local file when merged.
type resolvedMusic struct {
	track *reel.Music
}

// resolveMusic looks up the referenced music asset. Invalid IDs and lookup
// failures are soft: the pipeline continues without music.
func (o *Orchestrator) resolveMusic(ctx context.Context, musicID string) *resolvedMusic {
	if musicID == "" {
		return nil
	}
	id, err := primitive.ObjectIDFromHex(musicID)
	if err != nil {
		return nil
	}

	track, err := o.music.FindByID(ctx, id)
	if err != nil || track.URL == "" {
		o.logger.Warn("music reference not resolvable, continuing without audio",
			slog.String("music_id", musicID),
		)
		return nil
	}
	return &resolvedMusic{track: track}
}

// mergeMusic downloads the music asset, optionally trims it, and muxes it
// with the compressed video. Returns the merged file path.
func (o *Orchestrator) mergeMusic(ctx context.Context, ar *arena.Arena, videoPath string, track *reel.Music, startMs, endMs string) (string, error) {
	musicPath, err := ar.Acquire(extOr(track.URL, ".mp3"))
	if err != nil {
		return "", err
	}
	if err := o.fetcher.Fetch(ctx, track.URL, musicPath); err != nil {
		return "", fmt.Errorf("download music: %w", err)
	}

	audioPath := musicPath
	if span := media.ParseSpan(startMs, endMs); span != nil {
		trimmedPath, err := ar.Acquire(".mp3")
		if err != nil {
			return "", err
		}
		if err := o.transcoder.TrimAudio(ctx, musicPath, trimmedPath, span); err != nil {
			return "", err
		}
		audioPath = trimmedPath
	}

	mergedPath, err := ar.Acquire(".mp4")
	if err != nil {
		return "", err
	}
	if err := o.transcoder.Mux(ctx, videoPath, audioPath, mergedPath); err != nil {
		return "", err
	}
	return mergedPath, nil
}

// resolveThumbnail uploads the client-supplied thumbnail, or extracts one
// from the final video. Any failure yields the placeholder URL; thumbnail
// problems never abort the pipeline.
func (o *Orchestrator) resolveThumbnail(ctx context.Context, ar *arena.Arena, in FullUploadInput, videoPath string) string {
	if in.Thumbnail != nil {
		url, err := o.store.Upload(ctx, storage.FolderThumbnails,
			artifactName("thumb", extOr(in.ThumbnailFilename, ".jpg")),
			contentTypeByExt(in.ThumbnailFilename), in.Thumbnail)
		if err == nil {
			return url
		}
		o.logger.Warn("client thumbnail upload failed, using placeholder",
			slog.String("error", err.Error()),
		)
		return o.placeholderThumb
	}

	thumbPath, err := ar.Acquire(".jpg")
	if err != nil {
		return o.placeholderThumb
	}
	if err := o.transcoder.ExtractThumbnail(ctx, videoPath, thumbPath, 0); err != nil {
		o.logger.Warn("thumbnail extraction failed, using placeholder",
			slog.String("error", err.Error()),
		)
		return o.placeholderThumb
	}

	url, err := o.uploadFile(ctx, storage.FolderThumbnails, artifactName("thumb", ".jpg"), "image/jpeg", thumbPath)
	if err != nil {
		o.logger.Warn("thumbnail upload failed, using placeholder",
			slog.String("error", err.Error()),
		)
		return o.placeholderThumb
	}
	return url
}

// MetadataUploadInput is the trusted entry contract: the client already
// holds a transcoded video URL and only metadata is persisted.
type MetadataUploadInput struct {
	User         string
	UserID       string
	Username     string
	VideoURL     string
	ThumbnailURL string
	Caption      string
	Duration     float64
	Music        string

	Meta RequestMeta
}

// MetadataUpload persists a reel from a pre-transcoded URL.
func (o *Orchestrator) MetadataUpload(ctx context.Context, in MetadataUploadInput) (*reel.Reel, error) {
	owner, err := primitive.ObjectIDFromHex(in.User)
	if err != nil || in.User == "" {
		return nil, ErrUserMissing
	}
	if in.VideoURL == "" {
		return nil, ErrVideoURLMissing
	}

	newReel := &reel.Reel{
		User:         owner,
		UserID:       in.UserID,
		Username:     in.Username,
		VideoURL:     in.VideoURL,
		ThumbnailURL: in.ThumbnailURL,
		Caption:      in.Caption,
		Status:       reel.StatusPublished,
		Duration:     in.Duration,
	}
	if id, err := primitive.ObjectIDFromHex(in.Music); err == nil {
		newReel.Music = &id
	}

	saved, err := o.reels.Insert(ctx, newReel)
	if err != nil {
		return nil, fmt.Errorf("persist reel: %w", err)
	}

	o.recordUpload(ctx, saved, in.Meta)
	return saved, nil
}

// RawUploadInput is the input of the raw file upload path.
type RawUploadInput struct {
	File        io.Reader
	Filename    string
	ContentType string
	Folder      string
}

// RawUpload stores a single file. Videos are compressed before storage;
// other content types are stored as-is. Returns the public URL.
func (o *Orchestrator) RawUpload(ctx context.Context, in RawUploadInput) (string, error) {
	if in.File == nil {
		return "", ErrFileMissing
	}

	folder := in.Folder
	if folder == "" {
		folder = storage.FolderUploads
	}

	if !strings.HasPrefix(in.ContentType, "video/") {
		name := fmt.Sprintf("%d-%s", time.Now().UnixMilli(), filepath.Base(in.Filename))
		return o.store.Upload(ctx, folder, name, in.ContentType, in.File)
	}

	ar, err := arena.New(o.tempDir, o.logger)
	if err != nil {
		return "", fmt.Errorf("create arena: %w", err)
	}
	defer ar.ReleaseAll()

	inputPath, err := ar.AcquireWith(extOr(in.Filename, ".mp4"), in.File)
	if err != nil {
		return "", fmt.Errorf("stage upload: %w", err)
	}

	outputPath, err := ar.Acquire(".mp4")
	if err != nil {
		return "", err
	}
	if err := o.transcoder.Compress(ctx, inputPath, outputPath, media.UploadProfile); err != nil {
		return "", err
	}

	name := fmt.Sprintf("compressed-%d-%s", time.Now().UnixMilli(), baseNameMP4(in.Filename))
	return o.uploadFile(ctx, folder, name, "video/mp4", outputPath)
}

// RawUploadAsync stores the file untouched and enqueues a compression job
// for the background worker. Returns the URL of the original object; the
// worker reports the compressed URL through the queue's result channel.
func (o *Orchestrator) RawUploadAsync(ctx context.Context, in RawUploadInput) (string, error) {
	if in.File == nil {
		return "", ErrFileMissing
	}
	if o.queue == nil {
		return "", ErrQueueUnavailable
	}

	folder := in.Folder
	if folder == "" {
		folder = storage.FolderUploads
	}

	name := fmt.Sprintf("%d-%s", time.Now().UnixMilli(), filepath.Base(in.Filename))
	url, err := o.store.Upload(ctx, folder, name, in.ContentType, in.File)
	if err != nil {
		return "", err
	}

	job := queue.Job{
		FileKey:      folder + "/" + name,
		OriginalName: name,
		Folder:       folder,
	}
	if err := o.queue.Enqueue(ctx, job); err != nil {
		return "", fmt.Errorf("enqueue compression job: %w", err)
	}

	o.logger.Info("compression job enqueued",
		slog.String("file_key", job.FileKey),
		slog.String("folder", folder),
	)
	return url, nil
}

// recordUpload emits the upload_reel action-log entry. Failures are
// swallowed by the recorder; a cancelled request must not drop the entry.
func (o *Orchestrator) recordUpload(ctx context.Context, saved *reel.Reel, meta RequestMeta) {
	o.recorder.Record(context.WithoutCancel(ctx), actionlog.Entry{
		User:       saved.User,
		Action:     actionlog.ActionUploadReel,
		TargetType: "Reel",
		TargetID:   saved.ID,
		Device:     meta.Device,
		Location:   meta.Location,
	})
}

// uploadFile opens a local artifact and pushes it to the object store.
func (o *Orchestrator) uploadFile(ctx context.Context, folder, name, contentType, path string) (string, error) {
	f, err := os.Open(path) // #nosec G304 - path comes from the arena
	if err != nil {
		return "", fmt.Errorf("open artifact: %w", err)
	}
	defer func() { _ = f.Close() }()

	return o.store.Upload(ctx, folder, name, contentType, f)
}

// extOr returns the file extension of name, or fallback when absent.
func extOr(name, fallback string) string {
	if ext := filepath.Ext(name); ext != "" {
		return ext
	}
	return fallback
}

// baseNameMP4 strips the path and forces an .mp4 extension.
func baseNameMP4(name string) string {
	base := filepath.Base(name)
	ext := filepath.Ext(base)
	return strings.TrimSuffix(base, ext) + ".mp4"
}

// contentTypeByExt maps common image extensions to MIME types.
func contentTypeByExt(name string) string {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".png":
		return "image/png"
	case ".webp":
		return "image/webp"
	default:
		return "image/jpeg"
	}
}
