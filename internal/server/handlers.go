package server

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/reelhub/reels-api/internal/actionlog"
	"github.com/reelhub/reels-api/internal/pipeline"
	"github.com/reelhub/reels-api/internal/reel"
)

// maxUploadBytes bounds the multipart upload size.
const maxUploadBytes = 200 << 20 // 200 MB

// defaultFeedLimit is the page size of the random feed endpoints.
const defaultFeedLimit = 10

// FollowChecker resolves whether a viewer follows an author. The user
// graph lives in another service; feeds degrade to isFollowing=false
// when no checker is wired.
type FollowChecker interface {
	IsFollowing(ctx context.Context, viewer, author primitive.ObjectID) (bool, error)
}

type nullFollowChecker struct{}

func (nullFollowChecker) IsFollowing(context.Context, primitive.ObjectID, primitive.ObjectID) (bool, error) {
	return false, nil
}

// Handlers contains the HTTP handlers for the API.
type Handlers struct {
	orchestrator *pipeline.Orchestrator
	reels        reel.Repository
	recorder     *actionlog.Recorder
	follows      FollowChecker
	validator    *validator.Validate
	logger       *slog.Logger
}

// HandlerOption is a function that configures a Handlers instance.
type HandlerOption func(*Handlers)

// WithFollowChecker wires the follow-relation resolver used by the
// annotated feed endpoint.
func WithFollowChecker(fc FollowChecker) HandlerOption {
	return func(h *Handlers) {
		h.follows = fc
	}
}

// NewHandlers creates a new Handlers instance.
func NewHandlers(orchestrator *pipeline.Orchestrator, reels reel.Repository, recorder *actionlog.Recorder, logger *slog.Logger, opts ...HandlerOption) *Handlers {
	if logger == nil {
		logger = slog.Default()
	}
	h := &Handlers{
		orchestrator: orchestrator,
		reels:        reels,
		recorder:     recorder,
		follows:      nullFollowChecker{},
		validator:    validator.New(),
		logger:       logger,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Health handles GET /health requests.
func (h *Handlers) Health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, HealthResponse{Status: "ok"})
}

// FullUpload handles POST /api/reels/full-upload: the interactive upload
// path with trimming, music merge and thumbnail handling.
func (h *Handlers) FullUpload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		writeError(w, http.StatusBadRequest, "invalid multipart form")
		return
	}
	defer func() { _ = r.MultipartForm.RemoveAll() }()

	in := pipeline.FullUploadInput{
		User:         r.FormValue("user"),
		UserID:       r.FormValue("userid"),
		Username:     r.FormValue("username"),
		Caption:      r.FormValue("caption"),
		MusicID:      r.FormValue("musicId"),
		VideoStartMs: r.FormValue("videoStartTime"),
		VideoEndMs:   r.FormValue("videoEndTime"),
		MusicStartMs: r.FormValue("musicStartTime"),
		MusicEndMs:   r.FormValue("musicEndTime"),
		Meta:         requestMeta(r),
	}

	if video, header, err := r.FormFile("video"); err == nil {
		defer func() { _ = video.Close() }()
		in.Video = video
		in.VideoFilename = header.Filename
	}
	if thumb, header, err := r.FormFile("thumbnail"); err == nil {
		defer func() { _ = thumb.Close() }()
		in.Thumbnail = thumb
		in.ThumbnailFilename = header.Filename
	}

	saved, err := h.orchestrator.FullUpload(r.Context(), in)
	if err != nil {
		if pipeline.IsValidationError(err) {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		h.logger.Error("full upload failed",
			slog.String("error", err.Error()),
			slog.String("request_id", RequestIDFromContext(r.Context())),
		)
		writeError(w, http.StatusInternalServerError, "failed to process reel")
		return
	}

	writeJSON(w, http.StatusCreated, UploadResponse{
		Message: "Reel uploaded successfully",
		Success: true,
		Data:    saved,
	})
}

// RawUpload handles POST /api/reels/upload-raw-file: stores a single file,
// compressing videos before storage. With the form field async=true the
// original is stored as-is and a compression job is queued for the
// background worker instead.
func (h *Handlers) RawUpload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		writeError(w, http.StatusBadRequest, "invalid multipart form")
		return
	}
	defer func() { _ = r.MultipartForm.RemoveAll() }()

	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "file is required")
		return
	}
	defer func() { _ = file.Close() }()

	in := pipeline.RawUploadInput{
		File:        file,
		Filename:    header.Filename,
		ContentType: header.Header.Get("Content-Type"),
		Folder:      r.FormValue("folder"),
	}

	if r.FormValue("async") == "true" {
		url, err := h.orchestrator.RawUploadAsync(r.Context(), in)
		if err != nil {
			if errors.Is(err, pipeline.ErrQueueUnavailable) {
				writeError(w, http.StatusServiceUnavailable, "background compression is not available")
				return
			}
			h.logger.Error("async raw upload failed", slog.String("error", err.Error()))
			writeError(w, http.StatusInternalServerError, "failed to queue file")
			return
		}
		writeJSON(w, http.StatusAccepted, RawUploadResponse{
			Message: "File queued for compression",
			Success: true,
			File:    url,
		})
		return
	}

	url, err := h.orchestrator.RawUpload(r.Context(), in)
	if err != nil {
		if pipeline.IsValidationError(err) {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		h.logger.Error("raw upload failed", slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "failed to store file")
		return
	}

	writeJSON(w, http.StatusOK, RawUploadResponse{
		Message: "File uploaded successfully",
		Success: true,
		File:    url,
	})
}

// MetadataUpload handles POST /api/reels/upload: persists a reel whose
// video already lives at a trusted URL.
func (h *Handlers) MetadataUpload(w http.ResponseWriter, r *http.Request) {
	var req MetadataUploadRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if err := h.validator.Struct(req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	saved, err := h.orchestrator.MetadataUpload(r.Context(), pipeline.MetadataUploadInput{
		User:         req.User,
		UserID:       req.UserID,
		Username:     req.Username,
		VideoURL:     req.VideoURL,
		ThumbnailURL: req.ThumbnailURL,
		Caption:      req.Caption,
		Duration:     req.Duration,
		Music:        req.Music,
		Meta:         requestMeta(r),
	})
	if err != nil {
		if pipeline.IsValidationError(err) {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		h.logger.Error("metadata upload failed", slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "failed to save reel")
		return
	}

	writeJSON(w, http.StatusCreated, UploadResponse{
		Message: "Reel saved successfully",
		Success: true,
		Data:    saved,
	})
}

// List handles GET /api/reels.
func (h *Handlers) List(w http.ResponseWriter, r *http.Request) {
	reels, err := h.reels.FindAll(r.Context())
	if err != nil {
		h.logger.Error("failed to list reels", slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "failed to fetch reels")
		return
	}
	writeJSON(w, http.StatusOK, reels)
}

// Show handles GET /api/reels/show: a random feed page. Query params:
// limit, exclude (comma-separated reel IDs already seen).
func (h *Handlers) Show(w http.ResponseWriter, r *http.Request) {
	limit := parseLimit(r.URL.Query().Get("limit"))
	exclude := parseIDList(r.URL.Query().Get("exclude"))

	reels, err := h.reels.Sample(r.Context(), limit, exclude)
	if err != nil {
		h.logger.Error("failed to sample reels", slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "failed to fetch reels")
		return
	}
	writeJSON(w, http.StatusOK, FeedResponse{Reels: reels})
}

// ShowNew handles GET /api/reels/shownew: a random feed page annotated
// with the viewer's follow relation to each author.
func (h *Handlers) ShowNew(w http.ResponseWriter, r *http.Request) {
	viewer, err := primitive.ObjectIDFromHex(r.URL.Query().Get("userId"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "valid userId is required")
		return
	}
	limit := parseLimit(r.URL.Query().Get("limit"))
	exclude := parseIDList(r.URL.Query().Get("exclude"))

	reels, err := h.reels.Sample(r.Context(), limit, exclude)
	if err != nil {
		h.logger.Error("failed to sample reels", slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "failed to fetch reels")
		return
	}

	annotated := make([]AnnotatedReel, 0, len(reels))
	for _, item := range reels {
		following, err := h.follows.IsFollowing(r.Context(), viewer, item.User)
		if err != nil {
			// Missing follow data must not break the feed.
			following = false
		}
		annotated = append(annotated, AnnotatedReel{Reel: item, IsFollowing: following})
	}
	writeJSON(w, http.StatusOK, AnnotatedFeedResponse{Reels: annotated})
}

// ByMusic handles GET /api/reels/by-music/{id}.
func (h *Handlers) ByMusic(w http.ResponseWriter, r *http.Request) {
	musicID, err := primitive.ObjectIDFromHex(r.PathValue("id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid music ID")
		return
	}

	reels, err := h.reels.FindByMusic(r.Context(), musicID)
	if err != nil {
		h.logger.Error("failed to fetch reels by music", slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "failed to fetch reels")
		return
	}
	if len(reels) == 0 {
		writeError(w, http.StatusNotFound, "no reels found for this music")
		return
	}
	writeJSON(w, http.StatusOK, ReelsResponse{Message: "Reels fetched successfully", Data: reels})
}

// GetByID handles GET /api/reels/{id}.
func (h *Handlers) GetByID(w http.ResponseWriter, r *http.Request) {
	id, err := primitive.ObjectIDFromHex(r.PathValue("id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid reel ID")
		return
	}

	found, err := h.reels.FindByID(r.Context(), id)
	if err != nil {
		if errors.Is(err, reel.ErrNotFound) {
			writeError(w, http.StatusNotFound, "reel not found")
			return
		}
		h.logger.Error("failed to fetch reel", slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "failed to fetch reel")
		return
	}
	writeJSON(w, http.StatusOK, found)
}

// View handles POST /api/reels/view. A (reel, viewer) pair is counted at
// most once; repeat views return the current counter unchanged.
func (h *Handlers) View(w http.ResponseWriter, r *http.Request) {
	var req ViewRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if err := h.validator.Struct(req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	reelID, err := primitive.ObjectIDFromHex(req.ReelID)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid reel ID")
		return
	}
	userID, err := primitive.ObjectIDFromHex(req.UserID)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid user ID")
		return
	}

	views, counted, err := h.reels.AddView(r.Context(), reelID, userID)
	if err != nil {
		if errors.Is(err, reel.ErrNotFound) {
			writeError(w, http.StatusNotFound, "reel not found")
			return
		}
		h.logger.Error("failed to count view", slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "failed to count view")
		return
	}

	if counted {
		h.record(r, userID, actionlog.ActionViewReel, reelID)
		writeJSON(w, http.StatusOK, ViewResponse{Message: "View counted", Views: views})
		return
	}
	writeJSON(w, http.StatusOK, ViewResponse{Message: "View already counted", Views: views})
}

// Like handles PUT /api/reels/like/{id}: toggles the user's like.
func (h *Handlers) Like(w http.ResponseWriter, r *http.Request) {
	reelID, err := primitive.ObjectIDFromHex(r.PathValue("id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid reel ID")
		return
	}

	var req LikeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if err := h.validator.Struct(req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	userID, err := primitive.ObjectIDFromHex(req.UserID)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid user ID")
		return
	}

	liked, likes, err := h.reels.ToggleLike(r.Context(), reelID, userID)
	if err != nil {
		if errors.Is(err, reel.ErrNotFound) {
			writeError(w, http.StatusNotFound, "reel not found")
			return
		}
		h.logger.Error("failed to toggle like", slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "failed to toggle like")
		return
	}

	if liked {
		h.record(r, userID, actionlog.ActionLikeReel, reelID)
		writeJSON(w, http.StatusOK, LikeResponse{Message: "Reel liked", Liked: true, Likes: likes})
		return
	}
	h.record(r, userID, actionlog.ActionUnlikeReel, reelID)
	writeJSON(w, http.StatusOK, LikeResponse{Message: "Reel unliked", Liked: false, Likes: likes})
}

// Share handles PUT /api/reels/share/{id}.
func (h *Handlers) Share(w http.ResponseWriter, r *http.Request) {
	reelID, err := primitive.ObjectIDFromHex(r.PathValue("id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid reel ID")
		return
	}

	var req ShareRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if err := h.validator.Struct(req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	sharedBy, err := primitive.ObjectIDFromHex(req.SharedBy)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid sharedBy ID")
		return
	}
	sharedTo, err := primitive.ObjectIDFromHex(req.SharedTo)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid sharedTo ID")
		return
	}

	if err := h.reels.AddShare(r.Context(), reelID, reel.Share{SharedBy: sharedBy, SharedTo: sharedTo}); err != nil {
		if errors.Is(err, reel.ErrNotFound) {
			writeError(w, http.StatusNotFound, "reel not found")
			return
		}
		h.logger.Error("failed to record share", slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "failed to record share")
		return
	}

	h.record(r, sharedBy, actionlog.ActionShareReel, reelID)
	writeJSON(w, http.StatusOK, MessageResponse{Message: "Reel shared successfully", Success: true})
}

// Update handles PUT /api/reels/update/{id}: a partial metadata update.
func (h *Handlers) Update(w http.ResponseWriter, r *http.Request) {
	reelID, err := primitive.ObjectIDFromHex(r.PathValue("id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid reel ID")
		return
	}

	var req UpdateReelRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	upd := reel.Update{
		VideoURL:     req.VideoURL,
		ThumbnailURL: req.ThumbnailURL,
		Caption:      req.Caption,
		Duration:     req.Duration,
	}
	if req.Music != nil {
		musicID, err := primitive.ObjectIDFromHex(*req.Music)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid music ID")
			return
		}
		upd.Music = &musicID
	}

	updated, err := h.reels.Update(r.Context(), reelID, upd)
	if err != nil {
		if errors.Is(err, reel.ErrNotFound) {
			writeError(w, http.StatusNotFound, "reel not found")
			return
		}
		h.logger.Error("failed to update reel", slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "failed to update reel")
		return
	}

	h.record(r, updated.User, actionlog.ActionUpdateReel, reelID)
	writeJSON(w, http.StatusOK, UploadResponse{
		Message: "Reel updated successfully",
		Success: true,
		Data:    updated,
	})
}

// Delete handles DELETE /api/reels/delete/{id}.
func (h *Handlers) Delete(w http.ResponseWriter, r *http.Request) {
	reelID, err := primitive.ObjectIDFromHex(r.PathValue("id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid reel ID")
		return
	}

	// Fetch first so the owner can be recorded in the action log.
	found, err := h.reels.FindByID(r.Context(), reelID)
	if err != nil {
		if errors.Is(err, reel.ErrNotFound) {
			writeError(w, http.StatusNotFound, "reel not found")
			return
		}
		h.logger.Error("failed to fetch reel", slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "failed to delete reel")
		return
	}

	if err := h.reels.Delete(r.Context(), reelID); err != nil {
		if errors.Is(err, reel.ErrNotFound) {
			writeError(w, http.StatusNotFound, "reel not found")
			return
		}
		h.logger.Error("failed to delete reel", slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "failed to delete reel")
		return
	}

	h.record(r, found.User, actionlog.ActionDeleteReel, reelID)
	writeJSON(w, http.StatusOK, MessageResponse{Message: "Reel deleted successfully", Success: true})
}

// record emits a best-effort action-log entry for the request.
func (h *Handlers) record(r *http.Request, user primitive.ObjectID, action actionlog.Action, target primitive.ObjectID) {
	meta := requestMeta(r)
	h.recorder.Record(context.WithoutCancel(r.Context()), actionlog.Entry{
		User:       user,
		Action:     action,
		TargetType: "Reel",
		TargetID:   target,
		Device:     meta.Device,
		Location:   meta.Location,
	})
}

// requestMeta extracts device and location hints from request headers.
func requestMeta(r *http.Request) pipeline.RequestMeta {
	return pipeline.RequestMeta{
		Device: r.UserAgent(),
		Location: actionlog.Location{
			IP:      clientIP(r),
			Country: r.Header.Get("CF-IPCountry"),
		},
	}
}

// clientIP prefers the first X-Forwarded-For hop over the socket address.
func clientIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		return strings.TrimSpace(strings.SplitN(fwd, ",", 2)[0])
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// parseLimit parses a feed page size, falling back to the default.
func parseLimit(raw string) int {
	limit, err := strconv.Atoi(raw)
	if err != nil || limit <= 0 {
		return defaultFeedLimit
	}
	return limit
}

// parseIDList parses a comma-separated list of object IDs, skipping
// malformed entries.
func parseIDList(raw string) []primitive.ObjectID {
	if raw == "" {
		return nil
	}
	var ids []primitive.ObjectID
	for _, part := range strings.Split(raw, ",") {
		if id, err := primitive.ObjectIDFromHex(strings.TrimSpace(part)); err == nil {
			ids = append(ids, id)
		}
	}
	return ids
}

// writeJSON writes a JSON response.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		slog.Error("failed to encode JSON response", slog.String("error", err.Error()))
	}
}

// writeError writes an error response in the standard format.
func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, ErrorResponse{Success: false, Message: message})
}
