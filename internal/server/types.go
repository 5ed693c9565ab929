// Package server provides the HTTP surface of the reels API.
// It includes handlers, middleware, routes, and DTOs separated from domain types.
package server

import "github.com/reelhub/reels-api/internal/reel"

// UploadResponse is the HTTP response after a reel has been ingested.
type UploadResponse struct {
	Message string     `json:"message"`
	Success bool       `json:"success"`
	Data    *reel.Reel `json:"data"`
}

// RawUploadResponse is the HTTP response of the raw file upload endpoint.
type RawUploadResponse struct {
	Message string `json:"message"`
	Success bool   `json:"success"`
	File    string `json:"file"`
}

// MetadataUploadRequest is the body of the trusted metadata upload endpoint.
// The video must already live at a public URL.
type MetadataUploadRequest struct {
	User         string  `json:"user" validate:"required"`
	UserID       string  `json:"userid"`
	Username     string  `json:"username"`
	VideoURL     string  `json:"videoUrl" validate:"required,url"`
	ThumbnailURL string  `json:"thumbnailUrl"`
	Caption      string  `json:"caption"`
	Duration     float64 `json:"duration"`
	Music        string  `json:"music"`
}

// UpdateReelRequest is the partial-update body. Nil fields are untouched.
type UpdateReelRequest struct {
	VideoURL     *string  `json:"videoUrl"`
	ThumbnailURL *string  `json:"thumbnailUrl"`
	Caption      *string  `json:"caption"`
	Duration     *float64 `json:"duration"`
	Music        *string  `json:"music"`
}

// ViewRequest is the body of the view-count endpoint.
type ViewRequest struct {
	ReelID string `json:"reelId" validate:"required"`
	UserID string `json:"userId" validate:"required"`
}

// ViewResponse reports the view counter after a view request.
type ViewResponse struct {
	Message string `json:"message"`
	Views   int64  `json:"views"`
}

// LikeRequest is the body of the like toggle endpoint.
type LikeRequest struct {
	UserID string `json:"userId" validate:"required"`
}

// LikeResponse reports the like state after a toggle.
type LikeResponse struct {
	Message string `json:"message"`
	Liked   bool   `json:"liked"`
	Likes   int    `json:"likes"`
}

// ShareRequest is the body of the share endpoint.
type ShareRequest struct {
	SharedBy string `json:"sharedBy" validate:"required"`
	SharedTo string `json:"sharedTo" validate:"required"`
}

// FeedResponse wraps a random feed page.
type FeedResponse struct {
	Reels []*reel.Reel `json:"reels"`
}

// AnnotatedReel is a reel enriched with the viewer's follow relation to
// its author.
type AnnotatedReel struct {
	*reel.Reel
	IsFollowing bool `json:"isFollowing"`
}

// AnnotatedFeedResponse wraps a feed page with follow annotations.
type AnnotatedFeedResponse struct {
	Reels []AnnotatedReel `json:"reels"`
}

// ReelsResponse wraps a plain list of reels.
type ReelsResponse struct {
	Message string       `json:"message"`
	Data    []*reel.Reel `json:"data"`
}

// MessageResponse is a bare success acknowledgment.
type MessageResponse struct {
	Message string `json:"message"`
	Success bool   `json:"success"`
}

// ErrorResponse is the standard error response format.
type ErrorResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

// HealthResponse is the HTTP response for the health check endpoint.
type HealthResponse struct {
	Status string `json:"status"`
}
