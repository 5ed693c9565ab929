package server

import (
	"log/slog"
	"net/http"
)

// Config contains server configuration options.
type Config struct {
	// AllowedOrigins is the list of allowed CORS origins.
	AllowedOrigins []string
}

// DefaultConfig returns a Config with default values.
func DefaultConfig() Config {
	return Config{
		AllowedOrigins: []string{"*"},
	}
}

// NewRouter creates a new HTTP router with all routes configured.
// It uses Go 1.22+ ServeMux with method-based routing.
func NewRouter(h *Handlers, logger *slog.Logger, cfg Config) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", h.Health)

	// Ingestion
	mux.HandleFunc("POST /api/reels/full-upload", h.FullUpload)
	mux.HandleFunc("POST /api/reels/upload-raw-file", h.RawUpload)
	mux.HandleFunc("POST /api/reels/upload", h.MetadataUpload)

	// Reads
	mux.HandleFunc("GET /api/reels", h.List)
	mux.HandleFunc("GET /api/reels/show", h.Show)
	mux.HandleFunc("GET /api/reels/shownew", h.ShowNew)
	mux.HandleFunc("GET /api/reels/by-music/{id}", h.ByMusic)
	mux.HandleFunc("GET /api/reels/{id}", h.GetByID)

	// Engagement and lifecycle
	mux.HandleFunc("POST /api/reels/view", h.View)
	mux.HandleFunc("PUT /api/reels/like/{id}", h.Like)
	mux.HandleFunc("PUT /api/reels/share/{id}", h.Share)
	mux.HandleFunc("PUT /api/reels/update/{id}", h.Update)
	mux.HandleFunc("DELETE /api/reels/delete/{id}", h.Delete)

	chain := ChainMiddleware(
		RecoveryMiddleware(logger),
		RequestIDMiddleware(),
		LoggingMiddleware(logger),
		CORSMiddleware(cfg.AllowedOrigins),
	)

	return chain(mux)
}
