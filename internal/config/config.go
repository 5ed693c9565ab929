// Package config provides configuration loading from environment variables.
package config

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/sethvargo/go-envconfig"
)

// Static errors for configuration validation.
var (
	// ErrMongoURIRequired is returned when MONGO_URI is not set.
	ErrMongoURIRequired = errors.New("config: MONGO_URI is required")
	// ErrMongoDatabaseRequired is returned when MONGO_DB is not set.
	ErrMongoDatabaseRequired = errors.New("config: MONGO_DB is required")
)

// Config holds all configuration for the application.
type Config struct {
	// Server settings
	Port           int      `env:"PORT, default=4000" json:"port"`
	AllowedOrigins []string `env:"ALLOWED_ORIGINS, default=*" json:"allowed_origins"`

	// MongoDB settings
	MongoURI string `env:"MONGO_URI, required" json:"-"` // Masked in JSON
	MongoDB  string `env:"MONGO_DB, required" json:"mongo_db"`

	// Redis settings (background compression queue)
	RedisAddr     string `env:"REDIS_ADDR, default=localhost:6379" json:"redis_addr"`
	RedisPassword string `env:"REDIS_PASSWORD" json:"-"` // Masked in JSON
	QueueName     string `env:"QUEUE_NAME, default=video-processing" json:"queue_name"`

	// Storage settings
	TempDir string `env:"TEMP_DIR, default=/tmp/reels" json:"temp_dir"`
	// Filesystem object store, used when S3 is not configured
	StorageDir    string `env:"STORAGE_DIR, default=/var/lib/reels" json:"storage_dir"`
	PublicBaseURL string `env:"PUBLIC_BASE_URL, default=http://localhost:4000/static" json:"public_base_url"`

	// Transcoding settings
	FFmpegPath       string        `env:"FFMPEG_PATH" json:"ffmpeg_path,omitempty"`
	FFprobePath      string        `env:"FFPROBE_PATH" json:"ffprobe_path,omitempty"`
	TranscodeTimeout time.Duration `env:"TRANSCODE_TIMEOUT, default=5m" json:"transcode_timeout"`

	// Thumbnail fallback when extraction fails
	PlaceholderThumbnailURL string `env:"PLACEHOLDER_THUMBNAIL_URL, default=https://placehold.co/640x360.jpg" json:"placeholder_thumbnail_url"`

	// Optional S3 settings
	S3Bucket           string `env:"S3_BUCKET" json:"s3_bucket,omitempty"`
	S3Region           string `env:"S3_REGION" json:"s3_region,omitempty"`
	S3Endpoint         string `env:"S3_ENDPOINT" json:"s3_endpoint,omitempty"`
	AWSAccessKeyID     string `env:"AWS_ACCESS_KEY_ID" json:"-"`     // Masked in JSON
	AWSSecretAccessKey string `env:"AWS_SECRET_ACCESS_KEY" json:"-"` // Masked in JSON

	// Logging settings
	LogFormat string `env:"LOG_FORMAT, default=text" json:"log_format"` // "json" or "text"
	LogLevel  string `env:"LOG_LEVEL, default=info" json:"log_level"`   // "debug", "info", "warn", "error"
}

// S3Enabled returns true if S3 configuration is provided.
func (c *Config) S3Enabled() bool {
	return c.S3Bucket != "" && c.S3Region != ""
}

// Load reads configuration from environment variables using go-envconfig.
// It returns an error if required variables are not set.
func Load() (*Config, error) {
	cfg := &Config{}

	if err := envconfig.Process(context.Background(), cfg); err != nil {
		// Map envconfig errors to our domain errors for required fields
		if strings.Contains(err.Error(), "MONGO_URI") {
			return nil, ErrMongoURIRequired
		}
		if strings.Contains(err.Error(), "MONGO_DB") {
			return nil, ErrMongoDatabaseRequired
		}
		return nil, fmt.Errorf("config: %w", err)
	}

	return cfg, nil
}

// Validate checks that all required configuration is present.
func (c *Config) Validate() error {
	if c.MongoURI == "" {
		return ErrMongoURIRequired
	}
	if c.MongoDB == "" {
		return ErrMongoDatabaseRequired
	}
	return nil
}

// NewLogger creates a structured logger based on the configuration.
// When LogFormat is "json", it outputs JSON logs suitable for production.
// Otherwise, it outputs human-readable text logs.
func (c *Config) NewLogger() *slog.Logger {
	level := parseLogLevel(c.LogLevel)

	var handler slog.Handler
	if strings.ToLower(c.LogFormat) == "json" {
		handler = slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
			Level: level,
		})
	} else {
		handler = slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
			Level: level,
		})
	}

	return slog.New(handler)
}

// String returns a string representation of the config with sensitive values masked.
func (c *Config) String() string {
	return fmt.Sprintf(
		"Config{Port: %d, MongoDB: %s, RedisAddr: %s, QueueName: %s, TempDir: %s, TranscodeTimeout: %s, S3Bucket: %s, S3Region: %s, LogFormat: %s, LogLevel: %s}",
		c.Port,
		c.MongoDB,
		c.RedisAddr,
		c.QueueName,
		c.TempDir,
		c.TranscodeTimeout,
		c.S3Bucket,
		c.S3Region,
		c.LogFormat,
		c.LogLevel,
	)
}

// parseLogLevel converts a string log level to slog.Level.
func parseLogLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
