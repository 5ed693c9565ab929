package media

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"
	"time"
)

// Pipeline stage names carried by TranscodeError.
const (
	StageCompress  = "compress"
	StageTrimAudio = "trim_audio"
	StageMux       = "mux"
	StageThumbnail = "thumbnail"
	StageProbe     = "probe"
)

// TranscodeError represents a failed external-process invocation,
// tagged with the pipeline stage and carrying the ffmpeg diagnostics.
type TranscodeError struct {
	Stage  string
	Args   []string
	Stderr string
	Err    error
}

func (e *TranscodeError) Error() string {
	return fmt.Sprintf("transcode stage %s: %v\nargs: %v\nstderr: %s", e.Stage, e.Err, e.Args, e.Stderr)
}

func (e *TranscodeError) Unwrap() error {
	return e.Err
}

// FFmpegConfig configures the FFmpeg transcoder. Paths default to binaries
// found via PATH; Timeout bounds each external-process invocation.
type FFmpegConfig struct {
	BinPath   string
	ProbePath string
	Timeout   time.Duration
}

// FFmpeg implements Transcoder using the ffmpeg CLI.
type FFmpeg struct {
	ffmpegPath  string
	ffprobePath string
	timeout     time.Duration
}

// Compile-time check that FFmpeg implements Transcoder.
var _ Transcoder = (*FFmpeg)(nil)

// NewFFmpeg creates a new FFmpeg transcoder from the given configuration.
func NewFFmpeg(cfg FFmpegConfig) *FFmpeg {
	if cfg.BinPath == "" {
		cfg.BinPath = "ffmpeg"
	}
	if cfg.ProbePath == "" {
		cfg.ProbePath = "ffprobe"
	}
	return &FFmpeg{
		ffmpegPath:  cfg.BinPath,
		ffprobePath: cfg.ProbePath,
		timeout:     cfg.Timeout,
	}
}

// Compress re-encodes a video with libx264/aac at the profile's bitrate.
func (f *FFmpeg) Compress(ctx context.Context, in, out string, profile Profile) error {
	return f.TrimCompress(ctx, in, out, nil, profile)
}

// TrimCompress optionally seeks and bounds the duration, then re-encodes.
func (f *FFmpeg) TrimCompress(ctx context.Context, in, out string, span *Span, profile Profile) error {
	args := []string{"-y"}
	if span != nil {
		// Seek before the input for fast, keyframe-aligned seeking.
		args = append(args,
			"-ss", formatSeconds(span.StartSec),
			"-t", formatSeconds(span.DurationSec),
		)
	}
	args = append(args,
		"-i", in,
		"-c:v", "libx264",
		"-preset", "veryfast",
		"-crf", "28",
		"-b:v", profile.VideoBitrate,
		"-c:a", "aac",
		"-b:a", "128k",
		out,
	)
	return f.run(ctx, StageCompress, args)
}

// TrimAudio cuts the audio to the span and re-encodes it with libmp3lame.
func (f *FFmpeg) TrimAudio(ctx context.Context, in, out string, span *Span) error {
	args := []string{"-y"}
	if span != nil {
		args = append(args,
			"-ss", formatSeconds(span.StartSec),
			"-t", formatSeconds(span.DurationSec),
		)
	}
	args = append(args,
		"-i", in,
		"-vn",
		"-c:a", "libmp3lame",
		out,
	)
	return f.run(ctx, StageTrimAudio, args)
}

// Mux copies the video stream from videoIn and re-encodes the audio stream
// from audioIn. -shortest guarantees the output never outlasts either input.
func (f *FFmpeg) Mux(ctx context.Context, videoIn, audioIn, out string) error {
	args := []string{
		"-y",
		"-i", videoIn,
		"-i", audioIn,
		"-c:v", "copy",
		"-c:a", "aac",
		"-map", "0:v:0",
		"-map", "1:a:0",
		"-shortest",
		out,
	}
	return f.run(ctx, StageMux, args)
}

// ExtractThumbnail grabs one frame at atSeconds, scaled to width 640 with
// preserved aspect ratio.
func (f *FFmpeg) ExtractThumbnail(ctx context.Context, videoIn, out string, atSeconds float64) error {
	args := []string{
		"-y",
		"-ss", formatSeconds(atSeconds),
		"-i", videoIn,
		"-vframes", "1",
		"-vf", "scale=640:-1",
		out,
	}
	return f.run(ctx, StageThumbnail, args)
}

// Duration returns the duration in seconds of a media file using ffprobe.
func (f *FFmpeg) Duration(ctx context.Context, path string) (float64, error) {
	ctx, cancel := f.withTimeout(ctx)
	defer cancel()

	// #nosec G204 - ffprobePath is set by the application, not user input
	cmd := exec.CommandContext(ctx, f.ffprobePath,
		"-v", "error",
		"-show_entries", "format=duration",
		"-of", "default=noprint_wrappers=1:nokey=1",
		path,
	)

	var stdout bytes.Buffer
	var stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			err = ctx.Err()
		}
		return 0, &TranscodeError{
			Stage:  StageProbe,
			Args:   cmd.Args[1:],
			Stderr: stderr.String(),
			Err:    err,
		}
	}

	var duration float64
	if _, err := fmt.Sscanf(strings.TrimSpace(stdout.String()), "%f", &duration); err != nil {
		return 0, fmt.Errorf("parse duration: %w", err)
	}

	return duration, nil
}

// run executes ffmpeg with the given arguments, bounded by the configured
// timeout, and wraps any failure in a stage-tagged TranscodeError.
func (f *FFmpeg) run(ctx context.Context, stage string, args []string) error {
	ctx, cancel := f.withTimeout(ctx)
	defer cancel()

	// #nosec G204 - ffmpegPath is set by the application, not user input
	cmd := exec.CommandContext(ctx, f.ffmpegPath, args...)

	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		// Timeouts and cancellations surface as the context error.
		if ctx.Err() != nil {
			err = ctx.Err()
		}
		return &TranscodeError{
			Stage:  stage,
			Args:   args,
			Stderr: stderr.String(),
			Err:    err,
		}
	}

	return nil
}

func (f *FFmpeg) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if f.timeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, f.timeout)
}

func formatSeconds(s float64) string {
	return fmt.Sprintf("%.3f", s)
}
