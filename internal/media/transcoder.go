// Package media provides video and audio transcoding via the ffmpeg CLI.
// It defines the Transcoder interface (port) used by the upload pipeline
// and the background compression worker.
package media

import (
	"context"
	"strconv"
)

// Profile selects the target video bitrate for compression.
type Profile struct {
	// VideoBitrate is the maximum video bitrate, e.g. "1500k".
	VideoBitrate string
}

// Compression profiles used by the pipeline. Reels uploaded through the
// interactive path get the higher bitrate; raw uploads and queued jobs
// are compressed harder.
var (
	ReelProfile   = Profile{VideoBitrate: "1500k"}
	UploadProfile = Profile{VideoBitrate: "800k"}
)

// Span is a validated trim window in seconds, parsed from millisecond
// bounds supplied by the client.
type Span struct {
	StartSec    float64
	DurationSec float64
}

// ParseSpan converts millisecond string bounds into a Span.
// It returns nil when either bound is absent, not a number, or when
// end <= start; callers fall back to full-length processing in that case.
func ParseSpan(startMs, endMs string) *Span {
	if startMs == "" || endMs == "" {
		return nil
	}
	start, err := strconv.ParseFloat(startMs, 64)
	if err != nil {
		return nil
	}
	end, err := strconv.ParseFloat(endMs, 64)
	if err != nil {
		return nil
	}
	if end <= start {
		return nil
	}
	return &Span{
		StartSec:    start / 1000,
		DurationSec: (end - start) / 1000,
	}
}

// Transcoder defines the media operations used by the upload pipeline.
// Every operation is a one-shot external-process invocation; failures
// surface as *TranscodeError tagged with the stage that failed.
type Transcoder interface {
	// Compress re-encodes a video to H.264/AAC with a bounded bitrate.
	Compress(ctx context.Context, in, out string, profile Profile) error

	// TrimCompress seeks to span.StartSec and limits output duration to
	// span.DurationSec before the same re-encode. A nil span behaves
	// exactly like Compress.
	TrimCompress(ctx context.Context, in, out string, span *Span, profile Profile) error

	// TrimAudio cuts an audio file to the span and re-encodes it to MP3.
	TrimAudio(ctx context.Context, in, out string, span *Span) error

	// Mux combines the video stream of videoIn with the audio stream of
	// audioIn. The video stream is copied unmodified; output is truncated
	// to the shorter of the two inputs.
	Mux(ctx context.Context, videoIn, audioIn, out string) error

	// ExtractThumbnail grabs a single frame at atSeconds, scaled to a
	// fixed width with preserved aspect ratio.
	ExtractThumbnail(ctx context.Context, videoIn, out string, atSeconds float64) error

	// Duration returns the duration of a media file in seconds.
	Duration(ctx context.Context, path string) (float64, error)
}
