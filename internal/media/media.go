// Package media is the boundary to the external codec tooling. The engine
// never touches raw encoded bytes itself; everything goes through ffmpeg
// and ffprobe processes behind the FFmpeg interface.
package media

import (
	"context"
	"image"
)

type ProbeResult struct {
	Duration    float64
	Width       int
	Height      int
	Codec       string
	Bitrate     int64
	FrameRate   float64
	HasAudio    bool
	AudioCodec  string
	AudioSample int
}

// EncodeInvocation is the fully specified manifest handed to the external
// encoder: input files, a serialized filter graph, codec parameters, and
// the exact output duration truncation.
type EncodeInvocation struct {
	Inputs        []string
	FilterComplex string
	VideoLabel    string
	AudioLabel    string

	VideoCodec  string
	Preset      string
	CRF         int
	PixelFormat string
	FPS         int

	AudioCodec   string
	AudioBitrate string

	Duration   float64
	OutputPath string
}

// FFmpeg abstracts the codec service. The real implementation shells out;
// the stub records calls for tests.
type FFmpeg interface {
	// Probe reads container/stream metadata without decoding media.
	Probe(ctx context.Context, filePath string) (*ProbeResult, error)
	// DecodeFrame seeks to offset seconds and decodes exactly one frame.
	DecodeFrame(ctx context.Context, filePath string, offset float64) (image.Image, error)
	// Encode runs the invocation, reporting progress in [0,100] when the
	// invocation's duration is known. Cancelling ctx kills the process.
	Encode(ctx context.Context, inv *EncodeInvocation, onProgress func(float64)) error
}

// Default encoding settings
const (
	DefaultVideoCodec   = "libx264"
	DefaultPreset       = "medium"
	DefaultCRF          = 23
	DefaultPixelFormat  = "yuv420p"
	DefaultAudioCodec   = "aac"
	DefaultAudioBitrate = "192k"
)
