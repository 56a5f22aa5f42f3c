package media

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"image"
	_ "image/jpeg"
	"image/png"
	"log/slog"
	"os/exec"
	"strconv"
	"strings"
)

type RealFFmpeg struct {
	ffmpegPath  string
	ffprobePath string
	logger      *slog.Logger
}

func NewRealFFmpeg(ffmpegPath, ffprobePath string, logger *slog.Logger) *RealFFmpeg {
	if ffmpegPath == "" {
		ffmpegPath = "ffmpeg"
	}
	if ffprobePath == "" {
		ffprobePath = "ffprobe"
	}
	return &RealFFmpeg{ffmpegPath: ffmpegPath, ffprobePath: ffprobePath, logger: logger}
}

// probeOutput matches ffprobe JSON output structure
type probeOutput struct {
	Format struct {
		Duration string `json:"duration"`
		BitRate  string `json:"bit_rate"`
	} `json:"format"`
	Streams []struct {
		CodecType  string `json:"codec_type"`
		CodecName  string `json:"codec_name"`
		Width      int    `json:"width"`
		Height     int    `json:"height"`
		RFrameRate string `json:"r_frame_rate"`
		SampleRate string `json:"sample_rate"`
	} `json:"streams"`
}

func (f *RealFFmpeg) Probe(ctx context.Context, filePath string) (*ProbeResult, error) {
	if filePath == "" {
		return nil, fmt.Errorf("file path is required")
	}

	args := []string{
		"-v", "quiet",
		"-print_format", "json",
		"-show_format",
		"-show_streams",
		filePath,
	}

	cmd := exec.CommandContext(ctx, f.ffprobePath, args...)
	output, err := cmd.CombinedOutput()
	if err != nil {
		return nil, fmt.Errorf("ffprobe failed: %w", err)
	}

	var probe probeOutput
	if err := json.Unmarshal(output, &probe); err != nil {
		return nil, fmt.Errorf("failed to parse ffprobe output: %w", err)
	}

	result := &ProbeResult{}
	if dur, err := strconv.ParseFloat(probe.Format.Duration, 64); err == nil {
		result.Duration = dur
	}
	if br, err := strconv.ParseInt(probe.Format.BitRate, 10, 64); err == nil {
		result.Bitrate = br
	}

	for _, stream := range probe.Streams {
		switch stream.CodecType {
		case "video":
			result.Width = stream.Width
			result.Height = stream.Height
			result.Codec = stream.CodecName
			result.FrameRate = ParseFrameRate(stream.RFrameRate)
		case "audio":
			result.HasAudio = true
			result.AudioCodec = stream.CodecName
			if sr, err := strconv.Atoi(stream.SampleRate); err == nil {
				result.AudioSample = sr
			}
		}
	}

	return result, nil
}

// ParseFrameRate parses an ffprobe rational frame rate such as "30/1" or
// "30000/1001". Returns 0 for malformed input.
func ParseFrameRate(r string) float64 {
	parts := strings.SplitN(r, "/", 2)
	if len(parts) != 2 {
		if v, err := strconv.ParseFloat(r, 64); err == nil {
			return v
		}
		return 0
	}
	num, err1 := strconv.ParseFloat(parts[0], 64)
	den, err2 := strconv.ParseFloat(parts[1], 64)
	if err1 != nil || err2 != nil || den == 0 {
		return 0
	}
	return num / den
}

// DecodeFrame seeks the demuxer to offset and decodes a single frame via a
// PNG image pipe. Seeking is placed before -i so ffmpeg uses the fast
// keyframe seek then decodes forward to the exact position.
func (f *RealFFmpeg) DecodeFrame(ctx context.Context, filePath string, offset float64) (image.Image, error) {
	args := []string{
		"-hide_banner", "-loglevel", "error",
		"-ss", strconv.FormatFloat(offset, 'f', 4, 64),
		"-i", filePath,
		"-frames:v", "1",
		"-f", "image2pipe",
		"-vcodec", "png",
		"-",
	}

	cmd := exec.CommandContext(ctx, f.ffmpegPath, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("frame decode failed at %.3fs: %w: %s", offset, err, strings.TrimSpace(stderr.String()))
	}
	if stdout.Len() == 0 {
		return nil, fmt.Errorf("no frame decoded at %.3fs", offset)
	}

	img, err := png.Decode(&stdout)
	if err != nil {
		return nil, fmt.Errorf("failed to decode frame image: %w", err)
	}
	return img, nil
}

func (f *RealFFmpeg) Encode(ctx context.Context, inv *EncodeInvocation, onProgress func(float64)) error {
	args, err := BuildEncodeArgs(inv)
	if err != nil {
		return err
	}

	if f.logger != nil {
		f.logger.Debug("executing ffmpeg", "args", strings.Join(args, " "))
	}

	cmd := exec.CommandContext(ctx, f.ffmpegPath, args...)

	stderr, err := cmd.StderrPipe()
	if err != nil {
		return fmt.Errorf("failed to create stderr pipe: %w", err)
	}

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("failed to start ffmpeg: %w", err)
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		scanner := bufio.NewScanner(stderr)
		for scanner.Scan() {
			line := scanner.Text()
			if f.logger != nil {
				f.logger.Debug("ffmpeg", "line", line)
			}
			if onProgress != nil && inv.Duration > 0 {
				if t, ok := parseProgressTime(line); ok {
					pct := t / inv.Duration * 100
					if pct > 100 {
						pct = 100
					}
					onProgress(pct)
				}
			}
		}
	}()

	<-done
	if err := cmd.Wait(); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("ffmpeg encode failed: %w", err)
	}
	return nil
}

// BuildEncodeArgs turns an invocation into the ffmpeg argument list. Split
// out so the command construction is testable without running ffmpeg.
func BuildEncodeArgs(inv *EncodeInvocation) ([]string, error) {
	if len(inv.Inputs) == 0 {
		return nil, fmt.Errorf("no input files")
	}
	if inv.FilterComplex == "" {
		return nil, fmt.Errorf("filter graph is empty")
	}
	if inv.VideoLabel == "" {
		return nil, fmt.Errorf("no video output label")
	}
	if inv.OutputPath == "" {
		return nil, fmt.Errorf("output path is required")
	}

	args := []string{"-y", "-hide_banner", "-loglevel", "info", "-progress", "pipe:2"}
	for _, in := range inv.Inputs {
		args = append(args, "-i", in)
	}
	args = append(args, "-filter_complex", inv.FilterComplex)
	args = append(args, "-map", "["+inv.VideoLabel+"]")
	if inv.AudioLabel != "" {
		args = append(args, "-map", "["+inv.AudioLabel+"]")
	}

	videoCodec := inv.VideoCodec
	if videoCodec == "" {
		videoCodec = DefaultVideoCodec
	}
	preset := inv.Preset
	if preset == "" {
		preset = DefaultPreset
	}
	crf := inv.CRF
	if crf == 0 {
		crf = DefaultCRF
	}
	pixFmt := inv.PixelFormat
	if pixFmt == "" {
		pixFmt = DefaultPixelFormat
	}

	args = append(args,
		"-c:v", videoCodec,
		"-preset", preset,
		"-crf", strconv.Itoa(crf),
		"-pix_fmt", pixFmt,
	)
	if inv.FPS > 0 {
		args = append(args, "-r", strconv.Itoa(inv.FPS))
	}
	if inv.Duration > 0 {
		args = append(args, "-t", strconv.FormatFloat(inv.Duration, 'f', 4, 64))
	}

	if inv.AudioLabel != "" {
		audioCodec := inv.AudioCodec
		if audioCodec == "" {
			audioCodec = DefaultAudioCodec
		}
		bitrate := inv.AudioBitrate
		if bitrate == "" {
			bitrate = DefaultAudioBitrate
		}
		args = append(args, "-c:a", audioCodec, "-b:a", bitrate)
	}

	args = append(args, inv.OutputPath)
	return args, nil
}

// parseProgressTime extracts the out_time from an ffmpeg -progress line
// (out_time_ms=1234567 or out_time=00:00:01.234567).
func parseProgressTime(line string) (float64, bool) {
	if v, ok := strings.CutPrefix(line, "out_time_ms="); ok {
		us, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64)
		if err != nil || us < 0 {
			return 0, false
		}
		return float64(us) / 1e6, true
	}
	if v, ok := strings.CutPrefix(line, "out_time="); ok {
		return parseClockTime(strings.TrimSpace(v))
	}
	return 0, false
}

func parseClockTime(s string) (float64, bool) {
	parts := strings.Split(s, ":")
	if len(parts) != 3 {
		return 0, false
	}
	h, err1 := strconv.ParseFloat(parts[0], 64)
	m, err2 := strconv.ParseFloat(parts[1], 64)
	sec, err3 := strconv.ParseFloat(parts[2], 64)
	if err1 != nil || err2 != nil || err3 != nil {
		return 0, false
	}
	return h*3600 + m*60 + sec, true
}
