package export

import (
	"errors"
	"fmt"
	"math"

	"github.com/clipforge/clipforge-engine/internal/media"
	"github.com/clipforge/clipforge-engine/internal/timeline"
)

// ErrNoVideoClips is returned when the timeline has nothing to render on
// the visual lane. Export refuses to run rather than produce an empty file.
var ErrNoVideoClips = errors.New("timeline has no video clips to render")

// Options are the output settings for one render.
type Options struct {
	Width         int
	Height        int
	FPS           int
	TotalDuration float64
}

// Preset is a named output profile.
type Preset struct {
	Name   string `json:"name"`
	Width  int    `json:"width"`
	Height int    `json:"height"`
	FPS    int    `json:"fps"`
}

var presets = []Preset{
	{Name: "youtube", Width: 1920, Height: 1080, FPS: 24},
	{Name: "tiktok", Width: 1080, Height: 1920, FPS: 24},
	{Name: "instagram", Width: 1080, Height: 1080, FPS: 24},
}

func Presets() []Preset {
	out := make([]Preset, len(presets))
	copy(out, presets)
	return out
}

func PresetByName(name string) (Preset, bool) {
	for _, p := range presets {
		if p.Name == name {
			return p, true
		}
	}
	return Preset{}, false
}

// BuildInvocation turns a snapshot into a complete encoder manifest.
// assetPaths maps asset ids to staged files; clips whose asset was not
// staged contribute nothing, matching how a dangling reference behaves in
// preview.
func BuildInvocation(snap *timeline.Snapshot, assetPaths map[string]string, opts Options, outputPath string) (*media.EncodeInvocation, error) {
	var videoClips, audioClips []timeline.Clip
	for _, c := range snap.Clips {
		if _, ok := assetPaths[c.AssetID]; !ok {
			continue
		}
		switch c.Kind {
		case timeline.KindVideo, timeline.KindImage:
			videoClips = append(videoClips, c)
		case timeline.KindAudio:
			audioClips = append(audioClips, c)
		}
	}
	if len(videoClips) == 0 {
		return nil, ErrNoVideoClips
	}

	// Each referenced asset becomes one input, in first-use order.
	inputIndex := make(map[string]int)
	var inputs []string
	for _, c := range snap.Clips {
		if _, seen := inputIndex[c.AssetID]; seen {
			continue
		}
		path, ok := assetPaths[c.AssetID]
		if !ok {
			continue
		}
		inputIndex[c.AssetID] = len(inputs)
		inputs = append(inputs, path)
	}

	var g Graph

	// ffmpeg only lets a stream feed one chain; a shared asset needs a
	// split so every clip gets its own leg.
	streamUse := make(map[string]int)
	for _, c := range videoClips {
		streamUse[fmt.Sprintf("%d:v", inputIndex[c.AssetID])]++
	}
	for _, c := range audioClips {
		streamUse[fmt.Sprintf("%d:a", inputIndex[c.AssetID])]++
	}
	feed := newStreamFeed(&g, streamUse)

	videoLabels := make([]string, 0, len(videoClips))
	for i, clip := range videoClips {
		label := fmt.Sprintf("v%d", i)
		g.Add(Chain{
			Inputs:  []string{feed.next(inputIndex[clip.AssetID], false)},
			Steps:   videoClipSteps(clip, opts),
			Outputs: []string{label},
		})
		videoLabels = append(videoLabels, label)
	}

	if len(videoLabels) > 1 {
		g.Add(Chain{
			Inputs:  videoLabels,
			Steps:   []string{fmt.Sprintf("concat=n=%d:v=1:a=0", len(videoLabels))},
			Outputs: []string{"vout"},
		})
	} else {
		g.Add(Chain{
			Inputs:  videoLabels,
			Steps:   []string{"copy"},
			Outputs: []string{"vout"},
		})
	}
	g.Add(Chain{
		Inputs:  []string{"vout"},
		Steps:   []string{"trim=duration=" + ffNum(opts.TotalDuration)},
		Outputs: []string{"vfinal"},
	})

	audioLabels := make([]string, 0, len(audioClips))
	for i, clip := range audioClips {
		label := fmt.Sprintf("a%d", i)
		g.Add(Chain{
			Inputs:  []string{feed.next(inputIndex[clip.AssetID], true)},
			Steps:   audioClipSteps(clip),
			Outputs: []string{label},
		})
		audioLabels = append(audioLabels, label)
	}

	audioLabel := ""
	switch {
	case len(audioLabels) > 1:
		g.Add(Chain{
			Inputs:  audioLabels,
			Steps:   []string{fmt.Sprintf("amix=inputs=%d:duration=longest:dropout_transition=0", len(audioLabels))},
			Outputs: []string{"aout"},
		})
		audioLabel = "aout"
	case len(audioLabels) == 1:
		g.Add(Chain{
			Inputs:  audioLabels,
			Steps:   []string{"apad=whole_dur=" + ffNum(opts.TotalDuration)},
			Outputs: []string{"aout"},
		})
		audioLabel = "aout"
	}

	finals := []string{"vfinal"}
	if audioLabel != "" {
		finals = append(finals, audioLabel)
	}
	if err := g.Validate(finals...); err != nil {
		return nil, fmt.Errorf("filter graph: %w", err)
	}

	inv := &media.EncodeInvocation{
		Inputs:        inputs,
		FilterComplex: g.String(),
		VideoLabel:    "vfinal",
		AudioLabel:    audioLabel,
		VideoCodec:    media.DefaultVideoCodec,
		Preset:        media.DefaultPreset,
		CRF:           media.DefaultCRF,
		PixelFormat:   media.DefaultPixelFormat,
		FPS:           opts.FPS,
		AudioCodec:    media.DefaultAudioCodec,
		AudioBitrate:  media.DefaultAudioBitrate,
		Duration:      opts.TotalDuration,
		OutputPath:    outputPath,
	}
	return inv, nil
}

// streamFeed hands out one input label per consumer of a source stream.
// A stream consumed once is wired in directly; a stream consumed more
// than once goes through a split chain and each consumer takes one leg.
type streamFeed struct {
	g     *Graph
	use   map[string]int
	outs  map[string][]string
	taken map[string]int
}

func newStreamFeed(g *Graph, use map[string]int) *streamFeed {
	return &streamFeed{
		g:     g,
		use:   use,
		outs:  make(map[string][]string),
		taken: make(map[string]int),
	}
}

func (f *streamFeed) next(index int, audio bool) string {
	suffix, filter := "v", "split"
	if audio {
		suffix, filter = "a", "asplit"
	}
	stream := fmt.Sprintf("%d:%s", index, suffix)
	n := f.use[stream]
	if n < 2 {
		return stream
	}
	outs, ok := f.outs[stream]
	if !ok {
		outs = make([]string, n)
		for j := range outs {
			outs[j] = fmt.Sprintf("s%d%s%d", index, suffix, j)
		}
		f.g.Add(Chain{
			Inputs:  []string{stream},
			Steps:   []string{fmt.Sprintf("%s=%d", filter, n)},
			Outputs: outs,
		})
		f.outs[stream] = outs
	}
	leg := f.taken[stream]
	f.taken[stream]++
	return outs[leg]
}

// videoClipSteps builds one clip's processing run: source trim, optional
// reversal, conform to output fps and resolution, user transform, then
// black lead-in padding so concat lands the clip at its timeline position.
func videoClipSteps(clip timeline.Clip, opts Options) []string {
	steps := []string{
		fmt.Sprintf("trim=start=%s:duration=%s", ffNum(clip.Offset), ffNum(clip.Duration)),
		"setpts=PTS-STARTPTS",
	}
	if clip.Reversed {
		steps = append(steps, "reverse")
	}
	steps = append(steps,
		fmt.Sprintf("fps=%d", opts.FPS),
		fmt.Sprintf("scale=%d:%d:force_original_aspect_ratio=decrease", opts.Width, opts.Height),
		fmt.Sprintf("pad=%d:%d:(ow-iw)/2:(oh-ih)/2:black", opts.Width, opts.Height),
	)

	tf := clip.Transform
	if tf.Scale != 1 {
		w := int(math.Round(float64(opts.Width) * tf.Scale))
		h := int(math.Round(float64(opts.Height) * tf.Scale))
		steps = append(steps,
			fmt.Sprintf("scale=%d:%d", w, h),
			fmt.Sprintf("pad=%d:%d:(ow-iw)/2:(oh-ih)/2:black", opts.Width, opts.Height),
		)
	}
	if tf.Rotation != 0 {
		steps = append(steps, fmt.Sprintf("rotate=%s:c=black", ffNum(tf.Rotation*math.Pi/180)))
	}
	if tf.Opacity < 1 {
		steps = append(steps, "format=rgba", "colorchannelmixer=aa="+ffNum(tf.Opacity))
	}
	if clip.StartTime > 0 {
		steps = append(steps, fmt.Sprintf("tpad=start_duration=%s:color=black", ffNum(clip.StartTime)))
	}
	return steps
}

func audioClipSteps(clip timeline.Clip) []string {
	steps := []string{
		fmt.Sprintf("atrim=start=%s:duration=%s", ffNum(clip.Offset), ffNum(clip.Duration)),
		"asetpts=PTS-STARTPTS",
	}
	if clip.StartTime > 0 {
		ms := int(math.Round(clip.StartTime * 1000))
		steps = append(steps, fmt.Sprintf("adelay=%d|%d", ms, ms))
	}
	return steps
}
