package timeline

import "sort"

// ActiveVisualClips returns the video/image clips whose half-open interval
// [startTime, startTime+duration) contains t, ordered by ascending track
// position so later tracks paint over earlier ones. Clips on the same
// track are ordered by insertion sequence: when a single topmost clip is
// taken, the most recently added one wins. Clips whose asset was removed
// or failed to decode contribute nothing.
func (s *Snapshot) ActiveVisualClips(t float64) []Clip {
	var out []Clip
	for _, c := range s.Clips {
		if c.Kind != KindVideo && c.Kind != KindImage {
			continue
		}
		if t < c.StartTime || t >= c.End() {
			continue
		}
		asset := s.Asset(c.AssetID)
		if asset == nil || asset.Failed {
			continue
		}
		if s.trackMuted(c.TrackID) {
			continue
		}
		out = append(out, c)
	}
	sort.SliceStable(out, func(i, j int) bool {
		pi, pj := s.TrackPosition(out[i].TrackID), s.TrackPosition(out[j].TrackID)
		if pi != pj {
			return pi < pj
		}
		return out[i].Seq < out[j].Seq
	})
	return out
}

// TopVisualClip returns the single clip to draw in single-surface
// composite mode, or false with no active visual clip.
func (s *Snapshot) TopVisualClip(t float64) (Clip, bool) {
	clips := s.ActiveVisualClips(t)
	if len(clips) == 0 {
		return Clip{}, false
	}
	return clips[len(clips)-1], true
}

// ActiveAudioClips returns the audio clips active at t. All of them play
// simultaneously; order carries no meaning.
func (s *Snapshot) ActiveAudioClips(t float64) []Clip {
	var out []Clip
	for _, c := range s.Clips {
		if c.Kind != KindAudio {
			continue
		}
		if t < c.StartTime || t >= c.End() {
			continue
		}
		asset := s.Asset(c.AssetID)
		if asset == nil || asset.Failed {
			continue
		}
		if s.trackMuted(c.TrackID) {
			continue
		}
		out = append(out, c)
	}
	return out
}

func (s *Snapshot) trackMuted(trackID string) bool {
	for _, tr := range s.Tracks {
		if tr.ID == trackID {
			return tr.Muted
		}
	}
	return false
}
