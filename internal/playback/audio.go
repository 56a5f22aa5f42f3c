package playback

import (
	"log/slog"
	"sync"

	"github.com/clipforge/clipforge-engine/internal/logging"
	"github.com/clipforge/clipforge-engine/internal/timeline"
)

// AudioElement is a host-provided audio player for one media source. The
// engine never streams samples itself; it tells elements when to seek,
// play and pause.
type AudioElement interface {
	Playing() bool
	Play() error
	Pause()
	Seek(seconds float64) error
}

// AudioProvider opens an element for an asset. Returning nil means the
// asset has no playable audio and is skipped.
type AudioProvider interface {
	Element(assetID string) AudioElement
}

// AudioSyncer keeps one element per active audio clip aligned with the
// playhead. Elements free-run between syncs; a stopped element is seeked
// to the clip-local time and started, a running one is left alone so that
// minor drift never causes an audible restart.
type AudioSyncer struct {
	provider AudioProvider
	logger   *slog.Logger

	mu       sync.Mutex
	elements map[string]AudioElement
}

func NewAudioSyncer(provider AudioProvider, logger *slog.Logger) *AudioSyncer {
	return &AudioSyncer{
		provider: provider,
		logger:   logging.WithComponent(logger, "audio"),
		elements: make(map[string]AudioElement),
	}
}

// Sync starts elements for clips whose interval covers t and pauses
// elements whose clips fell out of range.
func (s *AudioSyncer) Sync(snap *timeline.Snapshot, t float64) {
	if s.provider == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	active := make(map[string]timeline.Clip)
	for _, clip := range snap.ActiveAudioClips(t) {
		active[clip.ID] = clip
	}

	for clipID, el := range s.elements {
		if _, ok := active[clipID]; !ok {
			el.Pause()
			delete(s.elements, clipID)
		}
	}

	for clipID, clip := range active {
		el, ok := s.elements[clipID]
		if !ok {
			el = s.provider.Element(clip.AssetID)
			if el == nil {
				continue
			}
			s.elements[clipID] = el
		}
		if el.Playing() {
			continue
		}
		clipLocal := t - clip.StartTime + clip.Offset
		if err := el.Seek(clipLocal); err != nil {
			s.logger.Warn("audio seek failed", "clip_id", clipID, "asset_id", clip.AssetID, "error", err)
			continue
		}
		if err := el.Play(); err != nil {
			s.logger.Warn("audio play failed", "clip_id", clipID, "asset_id", clip.AssetID, "error", err)
		}
	}
}

// PauseAll stops every tracked element. Elements stay registered so a
// resume re-syncs them instead of reopening the source.
func (s *AudioSyncer) PauseAll() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, el := range s.elements {
		el.Pause()
	}
}
