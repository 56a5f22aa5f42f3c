package playback

import (
	"context"
	"image"
	"log/slog"
	"sync"
	"time"

	"github.com/clipforge/clipforge-engine/internal/frames"
	"github.com/clipforge/clipforge-engine/internal/timeline"
)

// DefaultTickInterval approximates a 60fps host frame callback.
const DefaultTickInterval = time.Second / 60

// Scheduler runs the playback loop. It watches the timeline's transport
// state, and while playing it advances the playhead by wall-clock delta
// every tick, renders the current frame and syncs audio. Pausing, toggling
// and scrubbing all happen through the timeline; the scheduler only reacts.
type Scheduler struct {
	tl     *timeline.Timeline
	lib    *frames.Library
	comp   *Compositor
	audio  *AudioSyncer
	logger *slog.Logger

	now          func() time.Time
	tickInterval time.Duration

	mu      sync.Mutex
	playing bool
	last    time.Time
	surface *image.RGBA
}

func NewScheduler(tl *timeline.Timeline, lib *frames.Library, audio *AudioSyncer, logger *slog.Logger) *Scheduler {
	p := tl.Project()
	comp := NewCompositor(p.Width, p.Height)
	return &Scheduler{
		tl:           tl,
		lib:          lib,
		comp:         comp,
		audio:        audio,
		logger:       logger,
		now:          time.Now,
		tickInterval: DefaultTickInterval,
		surface:      comp.NewSurface(),
	}
}

// Run blocks until ctx is cancelled, processing timeline events and tick
// pulses. Intended to be launched as a goroutine from main.
func (s *Scheduler) Run(ctx context.Context) {
	events, unsubscribe := s.tl.Subscribe()
	defer unsubscribe()

	ticker := time.NewTicker(s.tickInterval)
	defer ticker.Stop()

	s.syncTransport()
	for {
		select {
		case <-ctx.Done():
			s.haltPlayback()
			return
		case ev := <-events:
			if ev.Type == timeline.EventTransport || ev.Type == timeline.EventTimeline {
				s.syncTransport()
			}
		case now := <-ticker.C:
			s.tick(now)
		}
	}
}

// syncTransport reconciles the loop state with the timeline's transport
// flag. Starting records the wall-clock reference so the first tick does
// not jump by however long the transport was stopped.
func (s *Scheduler) syncTransport() {
	wants := s.tl.IsPlaying()

	s.mu.Lock()
	defer s.mu.Unlock()
	if wants == s.playing {
		return
	}
	s.playing = wants
	if wants {
		s.last = s.now()
		s.logger.Debug("playback started", slog.Float64("current_time", s.tl.CurrentTime()))
	} else {
		s.audio.PauseAll()
		s.logger.Debug("playback paused", slog.Float64("current_time", s.tl.CurrentTime()))
	}
}

// tick advances the playhead by the elapsed wall-clock time. Reaching the
// end of the last clip clamps to the total duration and stops playback.
func (s *Scheduler) tick(now time.Time) {
	s.mu.Lock()
	if !s.playing {
		s.mu.Unlock()
		return
	}
	delta := now.Sub(s.last).Seconds()
	s.last = now
	s.mu.Unlock()

	if delta <= 0 {
		return
	}

	next := s.tl.CurrentTime() + delta
	total := s.tl.TotalDuration()
	if next >= total {
		s.tl.SetCurrentTime(total)
		s.tl.SetPlaying(false)
		s.mu.Lock()
		s.playing = false
		s.mu.Unlock()
		s.audio.PauseAll()
		s.renderAt(total)
		return
	}

	s.tl.SetCurrentTime(next)
	s.renderAt(next)
	snap := s.tl.Snapshot()
	s.audio.Sync(&snap, next)
}

func (s *Scheduler) renderAt(t float64) {
	snap := s.tl.Snapshot()
	s.mu.Lock()
	defer s.mu.Unlock()
	s.comp.Render(s.surface, &snap, s.lib, t)
}

// RenderCurrent composites the frame at the current playhead position and
// returns a copy, so callers can encode it without racing the loop.
func (s *Scheduler) RenderCurrent() *image.RGBA {
	s.renderAt(s.tl.CurrentTime())
	s.mu.Lock()
	defer s.mu.Unlock()
	out := image.NewRGBA(s.surface.Bounds())
	copy(out.Pix, s.surface.Pix)
	return out
}

func (s *Scheduler) haltPlayback() {
	s.mu.Lock()
	wasPlaying := s.playing
	s.playing = false
	s.mu.Unlock()
	if wasPlaying {
		s.audio.PauseAll()
	}
}
