package playback

import (
	"math"
	"testing"
	"time"

	"github.com/clipforge/clipforge-engine/internal/frames"
	"github.com/clipforge/clipforge-engine/internal/logging"
	"github.com/clipforge/clipforge-engine/internal/timeline"
)

func newTestScheduler(t *testing.T) (*Scheduler, *timeline.Timeline, *frames.Library) {
	t.Helper()
	tl := timeline.New(timeline.Project{Width: 100, Height: 100, FPS: 24})
	lib := frames.NewLibrary()
	audio := NewAudioSyncer(nil, logging.NewLogger("error"))
	s := NewScheduler(tl, lib, audio, logging.NewLogger("error"))
	return s, tl, lib
}

func addTimedClip(t *testing.T, tl *timeline.Timeline, duration float64) timeline.Clip {
	t.Helper()
	asset := tl.AddAsset(timeline.Asset{Name: "clip.mp4", Kind: timeline.KindVideo, Duration: duration, FrameRate: 30})
	var trackID string
	for _, tr := range tl.Snapshot().Tracks {
		if tr.Kind == timeline.KindVideo {
			trackID = tr.ID
			break
		}
	}
	clip, ok := tl.AddClip(asset.ID, trackID, 0)
	if !ok {
		t.Fatal("add clip")
	}
	return clip
}

func TestScheduler_TickAdvancesByWallClock(t *testing.T) {
	s, tl, _ := newTestScheduler(t)
	addTimedClip(t, tl, 10)

	base := time.Now()
	s.now = func() time.Time { return base }
	tl.SetPlaying(true)
	s.syncTransport()

	s.tick(base.Add(100 * time.Millisecond))
	if got := tl.CurrentTime(); math.Abs(got-0.1) > 1e-9 {
		t.Errorf("CurrentTime = %v, want 0.1", got)
	}

	s.tick(base.Add(350 * time.Millisecond))
	if got := tl.CurrentTime(); math.Abs(got-0.35) > 1e-9 {
		t.Errorf("CurrentTime = %v, want 0.35", got)
	}
}

func TestScheduler_ClampsAndStopsAtEnd(t *testing.T) {
	s, tl, _ := newTestScheduler(t)
	addTimedClip(t, tl, 2)

	base := time.Now()
	s.now = func() time.Time { return base }
	tl.SetCurrentTime(1.9)
	tl.SetPlaying(true)
	s.syncTransport()

	s.tick(base.Add(5 * time.Second))

	if got := tl.CurrentTime(); got != 2 {
		t.Errorf("CurrentTime = %v, want clamped to 2", got)
	}
	if tl.IsPlaying() {
		t.Error("transport still playing after reaching the end")
	}
	s.mu.Lock()
	playing := s.playing
	s.mu.Unlock()
	if playing {
		t.Error("loop still marked playing after reaching the end")
	}
}

func TestScheduler_ScrubbingWhileStoppedDoesNotAdvance(t *testing.T) {
	s, tl, _ := newTestScheduler(t)
	addTimedClip(t, tl, 10)

	base := time.Now()
	s.now = func() time.Time { return base }
	tl.SetCurrentTime(3)
	s.syncTransport()

	for i := 1; i <= 5; i++ {
		s.tick(base.Add(time.Duration(i) * time.Second))
	}
	if got := tl.CurrentTime(); got != 3 {
		t.Errorf("CurrentTime = %v, want 3 after ticks while stopped", got)
	}
}

func TestScheduler_PauseHoldsPosition(t *testing.T) {
	s, tl, _ := newTestScheduler(t)
	addTimedClip(t, tl, 10)

	base := time.Now()
	s.now = func() time.Time { return base }
	tl.SetPlaying(true)
	s.syncTransport()

	s.tick(base.Add(500 * time.Millisecond))
	tl.SetPlaying(false)
	s.syncTransport()

	s.tick(base.Add(3 * time.Second))
	if got := tl.CurrentTime(); math.Abs(got-0.5) > 1e-9 {
		t.Errorf("CurrentTime = %v, want held at 0.5", got)
	}
}

func TestScheduler_ResumeDoesNotJump(t *testing.T) {
	s, tl, _ := newTestScheduler(t)
	addTimedClip(t, tl, 10)

	base := time.Now()
	s.now = func() time.Time { return base }
	tl.SetPlaying(true)
	s.syncTransport()
	s.tick(base.Add(200 * time.Millisecond))

	tl.SetPlaying(false)
	s.syncTransport()

	// A long pause must not be counted as elapsed playback time.
	resume := base.Add(time.Minute)
	s.now = func() time.Time { return resume }
	tl.SetPlaying(true)
	s.syncTransport()
	s.tick(resume.Add(100 * time.Millisecond))

	if got := tl.CurrentTime(); math.Abs(got-0.3) > 1e-9 {
		t.Errorf("CurrentTime = %v, want 0.3 after resume", got)
	}
}

func TestScheduler_RenderCurrentReturnsProjectSizedFrame(t *testing.T) {
	s, tl, _ := newTestScheduler(t)
	addTimedClip(t, tl, 10)

	img := s.RenderCurrent()
	if img.Bounds().Dx() != 100 || img.Bounds().Dy() != 100 {
		t.Errorf("surface bounds = %v, want 100x100", img.Bounds())
	}
}
