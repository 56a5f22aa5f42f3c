package timeline

import "testing"

func TestActiveVisualClips_HalfOpenInterval(t *testing.T) {
	tl := newTestTimeline()
	asset := addVideoAsset(tl, 3)
	track := videoTrack(t, tl)
	tl.AddClip(asset.ID, track.ID, 2) // [2, 5)

	s := tl.Snapshot()
	cases := []struct {
		time   float64
		active bool
	}{
		{1.999, false},
		{2.0, true},
		{3.5, true},
		{4.999, true},
		{5.0, false},
		{6.0, false},
	}
	for _, tc := range cases {
		got := len(s.ActiveVisualClips(tc.time)) == 1
		if got != tc.active {
			t.Errorf("ActiveVisualClips(%v) active = %v, want %v", tc.time, got, tc.active)
		}
	}
}

func TestActiveVisualClips_TrackOrderIsPaintOrder(t *testing.T) {
	tl := newTestTimeline()
	asset := addVideoAsset(tl, 10)
	lower := videoTrack(t, tl)
	upper := tl.AddTrack(KindVideo)

	onLower, _ := tl.AddClip(asset.ID, lower.ID, 0)
	onUpper, _ := tl.AddClip(asset.ID, upper.ID, 0)

	s := tl.Snapshot()
	clips := s.ActiveVisualClips(1)
	if len(clips) != 2 {
		t.Fatalf("active count = %d, want 2", len(clips))
	}
	if clips[0].ID != onLower.ID || clips[1].ID != onUpper.ID {
		t.Errorf("paint order = %s,%s; want lower then upper", clips[0].ID, clips[1].ID)
	}

	top, ok := s.TopVisualClip(1)
	if !ok || top.ID != onUpper.ID {
		t.Errorf("TopVisualClip = %v, want clip on later track", top.ID)
	}
}

func TestActiveVisualClips_SameTrackOverlapTieBreak(t *testing.T) {
	tl := newTestTimeline()
	asset := addVideoAsset(tl, 10)
	track := videoTrack(t, tl)

	first, _ := tl.AddClip(asset.ID, track.ID, 0)
	second, _ := tl.AddClip(asset.ID, track.ID, 0)

	s := tl.Snapshot()
	clips := s.ActiveVisualClips(1)
	if len(clips) != 2 {
		t.Fatalf("active count = %d, want 2", len(clips))
	}
	if clips[0].ID != first.ID || clips[1].ID != second.ID {
		t.Error("same-track overlap must order by insertion sequence")
	}
	// The most recently added clip wins when one surface is composited.
	top, _ := s.TopVisualClip(1)
	if top.ID != second.ID {
		t.Errorf("TopVisualClip = %s, want most recently added %s", top.ID, second.ID)
	}
}

func TestActiveAudioClips(t *testing.T) {
	tl := newTestTimeline()
	video := addVideoAsset(tl, 10)
	song := tl.AddAsset(Asset{Name: "song.mp3", Kind: KindAudio, Duration: 10})
	vTrack := videoTrack(t, tl)
	aTrack := audioTrack(t, tl)

	tl.AddClip(video.ID, vTrack.ID, 0)
	tl.AddClip(song.ID, aTrack.ID, 2) // [2, 12)

	s := tl.Snapshot()
	if got := s.ActiveAudioClips(1); len(got) != 0 {
		t.Errorf("ActiveAudioClips(1) = %d clips, want 0", len(got))
	}
	got := s.ActiveAudioClips(3)
	if len(got) != 1 || got[0].Kind != KindAudio {
		t.Fatalf("ActiveAudioClips(3) = %+v, want the audio clip", got)
	}
}

func TestActiveClips_MutedTrackExcluded(t *testing.T) {
	tl := newTestTimeline()
	asset := addVideoAsset(tl, 10)
	track := videoTrack(t, tl)
	tl.AddClip(asset.ID, track.ID, 0)
	tl.SetTrackMuted(track.ID, true)

	snap := tl.Snapshot()
	if got := snap.ActiveVisualClips(1); len(got) != 0 {
		t.Errorf("muted track clips must not resolve, got %d", len(got))
	}
}

func TestTopVisualClip_NoneActive(t *testing.T) {
	tl := newTestTimeline()
	snap := tl.Snapshot()
	if _, ok := snap.TopVisualClip(0); ok {
		t.Error("TopVisualClip on empty timeline must report false")
	}
}
