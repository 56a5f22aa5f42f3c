package timeline

import (
	"fmt"
	"sort"
	"sync"
)

// Event types published on each committed mutation.
const (
	EventTimeline   = "timeline"   // tracks/clips changed
	EventAssets     = "assets"     // asset registry or extraction state changed
	EventTransport  = "transport"  // playhead or play state changed
	EventSelection  = "selection"  // selection changed
	EventProjectSet = "project"    // output settings changed
)

type Event struct {
	Type    string `json:"type"`
	Version uint64 `json:"version"`
}

// Timeline is the owning aggregate. All mutation is synchronized here;
// readers take snapshots, so background extraction and the playback loop
// never observe torn state.
type Timeline struct {
	mu       sync.RWMutex
	assets   []Asset
	tracks   []Track
	clips    []Clip
	current  float64
	playing  bool
	selected map[string]struct{}
	project  Project
	version  uint64
	nextSeq  uint64

	subMu sync.Mutex
	subs  map[int]chan Event
	subID int
}

// New creates a timeline with the default track layout: one video track
// and one audio track.
func New(project Project) *Timeline {
	t := &Timeline{
		selected: make(map[string]struct{}),
		project:  project,
		subs:     make(map[int]chan Event),
	}
	t.tracks = []Track{
		{ID: NewID(), Name: "Video Track 1", Kind: KindVideo},
		{ID: NewID(), Name: "Audio Track 1", Kind: KindAudio},
	}
	return t
}

// Subscribe registers an observer. Events are dropped rather than block a
// mutation; observers that care re-snapshot on the next event.
func (t *Timeline) Subscribe() (<-chan Event, func()) {
	t.subMu.Lock()
	defer t.subMu.Unlock()
	id := t.subID
	t.subID++
	ch := make(chan Event, 16)
	t.subs[id] = ch
	return ch, func() {
		t.subMu.Lock()
		defer t.subMu.Unlock()
		if c, ok := t.subs[id]; ok {
			delete(t.subs, id)
			close(c)
		}
	}
}

func (t *Timeline) publish(eventType string, version uint64) {
	t.subMu.Lock()
	defer t.subMu.Unlock()
	for _, ch := range t.subs {
		select {
		case ch <- Event{Type: eventType, Version: version}:
		default:
		}
	}
}

// commit bumps the version under the held write lock and publishes after
// releasing it.
func (t *Timeline) commit(eventType string) {
	t.version++
	v := t.version
	t.mu.Unlock()
	t.publish(eventType, v)
}

// Snapshot returns a deep copy of the aggregate.
func (t *Timeline) Snapshot() Snapshot {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.snapshotLocked()
}

func (t *Timeline) snapshotLocked() Snapshot {
	s := Snapshot{
		Version:     t.version,
		Assets:      append([]Asset(nil), t.assets...),
		Tracks:      append([]Track(nil), t.tracks...),
		Clips:       append([]Clip(nil), t.clips...),
		CurrentTime: t.current,
		Playing:     t.playing,
		Project:     t.project,
	}
	for id := range t.selected {
		s.Selected = append(s.Selected, id)
	}
	sort.Strings(s.Selected)
	return s
}

// Restore replaces the aggregate with previously persisted state.
func (t *Timeline) Restore(s Snapshot) {
	t.mu.Lock()
	t.assets = append([]Asset(nil), s.Assets...)
	t.tracks = append([]Track(nil), s.Tracks...)
	t.clips = append([]Clip(nil), s.Clips...)
	t.current = s.CurrentTime
	t.playing = false
	t.selected = make(map[string]struct{})
	if s.Project.Width > 0 && s.Project.Height > 0 {
		t.project = s.Project
	}
	for _, c := range t.clips {
		if c.Seq >= t.nextSeq {
			t.nextSeq = c.Seq + 1
		}
	}
	t.commit(EventTimeline)
}

// TotalDuration is derived from the clips; 0 with none.
func (t *Timeline) TotalDuration() float64 {
	t.mu.RLock()
	defer t.mu.RUnlock()
	var max float64
	for _, c := range t.clips {
		if end := c.End(); end > max {
			max = end
		}
	}
	return max
}

func (t *Timeline) CurrentTime() float64 {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.current
}

func (t *Timeline) IsPlaying() bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.playing
}

func (t *Timeline) Project() Project {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.project
}

func (t *Timeline) SetProject(p Project) {
	if p.Width <= 0 || p.Height <= 0 || p.FPS <= 0 {
		return
	}
	t.mu.Lock()
	t.project = p
	t.commit(EventProjectSet)
}

// AddAsset registers an imported asset. An empty id is assigned one.
func (t *Timeline) AddAsset(a Asset) Asset {
	if a.ID == "" {
		a.ID = NewID()
	}
	if a.Kind == KindImage && a.Duration == 0 {
		a.Duration = DefaultImageDuration
	}
	t.mu.Lock()
	t.assets = append(t.assets, a)
	t.commit(EventAssets)
	return a
}

// RemoveAsset drops the asset from the registry. Clips referencing it are
// left in place and resolve to no contribution.
func (t *Timeline) RemoveAsset(id string) bool {
	t.mu.Lock()
	for i, a := range t.assets {
		if a.ID == id {
			t.assets = append(t.assets[:i], t.assets[i+1:]...)
			t.commit(EventAssets)
			return true
		}
	}
	t.mu.Unlock()
	return false
}

func (t *Timeline) GetAsset(id string) (Asset, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	for _, a := range t.assets {
		if a.ID == id {
			return a, true
		}
	}
	return Asset{}, false
}

// SetAssetExtraction records extraction progress. Progress is clamped so
// it never reaches 100 before the final frame lands.
func (t *Timeline) SetAssetExtraction(id string, decodedFrames int, progress float64) {
	t.mu.Lock()
	for i := range t.assets {
		if t.assets[i].ID != id {
			continue
		}
		if decodedFrames < t.assets[i].DecodedFrames {
			decodedFrames = t.assets[i].DecodedFrames
		}
		t.assets[i].DecodedFrames = decodedFrames
		if progress > 100 {
			progress = 100
		}
		if progress >= 100 && decodedFrames < t.assets[i].TotalFrames {
			progress = 99
		}
		if progress > t.assets[i].ProcessingProgress {
			t.assets[i].ProcessingProgress = progress
		}
		t.assets[i].Processing = true
		t.commit(EventAssets)
		return
	}
	t.mu.Unlock()
}

func (t *Timeline) CompleteAssetExtraction(id string) {
	t.mu.Lock()
	for i := range t.assets {
		if t.assets[i].ID != id {
			continue
		}
		t.assets[i].Processing = false
		t.assets[i].ProcessingProgress = 100
		if t.assets[i].TotalFrames > 0 {
			t.assets[i].DecodedFrames = t.assets[i].TotalFrames
		}
		t.commit(EventAssets)
		return
	}
	t.mu.Unlock()
}

// ResetAssetExtraction returns an asset to the not-yet-extracted state so
// a fresh extraction reports progress from zero. Used when a restored
// project re-extracts its media after a restart.
func (t *Timeline) ResetAssetExtraction(id string) {
	t.mu.Lock()
	for i := range t.assets {
		if t.assets[i].ID != id {
			continue
		}
		t.assets[i].Processing = true
		t.assets[i].ProcessingProgress = 0
		t.assets[i].DecodedFrames = 0
		t.assets[i].Failed = false
		t.commit(EventAssets)
		return
	}
	t.mu.Unlock()
}

// FailAsset marks an asset as undecodable; clips referencing it render as
// empty but editing continues.
func (t *Timeline) FailAsset(id string) {
	t.mu.Lock()
	for i := range t.assets {
		if t.assets[i].ID != id {
			continue
		}
		t.assets[i].Failed = true
		t.assets[i].Processing = false
		t.assets[i].ProcessingProgress = 0
		t.assets[i].DecodedFrames = 0
		t.commit(EventAssets)
		return
	}
	t.mu.Unlock()
}

// AddTrack appends a lane of the given kind, named by convention.
func (t *Timeline) AddTrack(kind AssetKind) Track {
	t.mu.Lock()
	n := 1
	for _, tr := range t.tracks {
		if tr.Kind == kind {
			n++
		}
	}
	name := "Video Track"
	switch kind {
	case KindAudio:
		name = "Audio Track"
	case KindImage:
		// Images ride on video tracks; an explicit image track is still a
		// video lane.
		kind = KindVideo
		name = "Video Track"
	}
	track := Track{ID: NewID(), Name: fmt.Sprintf("%s %d", name, n), Kind: kind}
	t.tracks = append(t.tracks, track)
	t.commit(EventTimeline)
	return track
}

// RemoveTrack refuses while clips still reference the track (referential
// integrity) and is a no-op for unknown ids.
func (t *Timeline) RemoveTrack(id string) bool {
	t.mu.Lock()
	for _, c := range t.clips {
		if c.TrackID == id {
			t.mu.Unlock()
			return false
		}
	}
	for i, tr := range t.tracks {
		if tr.ID == id {
			t.tracks = append(t.tracks[:i], t.tracks[i+1:]...)
			t.commit(EventTimeline)
			return true
		}
	}
	t.mu.Unlock()
	return false
}

func (t *Timeline) SetTrackMuted(id string, muted bool) {
	t.mu.Lock()
	for i := range t.tracks {
		if t.tracks[i].ID == id {
			t.tracks[i].Muted = muted
			t.commit(EventTimeline)
			return
		}
	}
	t.mu.Unlock()
}

func (t *Timeline) SetTrackLocked(id string, locked bool) {
	t.mu.Lock()
	for i := range t.tracks {
		if t.tracks[i].ID == id {
			t.tracks[i].Locked = locked
			t.commit(EventTimeline)
			return
		}
	}
	t.mu.Unlock()
}

// AddClip drops an asset onto a track at startTime. Unknown asset or track
// ids are no-ops.
func (t *Timeline) AddClip(assetID, trackID string, startTime float64) (Clip, bool) {
	if startTime < 0 {
		startTime = 0
	}
	t.mu.Lock()
	var asset *Asset
	for i := range t.assets {
		if t.assets[i].ID == assetID {
			asset = &t.assets[i]
			break
		}
	}
	if asset == nil {
		t.mu.Unlock()
		return Clip{}, false
	}
	trackOK := false
	for _, tr := range t.tracks {
		if tr.ID == trackID {
			trackOK = true
			break
		}
	}
	if !trackOK {
		t.mu.Unlock()
		return Clip{}, false
	}

	duration := asset.Duration
	if duration <= 0 {
		duration = DefaultImageDuration
	}
	clip := Clip{
		ID:        NewID(),
		AssetID:   assetID,
		TrackID:   trackID,
		Name:      asset.Name,
		Kind:      asset.Kind,
		StartTime: startTime,
		Duration:  duration,
		Offset:    0,
		Transform: NewTransform(),
		Seq:       t.nextSeq,
	}
	t.nextSeq++
	t.clips = append(t.clips, clip)
	t.commit(EventTimeline)
	return clip, true
}

// UpdateClip applies a partial change. Negative start times are clamped to
// zero; non-positive durations and negative offsets are rejected field-wise.
func (t *Timeline) UpdateClip(id string, changes ClipChanges) bool {
	t.mu.Lock()
	for i := range t.clips {
		if t.clips[i].ID != id {
			continue
		}
		c := &t.clips[i]
		if changes.StartTime != nil {
			st := *changes.StartTime
			if st < 0 {
				st = 0
			}
			c.StartTime = st
		}
		if changes.Duration != nil && *changes.Duration > 0 {
			c.Duration = *changes.Duration
		}
		if changes.Offset != nil && *changes.Offset >= 0 {
			c.Offset = *changes.Offset
		}
		if changes.TrackID != nil {
			for _, tr := range t.tracks {
				if tr.ID == *changes.TrackID {
					c.TrackID = tr.ID
					break
				}
			}
		}
		if changes.Transform != nil {
			tf := *changes.Transform
			if tf.Scale > 0 && tf.Opacity >= 0 && tf.Opacity <= 1 {
				c.Transform = tf
			}
		}
		t.commit(EventTimeline)
		return true
	}
	t.mu.Unlock()
	return false
}

func (t *Timeline) RemoveClip(id string) bool {
	t.mu.Lock()
	for i, c := range t.clips {
		if c.ID == id {
			t.clips = append(t.clips[:i], t.clips[i+1:]...)
			delete(t.selected, id)
			t.commit(EventTimeline)
			return true
		}
	}
	t.mu.Unlock()
	return false
}

// DuplicateClips copies the given clips with new ids, shifting each copy
// by the combined span of the originals (max end minus min start) so
// relative spacing is preserved. Unknown ids are skipped.
func (t *Timeline) DuplicateClips(ids []string) []Clip {
	t.mu.Lock()
	var originals []Clip
	for _, id := range ids {
		for _, c := range t.clips {
			if c.ID == id {
				originals = append(originals, c)
				break
			}
		}
	}
	if len(originals) == 0 {
		t.mu.Unlock()
		return nil
	}

	minStart := originals[0].StartTime
	maxEnd := originals[0].End()
	for _, c := range originals[1:] {
		if c.StartTime < minStart {
			minStart = c.StartTime
		}
		if c.End() > maxEnd {
			maxEnd = c.End()
		}
	}
	span := maxEnd - minStart

	copies := make([]Clip, 0, len(originals))
	for _, c := range originals {
		dup := c
		dup.ID = NewID()
		dup.StartTime = c.StartTime + span
		dup.Seq = t.nextSeq
		t.nextSeq++
		t.clips = append(t.clips, dup)
		copies = append(copies, dup)
	}
	t.commit(EventTimeline)
	return copies
}

// ReverseClip toggles back-to-front playback for a video clip. Reversing
// twice restores the original frame order.
func (t *Timeline) ReverseClip(id string) bool {
	t.mu.Lock()
	for i := range t.clips {
		if t.clips[i].ID != id {
			continue
		}
		if t.clips[i].Kind != KindVideo {
			t.mu.Unlock()
			return false
		}
		t.clips[i].Reversed = !t.clips[i].Reversed
		t.commit(EventTimeline)
		return true
	}
	t.mu.Unlock()
	return false
}

// SetCurrentTime moves the playhead; scrubbing may set any time >= 0.
func (t *Timeline) SetCurrentTime(sec float64) {
	if sec < 0 {
		sec = 0
	}
	t.mu.Lock()
	t.current = sec
	t.commit(EventTransport)
}

func (t *Timeline) TogglePlay() bool {
	t.mu.Lock()
	t.playing = !t.playing
	p := t.playing
	t.commit(EventTransport)
	return p
}

func (t *Timeline) SetPlaying(playing bool) {
	t.mu.Lock()
	if t.playing == playing {
		t.mu.Unlock()
		return
	}
	t.playing = playing
	t.commit(EventTransport)
}

// SelectClips replaces the selection; unknown ids are dropped.
func (t *Timeline) SelectClips(ids ...string) {
	t.mu.Lock()
	t.selected = make(map[string]struct{})
	for _, id := range ids {
		for _, c := range t.clips {
			if c.ID == id {
				t.selected[id] = struct{}{}
				break
			}
		}
	}
	t.commit(EventSelection)
}

func (t *Timeline) SelectedClips() []string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]string, 0, len(t.selected))
	for id := range t.selected {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}
