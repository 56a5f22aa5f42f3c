// Package timeline holds the canonical editing state: assets, tracks,
// clips, playhead, and selection. Mutations preserve invariants and never
// fail; invalid ids are no-ops.
package timeline

import (
	"github.com/google/uuid"
)

type AssetKind string

const (
	KindVideo AssetKind = "video"
	KindImage AssetKind = "image"
	KindAudio AssetKind = "audio"
)

// Images have no intrinsic duration; clips created from them default to
// five seconds.
const DefaultImageDuration = 5.0

// Asset is an imported media source. Frame bitmaps for video assets are
// owned by the frame library, not the timeline; the aggregate tracks only
// extraction bookkeeping so observers can render partial results.
type Asset struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Kind      AssetKind `json:"kind"`
	Size      int64     `json:"size"`
	Duration  float64   `json:"duration"`
	Width     int       `json:"width,omitempty"`
	Height    int       `json:"height,omitempty"`
	FrameRate float64   `json:"frame_rate,omitempty"`

	TotalFrames        int     `json:"total_frames,omitempty"`
	DecodedFrames      int     `json:"decoded_frames,omitempty"`
	Processing         bool    `json:"processing,omitempty"`
	ProcessingProgress float64 `json:"processing_progress,omitempty"`
	Failed             bool    `json:"failed,omitempty"`
}

type Track struct {
	ID     string    `json:"id"`
	Name   string    `json:"name"`
	Kind   AssetKind `json:"kind"`
	Muted  bool      `json:"muted"`
	Locked bool      `json:"locked"`
}

// Transform is fully specified at construction; no field is optional and
// no default is applied at read time.
type Transform struct {
	Scale    float64 `json:"scale"`
	Rotation float64 `json:"rotation"`
	Opacity  float64 `json:"opacity"`
	X        float64 `json:"x"`
	Y        float64 `json:"y"`
}

func NewTransform() Transform {
	return Transform{Scale: 1, Rotation: 0, Opacity: 1, X: 0, Y: 0}
}

// Clip places an asset on a track over the half-open timeline interval
// [StartTime, StartTime+Duration).
type Clip struct {
	ID        string    `json:"id"`
	AssetID   string    `json:"asset_id"`
	TrackID   string    `json:"track_id"`
	Name      string    `json:"name"`
	Kind      AssetKind `json:"kind"`
	StartTime float64   `json:"start_time"`
	Duration  float64   `json:"duration"`
	Offset    float64   `json:"offset"`
	Transform Transform `json:"transform"`
	Reversed  bool      `json:"reversed"`

	// Seq is the insertion sequence number, used as the deterministic
	// tie-break when clips on the same track overlap.
	Seq uint64 `json:"seq"`
}

// End returns the exclusive end of the clip's timeline extent.
func (c Clip) End() float64 {
	return c.StartTime + c.Duration
}

// ClipChanges is a partial update; nil fields are left untouched.
type ClipChanges struct {
	StartTime *float64   `json:"start_time,omitempty"`
	Duration  *float64   `json:"duration,omitempty"`
	Offset    *float64   `json:"offset,omitempty"`
	TrackID   *string    `json:"track_id,omitempty"`
	Transform *Transform `json:"transform,omitempty"`
}

// Project holds output settings shared by preview and export.
type Project struct {
	Width  int `json:"width"`
	Height int `json:"height"`
	FPS    int `json:"fps"`
}

// Snapshot is an immutable copy of the aggregate taken under lock. Export
// and persistence operate on snapshots so later mutations cannot affect
// them.
type Snapshot struct {
	Version     uint64            `json:"version"`
	Assets      []Asset           `json:"assets"`
	Tracks      []Track           `json:"tracks"`
	Clips       []Clip            `json:"clips"`
	CurrentTime float64           `json:"current_time"`
	Playing     bool              `json:"playing"`
	Selected    []string          `json:"selected,omitempty"`
	Project     Project           `json:"project"`
	trackIndex  map[string]int    // track id -> position, rebuilt on snapshot
	assetIndex  map[string]*Asset // asset id -> asset
}

// Asset returns the asset for id, or nil if it was removed (a dangling
// clip reference resolves to no contribution, never a crash).
func (s *Snapshot) Asset(id string) *Asset {
	if s.assetIndex == nil {
		s.assetIndex = make(map[string]*Asset, len(s.Assets))
		for i := range s.Assets {
			s.assetIndex[s.Assets[i].ID] = &s.Assets[i]
		}
	}
	return s.assetIndex[id]
}

// TrackPosition returns the z-order position of a track; later positions
// paint over earlier ones. Unknown tracks sort first.
func (s *Snapshot) TrackPosition(id string) int {
	if s.trackIndex == nil {
		s.trackIndex = make(map[string]int, len(s.Tracks))
		for i, tr := range s.Tracks {
			s.trackIndex[tr.ID] = i
		}
	}
	pos, ok := s.trackIndex[id]
	if !ok {
		return -1
	}
	return pos
}

// TotalDuration is the maximum clip end, or 0 with no clips.
func (s *Snapshot) TotalDuration() float64 {
	var max float64
	for _, c := range s.Clips {
		if end := c.End(); end > max {
			max = end
		}
	}
	return max
}

func NewID() string {
	return uuid.NewString()
}
