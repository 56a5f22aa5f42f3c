package api

import (
	"time"

	"github.com/clipforge/clipforge-engine/internal/store"
	"github.com/clipforge/clipforge-engine/internal/timeline"
)

type HealthResponse struct {
	Status  string `json:"status"`
	Version string `json:"version"`
	UptimeS int64  `json:"uptime_s"`
}

type StatusResponse struct {
	State          string  `json:"state"`
	AssetsCount    int     `json:"assets_count"`
	ClipsCount     int     `json:"clips_count"`
	TotalDuration  float64 `json:"total_duration"`
	CurrentTime    float64 `json:"current_time"`
	ExportsRunning int     `json:"exports_running"`
	LastError      string  `json:"last_error,omitempty"`

	MemoryUsedMB    uint64  `json:"memory_used_mb"`
	MemoryTotalMB   uint64  `json:"memory_total_mb"`
	MemoryUsedPct   float64 `json:"memory_used_pct"`
	GoroutinesCount int     `json:"goroutines_count"`
}

type AddTrackRequest struct {
	Kind string `json:"kind"`
}

type UpdateTrackRequest struct {
	Muted  *bool `json:"muted,omitempty"`
	Locked *bool `json:"locked,omitempty"`
}

type AddClipRequest struct {
	AssetID   string  `json:"asset_id"`
	TrackID   string  `json:"track_id"`
	StartTime float64 `json:"start_time"`
}

type DuplicateClipsRequest struct {
	IDs []string `json:"ids"`
}

type SeekRequest struct {
	Time float64 `json:"time"`
}

type SetPlayingRequest struct {
	Playing *bool `json:"playing,omitempty"`
}

type TransportResponse struct {
	CurrentTime float64 `json:"current_time"`
	Playing     bool    `json:"playing"`
}

type SelectionRequest struct {
	IDs []string `json:"ids"`
}

type SetProjectRequest struct {
	Preset string `json:"preset,omitempty"`
	Width  int    `json:"width,omitempty"`
	Height int    `json:"height,omitempty"`
	FPS    int    `json:"fps,omitempty"`
}

type AssetResponse struct {
	ID                 string  `json:"id"`
	Name               string  `json:"name"`
	Kind               string  `json:"kind"`
	Size               int64   `json:"size"`
	Duration           float64 `json:"duration"`
	Width              int     `json:"width,omitempty"`
	Height             int     `json:"height,omitempty"`
	FrameRate          float64 `json:"frame_rate,omitempty"`
	TotalFrames        int     `json:"total_frames"`
	DecodedFrames      int     `json:"decoded_frames"`
	Processing         bool    `json:"processing"`
	ProcessingProgress float64 `json:"processing_progress"`
	Failed             bool    `json:"failed"`
}

type AssetsResponse struct {
	Assets []AssetResponse `json:"assets"`
}

type StartExportRequest struct {
	Preset        string  `json:"preset,omitempty"`
	Width         int     `json:"width,omitempty"`
	Height        int     `json:"height,omitempty"`
	FPS           int     `json:"fps,omitempty"`
	TotalDuration float64 `json:"total_duration,omitempty"`
}

type StartExportResponse struct {
	ExportID string `json:"export_id"`
}

type ExportResponse struct {
	ID         string `json:"id"`
	Stage      string `json:"stage"`
	Progress   int    `json:"progress"`
	Message    string `json:"message,omitempty"`
	Error      string `json:"error,omitempty"`
	OutputPath string `json:"output_path,omitempty"`
	CreatedAt  string `json:"created_at"`
	UpdatedAt  string `json:"updated_at"`
}

type ExportsResponse struct {
	Exports []ExportResponse `json:"exports"`
}

type PrefResponse struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

type SetPrefRequest struct {
	Value string `json:"value"`
}

type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}

func AssetToResponse(a timeline.Asset) AssetResponse {
	return AssetResponse{
		ID:                 a.ID,
		Name:               a.Name,
		Kind:               string(a.Kind),
		Size:               a.Size,
		Duration:           a.Duration,
		Width:              a.Width,
		Height:             a.Height,
		FrameRate:          a.FrameRate,
		TotalFrames:        a.TotalFrames,
		DecodedFrames:      a.DecodedFrames,
		Processing:         a.Processing,
		ProcessingProgress: a.ProcessingProgress,
		Failed:             a.Failed,
	}
}

func ExportToResponse(rec *store.ExportRecord) ExportResponse {
	return ExportResponse{
		ID:         rec.ID,
		Stage:      rec.Stage,
		Progress:   rec.Progress,
		Message:    rec.Message,
		Error:      rec.Error,
		OutputPath: rec.OutputPath,
		CreatedAt:  rec.CreatedAt.Format(time.RFC3339),
		UpdatedAt:  rec.UpdatedAt.Format(time.RFC3339),
	}
}
