package api

import (
	"encoding/json"
	"image/png"
	"net/http"
	"runtime"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shirou/gopsutil/v3/mem"

	"github.com/clipforge/clipforge-engine/internal/export"
	"github.com/clipforge/clipforge-engine/internal/timeline"
)

func NewRouter(cfg ServerConfig) *chi.Mux {
	r := chi.NewRouter()

	r.Use(RequestIDMiddleware())
	r.Use(RecoveryMiddleware(cfg.Logger))
	r.Use(LoggingMiddleware(cfg.Logger))

	r.Get("/health", healthHandler(cfg))

	r.Group(func(r chi.Router) {
		r.Use(AuthMiddleware(cfg.Repo, cfg.Logger))

		r.Get("/status", statusHandler(cfg))
		r.Get("/events", eventsHandler(cfg))

		r.Get("/timeline", getTimelineHandler(cfg))
		r.Put("/timeline/project", setProjectHandler(cfg))
		r.Post("/timeline/tracks", addTrackHandler(cfg))
		r.Patch("/timeline/tracks/{id}", updateTrackHandler(cfg))
		r.Delete("/timeline/tracks/{id}", removeTrackHandler(cfg))
		r.Post("/timeline/clips", addClipHandler(cfg))
		r.Post("/timeline/clips/duplicate", duplicateClipsHandler(cfg))
		r.Post("/timeline/clips/{id}/reverse", reverseClipHandler(cfg))
		r.Patch("/timeline/clips/{id}", updateClipHandler(cfg))
		r.Delete("/timeline/clips/{id}", removeClipHandler(cfg))
		r.Post("/timeline/seek", seekHandler(cfg))
		r.Post("/timeline/play", playHandler(cfg))
		r.Post("/timeline/selection", selectionHandler(cfg))

		r.Get("/assets", listAssetsHandler(cfg))
		r.Post("/assets", importAssetHandler(cfg))
		r.Delete("/assets/{id}", removeAssetHandler(cfg))

		r.Get("/preview/frame", previewFrameHandler(cfg))
		r.Get("/presets", presetsHandler())

		r.Post("/exports", startExportHandler(cfg))
		r.Get("/exports", listExportsHandler(cfg))
		r.Get("/exports/{id}", getExportHandler(cfg))
		r.Post("/exports/{id}/cancel", cancelExportHandler(cfg))
		r.Get("/exports/{id}/download", downloadExportHandler(cfg))

		r.Get("/prefs/{key}", getPrefHandler(cfg))
		r.Put("/prefs/{key}", setPrefHandler(cfg))
	})

	return r
}

func healthHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		uptime := int64(time.Since(cfg.StartTime).Seconds())
		WriteJSON(w, http.StatusOK, HealthResponse{
			Status:  "ok",
			Version: cfg.Version,
			UptimeS: uptime,
		})
	}
}

func statusHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		snap := cfg.Timeline.Snapshot()

		state := "idle"
		if snap.Playing {
			state = "playing"
		}
		exportsRunning := 0
		lastError := ""
		if cfg.Exporter != nil {
			exportsRunning = cfg.Exporter.Running()
			if exportsRunning > 0 {
				state = "exporting"
			}
			if recs, err := cfg.Exporter.List(r.Context(), 1); err == nil &&
				len(recs) == 1 && recs[0].Stage == export.StageError {
				lastError = recs[0].Error
			}
		}

		resp := StatusResponse{
			State:           state,
			AssetsCount:     len(snap.Assets),
			ClipsCount:      len(snap.Clips),
			TotalDuration:   snap.TotalDuration(),
			CurrentTime:     snap.CurrentTime,
			ExportsRunning:  exportsRunning,
			LastError:       lastError,
			GoroutinesCount: runtime.NumGoroutine(),
		}
		if vm, err := mem.VirtualMemory(); err == nil {
			resp.MemoryUsedMB = vm.Used / 1024 / 1024
			resp.MemoryTotalMB = vm.Total / 1024 / 1024
			resp.MemoryUsedPct = vm.UsedPercent
		}

		WriteJSON(w, http.StatusOK, resp)
	}
}

func getTimelineHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		WriteJSON(w, http.StatusOK, cfg.Timeline.Snapshot())
	}
}

func setProjectHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req SetProjectRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			WriteError(w, http.StatusBadRequest, "invalid request body", "BAD_REQUEST")
			return
		}

		p := cfg.Timeline.Project()
		if req.Preset != "" {
			preset, ok := export.PresetByName(req.Preset)
			if !ok {
				WriteError(w, http.StatusBadRequest, "unknown preset", "BAD_REQUEST")
				return
			}
			p = timeline.Project{Width: preset.Width, Height: preset.Height, FPS: preset.FPS}
		}
		if req.Width > 0 {
			p.Width = req.Width
		}
		if req.Height > 0 {
			p.Height = req.Height
		}
		if req.FPS > 0 {
			p.FPS = req.FPS
		}

		cfg.Timeline.SetProject(p)
		WriteJSON(w, http.StatusOK, p)
	}
}

func addTrackHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req AddTrackRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			WriteError(w, http.StatusBadRequest, "invalid request body", "BAD_REQUEST")
			return
		}

		kind := timeline.AssetKind(req.Kind)
		if kind != timeline.KindVideo && kind != timeline.KindAudio {
			WriteError(w, http.StatusBadRequest, "kind must be video or audio", "BAD_REQUEST")
			return
		}

		track := cfg.Timeline.AddTrack(kind)
		WriteJSON(w, http.StatusCreated, track)
	}
}

func updateTrackHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		var req UpdateTrackRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			WriteError(w, http.StatusBadRequest, "invalid request body", "BAD_REQUEST")
			return
		}

		if req.Muted != nil {
			cfg.Timeline.SetTrackMuted(id, *req.Muted)
		}
		if req.Locked != nil {
			cfg.Timeline.SetTrackLocked(id, *req.Locked)
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func removeTrackHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		if !cfg.Timeline.RemoveTrack(id) {
			WriteError(w, http.StatusConflict, "track has clips or does not exist", "CONFLICT")
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func addClipHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req AddClipRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			WriteError(w, http.StatusBadRequest, "invalid request body", "BAD_REQUEST")
			return
		}

		clip, ok := cfg.Timeline.AddClip(req.AssetID, req.TrackID, req.StartTime)
		if !ok {
			WriteError(w, http.StatusBadRequest, "unknown asset or track", "BAD_REQUEST")
			return
		}
		WriteJSON(w, http.StatusCreated, clip)
	}
}

func updateClipHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		var changes timeline.ClipChanges
		if err := json.NewDecoder(r.Body).Decode(&changes); err != nil {
			WriteError(w, http.StatusBadRequest, "invalid request body", "BAD_REQUEST")
			return
		}

		if !cfg.Timeline.UpdateClip(id, changes) {
			WriteError(w, http.StatusBadRequest, "invalid clip update", "BAD_REQUEST")
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func removeClipHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		if !cfg.Timeline.RemoveClip(id) {
			WriteError(w, http.StatusNotFound, "clip not found", "NOT_FOUND")
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func duplicateClipsHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req DuplicateClipsRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			WriteError(w, http.StatusBadRequest, "invalid request body", "BAD_REQUEST")
			return
		}
		if len(req.IDs) == 0 {
			WriteError(w, http.StatusBadRequest, "ids required", "BAD_REQUEST")
			return
		}

		copies := cfg.Timeline.DuplicateClips(req.IDs)
		WriteJSON(w, http.StatusCreated, copies)
	}
}

func reverseClipHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		if !cfg.Timeline.ReverseClip(id) {
			WriteError(w, http.StatusBadRequest, "clip not found or not reversible", "BAD_REQUEST")
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func seekHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req SeekRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			WriteError(w, http.StatusBadRequest, "invalid request body", "BAD_REQUEST")
			return
		}

		cfg.Timeline.SetCurrentTime(req.Time)
		WriteJSON(w, http.StatusOK, TransportResponse{
			CurrentTime: cfg.Timeline.CurrentTime(),
			Playing:     cfg.Timeline.IsPlaying(),
		})
	}
}

func playHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req SetPlayingRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			WriteError(w, http.StatusBadRequest, "invalid request body", "BAD_REQUEST")
			return
		}

		if req.Playing != nil {
			cfg.Timeline.SetPlaying(*req.Playing)
		} else {
			cfg.Timeline.TogglePlay()
		}
		WriteJSON(w, http.StatusOK, TransportResponse{
			CurrentTime: cfg.Timeline.CurrentTime(),
			Playing:     cfg.Timeline.IsPlaying(),
		})
	}
}

func selectionHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req SelectionRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			WriteError(w, http.StatusBadRequest, "invalid request body", "BAD_REQUEST")
			return
		}

		cfg.Timeline.SelectClips(req.IDs...)
		w.WriteHeader(http.StatusNoContent)
	}
}

func previewFrameHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if cfg.Scheduler == nil {
			WriteError(w, http.StatusServiceUnavailable, "preview not available", "UNAVAILABLE")
			return
		}
		frame := cfg.Scheduler.RenderCurrent()
		w.Header().Set("Content-Type", "image/png")
		if err := png.Encode(w, frame); err != nil {
			cfg.Logger.Error("preview frame encode failed", "error", err)
		}
	}
}

func presetsHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		WriteJSON(w, http.StatusOK, export.Presets())
	}
}

func getPrefHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		key := chi.URLParam(r, "key")
		value, err := cfg.Repo.GetPref(r.Context(), key)
		if err != nil {
			WriteError(w, http.StatusInternalServerError, err.Error(), "INTERNAL_ERROR")
			return
		}
		WriteJSON(w, http.StatusOK, PrefResponse{Key: key, Value: value})
	}
}

func setPrefHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		key := chi.URLParam(r, "key")
		var req SetPrefRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			WriteError(w, http.StatusBadRequest, "invalid request body", "BAD_REQUEST")
			return
		}
		if err := cfg.Repo.SetPref(r.Context(), key, req.Value); err != nil {
			WriteError(w, http.StatusInternalServerError, err.Error(), "INTERNAL_ERROR")
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}
