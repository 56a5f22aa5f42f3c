package api

import (
	"encoding/json"
	"net/http"
	"os"

	"github.com/go-chi/chi/v5"

	"github.com/clipforge/clipforge-engine/internal/export"
)

func startExportHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req StartExportRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			WriteError(w, http.StatusBadRequest, "invalid request body", "BAD_REQUEST")
			return
		}

		opts := export.Options{
			Width:         req.Width,
			Height:        req.Height,
			FPS:           req.FPS,
			TotalDuration: req.TotalDuration,
		}
		if req.Preset != "" {
			preset, ok := export.PresetByName(req.Preset)
			if !ok {
				WriteError(w, http.StatusBadRequest, "unknown preset", "BAD_REQUEST")
				return
			}
			opts.Width = preset.Width
			opts.Height = preset.Height
			opts.FPS = preset.FPS
		}

		id, err := cfg.Exporter.Start(r.Context(), opts)
		if err != nil {
			WriteError(w, http.StatusInternalServerError, err.Error(), "INTERNAL_ERROR")
			return
		}
		WriteJSON(w, http.StatusAccepted, StartExportResponse{ExportID: id})
	}
}

func listExportsHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		recs, err := cfg.Exporter.List(r.Context(), 50)
		if err != nil {
			WriteError(w, http.StatusInternalServerError, "failed to list exports", "INTERNAL_ERROR")
			return
		}

		resp := ExportsResponse{Exports: make([]ExportResponse, len(recs))}
		for i, rec := range recs {
			resp.Exports[i] = ExportToResponse(rec)
		}
		WriteJSON(w, http.StatusOK, resp)
	}
}

func getExportHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		rec, err := cfg.Exporter.Get(r.Context(), id)
		if err != nil {
			WriteError(w, http.StatusInternalServerError, err.Error(), "INTERNAL_ERROR")
			return
		}
		if rec == nil {
			WriteError(w, http.StatusNotFound, "export not found", "NOT_FOUND")
			return
		}
		WriteJSON(w, http.StatusOK, ExportToResponse(rec))
	}
}

func cancelExportHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		if err := cfg.Exporter.Cancel(id); err != nil {
			WriteError(w, http.StatusNotFound, "export not running", "NOT_FOUND")
			return
		}
		w.WriteHeader(http.StatusAccepted)
	}
}

func downloadExportHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		rec, err := cfg.Exporter.Get(r.Context(), id)
		if err != nil {
			WriteError(w, http.StatusInternalServerError, err.Error(), "INTERNAL_ERROR")
			return
		}
		if rec == nil || rec.Stage != export.StageComplete || rec.OutputPath == "" {
			WriteError(w, http.StatusNotFound, "export output not available", "NOT_FOUND")
			return
		}
		if _, err := os.Stat(rec.OutputPath); err != nil {
			WriteError(w, http.StatusNotFound, "export output missing on disk", "NOT_FOUND")
			return
		}

		w.Header().Set("Content-Type", "video/mp4")
		w.Header().Set("Content-Disposition", `attachment; filename="`+id+`.mp4"`)
		http.ServeFile(w, r, rec.OutputPath)
	}
}
