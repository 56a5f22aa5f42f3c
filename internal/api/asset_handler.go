package api

import (
	"bytes"
	"fmt"
	"image"
	"io"
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	"github.com/go-chi/chi/v5"

	"github.com/clipforge/clipforge-engine/internal/frames"
	"github.com/clipforge/clipforge-engine/internal/store"
	"github.com/clipforge/clipforge-engine/internal/timeline"
)

// maxImportSize caps a single uploaded media file at 500 MB.
const maxImportSize = 500 << 20

func listAssetsHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		snap := cfg.Timeline.Snapshot()
		resp := AssetsResponse{Assets: make([]AssetResponse, len(snap.Assets))}
		for i, a := range snap.Assets {
			resp.Assets[i] = AssetToResponse(a)
		}
		WriteJSON(w, http.StatusOK, resp)
	}
}

// importAssetHandler receives one media file as multipart form data, probes
// its metadata, persists the bytes, registers the asset, and kicks off
// frame extraction for visual media.
func importAssetHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxImportSize)
		file, header, err := r.FormFile("file")
		if err != nil {
			WriteError(w, http.StatusBadRequest, "file field required", "BAD_REQUEST")
			return
		}
		defer file.Close()

		data, err := io.ReadAll(file)
		if err != nil {
			WriteError(w, http.StatusBadRequest, "failed to read upload", "BAD_REQUEST")
			return
		}

		kind, mediaType := classifyUpload(header.Filename, header.Header.Get("Content-Type"))
		if kind == "" {
			WriteError(w, http.StatusUnsupportedMediaType, "unsupported media type", "UNSUPPORTED")
			return
		}

		asset := timeline.Asset{
			ID:   timeline.NewID(),
			Name: header.Filename,
			Kind: kind,
			Size: int64(len(data)),
		}

		// The decoded copy on disk is what the extractor and probe read;
		// the blob store holds the bytes for export staging.
		mediaPath := filepath.Join(cfg.MediaDir, asset.ID+filepath.Ext(header.Filename))
		if err := os.WriteFile(mediaPath, data, 0o644); err != nil {
			WriteError(w, http.StatusInternalServerError, "failed to store media file", "INTERNAL_ERROR")
			return
		}

		switch kind {
		case timeline.KindVideo, timeline.KindAudio:
			probe, err := cfg.FFmpeg.Probe(r.Context(), mediaPath)
			if err != nil {
				os.Remove(mediaPath)
				WriteError(w, http.StatusBadRequest, fmt.Sprintf("probe failed: %v", err), "BAD_REQUEST")
				return
			}
			asset.Duration = probe.Duration
			asset.Width = probe.Width
			asset.Height = probe.Height
			asset.FrameRate = probe.FrameRate
			if kind == timeline.KindVideo {
				asset.TotalFrames = frames.TotalFrames(probe.Duration, probe.FrameRate)
				asset.Processing = true
			}
		case timeline.KindImage:
			if imgCfg, _, err := image.DecodeConfig(bytes.NewReader(data)); err == nil {
				asset.Width = imgCfg.Width
				asset.Height = imgCfg.Height
			}
			asset.TotalFrames = 1
			asset.Processing = true
		}

		blob := &store.AssetBlob{
			AssetID:   asset.ID,
			Filename:  header.Filename,
			MediaType: mediaType,
			Size:      asset.Size,
			Data:      data,
			CreatedAt: time.Now().UTC(),
		}
		if err := cfg.Repo.PutBlob(r.Context(), blob); err != nil {
			os.Remove(mediaPath)
			WriteError(w, http.StatusInternalServerError, "failed to persist asset", "INTERNAL_ERROR")
			return
		}

		added := cfg.Timeline.AddAsset(asset)
		if cfg.Extractor != nil {
			cfg.Extractor.Start(added, mediaPath)
		}

		WriteJSON(w, http.StatusCreated, AssetToResponse(added))
	}
}

func removeAssetHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")

		blob, _ := cfg.Repo.GetBlobMeta(r.Context(), id)
		if !cfg.Timeline.RemoveAsset(id) {
			WriteError(w, http.StatusNotFound, "asset not found", "NOT_FOUND")
			return
		}

		if cfg.Extractor != nil {
			cfg.Extractor.Cancel(id)
		}
		if err := cfg.Repo.DeleteBlob(r.Context(), id); err != nil {
			cfg.Logger.Warn("asset blob delete failed", "asset_id", id, "error", err)
		}
		if blob != nil {
			os.Remove(filepath.Join(cfg.MediaDir, id+filepath.Ext(blob.Filename)))
		}

		w.WriteHeader(http.StatusNoContent)
	}
}

// classifyUpload maps a filename and declared content type to an asset
// kind. The extension wins when the content type is generic.
func classifyUpload(filename, contentType string) (timeline.AssetKind, string) {
	if contentType == "" || contentType == "application/octet-stream" {
		contentType = mime.TypeByExtension(strings.ToLower(filepath.Ext(filename)))
	}
	switch {
	case strings.HasPrefix(contentType, "video/"):
		return timeline.KindVideo, contentType
	case strings.HasPrefix(contentType, "image/"):
		return timeline.KindImage, contentType
	case strings.HasPrefix(contentType, "audio/"):
		return timeline.KindAudio, contentType
	}
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".mp4", ".mov", ".webm", ".mkv", ".avi":
		return timeline.KindVideo, "video/mp4"
	case ".png", ".jpg", ".jpeg", ".gif", ".webp":
		return timeline.KindImage, "image/" + strings.TrimPrefix(strings.ToLower(filepath.Ext(filename)), ".")
	case ".mp3", ".wav", ".m4a", ".ogg", ".flac":
		return timeline.KindAudio, "audio/mpeg"
	}
	return "", ""
}
