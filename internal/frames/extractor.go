package frames

import (
	"context"
	"log/slog"
	"math"
	"path/filepath"
	"sync"

	"github.com/clipforge/clipforge-engine/internal/logging"
	"github.com/clipforge/clipforge-engine/internal/media"
	"github.com/clipforge/clipforge-engine/internal/timeline"
)

// DefaultFrameRate is assumed when a source does not report one.
const DefaultFrameRate = 30.0

// Extractor runs one background decode task per video asset. Extraction
// within an asset is strictly sequential (a single decode cursor); assets
// extract concurrently and independently.
type Extractor struct {
	ffmpeg  media.FFmpeg
	tl      *timeline.Timeline
	library *Library
	logger  *slog.Logger
	baseCtx context.Context
	mu      sync.Mutex
	running map[string]*extraction
	done    sync.WaitGroup
}

// extraction identifies one decode run, so a superseded run deregisters
// only its own map entry on exit.
type extraction struct {
	cancel context.CancelFunc
}

func NewExtractor(ctx context.Context, ffmpeg media.FFmpeg, tl *timeline.Timeline, library *Library, logger *slog.Logger) *Extractor {
	return &Extractor{
		ffmpeg:  ffmpeg,
		tl:      tl,
		library: library,
		logger:  logging.WithComponent(logger, "extractor"),
		baseCtx: ctx,
		running: make(map[string]*extraction),
	}
}

// TotalFrames computes the frame count for a duration at a rate,
// defaulting the rate to 30.
func TotalFrames(duration, frameRate float64) int {
	if frameRate <= 0 {
		frameRate = DefaultFrameRate
	}
	if duration <= 0 {
		return 0
	}
	return int(math.Ceil(duration * frameRate))
}

// Start launches extraction for a visual asset stored at filePath. Video
// assets decode one frame per 1/rate seconds; image assets decode a single
// frame. It replaces any extraction already running for the same asset.
func (e *Extractor) Start(asset timeline.Asset, filePath string) {
	if asset.Kind == timeline.KindAudio {
		return
	}

	rate := asset.FrameRate
	if rate <= 0 {
		rate = DefaultFrameRate
	}
	total := TotalFrames(asset.Duration, rate)
	if asset.Kind == timeline.KindImage {
		total, rate = 1, 1
	}
	if total == 0 {
		e.logger.Warn("asset has no frames to extract", "asset_id", asset.ID)
		e.tl.FailAsset(asset.ID)
		return
	}

	ctx, cancel := context.WithCancel(e.baseCtx)
	ex := &extraction{cancel: cancel}
	e.mu.Lock()
	if prev, ok := e.running[asset.ID]; ok {
		prev.cancel()
	}
	e.running[asset.ID] = ex
	e.mu.Unlock()

	store := e.library.Create(asset.ID)

	e.done.Add(1)
	go func() {
		defer e.done.Done()
		defer func() {
			e.mu.Lock()
			if e.running[asset.ID] == ex {
				delete(e.running, asset.ID)
			}
			e.mu.Unlock()
		}()
		e.run(ctx, asset.ID, filePath, store, total, rate)
	}()
}

// ResumeAll restarts extraction for every visual asset whose media file is
// still present under mediaDir. Frame stores live in memory only, so a
// restored project has to re-extract before preview can render anything.
func (e *Extractor) ResumeAll(mediaDir string) {
	snap := e.tl.Snapshot()
	for _, asset := range snap.Assets {
		if asset.Kind == timeline.KindAudio {
			continue
		}
		matches, err := filepath.Glob(filepath.Join(mediaDir, asset.ID+".*"))
		if err != nil || len(matches) == 0 {
			e.logger.Warn("media file missing for restored asset", "asset_id", asset.ID)
			e.tl.FailAsset(asset.ID)
			continue
		}
		e.tl.ResetAssetExtraction(asset.ID)
		e.Start(asset, matches[0])
	}
}

// run is the sequential seek-decode loop: frame i lives at i/rate seconds.
func (e *Extractor) run(ctx context.Context, assetID, filePath string, store *Store, total int, rate float64) {
	log := logging.WithAssetID(e.logger, assetID)
	log.Info("frame extraction started", "total_frames", total, "rate", rate)

	for i := 0; i < total; i++ {
		if ctx.Err() != nil {
			log.Info("frame extraction cancelled", "decoded", i)
			store.Release()
			return
		}

		offset := float64(i) / rate
		frame, err := e.ffmpeg.DecodeFrame(ctx, filePath, offset)
		if err != nil {
			if ctx.Err() != nil {
				store.Release()
				return
			}
			log.Error("frame decode failed, marking asset failed", "frame", i, "error", err)
			store.Release()
			e.tl.FailAsset(assetID)
			return
		}

		decoded := store.Append(frame)
		progress := float64(decoded) / float64(total) * 100
		e.tl.SetAssetExtraction(assetID, decoded, progress)
	}

	e.tl.CompleteAssetExtraction(assetID)
	log.Info("frame extraction complete", "frames", total)
}

// Cancel stops extraction for an asset and releases its frames. Safe to
// call for assets that were never started.
func (e *Extractor) Cancel(assetID string) {
	e.mu.Lock()
	ex := e.running[assetID]
	delete(e.running, assetID)
	e.mu.Unlock()
	if ex != nil {
		ex.cancel()
	}
	e.library.Remove(assetID)
}

// Wait blocks until all extraction goroutines have exited. Used in tests
// and during shutdown.
func (e *Extractor) Wait() {
	e.done.Wait()
}
