package export

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/clipforge/clipforge-engine/internal/logging"
	"github.com/clipforge/clipforge-engine/internal/media"
	"github.com/clipforge/clipforge-engine/internal/store"
	"github.com/clipforge/clipforge-engine/internal/timeline"
)

// Export lifecycle stages, persisted in the export record store.
const (
	StagePreparing  = "preparing"
	StageStaging    = "staging"
	StageProcessing = "processing"
	StageComplete   = "complete"
	StageError      = "error"
)

// ErrExportNotFound is returned for unknown or already finished export ids
// on cancel.
var ErrExportNotFound = errors.New("export not found")

// Status is the progress event pushed to subscribers. It mirrors the
// persisted record so consumers never need a second read.
type Status struct {
	ID       string `json:"id"`
	Stage    string `json:"stage"`
	Progress int    `json:"progress"`
	Message  string `json:"message,omitempty"`
	Error    string `json:"error,omitempty"`
}

type job struct {
	id       string
	cancel   context.CancelFunc
	progress int
}

// Exporter renders timeline snapshots to files. Each export stages the
// referenced asset blobs into a scratch directory, builds the filter
// graph, runs the encoder, and persists stage transitions.
type Exporter struct {
	repo       store.Repository
	ffmpeg     media.FFmpeg
	tl         *timeline.Timeline
	stagingDir string
	logger     *slog.Logger

	mu          sync.Mutex
	jobs        map[string]*job
	subscribers map[chan Status]struct{}
	wg          sync.WaitGroup
}

func NewExporter(repo store.Repository, ffmpeg media.FFmpeg, tl *timeline.Timeline, stagingDir string, logger *slog.Logger) *Exporter {
	return &Exporter{
		repo:        repo,
		ffmpeg:      ffmpeg,
		tl:          tl,
		stagingDir:  stagingDir,
		logger:      logger,
		jobs:        make(map[string]*job),
		subscribers: make(map[chan Status]struct{}),
	}
}

// Subscribe returns a channel of status updates and a cancel func. Slow
// consumers drop updates rather than stall an export.
func (e *Exporter) Subscribe() (<-chan Status, func()) {
	ch := make(chan Status, 16)
	e.mu.Lock()
	e.subscribers[ch] = struct{}{}
	e.mu.Unlock()
	return ch, func() {
		e.mu.Lock()
		delete(e.subscribers, ch)
		e.mu.Unlock()
	}
}

func (e *Exporter) publish(st Status) {
	e.mu.Lock()
	defer e.mu.Unlock()
	for ch := range e.subscribers {
		select {
		case ch <- st:
		default:
		}
	}
}

// Start snapshots the timeline and launches the render in the background.
// The returned id can be polled with Get or watched via Subscribe.
func (e *Exporter) Start(ctx context.Context, opts Options) (string, error) {
	snap := e.tl.Snapshot()
	if opts.Width <= 0 || opts.Height <= 0 {
		opts.Width = snap.Project.Width
		opts.Height = snap.Project.Height
	}
	if opts.FPS <= 0 {
		opts.FPS = snap.Project.FPS
	}
	if opts.TotalDuration <= 0 {
		opts.TotalDuration = snap.TotalDuration()
	}

	id := uuid.NewString()
	now := time.Now().UTC()
	rec := &store.ExportRecord{
		ID:        id,
		Stage:     StagePreparing,
		Progress:  0,
		Message:   "preparing export",
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := e.repo.CreateExport(ctx, rec); err != nil {
		return "", fmt.Errorf("create export record: %w", err)
	}

	jobCtx, cancel := context.WithCancel(context.Background())
	j := &job{id: id, cancel: cancel}
	e.mu.Lock()
	e.jobs[id] = j
	e.mu.Unlock()

	e.wg.Add(1)
	go e.run(jobCtx, j, snap, opts)
	return id, nil
}

// Get returns the persisted record, or nil when the id is unknown.
func (e *Exporter) Get(ctx context.Context, id string) (*store.ExportRecord, error) {
	return e.repo.GetExport(ctx, id)
}

func (e *Exporter) List(ctx context.Context, limit int) ([]*store.ExportRecord, error) {
	return e.repo.ListExports(ctx, limit)
}

// Cancel aborts a running export. The encoder process is killed and the
// partial output removed.
func (e *Exporter) Cancel(id string) error {
	e.mu.Lock()
	j, ok := e.jobs[id]
	e.mu.Unlock()
	if !ok {
		return ErrExportNotFound
	}
	j.cancel()
	return nil
}

// Running reports how many exports are currently in flight.
func (e *Exporter) Running() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.jobs)
}

// Wait blocks until all running exports finish. Used on shutdown.
func (e *Exporter) Wait() {
	e.wg.Wait()
}

func (e *Exporter) run(ctx context.Context, j *job, snap timeline.Snapshot, opts Options) {
	defer e.wg.Done()
	defer func() {
		e.mu.Lock()
		delete(e.jobs, j.id)
		e.mu.Unlock()
	}()

	logger := logging.WithExportID(e.logger, j.id)
	outputPath := filepath.Join(e.stagingDir, j.id+".mp4")
	scratchDir := filepath.Join(e.stagingDir, j.id)

	fail := func(err error) {
		if removeErr := os.RemoveAll(scratchDir); removeErr != nil {
			logger.Warn("scratch dir cleanup failed", slog.String("error", removeErr.Error()))
		}
		_ = os.Remove(outputPath)
		msg := err.Error()
		if ctx.Err() != nil {
			msg = "cancelled"
		}
		logger.Error("export failed", slog.String("error", msg))
		e.setStage(j, StageError, -1, "", msg, "")
	}

	if len(snap.Clips) == 0 {
		fail(ErrNoVideoClips)
		return
	}

	e.setStage(j, StageStaging, 0, "staging assets", "", "")
	assetPaths, err := e.stageAssets(ctx, snap, scratchDir)
	if err != nil {
		fail(err)
		return
	}

	inv, err := BuildInvocation(&snap, assetPaths, opts, outputPath)
	if err != nil {
		fail(err)
		return
	}
	logger.Info("export starting",
		slog.Int("inputs", len(inv.Inputs)),
		slog.Int("width", opts.Width),
		slog.Int("height", opts.Height),
		slog.Float64("duration", opts.TotalDuration))

	e.setStage(j, StageProcessing, 0, "rendering", "", "")
	err = e.ffmpeg.Encode(ctx, inv, func(pct float64) {
		p := int(pct)
		if p > 99 {
			p = 99
		}
		e.mu.Lock()
		stale := p <= j.progress
		e.mu.Unlock()
		if stale {
			return
		}
		e.setStage(j, StageProcessing, p, "rendering", "", "")
	})
	if err != nil {
		fail(err)
		return
	}

	if err := os.RemoveAll(scratchDir); err != nil {
		logger.Warn("scratch dir cleanup failed", slog.String("error", err.Error()))
	}
	logger.Info("export complete", slog.String("output", outputPath))
	e.setStage(j, StageComplete, 100, "done", "", outputPath)
}

// stageAssets copies each referenced asset's stored bytes into the scratch
// directory, named by asset id so the filter builder can address them.
func (e *Exporter) stageAssets(ctx context.Context, snap timeline.Snapshot, scratchDir string) (map[string]string, error) {
	if err := os.MkdirAll(scratchDir, 0o755); err != nil {
		return nil, fmt.Errorf("create scratch dir: %w", err)
	}
	paths := make(map[string]string)
	for _, clip := range snap.Clips {
		if _, done := paths[clip.AssetID]; done {
			continue
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		blob, err := e.repo.GetBlob(ctx, clip.AssetID)
		if err != nil {
			return nil, fmt.Errorf("load asset %s: %w", clip.AssetID, err)
		}
		if blob == nil {
			// Dangling clip reference, contributes nothing.
			continue
		}
		path := filepath.Join(scratchDir, "asset-"+clip.AssetID+filepath.Ext(blob.Filename))
		if err := os.WriteFile(path, blob.Data, 0o644); err != nil {
			return nil, fmt.Errorf("stage asset %s: %w", clip.AssetID, err)
		}
		paths[clip.AssetID] = path
	}
	return paths, nil
}

// setStage persists the transition and notifies subscribers. A progress of
// -1 leaves the stored progress untouched.
func (e *Exporter) setStage(j *job, stage string, progress int, message, errMsg, outputPath string) {
	e.mu.Lock()
	if progress >= 0 {
		j.progress = progress
	}
	progress = j.progress
	e.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	rec := &store.ExportRecord{
		ID:         j.id,
		Stage:      stage,
		Progress:   progress,
		Message:    message,
		Error:      errMsg,
		OutputPath: outputPath,
		UpdatedAt:  time.Now().UTC(),
	}
	if err := e.repo.UpdateExport(ctx, rec); err != nil {
		e.logger.Warn("export record update failed",
			slog.String("export_id", j.id), slog.String("error", err.Error()))
	}
	e.publish(Status{ID: j.id, Stage: stage, Progress: progress, Message: message, Error: errMsg})
}
