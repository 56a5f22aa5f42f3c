package store

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/clipforge/clipforge-engine/internal/timeline"
)

// DefaultSaveInterval is how often a dirty timeline is flushed to disk.
const DefaultSaveInterval = 500 * time.Millisecond

// Saver persists timeline snapshots whenever the structure changes.
// Writes are debounced on a fixed interval; transport and selection events
// are ignored since the playhead is not worth persisting every tick.
type Saver struct {
	repo     Repository
	tl       *timeline.Timeline
	logger   *slog.Logger
	interval time.Duration
	done     chan struct{}
}

func NewSaver(repo Repository, tl *timeline.Timeline, logger *slog.Logger) *Saver {
	return &Saver{
		repo:     repo,
		tl:       tl,
		logger:   logger,
		interval: DefaultSaveInterval,
		done:     make(chan struct{}),
	}
}

// Run blocks until ctx is cancelled, then flushes one final time so a
// clean shutdown never loses the last edit.
func (s *Saver) Run(ctx context.Context) {
	defer close(s.done)

	events, unsubscribe := s.tl.Subscribe()
	defer unsubscribe()

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	dirty := false
	for {
		select {
		case <-ctx.Done():
			if dirty {
				s.flush()
			}
			return
		case ev := <-events:
			switch ev.Type {
			case timeline.EventTimeline, timeline.EventAssets, timeline.EventProjectSet:
				dirty = true
			}
		case <-ticker.C:
			if dirty {
				s.flush()
				dirty = false
			}
		}
	}
}

// Wait blocks until Run has performed its final flush and returned.
// Callers must wait on it before closing the database.
func (s *Saver) Wait() {
	<-s.done
}

func (s *Saver) flush() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := SaveTimeline(ctx, s.repo, s.tl); err != nil {
		s.logger.Warn("timeline save failed", "error", err)
	}
}

// SaveTimeline serializes the current snapshot into the state store.
func SaveTimeline(ctx context.Context, repo Repository, tl *timeline.Timeline) error {
	snap := tl.Snapshot()
	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("marshal timeline: %w", err)
	}
	return repo.SaveState(ctx, StateKeyTimeline, string(data))
}

// LoadTimeline restores a previously saved snapshot. A missing state row
// is not an error; the timeline keeps its defaults.
func LoadTimeline(ctx context.Context, repo Repository, tl *timeline.Timeline) error {
	data, err := repo.LoadState(ctx, StateKeyTimeline)
	if err != nil {
		return fmt.Errorf("load timeline state: %w", err)
	}
	if data == "" {
		return nil
	}
	var snap timeline.Snapshot
	if err := json.Unmarshal([]byte(data), &snap); err != nil {
		return fmt.Errorf("unmarshal timeline state: %w", err)
	}
	tl.Restore(snap)
	return nil
}
