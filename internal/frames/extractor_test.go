package frames

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/clipforge/clipforge-engine/internal/logging"
	"github.com/clipforge/clipforge-engine/internal/media"
	"github.com/clipforge/clipforge-engine/internal/timeline"
)

func newTestExtractor(t *testing.T, stub *media.StubFFmpeg) (*Extractor, *timeline.Timeline, *Library) {
	t.Helper()
	tl := timeline.New(timeline.Project{Width: 640, Height: 360, FPS: 24})
	lib := NewLibrary()
	ex := NewExtractor(context.Background(), stub, tl, lib, logging.NewLogger("error"))
	return ex, tl, lib
}

func TestTotalFrames(t *testing.T) {
	tests := []struct {
		name     string
		duration float64
		rate     float64
		want     int
	}{
		{name: "exact", duration: 1, rate: 30, want: 30},
		{name: "ceil", duration: 1.01, rate: 30, want: 31},
		{name: "default rate", duration: 2, rate: 0, want: 60},
		{name: "zero duration", duration: 0, rate: 30, want: 0},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := TotalFrames(tc.duration, tc.rate); got != tc.want {
				t.Errorf("TotalFrames(%v, %v) = %d, want %d", tc.duration, tc.rate, got, tc.want)
			}
		})
	}
}

func TestExtractor_FullRun(t *testing.T) {
	stub := media.NewStubFFmpeg()
	ex, tl, lib := newTestExtractor(t, stub)

	asset := tl.AddAsset(timeline.Asset{
		Name: "v.mp4", Kind: timeline.KindVideo, Duration: 0.5, FrameRate: 10, TotalFrames: 5,
	})

	ex.Start(asset, "/tmp/v.mp4")
	ex.Wait()

	store := lib.Get(asset.ID)
	if store == nil || store.Len() != 5 {
		t.Fatalf("store length = %v, want 5", store.Len())
	}

	got, _ := tl.GetAsset(asset.ID)
	if got.ProcessingProgress != 100 || got.Processing {
		t.Errorf("asset after extraction = %+v, want complete", got)
	}
	if got.DecodedFrames != 5 {
		t.Errorf("DecodedFrames = %d, want 5", got.DecodedFrames)
	}

	// Seeks must be sequential at i/rate.
	want := []float64{0, 0.1, 0.2, 0.3, 0.4}
	if len(stub.DecodeCalls) != len(want) {
		t.Fatalf("decode calls = %v", stub.DecodeCalls)
	}
	for i, off := range want {
		if diff := stub.DecodeCalls[i] - off; diff > 1e-9 || diff < -1e-9 {
			t.Errorf("decode call %d at %v, want %v", i, stub.DecodeCalls[i], off)
		}
	}
}

func TestExtractor_ProgressMonotonic(t *testing.T) {
	stub := media.NewStubFFmpeg()
	ex, tl, _ := newTestExtractor(t, stub)

	asset := tl.AddAsset(timeline.Asset{
		Name: "v.mp4", Kind: timeline.KindVideo, Duration: 1, FrameRate: 10, TotalFrames: 10,
	})

	events, cancel := tl.Subscribe()
	defer cancel()

	ex.Start(asset, "/tmp/v.mp4")
	ex.Wait()

	last := -1.0
	deadline := time.After(time.Second)
	for {
		select {
		case <-events:
			got, _ := tl.GetAsset(asset.ID)
			if got.ProcessingProgress < last {
				t.Fatalf("progress regressed: %v -> %v", last, got.ProcessingProgress)
			}
			last = got.ProcessingProgress
			if last == 100 {
				return
			}
		case <-deadline:
			t.Fatalf("progress never reached 100, last = %v", last)
		}
	}
}

func TestExtractor_DecodeFailureMarksAssetFailed(t *testing.T) {
	stub := media.NewStubFFmpeg()
	stub.DecodeErr = errors.New("corrupt stream")
	ex, tl, lib := newTestExtractor(t, stub)

	asset := tl.AddAsset(timeline.Asset{
		Name: "bad.mp4", Kind: timeline.KindVideo, Duration: 1, FrameRate: 10, TotalFrames: 10,
	})

	ex.Start(asset, "/tmp/bad.mp4")
	ex.Wait()

	got, _ := tl.GetAsset(asset.ID)
	if !got.Failed {
		t.Error("asset must be marked failed after a decode error")
	}
	if store := lib.Get(asset.ID); store != nil && store.Len() != 0 {
		t.Error("frames must be released on failure")
	}
}

func TestExtractor_CancelReleasesFrames(t *testing.T) {
	stub := media.NewStubFFmpeg()
	ex, tl, lib := newTestExtractor(t, stub)

	asset := tl.AddAsset(timeline.Asset{
		Name: "v.mp4", Kind: timeline.KindVideo, Duration: 10, FrameRate: 30, TotalFrames: 300,
	})

	ex.Start(asset, "/tmp/v.mp4")
	ex.Cancel(asset.ID)
	ex.Wait()

	if lib.Get(asset.ID) != nil {
		t.Error("library must forget a cancelled asset")
	}
}

func TestExtractor_RestartKeepsCancelWired(t *testing.T) {
	stub := media.NewStubFFmpeg()
	stub.DecodeStarted = make(chan struct{}, 4)
	stub.DecodeRelease = make(chan struct{})
	ex, tl, lib := newTestExtractor(t, stub)

	asset := tl.AddAsset(timeline.Asset{
		Name: "v.mp4", Kind: timeline.KindVideo, Duration: 10, FrameRate: 30, TotalFrames: 300,
	})

	// First run parks inside a decode, then gets replaced by a second
	// Start for the same asset. The first run's exit must not deregister
	// the replacement.
	ex.Start(asset, "/tmp/v.mp4")
	<-stub.DecodeStarted
	ex.Start(asset, "/tmp/v.mp4")
	<-stub.DecodeStarted

	ex.Cancel(asset.ID)

	done := make(chan struct{})
	go func() {
		ex.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("replacement extraction survived Cancel")
	}

	if lib.Get(asset.ID) != nil {
		t.Error("library must forget a cancelled asset")
	}
}

func TestExtractor_ResumeAllAfterRestart(t *testing.T) {
	stub := media.NewStubFFmpeg()
	ex, tl, lib := newTestExtractor(t, stub)

	mediaDir := t.TempDir()
	restored := tl.AddAsset(timeline.Asset{
		Name: "v.mp4", Kind: timeline.KindVideo, Duration: 0.5, FrameRate: 10, TotalFrames: 5,
		Processing: false, ProcessingProgress: 100, DecodedFrames: 5,
	})
	if err := os.WriteFile(filepath.Join(mediaDir, restored.ID+".mp4"), []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	orphan := tl.AddAsset(timeline.Asset{
		Name: "gone.mp4", Kind: timeline.KindVideo, Duration: 1, FrameRate: 10, TotalFrames: 10,
	})
	song := tl.AddAsset(timeline.Asset{Name: "song.mp3", Kind: timeline.KindAudio, Duration: 10})

	ex.ResumeAll(mediaDir)
	ex.Wait()

	store := lib.Get(restored.ID)
	if store == nil || store.Len() != 5 {
		t.Fatalf("restored store length = %v, want a full re-extraction", store.Len())
	}
	got, _ := tl.GetAsset(restored.ID)
	if got.ProcessingProgress != 100 || got.Processing {
		t.Errorf("restored asset = %+v, want complete", got)
	}

	gone, _ := tl.GetAsset(orphan.ID)
	if !gone.Failed {
		t.Error("asset without a media file must be marked failed")
	}
	if lib.Get(song.ID) != nil || len(stub.DecodeCalls) != 5 {
		t.Errorf("audio asset must be skipped, decode calls = %v", stub.DecodeCalls)
	}
}

func TestExtractor_ImageDecodesSingleFrame(t *testing.T) {
	stub := media.NewStubFFmpeg()
	ex, tl, lib := newTestExtractor(t, stub)

	asset := tl.AddAsset(timeline.Asset{Name: "pic.png", Kind: timeline.KindImage})
	ex.Start(asset, "/tmp/pic.png")
	ex.Wait()

	store := lib.Get(asset.ID)
	if store == nil || store.Len() != 1 {
		t.Fatalf("image store length = %v, want 1", store.Len())
	}
	got, _ := tl.GetAsset(asset.ID)
	if got.ProcessingProgress != 100 {
		t.Errorf("image asset progress = %v, want 100", got.ProcessingProgress)
	}
}

func TestExtractor_NonVideoIgnored(t *testing.T) {
	stub := media.NewStubFFmpeg()
	ex, tl, lib := newTestExtractor(t, stub)

	asset := tl.AddAsset(timeline.Asset{Name: "song.mp3", Kind: timeline.KindAudio, Duration: 10})
	ex.Start(asset, "/tmp/song.mp3")
	ex.Wait()

	if lib.Get(asset.ID) != nil {
		t.Error("audio assets must not get frame stores")
	}
	if len(stub.DecodeCalls) != 0 {
		t.Error("audio assets must not be decoded")
	}
}

func TestStore_AppendOnlyIndexStable(t *testing.T) {
	stub := media.NewStubFFmpeg()
	store := NewStore()

	frame, _ := stub.DecodeFrame(context.Background(), "x", 0)
	store.Append(frame)
	first := store.Frame(0)

	frame2, _ := stub.DecodeFrame(context.Background(), "x", 0.1)
	store.Append(frame2)

	if store.Frame(0) != first {
		t.Error("existing indexes must be stable while the store grows")
	}
	if store.Frame(5) != nil {
		t.Error("unwritten index must read as nil")
	}
}
