package media

import (
	"context"
	"fmt"
	"image"
	"image/color"
	"sync"
)

// StubFFmpeg is a test double. It serves canned probe results, synthesizes
// solid-color frames, and records encode invocations without running
// anything.
type StubFFmpeg struct {
	mu sync.Mutex

	ProbeResults map[string]*ProbeResult
	DefaultProbe *ProbeResult
	ProbeErr     error
	DecodeErr    error
	EncodeErr    error
	FrameSize    image.Point

	DecodeCalls []float64
	Invocations []*EncodeInvocation

	// When EncodeRelease is set, Encode signals EncodeStarted (if set) and
	// then blocks until the channel is closed or ctx is cancelled.
	EncodeStarted chan struct{}
	EncodeRelease chan struct{}

	// Same hooks for DecodeFrame.
	DecodeStarted chan struct{}
	DecodeRelease chan struct{}
}

func NewStubFFmpeg() *StubFFmpeg {
	return &StubFFmpeg{
		ProbeResults: make(map[string]*ProbeResult),
		FrameSize:    image.Pt(64, 36),
	}
}

func (f *StubFFmpeg) Probe(ctx context.Context, filePath string) (*ProbeResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.ProbeErr != nil {
		return nil, f.ProbeErr
	}
	if r, ok := f.ProbeResults[filePath]; ok {
		return r, nil
	}
	if f.DefaultProbe != nil {
		return f.DefaultProbe, nil
	}
	return nil, fmt.Errorf("no probe result for %s", filePath)
}

func (f *StubFFmpeg) DecodeFrame(ctx context.Context, filePath string, offset float64) (image.Image, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	f.mu.Lock()
	err := f.DecodeErr
	started := f.DecodeStarted
	release := f.DecodeRelease
	f.mu.Unlock()
	if err != nil {
		return nil, err
	}
	if release != nil {
		if started != nil {
			started <- struct{}{}
		}
		select {
		case <-release:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.DecodeCalls = append(f.DecodeCalls, offset)

	// Gray level encodes the offset so tests can assert which frame landed.
	img := image.NewRGBA(image.Rect(0, 0, f.FrameSize.X, f.FrameSize.Y))
	level := uint8(int(offset*10) % 256)
	for i := range img.Pix {
		img.Pix[i] = 255
	}
	img.SetRGBA(0, 0, color.RGBA{R: level, G: level, B: level, A: 255})
	return img, nil
}

func (f *StubFFmpeg) Encode(ctx context.Context, inv *EncodeInvocation, onProgress func(float64)) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	f.mu.Lock()
	f.Invocations = append(f.Invocations, inv)
	err := f.EncodeErr
	started := f.EncodeStarted
	release := f.EncodeRelease
	f.mu.Unlock()
	if err != nil {
		return err
	}
	if release != nil {
		if started != nil {
			started <- struct{}{}
		}
		select {
		case <-release:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	if onProgress != nil {
		onProgress(100)
	}
	return nil
}

// InvocationCount reports how many encodes were attempted.
func (f *StubFFmpeg) InvocationCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.Invocations)
}
