// Package frames extracts video assets into indexed bitmap sequences and
// owns the per-asset frame caches the preview reads from.
package frames

import (
	"image"
	"sync"
)

// Store is an append-only, index-stable frame sequence for one asset.
// Readers may observe it growing while extraction runs; an index that was
// valid once stays valid until the store is released.
type Store struct {
	mu     sync.RWMutex
	frames []image.Image
}

func NewStore() *Store {
	return &Store{}
}

func (s *Store) Append(frame image.Image) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.frames = append(s.frames, frame)
	return len(s.frames)
}

// Frame returns the frame at index, or nil if the index has not been
// decoded yet (or the store was released).
func (s *Store) Frame(index int) image.Image {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if index < 0 || index >= len(s.frames) {
		return nil
	}
	return s.frames[index]
}

func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.frames)
}

// Release drops all decoded frames so the backing memory can be reclaimed.
func (s *Store) Release() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.frames = nil
}

// Library maps asset ids to their frame stores. Each store is privately
// owned by its asset's extraction task; the library itself only tracks
// membership.
type Library struct {
	mu     sync.RWMutex
	stores map[string]*Store
}

func NewLibrary() *Library {
	return &Library{stores: make(map[string]*Store)}
}

func (l *Library) Create(assetID string) *Store {
	l.mu.Lock()
	defer l.mu.Unlock()
	s := NewStore()
	l.stores[assetID] = s
	return s
}

func (l *Library) Get(assetID string) *Store {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.stores[assetID]
}

// Remove releases the asset's frames and forgets the store.
func (l *Library) Remove(assetID string) {
	l.mu.Lock()
	s := l.stores[assetID]
	delete(l.stores, assetID)
	l.mu.Unlock()
	if s != nil {
		s.Release()
	}
}
