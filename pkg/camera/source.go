package camera

import (
	"context"
	"errors"
	"sync"

	"github.com/teslashibe/go-moodguard/pkg/detection"
)

// ErrNoFrame is returned by JPEG before the first frame is captured.
var ErrNoFrame = errors.New("camera: no frame captured yet")

// Source is a live frame source.
type Source interface {
	// Ready reports whether a frame is available.
	Ready() bool

	// JPEG returns the most recent frame.
	JPEG() ([]byte, error)

	// Close stops capture and releases the device.
	Close() error
}

// Opener opens a source for cfg.
type Opener func(ctx context.Context, cfg Config) (Source, error)

// Still is a Source that always serves the same image.
type Still struct {
	data []byte

	mu     sync.Mutex
	closed bool
}

// NewStill creates a source serving data. An empty image is never ready.
func NewStill(data []byte) *Still {
	return &Still{data: data}
}

// Ready implements Source.
func (s *Still) Ready() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return !s.closed && len(s.data) > 0
}

// JPEG implements Source.
func (s *Still) JPEG() ([]byte, error) {
	if !s.Ready() {
		return nil, ErrNoFrame
	}
	return s.data, nil
}

// Close implements Source.
func (s *Still) Close() error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	return nil
}

// Closed reports whether Close was called.
func (s *Still) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// Registry maps frame refs to sources so the detector can address frames
// by name.
type Registry struct {
	mu      sync.RWMutex
	sources map[string]Source
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{sources: make(map[string]Source)}
}

// Register binds ref to src, replacing any previous binding.
func (r *Registry) Register(ref string, src Source) {
	r.mu.Lock()
	r.sources[ref] = src
	r.mu.Unlock()
}

// Unregister removes ref.
func (r *Registry) Unregister(ref string) {
	r.mu.Lock()
	delete(r.sources, ref)
	r.mu.Unlock()
}

// Resolve implements detection.FrameResolver.
func (r *Registry) Resolve(ref string) (detection.Frame, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	src, ok := r.sources[ref]
	if !ok {
		return nil, false
	}
	return src, true
}

// Len returns the number of registered refs.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sources)
}
