package livecam

import (
	"fmt"
	"sync"

	"github.com/google/uuid"
)

// SurfaceID identifies a preview surface registered with the host UI.
type SurfaceID string

// Surface receives preview frames from an engine. The host renders from it
// by polling LatestFrame; rendering itself happens outside this package.
type Surface struct {
	id SurfaceID

	mu      sync.Mutex
	frame   VideoFrame
	hasData bool
	frames  uint64
}

// ID returns the surface identifier.
func (s *Surface) ID() SurfaceID { return s.id }

// PushFrame copies f into the surface. It is safe to call from a capture
// goroutine while the host reads.
func (s *Surface) PushFrame(f *VideoFrame) {
	s.mu.Lock()
	defer s.mu.Unlock()
	f.CopyInto(&s.frame)
	s.hasData = true
	s.frames++
}

// LatestFrame returns a copy of the most recent frame, or nil if none has
// arrived yet.
func (s *Surface) LatestFrame() *VideoFrame {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.hasData {
		return nil
	}
	return s.frame.Clone()
}

// FrameCount returns the number of frames pushed so far.
func (s *Surface) FrameCount() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.frames
}

// SurfaceRegistry allocates and tracks preview surfaces.
type SurfaceRegistry struct {
	mu       sync.RWMutex
	surfaces map[SurfaceID]*Surface
}

// NewSurfaceRegistry creates an empty registry.
func NewSurfaceRegistry() *SurfaceRegistry {
	return &SurfaceRegistry{surfaces: make(map[SurfaceID]*Surface)}
}

// Allocate registers a new surface.
func (r *SurfaceRegistry) Allocate() (*Surface, error) {
	id, err := uuid.NewRandom()
	if err != nil {
		return nil, fmt.Errorf("failed to allocate surface id: %w", err)
	}
	s := &Surface{id: SurfaceID(id.String())}

	r.mu.Lock()
	r.surfaces[s.id] = s
	r.mu.Unlock()
	return s, nil
}

// Lookup returns the surface registered under id.
func (r *SurfaceRegistry) Lookup(id SurfaceID) (*Surface, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.surfaces[id]
	return s, ok
}

// Release unregisters id. Releasing an unknown id is a no-op.
func (r *SurfaceRegistry) Release(id SurfaceID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.surfaces, id)
}

// Len returns the number of registered surfaces.
func (r *SurfaceRegistry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.surfaces)
}
