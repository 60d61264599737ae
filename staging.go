package livecam

import (
	"fmt"
	"sync"
)

// StagedConfig holds configuration accepted before the engine exists.
// A nil field has not been set.
type StagedConfig struct {
	Audio  *AudioConfig
	Video  *VideoConfig
	Camera *CameraPosition
	Muted  *bool
	Zoom   *float64
}

// IsZero reports whether no field is pending.
func (c StagedConfig) IsZero() bool {
	return c.Audio == nil && c.Video == nil && c.Camera == nil && c.Muted == nil && c.Zoom == nil
}

// CameraResolver maps a camera position to a capture device.
type CameraResolver func(pos CameraPosition) (DeviceInfo, error)

// applyTo pushes every set field into e.
func (c StagedConfig) applyTo(e Engine, resolve CameraResolver) error {
	if c.Audio != nil {
		if err := e.SetAudioConfig(*c.Audio); err != nil {
			return fmt.Errorf("apply audio config: %w", err)
		}
	}
	if c.Video != nil {
		if err := e.SetVideoConfig(*c.Video); err != nil {
			return fmt.Errorf("apply video config: %w", err)
		}
	}
	if c.Camera != nil {
		device, err := resolve(*c.Camera)
		if err != nil {
			return fmt.Errorf("resolve %s camera: %w", *c.Camera, err)
		}
		if device.DeviceID != e.Camera().DeviceID {
			if err := e.AttachCamera(device); err != nil {
				return fmt.Errorf("attach %s camera: %w", *c.Camera, err)
			}
		}
	}
	if c.Muted != nil {
		if err := e.SetMuted(*c.Muted); err != nil {
			return fmt.Errorf("apply mute: %w", err)
		}
	}
	if c.Zoom != nil {
		if err := e.SetZoom(*c.Zoom); err != nil {
			return fmt.Errorf("apply zoom: %w", err)
		}
	}
	return nil
}

// ConfigStaging holds at most one pending value per property. Setting a
// property overwrites any pending value of the same kind.
type ConfigStaging struct {
	mu        sync.Mutex
	pending   StagedConfig
	committed StagedConfig // values already drained into an engine
	version   uint64
}

func (s *ConfigStaging) SetAudio(cfg AudioConfig) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pending.Audio = &cfg
	s.version++
}

func (s *ConfigStaging) SetVideo(cfg VideoConfig) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pending.Video = &cfg
	s.version++
}

func (s *ConfigStaging) SetCamera(pos CameraPosition) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pending.Camera = &pos
	s.version++
}

func (s *ConfigStaging) SetMuted(muted bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pending.Muted = &muted
	s.version++
}

func (s *ConfigStaging) SetZoom(factor float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pending.Zoom = &factor
	s.version++
}

// Snapshot returns a copy of the pending configuration.
func (s *ConfigStaging) Snapshot() StagedConfig {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pending.clone()
}

// Effective returns the pending values layered over those already drained,
// i.e. what a reader should see while the engine is still being built.
func (s *ConfigStaging) Effective() StagedConfig {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.committed.merge(s.pending).clone()
}

// Empty reports whether nothing is pending.
func (s *ConfigStaging) Empty() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pending.IsZero()
}

// DrainAndApply applies the pending configuration to e and clears it.
//
// The engine calls run without holding the staging lock. If a setter lands
// while they run, nothing is cleared and drained is false; the caller loops,
// re-applying the whole snapshot, which is harmless because every field is
// last-write-wins. On error the pending values stay staged.
func (s *ConfigStaging) DrainAndApply(e Engine, resolve CameraResolver) (applied StagedConfig, drained bool, err error) {
	s.mu.Lock()
	snap := s.pending.clone()
	version := s.version
	s.mu.Unlock()

	if snap.IsZero() {
		return snap, true, nil
	}
	if err := snap.applyTo(e, resolve); err != nil {
		return StagedConfig{}, false, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.version != version {
		return snap, false, nil
	}
	s.committed = s.committed.merge(snap)
	s.pending = StagedConfig{}
	return snap, true, nil
}

// Restore stages the fields of c that have not been set again since they
// were drained.
func (s *ConfigStaging) Restore(c StagedConfig) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.pending.Audio == nil {
		s.pending.Audio = c.Audio
	}
	if s.pending.Video == nil {
		s.pending.Video = c.Video
	}
	if s.pending.Camera == nil {
		s.pending.Camera = c.Camera
	}
	if s.pending.Muted == nil {
		s.pending.Muted = c.Muted
	}
	if s.pending.Zoom == nil {
		s.pending.Zoom = c.Zoom
	}
}

// merge overlays the set fields of o onto c.
func (c StagedConfig) merge(o StagedConfig) StagedConfig {
	if o.Audio != nil {
		c.Audio = o.Audio
	}
	if o.Video != nil {
		c.Video = o.Video
	}
	if o.Camera != nil {
		c.Camera = o.Camera
	}
	if o.Muted != nil {
		c.Muted = o.Muted
	}
	if o.Zoom != nil {
		c.Zoom = o.Zoom
	}
	return c
}

func (c StagedConfig) clone() StagedConfig {
	var out StagedConfig
	if c.Audio != nil {
		v := *c.Audio
		out.Audio = &v
	}
	if c.Video != nil {
		v := *c.Video
		out.Video = &v
	}
	if c.Camera != nil {
		v := *c.Camera
		out.Camera = &v
	}
	if c.Muted != nil {
		v := *c.Muted
		out.Muted = &v
	}
	if c.Zoom != nil {
		v := *c.Zoom
		out.Zoom = &v
	}
	return out
}
