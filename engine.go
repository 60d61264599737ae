package livecam

import (
	"log/slog"
)

// Engine is the capture/streaming component wrapped by a Manager.
//
// Engines are assumed to require single-thread affinity: the Manager only
// ever calls an Engine from its engine queue, so implementations need no
// locking of their own for these methods. Delegate callbacks may arrive on
// any goroutine.
type Engine interface {
	// StartPreview begins camera capture into the preview surface.
	StartPreview() error

	// StopPreview halts camera capture.
	StopPreview() error

	// StartStreaming publishes to url under streamKey.
	StartStreaming(streamKey, url string) error

	// StopStreaming stops publishing. It is a no-op when not publishing.
	StopStreaming() error

	AudioConfig() AudioConfig
	SetAudioConfig(cfg AudioConfig) error

	VideoConfig() VideoConfig
	SetVideoConfig(cfg VideoConfig) error

	// Camera returns the attached capture device.
	Camera() DeviceInfo

	// AttachCamera switches capture to device.
	AttachCamera(device DeviceInfo) error

	Muted() bool
	SetMuted(muted bool) error

	Zoom() float64
	SetZoom(factor float64) error

	// SetDelegate registers the receiver of engine-originated events.
	SetDelegate(observer EventObserver)

	// Close releases all engine resources.
	Close() error
}

// EngineOptions is passed to an EngineFactory. The Manager always builds
// engines with no initial configuration; staged values are applied
// afterwards.
type EngineOptions struct {
	Surface *Surface
	Audio   *AudioConfig
	Video   *VideoConfig
	Camera  *DeviceInfo
	Logger  *slog.Logger
}

// EngineFactory builds an Engine. It may take many seconds and is only ever
// invoked from the engine queue.
type EngineFactory func(opts EngineOptions) (Engine, error)
