package livecam

import (
	"context"
	"fmt"
	"io"
)

// SourceType identifies the type of media source.
type SourceType int

const (
	SourceTypeUnknown     SourceType = iota
	SourceTypeCamera                 // Camera capture (platform-specific)
	SourceTypeTestPattern            // Synthetic test pattern generator
	SourceTypeCustom                 // User-provided source
)

func (s SourceType) String() string {
	switch s {
	case SourceTypeCamera:
		return "Camera"
	case SourceTypeTestPattern:
		return "TestPattern"
	case SourceTypeCustom:
		return "Custom"
	default:
		return "Unknown"
	}
}

// SourceConfig describes a media source's capabilities and configuration.
type SourceConfig struct {
	Width      int         // Frame width in pixels
	Height     int         // Frame height in pixels
	FPS        int         // Frames per second
	Format     PixelFormat // Pixel format
	SourceType SourceType  // Type of source
}

// VideoFrameCallback is called when a frame is available (push mode).
type VideoFrameCallback func(frame *VideoFrame)

// VideoSource produces raw video frames.
type VideoSource interface {
	io.Closer

	// Start begins capture/generation.
	Start(ctx context.Context) error

	// Stop halts capture/generation.
	Stop() error

	// ReadFrame reads the next frame (blocking).
	// The returned frame is valid until the next ReadFrame call or Close.
	ReadFrame(ctx context.Context) (*VideoFrame, error)

	// SetCallback sets push-mode callback for frame delivery.
	// When set, frames are pushed to the callback instead of being buffered.
	SetCallback(cb VideoFrameCallback)

	// Config returns the source configuration.
	Config() SourceConfig
}

// CaptureSourceFactory opens a VideoSource for a camera device at the given
// video configuration.
type CaptureSourceFactory func(device DeviceInfo, cfg VideoConfig) (VideoSource, error)

// TestPatternCapture is the default CaptureSourceFactory. It opens a
// TestPatternSource, so every camera position renders its own scene.
func TestPatternCapture(device DeviceInfo, cfg VideoConfig) (VideoSource, error) {
	if device.Kind != DeviceKindVideoInput {
		return nil, fmt.Errorf("device %q is not a camera", device.DeviceID)
	}
	return NewTestPatternSource(device, cfg), nil
}
