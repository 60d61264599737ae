package livecam

import (
	"fmt"
	"math"
	"time"
)

// VideoConfig configures video capture and encoding.
type VideoConfig struct {
	Width            int           // Frame width (default: 1280)
	Height           int           // Frame height (default: 720)
	FPS              int           // Frames per second (default: 30)
	Bitrate          int           // Target bitrate in bits/s (default: 2_000_000)
	KeyframeInterval time.Duration // Max keyframe interval (default: 2s)
}

// DefaultVideoConfig returns the video configuration used when none is set.
func DefaultVideoConfig() VideoConfig {
	return VideoConfig{
		Width:            1280,
		Height:           720,
		FPS:              30,
		Bitrate:          2_000_000,
		KeyframeInterval: 2 * time.Second,
	}
}

// WithDefaults returns c with zero fields replaced by their defaults.
func (c VideoConfig) WithDefaults() VideoConfig {
	d := DefaultVideoConfig()
	if c.Width <= 0 {
		c.Width = d.Width
	}
	if c.Height <= 0 {
		c.Height = d.Height
	}
	if c.FPS <= 0 {
		c.FPS = d.FPS
	}
	if c.Bitrate <= 0 {
		c.Bitrate = d.Bitrate
	}
	if c.KeyframeInterval <= 0 {
		c.KeyframeInterval = d.KeyframeInterval
	}
	return c
}

// Validate checks c after defaults have been applied.
func (c VideoConfig) Validate() error {
	c = c.WithDefaults()
	if c.Width%2 != 0 || c.Height%2 != 0 {
		return fmt.Errorf("video size %dx%d must be even for I420", c.Width, c.Height)
	}
	if c.FPS > 240 {
		return fmt.Errorf("frame rate %d out of range", c.FPS)
	}
	return nil
}

// SameSize reports whether c and o have the same resolution.
func (c VideoConfig) SameSize(o VideoConfig) bool {
	return c.Width == o.Width && c.Height == o.Height
}

// AudioConfig configures audio capture and encoding.
type AudioConfig struct {
	SampleRate int // Samples per second (default: 44100)
	Channels   int // Channel count (default: 2)
	Bitrate    int // Target bitrate in bits/s (default: 128_000)
}

// DefaultAudioConfig returns the audio configuration used when none is set.
func DefaultAudioConfig() AudioConfig {
	return AudioConfig{
		SampleRate: 44100,
		Channels:   2,
		Bitrate:    128_000,
	}
}

// WithDefaults returns c with zero fields replaced by their defaults.
func (c AudioConfig) WithDefaults() AudioConfig {
	d := DefaultAudioConfig()
	if c.SampleRate <= 0 {
		c.SampleRate = d.SampleRate
	}
	if c.Channels <= 0 {
		c.Channels = d.Channels
	}
	if c.Bitrate <= 0 {
		c.Bitrate = d.Bitrate
	}
	return c
}

// Validate checks c after defaults have been applied.
func (c AudioConfig) Validate() error {
	c = c.WithDefaults()
	if c.Channels > 2 {
		return fmt.Errorf("channel count %d not supported", c.Channels)
	}
	return nil
}

const (
	// DefaultZoom is reported before a zoom factor has been set.
	DefaultZoom = 1.0
	// MaxZoom is the largest zoom factor engines accept.
	MaxZoom = 10.0
)

// clampZoom bounds z to [1, MaxZoom].
func clampZoom(z float64) float64 {
	if math.IsNaN(z) || z < DefaultZoom {
		return DefaultZoom
	}
	if z > MaxZoom {
		return MaxZoom
	}
	return z
}
