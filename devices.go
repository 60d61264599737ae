package livecam

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
)

// DeviceKind represents the type of media device.
type DeviceKind int

const (
	DeviceKindVideoInput DeviceKind = iota // Camera
	DeviceKindAudioInput                   // Microphone
)

func (k DeviceKind) String() string {
	switch k {
	case DeviceKindVideoInput:
		return "videoinput"
	case DeviceKindAudioInput:
		return "audioinput"
	default:
		return "unknown"
	}
}

// DeviceInfo describes a capture device.
type DeviceInfo struct {
	DeviceID string         // Unique identifier for the device
	GroupID  string         // Devices with the same GroupID belong to one physical unit
	Kind     DeviceKind     // Device type
	Label    string         // Human-readable device name
	Position CameraPosition // Facing direction, for cameras
}

// DeviceProvider enumerates capture devices. Enumeration may be slow; a
// DeviceCache keeps callers from repeating it.
type DeviceProvider interface {
	// ListVideoDevices returns available video input devices.
	ListVideoDevices(ctx context.Context) ([]DeviceInfo, error)

	// ListAudioInputDevices returns available audio input devices.
	ListAudioInputDevices(ctx context.Context) ([]DeviceInfo, error)
}

// StaticDeviceProvider serves a fixed device list. It backs virtual cameras
// and tests.
type StaticDeviceProvider struct {
	Devices []DeviceInfo
}

// VirtualCameras returns a provider with one front and one back synthetic
// camera plus a synthetic microphone.
func VirtualCameras() *StaticDeviceProvider {
	return &StaticDeviceProvider{Devices: []DeviceInfo{
		{DeviceID: "virtual:back", GroupID: "virtual", Kind: DeviceKindVideoInput, Label: "Virtual Back Camera", Position: CameraPositionBack},
		{DeviceID: "virtual:front", GroupID: "virtual", Kind: DeviceKindVideoInput, Label: "Virtual Front Camera", Position: CameraPositionFront},
		{DeviceID: "virtual:mic", GroupID: "virtual", Kind: DeviceKindAudioInput, Label: "Virtual Microphone"},
	}}
}

func (p *StaticDeviceProvider) ListVideoDevices(ctx context.Context) ([]DeviceInfo, error) {
	return p.byKind(DeviceKindVideoInput), nil
}

func (p *StaticDeviceProvider) ListAudioInputDevices(ctx context.Context) ([]DeviceInfo, error) {
	return p.byKind(DeviceKindAudioInput), nil
}

func (p *StaticDeviceProvider) byKind(kind DeviceKind) []DeviceInfo {
	var out []DeviceInfo
	for _, d := range p.Devices {
		if d.Kind == kind {
			out = append(out, d)
		}
	}
	return out
}

// DeviceCacheConfig configures a DeviceCache.
type DeviceCacheConfig struct {
	// Queue runs enumeration. If nil the cache starts and owns its own.
	Queue   *Queue
	Logger  *slog.Logger
	Metrics *Metrics
}

// deviceCacheEntry is immutable once stored.
type deviceCacheEntry struct {
	devices   []DeviceInfo
	validAsOf uint64
}

// discovery is one in-flight enumeration shared by every caller that missed
// the cache while it ran.
type discovery struct {
	done    chan struct{}
	devices []DeviceInfo
	err     error
}

// DeviceCache memoizes device enumeration.
//
// AvailableDevices blocks the calling goroutine on a cache miss until the
// discovery queue has finished enumerating. That can take a long time on
// real hardware: do not call it from a latency-sensitive path. Use Warm once
// at startup instead, and let later lookups hit the cache.
type DeviceCache struct {
	provider  DeviceProvider
	queue     *Queue
	ownsQueue bool
	logger    *slog.Logger
	metrics   *Metrics

	mu         sync.Mutex
	entry      *deviceCacheEntry
	inflight   *discovery
	generation uint64
}

// NewDeviceCache creates a cache over provider.
func NewDeviceCache(provider DeviceProvider, cfg DeviceCacheConfig) *DeviceCache {
	c := &DeviceCache{
		provider: provider,
		queue:    cfg.Queue,
		logger:   cfg.Logger,
		metrics:  cfg.Metrics,
	}
	if c.queue == nil {
		c.queue = NewQueue("discovery")
		c.ownsQueue = true
	}
	if c.logger == nil {
		c.logger = slog.Default()
	}
	return c
}

// AvailableDevices returns every known device, enumerating on a miss.
// The returned slice is the caller's to keep.
func (c *DeviceCache) AvailableDevices() ([]DeviceInfo, error) {
	return c.AvailableDevicesContext(context.Background())
}

// AvailableDevicesContext is AvailableDevices with a bound on the wait. A
// canceled wait does not cancel the shared enumeration.
func (c *DeviceCache) AvailableDevicesContext(ctx context.Context) ([]DeviceInfo, error) {
	d, hit := c.lookup()
	if hit != nil {
		c.metrics.RecordDeviceCacheHit()
		return hit, nil
	}
	if d == nil {
		return nil, ErrQueueClosed
	}

	select {
	case <-d.done:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	if d.err != nil {
		return nil, d.err
	}
	return cloneDevices(d.devices), nil
}

// Warm starts enumeration if the cache is empty and returns immediately.
// The channel receives the outcome once and is then closed.
func (c *DeviceCache) Warm(ctx context.Context) <-chan error {
	out := make(chan error, 1)
	go func() {
		defer close(out)
		_, err := c.AvailableDevicesContext(ctx)
		out <- err
	}()
	return out
}

// Invalidate drops the cached entry. The next lookup enumerates again; an
// enumeration already running finishes for its waiters but is not cached.
func (c *DeviceCache) Invalidate() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entry = nil
	c.inflight = nil
	c.generation++
	c.logger.Debug("Device cache invalidated", slog.Uint64("generation", c.generation))
}

// Device looks up a device by ID.
func (c *DeviceCache) Device(id string) (DeviceInfo, error) {
	devices, err := c.AvailableDevices()
	if err != nil {
		return DeviceInfo{}, err
	}
	for _, d := range devices {
		if d.DeviceID == id {
			return d, nil
		}
	}
	return DeviceInfo{}, fmt.Errorf("%w: %s", ErrDeviceNotFound, id)
}

// DeviceForPosition returns the first camera facing pos. When no camera
// reports a position at all (desktop webcams), the first camera is used.
func (c *DeviceCache) DeviceForPosition(pos CameraPosition) (DeviceInfo, error) {
	devices, err := c.AvailableDevices()
	if err != nil {
		return DeviceInfo{}, err
	}
	var fallback *DeviceInfo
	for i := range devices {
		d := devices[i]
		if d.Kind != DeviceKindVideoInput {
			continue
		}
		if d.Position == pos {
			return d, nil
		}
		if d.Position == CameraPositionUnspecified && fallback == nil {
			fallback = &devices[i]
		}
	}
	if fallback != nil {
		return *fallback, nil
	}
	return DeviceInfo{}, fmt.Errorf("%w: no %s camera", ErrDeviceNotFound, pos)
}

// Close stops the discovery queue if the cache owns it.
func (c *DeviceCache) Close() {
	if c.ownsQueue {
		c.queue.Close()
	}
}

// lookup returns the cached devices, or the discovery to wait on. Both are
// nil only when the discovery queue is closed.
func (c *DeviceCache) lookup() (*discovery, []DeviceInfo) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.entry != nil {
		return nil, cloneDevices(c.entry.devices)
	}
	if c.inflight != nil {
		return c.inflight, nil
	}

	d := &discovery{done: make(chan struct{})}
	generation := c.generation
	if err := c.queue.Async(func(ctx context.Context) { c.enumerate(ctx, d, generation) }); err != nil {
		return nil, nil
	}
	c.inflight = d
	c.metrics.RecordDeviceCacheMiss()
	return d, nil
}

func (c *DeviceCache) enumerate(ctx context.Context, d *discovery, generation uint64) {
	devices, err := c.list(ctx)
	c.metrics.RecordDeviceEnumeration(err)

	c.mu.Lock()
	if c.inflight == d {
		c.inflight = nil
	}
	if err == nil && c.generation == generation {
		c.entry = &deviceCacheEntry{devices: devices, validAsOf: generation}
	}
	c.mu.Unlock()

	if err != nil {
		c.logger.Warn("Device enumeration failed", slog.String("error", err.Error()))
	} else {
		c.logger.Debug("Devices enumerated", slog.Int("count", len(devices)), slog.Uint64("generation", generation))
	}

	d.devices, d.err = devices, err
	close(d.done)
}

func (c *DeviceCache) list(ctx context.Context) ([]DeviceInfo, error) {
	if err := ctx.Err(); err != nil {
		return nil, ErrQueueClosed
	}
	if c.provider == nil {
		return nil, fmt.Errorf("no device provider configured")
	}

	video, err := c.provider.ListVideoDevices(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list video devices: %w", err)
	}
	audio, err := c.provider.ListAudioInputDevices(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list audio devices: %w", err)
	}

	devices := make([]DeviceInfo, 0, len(video)+len(audio))
	devices = append(devices, video...)
	devices = append(devices, audio...)
	return devices, nil
}

func cloneDevices(in []DeviceInfo) []DeviceInfo {
	out := make([]DeviceInfo, len(in))
	copy(out, in)
	return out
}
