package livecam

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

// sequence orders events across collaborators without relying on clocks.
type sequence struct{ n atomic.Int64 }

func (s *sequence) next() int64 { return s.n.Add(1) }

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fakeEngine records what the manager does to it.
type fakeEngine struct {
	mu sync.Mutex

	opts       EngineOptions
	audio      AudioConfig
	video      VideoConfig
	camera     DeviceInfo
	muted      bool
	zoom       float64
	previewing bool
	streaming  bool
	streamKey  string
	streamURL  string
	closed     bool
	delegate   EventObserver

	previewStarts int
	streamErr     error
	previewErr    error
	stopErr       error
	closeErr      error
	videoErr      error

	// onSetVideo runs inside SetVideoConfig, on the engine queue.
	onSetVideo func()
}

func newFakeEngine(opts EngineOptions) *fakeEngine {
	return &fakeEngine{
		opts:  opts,
		audio: DefaultAudioConfig(),
		video: DefaultVideoConfig(),
		zoom:  DefaultZoom,
	}
}

func (e *fakeEngine) StartPreview() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.previewErr != nil {
		return e.previewErr
	}
	e.previewing = true
	e.previewStarts++
	return nil
}

func (e *fakeEngine) StopPreview() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.previewing = false
	return nil
}

func (e *fakeEngine) StartStreaming(key, url string) error {
	e.mu.Lock()
	if e.streamErr != nil {
		err := e.streamErr
		d := e.delegate
		e.mu.Unlock()
		if d != nil {
			d.OnConnectionEvent(ConnectionEvent{Kind: EventFailed, Reason: err.Error()})
		}
		return err
	}
	e.streaming = true
	e.streamKey, e.streamURL = key, url
	d := e.delegate
	e.mu.Unlock()
	if d != nil {
		d.OnConnectionEvent(ConnectionEvent{Kind: EventSuccess})
	}
	return nil
}

func (e *fakeEngine) StopStreaming() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.streaming = false
	return e.stopErr
}

func (e *fakeEngine) AudioConfig() AudioConfig {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.audio
}

func (e *fakeEngine) SetAudioConfig(cfg AudioConfig) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.audio = cfg.WithDefaults()
	return nil
}

func (e *fakeEngine) VideoConfig() VideoConfig {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.video
}

func (e *fakeEngine) SetVideoConfig(cfg VideoConfig) error {
	e.mu.Lock()
	hook := e.onSetVideo
	if e.videoErr != nil {
		err := e.videoErr
		e.mu.Unlock()
		return err
	}
	e.video = cfg.WithDefaults()
	e.mu.Unlock()
	if hook != nil {
		hook()
	}
	return nil
}

func (e *fakeEngine) Camera() DeviceInfo {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.camera
}

func (e *fakeEngine) AttachCamera(device DeviceInfo) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.camera = device
	return nil
}

func (e *fakeEngine) Muted() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.muted
}

func (e *fakeEngine) SetMuted(muted bool) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.muted = muted
	return nil
}

func (e *fakeEngine) Zoom() float64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.zoom
}

func (e *fakeEngine) SetZoom(factor float64) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.zoom = clampZoom(factor)
	return nil
}

func (e *fakeEngine) SetDelegate(observer EventObserver) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.delegate = observer
}

func (e *fakeEngine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.closed = true
	e.previewing = false
	e.streaming = false
	return e.closeErr
}

func (e *fakeEngine) isClosed() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.closed
}

func (e *fakeEngine) isStreaming() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.streaming
}

func (e *fakeEngine) isPreviewing() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.previewing
}

// fakeFactory counts constructions. When gate is set, each build blocks
// until the gate is closed.
type fakeFactory struct {
	seq *sequence

	gate    chan struct{}
	started chan struct{}
	err     error
	setup   func(*fakeEngine)

	mu      sync.Mutex
	builds  int
	builtAt []int64
	engines []*fakeEngine
}

func newFakeFactory() *fakeFactory {
	return &fakeFactory{started: make(chan struct{}, 16)}
}

func (f *fakeFactory) build(opts EngineOptions) (Engine, error) {
	f.mu.Lock()
	f.builds++
	if f.seq != nil {
		f.builtAt = append(f.builtAt, f.seq.next())
	}
	gate, err := f.gate, f.err
	f.mu.Unlock()

	select {
	case f.started <- struct{}{}:
	default:
	}
	if gate != nil {
		<-gate
	}
	if err != nil {
		return nil, err
	}

	e := newFakeEngine(opts)
	if f.setup != nil {
		f.setup(e)
	}
	f.mu.Lock()
	f.engines = append(f.engines, e)
	f.mu.Unlock()
	return e, nil
}

func (f *fakeFactory) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.builds
}

func (f *fakeFactory) engine(t *testing.T) *fakeEngine {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.engines) == 0 {
		t.Fatal("no engine was built")
	}
	return f.engines[len(f.engines)-1]
}

func (f *fakeFactory) setErr(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.err = err
}

// fakeAudioSession records the calls made to it.
type fakeAudioSession struct {
	seq *sequence

	categoryErr error
	activeErr   error

	mu         sync.Mutex
	category   AudioCategory
	mode       AudioMode
	options    AudioCategoryOptions
	active     bool
	activeAt   int64
	configured bool
}

func (s *fakeAudioSession) SetCategory(c AudioCategory, m AudioMode, o AudioCategoryOptions) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.categoryErr != nil {
		return s.categoryErr
	}
	s.category, s.mode, s.options = c, m, o
	return nil
}

func (s *fakeAudioSession) SetActive(active bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.activeErr != nil {
		return s.activeErr
	}
	s.active = active
	s.configured = true
	if s.seq != nil {
		s.activeAt = s.seq.next()
	}
	return nil
}

// countingProvider counts enumerations. When gate is set, each enumeration
// blocks until the gate is closed.
type countingProvider struct {
	devices []DeviceInfo
	gate    chan struct{}
	err     error

	calls atomic.Int32
}

func newCountingProvider() *countingProvider {
	return &countingProvider{devices: VirtualCameras().Devices}
}

func (p *countingProvider) ListVideoDevices(ctx context.Context) ([]DeviceInfo, error) {
	p.calls.Add(1)
	if p.gate != nil {
		select {
		case <-p.gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if p.err != nil {
		return nil, p.err
	}
	return (&StaticDeviceProvider{Devices: p.devices}).ListVideoDevices(ctx)
}

func (p *countingProvider) ListAudioInputDevices(ctx context.Context) ([]DeviceInfo, error) {
	return (&StaticDeviceProvider{Devices: p.devices}).ListAudioInputDevices(ctx)
}

// eventRecorder collects forwarded events.
type eventRecorder struct {
	mu     sync.Mutex
	events []ConnectionEvent
}

func (r *eventRecorder) OnConnectionEvent(ev ConnectionEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
}

func (r *eventRecorder) snapshot() []ConnectionEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]ConnectionEvent, len(r.events))
	copy(out, r.events)
	return out
}

func (r *eventRecorder) kinds() []EventKind {
	var out []EventKind
	for _, ev := range r.snapshot() {
		out = append(out, ev.Kind)
	}
	return out
}

func newTestManager(t *testing.T, cfg ManagerConfig) *Manager {
	t.Helper()
	if cfg.Logger == nil {
		cfg.Logger = discardLogger()
	}
	if cfg.DeviceProvider == nil && cfg.Devices == nil {
		cfg.DeviceProvider = VirtualCameras()
	}
	m, err := NewManager(cfg)
	if err != nil {
		t.Fatalf("NewManager failed: %v", err)
	}
	t.Cleanup(m.Dispose)
	return m
}

// startPreview calls StartPreview and returns a channel receiving the
// completion result.
func startPreview(m *Manager) <-chan error {
	ch := make(chan error, 1)
	m.StartPreview(func(err error) { ch <- err })
	return ch
}

func waitDone(t *testing.T, ch <-chan error) error {
	t.Helper()
	select {
	case err := <-ch:
		return err
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for completion")
		return nil
	}
}

func waitSignal(t *testing.T, ch <-chan struct{}) {
	t.Helper()
	select {
	case <-ch:
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for signal")
	}
}

var errBoom = errors.New("boom")
