package livecam

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/hashicorp/go-multierror"
)

// ManagerConfig configures a Manager. Every field is optional.
type ManagerConfig struct {
	// Factory builds the engine on first use (default: RTMP engine with
	// test-pattern capture).
	Factory EngineFactory

	// AudioSession is configured once at construction (default: no-op).
	AudioSession AudioSession

	// Surfaces allocates the preview surface (default: a private registry).
	Surfaces *SurfaceRegistry

	// Devices is a shared device cache. If nil the manager builds its own
	// over DeviceProvider and closes it on Dispose.
	Devices *DeviceCache

	// DeviceProvider backs the manager-owned cache (default: VirtualCameras).
	DeviceProvider DeviceProvider

	Logger  *slog.Logger
	Metrics *Metrics
}

// SessionInfo is a point-in-time copy of the session's observable state.
type SessionInfo struct {
	State     SessionState
	SurfaceID SurfaceID
	Muted     bool
	Camera    CameraPosition
	Zoom      float64
}

// construction is one lazy engine build. Every StartPreview or
// StartStreaming that arrives while it runs attaches to it.
type construction struct {
	started   time.Time
	done      chan struct{}
	err       error
	callbacks []func(error)
	resolved  bool
}

// resolve records the outcome and returns the callbacks to run. Must be
// called with Manager.mu held; ok is false if c was already resolved.
func (c *construction) resolve(err error) (callbacks []func(error), ok bool) {
	if c.resolved {
		return nil, false
	}
	c.resolved = true
	c.err = err
	close(c.done)
	callbacks, c.callbacks = c.callbacks, nil
	return callbacks, true
}

// Manager owns one camera streaming session. It defers building the engine
// until preview or streaming is first requested, stages configuration set
// before then, and serializes every engine call on the engine queue.
//
// All methods are safe for concurrent use. Methods that touch a live engine
// block until the engine queue has run them, so they must not be called
// synchronously from an EventObserver.
type Manager struct {
	logger   *slog.Logger
	metrics  *Metrics
	factory  EngineFactory
	coord    *Coordinator
	bridge   *EventBridge
	surfaces *SurfaceRegistry
	surface  *Surface

	devices     *DeviceCache
	ownsDevices bool

	staging ConfigStaging

	mu      sync.Mutex
	state   SessionState
	pending *construction

	// Confined to the engine queue.
	engine    Engine
	cameraPos CameraPosition

	previewing atomic.Bool
}

// NewManager allocates the preview surface and configures the audio
// session. It never builds the engine. A failed audio-session configuration
// is logged and does not fail construction.
func NewManager(cfg ManagerConfig) (*Manager, error) {
	if cfg.Factory == nil {
		cfg.Factory = NewRTMPEngineFactory(RTMPEngineConfig{})
	}
	if cfg.AudioSession == nil {
		cfg.AudioSession = NopAudioSession{}
	}
	if cfg.Surfaces == nil {
		cfg.Surfaces = NewSurfaceRegistry()
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	surface, err := cfg.Surfaces.Allocate()
	if err != nil {
		return nil, err
	}

	coord := NewCoordinator()
	m := &Manager{
		logger:    cfg.Logger,
		metrics:   cfg.Metrics,
		factory:   cfg.Factory,
		coord:     coord,
		bridge:    NewEventBridge(cfg.Metrics),
		surfaces:  cfg.Surfaces,
		surface:   surface,
		devices:   cfg.Devices,
		state:     StateUninitialized,
		cameraPos: DefaultCameraPosition,
	}
	if m.devices == nil {
		provider := cfg.DeviceProvider
		if provider == nil {
			provider = VirtualCameras()
		}
		m.devices = NewDeviceCache(provider, DeviceCacheConfig{
			Queue:   coord.Discovery,
			Logger:  cfg.Logger,
			Metrics: cfg.Metrics,
		})
		m.ownsDevices = true
	}
	m.metrics.SetState(StateUninitialized)

	if err := configureAudioSession(cfg.AudioSession); err != nil {
		m.metrics.RecordAudioSessionFailure()
		m.logger.Warn("Audio session configuration failed", slog.String("error", err.Error()))
	}

	m.logger.Info("Session created", slog.String("surface", string(surface.ID())))
	return m, nil
}

// State returns the current lifecycle state.
func (m *Manager) State() SessionState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// SurfaceID returns the preview surface identifier. It is stable for the
// lifetime of the manager.
func (m *Manager) SurfaceID() SurfaceID { return m.surface.ID() }

// Surface returns the preview surface.
func (m *Manager) Surface() *Surface { return m.surface }

// Devices returns the device cache used to resolve cameras.
func (m *Manager) Devices() *DeviceCache { return m.devices }

// SetDelegate registers the receiver of connection events. Only the most
// recent registration receives events; nil clears it.
func (m *Manager) SetDelegate(observer EventObserver) {
	m.bridge.SetDelegate(observer)
}

// Info returns a snapshot of the session.
func (m *Manager) Info() SessionInfo {
	return SessionInfo{
		State:     m.State(),
		SurfaceID: m.surface.ID(),
		Muted:     m.Muted(),
		Camera:    m.CameraPosition(),
		Zoom:      m.Zoom(),
	}
}

// StartPreview starts camera capture, building the engine first if needed.
// onDone runs exactly once with nil or the construction error. It never runs
// on the engine queue, so it may call back into the Manager.
func (m *Manager) StartPreview(onDone func(error)) {
	if onDone == nil {
		onDone = func(error) {}
	}

	m.mu.Lock()
	switch m.state {
	case StateDisposed:
		m.mu.Unlock()
		onDone(ErrDisposed)
		return
	case StateReady, StateStreaming:
		m.mu.Unlock()
		if m.previewing.Load() {
			onDone(nil)
			return
		}
		m.resumePreview(onDone)
		return
	}
	c := m.constructLocked()
	immediate := c.resolved
	if !immediate {
		c.callbacks = append(c.callbacks, onDone)
	}
	m.mu.Unlock()

	if immediate {
		onDone(c.err)
	}
}

// resumePreview restarts capture on an engine whose preview was stopped.
func (m *Manager) resumePreview(onDone func(error)) {
	err := m.coord.Engine.Async(func(context.Context) {
		var err error
		switch {
		case m.engine == nil:
			err = ErrDisposed
		case m.previewing.Load():
		default:
			if err = m.engine.StartPreview(); err != nil {
				m.logger.Warn("Failed to restart preview", slog.String("error", err.Error()))
			} else {
				m.previewing.Store(true)
			}
		}
		notify([]func(error){onDone}, err)
	})
	if err != nil {
		onDone(ErrDisposed)
	}
}

// StartStreaming publishes to destinationURL under streamKey, building the
// engine first if needed. ctx bounds only the wait for construction; it
// does not cancel the construction other callers may be sharing.
func (m *Manager) StartStreaming(ctx context.Context, streamKey, destinationURL string) error {
	if streamKey == "" || destinationURL == "" {
		err := &StreamingError{Reason: "stream key and destination URL are required"}
		m.metrics.RecordStreamStart(err)
		return err
	}

	if err := m.awaitEngine(ctx); err != nil {
		var initErr *InitializationError
		switch {
		case errors.As(err, &initErr):
			err = &StreamingError{Reason: "engine initialization failed", Err: err}
		case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
			err = &StreamingError{Reason: "waiting for engine", Err: err}
		}
		m.metrics.RecordStreamStart(err)
		return err
	}

	var startErr error
	err := m.coord.Engine.Sync(context.Background(), func(context.Context) {
		if m.engine == nil {
			startErr = ErrDisposed
			return
		}
		if err := m.engine.StartStreaming(streamKey, destinationURL); err != nil {
			startErr = &StreamingError{Reason: err.Error(), Err: err}
			return
		}
		m.mu.Lock()
		if m.state == StateReady {
			m.setStateLocked(StateStreaming)
		}
		m.mu.Unlock()
	})
	if errors.Is(err, ErrQueueClosed) {
		err = ErrDisposed
	}
	if err == nil {
		err = startErr
	}
	m.metrics.RecordStreamStart(err)
	if err != nil {
		m.logger.Warn("Failed to start streaming", slog.String("error", err.Error()))
		return err
	}
	m.logger.Info("Streaming started")
	return nil
}

// awaitEngine returns once an engine exists, starting construction if none
// is running.
func (m *Manager) awaitEngine(ctx context.Context) error {
	m.mu.Lock()
	switch m.state {
	case StateDisposed:
		m.mu.Unlock()
		return ErrDisposed
	case StateReady, StateStreaming:
		m.mu.Unlock()
		return nil
	}
	c := m.constructLocked()
	m.mu.Unlock()

	select {
	case <-c.done:
		return c.err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// StopStreaming stops publishing. It does nothing unless streaming.
func (m *Manager) StopStreaming() {
	if m.State() != StateStreaming {
		return
	}
	_ = m.coord.Engine.Sync(context.Background(), func(context.Context) {
		if m.engine == nil {
			return
		}
		m.mu.Lock()
		streaming := m.state == StateStreaming
		m.mu.Unlock()
		if !streaming {
			return
		}
		if err := m.engine.StopStreaming(); err != nil {
			m.logger.Warn("Failed to stop streaming", slog.String("error", err.Error()))
		}
		m.mu.Lock()
		if m.state == StateStreaming {
			m.setStateLocked(StateReady)
		}
		m.mu.Unlock()
		m.logger.Info("Streaming stopped")
	})
}

// StopPreview stops camera capture. It does nothing before the engine exists.
func (m *Manager) StopPreview() {
	if !m.State().hasEngine() {
		return
	}
	_ = m.coord.Engine.Sync(context.Background(), func(context.Context) {
		if m.engine == nil || !m.previewing.Load() {
			return
		}
		if err := m.engine.StopPreview(); err != nil {
			m.logger.Warn("Failed to stop preview", slog.String("error", err.Error()))
		}
		m.previewing.Store(false)
	})
}

// Dispose tears the session down and blocks until the engine is released.
// A construction still in flight completes with ErrManagerDeallocated.
// Calling Dispose again does nothing.
func (m *Manager) Dispose() {
	m.mu.Lock()
	if m.state == StateDisposed {
		m.mu.Unlock()
		return
	}
	m.setStateLocked(StateDisposed)
	var callbacks []func(error)
	if c := m.pending; c != nil {
		m.pending = nil
		callbacks, _ = c.resolve(ErrManagerDeallocated)
	}
	m.mu.Unlock()

	for _, cb := range callbacks {
		cb(ErrManagerDeallocated)
	}

	// Queued behind any construction still running on the engine queue.
	_ = m.coord.Engine.Sync(context.Background(), func(context.Context) {
		m.teardown()
	})
	m.coord.Close()
	if m.ownsDevices {
		m.devices.Close()
	}
	m.surfaces.Release(m.surface.ID())
	m.bridge.SetDelegate(nil)
	m.logger.Info("Session disposed", slog.String("surface", string(m.surface.ID())))
}

// teardown runs on the engine queue.
func (m *Manager) teardown() {
	e := m.engine
	m.engine = nil
	m.previewing.Store(false)
	if e == nil {
		return
	}

	var result error
	if err := e.StopStreaming(); err != nil {
		result = multierror.Append(result, fmt.Errorf("stop streaming: %w", err))
	}
	if err := e.StopPreview(); err != nil {
		result = multierror.Append(result, fmt.Errorf("stop preview: %w", err))
	}
	if err := e.Close(); err != nil {
		result = multierror.Append(result, fmt.Errorf("close engine: %w", err))
	}
	if result != nil {
		m.logger.Warn("Engine teardown reported errors", slog.String("error", result.Error()))
	}
}

// constructLocked returns the in-flight construction, starting one if
// needed. Must be called with m.mu held and the state neither Disposed nor
// carrying an engine.
func (m *Manager) constructLocked() *construction {
	if m.pending != nil {
		return m.pending
	}
	c := &construction{started: time.Now(), done: make(chan struct{})}
	m.pending = c
	m.setStateLocked(StateInitializing)
	m.logger.Info("Engine construction started")

	if err := m.coord.Prepare.Async(func(ctx context.Context) { m.prepare(ctx, c) }); err != nil {
		m.pending = nil
		m.setStateLocked(StateUninitialized)
		c.resolve(&InitializationError{Err: err})
	}
	return c
}

// prepare runs on the preparation queue. It resolves the capture device so
// the engine queue is not held up by discovery.
func (m *Manager) prepare(ctx context.Context, c *construction) {
	if ctx.Err() != nil {
		m.finish(c, ErrManagerDeallocated)
		return
	}
	pos := DefaultCameraPosition
	if staged := m.staging.Snapshot(); staged.Camera != nil {
		pos = *staged.Camera
	}
	device, err := m.devices.DeviceForPosition(pos)
	if err != nil {
		m.finish(c, &InitializationError{Err: fmt.Errorf("resolve %s camera: %w", pos, err)})
		return
	}
	err = m.coord.Engine.Async(func(ctx context.Context) { m.construct(ctx, c, pos, device) })
	if err != nil {
		m.finish(c, ErrManagerDeallocated)
	}
}

// construct runs on the engine queue.
func (m *Manager) construct(ctx context.Context, c *construction, pos CameraPosition, device DeviceInfo) {
	if ctx.Err() != nil || m.State() == StateDisposed {
		m.finish(c, ErrManagerDeallocated)
		return
	}

	engine, err := m.factory(EngineOptions{Surface: m.surface, Logger: m.logger})
	if err != nil {
		m.finish(c, &InitializationError{Err: err})
		return
	}
	engine.SetDelegate(m.bridge)

	if err := engine.AttachCamera(device); err != nil {
		m.abandon(c, engine, StagedConfig{}, fmt.Errorf("attach %s: %w", device.DeviceID, err))
		return
	}

	var applied StagedConfig
	previewing := false
	for {
		snap, drained, err := m.staging.DrainAndApply(engine, m.devices.DeviceForPosition)
		if err != nil {
			m.abandon(c, engine, applied, err)
			return
		}
		applied = applied.merge(snap)
		if !drained {
			continue
		}

		if !previewing {
			if err := engine.StartPreview(); err != nil {
				m.abandon(c, engine, applied, fmt.Errorf("start preview: %w", err))
				return
			}
			previewing = true
		}

		m.mu.Lock()
		if m.state == StateDisposed || m.pending != c {
			m.mu.Unlock()
			if err := engine.Close(); err != nil {
				m.logger.Warn("Failed to close abandoned engine", slog.String("error", err.Error()))
			}
			m.finish(c, ErrManagerDeallocated)
			return
		}
		// A setter that staged after the drain must reach this engine before
		// Ready is observable.
		if !m.staging.Empty() {
			m.mu.Unlock()
			continue
		}
		m.engine = engine
		if applied.Camera != nil {
			m.cameraPos = *applied.Camera
		} else {
			m.cameraPos = pos
		}
		m.previewing.Store(true)
		m.pending = nil
		m.setStateLocked(StateReady)
		callbacks, _ := c.resolve(nil)
		m.mu.Unlock()

		m.completed(c, nil, callbacks)
		return
	}
}

// abandon closes a partly built engine and puts drained values back so a
// retry sees them.
func (m *Manager) abandon(c *construction, engine Engine, applied StagedConfig, cause error) {
	m.staging.Restore(applied)
	if err := engine.Close(); err != nil {
		m.logger.Warn("Failed to close engine after failed construction", slog.String("error", err.Error()))
	}
	m.finish(c, &InitializationError{Err: cause})
}

// finish resolves c with a construction failure.
func (m *Manager) finish(c *construction, err error) {
	m.mu.Lock()
	if m.pending == c {
		m.pending = nil
		if m.state == StateInitializing {
			m.setStateLocked(StateUninitialized)
		}
	}
	callbacks, ok := c.resolve(err)
	m.mu.Unlock()

	if ok {
		m.completed(c, err, callbacks)
	}
}

// completed reports a resolved construction and runs its callbacks.
func (m *Manager) completed(c *construction, err error, callbacks []func(error)) {
	elapsed := time.Since(c.started)
	m.metrics.RecordConstruction(elapsed, err)
	if err != nil {
		m.logger.Warn("Engine construction failed", slog.String("error", err.Error()))
	} else {
		m.logger.Info("Engine ready", slog.Duration("elapsed", elapsed))
	}
	notify(callbacks, err)
}

// notify runs callbacks in order on a new goroutine, leaving the engine
// queue free for whatever they call.
func notify(callbacks []func(error), err error) {
	if len(callbacks) == 0 {
		return
	}
	go func() {
		for _, cb := range callbacks {
			cb(err)
		}
	}()
}

func (m *Manager) setStateLocked(s SessionState) {
	if m.state == s {
		return
	}
	m.logger.Debug("Session state changed", slog.String("from", m.state.String()), slog.String("to", s.String()))
	m.state = s
	m.metrics.SetState(s)
}

// stage records a setter while no engine exists. staged reports whether
// the value was consumed (or rejected) without touching an engine.
func (m *Manager) stage(set func()) (staged bool, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	switch m.state {
	case StateDisposed:
		return true, ErrDisposed
	case StateUninitialized, StateInitializing:
		set()
		return true, nil
	}
	return false, nil
}

// readEngine runs read on the engine queue. ok is false when there is no
// live engine.
func readEngine[T any](m *Manager, read func(Engine) T) (v T, ok bool) {
	if !m.State().hasEngine() {
		return v, false
	}
	err := m.coord.Engine.Sync(context.Background(), func(context.Context) {
		if m.engine == nil {
			return
		}
		v, ok = read(m.engine), true
	})
	if err != nil {
		return v, false
	}
	return v, ok
}

// writeEngine runs write on the engine queue.
func (m *Manager) writeEngine(write func(Engine) error) error {
	var werr error
	err := m.coord.Engine.Sync(context.Background(), func(context.Context) {
		if m.engine == nil {
			werr = ErrDisposed
			return
		}
		werr = write(m.engine)
	})
	if err != nil {
		return ErrDisposed
	}
	return werr
}

// AudioConfig returns the live engine value, else the staged value, else
// the default.
func (m *Manager) AudioConfig() AudioConfig {
	if v, ok := readEngine(m, Engine.AudioConfig); ok {
		return v
	}
	if s := m.staging.Effective(); s.Audio != nil {
		return s.Audio.WithDefaults()
	}
	return DefaultAudioConfig()
}

// SetAudioConfig stages cfg or applies it to the live engine.
func (m *Manager) SetAudioConfig(cfg AudioConfig) error {
	if staged, err := m.stage(func() { m.staging.SetAudio(cfg) }); staged {
		return err
	}
	return m.writeEngine(func(e Engine) error { return e.SetAudioConfig(cfg) })
}

// VideoConfig returns the live engine value, else the staged value, else
// the default.
func (m *Manager) VideoConfig() VideoConfig {
	if v, ok := readEngine(m, Engine.VideoConfig); ok {
		return v
	}
	if s := m.staging.Effective(); s.Video != nil {
		return s.Video.WithDefaults()
	}
	return DefaultVideoConfig()
}

// SetVideoConfig stages cfg or applies it to the live engine. A live change
// of resolution is reported to the delegate as EventVideoSizeChanged before
// SetVideoConfig returns.
func (m *Manager) SetVideoConfig(cfg VideoConfig) error {
	if staged, err := m.stage(func() { m.staging.SetVideo(cfg) }); staged {
		return err
	}
	var before, after VideoConfig
	err := m.writeEngine(func(e Engine) error {
		before = e.VideoConfig()
		if err := e.SetVideoConfig(cfg); err != nil {
			return err
		}
		after = e.VideoConfig()
		return nil
	})
	if err != nil {
		return err
	}
	if !before.SameSize(after) {
		m.bridge.OnConnectionEvent(ConnectionEvent{
			Kind:   EventVideoSizeChanged,
			Width:  after.Width,
			Height: after.Height,
		})
	}
	return nil
}

// Muted reports whether audio is muted.
func (m *Manager) Muted() bool {
	if v, ok := readEngine(m, Engine.Muted); ok {
		return v
	}
	if s := m.staging.Effective(); s.Muted != nil {
		return *s.Muted
	}
	return false
}

// SetMuted stages muted or applies it to the live engine.
func (m *Manager) SetMuted(muted bool) error {
	if staged, err := m.stage(func() { m.staging.SetMuted(muted) }); staged {
		return err
	}
	return m.writeEngine(func(e Engine) error { return e.SetMuted(muted) })
}

// Zoom returns the zoom factor.
func (m *Manager) Zoom() float64 {
	if v, ok := readEngine(m, Engine.Zoom); ok {
		return v
	}
	if s := m.staging.Effective(); s.Zoom != nil {
		return clampZoom(*s.Zoom)
	}
	return DefaultZoom
}

// SetZoom stages factor or applies it to the live engine.
func (m *Manager) SetZoom(factor float64) error {
	if staged, err := m.stage(func() { m.staging.SetZoom(factor) }); staged {
		return err
	}
	return m.writeEngine(func(e Engine) error { return e.SetZoom(factor) })
}

// CameraPosition returns the requested camera position.
func (m *Manager) CameraPosition() CameraPosition {
	read := func(Engine) CameraPosition { return m.cameraPos }
	if v, ok := readEngine(m, read); ok {
		return v
	}
	if s := m.staging.Effective(); s.Camera != nil {
		return *s.Camera
	}
	return DefaultCameraPosition
}

// SetCameraPosition stages pos or switches the live engine to the camera
// facing pos. The device is resolved on the calling goroutine, which may
// block on discovery if the device cache is cold.
func (m *Manager) SetCameraPosition(pos CameraPosition) error {
	if staged, err := m.stage(func() { m.staging.SetCamera(pos) }); staged {
		return err
	}
	device, err := m.devices.DeviceForPosition(pos)
	if err != nil {
		return err
	}
	return m.writeEngine(func(e Engine) error {
		if e.Camera().DeviceID != device.DeviceID {
			if err := e.AttachCamera(device); err != nil {
				return err
			}
		}
		m.cameraPos = pos
		return nil
	})
}
