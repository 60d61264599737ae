package livecam

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"time"
)

// errSourceClosed is returned by ReadFrame after Close.
var errSourceClosed = errors.New("source closed")

// scene is what a synthetic camera draws.
type scene int

const (
	sceneGradient scene = iota // luma ramp, cameras without a position
	sceneBars                  // eight vertical color bars, back camera
	sceneOrbit                 // bright square circling the center, front camera
)

func (s scene) String() string {
	switch s {
	case sceneBars:
		return "bars"
	case sceneOrbit:
		return "orbit"
	default:
		return "gradient"
	}
}

func sceneFor(pos CameraPosition) scene {
	switch pos {
	case CameraPositionBack:
		return sceneBars
	case CameraPositionFront:
		return sceneOrbit
	default:
		return sceneGradient
	}
}

// 75% color bars in studio-swing Y, Cb, Cr: white, yellow, cyan, green,
// magenta, red, blue, black.
var barColors = [8][3]uint8{
	{180, 128, 128},
	{162, 44, 142},
	{131, 156, 44},
	{112, 72, 58},
	{84, 184, 198},
	{65, 100, 212},
	{35, 212, 114},
	{16, 128, 128},
}

// orbitStep is the angle, in radians, the orbit square advances per frame.
const orbitStep = 0.05

// TestPatternSource stands in for a camera when no capture hardware is
// available. It renders I420 frames at the camera's VideoConfig; the scene
// depends on the camera position so a camera switch shows in the preview.
type TestPatternSource struct {
	device   DeviceInfo
	video    VideoConfig
	scene    scene
	interval time.Duration

	// Planes are rendered in place and shared by every delivered frame.
	y, u, v []byte

	frames chan *VideoFrame
	closed chan struct{}

	mu       sync.Mutex
	callback VideoFrameCallback
	cancel   context.CancelFunc
	stopped  chan struct{}
	isClosed bool
}

// NewTestPatternSource creates a synthetic camera for device at cfg. Zero
// fields of cfg take their defaults.
func NewTestPatternSource(device DeviceInfo, cfg VideoConfig) *TestPatternSource {
	cfg = cfg.WithDefaults()
	luma := cfg.Width * cfg.Height
	chroma := (cfg.Width / 2) * (cfg.Height / 2)
	buf := make([]byte, I420Size(cfg.Width, cfg.Height))

	s := &TestPatternSource{
		device:   device,
		video:    cfg,
		scene:    sceneFor(device.Position),
		interval: time.Second / time.Duration(cfg.FPS),
		y:        buf[:luma],
		u:        buf[luma : luma+chroma],
		v:        buf[luma+chroma:],
		frames:   make(chan *VideoFrame, 1),
		closed:   make(chan struct{}),
	}
	s.render(0)
	return s
}

// Device returns the camera this source renders for.
func (s *TestPatternSource) Device() DeviceInfo { return s.device }

// Start begins rendering frames at the configured rate.
func (s *TestPatternSource) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.isClosed {
		return errSourceClosed
	}
	if s.cancel != nil {
		return fmt.Errorf("camera %s is already capturing", s.device.DeviceID)
	}
	ctx, s.cancel = context.WithCancel(ctx)
	s.stopped = make(chan struct{})
	go s.run(ctx, s.stopped)
	return nil
}

// Stop halts rendering and waits for the render goroutine to exit.
func (s *TestPatternSource) Stop() error {
	s.mu.Lock()
	cancel, stopped := s.cancel, s.stopped
	s.cancel, s.stopped = nil, nil
	s.mu.Unlock()

	if cancel != nil {
		cancel()
		<-stopped
	}
	return nil
}

// Close stops the source and fails pending and later reads.
func (s *TestPatternSource) Close() error {
	s.mu.Lock()
	already := s.isClosed
	s.isClosed = true
	s.mu.Unlock()

	s.Stop()
	if !already {
		close(s.closed)
	}
	return nil
}

// ReadFrame returns the newest frame not yet read, blocking until one is
// rendered. Frames share planes, so a frame is only valid until the next one.
func (s *TestPatternSource) ReadFrame(ctx context.Context) (*VideoFrame, error) {
	select {
	case <-s.closed:
		return nil, errSourceClosed
	default:
	}
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-s.closed:
		return nil, errSourceClosed
	case f := <-s.frames:
		return f, nil
	}
}

// SetCallback switches delivery to cb. A nil cb returns to ReadFrame.
func (s *TestPatternSource) SetCallback(cb VideoFrameCallback) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.callback = cb
}

// Config implements VideoSource.
func (s *TestPatternSource) Config() SourceConfig {
	return SourceConfig{
		Width:      s.video.Width,
		Height:     s.video.Height,
		FPS:        s.video.FPS,
		Format:     PixelFormatI420,
		SourceType: SourceTypeTestPattern,
	}
}

func (s *TestPatternSource) run(ctx context.Context, stopped chan<- struct{}) {
	defer close(stopped)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	start := time.Now()
	for n := uint64(1); ; n++ {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			if s.scene == sceneOrbit {
				s.render(n)
			}
			s.deliver(s.frame(now.Sub(start)))
		}
	}
}

func (s *TestPatternSource) frame(at time.Duration) *VideoFrame {
	w, h := s.video.Width, s.video.Height
	return &VideoFrame{
		Data:      [][]byte{s.y, s.u, s.v},
		Stride:    []int{w, w / 2, w / 2},
		Width:     w,
		Height:    h,
		Format:    PixelFormatI420,
		Timestamp: at.Nanoseconds(),
		Duration:  s.interval.Nanoseconds(),
	}
}

// deliver hands f to the callback, or replaces any unread frame with it.
func (s *TestPatternSource) deliver(f *VideoFrame) {
	s.mu.Lock()
	cb := s.callback
	s.mu.Unlock()

	if cb != nil {
		cb(f)
		return
	}
	select {
	case <-s.frames:
	default:
	}
	s.frames <- f
}

// render draws frame n of the scene into the planes.
func (s *TestPatternSource) render(n uint64) {
	w, h := s.video.Width, s.video.Height
	cw, ch := w/2, h/2

	switch s.scene {
	case sceneBars:
		for row := 0; row < h; row++ {
			line := s.y[row*w : (row+1)*w]
			for x := range line {
				line[x] = barColors[x*8/w][0]
			}
		}
		for row := 0; row < ch; row++ {
			for x := 0; x < cw; x++ {
				c := barColors[x*8/cw]
				s.u[row*cw+x], s.v[row*cw+x] = c[1], c[2]
			}
		}

	case sceneOrbit:
		fill(s.y, 16)
		fill(s.u, 128)
		fill(s.v, 128)

		side := min(w, h) / 5
		radius := float64(min(w, h)) / 4
		angle := float64(n) * orbitStep
		x0 := w/2 + int(radius*math.Cos(angle)) - side/2
		y0 := h/2 + int(radius*math.Sin(angle)) - side/2
		left, right := max(x0, 0), min(x0+side, w)
		for row := max(y0, 0); row < min(y0+side, h); row++ {
			if left < right {
				fill(s.y[row*w+left:row*w+right], 235)
			}
		}

	default:
		for row := 0; row < h; row++ {
			line := s.y[row*w : (row+1)*w]
			for x := range line {
				line[x] = uint8(16 + x*219/w)
			}
		}
		fill(s.u, 128)
		fill(s.v, 128)
	}
}

func fill(b []byte, v byte) {
	for i := range b {
		b[i] = v
	}
}
