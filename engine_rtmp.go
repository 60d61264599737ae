package livecam

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/url"
	"strings"
	"sync"

	"github.com/hashicorp/go-multierror"
	"github.com/sirupsen/logrus"
	"github.com/yutopp/go-rtmp"
	rtmpmsg "github.com/yutopp/go-rtmp/message"
)

// RTMPEngineConfig configures engines built by NewRTMPEngineFactory.
type RTMPEngineConfig struct {
	// Capture opens the camera source (default: TestPatternCapture).
	Capture CaptureSourceFactory

	// ChunkSize is the RTMP chunk size requested for the stream (default: 4096).
	ChunkSize uint32

	// FlashVer is sent in the connect command.
	FlashVer string

	// RTMPLogger receives go-rtmp's connection logs (default: a logrus
	// logger at warn level on stderr).
	RTMPLogger logrus.FieldLogger
}

// NewRTMPEngineFactory returns an EngineFactory that builds RTMPEngines.
func NewRTMPEngineFactory(cfg RTMPEngineConfig) EngineFactory {
	if cfg.Capture == nil {
		cfg.Capture = TestPatternCapture
	}
	if cfg.ChunkSize == 0 {
		cfg.ChunkSize = 4096
	}
	if cfg.FlashVer == "" {
		cfg.FlashVer = "FMLE/3.0 (compatible; livecam)"
	}
	if cfg.RTMPLogger == nil {
		l := logrus.New()
		l.SetLevel(logrus.WarnLevel)
		cfg.RTMPLogger = l
	}
	return func(opts EngineOptions) (Engine, error) {
		return NewRTMPEngine(cfg, opts)
	}
}

// RTMPEngine captures from a VideoSource into a preview Surface and
// publishes to an RTMP server.
//
// Publishing establishes the RTMP session (connect, createStream, publish);
// media encoding is left to production engines. Like every Engine it must
// be driven from a single goroutine.
type RTMPEngine struct {
	cfg     RTMPEngineConfig
	logger  *slog.Logger
	surface *Surface

	audio  AudioConfig
	video  VideoConfig
	camera DeviceInfo
	muted  bool
	zoom   digitalZoom

	source     VideoSource
	previewing bool

	conn      *rtmp.ClientConn
	streamKey string

	delegateMu sync.RWMutex
	delegate   EventObserver
}

// NewRTMPEngine builds an engine. Initial values in opts are optional.
func NewRTMPEngine(cfg RTMPEngineConfig, opts EngineOptions) (*RTMPEngine, error) {
	if cfg.Capture == nil {
		cfg.Capture = TestPatternCapture
	}
	if cfg.RTMPLogger == nil {
		cfg.RTMPLogger = logrus.StandardLogger()
	}
	e := &RTMPEngine{
		cfg:     cfg,
		logger:  opts.Logger,
		surface: opts.Surface,
		audio:   DefaultAudioConfig(),
		video:   DefaultVideoConfig(),
	}
	e.zoom.Set(DefaultZoom)
	if e.logger == nil {
		e.logger = slog.Default()
	}
	if opts.Audio != nil {
		if err := e.SetAudioConfig(*opts.Audio); err != nil {
			return nil, err
		}
	}
	if opts.Video != nil {
		if err := e.SetVideoConfig(*opts.Video); err != nil {
			return nil, err
		}
	}
	if opts.Camera != nil {
		e.camera = *opts.Camera
	}
	return e, nil
}

// StartPreview opens the attached camera and starts feeding the surface.
func (e *RTMPEngine) StartPreview() error {
	if e.previewing {
		return nil
	}
	if e.camera.DeviceID == "" {
		return errors.New("no camera attached")
	}
	src, err := e.cfg.Capture(e.camera, e.video)
	if err != nil {
		return fmt.Errorf("failed to open camera %s: %w", e.camera.DeviceID, err)
	}
	if e.surface != nil {
		surface, zoom := e.surface, &e.zoom
		var zoomed VideoFrame
		src.SetCallback(func(f *VideoFrame) {
			surface.PushFrame(zoomFrame(&zoomed, f, zoom.Get()))
		})
	}
	if err := src.Start(context.Background()); err != nil {
		src.Close()
		return fmt.Errorf("failed to start camera %s: %w", e.camera.DeviceID, err)
	}
	e.source = src
	e.previewing = true
	e.logger.Debug("Capture started",
		slog.String("device", e.camera.DeviceID),
		slog.Int("width", e.video.Width),
		slog.Int("height", e.video.Height),
	)
	return nil
}

// StopPreview closes the camera source.
func (e *RTMPEngine) StopPreview() error {
	if !e.previewing {
		return nil
	}
	e.previewing = false
	src := e.source
	e.source = nil
	return src.Close()
}

// StartStreaming connects to url and publishes streamKey.
func (e *RTMPEngine) StartStreaming(streamKey, rawURL string) error {
	if e.conn != nil {
		return fmt.Errorf("already publishing %q", e.streamKey)
	}
	addr, app, err := parseRTMPURL(rawURL)
	if err != nil {
		e.emit(ConnectionEvent{Kind: EventFailed, Reason: err.Error()})
		return err
	}

	conn, err := rtmp.Dial("rtmp", addr, &rtmp.ConnConfig{
		Logger: e.cfg.RTMPLogger,
	})
	if err != nil {
		e.emit(ConnectionEvent{Kind: EventFailed, Reason: err.Error()})
		return fmt.Errorf("failed to dial %s: %w", addr, err)
	}

	if err := e.publish(conn, app, rawURL, streamKey); err != nil {
		conn.Close()
		e.emit(ConnectionEvent{Kind: EventFailed, Reason: err.Error()})
		return err
	}

	e.conn = conn
	e.streamKey = streamKey
	e.logger.Info("Publishing started", slog.String("addr", addr), slog.String("app", app))
	e.emit(ConnectionEvent{Kind: EventSuccess})
	return nil
}

func (e *RTMPEngine) publish(conn *rtmp.ClientConn, app, tcURL, streamKey string) error {
	err := conn.Connect(&rtmpmsg.NetConnectionConnect{
		Command: rtmpmsg.NetConnectionConnectCommand{
			App:      app,
			Type:     "nonprivate",
			FlashVer: e.cfg.FlashVer,
			TCURL:    tcURL,
		},
	})
	if err != nil {
		return fmt.Errorf("failed to connect to application %q: %w", app, err)
	}

	stream, err := conn.CreateStream(nil, e.cfg.ChunkSize)
	if err != nil {
		return fmt.Errorf("failed to create stream: %w", err)
	}

	err = stream.Publish(&rtmpmsg.NetStreamPublish{
		PublishingName: streamKey,
		PublishingType: "live",
	})
	if err != nil {
		return fmt.Errorf("failed to publish: %w", err)
	}
	return nil
}

// StopStreaming closes the RTMP connection.
func (e *RTMPEngine) StopStreaming() error {
	if e.conn == nil {
		return nil
	}
	conn := e.conn
	e.conn = nil
	e.streamKey = ""

	err := conn.Close()
	if errors.Is(err, io.EOF) || errors.Is(err, net.ErrClosed) {
		err = nil
	}
	e.emit(ConnectionEvent{Kind: EventDisconnected})
	return err
}

func (e *RTMPEngine) AudioConfig() AudioConfig { return e.audio }

func (e *RTMPEngine) SetAudioConfig(cfg AudioConfig) error {
	cfg = cfg.WithDefaults()
	if err := cfg.Validate(); err != nil {
		return err
	}
	e.audio = cfg
	return nil
}

func (e *RTMPEngine) VideoConfig() VideoConfig { return e.video }

// SetVideoConfig applies cfg, restarting capture when it is running.
func (e *RTMPEngine) SetVideoConfig(cfg VideoConfig) error {
	cfg = cfg.WithDefaults()
	if err := cfg.Validate(); err != nil {
		return err
	}
	e.video = cfg
	return e.restartCapture()
}

func (e *RTMPEngine) Camera() DeviceInfo { return e.camera }

// AttachCamera switches capture to device, restarting capture when it is
// running.
func (e *RTMPEngine) AttachCamera(device DeviceInfo) error {
	if device.Kind != DeviceKindVideoInput {
		return fmt.Errorf("device %q is not a camera", device.DeviceID)
	}
	e.camera = device
	return e.restartCapture()
}

func (e *RTMPEngine) Muted() bool { return e.muted }

func (e *RTMPEngine) SetMuted(muted bool) error {
	e.muted = muted
	return nil
}

func (e *RTMPEngine) Zoom() float64 { return e.zoom.Get() }

// SetZoom clamps factor to [1, MaxZoom]. Preview frames are cropped and
// scaled from the next captured frame on.
func (e *RTMPEngine) SetZoom(factor float64) error {
	e.zoom.Set(factor)
	return nil
}

// SetDelegate implements Engine.
func (e *RTMPEngine) SetDelegate(observer EventObserver) {
	e.delegateMu.Lock()
	defer e.delegateMu.Unlock()
	e.delegate = observer
}

// Close stops publishing and capture.
func (e *RTMPEngine) Close() error {
	var result error
	if err := e.StopStreaming(); err != nil {
		result = multierror.Append(result, fmt.Errorf("stop streaming: %w", err))
	}
	if err := e.StopPreview(); err != nil {
		result = multierror.Append(result, fmt.Errorf("stop preview: %w", err))
	}
	return result
}

func (e *RTMPEngine) restartCapture() error {
	if !e.previewing {
		return nil
	}
	if err := e.StopPreview(); err != nil {
		e.logger.Warn("Failed to stop capture for restart", slog.String("error", err.Error()))
	}
	if err := e.StartPreview(); err != nil {
		e.emit(ConnectionEvent{Kind: EventError, ErrorKind: "capture", Detail: err.Error()})
		return err
	}
	return nil
}

func (e *RTMPEngine) emit(ev ConnectionEvent) {
	e.delegateMu.RLock()
	d := e.delegate
	e.delegateMu.RUnlock()
	if d != nil {
		d.OnConnectionEvent(ev)
	}
}

// parseRTMPURL splits rtmp://host[:port]/app[/...] into a dial address and
// application name.
func parseRTMPURL(raw string) (addr, app string, err error) {
	u, err := url.Parse(raw)
	if err != nil {
		return "", "", fmt.Errorf("invalid destination URL: %w", err)
	}
	if u.Scheme != "rtmp" {
		return "", "", fmt.Errorf("unsupported destination scheme %q", u.Scheme)
	}
	if u.Hostname() == "" {
		return "", "", fmt.Errorf("destination URL %q has no host", raw)
	}
	port := u.Port()
	if port == "" {
		port = "1935"
	}
	app = strings.Trim(u.Path, "/")
	if app == "" {
		return "", "", fmt.Errorf("destination URL %q has no application name", raw)
	}
	return net.JoinHostPort(u.Hostname(), port), app, nil
}
