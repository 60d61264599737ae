package livecam

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestConnectionEvent_String(t *testing.T) {
	tests := []struct {
		ev   ConnectionEvent
		want string
	}{
		{ConnectionEvent{Kind: EventSuccess}, "success"},
		{ConnectionEvent{Kind: EventFailed, Reason: "refused"}, "failed(refused)"},
		{ConnectionEvent{Kind: EventDisconnected}, "disconnected"},
		{ConnectionEvent{Kind: EventError, ErrorKind: "capture", Detail: "busy"}, "error(capture, busy)"},
		{ConnectionEvent{Kind: EventVideoSizeChanged, Width: 640, Height: 480}, "video_size_changed(640x480)"},
		{ConnectionEvent{Kind: EventKind(42)}, "unknown"},
	}
	for _, tt := range tests {
		if got := tt.ev.String(); got != tt.want {
			t.Errorf("String() = %q, want %q", got, tt.want)
		}
	}
}

func TestEventBridge_SingleDelegate(t *testing.T) {
	metrics := NewMetrics(prometheus.NewRegistry())
	b := NewEventBridge(metrics)

	// No delegate: dropped, but still counted.
	b.OnConnectionEvent(ConnectionEvent{Kind: EventDisconnected})

	first, second := &eventRecorder{}, &eventRecorder{}
	b.SetDelegate(first)
	b.OnConnectionEvent(ConnectionEvent{Kind: EventSuccess})
	b.SetDelegate(second)
	b.OnConnectionEvent(ConnectionEvent{Kind: EventFailed, Reason: "x"})

	if got := first.kinds(); len(got) != 1 || got[0] != EventSuccess {
		t.Errorf("first delegate got %v, want [success]", got)
	}
	got := second.snapshot()
	if len(got) != 1 || got[0].Kind != EventFailed || got[0].Reason != "x" {
		t.Errorf("second delegate got %v, want [failed(x)]", got)
	}

	b.SetDelegate(nil)
	b.OnConnectionEvent(ConnectionEvent{Kind: EventSuccess})
	if n := len(second.snapshot()); n != 1 {
		t.Errorf("cleared delegate received events: %d", n)
	}

	if got := testutil.ToFloat64(metrics.EventsForwarded.WithLabelValues("success")); got != 2 {
		t.Errorf("success events = %v, want 2", got)
	}
	if got := testutil.ToFloat64(metrics.EventsForwarded.WithLabelValues("disconnected")); got != 1 {
		t.Errorf("disconnected events = %v, want 1", got)
	}
}

func TestEventObserverFunc(t *testing.T) {
	var got ConnectionEvent
	var obs EventObserver = EventObserverFunc(func(ev ConnectionEvent) { got = ev })
	obs.OnConnectionEvent(ConnectionEvent{Kind: EventVideoSizeChanged, Width: 1, Height: 2})
	if got.Kind != EventVideoSizeChanged || got.Width != 1 || got.Height != 2 {
		t.Errorf("got %v", got)
	}
}

func TestMetrics_NilIsNoop(t *testing.T) {
	var m *Metrics
	m.SetState(StateReady)
	m.RecordConstruction(0, nil)
	m.RecordAudioSessionFailure()
	m.RecordStreamStart(errBoom)
	m.RecordDeviceEnumeration(nil)
	m.RecordDeviceCacheHit()
	m.RecordDeviceCacheMiss()
	m.RecordEvent(EventSuccess)
}

func TestMetrics_SetState(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())
	m.SetState(StateInitializing)
	m.SetState(StateReady)

	for _, s := range allStates {
		want := 0.0
		if s == StateReady {
			want = 1
		}
		if got := testutil.ToFloat64(m.SessionState.WithLabelValues(s.String())); got != want {
			t.Errorf("state %s = %v, want %v", s, got, want)
		}
	}
}
