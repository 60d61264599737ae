package livecam

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics contains the Prometheus metrics of a Manager and its collaborators.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	// Lifecycle
	SessionState         *prometheus.GaugeVec
	EngineConstructions  prometheus.Counter
	ConstructionFailures prometheus.Counter
	ConstructionDuration prometheus.Histogram
	AudioSessionFailures prometheus.Counter

	// Streaming
	StreamStarts   prometheus.Counter
	StreamFailures prometheus.Counter

	// Device cache
	DeviceEnumerations      prometheus.Counter
	DeviceEnumerationErrors prometheus.Counter
	DeviceCacheHits         prometheus.Counter
	DeviceCacheMisses       prometheus.Counter

	// Events
	EventsForwarded *prometheus.CounterVec
}

// NewMetrics creates the metrics and registers them with reg. Pass
// prometheus.DefaultRegisterer to expose them on the default handler.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		SessionState: f.NewGaugeVec(prometheus.GaugeOpts{
			Name: "livecam_session_state",
			Help: "1 for the current session state, 0 otherwise",
		}, []string{"state"}),
		EngineConstructions: f.NewCounter(prometheus.CounterOpts{
			Name: "livecam_engine_constructions_total",
			Help: "Total number of engine construction attempts",
		}),
		ConstructionFailures: f.NewCounter(prometheus.CounterOpts{
			Name: "livecam_engine_construction_failures_total",
			Help: "Total number of failed engine constructions",
		}),
		ConstructionDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "livecam_engine_construction_duration_seconds",
			Help:    "Time from first start request to Ready",
			Buckets: prometheus.ExponentialBuckets(0.01, 2, 12), // 10ms to ~40s
		}),
		AudioSessionFailures: f.NewCounter(prometheus.CounterOpts{
			Name: "livecam_audio_session_failures_total",
			Help: "Total number of non-fatal audio session configuration failures",
		}),
		StreamStarts: f.NewCounter(prometheus.CounterOpts{
			Name: "livecam_stream_starts_total",
			Help: "Total number of successful stream starts",
		}),
		StreamFailures: f.NewCounter(prometheus.CounterOpts{
			Name: "livecam_stream_failures_total",
			Help: "Total number of rejected stream starts",
		}),
		DeviceEnumerations: f.NewCounter(prometheus.CounterOpts{
			Name: "livecam_device_enumerations_total",
			Help: "Total number of device enumerations performed",
		}),
		DeviceEnumerationErrors: f.NewCounter(prometheus.CounterOpts{
			Name: "livecam_device_enumeration_errors_total",
			Help: "Total number of failed device enumerations",
		}),
		DeviceCacheHits: f.NewCounter(prometheus.CounterOpts{
			Name: "livecam_device_cache_hits_total",
			Help: "Total number of device lookups served from cache",
		}),
		DeviceCacheMisses: f.NewCounter(prometheus.CounterOpts{
			Name: "livecam_device_cache_misses_total",
			Help: "Total number of device lookups that started an enumeration",
		}),
		EventsForwarded: f.NewCounterVec(prometheus.CounterOpts{
			Name: "livecam_events_forwarded_total",
			Help: "Total number of engine events forwarded to the delegate",
		}, []string{"kind"}),
	}
}

var allStates = []SessionState{StateUninitialized, StateInitializing, StateReady, StateStreaming, StateDisposed}

// SetState marks s as the current session state.
func (m *Metrics) SetState(s SessionState) {
	if m == nil {
		return
	}
	for _, st := range allStates {
		v := 0.0
		if st == s {
			v = 1
		}
		m.SessionState.WithLabelValues(st.String()).Set(v)
	}
}

// RecordConstruction records a finished construction attempt.
func (m *Metrics) RecordConstruction(d time.Duration, err error) {
	if m == nil {
		return
	}
	m.EngineConstructions.Inc()
	if err != nil {
		m.ConstructionFailures.Inc()
		return
	}
	m.ConstructionDuration.Observe(d.Seconds())
}

// RecordAudioSessionFailure increments the audio session failure counter.
func (m *Metrics) RecordAudioSessionFailure() {
	if m == nil {
		return
	}
	m.AudioSessionFailures.Inc()
}

// RecordStreamStart records the outcome of a StartStreaming call.
func (m *Metrics) RecordStreamStart(err error) {
	if m == nil {
		return
	}
	if err != nil {
		m.StreamFailures.Inc()
		return
	}
	m.StreamStarts.Inc()
}

// RecordDeviceEnumeration records one provider enumeration.
func (m *Metrics) RecordDeviceEnumeration(err error) {
	if m == nil {
		return
	}
	m.DeviceEnumerations.Inc()
	if err != nil {
		m.DeviceEnumerationErrors.Inc()
	}
}

// RecordDeviceCacheHit increments the cache hit counter.
func (m *Metrics) RecordDeviceCacheHit() {
	if m == nil {
		return
	}
	m.DeviceCacheHits.Inc()
}

// RecordDeviceCacheMiss increments the cache miss counter.
func (m *Metrics) RecordDeviceCacheMiss() {
	if m == nil {
		return
	}
	m.DeviceCacheMisses.Inc()
}

// RecordEvent counts a forwarded event.
func (m *Metrics) RecordEvent(kind EventKind) {
	if m == nil {
		return
	}
	m.EventsForwarded.WithLabelValues(kind.String()).Inc()
}
