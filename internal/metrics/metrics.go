package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds Prometheus counters and gauges for the playback coordinator.
// Every method is safe to call on a nil *Metrics.
type Metrics struct {
	registry           *prometheus.Registry
	requestsTotal      prometheus.Counter
	errorsTotal        prometheus.Counter
	playAttemptsTotal  *prometheus.CounterVec
	transitionsTotal   *prometheus.CounterVec
	pauseEventsTotal   *prometheus.CounterVec
	streamErrorsTotal  *prometheus.CounterVec
	fallbackStepsTotal *prometheus.CounterVec
	exhaustedTotal     *prometheus.CounterVec
	surfaceSwapsTotal  *prometheus.CounterVec
	syncDriftSeconds   prometheus.Histogram
	eventSubscribers   prometheus.Gauge
}

// New creates and registers Prometheus metrics for the coordinator.
func New() *Metrics {
	registry := prometheus.NewRegistry()

	m := &Metrics{
		registry: registry,
		requestsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "vguide_api_requests_total",
			Help: "Total number of HTTP requests received",
		}),
		errorsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "vguide_api_errors_total",
			Help: "Total number of HTTP responses with error status (4xx or 5xx)",
		}),
		playAttemptsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "vguide_play_attempts_total",
			Help: "Play attempts by outcome",
		}, []string{"outcome"}),
		transitionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "vguide_playback_transitions_total",
			Help: "Playback state transitions",
		}, []string{"from", "to"}),
		pauseEventsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "vguide_pause_events_total",
			Help: "Reactive pause events by how they were handled",
		}, []string{"reaction"}),
		streamErrorsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "vguide_stream_errors_total",
			Help: "Classified errors reported by the coordinator",
		}, []string{"kind", "surface"}),
		fallbackStepsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "vguide_fallback_steps_total",
			Help: "Resolution fallback steps taken",
		}, []string{"surface"}),
		exhaustedTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "vguide_resolution_exhausted_total",
			Help: "Streams whose fallback ladder ran out",
		}, []string{"surface"}),
		surfaceSwapsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "vguide_surface_swaps_total",
			Help: "Visible surface swaps by destination",
		}, []string{"to"}),
		syncDriftSeconds: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "vguide_sync_drift_seconds",
			Help:    "Time difference between surfaces after a swap",
			Buckets: []float64{0.05, 0.1, 0.2, 0.5, 1, 2, 5},
		}),
		eventSubscribers: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "vguide_event_subscribers",
			Help: "Number of active event stream subscribers",
		}),
	}

	registry.MustRegister(
		m.requestsTotal,
		m.errorsTotal,
		m.playAttemptsTotal,
		m.transitionsTotal,
		m.pauseEventsTotal,
		m.streamErrorsTotal,
		m.fallbackStepsTotal,
		m.exhaustedTotal,
		m.surfaceSwapsTotal,
		m.syncDriftSeconds,
		m.eventSubscribers,
	)
	return m
}

// Registry returns the underlying registry
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// IncRequests increments the total request counter.
func (m *Metrics) IncRequests() {
	if m == nil {
		return
	}
	m.requestsTotal.Inc()
}

// IncErrors increments the errors counter.
func (m *Metrics) IncErrors() {
	if m == nil {
		return
	}
	m.errorsTotal.Inc()
}

// RecordPlayAttempt counts a finished play attempt
func (m *Metrics) RecordPlayAttempt(outcome string) {
	if m == nil {
		return
	}
	m.playAttemptsTotal.WithLabelValues(outcome).Inc()
}

// RecordTransition counts a playback state change
func (m *Metrics) RecordTransition(from, to string) {
	if m == nil {
		return
	}
	m.transitionsTotal.WithLabelValues(from, to).Inc()
}

// RecordPauseEvent counts a reactive pause event
func (m *Metrics) RecordPauseEvent(reaction string) {
	if m == nil {
		return
	}
	m.pauseEventsTotal.WithLabelValues(reaction).Inc()
}

// RecordStreamError counts a classified error
func (m *Metrics) RecordStreamError(kind, surface string) {
	if m == nil {
		return
	}
	m.streamErrorsTotal.WithLabelValues(kind, surface).Inc()
}

// RecordFallbackStep counts one move down the resolution ladder
func (m *Metrics) RecordFallbackStep(surface string) {
	if m == nil {
		return
	}
	m.fallbackStepsTotal.WithLabelValues(surface).Inc()
}

// RecordExhausted counts a surface running out of fallbacks
func (m *Metrics) RecordExhausted(surface string) {
	if m == nil {
		return
	}
	m.exhaustedTotal.WithLabelValues(surface).Inc()
}

// RecordSwap counts a visible surface change and the drift measured after it
func (m *Metrics) RecordSwap(to string, driftSeconds float64) {
	if m == nil {
		return
	}
	m.surfaceSwapsTotal.WithLabelValues(to).Inc()
	m.syncDriftSeconds.Observe(driftSeconds)
}

// SetSubscribers sets the event subscriber gauge
func (m *Metrics) SetSubscribers(n int) {
	if m == nil {
		return
	}
	m.eventSubscribers.Set(float64(n))
}

// Handler returns an http.Handler that serves Prometheus metrics.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
