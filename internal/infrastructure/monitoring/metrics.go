package monitoring

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics
type Metrics struct {
	// HTTP metrics
	RequestsTotal   *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec

	// Supervisor metrics
	Attempts      *prometheus.CounterVec
	StartDuration *prometheus.HistogramVec
	LogLines      *prometheus.CounterVec
	Running       prometheus.Gauge

	// Event stream metrics
	Events        *prometheus.CounterVec
	WSConnections prometheus.Gauge
	WSDropped     prometheus.Counter
}

// NewMetrics registers the collectors on reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		RequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "shinyhost_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		RequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "shinyhost_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10, 30, 60},
			},
			[]string{"method", "path"},
		),

		Attempts: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "shinyhost_start_attempts_total",
				Help: "Start attempts by outcome",
			},
			[]string{"outcome"},
		),
		StartDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "shinyhost_start_duration_seconds",
				Help:    "Time from Start until ready or final failure",
				Buckets: []float64{.5, 1, 2.5, 5, 10, 20, 40, 80, 160},
			},
			[]string{"result"},
		),
		LogLines: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "shinyhost_runtime_log_lines_total",
				Help: "Lines read from the runtime by stream",
			},
			[]string{"stream"},
		),
		Running: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "shinyhost_runtime_running",
				Help: "1 while a runtime is registered and ready",
			},
		),

		Events: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "shinyhost_events_total",
				Help: "Events published to subscribers by topic",
			},
			[]string{"topic"},
		),
		WSConnections: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "shinyhost_ws_connections",
				Help: "Number of active WebSocket connections",
			},
		),
		WSDropped: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "shinyhost_ws_dropped_frames_total",
				Help: "Frames dropped because a subscriber was too slow",
			},
		),
	}
}

// RecordHTTPRequest records an HTTP request
func (m *Metrics) RecordHTTPRequest(method, path, status string, duration time.Duration) {
	m.RequestsTotal.WithLabelValues(method, path, status).Inc()
	m.RequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
}

// AttemptFinished counts one start attempt.
func (m *Metrics) AttemptFinished(outcome string) {
	m.Attempts.WithLabelValues(outcome).Inc()
}

// StartFinished observes the duration of a whole Start call.
func (m *Metrics) StartFinished(success bool, d time.Duration) {
	result := "failure"
	if success {
		result = "success"
	}
	m.StartDuration.WithLabelValues(result).Observe(d.Seconds())
}

// LogLine counts one line of runtime output.
func (m *Metrics) LogLine(stream string) {
	m.LogLines.WithLabelValues(stream).Inc()
}

// SetRunning flips the running gauge.
func (m *Metrics) SetRunning(running bool) {
	if running {
		m.Running.Set(1)
		return
	}
	m.Running.Set(0)
}

// RecordEvent counts a published event.
func (m *Metrics) RecordEvent(topic string) {
	m.Events.WithLabelValues(topic).Inc()
}

// IncWSConnections increments WebSocket connections
func (m *Metrics) IncWSConnections() {
	m.WSConnections.Inc()
}

// DecWSConnections decrements WebSocket connections
func (m *Metrics) DecWSConnections() {
	m.WSConnections.Dec()
}

// IncWSDropped counts a frame dropped for a slow subscriber.
func (m *Metrics) IncWSDropped() {
	m.WSDropped.Inc()
}
