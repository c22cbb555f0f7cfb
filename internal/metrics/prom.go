package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	buildInfo = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "chatfront_build_info",
			Help: "Build information",
		},
		[]string{"date", "sha", "version"},
	)

	backendRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chatfront_backend_requests_total",
			Help: "Backend calls by operation and outcome",
		},
		[]string{"op", "outcome"},
	)

	backendDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "chatfront_backend_request_duration_seconds",
			Help:    "Backend call duration until response headers",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"op"},
	)

	streamsActive = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "chatfront_streams_active",
			Help: "Generation streams currently relayed to clients",
		},
	)

	streamLines = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chatfront_stream_lines_total",
			Help: "Backend stream lines by disposition",
		},
		[]string{"kind"},
	)

	streamErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chatfront_stream_errors_total",
			Help: "Synthetic error events sent to clients",
		},
		[]string{"reason"},
	)

	logins = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chatfront_logins_total",
			Help: "Login attempts by outcome",
		},
		[]string{"outcome"},
	)
)

// Register registers all metrics with the provided registerer.
func Register(r prometheus.Registerer) {
	r.MustRegister(buildInfo, backendRequests, backendDuration, streamsActive, streamLines, streamErrors, logins)
}

// SetBuildInfo sets the build info metric.
func SetBuildInfo(version, sha, date string) {
	buildInfo.WithLabelValues(date, sha, version).Set(1)
}

// Outcome labels used by RecordBackendCall.
const (
	OutcomeOK        = "ok"
	OutcomeAppError  = "app_error"
	OutcomeTransport = "transport_error"
)

// RecordBackendCall counts one backend call and observes its duration.
func RecordBackendCall(op, outcome string, d time.Duration) {
	backendRequests.WithLabelValues(op, outcome).Inc()
	backendDuration.WithLabelValues(op).Observe(d.Seconds())
}

// StreamStarted increments the active stream gauge. Call the returned func
// when the stream ends.
func StreamStarted() func() {
	streamsActive.Inc()
	return streamsActive.Dec
}

// AddStreamLines adds n lines of the given kind ("forwarded" or "dropped").
func AddStreamLines(kind string, n int) {
	if n > 0 {
		streamLines.WithLabelValues(kind).Add(float64(n))
	}
}

// RecordStreamError counts a synthetic error event.
func RecordStreamError(reason string) {
	streamErrors.WithLabelValues(reason).Inc()
}

// RecordLogin counts a login attempt.
func RecordLogin(success bool) {
	outcome := "success"
	if !success {
		outcome = "failure"
	}
	logins.WithLabelValues(outcome).Inc()
}
