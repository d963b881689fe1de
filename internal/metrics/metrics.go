// Package metrics provides Prometheus metrics for the service.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Resolve outcomes.
const (
	ResolveCacheHit = "cache_hit"
	ResolveExisting = "existing"
	ResolveCreated  = "created"
	ResolveRaceLost = "race_lost"
	ResolveError    = "error"
)

// Issue outcomes.
const (
	IssueIssued       = "issued"
	IssueUnauthorized = "unauthorized"
	IssueInactive     = "inactive"
	IssueInvalid      = "invalid"
	IssueError        = "error"
)

// Metrics holds the service's collectors on a private registry so that
// several instances (one per test) never collide.
type Metrics struct {
	registry *prometheus.Registry

	ResolveTotal         *prometheus.CounterVec
	ParticipantFailures  prometheus.Counter
	IssueTotal           *prometheus.CounterVec
	MessagesSentTotal    prometheus.Counter
	HTTPRequestsTotal    *prometheus.CounterVec
	HTTPRequestDuration  *prometheus.HistogramVec
	WebsocketSubscribers prometheus.Gauge
}

func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,
		ResolveTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "scenyx_conversation_resolve_total",
				Help: "Conversation resolutions by outcome",
			},
			[]string{"outcome"},
		),
		ParticipantFailures: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "scenyx_participant_bootstrap_failures_total",
				Help: "Participant inserts that failed after a conversation was created",
			},
		),
		IssueTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "scenyx_call_credentials_total",
				Help: "Call credential requests by outcome",
			},
			[]string{"outcome"},
		),
		MessagesSentTotal: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "scenyx_messages_sent_total",
				Help: "Direct messages stored",
			},
		),
		HTTPRequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "scenyx_http_requests_total",
				Help: "HTTP requests by route and status",
			},
			[]string{"route", "status"},
		),
		HTTPRequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "scenyx_http_request_duration_seconds",
				Help:    "Duration of HTTP requests in seconds",
				Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
			},
			[]string{"route"},
		),
		WebsocketSubscribers: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "scenyx_websocket_subscribers",
				Help: "Open websocket subscriptions",
			},
		),
	}
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) RecordResolve(outcome string) {
	m.ResolveTotal.WithLabelValues(outcome).Inc()
}

func (m *Metrics) RecordIssue(outcome string) {
	m.IssueTotal.WithLabelValues(outcome).Inc()
}

func (m *Metrics) RecordHTTPRequest(route, status string, duration time.Duration) {
	m.HTTPRequestsTotal.WithLabelValues(route, status).Inc()
	m.HTTPRequestDuration.WithLabelValues(route).Observe(duration.Seconds())
}
