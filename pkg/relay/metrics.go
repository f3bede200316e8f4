package relay

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const metricsNamespace = "mazda_relay"

// unmatched is the member label recorded when no candidate matched an action.
const unmatched = "none"

type metrics struct {
	registry *prometheus.Registry

	// requests counts responses by route and status code.
	requests *prometheus.CounterVec
	// latency records handler latency by route.
	latency *prometheus.HistogramVec
	// matches counts which client member served each action.
	matches *prometheus.CounterVec
	// constructions counts client construction attempts by outcome (ok/error).
	constructions *prometheus.CounterVec
}

func newMetrics(registry *prometheus.Registry) *metrics {
	m := &metrics{
		registry: registry,
		requests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Name:      "requests_total",
				Help:      "Total number of relay requests by route and status code.",
			},
			[]string{"route", "code"},
		),
		latency: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: metricsNamespace,
				Name:      "request_duration_seconds",
				Help:      "Latency of relay requests, including upstream calls.",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"route"},
		),
		matches: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Name:      "capability_matches_total",
				Help:      "Upstream client members selected for each action.",
			},
			[]string{"action", "member"},
		),
		constructions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Name:      "client_constructions_total",
				Help:      "Upstream client construction attempts by outcome.",
			},
			[]string{"result"},
		),
	}
	registry.MustRegister(m.requests, m.latency, m.matches, m.constructions)
	return m
}

// instrument wraps a route's handler with request counting and latency observation.
func (m *metrics) instrument(route string, h http.Handler) http.Handler {
	labels := prometheus.Labels{"route": route}
	h = promhttp.InstrumentHandlerCounter(m.requests.MustCurryWith(labels), h)
	return promhttp.InstrumentHandlerDuration(m.latency.MustCurryWith(labels), h)
}

func (m *metrics) matched(action, member string) {
	if member == "" {
		member = unmatched
	}
	m.matches.WithLabelValues(action, member).Inc()
}

func (m *metrics) constructed(err error) {
	if err != nil {
		m.constructions.WithLabelValues("error").Inc()
		return
	}
	m.constructions.WithLabelValues("ok").Inc()
}

func (m *metrics) handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}
