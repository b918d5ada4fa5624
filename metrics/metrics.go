// Package metrics expõe os contadores do gateway no formato Prometheus.
//
// Metrics implementa pipeline.Observer, auth.FailureRecorder,
// ratelimit.DecisionRecorder e accesslog.DropCounter.
package metrics

import (
	"net/http"
	"strconv"

	"edge-gateway/middleware/pipeline"
	"edge-gateway/middleware/ratelimit/domain"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "gateway"

type Metrics struct {
	requests      *prometheus.CounterVec
	duration      *prometheus.HistogramVec
	authFailures  *prometheus.CounterVec
	rateLimit     *prometheus.CounterVec
	accessDropped prometheus.Counter

	registry *prometheus.Registry
	handler  http.Handler
}

func New() *Metrics {
	m := &Metrics{
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "requests_total",
			Help:      "Requests handled by the gateway, by route and status code.",
		}, []string{"route", "code"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "request_duration_seconds",
			Help:      "End-to-end request latency seen by the gateway.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"route"}),
		authFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "auth",
			Name:      "failures_total",
			Help:      "Rejected bearer tokens, by reason.",
		}, []string{"reason"}),
		rateLimit: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ratelimit",
			Name:      "decisions_total",
			Help:      "Rate limit decisions, by outcome (allowed, denied, failopen).",
		}, []string{"outcome"}),
		accessDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "accesslog",
			Name:      "dropped_total",
			Help:      "Access log entries dropped because the buffer was full.",
		}),
		registry: prometheus.NewRegistry(),
	}

	m.registry.MustRegister(
		m.requests,
		m.duration,
		m.authFailures,
		m.rateLimit,
		m.accessDropped,
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		collectors.NewGoCollector(),
	)
	m.handler = promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
	return m
}

func (m *Metrics) Observe(e pipeline.Entry) {
	route := e.Annotations[pipeline.AnnotationRoute]
	if route == "" {
		route = "none"
	}
	m.requests.WithLabelValues(route, strconv.Itoa(e.Status)).Inc()
	m.duration.WithLabelValues(route).Observe(e.Duration.Seconds())
}

func (m *Metrics) AuthFailure(reason string) {
	m.authFailures.WithLabelValues(reason).Inc()
}

func (m *Metrics) RateLimitDecision(outcome domain.Outcome) {
	m.rateLimit.WithLabelValues(string(outcome)).Inc()
}

func (m *Metrics) AccessLogDropped() {
	m.accessDropped.Inc()
}

func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// Handler serve /metrics.
func (m *Metrics) Handler() http.Handler { return m.handler }
