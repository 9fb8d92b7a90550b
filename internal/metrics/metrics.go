// Package metrics exports sign-in protocol and HTTP counters to Prometheus.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/dgellow/identity-bot/internal/auth"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "identity_bot"

// Label names
const (
	LabelProvider = "provider"
	LabelResult   = "result"
	LabelMethod   = "method"
	LabelRoute    = "route"
	LabelStatus   = "status"
)

// Metrics holds the bot's collectors on a private registry.
type Metrics struct {
	registry *prometheus.Registry

	signInStarted       *prometheus.CounterVec
	callbacksHandled    *prometheus.CounterVec
	verificationHandled *prometheus.CounterVec

	httpRequestsTotal   *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec
}

var _ auth.Recorder = (*Metrics)(nil)

// New creates the metrics and registers them with a fresh registry
func New() *Metrics {
	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector())
	registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	factory := promauto.With(registry)
	return &Metrics{
		registry: registry,
		signInStarted: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "signin_started_total",
			Help:      "Sign-in flows started from chat.",
		}, []string{LabelProvider}),
		callbacksHandled: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "oauth_callbacks_total",
			Help:      "OAuth callbacks handled, by outcome.",
		}, []string{LabelProvider, LabelResult}),
		verificationHandled: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "verifications_total",
			Help:      "Verification codes submitted, by outcome.",
		}, []string{LabelProvider, LabelResult}),
		httpRequestsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests served.",
		}, []string{LabelMethod, LabelRoute, LabelStatus}),
		httpRequestDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency in seconds.",
			Buckets:   prometheus.DefBuckets,
		}, []string{LabelMethod, LabelRoute}),
	}
}

func (m *Metrics) SignInStarted(provider string) {
	m.signInStarted.WithLabelValues(provider).Inc()
}

func (m *Metrics) CallbackHandled(provider, result string) {
	m.callbacksHandled.WithLabelValues(provider, result).Inc()
}

func (m *Metrics) VerificationHandled(provider, result string) {
	m.verificationHandled.WithLabelValues(provider, result).Inc()
}

// RecordHTTPRequest records one served request. route is the mux pattern,
// never the raw path, to keep label cardinality bounded.
func (m *Metrics) RecordHTTPRequest(method, route string, status int, duration time.Duration) {
	m.httpRequestsTotal.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	m.httpRequestDuration.WithLabelValues(method, route).Observe(duration.Seconds())
}

// Handler serves the registry in the Prometheus exposition format
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
	})
}

// Registry returns the underlying registry
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}
