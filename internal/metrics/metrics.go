// Package metrics holds the Prometheus collectors for the login receiver,
// the Graph client and attendee resolution.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/njt/schedule365/libgo365"
)

const namespace = "schedule365"

// Callback outcomes
const (
	CallbackDelivered = "delivered"
	CallbackMissing   = "missing_code"
	CallbackDuplicate = "duplicate"
)

// Resolution outcomes
const (
	ResolutionResolved   = "resolved"
	ResolutionUnresolved = "unresolved"
)

// Metrics is a private registry with the application's collectors.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	registry *prometheus.Registry

	callbacks    *prometheus.CounterVec
	graphReqs    *prometheus.CounterVec
	graphLatency *prometheus.HistogramVec
	resolutions  *prometheus.CounterVec
	events       prometheus.Counter
}

// New creates and registers all collectors.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		callbacks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "auth_callbacks_total",
			Help:      "OAuth redirect callbacks received, by outcome.",
		}, []string{"outcome"}),
		graphReqs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "graph_requests_total",
			Help:      "Microsoft Graph request attempts, by method, status and error kind.",
		}, []string{"method", "status", "kind"}),
		graphLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "graph_request_duration_seconds",
			Help:      "Microsoft Graph request latency.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method"}),
		resolutions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "attendee_resolutions_total",
			Help:      "Attendee name lookups, by outcome.",
		}, []string{"outcome"}),
		events: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_created_total",
			Help:      "Calendar events created.",
		}),
	}

	m.registry.MustRegister(m.callbacks, m.graphReqs, m.graphLatency, m.resolutions, m.events)
	return m
}

// Handler exposes the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// Callback counts a /callback request by outcome.
func (m *Metrics) Callback(outcome string) {
	if m == nil {
		return
	}
	m.callbacks.WithLabelValues(outcome).Inc()
}

// Resolution counts one attendee lookup by outcome.
func (m *Metrics) Resolution(outcome string) {
	if m == nil {
		return
	}
	m.resolutions.WithLabelValues(outcome).Inc()
}

// EventCreated counts a meeting created in Graph.
func (m *Metrics) EventCreated() {
	if m == nil {
		return
	}
	m.events.Inc()
}

// ObserveGraphRequest implements libgo365.RequestObserver.
func (m *Metrics) ObserveGraphRequest(method string, status int, kind libgo365.ErrorKind, elapsed time.Duration) {
	if m == nil {
		return
	}
	k := string(kind)
	if k == "" {
		k = "none"
	}
	m.graphReqs.WithLabelValues(method, strconv.Itoa(status), k).Inc()
	m.graphLatency.WithLabelValues(method).Observe(elapsed.Seconds())
}

var _ libgo365.RequestObserver = (*Metrics)(nil)
