// Package metrics exposes Prometheus collectors for upstream requests,
// schedule loads and favorite toggles.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "wigc"

// Metrics holds the collectors on a private registry. A nil *Metrics is valid
// and records nothing.
type Metrics struct {
	registry *prometheus.Registry

	upstreamRequests *prometheus.CounterVec
	upstreamDuration *prometheus.HistogramVec
	scheduleLoads    *prometheus.CounterVec
	scheduleEvents   prometheus.Gauge
	favoriteToggles  *prometheus.CounterVec
}

// New registers all collectors, plus the Go and process collectors.
func New() *Metrics {
	m := &Metrics{registry: prometheus.NewRegistry()}

	m.upstreamRequests = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "upstream_requests_total",
		Help:      "Requests to WordPress and Supabase by service, method and status code",
	}, []string{"service", "code", "method"})
	m.upstreamDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "upstream_request_duration_seconds",
		Help:      "Latency of upstream requests",
		Buckets:   prometheus.DefBuckets,
	}, []string{"service", "method"})
	m.scheduleLoads = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "schedule_loads_total",
		Help:      "Schedule fetch-and-assemble runs by result",
	}, []string{"result"})
	m.scheduleEvents = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "schedule_events",
		Help:      "Number of events in the most recently loaded schedule",
	})
	m.favoriteToggles = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "favorite_toggles_total",
		Help:      "Favorite toggles by action and result",
	}, []string{"action", "result"})

	m.registry.MustRegister(
		m.upstreamRequests, m.upstreamDuration,
		m.scheduleLoads, m.scheduleEvents, m.favoriteToggles,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry returns the underlying registry, mostly for tests.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// Transport instruments next with request counts and latencies labelled by
// service. A nil next means http.DefaultTransport.
func (m *Metrics) Transport(service string, next http.RoundTripper) http.RoundTripper {
	if next == nil {
		next = http.DefaultTransport
	}
	if m == nil {
		return next
	}
	labels := prometheus.Labels{"service": service}
	return promhttp.InstrumentRoundTripperCounter(
		m.upstreamRequests.MustCurryWith(labels),
		promhttp.InstrumentRoundTripperDuration(
			m.upstreamDuration.MustCurryWith(labels),
			next,
		),
	)
}

// ObserveScheduleLoad records the outcome of a schedule load.
func (m *Metrics) ObserveScheduleLoad(events int, err error) {
	if m == nil {
		return
	}
	if err != nil {
		m.scheduleLoads.WithLabelValues("error").Inc()
		return
	}
	m.scheduleLoads.WithLabelValues("ok").Inc()
	m.scheduleEvents.Set(float64(events))
}

// ObserveToggle records a favorite toggle. starred is the state the user asked
// for.
func (m *Metrics) ObserveToggle(starred bool, err error) {
	if m == nil {
		return
	}
	action := "remove"
	if starred {
		action = "add"
	}
	result := "ok"
	if err != nil {
		result = "reverted"
	}
	m.favoriteToggles.WithLabelValues(action, result).Inc()
}
