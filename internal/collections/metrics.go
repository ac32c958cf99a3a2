package collections

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics collects the service's operational counters on a private
// registry. A nil *Metrics is valid and records nothing, so wiring it is
// optional everywhere.
type Metrics struct {
	registry      *prometheus.Registry
	fetches       *prometheus.CounterVec
	sourceErrors  *prometheus.CounterVec
	sweeps        *prometheus.CounterVec
	sweepDuration *prometheus.HistogramVec
	cacheEntries  prometheus.Gauge
}

func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		fetches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "impactd_fetch_total",
			Help: "Collection fetches by kind and resolution path.",
		}, []string{"kind", "path"}),
		sourceErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "impactd_source_errors_total",
			Help: "Upstream fetch failures by kind and error kind.",
		}, []string{"kind", "error_kind"}),
		sweeps: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "impactd_refresh_sweeps_total",
			Help: "Auto-refresh sweeps by kind and outcome.",
		}, []string{"kind", "outcome"}),
		sweepDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "impactd_refresh_sweep_seconds",
			Help:    "Duration of one auto-refresh sweep per kind.",
			Buckets: prometheus.DefBuckets,
		}, []string{"kind"}),
		cacheEntries: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "impactd_cache_entries",
			Help: "Entries currently held by the TTL cache.",
		}),
	}
	m.registry.MustRegister(m.fetches, m.sourceErrors, m.sweeps, m.sweepDuration, m.cacheEntries)
	return m
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) ObserveFetch(kind Kind, path FetchPath) {
	if m == nil {
		return
	}
	m.fetches.WithLabelValues(string(kind), string(path)).Inc()
}

func (m *Metrics) ObserveSourceError(kind Kind, errKind SourceErrorKind) {
	if m == nil {
		return
	}
	m.sourceErrors.WithLabelValues(string(kind), string(errKind)).Inc()
}

func (m *Metrics) ObserveSweep(kind Kind, duration time.Duration, outcome string) {
	if m == nil {
		return
	}
	m.sweeps.WithLabelValues(string(kind), outcome).Inc()
	m.sweepDuration.WithLabelValues(string(kind)).Observe(duration.Seconds())
}

func (m *Metrics) SetCacheEntries(count int) {
	if m == nil {
		return
	}
	m.cacheEntries.Set(float64(count))
}
