// Package metrics exposes the cache's Prometheus instrumentation on a private
// registry, so embedding the cache never pollutes the global default registry.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics 汇总缓存引擎、回源与清理任务的计数器。nil *Metrics 上的所有方法都是空操作。
type Metrics struct {
	registry         *prometheus.Registry
	requests         *prometheus.CounterVec
	upstreamErrors   *prometheus.CounterVec
	purgeRemoved     *prometheus.CounterVec
	upstreamDuration *prometheus.HistogramVec
}

// New registers every collector on a fresh registry.
func New() *Metrics {
	registry := prometheus.NewRegistry()

	requests := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "api_cache_requests_total",
		Help: "Total requests handled by the cache engine, by outcome",
	}, []string{"host", "outcome"})

	upstreamErrors := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "api_cache_upstream_errors_total",
		Help: "Total failed upstream fetches",
	}, []string{"host", "kind"})

	purgeRemoved := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "api_cache_purge_removed_total",
		Help: "Files and directories removed by purge runs",
	}, []string{"kind"})

	upstreamDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "api_cache_upstream_duration_seconds",
		Help:    "Upstream fetch duration",
		Buckets: prometheus.DefBuckets,
	}, []string{"host"})

	registry.MustRegister(requests, upstreamErrors, purgeRemoved, upstreamDuration)

	return &Metrics{
		registry:         registry,
		requests:         requests,
		upstreamErrors:   upstreamErrors,
		purgeRemoved:     purgeRemoved,
		upstreamDuration: upstreamDuration,
	}
}

// Registry returns the private registry, mainly for tests.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// Handler 返回 Prometheus 文本格式的 http.Handler；nil Metrics 时返回 503。
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
		})
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) RecordRequest(host, outcome string) {
	if m == nil {
		return
	}
	if outcome == "" {
		outcome = "unknown"
	}
	m.requests.WithLabelValues(host, outcome).Inc()
}

func (m *Metrics) RecordUpstreamError(host, kind string) {
	if m == nil {
		return
	}
	if kind == "" {
		kind = "unknown"
	}
	m.upstreamErrors.WithLabelValues(host, kind).Inc()
}

func (m *Metrics) ObserveUpstream(host string, duration time.Duration) {
	if m == nil {
		return
	}
	m.upstreamDuration.WithLabelValues(host).Observe(duration.Seconds())
}

// RecordPurge 累加一次 Purge 删除的文件数与目录数。
func (m *Metrics) RecordPurge(files, dirs int) {
	if m == nil {
		return
	}
	if files > 0 {
		m.purgeRemoved.WithLabelValues("file").Add(float64(files))
	}
	if dirs > 0 {
		m.purgeRemoved.WithLabelValues("dir").Add(float64(dirs))
	}
}
