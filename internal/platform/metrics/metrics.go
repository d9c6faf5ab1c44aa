// Package metrics defines the Prometheus collectors of the service and the
// handler exposing them.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "docintel"

// Metrics holds every collector on its own registry.
type Metrics struct {
	registry *prometheus.Registry

	HTTPRequests       *prometheus.CounterVec
	HTTPDuration       *prometheus.HistogramVec
	ProcessingTotal    *prometheus.CounterVec
	ProcessingDuration *prometheus.HistogramVec
	SweepTotal         *prometheus.CounterVec
	JobsTotal          *prometheus.CounterVec
	CacheLookups       *prometheus.CounterVec
	RateLimitRejected  *prometheus.CounterVec
	UploadBytes        prometheus.Histogram
}

// New creates and registers the collectors, including the Go runtime and
// process collectors.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		HTTPRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests by route pattern, method and status code.",
		}, []string{"route", "method", "status"}),
		HTTPDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency by route pattern.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"route", "method"}),
		ProcessingTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "document_processing_total",
			Help:      "Document processing attempts by outcome.",
		}, []string{"outcome"}),
		ProcessingDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "document_processing_duration_seconds",
			Help:      "Document processing attempt duration by outcome.",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120, 300},
		}, []string{"outcome"}),
		SweepTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "document_sweep_total",
			Help:      "Documents changed by the stuck-document sweep.",
		}, []string{"action"}),
		JobsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "jobs_total",
			Help:      "Background jobs run by name and result.",
		}, []string{"job", "result"}),
		CacheLookups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_lookups_total",
			Help:      "Cache lookups by namespace and result.",
		}, []string{"namespace", "result"}),
		RateLimitRejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rate_limit_rejected_total",
			Help:      "Requests rejected by the rate limiter by tier.",
		}, []string{"tier"}),
		UploadBytes: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "upload_size_bytes",
			Help:      "Size of accepted uploads.",
			Buckets:   prometheus.ExponentialBuckets(1024, 4, 10),
		}),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.HTTPRequests,
		m.HTTPDuration,
		m.ProcessingTotal,
		m.ProcessingDuration,
		m.SweepTotal,
		m.JobsTotal,
		m.CacheLookups,
		m.RateLimitRejected,
		m.UploadBytes,
	)
	return m
}

// Registry returns the registry holding the collectors.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// ObserveProcessing records a document processing attempt.
func (m *Metrics) ObserveProcessing(outcome string, elapsed time.Duration) {
	m.ProcessingTotal.WithLabelValues(outcome).Inc()
	m.ProcessingDuration.WithLabelValues(outcome).Observe(elapsed.Seconds())
}

// ObserveSweep records a sweep run.
func (m *Metrics) ObserveSweep(timedOut, requeued int) {
	m.SweepTotal.WithLabelValues("timed_out").Add(float64(timedOut))
	m.SweepTotal.WithLabelValues("requeued").Add(float64(requeued))
}

// ObserveJob records a finished background job.
func (m *Metrics) ObserveJob(name string, _ time.Duration, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.JobsTotal.WithLabelValues(name, result).Inc()
}

// ObserveCacheLookup records a cache hit or miss.
func (m *Metrics) ObserveCacheLookup(ns string, hit bool) {
	result := "miss"
	if hit {
		result = "hit"
	}
	m.CacheLookups.WithLabelValues(ns, result).Inc()
}

// ObserveRateLimitRejection records a rejected request.
func (m *Metrics) ObserveRateLimitRejection(tier string) {
	m.RateLimitRejected.WithLabelValues(tier).Inc()
}

// ObserveUpload records the size of an accepted upload.
func (m *Metrics) ObserveUpload(size int64) {
	m.UploadBytes.Observe(float64(size))
}

// ObserveHTTP records a served request.
func (m *Metrics) ObserveHTTP(route, method string, status int, elapsed time.Duration) {
	m.HTTPRequests.WithLabelValues(route, method, strconv.Itoa(status)).Inc()
	m.HTTPDuration.WithLabelValues(route, method).Observe(elapsed.Seconds())
}
