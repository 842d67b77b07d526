package telemetry

import (
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	once sync.Once

	JobsDispatched    = prometheus.NewCounter(prometheus.CounterOpts{Name: "docgen_jobs_dispatched_total", Help: "Total jobs handed to a dispatcher"})
	JobsCompleted     = prometheus.NewCounter(prometheus.CounterOpts{Name: "docgen_jobs_completed_total", Help: "Jobs that reached completed"})
	JobsFailed        = prometheus.NewCounter(prometheus.CounterOpts{Name: "docgen_jobs_failed_total", Help: "Jobs that reached failed"})
	JobsInFlight      = prometheus.NewGauge(prometheus.GaugeOpts{Name: "docgen_jobs_inflight", Help: "Jobs currently executing"})
	StreamSubscribers = prometheus.NewGauge(prometheus.GaugeOpts{Name: "docgen_stream_subscribers", Help: "Open progress stream subscriptions"})
	RateLimitRejects  = prometheus.NewCounter(prometheus.CounterOpts{Name: "docgen_rate_limit_rejects_total", Help: "Agent runs rejected by the rate limiter"})
	FilesUploaded     = prometheus.NewCounter(prometheus.CounterOpts{Name: "docgen_files_uploaded_total", Help: "Files accepted by the upload endpoint"})
)

// Handler exposes /metrics HTTP handler with a singleton registry.
func Handler() http.Handler {
	once.Do(func() {
		prometheus.MustRegister(
			JobsDispatched,
			JobsCompleted,
			JobsFailed,
			JobsInFlight,
			StreamSubscribers,
			RateLimitRejects,
			FilesUploaded,
		)
	})
	return promhttp.Handler()
}
