package metrics

import (
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	HTTPRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mediagate_http_requests_total",
			Help: "Total number of HTTP requests.",
		},
		[]string{"method", "route", "status"},
	)

	HTTPDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "mediagate_http_request_duration_seconds",
			Help:    "HTTP request latencies in seconds.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)

	Uploads = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mediagate_uploads_total",
			Help: "Asset uploads by owner kind and result.",
		},
		[]string{"kind", "result"},
	)

	Deletes = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mediagate_deletes_total",
			Help: "Asset deletions by owner kind and result.",
		},
		[]string{"kind", "result"},
	)

	AuthzDenials = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mediagate_authz_denials_total",
			Help: "Authorization chain denials by failing step.",
		},
		[]string{"reason"},
	)

	PresenceRecounts = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mediagate_presence_recount_total",
			Help: "Connected-count recomputations by outcome.",
		},
		[]string{"result"},
	)

	PresenceRetries = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "mediagate_presence_retries_total",
		Help: "Optimistic write conflicts that forced a recount retry.",
	})
)

var registerOnce sync.Once

// Register adds every collector to the default registry. Safe to call more
// than once; both binaries and tests call it.
func Register() {
	registerOnce.Do(func() {
		prometheus.MustRegister(
			HTTPRequests,
			HTTPDuration,
			Uploads,
			Deletes,
			AuthzDenials,
			PresenceRecounts,
			PresenceRetries,
		)
	})
}

func Handler() http.Handler {
	return promhttp.Handler()
}
