package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// UpdatesTotal counts every audited hostname/IP outcome by status token.
	UpdatesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "flareddns",
		Name:      "updates_total",
		Help:      "DDNS update outcomes by status.",
	}, []string{"status"})

	ProviderRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "flareddns",
		Name:      "provider_requests_total",
		Help:      "Calls to the upstream DNS provider.",
	}, []string{"provider", "operation", "result"})

	RateLimitKeys = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "flareddns",
		Name:      "ratelimit_tracked_keys",
		Help:      "Hostnames currently tracked by the update rate limiter.",
	})
)

func Handler() http.Handler {
	return promhttp.Handler()
}
