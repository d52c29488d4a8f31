// ABOUTME: Prometheus metrics for request outcomes and login results
// ABOUTME: Collector registers on the default registry once per server

package server

import (
	"net/http"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
)

// collector aggregates the server's Prometheus metrics.
type collector struct {
	requests *prometheus.CounterVec
	logins   *prometheus.CounterVec
}

func newCollector() *collector {
	c := &collector{
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "squall_http_requests_total",
			Help: "HTTP requests by method and status code.",
		}, []string{"method", "status"}),
		logins: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "squall_logins_total",
			Help: "Login attempts by outcome.",
		}, []string{"outcome"}),
	}
	// Unregister-then-register keeps repeated construction in tests from
	// panicking on duplicate registration.
	prometheus.Unregister(c.requests)
	prometheus.Unregister(c.logins)
	prometheus.MustRegister(c.requests, c.logins)
	return c
}

func (c *collector) middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		c.requests.WithLabelValues(r.Method, strconv.Itoa(rec.status)).Inc()
	})
}

func (c *collector) recordLogin(outcome string) {
	c.logins.WithLabelValues(outcome).Inc()
}
