// ABOUTME: Request logging and per-client throttling middleware
// ABOUTME: Throttle keeps one token bucket per remote host with idle cleanup

package server

import (
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/squall-im/squall/internal/config"
)

// statusRecorder captures the response status for logging and metrics.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

// requestLogger logs one line per request with method, path, status and
// duration.
func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		s.logger.Info("request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", rec.status,
			"duration", time.Since(start),
		)
	})
}

// clientLimiter pairs a token bucket with its last use so idle entries can
// be dropped.
type clientLimiter struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// throttle applies a per-remote-host token bucket to every request.
type throttle struct {
	mu       sync.Mutex
	clients  map[string]*clientLimiter
	rps      rate.Limit
	burst    int
	lastScan time.Time
}

func newThrottle(cfg config.RateLimitConfig) *throttle {
	return &throttle{
		clients: make(map[string]*clientLimiter),
		rps:     rate.Limit(cfg.RPS),
		burst:   cfg.Burst,
	}
}

func (t *throttle) allow(host string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := time.Now()
	// Drop buckets idle for more than ten minutes.
	if now.Sub(t.lastScan) > time.Minute {
		for key, cl := range t.clients {
			if now.Sub(cl.lastSeen) > 10*time.Minute {
				delete(t.clients, key)
			}
		}
		t.lastScan = now
	}

	cl, ok := t.clients[host]
	if !ok {
		cl = &clientLimiter{limiter: rate.NewLimiter(t.rps, t.burst)}
		t.clients[host] = cl
	}
	cl.lastSeen = now
	return cl.limiter.Allow()
}

func (t *throttle) middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		host, _, err := net.SplitHostPort(r.RemoteAddr)
		if err != nil {
			host = r.RemoteAddr
		}
		if !t.allow(host) {
			slog.Default().Warn("rate limit exceeded", "remote", host)
			writeError(w, http.StatusTooManyRequests, errCodeLimitExceeded,
				"Too many requests. Wait a while then try again.")
			return
		}
		next.ServeHTTP(w, r)
	})
}
