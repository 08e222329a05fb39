package middleware

import (
	"log/slog"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

const visitorTTL = 5 * time.Minute

type RateLimit struct {
	RequestsPerSecond float64
	Burst             int
}

// ThrottleRecorder is told about every rejected request.
type ThrottleRecorder interface {
	RecordThrottle(route, reason string)
}

type rateEntry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// RateLimiter keeps one token bucket per client.
type RateLimiter struct {
	logger   *slog.Logger
	limit    RateLimit
	recorder ThrottleRecorder
	mu       sync.Mutex
	visitors map[string]*rateEntry
	clockNow func() time.Time
	sweptAt  time.Time
}

func NewRateLimiter(limit RateLimit, recorder ThrottleRecorder, logger *slog.Logger) *RateLimiter {
	if logger == nil {
		logger = slog.Default()
	}
	return &RateLimiter{
		logger:   logger,
		limit:    limit,
		recorder: recorder,
		visitors: make(map[string]*rateEntry),
		clockNow: time.Now,
	}
}

// Middleware rejects requests over the client's budget with 429. A zero
// rate disables limiting.
func (r *RateLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		if r.limit.RequestsPerSecond <= 0 {
			next.ServeHTTP(w, req)
			return
		}
		identifier := clientID(req)
		if !r.obtainLimiter(identifier).Allow() {
			if r.recorder != nil {
				r.recorder.RecordThrottle(req.URL.Path, "rate_limit")
			}
			r.logger.Debug("rate limited", "path", req.URL.Path)
			w.Header().Set("Retry-After", "1")
			http.Error(w, http.StatusText(http.StatusTooManyRequests), http.StatusTooManyRequests)
			return
		}
		next.ServeHTTP(w, req)
	})
}

func (r *RateLimiter) obtainLimiter(id string) *rate.Limiter {
	r.mu.Lock()
	defer r.mu.Unlock()
	now := r.clockNow()
	r.sweepLocked(now)
	entry, ok := r.visitors[id]
	if !ok {
		burst := r.limit.Burst
		if burst <= 0 {
			burst = 1
		}
		entry = &rateEntry{limiter: rate.NewLimiter(rate.Limit(r.limit.RequestsPerSecond), burst)}
		r.visitors[id] = entry
	}
	entry.lastSeen = now
	return entry.limiter
}

// sweepLocked drops idle visitors at most once per TTL.
func (r *RateLimiter) sweepLocked(now time.Time) {
	if now.Sub(r.sweptAt) < visitorTTL {
		return
	}
	r.sweptAt = now
	for id, entry := range r.visitors {
		if now.Sub(entry.lastSeen) >= visitorTTL {
			delete(r.visitors, id)
		}
	}
}

func (r *RateLimiter) visitorCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.visitors)
}

func clientID(r *http.Request) string {
	if key := strings.TrimSpace(r.Header.Get("X-API-Key")); key != "" {
		return "key:" + key
	}
	if ip := strings.TrimSpace(r.Header.Get("X-Real-IP")); ip != "" {
		return ip
	}
	if forwarded := r.Header.Get("X-Forwarded-For"); forwarded != "" {
		first, _, _ := strings.Cut(forwarded, ",")
		first = strings.TrimSpace(first)
		if parsed := net.ParseIP(first); parsed != nil {
			return parsed.String()
		}
		return first
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
