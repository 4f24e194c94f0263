package server

import (
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/54b3r/docqa-go/internal/logging"
)

// defaultRateLimit is the number of requests per second allowed per client on
// rate-limited endpoints when no explicit limit is configured.
const defaultRateLimit = 10

// defaultRateBurst is the maximum burst size per client when no explicit
// burst is configured.
const defaultRateBurst = 20

// limiterIdleTTL is how long an unused client bucket is kept.
const limiterIdleTTL = 5 * time.Minute

// clientLimiter holds a token-bucket rate limiter and the last time it was
// used, for evicting stale entries.
type clientLimiter struct {
	// limiter is the per-client token bucket.
	limiter *rate.Limiter
	// lastSeen is updated on every request from this client.
	lastSeen time.Time
}

// rateLimiter is an HTTP middleware that enforces a per-client token-bucket
// rate limit. A client is the owner id when the owner header is present and
// the remote IP otherwise. Stale entries are evicted every minute.
type rateLimiter struct {
	// mu protects the limiters map.
	mu sync.Mutex
	// limiters maps client key to its state.
	limiters map[string]*clientLimiter
	// rps is the sustained request rate allowed per client (requests/second).
	rps rate.Limit
	// burst is the maximum instantaneous burst per client.
	burst int
	// ownerHeader names the header carrying the caller's user id.
	ownerHeader string
	// log is the structured logger for rate-limit events.
	log *slog.Logger
}

// newRateLimiter constructs a rateLimiter and starts the background eviction
// goroutine. The goroutine exits when the returned stop function is called;
// stop is safe to call more than once.
func newRateLimiter(rps float64, burst int, ownerHeader string, log *slog.Logger) (*rateLimiter, func()) {
	rl := &rateLimiter{
		limiters:    make(map[string]*clientLimiter),
		rps:         rate.Limit(rps),
		burst:       burst,
		ownerHeader: ownerHeader,
		log:         log,
	}

	stopCh := make(chan struct{})
	go rl.evictLoop(stopCh)

	var once sync.Once
	return rl, func() { once.Do(func() { close(stopCh) }) }
}

// getLimiter returns the limiter for key, creating one if needed.
func (rl *rateLimiter) getLimiter(key string) *rate.Limiter {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	entry, ok := rl.limiters[key]
	if !ok {
		entry = &clientLimiter{limiter: rate.NewLimiter(rl.rps, rl.burst)}
		rl.limiters[key] = entry
	}
	entry.lastSeen = time.Now()
	return entry.limiter
}

// evictLoop removes stale entries every minute until stopCh is closed.
func (rl *rateLimiter) evictLoop(stopCh <-chan struct{}) {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-stopCh:
			return
		case <-ticker.C:
			rl.evict(time.Now().Add(-limiterIdleTTL))
		}
	}
}

// evict removes entries last seen before cutoff and returns how many went.
func (rl *rateLimiter) evict(cutoff time.Time) int {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	n := 0
	for key, entry := range rl.limiters {
		if entry.lastSeen.Before(cutoff) {
			delete(rl.limiters, key)
			n++
		}
	}
	return n
}

// middleware returns an http.Handler that enforces the rate limit before
// delegating to next. Requests that exceed the limit receive 429 Too Many
// Requests with a Retry-After header and a structured WARN log entry.
func (rl *rateLimiter) middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := rl.clientKey(r)

		if !rl.getLimiter(key).Allow() {
			logging.FromContext(r.Context()).Warn("rate limit exceeded",
				slog.String("client", key),
				slog.String("path", r.URL.Path),
			)
			w.Header().Set("Retry-After", "1")
			writeJSON(w, r, http.StatusTooManyRequests, errorResponse{Error: "rate_limited"})
			return
		}

		next.ServeHTTP(w, r)
	})
}

// clientKey identifies the caller for rate limiting.
func (rl *rateLimiter) clientKey(r *http.Request) string {
	if rl.ownerHeader != "" {
		if id := r.Header.Get(rl.ownerHeader); id != "" {
			return "user:" + id
		}
	}
	return "ip:" + clientIP(r)
}

// clientIP extracts the remote IP from the request, stripping the port.
// It does not trust X-Forwarded-For.
func clientIP(r *http.Request) string {
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}
