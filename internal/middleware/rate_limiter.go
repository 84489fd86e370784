package middleware

import (
	"net/http"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/akilapilapitiya/TrueGate-sub001/internal/httpx"
)

// ClientRateLimiter throttles requests per client key using a token bucket
// per key. Stale buckets are pruned so the map does not grow unbounded.
type ClientRateLimiter struct {
	mu       sync.Mutex
	clients  map[string]*clientBucket
	rate     rate.Limit
	burst    int
	lastSeen time.Duration
	done     chan struct{}
	closeOne sync.Once
}

type clientBucket struct {
	limiter *rate.Limiter
	seen    time.Time
}

func NewClientRateLimiter(requestsPerSecond float64, burst int) *ClientRateLimiter {
	if requestsPerSecond == 0 {
		requestsPerSecond = 5
	}
	if burst == 0 {
		burst = 10
	}

	l := &ClientRateLimiter{
		clients:  make(map[string]*clientBucket),
		rate:     rate.Limit(requestsPerSecond),
		burst:    burst,
		lastSeen: 10 * time.Minute,
		done:     make(chan struct{}),
	}

	go l.pruneLoop()

	return l
}

// Close stops the prune loop.
func (l *ClientRateLimiter) Close() {
	l.closeOne.Do(func() { close(l.done) })
}

// Allow reports whether the client identified by key may proceed.
func (l *ClientRateLimiter) Allow(key string) bool {
	l.mu.Lock()
	bucket, ok := l.clients[key]
	if !ok {
		bucket = &clientBucket{limiter: rate.NewLimiter(l.rate, l.burst)}
		l.clients[key] = bucket
	}
	bucket.seen = time.Now()
	l.mu.Unlock()

	return bucket.limiter.Allow()
}

func (l *ClientRateLimiter) pruneLoop() {
	ticker := time.NewTicker(l.lastSeen)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			cutoff := time.Now().Add(-l.lastSeen)
			l.mu.Lock()
			for key, bucket := range l.clients {
				if bucket.seen.Before(cutoff) {
					delete(l.clients, key)
				}
			}
			l.mu.Unlock()
		case <-l.done:
			return
		}
	}
}

// Middleware keys the limiter by client IP and answers 429 with Retry-After
// when throttled. Throttled requests are expected noise and are not recorded
// as security events.
func (l *ClientRateLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !l.Allow(ClientIP(r)) {
			w.Header().Set("Retry-After", "1")
			httpx.Error(w, http.StatusTooManyRequests, "Too many requests")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// Wrap applies the limiter to a single handler func, for per-route limits.
func (l *ClientRateLimiter) Wrap(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !l.Allow(ClientIP(r)) {
			w.Header().Set("Retry-After", "1")
			httpx.Error(w, http.StatusTooManyRequests, "Too many requests")
			return
		}
		next(w, r)
	}
}
