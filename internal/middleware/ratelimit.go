package middleware

import (
	"context"
	"math"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"
)

// maxTrackedClients caps how many client buckets are kept. At the cap, new
// clients are rejected rather than evicting an active bucket.
const maxTrackedClients = 100000

// RateLimiter applies a per-client token bucket over the advisory API.
// Convene calls are the expensive path, so the limiter sits in front of all
// routes with one bucket per client IP.
type RateLimiter struct {
	mu      sync.Mutex
	clients map[string]*tokenBucket
	rps     float64
	burst   int
}

// tokenBucket tracks the refill state for one client IP.
type tokenBucket struct {
	tokens   float64
	refillAt time.Time // last refill
	seenAt   time.Time // last request, for idle cleanup
}

// NewRateLimiter creates a limiter sustaining rps requests per second per
// client with the given burst allowance.
func NewRateLimiter(rps float64, burst int) *RateLimiter {
	return &RateLimiter{
		clients: make(map[string]*tokenBucket),
		rps:     rps,
		burst:   burst,
	}
}

// Handler returns middleware enforcing the limit. Rejections carry a 429
// with Retry-After; every response carries the rate-limit headers.
func (rl *RateLimiter) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		remaining, wait, ok := rl.take(clientIP(r))

		w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(remaining))
		w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(time.Now().Add(time.Second).Unix(), 10))

		if !ok {
			w.Header().Set("Retry-After", strconv.Itoa(int(math.Ceil(wait))))
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusTooManyRequests)
			_, _ = w.Write([]byte(`{"error":"rate limit exceeded"}`))
			return
		}

		next.ServeHTTP(w, r)
	})
}

// take consumes one token for the client if available. Returns the tokens
// left, the seconds until the next token when rejected, and whether the
// request may proceed.
func (rl *RateLimiter) take(ip string) (remaining int, wait float64, ok bool) {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := time.Now()
	b := rl.clients[ip]
	if b == nil {
		if len(rl.clients) >= maxTrackedClients {
			return 0, 1.0 / rl.rps, false
		}
		b = &tokenBucket{tokens: float64(rl.burst), refillAt: now}
		rl.clients[ip] = b
	}

	b.tokens = math.Min(float64(rl.burst), b.tokens+now.Sub(b.refillAt).Seconds()*rl.rps)
	b.refillAt = now
	b.seenAt = now

	if b.tokens < 1 {
		return 0, (1 - b.tokens) / rl.rps, false
	}
	b.tokens--
	return int(b.tokens), 0, true
}

// StartCleanup launches a goroutine dropping buckets idle longer than
// maxIdle, checked every interval. The returned function stops it.
func (rl *RateLimiter) StartCleanup(interval, maxIdle time.Duration) func() {
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				rl.dropIdle(maxIdle)
			}
		}
	}()
	return cancel
}

func (rl *RateLimiter) dropIdle(maxIdle time.Duration) {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	cutoff := time.Now().Add(-maxIdle)
	for ip, b := range rl.clients {
		if b.seenAt.Before(cutoff) {
			delete(rl.clients, ip)
		}
	}
}

// Len returns the number of tracked client buckets.
func (rl *RateLimiter) Len() int {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	return len(rl.clients)
}

// clientIP takes the connection's remote address. Forwarding headers are
// ignored here: they are client-controlled and would let a caller mint
// fresh buckets at will.
func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
