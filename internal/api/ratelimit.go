package api

import (
	"log/slog"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Rate limit defaults. Requests per second is fixed; burst comes from
// configuration.
const (
	rateLimitPerSecond = 10
	defaultRateBurst   = 20

	// Stale client entries are swept inline during lookups instead of
	// by a background goroutine.
	rateCleanupInterval = 3 * time.Minute
	rateEntryTTL        = 10 * time.Minute
)

// rateLimiter applies a per-client token bucket keyed by IP.
type rateLimiter struct {
	mu          sync.Mutex
	clients     map[string]*rateClient
	burst       int
	trustProxy  bool
	lastCleanup time.Time
	logger      *slog.Logger
}

type rateClient struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

func newRateLimiter(burst int, trustProxy bool, logger *slog.Logger) *rateLimiter {
	if burst <= 0 {
		burst = defaultRateBurst
	}
	return &rateLimiter{
		clients:     make(map[string]*rateClient),
		burst:       burst,
		trustProxy:  trustProxy,
		lastCleanup: time.Now(),
		logger:      logger,
	}
}

// middleware rejects over-limit clients with 429.
func (rl *rateLimiter) middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ip := rl.clientIP(r)
		if !rl.allow(ip) {
			rl.logger.Warn("rate limit exceeded", "ip", ip, "path", r.URL.Path)
			w.Header().Set("Retry-After", "1")
			writeJSON(w, rl.logger, http.StatusTooManyRequests,
				errorBody{Code: "rate_limited", Message: "too many requests"})
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (rl *rateLimiter) allow(ip string) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := time.Now()
	if now.Sub(rl.lastCleanup) > rateCleanupInterval {
		for key, client := range rl.clients {
			if now.Sub(client.lastSeen) > rateEntryTTL {
				delete(rl.clients, key)
			}
		}
		rl.lastCleanup = now
	}

	client, ok := rl.clients[ip]
	if !ok {
		client = &rateClient{limiter: rate.NewLimiter(rateLimitPerSecond, rl.burst)}
		rl.clients[ip] = client
	}
	client.lastSeen = now
	return client.limiter.Allow()
}

// clientIP resolves the client address. X-Forwarded-For is only
// trusted behind a known proxy.
func (rl *rateLimiter) clientIP(r *http.Request) string {
	if rl.trustProxy {
		if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
			first, _, _ := strings.Cut(fwd, ",")
			if ip := strings.TrimSpace(first); ip != "" {
				return ip
			}
		}
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
