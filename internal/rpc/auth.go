package rpc

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/opendlt/actionlog/internal/logz"
)

// Error codes outside the JSON-RPC reserved range
const (
	codeUnauthorized = -32401
	codeRateLimited  = -32429
)

// APIKeyMiddleware validates API keys from X-API-Key header
type APIKeyMiddleware struct {
	allowedKeys map[string]bool
	mu          sync.RWMutex
}

// NewAPIKeyMiddleware creates a new API key middleware. With no keys every
// request is allowed.
func NewAPIKeyMiddleware(keys []string) *APIKeyMiddleware {
	m := &APIKeyMiddleware{}
	m.UpdateKeys(keys)
	return m
}

// UpdateKeys updates the allowed API keys
func (m *APIKeyMiddleware) UpdateKeys(keys []string) {
	allowed := make(map[string]bool)
	for _, key := range keys {
		if key != "" {
			allowed[key] = true
		}
	}

	m.mu.Lock()
	m.allowedKeys = allowed
	m.mu.Unlock()
}

// Middleware returns the API key validation middleware
func (m *APIKeyMiddleware) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/health" {
			next.ServeHTTP(w, r)
			return
		}

		m.mu.RLock()
		hasKeys := len(m.allowedKeys) > 0
		valid := m.allowedKeys[r.Header.Get("X-API-Key")]
		m.mu.RUnlock()

		switch {
		case !hasKeys || valid:
			next.ServeHTTP(w, r)
		case r.Header.Get("X-API-Key") == "":
			writeHTTPError(w, http.StatusUnauthorized, codeUnauthorized, "Unauthorized: missing X-API-Key header")
		default:
			writeHTTPError(w, http.StatusUnauthorized, codeUnauthorized, "Unauthorized: invalid API key")
		}
	})
}

type clientLimiter struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// RateLimiter implements token bucket rate limiting per IP
type RateLimiter struct {
	limiters map[string]*clientLimiter
	mu       sync.Mutex
	rps      float64
	burst    int
	idle     time.Duration
	cancel   context.CancelFunc
}

// NewRateLimiter creates a new rate limiter. rps <= 0 disables limiting.
func NewRateLimiter(rps float64, burst int) *RateLimiter {
	ctx, cancel := context.WithCancel(context.Background())
	rl := &RateLimiter{
		limiters: make(map[string]*clientLimiter),
		rps:      rps,
		burst:    burst,
		idle:     3 * time.Minute,
		cancel:   cancel,
	}

	go rl.cleanupLoop(ctx, time.Minute)

	return rl
}

// Close stops the cleanup goroutine
func (rl *RateLimiter) Close() {
	rl.cancel()
}

func (rl *RateLimiter) allow(ip string) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	cl, exists := rl.limiters[ip]
	if !exists {
		cl = &clientLimiter{limiter: rate.NewLimiter(rate.Limit(rl.rps), rl.burst)}
		rl.limiters[ip] = cl
	}
	cl.lastSeen = time.Now()

	return cl.limiter.Allow()
}

// cleanupLoop forgets clients that have been idle for a while
func (rl *RateLimiter) cleanupLoop(ctx context.Context, every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			rl.mu.Lock()
			for ip, cl := range rl.limiters {
				if time.Since(cl.lastSeen) > rl.idle {
					delete(rl.limiters, ip)
				}
			}
			rl.mu.Unlock()
		}
	}
}

// Middleware returns the rate limiting middleware
func (rl *RateLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/health" || rl.rps <= 0 {
			next.ServeHTTP(w, r)
			return
		}

		if !rl.allow(getClientIP(r)) {
			w.Header().Set("Retry-After", "1")
			writeHTTPError(w, http.StatusTooManyRequests, codeRateLimited, "Rate limit exceeded")
			return
		}

		next.ServeHTTP(w, r)
	})
}

// SecurityHeadersMiddleware adds security headers
func SecurityHeadersMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")
		w.Header().Set("Content-Security-Policy", "default-src 'none'")

		next.ServeHTTP(w, r)
	})
}

// LoggingMiddleware logs HTTP requests at debug level
func LoggingMiddleware(logger *logz.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}

			next.ServeHTTP(ww, r)

			logger.Debug("%s %s %d %v %s", r.Method, r.URL.Path, ww.statusCode, time.Since(start), getClientIP(r))
		})
	}
}

// responseWriter wraps http.ResponseWriter to capture status code
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// getClientIP extracts the client IP from the request
func getClientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		if idx := strings.Index(xff, ","); idx != -1 {
			return strings.TrimSpace(xff[:idx])
		}
		return strings.TrimSpace(xff)
	}

	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return strings.TrimSpace(xri)
	}

	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func writeHTTPError(w http.ResponseWriter, status, code int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(Response{
		JSONRPC: "2.0",
		Error:   &RPCError{Code: code, Message: message},
	})
}
