// Package middleware provides HTTP middleware for the ChainGuard API.
package middleware

import (
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"chainguard/internal/config"
)

// RateLimiter is a fixed-window per-IP rate limiter with periodic cleanup
// of idle clients.
type RateLimiter struct {
	cfg         config.RateLimitConfig
	clients     map[string]*clientState
	mu          sync.Mutex
	exemptPaths map[string]bool
	now         func() time.Time
	stopCleanup chan struct{}
	stopOnce    sync.Once
	logger      *slog.Logger
}

type clientState struct {
	count     int
	windowEnd time.Time
}

// NewRateLimiter creates a limiter and starts its cleanup goroutine.
func NewRateLimiter(cfg config.RateLimitConfig, logger *slog.Logger) *RateLimiter {
	if logger == nil {
		logger = slog.Default()
	}

	exempt := make(map[string]bool, len(cfg.ExemptPaths))
	for _, path := range cfg.ExemptPaths {
		exempt[path] = true
	}

	rl := &RateLimiter{
		cfg:         cfg,
		clients:     make(map[string]*clientState),
		exemptPaths: exempt,
		now:         time.Now,
		stopCleanup: make(chan struct{}),
		logger:      logger,
	}

	if cfg.CleanupPeriod > 0 {
		go rl.cleanupLoop()
	}
	return rl
}

// Limit is the number of requests allowed per window.
func (rl *RateLimiter) Limit() int {
	return rl.cfg.RequestsPerIP + rl.cfg.BurstSize
}

// Allow reports whether a request from ip fits in the current window,
// the remaining allowance and when the window resets.
func (rl *RateLimiter) Allow(ip string) (bool, int, time.Time) {
	now := rl.now()

	rl.mu.Lock()
	defer rl.mu.Unlock()

	client, ok := rl.clients[ip]
	if !ok || now.After(client.windowEnd) {
		client = &clientState{windowEnd: now.Add(rl.cfg.WindowSize)}
		rl.clients[ip] = client
	}

	limit := rl.Limit()
	if client.count >= limit {
		return false, 0, client.windowEnd
	}
	client.count++
	return true, limit - client.count, client.windowEnd
}

func (rl *RateLimiter) cleanupLoop() {
	ticker := time.NewTicker(rl.cfg.CleanupPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			rl.cleanup()
		case <-rl.stopCleanup:
			return
		}
	}
}

// cleanup drops clients whose window ended more than one window ago.
func (rl *RateLimiter) cleanup() {
	threshold := rl.now().Add(-rl.cfg.WindowSize)

	rl.mu.Lock()
	defer rl.mu.Unlock()

	removed := 0
	for ip, client := range rl.clients {
		if client.windowEnd.Before(threshold) {
			delete(rl.clients, ip)
			removed++
		}
	}
	if removed > 0 {
		rl.logger.Debug("rate limiter cleanup", "removed", removed, "remaining", len(rl.clients))
	}
}

// Tracked returns the number of client IPs currently tracked.
func (rl *RateLimiter) Tracked() int {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	return len(rl.clients)
}

// Stop ends the cleanup goroutine.
func (rl *RateLimiter) Stop() {
	rl.stopOnce.Do(func() { close(rl.stopCleanup) })
}

// Handler wraps next with rate limiting. Exempt paths and a disabled
// config pass straight through.
func (rl *RateLimiter) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !rl.cfg.Enabled || rl.exemptPaths[r.URL.Path] {
			next.ServeHTTP(w, r)
			return
		}

		ip := clientIP(r, rl.cfg.TrustProxy)
		allowed, remaining, reset := rl.Allow(ip)

		w.Header().Set("X-RateLimit-Limit", fmt.Sprintf("%d", rl.Limit()))
		w.Header().Set("X-RateLimit-Remaining", fmt.Sprintf("%d", remaining))
		w.Header().Set("X-RateLimit-Reset", fmt.Sprintf("%d", reset.Unix()))

		if !allowed {
			rl.logger.Warn("rate limit exceeded", "ip", ip, "path", r.URL.Path, "method", r.Method)

			retryAfter := int(reset.Sub(rl.now()).Seconds()) + 1
			w.Header().Set("Retry-After", fmt.Sprintf("%d", retryAfter))
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusTooManyRequests)
			fmt.Fprintf(w, `{"code":"RATE_LIMITED","message":"Too many requests. Please try again later.","details":"retry after %d seconds"}`, retryAfter)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// clientIP extracts the client address. With trustProxy the rightmost
// X-Forwarded-For entry, set by the nearest proxy, wins.
func clientIP(r *http.Request, trustProxy bool) string {
	if trustProxy {
		if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
			parts := strings.Split(xff, ",")
			for i := len(parts) - 1; i >= 0; i-- {
				if ip := strings.TrimSpace(parts[i]); ip != "" {
					return ip
				}
			}
		}
		if xri := r.Header.Get("X-Real-IP"); xri != "" {
			return xri
		}
	}

	ip, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return ip
}
