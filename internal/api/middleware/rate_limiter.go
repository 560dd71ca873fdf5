package middleware

import (
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"golang.org/x/time/rate"
)

const (
	defaultCleanupInterval = 5 * time.Minute
	defaultCleanupTTL      = 10 * time.Minute
)

// KeyFunc picks the bucket a request is counted against
type KeyFunc func(c *gin.Context) string

// ByClientIP keys on the client address
func ByClientIP(c *gin.Context) string {
	return "ip:" + c.ClientIP()
}

// ByUser keys on the authenticated user and falls back to the client address
func ByUser(c *gin.Context) string {
	if id, ok := c.Get(ContextUserID); ok {
		if userID, ok := id.(uuid.UUID); ok {
			return "user:" + userID.String()
		}
	}
	return ByClientIP(c)
}

type limiterEntry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// RateLimiter keeps a token bucket per key and drops idle buckets
type RateLimiter struct {
	limiters   map[string]*limiterEntry
	mu         sync.Mutex
	rate       rate.Limit
	burst      int
	keyFunc    KeyFunc
	cleanupTTL time.Duration
	stopCh     chan struct{}
	stopOnce   sync.Once
}

// NewRateLimiter allows requestsPerMinute per key, clamped to at least 1
func NewRateLimiter(requestsPerMinute int, keyFunc KeyFunc) *RateLimiter {
	return NewRateLimiterWithTTL(requestsPerMinute, keyFunc, defaultCleanupTTL)
}

// NewRateLimiterWithTTL creates a rate limiter with custom cleanup TTL
func NewRateLimiterWithTTL(requestsPerMinute int, keyFunc KeyFunc, cleanupTTL time.Duration) *RateLimiter {
	if requestsPerMinute <= 0 {
		requestsPerMinute = 1
	}
	if cleanupTTL <= 0 {
		cleanupTTL = defaultCleanupTTL
	}
	if keyFunc == nil {
		keyFunc = ByClientIP
	}

	rl := &RateLimiter{
		limiters:   make(map[string]*limiterEntry),
		rate:       rate.Every(time.Minute / time.Duration(requestsPerMinute)),
		burst:      requestsPerMinute,
		keyFunc:    keyFunc,
		cleanupTTL: cleanupTTL,
		stopCh:     make(chan struct{}),
	}

	go rl.cleanupLoop(defaultCleanupInterval)

	return rl
}

func (rl *RateLimiter) cleanupLoop(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			rl.cleanup()
		case <-rl.stopCh:
			return
		}
	}
}

func (rl *RateLimiter) cleanup() {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := time.Now()
	for key, entry := range rl.limiters {
		if now.Sub(entry.lastSeen) > rl.cleanupTTL {
			delete(rl.limiters, key)
		}
	}
}

// Stop stops the background cleanup goroutine
func (rl *RateLimiter) Stop() {
	rl.stopOnce.Do(func() { close(rl.stopCh) })
}

// Shutdown lets the graceful shutdown manager stop the cleanup loop
func (rl *RateLimiter) Shutdown(time.Duration) error {
	rl.Stop()
	return nil
}

func (rl *RateLimiter) getLimiter(key string) *rate.Limiter {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := time.Now()
	if entry, ok := rl.limiters[key]; ok {
		entry.lastSeen = now
		return entry.limiter
	}

	limiter := rate.NewLimiter(rl.rate, rl.burst)
	rl.limiters[key] = &limiterEntry{limiter: limiter, lastSeen: now}
	return limiter
}

// Limit returns the middleware
func (rl *RateLimiter) Limit() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !rl.getLimiter(rl.keyFunc(c)).Allow() {
			c.Header("Retry-After", "60")
			abort(c, http.StatusTooManyRequests, "RATE_LIMIT_EXCEEDED", "Too many requests. Please try again later.")
			return
		}
		c.Next()
	}
}

// Size returns the current number of tracked keys
func (rl *RateLimiter) Size() int {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	return len(rl.limiters)
}
