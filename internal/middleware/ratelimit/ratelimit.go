// Package ratelimit applies a fixed-window request cap per tenant,
// falling back to the client IP when no tenant header is present.
package ratelimit

import (
	"sync"
	"time"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/invoscore/backend/pkg/logger"
)

type window struct {
	count   int
	resetAt time.Time
}

type Limiter struct {
	mu       sync.Mutex
	windows  map[string]*window
	limit    int
	duration time.Duration
	log      *zap.Logger
	stop     chan struct{}
}

func New(limit int, duration time.Duration) *Limiter {
	if limit <= 0 {
		limit = 100
	}
	if duration <= 0 {
		duration = time.Minute
	}
	l := &Limiter{
		windows:  make(map[string]*window),
		limit:    limit,
		duration: duration,
		log:      logger.Named("ratelimit"),
		stop:     make(chan struct{}),
	}
	go l.evictLoop()
	return l
}

func (l *Limiter) Middleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		key := c.Get("X-Tenant-ID")
		if key == "" {
			key = c.IP()
		}

		if !l.allow(key) {
			l.log.Warn("rate limit exceeded",
				zap.String("key", key),
				zap.String("path", c.Path()))
			return c.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{
				"error": "rate limit exceeded",
			})
		}
		return c.Next()
	}
}

func (l *Limiter) allow(key string) bool {
	now := time.Now()

	l.mu.Lock()
	defer l.mu.Unlock()

	w, ok := l.windows[key]
	if !ok || now.After(w.resetAt) {
		l.windows[key] = &window{count: 1, resetAt: now.Add(l.duration)}
		return true
	}
	if w.count >= l.limit {
		return false
	}
	w.count++
	return true
}

func (l *Limiter) evictLoop() {
	ticker := time.NewTicker(5 * time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-l.stop:
			return
		case <-ticker.C:
			now := time.Now()
			l.mu.Lock()
			for key, w := range l.windows {
				if now.After(w.resetAt) {
					delete(l.windows, key)
				}
			}
			l.mu.Unlock()
		}
	}
}

func (l *Limiter) Stop() {
	close(l.stop)
}
