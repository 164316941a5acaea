package api

import (
	"context"
	"log"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/whisper/moderation/internal/ratelimit"
	"golang.org/x/time/rate"
)

// AdminLimiter is an in-process token bucket per admin subject.
type AdminLimiter struct {
	mu       sync.Mutex
	limiters map[string]*rate.Limiter
	rate     rate.Limit
	burst    int
}

// NewAdminLimiter allows rps requests per second per admin with the given
// burst. Non-positive values fall back to 5 rps and a burst of twice that.
func NewAdminLimiter(rps float64, burst int) *AdminLimiter {
	if rps <= 0 {
		rps = 5
	}
	if burst <= 0 {
		burst = int(rps * 2)
	}
	return &AdminLimiter{
		limiters: make(map[string]*rate.Limiter),
		rate:     rate.Limit(rps),
		burst:    burst,
	}
}

func (l *AdminLimiter) get(subject string) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()
	lim, ok := l.limiters[subject]
	if !ok {
		lim = rate.NewLimiter(l.rate, l.burst)
		l.limiters[subject] = lim
	}
	return lim
}

// Allow reports whether subject may make another request now.
func (l *AdminLimiter) Allow(subject string) bool {
	return l.get(subject).Allow()
}

// Cleanup drops buckets that are full again every interval until ctx is done.
func (l *AdminLimiter) Cleanup(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			l.mu.Lock()
			for subject, lim := range l.limiters {
				if lim.Tokens() >= float64(l.burst) {
					delete(l.limiters, subject)
				}
			}
			l.mu.Unlock()
		}
	}
}

// Middleware limits requests per token subject.
func (l *AdminLimiter) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !l.Allow(c.GetString(ctxSubject)) {
			errorResponse(c, http.StatusTooManyRequests, "rate limit exceeded")
			c.Abort()
			return
		}
		c.Next()
	}
}

// allow consults the shared Redis limiter and reports the remaining budget
// in X-RateLimit-Remaining. A nil limiter allows everything; Redis errors
// fail open inside the limiter.
func (h *Handler) allow(c *gin.Context, identifier string, rule ratelimit.Rule) bool {
	if h.limiter == nil {
		return true
	}
	ok, err := h.limiter.Allow(c.Request.Context(), identifier, rule)
	if err != nil {
		log.Printf("[api] rate limiter: %v", err)
	}
	if !ok {
		errorResponse(c, http.StatusTooManyRequests, "rate limit exceeded")
		return false
	}
	if n, err := h.limiter.Remaining(c.Request.Context(), identifier, rule); err == nil {
		c.Header("X-RateLimit-Remaining", strconv.Itoa(n))
	}
	return true
}
