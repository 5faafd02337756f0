package middleware

import (
	"sync"
	"time"

	"github.com/gofiber/fiber/v2"
	"golang.org/x/time/rate"
)

type visitor struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// RateLimiter is a per-key token bucket. Idle keys are dropped after ttl.
type RateLimiter struct {
	rps      rate.Limit
	burst    int
	keyFn    func(*fiber.Ctx) string
	mu       sync.Mutex
	visitors map[string]*visitor
	ttl      time.Duration
	lookups  int
	gcEvery  int
	now      func() time.Time
}

// NewRateLimiter builds a limiter allowing rps requests per second per key
// with the given burst. A nil keyFn keys by user, then by IP.
func NewRateLimiter(rps float64, burst int, keyFn func(*fiber.Ctx) string) *RateLimiter {
	if burst <= 0 {
		burst = 1
	}
	if keyFn == nil {
		keyFn = KeyByUserOrIP
	}
	return &RateLimiter{
		rps:      rate.Limit(rps),
		burst:    burst,
		keyFn:    keyFn,
		visitors: make(map[string]*visitor),
		ttl:      10 * time.Minute,
		gcEvery:  5000,
		now:      time.Now,
	}
}

func (rl *RateLimiter) getVisitor(key string) *rate.Limiter {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	v, ok := rl.visitors[key]
	if !ok {
		v = &visitor{limiter: rate.NewLimiter(rl.rps, rl.burst)}
		rl.visitors[key] = v
	}
	v.lastSeen = now

	rl.lookups++
	if rl.lookups >= rl.gcEvery {
		rl.lookups = 0
		for k, vv := range rl.visitors {
			if now.Sub(vv.lastSeen) > rl.ttl {
				delete(rl.visitors, k)
			}
		}
	}
	return v.limiter
}

// Handler rejects requests over the limit with 429.
func (rl *RateLimiter) Handler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		if !rl.getVisitor(rl.keyFn(c)).Allow() {
			c.Set(fiber.HeaderRetryAfter, "1")
			return c.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{
				"success":    false,
				"code":       "rate_limited",
				"message":    "too many requests",
				"request_id": RequestID(c),
			})
		}
		return c.Next()
	}
}

// KeyByUserOrIP prefers the authenticated user, falling back to client IP.
func KeyByUserOrIP(c *fiber.Ctx) string {
	if id, ok := GetCurrentUserID(c); ok {
		return "user:" + id.String()
	}
	return "ip:" + c.IP()
}
