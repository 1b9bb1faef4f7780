package middleware

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/labstack/echo/v4"
	"golang.org/x/time/rate"
)

// RateLimitConfig holds rate limiting configuration.
type RateLimitConfig struct {
	RequestsPerSecond float64
	BurstSize         int
	// IdleTTL drops limiters for keys not seen for this long.
	IdleTTL time.Duration
}

func DefaultRateLimitConfig() RateLimitConfig {
	return RateLimitConfig{
		RequestsPerSecond: 20,
		BurstSize:         40,
		IdleTTL:           10 * time.Minute,
	}
}

type limiterEntry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

type limiterStore struct {
	mu      sync.Mutex
	entries map[string]*limiterEntry
	config  RateLimitConfig
	now     func() time.Time
}

func newLimiterStore(cfg RateLimitConfig) *limiterStore {
	return &limiterStore{
		entries: make(map[string]*limiterEntry),
		config:  cfg,
		now:     time.Now,
	}
}

func (s *limiterStore) get(key string) *rate.Limiter {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	e, ok := s.entries[key]
	if !ok {
		e = &limiterEntry{limiter: rate.NewLimiter(rate.Limit(s.config.RequestsPerSecond), s.config.BurstSize)}
		s.entries[key] = e
	}
	e.lastSeen = now
	return e.limiter
}

func (s *limiterStore) prune() int {
	if s.config.IdleTTL <= 0 {
		return 0
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	cutoff := s.now().Add(-s.config.IdleTTL)
	n := 0
	for k, e := range s.entries {
		if e.lastSeen.Before(cutoff) {
			delete(s.entries, k)
			n++
		}
	}
	return n
}

// rateLimitKey prefers the agenda session so that several tabs behind one
// clinic NAT do not share a bucket.
func rateLimitKey(c echo.Context) string {
	if sid := c.Request().Header.Get(SessionHeader); sid != "" {
		return "session:" + sid
	}
	return "ip:" + c.RealIP()
}

// RateLimit limits requests per session, or per client IP before a session
// exists.
func RateLimit(cfg RateLimitConfig) echo.MiddlewareFunc {
	store := newLimiterStore(cfg)
	limit := strconv.FormatFloat(cfg.RequestsPerSecond, 'f', 0, 64)
	var calls int

	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			lim := store.get(rateLimitKey(c))

			store.mu.Lock()
			calls++
			sweep := calls%1024 == 0
			store.mu.Unlock()
			if sweep {
				store.prune()
			}

			h := c.Response().Header()
			h.Set("X-RateLimit-Limit", limit)
			r := lim.ReserveN(store.now(), 1)
			if !r.OK() {
				h.Set("Retry-After", "1")
				return echo.NewHTTPError(http.StatusTooManyRequests, "muitas requisições, tente novamente em instantes")
			}
			if delay := r.DelayFrom(store.now()); delay > 0 {
				r.CancelAt(store.now())
				h.Set("Retry-After", strconv.Itoa(int(delay/time.Second)+1))
				h.Set("X-RateLimit-Remaining", "0")
				return echo.NewHTTPError(http.StatusTooManyRequests, "muitas requisições, tente novamente em instantes")
			}
			return next(c)
		}
	}
}
