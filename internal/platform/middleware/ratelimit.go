package middleware

import (
	"context"
	"fmt"
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/medconnect/telehealth/internal/platform/auth"
)

// RateLimitConfig holds rate limiting configuration.
type RateLimitConfig struct {
	RequestsPerSecond float64
	BurstSize         int
}

// DefaultRateLimitConfig returns default rate limiting settings.
func DefaultRateLimitConfig() RateLimitConfig {
	return RateLimitConfig{
		RequestsPerSecond: 50,
		BurstSize:         100,
	}
}

// window is the fixed window whose budget equals the burst size, so the
// long-run rate matches RequestsPerSecond.
func (c RateLimitConfig) window() time.Duration {
	if c.RequestsPerSecond <= 0 || c.BurstSize <= 0 {
		return time.Second
	}
	w := time.Duration(float64(c.BurstSize) / c.RequestsPerSecond * float64(time.Second))
	if w < time.Second {
		return time.Second
	}
	return w
}

// counter is the subset of redis.Cmdable used by RedisRateLimiterStore.
type counter interface {
	Incr(ctx context.Context, key string) *redis.IntCmd
	Expire(ctx context.Context, key string, expiration time.Duration) *redis.BoolCmd
}

// RedisRateLimiterStore is a fixed-window counter shared by every replica.
// It satisfies echo's RateLimiterStore. Redis failures let the request
// through and are logged.
type RedisRateLimiterStore struct {
	client  counter
	limit   int64
	window  time.Duration
	prefix  string
	timeout time.Duration
	now     func() time.Time
	logger  zerolog.Logger
}

func NewRedisRateLimiterStore(client counter, cfg RateLimitConfig, logger zerolog.Logger) *RedisRateLimiterStore {
	limit := int64(cfg.BurstSize)
	if limit <= 0 {
		limit = int64(math.Max(1, math.Ceil(cfg.RequestsPerSecond)))
	}
	return &RedisRateLimiterStore{
		client:  client,
		limit:   limit,
		window:  cfg.window(),
		prefix:  "ratelimit:",
		timeout: 250 * time.Millisecond,
		now:     time.Now,
		logger:  logger,
	}
}

func (s *RedisRateLimiterStore) key(identifier string) string {
	bucket := s.now().UnixNano() / int64(s.window)
	return s.prefix + identifier + ":" + strconv.FormatInt(bucket, 10)
}

func (s *RedisRateLimiterStore) Allow(identifier string) (bool, error) {
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()

	key := s.key(identifier)
	n, err := s.client.Incr(ctx, key).Result()
	if err != nil {
		s.logger.Warn().Err(err).Str("identifier", identifier).Msg("rate limit store unavailable")
		return true, nil
	}
	if n == 1 {
		if err := s.client.Expire(ctx, key, s.window).Err(); err != nil {
			s.logger.Warn().Err(err).Str("key", key).Msg("failed to set rate limit expiry")
		}
	}
	return n <= s.limit, nil
}

// NewMemoryRateLimiterStore returns echo's per-process token bucket store.
func NewMemoryRateLimiterStore(cfg RateLimitConfig) echomw.RateLimiterStore {
	return echomw.NewRateLimiterMemoryStoreWithConfig(echomw.RateLimiterMemoryStoreConfig{
		Rate:      rate.Limit(cfg.RequestsPerSecond),
		Burst:     cfg.BurstSize,
		ExpiresIn: 3 * time.Minute,
	})
}

// RateLimit limits requests per caller. Authenticated callers are keyed by
// user id, anonymous ones by client IP, so it must run after authentication.
func RateLimit(cfg RateLimitConfig, store echomw.RateLimiterStore) echo.MiddlewareFunc {
	if store == nil {
		store = NewMemoryRateLimiterStore(cfg)
	}
	limitHeader := strconv.FormatFloat(cfg.RequestsPerSecond, 'f', -1, 64)
	retryAfter := strconv.Itoa(int(math.Ceil(cfg.window().Seconds())))

	return echomw.RateLimiterWithConfig(echomw.RateLimiterConfig{
		Store: store,
		IdentifierExtractor: func(c echo.Context) (string, error) {
			c.Response().Header().Set("X-RateLimit-Limit", limitHeader)
			if id, ok := auth.IdentityFromContext(c.Request().Context()); ok {
				return "user:" + id.UserID.String(), nil
			}
			return "ip:" + c.RealIP(), nil
		},
		ErrorHandler: func(c echo.Context, err error) error {
			return echo.NewHTTPError(http.StatusForbidden, "unable to identify caller").SetInternal(err)
		},
		DenyHandler: func(c echo.Context, identifier string, err error) error {
			c.Response().Header().Set("Retry-After", retryAfter)
			c.Response().Header().Set("X-RateLimit-Remaining", "0")
			if err != nil {
				return echo.NewHTTPError(http.StatusTooManyRequests, "rate limit exceeded").SetInternal(fmt.Errorf("%s: %w", identifier, err))
			}
			return echo.NewHTTPError(http.StatusTooManyRequests, "rate limit exceeded")
		},
	})
}
