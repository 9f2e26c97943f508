package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/medconnect/telehealth/internal/platform/auth"
)

type fakeCounter struct {
	mu      sync.Mutex
	counts  map[string]int64
	expires map[string]time.Duration
	err     error
}

func newFakeCounter() *fakeCounter {
	return &fakeCounter{counts: map[string]int64{}, expires: map[string]time.Duration{}}
}

func (f *fakeCounter) Incr(_ context.Context, key string) *redis.IntCmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return redis.NewIntResult(0, f.err)
	}
	f.counts[key]++
	return redis.NewIntResult(f.counts[key], nil)
}

func (f *fakeCounter) Expire(_ context.Context, key string, ttl time.Duration) *redis.BoolCmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.expires[key] = ttl
	return redis.NewBoolResult(true, nil)
}

// serve runs the middleware and resolves any error through echo's handler so
// the recorder always holds the final status.
func serve(e *echo.Echo, mw echo.MiddlewareFunc, req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	err := mw(func(c echo.Context) error { return c.String(http.StatusOK, "ok") })(c)
	if err != nil {
		e.HTTPErrorHandler(err, c)
	}
	return rec
}

func TestRateLimit_MemoryStore(t *testing.T) {
	cfg := RateLimitConfig{RequestsPerSecond: 1, BurstSize: 2}
	e := echo.New()
	mw := RateLimit(cfg, nil)

	for i := 0; i < 2; i++ {
		rec := serve(e, mw, httptest.NewRequest(http.MethodGet, "/", nil))
		if rec.Code != http.StatusOK {
			t.Fatalf("request %d: expected 200, got %d", i+1, rec.Code)
		}
		if rec.Header().Get("X-RateLimit-Limit") != "1" {
			t.Errorf("request %d: expected X-RateLimit-Limit 1, got %q", i+1, rec.Header().Get("X-RateLimit-Limit"))
		}
	}

	rec := serve(e, mw, httptest.NewRequest(http.MethodGet, "/", nil))
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d", rec.Code)
	}
	if rec.Header().Get("Retry-After") == "" {
		t.Error("expected Retry-After header")
	}
}

func TestRateLimit_KeyedByUser(t *testing.T) {
	cfg := RateLimitConfig{RequestsPerSecond: 1, BurstSize: 1}
	e := echo.New()
	mw := RateLimit(cfg, nil)

	withUser := func() *http.Request {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		return req.WithContext(auth.WithIdentity(req.Context(), auth.Identity{UserID: uuid.New(), Role: auth.RolePatient}))
	}

	// Same IP, different users: each has its own budget.
	for i := 0; i < 3; i++ {
		if rec := serve(e, mw, withUser()); rec.Code != http.StatusOK {
			t.Fatalf("user %d: expected 200, got %d", i+1, rec.Code)
		}
	}
}

func TestRedisRateLimiterStore_Window(t *testing.T) {
	fc := newFakeCounter()
	store := NewRedisRateLimiterStore(fc, RateLimitConfig{RequestsPerSecond: 1, BurstSize: 2}, zerolog.Nop())
	now := time.Date(2030, 1, 1, 12, 0, 0, 0, time.UTC)
	store.now = func() time.Time { return now }

	for i := 0; i < 2; i++ {
		ok, err := store.Allow("user:a")
		if err != nil || !ok {
			t.Fatalf("request %d: expected allow, got %v %v", i+1, ok, err)
		}
	}
	if ok, _ := store.Allow("user:a"); ok {
		t.Fatal("expected third request in the window to be denied")
	}
	if ok, _ := store.Allow("user:b"); !ok {
		t.Error("other identifiers have their own budget")
	}

	now = now.Add(store.window)
	if ok, _ := store.Allow("user:a"); !ok {
		t.Error("expected a new window to reset the budget")
	}

	for key, ttl := range fc.expires {
		if ttl != 2*time.Second {
			t.Errorf("key %s: expected 2s expiry, got %s", key, ttl)
		}
	}
}

func TestRedisRateLimiterStore_FailsOpen(t *testing.T) {
	fc := newFakeCounter()
	fc.err = errors.New("connection refused")
	store := NewRedisRateLimiterStore(fc, DefaultRateLimitConfig(), zerolog.Nop())

	ok, err := store.Allow("ip:10.0.0.1")
	if err != nil || !ok {
		t.Errorf("expected allow when redis is down, got %v %v", ok, err)
	}
}

func TestRateLimit_RedisStore(t *testing.T) {
	cfg := RateLimitConfig{RequestsPerSecond: 10, BurstSize: 1}
	store := NewRedisRateLimiterStore(newFakeCounter(), cfg, zerolog.Nop())
	fixed := time.Date(2030, 1, 1, 12, 0, 0, 0, time.UTC)
	store.now = func() time.Time { return fixed }
	e := echo.New()
	mw := RateLimit(cfg, store)

	if rec := serve(e, mw, httptest.NewRequest(http.MethodGet, "/", nil)); rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if rec := serve(e, mw, httptest.NewRequest(http.MethodGet, "/", nil)); rec.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d", rec.Code)
	}
}
