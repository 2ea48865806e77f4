package ratelimit

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type clock struct{ t time.Time }

func (c *clock) now() time.Time { return c.t }

func TestAllowWindow(t *testing.T) {
	c := &clock{t: time.Date(2025, 9, 5, 12, 0, 0, 0, time.UTC)}
	rl := newLimiter(Config{RequestsPerMinute: 2}, c.now)

	ok, _ := rl.Allow("1.2.3.4")
	assert.True(t, ok)
	ok, _ = rl.Allow("1.2.3.4")
	assert.True(t, ok)

	c.t = c.t.Add(20 * time.Second)
	ok, retry := rl.Allow("1.2.3.4")
	assert.False(t, ok)
	assert.Equal(t, 40*time.Second, retry)

	ok, _ = rl.Allow("5.6.7.8")
	assert.True(t, ok, "clients are counted separately")

	c.t = c.t.Add(40 * time.Second)
	ok, _ = rl.Allow("1.2.3.4")
	assert.True(t, ok, "a new window starts after a minute")

	assert.Equal(t, int64(1), rl.GetMetrics().Rejected)
}

func TestCleanupStaleEntries(t *testing.T) {
	c := &clock{t: time.Date(2025, 9, 5, 12, 0, 0, 0, time.UTC)}
	rl := newLimiter(Config{RequestsPerMinute: 5}, c.now)

	rl.Allow("a")
	c.t = c.t.Add(90 * time.Second)
	rl.Allow("b")
	rl.cleanupStaleEntries()

	assert.Equal(t, 1, rl.ActiveClients())
}

func TestMiddlewareOnlyLimitsWrites(t *testing.T) {
	c := &clock{t: time.Date(2025, 9, 5, 12, 0, 0, 0, time.UTC)}
	rl := newLimiter(Config{RequestsPerMinute: 1}, c.now)

	h := rl.Middleware(func(*http.Request) string { return "ip" }, nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))

	do := func(method string) *httptest.ResponseRecorder {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(method, "/expenses", nil))
		return rec
	}

	assert.Equal(t, http.StatusNoContent, do(http.MethodPost).Code)

	rec := do(http.MethodPut)
	require.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "60", rec.Header().Get("Retry-After"))

	assert.Equal(t, http.StatusNoContent, do(http.MethodGet).Code)
	assert.Equal(t, http.StatusNoContent, do(http.MethodGet).Code)
}

func TestStopIsIdempotent(t *testing.T) {
	rl := NewLimiter(DefaultConfig())
	rl.Stop()
	rl.Stop()
}

func TestRetrySeconds(t *testing.T) {
	assert.Equal(t, 1, retrySeconds(0))
	assert.Equal(t, 2, retrySeconds(1500*time.Millisecond))
	assert.Equal(t, 60, retrySeconds(time.Minute))
}
