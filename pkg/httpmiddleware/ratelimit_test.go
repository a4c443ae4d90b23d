package httpmiddleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-faster/jx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func hit(h http.Handler, mutate func(r *http.Request)) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "192.168.1.1:12345"
	if mutate != nil {
		mutate(req)
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func from(addr string) func(r *http.Request) {
	return func(r *http.Request) { r.RemoteAddr = addr }
}

func TestRateLimit_UnderLimit(t *testing.T) {
	h := RateLimit(RateLimitConfig{Max: 5, Window: time.Minute})(okHandler())

	for i := range 5 {
		w := hit(h, nil)
		assert.Equal(t, http.StatusOK, w.Code, "request %d", i+1)
		assert.Equal(t, "5", w.Header().Get("X-RateLimit-Limit"))
		assert.NotEmpty(t, w.Header().Get("X-RateLimit-Reset"))
	}
}

func TestRateLimit_OverLimit(t *testing.T) {
	h := RateLimit(RateLimitConfig{Max: 2, Window: time.Minute})(okHandler())

	for range 2 {
		require.Equal(t, http.StatusOK, hit(h, from("10.0.0.1:9999")).Code)
	}

	w := hit(h, from("10.0.0.1:9999"))
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))
	assert.Equal(t, "0", w.Header().Get("X-RateLimit-Remaining"))
	assert.NotEmpty(t, w.Header().Get("Retry-After"))

	var code int
	var kind string
	require.NoError(t, jx.DecodeBytes(w.Body.Bytes()).Obj(func(d *jx.Decoder, key string) error {
		var err error
		switch key {
		case "code":
			code, err = d.Int()
		case "kind":
			kind, err = d.Str()
		default:
			err = d.Skip()
		}
		return err
	}))
	assert.Equal(t, http.StatusTooManyRequests, code)
	assert.Equal(t, "rate_limited", kind)
}

func TestRateLimit_KeysAreIndependent(t *testing.T) {
	h := RateLimit(RateLimitConfig{Max: 1, Window: time.Minute})(okHandler())

	assert.Equal(t, http.StatusOK, hit(h, from("10.0.0.1:1234")).Code)
	assert.Equal(t, http.StatusOK, hit(h, from("10.0.0.2:1234")).Code)
	assert.Equal(t, http.StatusTooManyRequests, hit(h, from("10.0.0.1:5678")).Code)
}

func TestRateLimit_XForwardedFor(t *testing.T) {
	h := RateLimit(RateLimitConfig{Max: 1, Window: time.Minute})(okHandler())
	xff := func(addr string) func(r *http.Request) {
		return func(r *http.Request) {
			r.RemoteAddr = addr
			r.Header.Set("X-Forwarded-For", "203.0.113.50, 70.41.3.18")
		}
	}

	assert.Equal(t, http.StatusOK, hit(h, xff("192.168.1.1:4444")).Code)
	assert.Equal(t, http.StatusTooManyRequests, hit(h, xff("192.168.1.2:5555")).Code)
}

func TestCredentialOrIP(t *testing.T) {
	h := RateLimit(RateLimitConfig{Max: 1, Window: time.Minute, KeyFunc: CredentialOrIP})(okHandler())
	withKey := func(header, value string) func(r *http.Request) {
		return func(r *http.Request) { r.Header.Set(header, value) }
	}

	assert.Equal(t, http.StatusOK, hit(h, withKey("api_key", "key-a")).Code)
	// Same key through the Authorization header shares the bucket.
	assert.Equal(t, http.StatusTooManyRequests, hit(h, withKey("Authorization", "Bearer key-a")).Code)
	assert.Equal(t, http.StatusOK, hit(h, withKey("api_key", "key-b")).Code)
	// Anonymous requests fall back to the address.
	assert.Equal(t, http.StatusOK, hit(h, nil).Code)
	assert.Equal(t, http.StatusTooManyRequests, hit(h, nil).Code)
}

func TestLimiter_SlidingWindow(t *testing.T) {
	l := NewLimiter(RateLimitConfig{Max: 4, Window: time.Minute})
	start := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)

	for range 4 {
		ok, _, _ := l.Allow("k", start)
		require.True(t, ok)
	}
	ok, _, _ := l.Allow("k", start.Add(30*time.Second))
	assert.False(t, ok)

	// Half way into the next window half of the previous count still applies.
	ok, remaining, _ := l.Allow("k", start.Add(90*time.Second))
	assert.True(t, ok)
	assert.Equal(t, 1, remaining)

	l.Sweep(start.Add(5 * time.Minute))
	assert.Empty(t, l.windows)
}
