package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/tb-api-sdk/gateway/internal/ratelimit"
)

func init() {
	gin.SetMode(gin.TestMode)
}

// scriptedLimiter replays a fixed decision, or an error, for every call.
type scriptedLimiter struct {
	decision ratelimit.Decision
	err      error
	calls    int
}

func (s *scriptedLimiter) Admit(_ context.Context, _ string) (ratelimit.Decision, error) {
	s.calls++
	return s.decision, s.err
}

func limitedRouter(l ratelimit.Limiter) *gin.Engine {
	r := gin.New()
	r.Use(RateLimit(l, time.Minute))
	handler := func(c *gin.Context) { c.String(http.StatusOK, "ok") }
	r.GET("/", handler)
	r.GET("/api/v1/health", handler)
	r.GET("/api/v1/tb/devices", handler)
	return r
}

func TestRateLimitAllowedSetsHeaders(t *testing.T) {
	resetAt := time.Now().Add(42 * time.Second)
	l := &scriptedLimiter{decision: ratelimit.Decision{
		Allowed:   true,
		Limit:     100,
		Remaining: 57,
		ResetAt:   resetAt,
	}}
	r := limitedRouter(l)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/v1/tb/devices", nil)
	r.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	if got := w.Header().Get("X-RateLimit-Limit"); got != "100" {
		t.Errorf("X-RateLimit-Limit = %q, want 100", got)
	}
	if got := w.Header().Get("X-RateLimit-Remaining"); got != "57" {
		t.Errorf("X-RateLimit-Remaining = %q, want 57", got)
	}
	if w.Header().Get("X-RateLimit-Reset") == "" {
		t.Error("X-RateLimit-Reset header missing")
	}
}

func TestRateLimitRejection(t *testing.T) {
	l := &scriptedLimiter{decision: ratelimit.Decision{
		Allowed:    false,
		Limit:      100,
		Remaining:  0,
		ResetAt:    time.Now().Add(37 * time.Second),
		RetryAfter: 37 * time.Second,
	}}
	r := limitedRouter(l)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/v1/tb/devices", nil)
	r.ServeHTTP(w, req)

	if w.Code != http.StatusTooManyRequests {
		t.Fatalf("status = %d, want 429", w.Code)
	}
	if got := w.Header().Get("Retry-After"); got != "37" {
		t.Errorf("Retry-After = %q, want 37", got)
	}

	var body map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("429 body is not JSON: %v", err)
	}
	if body["error_code"] != "RATE_LIMIT_EXCEEDED" {
		t.Errorf("error_code = %v, want RATE_LIMIT_EXCEEDED", body["error_code"])
	}
	details, _ := body["details"].(map[string]any)
	if details["retry_after"] != float64(37) {
		t.Errorf("retry_after detail = %v, want 37", details["retry_after"])
	}
}

func TestRateLimitExemptPaths(t *testing.T) {
	l := &scriptedLimiter{decision: ratelimit.Decision{Allowed: false}}
	r := limitedRouter(l)

	for _, path := range []string{"/", "/api/v1/health"} {
		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, path, nil)
		r.ServeHTTP(w, req)

		if w.Code != http.StatusOK {
			t.Errorf("%s status = %d, want 200 even when throttled", path, w.Code)
		}
	}

	if l.calls != 0 {
		t.Errorf("limiter consulted %d times for exempt paths, want 0", l.calls)
	}
}

func TestRateLimitFailsOpenOnLimiterError(t *testing.T) {
	l := &scriptedLimiter{err: errors.New("redis: connection refused")}
	r := limitedRouter(l)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/v1/tb/devices", nil)
	r.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("status = %d, want 200 when the limiter backend is down", w.Code)
	}
}

func TestClientIdentityPrefersAPIKey(t *testing.T) {
	c, _ := gin.CreateTestContext(httptest.NewRecorder())
	c.Request = httptest.NewRequest(http.MethodGet, "/", nil)
	c.Set("api_key_id", "4f3a2c10-9c3b-4a6f-8a3e-000000000001")

	if got := ClientIdentity(c); got != "key:4f3a2c10-9c3b-4a6f-8a3e-000000000001" {
		t.Errorf("identity = %q", got)
	}
}

func TestClientIdentityForwardedFor(t *testing.T) {
	tests := []struct {
		name    string
		headers map[string]string
		want    string
	}{
		{
			"first hop of forwarded chain",
			map[string]string{"X-Forwarded-For": "203.0.113.7, 10.0.0.1"},
			"ip:203.0.113.7",
		},
		{
			"real ip fallback",
			map[string]string{"X-Real-IP": "198.51.100.4"},
			"ip:198.51.100.4",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, _ := gin.CreateTestContext(httptest.NewRecorder())
			c.Request = httptest.NewRequest(http.MethodGet, "/", nil)
			for k, v := range tt.headers {
				c.Request.Header.Set(k, v)
			}

			if got := ClientIdentity(c); got != tt.want {
				t.Errorf("identity = %q, want %q", got, tt.want)
			}
		})
	}
}
