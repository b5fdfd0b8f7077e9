package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/tb-api-sdk/gateway/internal/models"
	"github.com/tb-api-sdk/gateway/internal/ratelimit"
)

// loggedRouter installs RequestLogger ahead of RateLimit, the order the
// server uses, so throttled requests still reach the log.
func loggedRouter(l ratelimit.Limiter) *gin.Engine {
	r := gin.New()
	r.Use(RequestLogger())
	r.Use(RateLimit(l, time.Minute))
	r.GET("/api/v1/tb/devices", func(c *gin.Context) { c.String(http.StatusOK, "ok") })
	return r
}

func captureLogChannel(t *testing.T) chan models.RequestLog {
	t.Helper()

	prev := logChannel
	logChannel = make(chan models.RequestLog, 10)
	t.Cleanup(func() { logChannel = prev })
	return logChannel
}

func TestRequestLoggerRecordsThrottledRequests(t *testing.T) {
	ch := captureLogChannel(t)

	l := &scriptedLimiter{decision: ratelimit.Decision{
		Allowed:    false,
		Limit:      10,
		ResetAt:    time.Now().Add(30 * time.Second),
		RetryAfter: 30 * time.Second,
	}}
	r := loggedRouter(l)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/tb/devices", nil))

	if w.Code != http.StatusTooManyRequests {
		t.Fatalf("status = %d, want 429", w.Code)
	}

	select {
	case entry := <-ch:
		if !entry.RateLimited {
			t.Error("throttled request logged with RateLimited = false")
		}
		if entry.StatusCode != http.StatusTooManyRequests {
			t.Errorf("logged status = %d, want 429", entry.StatusCode)
		}
		if entry.Path != "/api/v1/tb/devices" {
			t.Errorf("logged path = %q", entry.Path)
		}
	default:
		t.Fatal("throttled request produced no log entry")
	}
}

func TestRequestLoggerRecordsAdmittedRequests(t *testing.T) {
	ch := captureLogChannel(t)

	l := &scriptedLimiter{decision: ratelimit.Decision{
		Allowed:   true,
		Limit:     10,
		Remaining: 9,
		ResetAt:   time.Now().Add(time.Minute),
	}}
	r := loggedRouter(l)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/tb/devices", nil))

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}

	select {
	case entry := <-ch:
		if entry.RateLimited {
			t.Error("admitted request logged with RateLimited = true")
		}
		if entry.StatusCode != http.StatusOK {
			t.Errorf("logged status = %d, want 200", entry.StatusCode)
		}
	default:
		t.Fatal("admitted request produced no log entry")
	}
}
