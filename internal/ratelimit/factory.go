package ratelimit

import (
	"time"

	"github.com/tb-api-sdk/gateway/internal/storage"
)

// NewLimiter selects the limiter backend. The in-memory sliding window is
// the default; the Redis backend is for deployments running more than one
// gateway instance.
func NewLimiter(backend string, redis *storage.RedisClient, limit int, window time.Duration, maxClients int) Limiter {
	switch backend {
	case "redis":
		if redis != nil {
			return NewRedisSlidingWindow(redis, limit, window)
		}
		return NewMemorySlidingWindow(limit, window, maxClients)
	default:
		return NewMemorySlidingWindow(limit, window, maxClients)
	}
}
