package ratelimit

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// admitScript prunes the window, counts it and records the admission in a
// single atomic step, so two gateway instances can never both claim the
// last remaining slot. Scores are Unix milliseconds; the member only needs
// to be unique.
//
// Reply: {allowed, count after the call, oldest score in the window}.
var admitScript = redis.NewScript(`
redis.call("ZREMRANGEBYSCORE", KEYS[1], 0, ARGV[1] - ARGV[2])
local count = redis.call("ZCARD", KEYS[1])
local allowed = 0
if count < tonumber(ARGV[3]) then
	redis.call("ZADD", KEYS[1], ARGV[1], ARGV[4])
	redis.call("PEXPIRE", KEYS[1], ARGV[2])
	allowed = 1
	count = count + 1
end
local oldest = redis.call("ZRANGE", KEYS[1], 0, 0, "WITHSCORES")
local oldestScore = ARGV[1]
if oldest[2] then
	oldestScore = oldest[2]
end
return {allowed, count, oldestScore}
`)

// RedisSlidingWindow keeps the same sliding-window contract as the
// in-memory limiter but backs the per-identity state with a Redis sorted
// set, so multiple gateway instances share one view of each client.
type RedisSlidingWindow struct {
	client redis.Scripter
	limit  int
	window time.Duration
}

func NewRedisSlidingWindow(client redis.Scripter, limit int, window time.Duration) *RedisSlidingWindow {
	return &RedisSlidingWindow{
		client: client,
		limit:  limit,
		window: window,
	}
}

func (s *RedisSlidingWindow) Admit(ctx context.Context, identity string) (Decision, error) {
	key := fmt.Sprintf("ratelimit:sliding:%s", identity)
	now := time.Now()

	reply, err := admitScript.Run(ctx, s.client,
		[]string{key},
		now.UnixMilli(),
		s.window.Milliseconds(),
		s.limit,
		uuid.NewString(),
	).Slice()
	if err != nil {
		return Decision{}, err
	}
	if len(reply) != 3 {
		return Decision{}, fmt.Errorf("ratelimit: unexpected script reply %v", reply)
	}

	allowed, _ := reply[0].(int64)
	count, _ := reply[1].(int64)

	oldestMs := now.UnixMilli()
	switch v := reply[2].(type) {
	case int64:
		oldestMs = v
	case string:
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			oldestMs = int64(f)
		}
	}
	resetAt := time.UnixMilli(oldestMs).Add(s.window)

	if allowed == 0 {
		return Decision{
			Allowed:    false,
			Limit:      s.limit,
			Remaining:  0,
			ResetAt:    resetAt,
			RetryAfter: resetAt.Sub(now),
		}, nil
	}

	remaining := s.limit - int(count)
	if remaining < 0 {
		remaining = 0
	}

	return Decision{
		Allowed:   true,
		Limit:     s.limit,
		Remaining: remaining,
		ResetAt:   resetAt,
	}, nil
}
