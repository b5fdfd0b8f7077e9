package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
)

// scriptFake replays a scripted reply and counts script invocations.
type scriptFake struct {
	reply []interface{}
	calls int
}

func (f *scriptFake) result() *redis.Cmd {
	f.calls++
	return redis.NewCmdResult(f.reply, nil)
}

func (f *scriptFake) Eval(_ context.Context, _ string, _ []string, _ ...interface{}) *redis.Cmd {
	return f.result()
}

func (f *scriptFake) EvalSha(_ context.Context, _ string, _ []string, _ ...interface{}) *redis.Cmd {
	return f.result()
}

func (f *scriptFake) EvalRO(_ context.Context, _ string, _ []string, _ ...interface{}) *redis.Cmd {
	return f.result()
}

func (f *scriptFake) EvalShaRO(_ context.Context, _ string, _ []string, _ ...interface{}) *redis.Cmd {
	return f.result()
}

func (f *scriptFake) ScriptExists(_ context.Context, _ ...string) *redis.BoolSliceCmd {
	return redis.NewBoolSliceResult([]bool{true}, nil)
}

func (f *scriptFake) ScriptLoad(_ context.Context, _ string) *redis.StringCmd {
	return redis.NewStringResult("", nil)
}

func TestRedisAdmitAllowed(t *testing.T) {
	oldest := time.Now().Add(-10 * time.Second).UnixMilli()
	fake := &scriptFake{reply: []interface{}{int64(1), int64(3), oldest}}
	l := NewRedisSlidingWindow(fake, 10, time.Minute)

	d, err := l.Admit(context.Background(), "client-a")
	if err != nil {
		t.Fatalf("Admit returned error: %v", err)
	}
	if !d.Allowed {
		t.Fatal("request should be allowed")
	}
	if d.Remaining != 7 {
		t.Errorf("remaining = %d, want 7", d.Remaining)
	}
	if want := time.UnixMilli(oldest).Add(time.Minute); !d.ResetAt.Equal(want) {
		t.Errorf("ResetAt = %v, want %v", d.ResetAt, want)
	}

	// The whole admission is one script call; there is no separate
	// check-then-add round trip to race against another instance.
	if fake.calls != 1 {
		t.Errorf("script invoked %d times, want 1", fake.calls)
	}
}

func TestRedisAdmitRejected(t *testing.T) {
	oldest := time.Now().Add(-20 * time.Second).UnixMilli()
	fake := &scriptFake{reply: []interface{}{int64(0), int64(10), oldest}}
	l := NewRedisSlidingWindow(fake, 10, time.Minute)

	d, err := l.Admit(context.Background(), "client-a")
	if err != nil {
		t.Fatalf("Admit returned error: %v", err)
	}
	if d.Allowed {
		t.Fatal("request over limit should be rejected")
	}
	if d.Remaining != 0 {
		t.Errorf("remaining = %d, want 0", d.Remaining)
	}
	if d.RetryAfter <= 0 || d.RetryAfter > 40*time.Second {
		t.Errorf("RetryAfter = %v, want roughly 40s", d.RetryAfter)
	}
}

func TestRedisAdmitStringScore(t *testing.T) {
	// Lua mixes number and string reply elements depending on the path
	// taken; a string score must parse the same way.
	fake := &scriptFake{reply: []interface{}{int64(1), int64(1), "1700000005000"}}
	l := NewRedisSlidingWindow(fake, 5, time.Minute)

	d, err := l.Admit(context.Background(), "client-a")
	if err != nil {
		t.Fatalf("Admit returned error: %v", err)
	}
	if want := time.UnixMilli(1700000005000).Add(time.Minute); !d.ResetAt.Equal(want) {
		t.Errorf("ResetAt = %v, want %v", d.ResetAt, want)
	}
}

func TestRedisAdmitMalformedReply(t *testing.T) {
	fake := &scriptFake{reply: []interface{}{int64(1)}}
	l := NewRedisSlidingWindow(fake, 5, time.Minute)

	if _, err := l.Admit(context.Background(), "client-a"); err == nil {
		t.Fatal("truncated script reply should be an error")
	}
}
