package ratelimit

import (
	"context"
	"time"
)

// Decision is the outcome of one admission check.
type Decision struct {
	Allowed    bool
	Limit      int
	Remaining  int
	ResetAt    time.Time
	RetryAfter time.Duration
}

// Limiter decides whether a request from the given identity is admitted.
//
// Admit is a single atomic operation: it prunes the identity's window,
// checks the count and records the admission in one step, so two
// concurrent calls for the same identity can never both claim the last
// remaining slot.
type Limiter interface {
	Admit(ctx context.Context, identity string) (Decision, error)
}
