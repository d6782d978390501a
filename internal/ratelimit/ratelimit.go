// Package ratelimit implements fixed-window rate limiting keyed by
// (operation, identifier). Windows are discrete buckets: the first increment
// starts the window and sets its TTL; the counter resets only when the TTL
// lapses.
package ratelimit

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// Result reports the outcome of a window check.
type Result struct {
	Allowed    bool
	Limit      int
	Remaining  int
	ResetAt    time.Time
	RetryAfter int // seconds, only set when not allowed
}

// WindowStore increments the counter for a window key. The increment must be
// a single atomic read-modify-write: a race here undercounts and defeats
// abuse protection. The TTL is applied once, on the increment that creates
// the key, and reports the remaining window time.
type WindowStore interface {
	Incr(ctx context.Context, key string, window time.Duration) (count int64, remaining time.Duration, err error)
}

// OperationConfig is the named budget for one operation.
type OperationConfig struct {
	Limit  int
	Window time.Duration
}

// Registration step budgets. Windows are five minutes; limits scale with how
// expensive or abusable each step is.
const (
	OpCheckPhone   = "check_phone"
	OpCheckEmail   = "check_email"
	OpSendEmailOTP = "send_email_otp"
)

// DefaultOperations returns the per-step budgets.
func DefaultOperations() map[string]OperationConfig {
	return map[string]OperationConfig{
		OpCheckPhone:   {Limit: 10, Window: 5 * time.Minute},
		OpCheckEmail:   {Limit: 20, Window: 5 * time.Minute},
		OpSendEmailOTP: {Limit: 3, Window: 5 * time.Minute},
	}
}

// SanitizeKeySegment escapes delimiter characters in window key segments to
// prevent key collision attacks where user-controlled identifiers containing
// ':' could manipulate adjacent windows.
func SanitizeKeySegment(s string) string {
	return strings.ReplaceAll(s, ":", "_")
}

// LimitExceededError is returned by Limiter.Allow when the window is full.
// The transport layer unwraps it to emit Retry-After and X-RateLimit-*
// headers.
type LimitExceededError struct {
	Operation string
	Result    *Result
}

func (e *LimitExceededError) Error() string {
	return fmt.Sprintf("rate limit exceeded for %s: retry after %ds", e.Operation, e.Result.RetryAfter)
}
