package ratelimit

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"onboard/internal/platform/metrics"
)

// Limiter enforces named per-operation budgets on top of a WindowStore. It is
// the only writer of window counters.
type Limiter struct {
	store   WindowStore
	ops     map[string]OperationConfig
	logger  *slog.Logger
	metrics *metrics.Metrics
	now     func() time.Time
}

type Option func(*Limiter)

// WithClock overrides the limiter's time source for tests.
func WithClock(now func() time.Time) Option {
	return func(l *Limiter) {
		l.now = now
	}
}

// WithMetrics enables the rejected-request counter.
func WithMetrics(m *metrics.Metrics) Option {
	return func(l *Limiter) {
		l.metrics = m
	}
}

// New builds a Limiter. ops maps operation names to their budgets; requests
// for operations outside the map are a programming error and panic.
func New(store WindowStore, ops map[string]OperationConfig, logger *slog.Logger, opts ...Option) *Limiter {
	l := &Limiter{
		store:  store,
		ops:    ops,
		logger: logger,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Allow consumes one slot in the (operation, identifier) window. It returns
// a *LimitExceededError once the post-increment count exceeds the budget;
// the window itself is left untouched since its TTL was set on creation.
func (l *Limiter) Allow(ctx context.Context, operation, identifier string) (*Result, error) {
	cfg, ok := l.ops[operation]
	if !ok {
		panic(fmt.Sprintf("ratelimit: unknown operation %q", operation))
	}

	key := "rl:" + operation + ":" + SanitizeKeySegment(identifier)
	count, remaining, err := l.store.Incr(ctx, key, cfg.Window)
	if err != nil {
		return nil, fmt.Errorf("increment window %s: %w", key, err)
	}
	if remaining <= 0 {
		remaining = cfg.Window
	}

	if count > int64(cfg.Limit) {
		retryAfter := int(remaining.Seconds())
		if retryAfter < 1 {
			retryAfter = 1
		}
		result := &Result{
			Allowed:    false,
			Limit:      cfg.Limit,
			Remaining:  0,
			ResetAt:    l.now().Add(remaining),
			RetryAfter: retryAfter,
		}
		if l.metrics != nil {
			l.metrics.RateLimited.WithLabelValues(operation).Inc()
		}
		l.logger.WarnContext(ctx, "rate limit exceeded",
			"operation", operation,
			"retry_after", retryAfter,
		)
		return result, &LimitExceededError{Operation: operation, Result: result}
	}

	return &Result{
		Allowed:   true,
		Limit:     cfg.Limit,
		Remaining: cfg.Limit - int(count),
		ResetAt:   l.now().Add(remaining),
	}, nil
}
