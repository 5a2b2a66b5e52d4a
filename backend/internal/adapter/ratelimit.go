package adapter

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"decision-graph/backend/pkg/logger"
)

// AnonymousCaller is the sentinel caller identity for unauthenticated
// requests. Anonymous callers get the stricter ceiling.
const AnonymousCaller = "anonymous"

// How often a blocked caller re-polls for a slot
const slotPollInterval = 500 * time.Millisecond

// RateLimiter implements a sliding-window counter per caller identity on a
// redis sorted set of request timestamps.
type RateLimiter struct {
	client       *redis.Client
	maxRequests  int
	maxAnonymous int
	window       time.Duration
	logger       *zap.Logger
}

// NewRateLimiter creates a sliding-window limiter. maxRequests applies to
// identified callers, maxAnonymous to the anonymous pool. A nil client
// disables limiting; every acquire succeeds.
func NewRateLimiter(client *redis.Client, maxRequests, maxAnonymous, windowSeconds int) *RateLimiter {
	return &RateLimiter{
		client:       client,
		maxRequests:  maxRequests,
		maxAnonymous: maxAnonymous,
		window:       time.Duration(windowSeconds) * time.Second,
		logger:       logger.Named("ratelimit"),
	}
}

func (l *RateLimiter) key(callerID string) string {
	if callerID == "" || callerID == AnonymousCaller {
		return "ratelimit:anonymous:llm"
	}
	return fmt.Sprintf("ratelimit:user:%s:llm", callerID)
}

func (l *RateLimiter) limitFor(callerID string) int {
	if callerID == "" || callerID == AnonymousCaller {
		return l.maxAnonymous
	}
	return l.maxRequests
}

// Acquire tries to take a slot for the caller. Returns false when the
// window is full; the tentatively added timestamp is removed on rejection.
func (l *RateLimiter) Acquire(ctx context.Context, callerID string) (bool, error) {
	if l.client == nil {
		return true, nil
	}

	key := l.key(callerID)
	now := float64(time.Now().UnixNano()) / 1e9
	windowStart := now - l.window.Seconds()
	member := fmt.Sprintf("%.9f", now)

	pipe := l.client.Pipeline()
	pipe.ZRemRangeByScore(ctx, key, "0", fmt.Sprintf("%f", windowStart))
	countCmd := pipe.ZCard(ctx, key)
	pipe.ZAdd(ctx, key, redis.Z{Score: now, Member: member})
	pipe.Expire(ctx, key, l.window)
	if _, err := pipe.Exec(ctx); err != nil {
		return false, fmt.Errorf("rate limit check failed: %w", err)
	}

	if countCmd.Val() >= int64(l.limitFor(callerID)) {
		if err := l.client.ZRem(ctx, key, member).Err(); err != nil {
			l.logger.Warn("failed to roll back rejected slot", zap.Error(err))
		}
		l.logger.Warn("rate limit exceeded",
			zap.String("caller", callerID),
			zap.Int64("count", countCmd.Val()),
			zap.Int("limit", l.limitFor(callerID)),
		)
		return false, nil
	}

	return true, nil
}

// Remaining reports how many slots the caller has left and how long until
// the oldest request falls out of the window.
func (l *RateLimiter) Remaining(ctx context.Context, callerID string) (int, time.Duration, error) {
	if l.client == nil {
		return l.limitFor(callerID), 0, nil
	}

	key := l.key(callerID)
	now := float64(time.Now().UnixNano()) / 1e9
	windowStart := now - l.window.Seconds()

	pipe := l.client.Pipeline()
	pipe.ZRemRangeByScore(ctx, key, "0", fmt.Sprintf("%f", windowStart))
	countCmd := pipe.ZCard(ctx, key)
	oldestCmd := pipe.ZRangeWithScores(ctx, key, 0, 0)
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, 0, fmt.Errorf("rate limit lookup failed: %w", err)
	}

	remaining := l.limitFor(callerID) - int(countCmd.Val())
	if remaining < 0 {
		remaining = 0
	}

	var untilReset time.Duration
	if oldest := oldestCmd.Val(); len(oldest) > 0 {
		resetAt := oldest[0].Score + l.window.Seconds()
		if secs := resetAt - now; secs > 0 {
			untilReset = time.Duration(secs * float64(time.Second))
		}
	}

	return remaining, untilReset, nil
}

// WaitForSlot polls for a slot until one is acquired, the timeout elapses,
// or the context is cancelled.
func (l *RateLimiter) WaitForSlot(ctx context.Context, callerID string, timeout time.Duration) (bool, error) {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		ok, err := l.Acquire(ctx, callerID)
		if err != nil {
			return false, err
		}
		if ok {
			return true, nil
		}
		select {
		case <-ctx.Done():
			return false, ctx.Err()
		case <-time.After(slotPollInterval):
		}
	}
	return false, nil
}
