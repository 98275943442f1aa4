// Package ratelimit admits or denies user actions using a sliding window per action and user.
package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"

	"github.com/aimd54/community-scoring-engine/internal/config"
	prommetrics "github.com/aimd54/community-scoring-engine/internal/metrics"
	"github.com/aimd54/community-scoring-engine/internal/models"
	"github.com/aimd54/community-scoring-engine/internal/store"
	"github.com/aimd54/community-scoring-engine/pkg/logger"
)

// Decision is the outcome of one admission check.
type Decision struct {
	Allowed      bool          `json:"allowed"`
	CurrentCount int           `json:"current_count"`
	Limit        int           `json:"limit"`
	RetryAfter   time.Duration `json:"retry_after"`
}

// Remaining is how many more admissions fit in the current window.
func (d Decision) Remaining() int {
	if d.CurrentCount >= d.Limit {
		return 0
	}
	return d.Limit - d.CurrentCount
}

// admitScript purges expired tokens, counts, then admits by recording a token or denies.
// Tokens at exactly now-window have left the window.
//
// KEYS[1] window set
// ARGV[1] now ms, ARGV[2] window ms, ARGV[3] max, ARGV[4] unique token member
// Returns {allowed, count, retry_after_ms}.
var admitScript = store.NewScript(`
local now = tonumber(ARGV[1])
local window = tonumber(ARGV[2])
redis.call('ZREMRANGEBYSCORE', KEYS[1], '-inf', now - window)
local count = redis.call('ZCARD', KEYS[1])
if count >= tonumber(ARGV[3]) then
  local retry = window
  local oldest = redis.call('ZRANGE', KEYS[1], 0, 0, 'WITHSCORES')
  if oldest[2] then
    retry = tonumber(oldest[2]) + window - now
  end
  return {0, count, retry}
end
redis.call('ZADD', KEYS[1], now, ARGV[4])
redis.call('PEXPIRE', KEYS[1], window)
return {1, count + 1, 0}
`)

// Limiter enforces per-action sliding windows.
type Limiter struct {
	store store.Store
	keys  store.Keys
	rules map[string]config.RateLimitConfig
	clock clockwork.Clock
	log   *logger.Logger
}

// NewLimiter creates a limiter for the configured actions.
func NewLimiter(
	st store.Store,
	keys store.Keys,
	rules map[string]config.RateLimitConfig,
	clock clockwork.Clock,
	log *logger.Logger,
) *Limiter {
	return &Limiter{
		store: st,
		keys:  keys,
		rules: rules,
		clock: clock,
		log:   log,
	}
}

// CheckAndAdmit records one attempt of action by userID if the window has room.
// A denied attempt is not recorded.
func (l *Limiter) CheckAndAdmit(ctx context.Context, action, userID string) (Decision, error) {
	rule, ok := l.rules[action]
	if !ok {
		return Decision{}, models.InvalidInput("unknown rate-limited action %q", action)
	}
	if userID == "" {
		return Decision{}, models.InvalidInput("user id is required")
	}

	now := l.clock.Now()
	token := fmt.Sprintf("%d-%s", now.UnixMilli(), uuid.NewString())

	res, err := l.store.Run(ctx, admitScript, []string{l.keys.RateLimit(action, userID)},
		now.UnixMilli(), rule.Window().Milliseconds(), rule.Max, token)
	if err != nil {
		return Decision{}, models.StorageError("rate limit check", err)
	}

	vals, ok := res.([]interface{})
	if !ok || len(vals) != 3 {
		return Decision{}, fmt.Errorf("rate limit check: unexpected reply %v: %w", res, models.ErrStorage)
	}
	allowed, _ := vals[0].(int64)
	count, _ := vals[1].(int64)
	retryMs, _ := vals[2].(int64)

	d := Decision{
		Allowed:      allowed == 1,
		CurrentCount: int(count),
		Limit:        rule.Max,
		RetryAfter:   time.Duration(retryMs) * time.Millisecond,
	}

	prommetrics.RecordRateLimitDecision(action, d.Allowed)
	if !d.Allowed {
		l.log.Debug().
			Str("action", action).
			Str("user_id", userID).
			Int("count", d.CurrentCount).
			Dur("retry_after", d.RetryAfter).
			Msg("Rate limit exceeded")
	}

	return d, nil
}

// Admit is CheckAndAdmit for callers that only need an error: a denial is returned as
// *models.RateLimitError.
func (l *Limiter) Admit(ctx context.Context, action, userID string) error {
	d, err := l.CheckAndAdmit(ctx, action, userID)
	if err != nil {
		return err
	}
	if !d.Allowed {
		return &models.RateLimitError{
			Action:     action,
			Limit:      d.Limit,
			Count:      d.CurrentCount,
			RetryAfter: d.RetryAfter,
		}
	}
	return nil
}

// Reset forgets every recorded attempt of action by userID.
func (l *Limiter) Reset(ctx context.Context, action, userID string) error {
	if _, ok := l.rules[action]; !ok {
		return models.InvalidInput("unknown rate-limited action %q", action)
	}
	if err := l.store.Del(ctx, l.keys.RateLimit(action, userID)); err != nil {
		return models.StorageError("rate limit reset", err)
	}
	return nil
}
