package redis

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/dispatchlab/notification-service/internal/config"
	"github.com/dispatchlab/notification-service/internal/domain"
)

// RateLimiter implements domain.RateLimiter with a fixed-window counter per
// (user, channel) pair. The counter key is written NX with the window TTL
// before every increment, so it can never exist without an expiry; the
// remaining TTL doubles as the Retry-After hint on rejection.
type RateLimiter struct {
	client *Client
	cfg    config.RateLimitConfig
	logger *slog.Logger
}

// NewRateLimiter creates a new RateLimiter
func NewRateLimiter(client *Client, cfg config.RateLimitConfig, logger *slog.Logger) *RateLimiter {
	return &RateLimiter{client: client, cfg: cfg, logger: logger}
}

// Admit counts the submission against the user's window and decides whether
// it may proceed. Redis errors admit the request: losing rate limiting for a
// moment is preferable to dropping notifications.
func (l *RateLimiter) Admit(ctx context.Context, userID uuid.UUID, channel domain.Channel) domain.RateDecision {
	limit := l.cfg.LimitFor(string(channel))
	if limit <= 0 {
		return domain.RateDecision{Allowed: true, Limit: limit}
	}

	key := fmt.Sprintf("ratelimit:%s:%s", userID, channel)

	// SET NX acquires the TTL atomically with counter creation; INCR alone
	// could leave a counter that never expires.
	if err := l.client.client.SetNX(ctx, key, 0, l.window()).Err(); err != nil {
		l.logger.Warn("rate limiter unavailable, admitting request",
			"user_id", userID, "channel", channel, "error", err)
		return domain.RateDecision{Allowed: true, Limit: limit}
	}

	count, err := l.client.client.Incr(ctx, key).Result()
	if err != nil {
		l.logger.Warn("rate limiter unavailable, admitting request",
			"user_id", userID, "channel", channel, "error", err)
		return domain.RateDecision{Allowed: true, Limit: limit}
	}

	if count > int64(limit) {
		retryAfter, err := l.client.client.TTL(ctx, key).Result()
		if err != nil || retryAfter < 0 {
			retryAfter = l.window()
		}
		return domain.RateDecision{Allowed: false, Limit: limit, RetryAfter: retryAfter}
	}

	return domain.RateDecision{Allowed: true, Limit: limit}
}

var _ domain.RateLimiter = (*RateLimiter)(nil)

// window guard for the zero value, keeps TTL sane if config is left empty
func (l *RateLimiter) window() time.Duration {
	if l.cfg.Window <= 0 {
		return time.Hour
	}
	return l.cfg.Window
}
