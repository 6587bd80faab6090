package redis

import (
	"context"
	"log/slog"

	"github.com/dispatchlab/notification-service/internal/config"
	"github.com/dispatchlab/notification-service/internal/domain"
)

// IdempotencyGate implements domain.IdempotencyGate with SETNX. The first
// caller to claim an event id wins; everyone else inside the TTL window is a
// duplicate.
type IdempotencyGate struct {
	client *Client
	cfg    config.DedupConfig
	logger *slog.Logger
}

// NewIdempotencyGate creates a new IdempotencyGate
func NewIdempotencyGate(client *Client, cfg config.DedupConfig, logger *slog.Logger) *IdempotencyGate {
	return &IdempotencyGate{client: client, cfg: cfg, logger: logger}
}

// Claim registers an event id and reports whether this call was the first.
// Redis errors admit the event: a transient duplicate beats a lost
// notification.
func (g *IdempotencyGate) Claim(ctx context.Context, eventID string) bool {
	claimed, err := g.client.client.SetNX(ctx, "dedup:"+eventID, 1, g.cfg.TTL).Result()
	if err != nil {
		g.logger.Warn("idempotency gate unavailable, admitting event",
			"event_id", eventID, "error", err)
		return true
	}
	return claimed
}

var _ domain.IdempotencyGate = (*IdempotencyGate)(nil)
