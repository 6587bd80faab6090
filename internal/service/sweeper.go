package service

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/dispatchlab/notification-service/internal/config"
	"github.com/dispatchlab/notification-service/internal/domain"
)

// SweeperService is the pipeline's safety net. Each tick it re-publishes
// PENDING rows whose retry time has come and reclaims rows stranded in
// PROCESSING by crashed workers. Re-publishing an already-queued row is
// harmless: workers skip anything not in PENDING.
type SweeperService struct {
	repo      domain.NotificationRepository
	publisher domain.Publisher
	logger    *slog.Logger
	cfg       config.SweeperConfig

	mu       sync.Mutex
	running  bool
	stopChan chan struct{}
}

// NewSweeperService creates a new SweeperService
func NewSweeperService(
	repo domain.NotificationRepository,
	publisher domain.Publisher,
	cfg config.SweeperConfig,
	logger *slog.Logger,
) *SweeperService {
	return &SweeperService{
		repo:      repo,
		publisher: publisher,
		cfg:       cfg,
		logger:    logger,
	}
}

// Start starts the sweeper loop
func (s *SweeperService) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return nil
	}
	s.running = true
	s.stopChan = make(chan struct{})
	s.mu.Unlock()

	s.logger.Info("sweeper started",
		"interval", s.cfg.Interval,
		"stuck_threshold", s.cfg.StuckThreshold,
	)

	go s.run(ctx)
	return nil
}

// Stop stops the sweeper
func (s *SweeperService) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running {
		return
	}

	close(s.stopChan)
	s.running = false
	s.logger.Info("sweeper stopped")
}

// run is the main sweeper loop
func (s *SweeperService) run(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()

	// Sweep immediately on start
	s.Sweep(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case <-s.stopChan:
			return
		case <-ticker.C:
			s.Sweep(ctx)
		}
	}
}

// Sweep runs both phases once.
func (s *SweeperService) Sweep(ctx context.Context) {
	now := time.Now().UTC()
	s.replayReady(ctx, now)
	s.reclaimStuck(ctx, now)
}

// replayReady re-publishes PENDING rows whose retry time has elapsed. This
// also recovers rows whose original publish after insert failed.
func (s *SweeperService) replayReady(ctx context.Context, now time.Time) {
	notifications, err := s.repo.FindReadyForRetry(ctx, now, s.cfg.BatchLimit)
	if err != nil {
		s.logger.Error("failed to find notifications ready for retry", "error", err)
		return
	}

	if len(notifications) == 0 {
		return
	}

	published := 0
	for _, n := range notifications {
		if err := s.publisher.Publish(ctx, n.Channel, n.ID); err != nil {
			s.logger.Error("failed to re-publish notification",
				"notification_id", n.ID,
				"channel", n.Channel,
				"error", err,
			)
			continue
		}
		published++
	}

	s.logger.Info("replayed pending notifications",
		"found", len(notifications),
		"published", published,
	)
}

// reclaimStuck moves long-stranded PROCESSING rows back to PENDING and
// re-publishes them. The retry count stays untouched; whether the stranded
// worker reached the provider is unknown. A version conflict means someone
// else already advanced the row, which is fine.
func (s *SweeperService) reclaimStuck(ctx context.Context, now time.Time) {
	notifications, err := s.repo.FindStuckProcessing(ctx, now.Add(-s.cfg.StuckThreshold))
	if err != nil {
		s.logger.Error("failed to find stuck notifications", "error", err)
		return
	}

	if len(notifications) == 0 {
		return
	}

	reclaimed := 0
	for _, n := range notifications {
		if err := n.Reclaim(); err != nil {
			continue
		}

		if err := s.repo.Update(ctx, n); err != nil {
			if errors.Is(err, domain.ErrVersionConflict) {
				continue
			}
			s.logger.Error("failed to reclaim stuck notification",
				"notification_id", n.ID,
				"error", err,
			)
			continue
		}

		if err := s.publisher.Publish(ctx, n.Channel, n.ID); err != nil {
			// Still PENDING with a nil next_retry_at, so the next replay
			// pass picks it up.
			s.logger.Error("failed to re-publish reclaimed notification",
				"notification_id", n.ID,
				"error", err,
			)
		}
		reclaimed++
	}

	s.logger.Warn("reclaimed stuck notifications",
		"found", len(notifications),
		"reclaimed", reclaimed,
	)
}
