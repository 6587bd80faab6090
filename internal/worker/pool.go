package worker

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"

	"github.com/dispatchlab/notification-service/internal/domain"
	"github.com/dispatchlab/notification-service/internal/retry"
)

// Source is one worker's view of the message log. Satisfied by
// *kafka.Reader; tests substitute their own.
type Source interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// MetricHooks receives pipeline observations. Nil hooks are skipped, so the
// pool runs fine unmetered in tests.
type MetricHooks struct {
	Processed func(channel, result string)
	Duration  func(channel string, seconds float64)
}

// Pool consumes one channel's topic with a fixed number of workers, each
// holding its own reader in the shared consumer group. A message's offset is
// committed only after the attempt's resulting state is durable; anything
// the pool cannot persist is redelivered or reclaimed by the sweeper.
type Pool struct {
	channel        domain.Channel
	handler        domain.ChannelHandler
	repo           domain.NotificationRepository
	userRepo       domain.UserRepository
	policy         *retry.Policy
	newSource      func() Source
	workers        int
	handlerTimeout time.Duration
	drainDeadline  time.Duration
	logger         *slog.Logger
	metrics        MetricHooks

	statusBroadcast func(n *domain.Notification)

	mu         sync.Mutex
	running    bool
	wg         sync.WaitGroup
	stopFetch  context.CancelFunc
	cancelWork context.CancelFunc
}

// PoolConfig carries the knobs for one channel's pool.
type PoolConfig struct {
	Workers        int
	HandlerTimeout time.Duration
	DrainDeadline  time.Duration
}

// NewPool creates a new Pool
func NewPool(
	channel domain.Channel,
	handler domain.ChannelHandler,
	repo domain.NotificationRepository,
	userRepo domain.UserRepository,
	policy *retry.Policy,
	newSource func() Source,
	cfg PoolConfig,
	metrics MetricHooks,
	logger *slog.Logger,
) *Pool {
	workers := cfg.Workers
	if workers < 1 {
		workers = 1
	}
	return &Pool{
		channel:        channel,
		handler:        handler,
		repo:           repo,
		userRepo:       userRepo,
		policy:         policy,
		newSource:      newSource,
		workers:        workers,
		handlerTimeout: cfg.HandlerTimeout,
		drainDeadline:  cfg.DrainDeadline,
		logger:         logger,
		metrics:        metrics,
	}
}

// SetStatusBroadcast sets the function to broadcast status updates
func (p *Pool) SetStatusBroadcast(fn func(n *domain.Notification)) {
	p.statusBroadcast = fn
}

// Start starts the worker pool
func (p *Pool) Start(ctx context.Context) error {
	p.mu.Lock()
	if p.running {
		p.mu.Unlock()
		return nil
	}
	p.running = true
	p.mu.Unlock()

	// Two cancellation scopes: fetchCtx stops polling, workCtx aborts
	// in-flight persistence and commits. Stop cuts them in that order so
	// attempts already fetched can finish within the drain deadline.
	fetchCtx, stopFetch := context.WithCancel(ctx)
	workCtx, cancelWork := context.WithCancel(ctx)
	p.stopFetch = stopFetch
	p.cancelWork = cancelWork

	for i := 0; i < p.workers; i++ {
		p.wg.Add(1)
		go p.worker(fetchCtx, workCtx, i)
	}

	p.logger.Info("consumer pool started",
		"channel", p.channel,
		"workers", p.workers,
	)

	return nil
}

// Stop first stops polling, then waits up to the drain deadline for
// in-flight attempts to persist and commit. Only once drained (or the
// deadline passes) is the processing context cancelled.
func (p *Pool) Stop() {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return
	}
	p.running = false
	p.mu.Unlock()

	if p.stopFetch != nil {
		p.stopFetch()
	}

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		p.logger.Info("consumer pool stopped", "channel", p.channel)
	case <-time.After(p.drainDeadline):
		p.logger.Warn("consumer pool drain timed out, aborting in-flight attempts",
			"channel", p.channel)
	}

	if p.cancelWork != nil {
		p.cancelWork()
	}
}

// worker is the fetch-process-commit loop
func (p *Pool) worker(fetchCtx, workCtx context.Context, workerID int) {
	defer p.wg.Done()

	logger := p.logger.With(
		"channel", p.channel,
		"worker_id", workerID,
	)

	src := p.newSource()
	defer src.Close()

	logger.Info("worker started")

	for {
		msg, err := src.FetchMessage(fetchCtx)
		if err != nil {
			if fetchCtx.Err() != nil {
				logger.Info("worker stopped")
				return
			}
			logger.Error("failed to fetch message", "error", err)
			select {
			case <-fetchCtx.Done():
				return
			case <-time.After(time.Second):
			}
			continue
		}

		ack, err := p.process(workCtx, msg, logger)
		if err != nil {
			// Leave the offset alone: the row is either still PENDING and
			// replayed by the sweeper, or stuck in PROCESSING and reclaimed.
			logger.Error("failed to process message",
				"partition", msg.Partition,
				"offset", msg.Offset,
				"error", err,
			)
			continue
		}

		if ack {
			if err := src.CommitMessages(workCtx, msg); err != nil {
				logger.Error("failed to commit offset",
					"partition", msg.Partition,
					"offset", msg.Offset,
					"error", err,
				)
			}
		}
	}
}

// process runs one delivery attempt. It returns whether the message may be
// acknowledged; an error always means "do not ack".
func (p *Pool) process(ctx context.Context, msg kafka.Message, logger *slog.Logger) (bool, error) {
	start := time.Now()

	id, err := uuid.Parse(string(msg.Value))
	if err != nil {
		logger.Warn("dropping malformed message", "value", string(msg.Value))
		return true, nil
	}

	notification, err := p.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			// Orphaned message; nothing to deliver.
			logger.Warn("notification not found", "notification_id", id)
			return true, nil
		}
		return false, err
	}

	// Only PENDING rows are actionable. Duplicate deliveries and sweeper
	// re-publishes of already-handled rows end here.
	if notification.Status != domain.StatusPending {
		return true, nil
	}

	// Lease the row. Losing the version race means another worker got it.
	if err := notification.MarkProcessing(); err != nil {
		return true, nil
	}
	if err := p.repo.Update(ctx, notification); err != nil {
		if errors.Is(err, domain.ErrVersionConflict) {
			return true, nil
		}
		return false, err
	}
	p.broadcastStatus(notification)

	outcome := p.attempt(ctx, notification)

	if err := p.policy.Apply(notification, outcome, time.Now().UTC()); err != nil {
		return false, err
	}
	if err := p.repo.Update(ctx, notification); err != nil {
		return false, err
	}
	p.broadcastStatus(notification)

	p.observe(outcome, time.Since(start))
	p.logAttempt(logger, notification, outcome)

	return true, nil
}

// attempt resolves the recipient and calls the channel handler.
func (p *Pool) attempt(ctx context.Context, n *domain.Notification) domain.Outcome {
	user, err := p.userRepo.GetByID(ctx, n.UserID)
	if err != nil {
		if errors.Is(err, domain.ErrUserNotFound) {
			return domain.PermanentFailure("user not found")
		}
		return domain.TransientFailure("failed to load user: " + err.Error())
	}

	if !user.Active {
		return domain.PermanentFailure("user deactivated")
	}
	if !p.handler.CanHandle(user) {
		return domain.PermanentFailure("user has no address for channel " + string(p.channel))
	}

	sendCtx := ctx
	if p.handlerTimeout > 0 {
		var cancel context.CancelFunc
		sendCtx, cancel = context.WithTimeout(ctx, p.handlerTimeout)
		defer cancel()
	}

	return p.handler.Send(sendCtx, user, n)
}

func (p *Pool) observe(outcome domain.Outcome, elapsed time.Duration) {
	if p.metrics.Processed != nil {
		p.metrics.Processed(string(p.channel), outcome.Kind.String())
	}
	if p.metrics.Duration != nil {
		p.metrics.Duration(string(p.channel), elapsed.Seconds())
	}
}

func (p *Pool) logAttempt(logger *slog.Logger, n *domain.Notification, outcome domain.Outcome) {
	switch n.Status {
	case domain.StatusSent:
		logger.Info("notification sent", "notification_id", n.ID)
	case domain.StatusPending:
		logger.Warn("notification scheduled for retry",
			"notification_id", n.ID,
			"retry_count", n.RetryCount,
			"next_retry_at", n.NextRetryAt,
			"reason", outcome.Reason,
		)
	case domain.StatusFailed:
		logger.Error("notification failed",
			"notification_id", n.ID,
			"retry_count", n.RetryCount,
			"reason", outcome.Reason,
		)
	}
}

func (p *Pool) broadcastStatus(n *domain.Notification) {
	if p.statusBroadcast != nil {
		p.statusBroadcast(n)
	}
}
