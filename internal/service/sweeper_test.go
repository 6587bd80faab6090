package service

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/dispatchlab/notification-service/internal/config"
	"github.com/dispatchlab/notification-service/internal/domain"
)

func newTestSweeper(t *testing.T) (*SweeperService, *MockNotificationRepository, *MockPublisher) {
	t.Helper()

	repo := new(MockNotificationRepository)
	publisher := new(MockPublisher)
	sweeper := NewSweeperService(repo, publisher,
		config.SweeperConfig{Interval: time.Minute, StuckThreshold: 10 * time.Minute, BatchLimit: 100},
		slog.New(slog.NewTextHandler(io.Discard, nil)),
	)
	return sweeper, repo, publisher
}

func pendingNotification() *domain.Notification {
	n := domain.NewNotification(uuid.New(), domain.ChannelEmail, domain.PriorityHigh, "s", "c")
	n.MaxRetries = 3
	return n
}

func stuckNotification(t *testing.T) *domain.Notification {
	t.Helper()
	n := pendingNotification()
	require.NoError(t, n.MarkProcessing())
	return n
}

func TestSweeperService_Sweep(t *testing.T) {
	ctx := context.Background()

	t.Run("re-publishes due pending notifications", func(t *testing.T) {
		sweeper, repo, publisher := newTestSweeper(t)

		due := []*domain.Notification{pendingNotification(), pendingNotification()}
		repo.On("FindReadyForRetry", ctx, mock.AnythingOfType("time.Time"), 100).Return(due, nil)
		repo.On("FindStuckProcessing", ctx, mock.AnythingOfType("time.Time")).Return([]*domain.Notification{}, nil)
		publisher.On("Publish", ctx, domain.ChannelEmail, due[0].ID).Return(nil)
		publisher.On("Publish", ctx, domain.ChannelEmail, due[1].ID).Return(nil)

		sweeper.Sweep(ctx)

		publisher.AssertExpectations(t)
	})

	t.Run("reclaims stuck processing rows without touching retry count", func(t *testing.T) {
		sweeper, repo, publisher := newTestSweeper(t)

		stuck := stuckNotification(t)
		stuck.RetryCount = 2

		repo.On("FindReadyForRetry", ctx, mock.Anything, 100).Return([]*domain.Notification{}, nil)
		repo.On("FindStuckProcessing", ctx, mock.Anything).Return([]*domain.Notification{stuck}, nil)
		repo.On("Update", ctx, stuck).Return(nil)
		publisher.On("Publish", ctx, domain.ChannelEmail, stuck.ID).Return(nil)

		sweeper.Sweep(ctx)

		assert.Equal(t, domain.StatusPending, stuck.Status)
		assert.Equal(t, 2, stuck.RetryCount)
		repo.AssertExpectations(t)
		publisher.AssertExpectations(t)
	})

	t.Run("version conflict on reclaim is skipped silently", func(t *testing.T) {
		sweeper, repo, publisher := newTestSweeper(t)

		stuck := stuckNotification(t)
		repo.On("FindReadyForRetry", ctx, mock.Anything, 100).Return([]*domain.Notification{}, nil)
		repo.On("FindStuckProcessing", ctx, mock.Anything).Return([]*domain.Notification{stuck}, nil)
		repo.On("Update", ctx, stuck).Return(domain.ErrVersionConflict)

		sweeper.Sweep(ctx)

		publisher.AssertNotCalled(t, "Publish", mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("publish failure leaves the row for the next pass", func(t *testing.T) {
		sweeper, repo, publisher := newTestSweeper(t)

		due := pendingNotification()
		repo.On("FindReadyForRetry", ctx, mock.Anything, 100).Return([]*domain.Notification{due}, nil)
		repo.On("FindStuckProcessing", ctx, mock.Anything).Return([]*domain.Notification{}, nil)
		publisher.On("Publish", ctx, domain.ChannelEmail, due.ID).Return(errors.New("broker down"))

		sweeper.Sweep(ctx)

		// No status change: the row stays PENDING and is found again later.
		assert.Equal(t, domain.StatusPending, due.Status)
	})

	t.Run("repository errors do not abort the other phase", func(t *testing.T) {
		sweeper, repo, publisher := newTestSweeper(t)

		stuck := stuckNotification(t)
		repo.On("FindReadyForRetry", ctx, mock.Anything, 100).Return(nil, errors.New("db down"))
		repo.On("FindStuckProcessing", ctx, mock.Anything).Return([]*domain.Notification{stuck}, nil)
		repo.On("Update", ctx, stuck).Return(nil)
		publisher.On("Publish", ctx, domain.ChannelEmail, stuck.ID).Return(nil)

		sweeper.Sweep(ctx)

		repo.AssertExpectations(t)
	})
}

func TestSweeperService_StartStop(t *testing.T) {
	sweeper, repo, _ := newTestSweeper(t)

	repo.On("FindReadyForRetry", mock.Anything, mock.Anything, 100).Return([]*domain.Notification{}, nil)
	repo.On("FindStuckProcessing", mock.Anything, mock.Anything).Return([]*domain.Notification{}, nil)

	require.NoError(t, sweeper.Start(context.Background()))
	require.NoError(t, sweeper.Start(context.Background())) // second start is a no-op

	time.Sleep(50 * time.Millisecond)
	sweeper.Stop()
	sweeper.Stop() // second stop is a no-op
}
