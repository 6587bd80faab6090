package domain

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewNotification(t *testing.T) {
	userID := uuid.New()
	n := NewNotification(userID, ChannelEmail, PriorityMedium, "Hi", "Hello")

	assert.NotEqual(t, uuid.Nil, n.ID)
	assert.Equal(t, userID, n.UserID)
	assert.Equal(t, ChannelEmail, n.Channel)
	assert.Equal(t, StatusPending, n.Status)
	assert.Equal(t, 0, n.RetryCount)
	assert.Nil(t, n.NextRetryAt)
	assert.False(t, n.CreatedAt.IsZero())
}

func TestNotification_Lifecycle(t *testing.T) {
	t.Run("happy path pending to sent", func(t *testing.T) {
		n := NewNotification(uuid.New(), ChannelEmail, PriorityHigh, "s", "c")

		require.NoError(t, n.MarkProcessing())
		assert.Equal(t, StatusProcessing, n.Status)

		require.NoError(t, n.MarkSent())
		assert.Equal(t, StatusSent, n.Status)
		require.NotNil(t, n.SentAt)
		assert.Nil(t, n.ErrorMessage)
		assert.Nil(t, n.NextRetryAt)
	})

	t.Run("schedule retry increments count and returns to pending", func(t *testing.T) {
		n := NewNotification(uuid.New(), ChannelSMS, PriorityMedium, "", "c")
		require.NoError(t, n.MarkProcessing())

		at := time.Now().UTC().Add(time.Minute)
		require.NoError(t, n.ScheduleRetry(at, "timeout"))

		assert.Equal(t, StatusPending, n.Status)
		assert.Equal(t, 1, n.RetryCount)
		require.NotNil(t, n.NextRetryAt)
		assert.Equal(t, at, *n.NextRetryAt)
		require.NotNil(t, n.ErrorMessage)
		assert.Equal(t, "timeout", *n.ErrorMessage)
	})

	t.Run("mark failed clears retry schedule", func(t *testing.T) {
		n := NewNotification(uuid.New(), ChannelPush, PriorityLow, "", "c")
		require.NoError(t, n.MarkProcessing())
		at := time.Now().UTC()
		n.NextRetryAt = &at

		require.NoError(t, n.MarkFailed("unregistered token"))
		assert.Equal(t, StatusFailed, n.Status)
		assert.Nil(t, n.NextRetryAt)
		assert.Equal(t, "unregistered token", *n.ErrorMessage)
	})

	t.Run("reclaim does not increment retry count", func(t *testing.T) {
		n := NewNotification(uuid.New(), ChannelEmail, PriorityMedium, "s", "c")
		require.NoError(t, n.MarkProcessing())

		require.NoError(t, n.Reclaim())
		assert.Equal(t, StatusPending, n.Status)
		assert.Equal(t, 0, n.RetryCount)
	})
}

func TestNotification_IllegalTransitions(t *testing.T) {
	t.Run("cannot process a non-pending row", func(t *testing.T) {
		n := NewNotification(uuid.New(), ChannelEmail, PriorityMedium, "s", "c")
		require.NoError(t, n.MarkProcessing())
		require.NoError(t, n.MarkSent())

		assert.ErrorIs(t, n.MarkProcessing(), ErrInvalidStatus)
	})

	t.Run("failed is final", func(t *testing.T) {
		n := NewNotification(uuid.New(), ChannelEmail, PriorityMedium, "s", "c")
		require.NoError(t, n.MarkProcessing())
		require.NoError(t, n.MarkFailed("hard bounce"))

		assert.ErrorIs(t, n.MarkProcessing(), ErrInvalidStatus)
		assert.ErrorIs(t, n.MarkSent(), ErrInvalidStatus)
		assert.ErrorIs(t, n.MarkDelivered(), ErrInvalidStatus)
		assert.Equal(t, StatusFailed, n.Status)
	})

	t.Run("cannot send without lease", func(t *testing.T) {
		n := NewNotification(uuid.New(), ChannelEmail, PriorityMedium, "s", "c")
		assert.ErrorIs(t, n.MarkSent(), ErrInvalidStatus)
	})
}

func TestNotification_ExternalPromotions(t *testing.T) {
	sent := func(t *testing.T) *Notification {
		n := NewNotification(uuid.New(), ChannelInApp, PriorityMedium, "", "c")
		require.NoError(t, n.MarkProcessing())
		require.NoError(t, n.MarkSent())
		return n
	}

	t.Run("delivered then read keeps timestamp order", func(t *testing.T) {
		n := sent(t)
		require.NoError(t, n.MarkDelivered())
		require.NoError(t, n.MarkRead())

		require.NotNil(t, n.DeliveredAt)
		require.NotNil(t, n.ReadAt)
		assert.False(t, n.SentAt.After(*n.DeliveredAt))
		assert.False(t, n.DeliveredAt.After(*n.ReadAt))
	})

	t.Run("delivered is idempotent", func(t *testing.T) {
		n := sent(t)
		require.NoError(t, n.MarkDelivered())
		first := *n.DeliveredAt

		require.NoError(t, n.MarkDelivered())
		assert.Equal(t, first, *n.DeliveredAt)
	})

	t.Run("read directly from sent backfills delivered_at", func(t *testing.T) {
		n := sent(t)
		require.NoError(t, n.MarkRead())

		assert.Equal(t, StatusRead, n.Status)
		require.NotNil(t, n.DeliveredAt)
	})

	t.Run("late delivery confirmation after read is a no-op", func(t *testing.T) {
		n := sent(t)
		require.NoError(t, n.MarkRead())
		require.NoError(t, n.MarkDelivered())
		assert.Equal(t, StatusRead, n.Status)
	})
}

func TestChannel(t *testing.T) {
	for _, ch := range Channels {
		assert.True(t, ch.IsValid(), string(ch))
	}
	assert.False(t, Channel("carrier_pigeon").IsValid())

	assert.Equal(t, "notifications.email", ChannelEmail.Topic())
	assert.Equal(t, "notifications.sms", ChannelSMS.Topic())
	assert.Equal(t, "notifications.push", ChannelPush.Topic())
	assert.Equal(t, "notifications.in-app", ChannelInApp.Topic())
}

func TestPriority(t *testing.T) {
	for _, p := range []Priority{PriorityCritical, PriorityHigh, PriorityMedium, PriorityLow} {
		assert.True(t, p.IsValid(), string(p))
	}
	assert.False(t, Priority("urgent").IsValid())
}

func TestStatus_IsTerminal(t *testing.T) {
	assert.False(t, StatusPending.IsTerminal())
	assert.False(t, StatusProcessing.IsTerminal())
	assert.True(t, StatusSent.IsTerminal())
	assert.True(t, StatusDelivered.IsTerminal())
	assert.True(t, StatusRead.IsTerminal())
	assert.True(t, StatusFailed.IsTerminal())
}
