package retry

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dispatchlab/notification-service/internal/domain"
)

func processingNotification(t *testing.T, maxRetries int) *domain.Notification {
	t.Helper()
	n := domain.NewNotification(uuid.New(), domain.ChannelEmail, domain.PriorityHigh, "s", "c")
	n.MaxRetries = maxRetries
	require.NoError(t, n.MarkProcessing())
	return n
}

func TestPolicy_NextDelay(t *testing.T) {
	t.Run("grows exponentially without jitter", func(t *testing.T) {
		p := &Policy{BaseDelay: time.Minute, Multiplier: 5}

		assert.Equal(t, time.Minute, p.NextDelay(1))
		assert.Equal(t, 5*time.Minute, p.NextDelay(2))
		assert.Equal(t, 25*time.Minute, p.NextDelay(3))
	})

	t.Run("jitter stays within the configured band", func(t *testing.T) {
		p := &Policy{BaseDelay: time.Minute, Multiplier: 5, JitterPercent: 10}

		for i := 0; i < 200; i++ {
			d := p.NextDelay(2)
			assert.GreaterOrEqual(t, d, time.Duration(float64(5*time.Minute)*0.9))
			assert.LessOrEqual(t, d, time.Duration(float64(5*time.Minute)*1.1))
		}
	})

	t.Run("clamps retry count below one", func(t *testing.T) {
		p := &Policy{BaseDelay: time.Minute, Multiplier: 5}
		assert.Equal(t, time.Minute, p.NextDelay(0))
	})
}

func TestPolicy_Apply(t *testing.T) {
	p := &Policy{BaseDelay: time.Minute, Multiplier: 5}
	now := time.Now().UTC()

	t.Run("success marks sent", func(t *testing.T) {
		n := processingNotification(t, 3)

		require.NoError(t, p.Apply(n, domain.Success(), now))

		assert.Equal(t, domain.StatusSent, n.Status)
		assert.NotNil(t, n.SentAt)
		assert.Zero(t, n.RetryCount)
	})

	t.Run("permanent failure marks failed without touching retry count", func(t *testing.T) {
		n := processingNotification(t, 3)

		require.NoError(t, p.Apply(n, domain.PermanentFailure("invalid recipient"), now))

		assert.Equal(t, domain.StatusFailed, n.Status)
		assert.Zero(t, n.RetryCount)
		require.NotNil(t, n.ErrorMessage)
		assert.Equal(t, "invalid recipient", *n.ErrorMessage)
	})

	t.Run("transient failure schedules a retry with backoff", func(t *testing.T) {
		n := processingNotification(t, 3)

		require.NoError(t, p.Apply(n, domain.TransientFailure("timeout"), now))

		assert.Equal(t, domain.StatusPending, n.Status)
		assert.Equal(t, 1, n.RetryCount)
		require.NotNil(t, n.NextRetryAt)
		assert.Equal(t, now.Add(time.Minute), *n.NextRetryAt)
	})

	t.Run("second transient failure backs off further", func(t *testing.T) {
		n := processingNotification(t, 3)
		n.RetryCount = 1

		require.NoError(t, p.Apply(n, domain.TransientFailure("timeout"), now))

		assert.Equal(t, domain.StatusPending, n.Status)
		assert.Equal(t, 2, n.RetryCount)
		assert.Equal(t, now.Add(5*time.Minute), *n.NextRetryAt)
	})

	t.Run("final transient failure consumes the last budget slot", func(t *testing.T) {
		n := processingNotification(t, 3)
		n.RetryCount = 2

		require.NoError(t, p.Apply(n, domain.TransientFailure("timeout"), now))

		assert.Equal(t, domain.StatusPending, n.Status)
		assert.Equal(t, 3, n.RetryCount)
		assert.Equal(t, now.Add(25*time.Minute), *n.NextRetryAt)
	})

	t.Run("transient failure with the budget spent terminates in failed", func(t *testing.T) {
		n := processingNotification(t, 3)
		n.RetryCount = 3

		require.NoError(t, p.Apply(n, domain.TransientFailure("timeout"), now))

		assert.Equal(t, domain.StatusFailed, n.Status)
		assert.Equal(t, 3, n.RetryCount)
		assert.Nil(t, n.NextRetryAt)
	})

	t.Run("budget of three yields exactly three scheduled retries", func(t *testing.T) {
		n := processingNotification(t, 3)

		for i := 1; i <= 3; i++ {
			require.NoError(t, p.Apply(n, domain.TransientFailure("timeout"), now))
			assert.Equal(t, domain.StatusPending, n.Status)
			assert.Equal(t, i, n.RetryCount)
			require.NoError(t, n.MarkProcessing())
		}

		require.NoError(t, p.Apply(n, domain.TransientFailure("timeout"), now))
		assert.Equal(t, domain.StatusFailed, n.Status)
		assert.Equal(t, 3, n.RetryCount)
	})

	t.Run("max retries zero fails immediately without consuming budget", func(t *testing.T) {
		n := processingNotification(t, 0)

		require.NoError(t, p.Apply(n, domain.TransientFailure("timeout"), now))

		assert.Equal(t, domain.StatusFailed, n.Status)
		assert.Zero(t, n.RetryCount)
		assert.LessOrEqual(t, n.RetryCount, n.MaxRetries)
	})
}
