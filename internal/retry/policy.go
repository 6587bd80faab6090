package retry

import (
	"math"
	"math/rand"
	"time"

	"github.com/dispatchlab/notification-service/internal/config"
	"github.com/dispatchlab/notification-service/internal/domain"
)

// Policy computes exponential backoff with jitter and applies attempt
// outcomes to a notification's state.
type Policy struct {
	BaseDelay     time.Duration
	Multiplier    float64
	JitterPercent int
}

// NewPolicy creates a Policy from config
func NewPolicy(cfg config.RetryConfig) *Policy {
	return &Policy{
		BaseDelay:     cfg.BaseDelay,
		Multiplier:    cfg.Multiplier,
		JitterPercent: cfg.JitterPercent,
	}
}

// NextDelay returns the backoff before the given attempt, where retryCount
// is the attempt number being scheduled (1 for the first retry). The delay
// grows as base * multiplier^(retryCount-1), smeared by +/- JitterPercent so
// a burst of failures does not retry in lockstep.
func (p *Policy) NextDelay(retryCount int) time.Duration {
	if retryCount < 1 {
		retryCount = 1
	}

	delay := float64(p.BaseDelay) * math.Pow(p.Multiplier, float64(retryCount-1))

	if p.JitterPercent > 0 {
		spread := delay * float64(p.JitterPercent) / 100
		delay += (rand.Float64()*2 - 1) * spread
	}

	return time.Duration(delay)
}

// Apply folds a handler outcome into the notification. A transient failure
// schedules the next attempt at now + NextDelay while retry budget remains;
// with the budget spent (retry_count has reached max_retries) it terminates
// in FAILED. The count never exceeds max_retries.
func (p *Policy) Apply(n *domain.Notification, outcome domain.Outcome, now time.Time) error {
	switch outcome.Kind {
	case domain.OutcomeSuccess:
		return n.MarkSent()

	case domain.OutcomePermanent:
		return n.MarkFailed(outcome.Reason)

	case domain.OutcomeTransient:
		if n.RetriesExhausted() {
			return n.MarkFailed(outcome.Reason)
		}
		return n.ScheduleRetry(now.Add(p.NextDelay(n.RetryCount+1)), outcome.Reason)
	}

	return domain.ErrInvalidStatus
}
