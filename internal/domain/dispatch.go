package domain

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// OutcomeKind classifies the result of a handler send attempt.
type OutcomeKind int

const (
	OutcomeSuccess OutcomeKind = iota
	OutcomeTransient
	OutcomePermanent
)

func (k OutcomeKind) String() string {
	switch k {
	case OutcomeSuccess:
		return "success"
	case OutcomeTransient:
		return "transient_failure"
	case OutcomePermanent:
		return "permanent_failure"
	}
	return "unknown"
}

// Outcome is a handler's verdict on one delivery attempt.
type Outcome struct {
	Kind   OutcomeKind
	Reason string
}

func Success() Outcome {
	return Outcome{Kind: OutcomeSuccess}
}

func TransientFailure(reason string) Outcome {
	return Outcome{Kind: OutcomeTransient, Reason: reason}
}

func PermanentFailure(reason string) Outcome {
	return Outcome{Kind: OutcomePermanent, Reason: reason}
}

// ChannelHandler translates a notification into a provider call for one
// channel. CanHandle checks the user-side precondition (address present);
// a false return is a permanent decline, never retried.
type ChannelHandler interface {
	Channel() Channel
	CanHandle(user *User) bool
	Send(ctx context.Context, user *User, n *Notification) Outcome
}

// Publisher writes a notification id onto the channel's partitioned log.
// The id doubles as the partition key so every message for the same
// notification lands on the same partition.
type Publisher interface {
	Publish(ctx context.Context, channel Channel, id uuid.UUID) error
}

// RateDecision is the rate limiter's answer for one submission.
type RateDecision struct {
	Allowed    bool
	Limit      int
	RetryAfter time.Duration
}

// RateLimiter enforces the per-(user, channel) windowed cap.
// Implementations fail open: a store outage admits the request and logs.
type RateLimiter interface {
	Admit(ctx context.Context, userID uuid.UUID, channel Channel) RateDecision
}

// IdempotencyGate is a single-shot key registry. Claim returns true exactly
// once per event id within the dedup window. Implementations fail open.
type IdempotencyGate interface {
	Claim(ctx context.Context, eventID string) bool
}
