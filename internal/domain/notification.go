package domain

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Channel represents the notification delivery channel
type Channel string

const (
	ChannelEmail Channel = "email"
	ChannelSMS   Channel = "sms"
	ChannelPush  Channel = "push"
	ChannelInApp Channel = "in_app"
)

// Channels lists every supported delivery channel.
var Channels = []Channel{ChannelEmail, ChannelSMS, ChannelPush, ChannelInApp}

func (c Channel) IsValid() bool {
	switch c {
	case ChannelEmail, ChannelSMS, ChannelPush, ChannelInApp:
		return true
	}
	return false
}

// Topic returns the message-log topic for the channel.
func (c Channel) Topic() string {
	if c == ChannelInApp {
		return "notifications.in-app"
	}
	return "notifications." + string(c)
}

// DeadTopic is reserved for future dead-letter expansion; nothing publishes
// to it yet.
const DeadTopic = "notifications.dead"

type Priority string

const (
	PriorityCritical Priority = "critical"
	PriorityHigh     Priority = "high"
	PriorityMedium   Priority = "medium"
	PriorityLow      Priority = "low"
)

func (p Priority) IsValid() bool {
	switch p {
	case PriorityCritical, PriorityHigh, PriorityMedium, PriorityLow:
		return true
	}
	return false
}

type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusSent       Status = "sent"
	StatusDelivered  Status = "delivered"
	StatusRead       Status = "read"
	StatusFailed     Status = "failed"
)

func (s Status) IsValid() bool {
	switch s {
	case StatusPending, StatusProcessing, StatusSent, StatusDelivered, StatusRead, StatusFailed:
		return true
	}
	return false
}

// IsTerminal reports whether the status ends the dispatch pipeline.
// SENT is terminal for the pipeline even though external confirmations may
// still promote it to DELIVERED or READ.
func (s Status) IsTerminal() bool {
	switch s {
	case StatusSent, StatusDelivered, StatusRead, StatusFailed:
		return true
	}
	return false
}

// Notification is the central entity: one row per accepted dispatch attempt.
// Channel and CreatedAt are immutable after insertion. Version backs
// optimistic-concurrency updates; every successful update increments it.
type Notification struct {
	ID           uuid.UUID  `json:"id"`
	UserID       uuid.UUID  `json:"user_id"`
	Channel      Channel    `json:"channel"`
	Priority     Priority   `json:"priority"`
	Subject      string     `json:"subject,omitempty"`
	Content      string     `json:"content"`
	Status       Status     `json:"status"`
	RetryCount   int        `json:"retry_count"`
	MaxRetries   int        `json:"max_retries"`
	NextRetryAt  *time.Time `json:"next_retry_at,omitempty"`
	ErrorMessage *string    `json:"error_message,omitempty"`
	TemplateName *string    `json:"template_name,omitempty"`
	Version      int64      `json:"version"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
	SentAt       *time.Time `json:"sent_at,omitempty"`
	DeliveredAt  *time.Time `json:"delivered_at,omitempty"`
	ReadAt       *time.Time `json:"read_at,omitempty"`
}

// NewNotification creates a PENDING notification. UUIDv7 keeps ids
// time-ordered, which also keeps partition-local processing roughly in
// submission order.
func NewNotification(userID uuid.UUID, channel Channel, priority Priority, subject, content string) *Notification {
	id, err := uuid.NewV7()
	if err != nil {
		id = uuid.New()
	}
	now := time.Now().UTC()
	return &Notification{
		ID:        id,
		UserID:    userID,
		Channel:   channel,
		Priority:  priority,
		Subject:   subject,
		Content:   content,
		Status:    StatusPending,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// MarkProcessing transitions PENDING -> PROCESSING (consumer lease).
func (n *Notification) MarkProcessing() error {
	if n.Status != StatusPending {
		return ErrInvalidStatus
	}
	n.Status = StatusProcessing
	n.UpdatedAt = time.Now().UTC()
	return nil
}

// MarkSent transitions PROCESSING -> SENT on first successful provider
// return. It clears retry scheduling and the last error.
func (n *Notification) MarkSent() error {
	if n.Status != StatusProcessing {
		return ErrInvalidStatus
	}
	now := time.Now().UTC()
	n.Status = StatusSent
	n.SentAt = &now
	n.NextRetryAt = nil
	n.ErrorMessage = nil
	n.UpdatedAt = now
	return nil
}

// ScheduleRetry transitions PROCESSING -> PENDING with a retry scheduled at
// the given instant. The caller has already established retry_count < max.
func (n *Notification) ScheduleRetry(at time.Time, reason string) error {
	if n.Status != StatusProcessing {
		return ErrInvalidStatus
	}
	n.Status = StatusPending
	n.RetryCount++
	n.NextRetryAt = &at
	n.ErrorMessage = &reason
	n.UpdatedAt = time.Now().UTC()
	return nil
}

// MarkFailed transitions PROCESSING -> FAILED. FAILED is final: no
// transition ever leaves it.
func (n *Notification) MarkFailed(reason string) error {
	if n.Status != StatusProcessing {
		return ErrInvalidStatus
	}
	n.Status = StatusFailed
	n.NextRetryAt = nil
	n.ErrorMessage = &reason
	n.UpdatedAt = time.Now().UTC()
	return nil
}

// Reclaim transitions a stuck PROCESSING row back to PENDING without
// incrementing retry_count; whether the stranded worker actually attempted
// a send is unknown.
func (n *Notification) Reclaim() error {
	if n.Status != StatusProcessing {
		return ErrInvalidStatus
	}
	n.Status = StatusPending
	n.UpdatedAt = time.Now().UTC()
	return nil
}

// MarkDelivered promotes SENT -> DELIVERED on external confirmation.
// Idempotent: a repeat confirmation (or one arriving after READ) is a no-op.
func (n *Notification) MarkDelivered() error {
	switch n.Status {
	case StatusDelivered, StatusRead:
		return nil
	case StatusSent:
	default:
		return ErrInvalidStatus
	}
	now := time.Now().UTC()
	n.Status = StatusDelivered
	n.DeliveredAt = &now
	n.UpdatedAt = now
	return nil
}

// MarkRead promotes to READ on user acknowledgement. Accepts SENT directly
// (a read implies delivery) and backfills delivered_at so the timestamp
// ordering sent_at <= delivered_at <= read_at holds.
func (n *Notification) MarkRead() error {
	switch n.Status {
	case StatusRead:
		return nil
	case StatusSent, StatusDelivered:
	default:
		return ErrInvalidStatus
	}
	now := time.Now().UTC()
	if n.DeliveredAt == nil {
		n.DeliveredAt = &now
	}
	n.Status = StatusRead
	n.ReadAt = &now
	n.UpdatedAt = now
	return nil
}

// RetriesExhausted reports whether another transient failure must terminate
// the notification instead of scheduling a retry.
func (n *Notification) RetriesExhausted() bool {
	return n.RetryCount >= n.MaxRetries
}

// NotificationPage is a page of a user's notifications, newest first.
type NotificationPage struct {
	Notifications []*Notification `json:"notifications"`
	Total         int64           `json:"total"`
	Page          int             `json:"page"`
	PageSize      int             `json:"page_size"`
	TotalPages    int             `json:"total_pages"`
}

// NotificationRepository is the durable store for notifications.
// Update is a full-row update guarded by the version column; it returns
// ErrVersionConflict when another writer advanced the row first. Channel and
// id never change after insert.
type NotificationRepository interface {
	Insert(ctx context.Context, n *Notification) error
	FindByID(ctx context.Context, id uuid.UUID) (*Notification, error)
	Update(ctx context.Context, n *Notification) error
	ListForUser(ctx context.Context, userID uuid.UUID, status *Status, page, pageSize int) (*NotificationPage, error)

	// FindReadyForRetry returns PENDING rows whose next_retry_at is unset or
	// has elapsed (inclusive), oldest first, capped at limit.
	FindReadyForRetry(ctx context.Context, now time.Time, limit int) ([]*Notification, error)

	// FindStuckProcessing returns PROCESSING rows not touched since olderThan.
	FindStuckProcessing(ctx context.Context, olderThan time.Time) ([]*Notification, error)
}
