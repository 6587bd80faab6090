package domain

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// User holds the per-channel addresses that channel handlers need.
// A missing address makes the corresponding handler decline permanently.
type User struct {
	ID          uuid.UUID `json:"id"`
	Email       string    `json:"email,omitempty"`
	Phone       string    `json:"phone,omitempty"`
	DeviceToken string    `json:"device_token,omitempty"`
	FullName    string    `json:"full_name,omitempty"`
	Active      bool      `json:"active"`
	CreatedAt   time.Time `json:"created_at"`
}

// UserRepository backs ingestion validation and handler address lookups.
type UserRepository interface {
	GetByID(ctx context.Context, id uuid.UUID) (*User, error)
	GetByEmail(ctx context.Context, email string) (*User, error)
	GetByPhone(ctx context.Context, phone string) (*User, error)

	// ChannelEnabled consults user_preferences; absence of a row means the
	// channel is enabled.
	ChannelEnabled(ctx context.Context, userID uuid.UUID, channel Channel) (bool, error)
}
