package dispatch

import (
	"context"

	"github.com/google/uuid"

	"github.com/dispatchlab/notification-service/internal/domain"
)

// Pusher delivers a notification to a user's live connections. Implemented
// by the websocket hub.
type Pusher interface {
	Deliver(userID uuid.UUID, n *domain.Notification) bool
}

// InAppHandler stores-and-pushes: the notification row is already durable by
// the time Send runs, so delivery succeeds whether or not the user is
// connected. A live websocket connection just gets it immediately.
type InAppHandler struct {
	pusher Pusher
}

func NewInAppHandler(pusher Pusher) *InAppHandler {
	return &InAppHandler{pusher: pusher}
}

func (h *InAppHandler) Channel() domain.Channel {
	return domain.ChannelInApp
}

// CanHandle is always true: in-app needs no address, the inbox is the user
// row itself.
func (h *InAppHandler) CanHandle(user *domain.User) bool {
	return true
}

func (h *InAppHandler) Send(ctx context.Context, user *domain.User, n *domain.Notification) domain.Outcome {
	if h.pusher != nil {
		h.pusher.Deliver(user.ID, n)
	}
	return domain.Success()
}
