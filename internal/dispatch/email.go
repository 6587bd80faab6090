package dispatch

import (
	"context"
	"errors"
	"strings"

	"github.com/dispatchlab/notification-service/internal/domain"
	"github.com/dispatchlab/notification-service/internal/provider"
)

// EmailHandler delivers email notifications through an HTTP vendor.
type EmailHandler struct {
	vendor *provider.HTTPVendor
}

func NewEmailHandler(vendor *provider.HTTPVendor) *EmailHandler {
	return &EmailHandler{vendor: vendor}
}

func (h *EmailHandler) Channel() domain.Channel {
	return domain.ChannelEmail
}

// CanHandle requires an email address on file.
func (h *EmailHandler) CanHandle(user *domain.User) bool {
	return user.Email != ""
}

func (h *EmailHandler) Send(ctx context.Context, user *domain.User, n *domain.Notification) domain.Outcome {
	// A stored address without an @ can never deliver; retrying won't fix it.
	if !strings.Contains(user.Email, "@") {
		return domain.PermanentFailure("malformed email address")
	}

	_, err := h.vendor.Send(ctx, &provider.Request{
		To:      user.Email,
		Channel: string(domain.ChannelEmail),
		Subject: n.Subject,
		Content: n.Content,
	})
	if err != nil {
		return classify(err)
	}

	return domain.Success()
}

// classify maps a vendor error to an attempt outcome.
func classify(err error) domain.Outcome {
	var perr domain.ProviderError
	if errors.As(err, &perr) {
		if perr.Retryable {
			return domain.TransientFailure(perr.Error())
		}
		return domain.PermanentFailure(perr.Error())
	}
	// Context deadlines and transport errors are worth another attempt.
	return domain.TransientFailure(err.Error())
}
