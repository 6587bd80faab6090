package dispatch

import (
	"context"

	"github.com/dispatchlab/notification-service/internal/domain"
	"github.com/dispatchlab/notification-service/internal/provider"
)

// SMSHandler delivers SMS notifications through an HTTP vendor.
type SMSHandler struct {
	vendor *provider.HTTPVendor
}

func NewSMSHandler(vendor *provider.HTTPVendor) *SMSHandler {
	return &SMSHandler{vendor: vendor}
}

func (h *SMSHandler) Channel() domain.Channel {
	return domain.ChannelSMS
}

// CanHandle requires a phone number on file.
func (h *SMSHandler) CanHandle(user *domain.User) bool {
	return user.Phone != ""
}

func (h *SMSHandler) Send(ctx context.Context, user *domain.User, n *domain.Notification) domain.Outcome {
	_, err := h.vendor.Send(ctx, &provider.Request{
		To:      user.Phone,
		Channel: string(domain.ChannelSMS),
		Content: n.Content,
	})
	if err != nil {
		return classify(err)
	}

	return domain.Success()
}
