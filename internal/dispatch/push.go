package dispatch

import (
	"context"
	"errors"
	"net/http"

	"github.com/dispatchlab/notification-service/internal/domain"
	"github.com/dispatchlab/notification-service/internal/provider"
)

// PushHandler delivers push notifications through an HTTP vendor.
type PushHandler struct {
	vendor *provider.HTTPVendor
}

func NewPushHandler(vendor *provider.HTTPVendor) *PushHandler {
	return &PushHandler{vendor: vendor}
}

func (h *PushHandler) Channel() domain.Channel {
	return domain.ChannelPush
}

// CanHandle requires a registered device token.
func (h *PushHandler) CanHandle(user *domain.User) bool {
	return user.DeviceToken != ""
}

func (h *PushHandler) Send(ctx context.Context, user *domain.User, n *domain.Notification) domain.Outcome {
	_, err := h.vendor.Send(ctx, &provider.Request{
		To:      user.DeviceToken,
		Channel: string(domain.ChannelPush),
		Subject: n.Subject,
		Content: n.Content,
	})
	if err != nil {
		// 410 Gone means the device token was unregistered; the token won't
		// come back, so don't retry.
		var perr domain.ProviderError
		if errors.As(err, &perr) && perr.StatusCode == http.StatusGone {
			return domain.PermanentFailure("device token unregistered")
		}
		return classify(err)
	}

	return domain.Success()
}
