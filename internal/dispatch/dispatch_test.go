package dispatch

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dispatchlab/notification-service/internal/domain"
	"github.com/dispatchlab/notification-service/internal/provider"
)

func testUser() *domain.User {
	return &domain.User{
		ID:          uuid.New(),
		Email:       "test@example.com",
		Phone:       "+15551234567",
		DeviceToken: "device-token-abc",
		FullName:    "Test User",
		Active:      true,
	}
}

func vendorReturning(t *testing.T, status int) *provider.HTTPVendor {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(status)
	}))
	t.Cleanup(srv.Close)
	return provider.NewHTTPVendor(srv.URL, 5*time.Second)
}

func TestDispatcher(t *testing.T) {
	d := NewDispatcher()
	email := NewEmailHandler(vendorReturning(t, http.StatusAccepted))

	require.NoError(t, d.Register(email))

	t.Run("returns the registered handler", func(t *testing.T) {
		h, ok := d.HandlerFor(domain.ChannelEmail)
		assert.True(t, ok)
		assert.Equal(t, domain.ChannelEmail, h.Channel())
	})

	t.Run("unknown channel has no handler", func(t *testing.T) {
		_, ok := d.HandlerFor(domain.ChannelSMS)
		assert.False(t, ok)
	})

	t.Run("double registration fails", func(t *testing.T) {
		err := d.Register(NewEmailHandler(vendorReturning(t, http.StatusAccepted)))
		assert.Error(t, err)
	})
}

func TestEmailHandler(t *testing.T) {
	ctx := context.Background()
	n := domain.NewNotification(uuid.New(), domain.ChannelEmail, domain.PriorityHigh, "Welcome", "Hello!")

	t.Run("can handle only users with an email", func(t *testing.T) {
		h := NewEmailHandler(vendorReturning(t, http.StatusAccepted))
		assert.True(t, h.CanHandle(testUser()))
		assert.False(t, h.CanHandle(&domain.User{ID: uuid.New()}))
	})

	t.Run("success on 202", func(t *testing.T) {
		h := NewEmailHandler(vendorReturning(t, http.StatusAccepted))
		out := h.Send(ctx, testUser(), n)
		assert.Equal(t, domain.OutcomeSuccess, out.Kind)
	})

	t.Run("malformed address is permanent", func(t *testing.T) {
		h := NewEmailHandler(vendorReturning(t, http.StatusAccepted))
		u := testUser()
		u.Email = "not-an-address"
		out := h.Send(ctx, u, n)
		assert.Equal(t, domain.OutcomePermanent, out.Kind)
	})

	t.Run("5xx is transient", func(t *testing.T) {
		h := NewEmailHandler(vendorReturning(t, http.StatusServiceUnavailable))
		out := h.Send(ctx, testUser(), n)
		assert.Equal(t, domain.OutcomeTransient, out.Kind)
		assert.NotEmpty(t, out.Reason)
	})

	t.Run("429 is transient", func(t *testing.T) {
		h := NewEmailHandler(vendorReturning(t, http.StatusTooManyRequests))
		out := h.Send(ctx, testUser(), n)
		assert.Equal(t, domain.OutcomeTransient, out.Kind)
	})

	t.Run("4xx is permanent", func(t *testing.T) {
		h := NewEmailHandler(vendorReturning(t, http.StatusBadRequest))
		out := h.Send(ctx, testUser(), n)
		assert.Equal(t, domain.OutcomePermanent, out.Kind)
	})

	t.Run("unreachable vendor is transient", func(t *testing.T) {
		h := NewEmailHandler(provider.NewHTTPVendor("http://127.0.0.1:1", time.Second))
		out := h.Send(ctx, testUser(), n)
		assert.Equal(t, domain.OutcomeTransient, out.Kind)
	})
}

func TestSMSHandler(t *testing.T) {
	ctx := context.Background()
	n := domain.NewNotification(uuid.New(), domain.ChannelSMS, domain.PriorityHigh, "", "Your code is 123456")

	t.Run("can handle only users with a phone", func(t *testing.T) {
		h := NewSMSHandler(vendorReturning(t, http.StatusOK))
		assert.True(t, h.CanHandle(testUser()))
		assert.False(t, h.CanHandle(&domain.User{ID: uuid.New(), Email: "a@b.co"}))
	})

	t.Run("success on 200", func(t *testing.T) {
		h := NewSMSHandler(vendorReturning(t, http.StatusOK))
		out := h.Send(ctx, testUser(), n)
		assert.Equal(t, domain.OutcomeSuccess, out.Kind)
	})
}

func TestPushHandler(t *testing.T) {
	ctx := context.Background()
	n := domain.NewNotification(uuid.New(), domain.ChannelPush, domain.PriorityMedium, "Ping", "You have mail")

	t.Run("can handle only users with a device token", func(t *testing.T) {
		h := NewPushHandler(vendorReturning(t, http.StatusAccepted))
		assert.True(t, h.CanHandle(testUser()))
		assert.False(t, h.CanHandle(&domain.User{ID: uuid.New(), Email: "a@b.co"}))
	})

	t.Run("unregistered token is permanent", func(t *testing.T) {
		h := NewPushHandler(vendorReturning(t, http.StatusGone))
		out := h.Send(ctx, testUser(), n)
		assert.Equal(t, domain.OutcomePermanent, out.Kind)
	})

	t.Run("5xx is transient", func(t *testing.T) {
		h := NewPushHandler(vendorReturning(t, http.StatusBadGateway))
		out := h.Send(ctx, testUser(), n)
		assert.Equal(t, domain.OutcomeTransient, out.Kind)
	})
}

type fakePusher struct {
	delivered []uuid.UUID
	online    bool
}

func (p *fakePusher) Deliver(userID uuid.UUID, n *domain.Notification) bool {
	p.delivered = append(p.delivered, userID)
	return p.online
}

func TestInAppHandler(t *testing.T) {
	ctx := context.Background()
	n := domain.NewNotification(uuid.New(), domain.ChannelInApp, domain.PriorityLow, "", "New comment")

	t.Run("always can handle", func(t *testing.T) {
		h := NewInAppHandler(&fakePusher{})
		assert.True(t, h.CanHandle(&domain.User{ID: uuid.New()}))
	})

	t.Run("succeeds whether or not the user is connected", func(t *testing.T) {
		u := testUser()

		online := &fakePusher{online: true}
		out := NewInAppHandler(online).Send(ctx, u, n)
		assert.Equal(t, domain.OutcomeSuccess, out.Kind)
		assert.Len(t, online.delivered, 1)

		offline := &fakePusher{online: false}
		out = NewInAppHandler(offline).Send(ctx, u, n)
		assert.Equal(t, domain.OutcomeSuccess, out.Kind)
	})

	t.Run("succeeds with no pusher wired", func(t *testing.T) {
		out := NewInAppHandler(nil).Send(ctx, testUser(), n)
		assert.Equal(t, domain.OutcomeSuccess, out.Kind)
	})
}
