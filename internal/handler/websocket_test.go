package handler

import (
	"io"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"

	"github.com/dispatchlab/notification-service/internal/domain"
)

func newTestHub() *WebSocketHub {
	return NewWebSocketHub(slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func newHubClient(hub *WebSocketHub, userID uuid.UUID) *WebSocketClient {
	return &WebSocketClient{hub: hub, send: make(chan []byte, 4), userID: userID}
}

func TestWebSocketHub_ConnectionGauge(t *testing.T) {
	hub := newTestHub()
	var gauge atomic.Int64
	hub.SetConnectionGauge(func(n int) { gauge.Store(int64(n)) })
	go hub.Run()

	userID := uuid.New()
	first := newHubClient(hub, userID)
	second := newHubClient(hub, userID)

	hub.register <- first
	hub.register <- second
	assert.Eventually(t, func() bool { return gauge.Load() == 2 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, 2, hub.ClientCount())

	hub.unregister <- first
	assert.Eventually(t, func() bool { return gauge.Load() == 1 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, 1, hub.ClientCount())
}

func TestWebSocketHub_Deliver(t *testing.T) {
	hub := newTestHub()
	go hub.Run()

	userID := uuid.New()
	client := newHubClient(hub, userID)
	hub.register <- client
	assert.Eventually(t, func() bool { return hub.ClientCount() == 1 }, time.Second, 5*time.Millisecond)

	n := domain.NewNotification(userID, domain.ChannelInApp, domain.PriorityHigh, "s", "c")

	assert.True(t, hub.Deliver(userID, n))
	select {
	case payload := <-client.send:
		assert.Contains(t, string(payload), n.ID.String())
	case <-time.After(time.Second):
		t.Fatal("no frame pushed to the client")
	}

	// Offline users are a no-op, their inbox already holds the row.
	assert.False(t, hub.Deliver(uuid.New(), n))
}
