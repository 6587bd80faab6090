package handler

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/dispatchlab/notification-service/internal/domain"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer.
	maxMessageSize = 512
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		// Allow all origins for development
		// In production, validate against allowed origins
		return true
	},
}

// WebSocketHub maintains active connections keyed by user. A user may hold
// several connections (multiple tabs, devices); pushes fan out to all of
// them.
type WebSocketHub struct {
	clients    map[uuid.UUID]map[*WebSocketClient]bool
	register   chan *WebSocketClient
	unregister chan *WebSocketClient
	connGauge  func(n int)
	logger     *slog.Logger
	mu         sync.RWMutex
}

// WebSocketClient represents one user connection
type WebSocketClient struct {
	hub    *WebSocketHub
	conn   *websocket.Conn
	send   chan []byte
	userID uuid.UUID
}

// PushMessage is the frame sent to connected users.
type PushMessage struct {
	Type         string               `json:"type"`
	Notification *domain.Notification `json:"notification"`
	Timestamp    time.Time            `json:"timestamp"`
}

// NewWebSocketHub creates a new WebSocketHub
func NewWebSocketHub(logger *slog.Logger) *WebSocketHub {
	return &WebSocketHub{
		clients:    make(map[uuid.UUID]map[*WebSocketClient]bool),
		register:   make(chan *WebSocketClient),
		unregister: make(chan *WebSocketClient),
		logger:     logger,
	}
}

// SetConnectionGauge registers a callback observing the live connection
// count after every connect and disconnect. Set before Run.
func (h *WebSocketHub) SetConnectionGauge(fn func(n int)) {
	h.connGauge = fn
}

// Run starts the hub's main loop
func (h *WebSocketHub) Run() {
	for {
		select {
		case client := <-h.register:
			h.mu.Lock()
			if h.clients[client.userID] == nil {
				h.clients[client.userID] = make(map[*WebSocketClient]bool)
			}
			h.clients[client.userID][client] = true
			h.mu.Unlock()
			h.reportConnections()
			h.logger.Info("websocket client connected", "user_id", client.userID)

		case client := <-h.unregister:
			h.mu.Lock()
			if conns, ok := h.clients[client.userID]; ok {
				if _, ok := conns[client]; ok {
					delete(conns, client)
					close(client.send)
					if len(conns) == 0 {
						delete(h.clients, client.userID)
					}
				}
			}
			h.mu.Unlock()
			h.reportConnections()
			h.logger.Info("websocket client disconnected", "user_id", client.userID)
		}
	}
}

func (h *WebSocketHub) reportConnections() {
	if h.connGauge != nil {
		h.connGauge(h.ClientCount())
	}
}

// Deliver pushes a new notification to the user's live connections. Returns
// whether the user had at least one connection; delivery to offline users is
// a no-op, their inbox already holds the row.
func (h *WebSocketHub) Deliver(userID uuid.UUID, n *domain.Notification) bool {
	return h.push(userID, &PushMessage{
		Type:         "notification",
		Notification: n,
		Timestamp:    time.Now().UTC(),
	})
}

// BroadcastStatus pushes a status change to the notification's owner.
func (h *WebSocketHub) BroadcastStatus(n *domain.Notification) {
	h.push(n.UserID, &PushMessage{
		Type:         "status_update",
		Notification: n,
		Timestamp:    time.Now().UTC(),
	})
}

func (h *WebSocketHub) push(userID uuid.UUID, msg *PushMessage) bool {
	payload, err := json.Marshal(msg)
	if err != nil {
		h.logger.Error("failed to marshal push message", "error", err)
		return false
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	conns := h.clients[userID]
	if len(conns) == 0 {
		return false
	}

	for client := range conns {
		select {
		case client.send <- payload:
		default:
			// Client buffer full, skip
		}
	}
	return true
}

// ClientCount returns the number of connected clients
func (h *WebSocketHub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()

	count := 0
	for _, conns := range h.clients {
		count += len(conns)
	}
	return count
}

// WebSocketHandler handles WebSocket connections
type WebSocketHandler struct {
	hub *WebSocketHub
}

// NewWebSocketHandler creates a new WebSocketHandler
func NewWebSocketHandler(hub *WebSocketHub) *WebSocketHandler {
	return &WebSocketHandler{hub: hub}
}

// HandleWebSocket handles WebSocket upgrade and connection
// @Summary WebSocket connection
// @Description Connect for real-time notification pushes and status updates
// @Tags websocket
// @Param user_id query string true "User ID"
// @Success 101 {string} string "Switching Protocols"
// @Router /ws [get]
func (h *WebSocketHandler) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	userID, err := uuid.Parse(r.URL.Query().Get("user_id"))
	if err != nil {
		JSONError(w, http.StatusBadRequest, "INVALID_USER_ID", "user_id query parameter is required", nil)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.hub.logger.Error("failed to upgrade websocket", "error", err)
		return
	}

	client := &WebSocketClient{
		hub:    h.hub,
		conn:   conn,
		send:   make(chan []byte, 256),
		userID: userID,
	}

	h.hub.register <- client

	go client.writePump()
	go client.readPump()
}

// readPump drains the connection and detects disconnects
func (c *WebSocketClient) readPump() {
	defer func() {
		c.hub.unregister <- c
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.hub.logger.Error("websocket error", "error", err)
			}
			break
		}
	}
}

// writePump pumps messages from the hub to the websocket connection
func (c *WebSocketClient) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// Hub closed the channel
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			w, err := c.conn.NextWriter(websocket.TextMessage)
			if err != nil {
				return
			}
			w.Write(message)

			// Add queued messages to the current websocket message
			n := len(c.send)
			for i := 0; i < n; i++ {
				w.Write([]byte{'\n'})
				w.Write(<-c.send)
			}

			if err := w.Close(); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
