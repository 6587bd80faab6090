package dispatch

import (
	"fmt"

	"github.com/dispatchlab/notification-service/internal/domain"
)

// Dispatcher routes notifications to the handler registered for their
// channel. Registration happens once at startup; lookups are read-only, so
// no locking.
type Dispatcher struct {
	handlers map[domain.Channel]domain.ChannelHandler
}

// NewDispatcher creates an empty dispatcher
func NewDispatcher() *Dispatcher {
	return &Dispatcher{
		handlers: make(map[domain.Channel]domain.ChannelHandler),
	}
}

// Register adds a handler. Registering a second handler for the same channel
// is a wiring bug and fails loudly.
func (d *Dispatcher) Register(h domain.ChannelHandler) error {
	ch := h.Channel()
	if _, exists := d.handlers[ch]; exists {
		return fmt.Errorf("handler already registered for channel %q", ch)
	}
	d.handlers[ch] = h
	return nil
}

// HandlerFor returns the handler for a channel
func (d *Dispatcher) HandlerFor(channel domain.Channel) (domain.ChannelHandler, bool) {
	h, ok := d.handlers[channel]
	return h, ok
}
