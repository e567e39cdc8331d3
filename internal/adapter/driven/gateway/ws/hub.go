package ws

import (
	"context"
	"sync"

	"github.com/cockroachdb/errors"
	"github.com/rs/zerolog/log"

	"github.com/Wyydra/yacall/internal/core/domain"
	"github.com/Wyydra/yacall/internal/core/port"
)

// Hub holds the live clients by handle. implements port.Gateway
type Hub struct {
	mu      sync.RWMutex
	clients map[domain.ConnectionHandle]Client
	stopped bool
}

var _ port.Gateway = (*Hub)(nil)

func NewHub() *Hub {
	return &Hub{
		clients: make(map[domain.ConnectionHandle]Client),
	}
}

func (h *Hub) Attach(c Client) {
	h.mu.Lock()
	if h.stopped {
		h.mu.Unlock()
		_ = c.Close("server shutting down")
		return
	}
	h.clients[c.Handle()] = c
	count := len(h.clients)
	h.mu.Unlock()

	log.Debug().Str("handle", c.Handle().String()).Int("count", count).Msg("Client attached")
}

// Detach forgets the client without closing it.
func (h *Hub) Detach(handle domain.ConnectionHandle) bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.clients[handle]; !ok {
		return false
	}
	delete(h.clients, handle)
	log.Debug().Str("handle", handle.String()).Int("count", len(h.clients)).Msg("Client detached")
	return true
}

func (h *Hub) Deliver(ctx context.Context, handle domain.ConnectionHandle, evt domain.Event) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c, ok := h.get(handle)
	if !ok {
		return errors.Wrapf(domain.ErrHandleClosed, "deliver %s", evt.Type)
	}
	return c.Send(evt)
}

// Disconnect sends a final event to the client, closes it and forgets it.
func (h *Hub) Disconnect(handle domain.ConnectionHandle, evt domain.Event) error {
	h.mu.Lock()
	c, ok := h.clients[handle]
	delete(h.clients, handle)
	h.mu.Unlock()

	if !ok {
		return errors.Wrap(domain.ErrHandleClosed, "disconnect")
	}
	if err := c.Send(evt); err != nil {
		log.Debug().Err(err).Str("handle", handle.String()).Msg("Final event not sent")
	}
	return c.Close(evt.Message)
}

func (h *Hub) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Stop closes every client and refuses new ones.
func (h *Hub) Stop() {
	h.mu.Lock()
	h.stopped = true
	clients := h.clients
	h.clients = make(map[domain.ConnectionHandle]Client)
	h.mu.Unlock()

	for handle, c := range clients {
		if err := c.Close("server shutting down"); err != nil {
			log.Error().Err(err).Str("handle", handle.String()).Msg("Error closing client connection")
		}
	}
}

func (h *Hub) get(handle domain.ConnectionHandle) (Client, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	c, ok := h.clients[handle]
	return c, ok
}
