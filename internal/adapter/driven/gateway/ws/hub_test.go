package ws

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Wyydra/yacall/internal/core/domain"
)

type stubClient struct {
	handle domain.ConnectionHandle

	mu     sync.Mutex
	sent   []domain.Event
	closed string
}

func newStubClient() *stubClient {
	return &stubClient{handle: domain.NewConnectionHandle()}
}

func (c *stubClient) Handle() domain.ConnectionHandle { return c.handle }

func (c *stubClient) Send(evt domain.Event) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed != "" {
		return domain.ErrHandleClosed
	}
	c.sent = append(c.sent, evt)
	return nil
}

func (c *stubClient) Close(reason string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = reason
	return nil
}

func TestHubDeliver(t *testing.T) {
	h := NewHub()
	c := newStubClient()
	h.Attach(c)
	require.Equal(t, 1, h.Len())

	err := h.Deliver(context.Background(), c.Handle(), domain.Event{Type: domain.EventIncomingCall, From: "u1"})
	require.NoError(t, err)
	assert.Len(t, c.sent, 1)

	err = h.Deliver(context.Background(), domain.NewConnectionHandle(), domain.Event{Type: domain.EventEndCall})
	assert.ErrorIs(t, err, domain.ErrHandleClosed)
}

func TestHubDetach(t *testing.T) {
	h := NewHub()
	c := newStubClient()
	h.Attach(c)

	assert.True(t, h.Detach(c.Handle()))
	assert.False(t, h.Detach(c.Handle()))
	assert.Empty(t, c.closed)

	err := h.Deliver(context.Background(), c.Handle(), domain.Event{Type: domain.EventEndCall})
	assert.ErrorIs(t, err, domain.ErrHandleClosed)
}

func TestHubDisconnectSendsFinalEvent(t *testing.T) {
	h := NewHub()
	c := newStubClient()
	h.Attach(c)

	require.NoError(t, h.Disconnect(c.Handle(), domain.Event{Type: domain.EventSuperseded, Message: "replaced"}))
	require.Len(t, c.sent, 1)
	assert.Equal(t, domain.EventSuperseded, c.sent[0].Type)
	assert.Equal(t, "replaced", c.closed)
	assert.Zero(t, h.Len())

	assert.ErrorIs(t, h.Disconnect(c.Handle(), domain.Event{}), domain.ErrHandleClosed)
}

func TestHubStop(t *testing.T) {
	h := NewHub()
	c := newStubClient()
	h.Attach(c)

	h.Stop()
	assert.Equal(t, "server shutting down", c.closed)
	assert.Zero(t, h.Len())

	late := newStubClient()
	h.Attach(late)
	assert.Equal(t, "server shutting down", late.closed)
	assert.Zero(t, h.Len())
}

func TestHubDeliverCanceledContext(t *testing.T) {
	h := NewHub()
	c := newStubClient()
	h.Attach(c)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, h.Deliver(ctx, c.Handle(), domain.Event{}), context.Canceled)
}
