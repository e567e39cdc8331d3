package service

import (
	"context"
	"sync"
	"time"

	"github.com/cockroachdb/errors"

	"github.com/Wyydra/yacall/internal/adapter/driven/presence/memory"
	"github.com/Wyydra/yacall/internal/core/domain"
	"github.com/Wyydra/yacall/internal/core/port"
)

type fakeConn struct {
	handle domain.ConnectionHandle
}

func newFakeConn() *fakeConn {
	return &fakeConn{handle: domain.NewConnectionHandle()}
}

func (c *fakeConn) Handle() domain.ConnectionHandle { return c.handle }
func (c *fakeConn) Send(domain.Event) error         { return nil }
func (c *fakeConn) Close(string) error              { return nil }

// recordingGateway keeps every delivered event per handle.
type recordingGateway struct {
	mu     sync.Mutex
	live   map[domain.ConnectionHandle]bool
	events map[domain.ConnectionHandle][]domain.Event
	closed map[domain.ConnectionHandle]string
}

var _ port.Gateway = (*recordingGateway)(nil)

func newRecordingGateway() *recordingGateway {
	return &recordingGateway{
		live:   make(map[domain.ConnectionHandle]bool),
		events: make(map[domain.ConnectionHandle][]domain.Event),
		closed: make(map[domain.ConnectionHandle]string),
	}
}

func (g *recordingGateway) Attach(conn port.Connection) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.live[conn.Handle()] = true
}

func (g *recordingGateway) Detach(handle domain.ConnectionHandle) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	ok := g.live[handle]
	delete(g.live, handle)
	return ok
}

func (g *recordingGateway) Deliver(_ context.Context, handle domain.ConnectionHandle, evt domain.Event) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if !g.live[handle] {
		return errors.Wrap(domain.ErrHandleClosed, "deliver")
	}
	g.events[handle] = append(g.events[handle], evt)
	return nil
}

func (g *recordingGateway) Disconnect(handle domain.ConnectionHandle, evt domain.Event) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if !g.live[handle] {
		return errors.Wrap(domain.ErrHandleClosed, "disconnect")
	}
	g.events[handle] = append(g.events[handle], evt)
	g.closed[handle] = evt.Message
	delete(g.live, handle)
	return nil
}

func (g *recordingGateway) eventsFor(handle domain.ConnectionHandle) []domain.Event {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]domain.Event(nil), g.events[handle]...)
}

func (g *recordingGateway) closeReason(handle domain.ConnectionHandle) (string, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	reason, ok := g.closed[handle]
	return reason, ok
}

// failingStore fails every call and counts attempts.
type failingStore struct {
	mu    sync.Mutex
	calls int
}

func (s *failingStore) fail() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	return errors.New("connection refused")
}

func (s *failingStore) attempts() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

func (s *failingStore) AppendIfAbsent(context.Context, string, domain.UserID) (bool, error) {
	return false, s.fail()
}

func (s *failingStore) Remove(context.Context, string, domain.UserID) error {
	return s.fail()
}

func (s *failingStore) List(context.Context, string) ([]domain.UserID, error) {
	return nil, s.fail()
}

type verifierFunc func(ctx context.Context, claim domain.IdentityClaim) (domain.UserID, error)

func (f verifierFunc) Verify(ctx context.Context, claim domain.IdentityClaim) (domain.UserID, error) {
	return f(ctx, claim)
}

// blockingRemoveStore holds every Remove until release is closed.
type blockingRemoveStore struct {
	*memory.Store
	entered chan struct{}
	release chan struct{}
}

func newBlockingRemoveStore() *blockingRemoveStore {
	return &blockingRemoveStore{
		Store:   memory.NewStore(),
		entered: make(chan struct{}, 1),
		release: make(chan struct{}),
	}
}

func (s *blockingRemoveStore) Remove(ctx context.Context, set string, user domain.UserID) error {
	select {
	case s.entered <- struct{}{}:
	default:
	}
	<-s.release
	return s.Store.Remove(ctx, set, user)
}

// slowStore delays every call by a fixed duration.
type slowStore struct {
	*memory.Store
	delay time.Duration
}

func (s *slowStore) List(ctx context.Context, set string) ([]domain.UserID, error) {
	time.Sleep(s.delay)
	return s.Store.List(ctx, set)
}
