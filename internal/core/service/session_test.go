package service

import (
	"context"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/suite"

	usermem "github.com/Wyydra/yacall/internal/adapter/driven/persistence/memory"
	presencemem "github.com/Wyydra/yacall/internal/adapter/driven/presence/memory"
	"github.com/Wyydra/yacall/internal/core/domain"
)

type SessionSuite struct {
	suite.Suite
	ctx      context.Context
	users    *usermem.UserRepository
	store    *presencemem.Store
	registry *Registry
	gateway  *recordingGateway
	ledger   *CallLedger
	calls    *CallService
	sessions *SessionService
}

func TestSessionSuite(t *testing.T) {
	suite.Run(t, new(SessionSuite))
}

// rawIDVerifier trusts the user id claim and treats the token as a user id.
var rawIDVerifier = verifierFunc(func(_ context.Context, claim domain.IdentityClaim) (domain.UserID, error) {
	if claim.Token == "bad" {
		return "", errors.New("signature is invalid")
	}
	if claim.Token != "" {
		return domain.UserID(claim.Token), nil
	}
	return claim.UserID, nil
})

func (s *SessionSuite) SetupTest() {
	s.ctx = context.Background()
	s.users = usermem.NewUserRepository()
	s.store = presencemem.NewStore()
	s.registry = NewRegistry()
	s.gateway = newRecordingGateway()
	s.ledger = NewCallLedger(0, nil)
	s.calls = NewCallService(s.registry, s.gateway, s.ledger, CallConfig{})
	s.sessions = NewSessionService(
		rawIDVerifier,
		s.users,
		s.registry,
		s.gateway,
		NewPresenceService(s.store, PresenceConfig{}),
		s.ledger,
	)
}

func (s *SessionSuite) createUser(name string) domain.UserID {
	u, err := domain.NewUser(name, name+"@example.com", "secret123")
	s.Require().NoError(err)
	s.Require().NoError(s.users.Create(s.ctx, u))
	return u.ID
}

func (s *SessionSuite) online() []domain.UserID {
	users, err := s.store.List(s.ctx, DefaultOnlineSet)
	s.Require().NoError(err)
	return users
}

func (s *SessionSuite) TestAdmitRefusesMissingClaim() {
	_, err := s.sessions.Admit(s.ctx, domain.IdentityClaim{})
	s.ErrorIs(err, domain.ErrUnauthorized)
}

func (s *SessionSuite) TestAdmitRefusesInvalidClaim() {
	_, err := s.sessions.Admit(s.ctx, domain.IdentityClaim{Token: "bad"})
	s.ErrorIs(err, domain.ErrUnauthorized)
}

func (s *SessionSuite) TestAdmitRefusesUnknownUser() {
	_, err := s.sessions.Admit(s.ctx, domain.IdentityClaim{UserID: "nobody"})
	s.ErrorIs(err, domain.ErrUnauthorized)
	s.Zero(s.registry.Len())
}

func (s *SessionSuite) TestAdmitAcceptsKnownUser() {
	id := s.createUser("alice")
	got, err := s.sessions.Admit(s.ctx, domain.IdentityClaim{UserID: id})
	s.NoError(err)
	s.Equal(id, got)
}

func (s *SessionSuite) TestConnectRegistersAndMarksOnline() {
	id := s.createUser("alice")
	conn := newFakeConn()

	s.sessions.Connect(s.ctx, id, conn)

	h, ok := s.registry.ResolveHandle(id)
	s.Require().True(ok)
	s.Equal(conn.Handle(), h)
	s.Equal([]domain.UserID{id}, s.online())
}

func (s *SessionSuite) TestReconnectSupersedesOldConnection() {
	id := s.createUser("alice")
	first, second := newFakeConn(), newFakeConn()

	s.sessions.Connect(s.ctx, id, first)
	s.sessions.Connect(s.ctx, id, second)

	h, _ := s.registry.ResolveHandle(id)
	s.Equal(second.Handle(), h)

	reason, closed := s.gateway.closeReason(first.Handle())
	s.True(closed)
	s.Equal("Connected from another session", reason)
	events := s.gateway.eventsFor(first.Handle())
	s.Require().Len(events, 1)
	s.Equal(domain.EventSuperseded, events[0].Type)

	s.Equal([]domain.UserID{id}, s.online())

	// the old connection's late cleanup leaves the new one alone
	s.sessions.Disconnect(s.ctx, id, first.Handle())
	h, ok := s.registry.ResolveHandle(id)
	s.True(ok)
	s.Equal(second.Handle(), h)
	s.Equal([]domain.UserID{id}, s.online())
}

func (s *SessionSuite) TestDisconnectRemovesEverything() {
	id := s.createUser("alice")
	conn := newFakeConn()
	s.sessions.Connect(s.ctx, id, conn)

	s.sessions.Disconnect(s.ctx, id, conn.Handle())
	s.sessions.Disconnect(s.ctx, id, conn.Handle())

	_, ok := s.registry.ResolveHandle(id)
	s.False(ok)
	_, ok = s.registry.ResolveUser(conn.Handle())
	s.False(ok)
	s.Empty(s.online())
}

func (s *SessionSuite) TestDisconnectEndsCallsWithPeer() {
	alice, bob := s.createUser("alice"), s.createUser("bob")
	ca, cb := newFakeConn(), newFakeConn()
	s.sessions.Connect(s.ctx, alice, ca)
	s.sessions.Connect(s.ctx, bob, cb)

	s.Equal(domain.RelayDelivered, s.calls.Initiate(s.ctx, ca.Handle(), bob, nil, ""))
	s.sessions.Disconnect(s.ctx, alice, ca.Handle())

	events := s.gateway.eventsFor(cb.Handle())
	s.Require().Len(events, 2)
	s.Equal(domain.EventEndCall, events[1].Type)
	s.Equal(alice, events[1].From)
	s.Equal("User disconnected", events[1].Message)
	s.Zero(s.ledger.Len())
}

func (s *SessionSuite) TestOnlineUsersExcludesCaller() {
	alice, bob := s.createUser("alice"), s.createUser("bob")
	s.sessions.Connect(s.ctx, alice, newFakeConn())
	s.sessions.Connect(s.ctx, bob, newFakeConn())

	users, err := s.sessions.OnlineUsers(s.ctx, alice)
	s.NoError(err)
	s.Equal([]domain.UserID{bob}, users)
}

func (s *SessionSuite) TestStoreOutageDoesNotBlockConnect() {
	s.sessions.presence = NewPresenceService(&failingStore{}, PresenceConfig{MaxRetries: 1})
	id := s.createUser("alice")
	conn := newFakeConn()

	s.sessions.Connect(s.ctx, id, conn)
	_, ok := s.registry.ResolveHandle(id)
	s.True(ok)

	s.sessions.Disconnect(s.ctx, id, conn.Handle())
	_, ok = s.registry.ResolveHandle(id)
	s.False(ok)
}

func (s *SessionSuite) TestReconnectDuringOfflineRemovalKeepsUserOnline() {
	store := newBlockingRemoveStore()
	s.sessions.presence = NewPresenceService(store, PresenceConfig{})
	id := s.createUser("alice")
	first, second := newFakeConn(), newFakeConn()
	s.sessions.Connect(s.ctx, id, first)

	done := make(chan struct{})
	go func() {
		defer close(done)
		s.sessions.Disconnect(s.ctx, id, first.Handle())
	}()

	select {
	case <-store.entered:
	case <-time.After(2 * time.Second):
		s.FailNow("disconnect never reached the store")
	}
	s.sessions.Connect(s.ctx, id, second)
	close(store.release)

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		s.FailNow("disconnect did not finish")
	}

	h, ok := s.registry.ResolveHandle(id)
	s.Require().True(ok)
	s.Equal(second.Handle(), h)

	users, err := store.List(s.ctx, DefaultOnlineSet)
	s.Require().NoError(err)
	s.Equal([]domain.UserID{id}, users)
}
