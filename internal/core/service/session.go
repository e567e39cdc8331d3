package service

import (
	"context"

	"github.com/cockroachdb/errors"
	"github.com/rs/zerolog/log"

	"github.com/Wyydra/yacall/internal/core/domain"
	"github.com/Wyydra/yacall/internal/core/port"
	"github.com/Wyydra/yacall/internal/metrics"
)

const (
	supersededMessage   = "Connected from another session"
	disconnectedMessage = "User disconnected"
)

// SessionService drives a connection through admission, activation and
// closure. Registry and online set are updated as two independent steps.
type SessionService struct {
	verifier port.IdentityVerifier
	users    port.UserRepository
	registry *Registry
	gateway  port.Gateway
	presence *PresenceService
	ledger   *CallLedger
}

func NewSessionService(
	verifier port.IdentityVerifier,
	users port.UserRepository,
	registry *Registry,
	gateway port.Gateway,
	presence *PresenceService,
	ledger *CallLedger,
) *SessionService {
	return &SessionService{
		verifier: verifier,
		users:    users,
		registry: registry,
		gateway:  gateway,
		presence: presence,
		ledger:   ledger,
	}
}

// Admit verifies the claim and checks the user exists. Every failure is
// marked domain.ErrUnauthorized.
func (s *SessionService) Admit(ctx context.Context, claim domain.IdentityClaim) (domain.UserID, error) {
	if claim.Empty() {
		metrics.Admissions.WithLabelValues("missing_claim").Inc()
		return "", errors.Mark(errors.New("identity claim missing"), domain.ErrUnauthorized)
	}

	user, err := s.verifier.Verify(ctx, claim)
	if err != nil {
		metrics.Admissions.WithLabelValues("invalid_claim").Inc()
		return "", errors.Mark(errors.Wrap(err, "verify identity"), domain.ErrUnauthorized)
	}

	exists, err := s.users.Exists(ctx, user)
	if err != nil {
		metrics.Admissions.WithLabelValues("lookup_failed").Inc()
		return "", errors.Mark(errors.Wrapf(err, "look up user %s", user), domain.ErrUnauthorized)
	}
	if !exists {
		metrics.Admissions.WithLabelValues("unknown_user").Inc()
		return "", errors.Mark(errors.Newf("user %s does not exist", user), domain.ErrUnauthorized)
	}

	metrics.Admissions.WithLabelValues("accepted").Inc()
	return user, nil
}

// Connect makes an admitted connection reachable. A previous connection of the
// same user is told it was superseded and closed.
func (s *SessionService) Connect(ctx context.Context, user domain.UserID, conn port.Connection) {
	handle := conn.Handle()
	l := log.With().Str("user_id", user.String()).Str("handle", handle.String()).Logger()

	s.gateway.Attach(conn)
	prev, superseded := s.registry.Register(user, handle)
	metrics.ActiveConnections.Set(float64(s.registry.Len()))

	if superseded {
		metrics.Supersessions.Inc()
		l.Info().Str("previous_handle", prev.String()).Msg("Closing superseded connection")
		err := s.gateway.Disconnect(prev, domain.Event{
			Type:    domain.EventSuperseded,
			Message: supersededMessage,
		})
		if err != nil && !errors.Is(err, domain.ErrHandleClosed) {
			l.Warn().Err(err).Msg("Failed to close superseded connection")
		}
	}

	if err := s.presence.MarkOnline(ctx, user); err != nil {
		l.Warn().Err(err).Msg("Online set not updated on connect")
	}
	l.Info().Msg("User connected")
}

// Disconnect cleans up after a closed connection. It is safe to call more
// than once for the same handle.
func (s *SessionService) Disconnect(ctx context.Context, user domain.UserID, handle domain.ConnectionHandle) {
	l := log.With().Str("user_id", user.String()).Str("handle", handle.String()).Logger()

	s.gateway.Detach(handle)
	s.registry.Remove(handle)
	metrics.ActiveConnections.Set(float64(s.registry.Len()))

	if current, ok := s.registry.ResolveHandle(user); ok && current != handle {
		// a newer connection of this user is live, it owns presence and calls now
		l.Debug().Str("current_handle", current.String()).Msg("Superseded connection closed")
		return
	}

	if err := s.presence.MarkOffline(ctx, user); err != nil {
		l.Warn().Err(err).Msg("Online set not updated on disconnect")
	}

	// the user may have reconnected while the removal was in flight
	if current, ok := s.registry.ResolveHandle(user); ok {
		l.Debug().Str("current_handle", current.String()).Msg("User reconnected during disconnect, restoring online set entry")
		if err := s.presence.MarkOnline(ctx, user); err != nil {
			l.Warn().Err(err).Msg("Online set not restored after reconnect")
		}
	}

	for _, tx := range s.ledger.DropUser(user) {
		peer := tx.Key.Target
		if peer == user {
			peer = tx.Key.Initiator
		}
		s.notifyPeer(ctx, user, peer)
	}
	l.Info().Msg("User disconnected")
}

// OnlineUsers answers the presence query for caller.
func (s *SessionService) OnlineUsers(ctx context.Context, caller domain.UserID) ([]domain.UserID, error) {
	return s.presence.OnlineUsers(ctx, caller)
}

func (s *SessionService) notifyPeer(ctx context.Context, user, peer domain.UserID) {
	handle, ok := s.registry.ResolveHandle(peer)
	if !ok {
		return
	}
	err := s.gateway.Deliver(ctx, handle, domain.Event{
		Type:    domain.EventEndCall,
		From:    user,
		Message: disconnectedMessage,
	})
	if err != nil && !errors.Is(err, domain.ErrHandleClosed) {
		log.Warn().Err(err).Str("user_id", peer.String()).Msg("Failed to notify call peer about disconnect")
	}
}
