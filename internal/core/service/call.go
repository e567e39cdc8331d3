package service

import (
	"context"

	"github.com/cockroachdb/errors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/Wyydra/yacall/internal/core/domain"
	"github.com/Wyydra/yacall/internal/core/port"
	"github.com/Wyydra/yacall/internal/metrics"
)

const (
	defaultRejectMessage = "Call rejected"
	noAnswerMessage      = "No answer"
	missedCallMessage    = "Missed call"
	offlineMessage       = "User is offline"
)

type CallConfig struct {
	// NotifyOffline sends a user-offline event back to the sender when the
	// target has no live connection. Off by default: misses are silent.
	NotifyOffline bool
}

// CallService relays call signaling between two connected users. It keeps no
// call state of its own beyond the ledger bookkeeping.
type CallService struct {
	registry *Registry
	gateway  port.Gateway
	ledger   *CallLedger
	cfg      CallConfig
}

func NewCallService(registry *Registry, gateway port.Gateway, ledger *CallLedger, cfg CallConfig) *CallService {
	s := &CallService{
		registry: registry,
		gateway:  gateway,
		ledger:   ledger,
		cfg:      cfg,
	}
	ledger.SetOnExpire(s.expireCall)
	return s
}

// HandleSignal dispatches an inbound message from the connection sender.
func (s *CallService) HandleSignal(ctx context.Context, sender domain.ConnectionHandle, sig domain.Signal) (domain.RelayOutcome, error) {
	switch sig.Type {
	case domain.EventCallUser:
		return s.Initiate(ctx, sender, sig.To, sig.Offer, sig.SuccessURL), nil
	case domain.EventAnswerCall:
		return s.Answer(ctx, sender, sig.To, sig.Answer), nil
	case domain.EventRejectCall:
		return s.Reject(ctx, sender, sig.To, sig.Message), nil
	case domain.EventEndCall:
		return s.End(ctx, sender, sig.To, sig.Message), nil
	default:
		return domain.RelayDropped, errors.Mark(errors.Newf("unknown signal type %q", sig.Type), domain.ErrInvalidInput)
	}
}

// Initiate delivers incoming-call to target carrying the sender's identity
// and offer.
func (s *CallService) Initiate(ctx context.Context, sender domain.ConnectionHandle, target domain.UserID, offer domain.Payload, successURL string) domain.RelayOutcome {
	from, ok := s.sender(sender, domain.EventIncomingCall)
	if !ok {
		return domain.RelayDropped
	}
	s.ledger.Begin(from, target)

	outcome := s.relay(ctx, sender, from, target, domain.Event{
		Type:       domain.EventIncomingCall,
		From:       from,
		Offer:      offer,
		SuccessURL: successURL,
	})
	if outcome == domain.RelayDelivered {
		s.ledger.Ringing(from, target)
	} else {
		s.ledger.Finish(from, target, domain.CallEnded)
	}
	return outcome
}

// Answer delivers accept-call with the answer payload to target.
func (s *CallService) Answer(ctx context.Context, sender domain.ConnectionHandle, target domain.UserID, answer domain.Payload) domain.RelayOutcome {
	from, ok := s.sender(sender, domain.EventAcceptCall)
	if !ok {
		return domain.RelayDropped
	}
	outcome := s.relay(ctx, sender, from, target, domain.Event{
		Type:   domain.EventAcceptCall,
		From:   from,
		Answer: answer,
	})
	s.ledger.Finish(target, from, domain.CallAnswered)
	return outcome
}

// Reject delivers a rejection notice to target.
func (s *CallService) Reject(ctx context.Context, sender domain.ConnectionHandle, target domain.UserID, message string) domain.RelayOutcome {
	from, ok := s.sender(sender, domain.EventRejection)
	if !ok {
		return domain.RelayDropped
	}
	if message == "" {
		message = defaultRejectMessage
	}
	outcome := s.relay(ctx, sender, from, target, domain.Event{
		Type:    domain.EventRejection,
		From:    from,
		Message: message,
	})
	s.ledger.Finish(target, from, domain.CallRejected)
	return outcome
}

// End delivers end-call with message to target.
func (s *CallService) End(ctx context.Context, sender domain.ConnectionHandle, target domain.UserID, message string) domain.RelayOutcome {
	from, ok := s.sender(sender, domain.EventEndCall)
	if !ok {
		return domain.RelayDropped
	}
	outcome := s.relay(ctx, sender, from, target, domain.Event{
		Type:    domain.EventEndCall,
		From:    from,
		Message: message,
	})
	s.ledger.Finish(from, target, domain.CallEnded)
	return outcome
}

func (s *CallService) sender(handle domain.ConnectionHandle, evt domain.EventType) (domain.UserID, bool) {
	from, ok := s.registry.ResolveUser(handle)
	if !ok {
		log.Debug().Str("handle", handle.String()).Str("event", string(evt)).Msg("Sender not registered, dropping signal")
		metrics.Relays.WithLabelValues(string(evt), "unknown_sender").Inc()
	}
	return from, ok
}

func (s *CallService) relay(ctx context.Context, senderHandle domain.ConnectionHandle, from, target domain.UserID, evt domain.Event) domain.RelayOutcome {
	l := log.With().
		Str("event", string(evt.Type)).
		Str("from", from.String()).
		Str("to", target.String()).
		Logger()

	if target.IsZero() || target == from {
		l.Debug().Msg("Invalid signal target, dropping")
		metrics.Relays.WithLabelValues(string(evt.Type), "invalid_target").Inc()
		return domain.RelayDropped
	}

	handle, ok := s.registry.ResolveHandle(target)
	if !ok {
		l.Debug().Msg("Target not connected, dropping")
		metrics.Relays.WithLabelValues(string(evt.Type), "offline").Inc()
		s.notifyOffline(ctx, senderHandle, target, l)
		return domain.RelayDropped
	}

	if err := s.gateway.Deliver(ctx, handle, evt); err != nil {
		if errors.Is(err, domain.ErrHandleClosed) {
			l.Debug().Msg("Target closed during relay, dropping")
			metrics.Relays.WithLabelValues(string(evt.Type), "closed").Inc()
			s.notifyOffline(ctx, senderHandle, target, l)
		} else {
			l.Warn().Err(err).Msg("Failed to deliver signal")
			metrics.Relays.WithLabelValues(string(evt.Type), "failed").Inc()
		}
		return domain.RelayDropped
	}

	l.Debug().Msg("Signal relayed")
	metrics.Relays.WithLabelValues(string(evt.Type), domain.RelayDelivered.String()).Inc()
	return domain.RelayDelivered
}

func (s *CallService) notifyOffline(ctx context.Context, senderHandle domain.ConnectionHandle, target domain.UserID, l zerolog.Logger) {
	if !s.cfg.NotifyOffline {
		return
	}
	err := s.gateway.Deliver(ctx, senderHandle, domain.Event{
		Type:    domain.EventUserOffline,
		To:      target,
		Message: offlineMessage,
	})
	if err != nil && !errors.Is(err, domain.ErrHandleClosed) {
		l.Warn().Err(err).Msg("Failed to notify sender about offline target")
	}
}

// expireCall tells both parties that an unanswered attempt timed out.
func (s *CallService) expireCall(tx domain.CallTransaction) {
	metrics.ExpiredCalls.Inc()
	log.Info().
		Str("from", tx.Key.Initiator.String()).
		Str("to", tx.Key.Target.String()).
		Msg("Call attempt expired without answer")

	ctx := context.Background()
	s.deliverTo(ctx, tx.Key.Initiator, domain.Event{
		Type:    domain.EventEndCall,
		From:    tx.Key.Target,
		Message: noAnswerMessage,
	})
	s.deliverTo(ctx, tx.Key.Target, domain.Event{
		Type:    domain.EventEndCall,
		From:    tx.Key.Initiator,
		Message: missedCallMessage,
	})
}

func (s *CallService) deliverTo(ctx context.Context, user domain.UserID, evt domain.Event) {
	handle, ok := s.registry.ResolveHandle(user)
	if !ok {
		return
	}
	if err := s.gateway.Deliver(ctx, handle, evt); err != nil && !errors.Is(err, domain.ErrHandleClosed) {
		log.Warn().Err(err).Str("user_id", user.String()).Msg("Failed to deliver call expiry")
	}
}
