package domain

import (
	"encoding/json"
	"time"
)

// CallState is the phase of a CallTransaction.
type CallState string

const (
	CallInitiated CallState = "initiated"
	CallRinging   CallState = "ringing"
	CallAnswered  CallState = "answered"
	CallRejected  CallState = "rejected"
	CallEnded     CallState = "ended"
)

func (s CallState) Terminal() bool {
	switch s {
	case CallAnswered, CallRejected, CallEnded:
		return true
	default:
		return false
	}
}

// CallKey identifies a call attempt by its two parties.
type CallKey struct {
	Initiator UserID
	Target    UserID
}

func (k CallKey) Reverse() CallKey {
	return CallKey{Initiator: k.Target, Target: k.Initiator}
}

// CallTransaction is the in-memory view of one call attempt. It is never
// persisted and is forgotten once it reaches a terminal state.
type CallTransaction struct {
	Key       CallKey
	State     CallState
	StartedAt time.Time
	UpdatedAt time.Time
}

// RelayOutcome reports what happened to a relayed signaling message.
type RelayOutcome int

const (
	RelayDropped RelayOutcome = iota
	RelayDelivered
)

func (o RelayOutcome) String() string {
	if o == RelayDelivered {
		return "delivered"
	}
	return "dropped"
}

// Offer and answer payloads are opaque to the server.
type Payload = json.RawMessage
