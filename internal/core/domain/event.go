package domain

// EventType names an event on the signaling wire.
type EventType string

// Inbound, sent by clients.
const (
	EventCallUser   EventType = "call-user"
	EventAnswerCall EventType = "answer-call"
	EventRejectCall EventType = "reject-call"
	EventEndCall    EventType = "end-call"
)

// Outbound, delivered by the server. end-call is shared with the inbound set.
const (
	EventIncomingCall EventType = "incoming-call"
	EventAcceptCall   EventType = "accept-call"
	EventRejection    EventType = "rejection"
	EventAuthFailure  EventType = "auth-failure"
	EventSuperseded   EventType = "superseded"
	EventUserOffline  EventType = "user-offline"
)

// Event is a message delivered to a connection. From is always filled by the
// server from the registry, never copied from client input.
type Event struct {
	Type       EventType `json:"type"`
	From       UserID    `json:"from,omitempty"`
	To         UserID    `json:"to,omitempty"`
	Offer      Payload   `json:"offer,omitempty"`
	Answer     Payload   `json:"answer,omitempty"`
	SuccessURL string    `json:"successUrl,omitempty"`
	Message    string    `json:"message,omitempty"`
}

// IdentityClaim is what a client presents when opening a connection.
type IdentityClaim struct {
	Token  string
	UserID UserID
}

func (c IdentityClaim) Empty() bool {
	return c.Token == "" && c.UserID.IsZero()
}

// Signal is an inbound signaling message. Only the target comes from the
// client; the sender is the connection it arrived on.
type Signal struct {
	Type       EventType
	To         UserID
	Offer      Payload
	Answer     Payload
	SuccessURL string
	Message    string
}
