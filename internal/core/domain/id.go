package domain

import (
	"github.com/google/uuid"
)

// UserID is the durable identifier of an application user. It is minted by
// the user store and stays the same across connections.
type UserID string

// ConnectionHandle identifies one live transport connection. A handle is never
// reused after its connection closes.
type ConnectionHandle uuid.UUID

func NewUserID() UserID {
	return UserID(uuid.New().String())
}

func NewConnectionHandle() ConnectionHandle {
	return ConnectionHandle(uuid.New())
}

func ParseConnectionHandle(s string) (ConnectionHandle, error) {
	id, err := uuid.Parse(s)
	if err != nil {
		return ConnectionHandle{}, err
	}
	return ConnectionHandle(id), nil
}

func (id UserID) String() string {
	return string(id)
}

func (id UserID) IsZero() bool {
	return id == ""
}

func (h ConnectionHandle) String() string {
	return uuid.UUID(h).String()
}

func (h ConnectionHandle) IsZero() bool {
	return uuid.UUID(h) == uuid.Nil
}
