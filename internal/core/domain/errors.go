package domain

import "github.com/cockroachdb/errors"

var (
	// ErrUnauthorized refuses a connection or request whose identity claim is
	// missing, invalid, or does not resolve to an existing user.
	ErrUnauthorized = errors.New("not authenticated")

	// ErrStoreUnavailable marks failures of the online-set store.
	ErrStoreUnavailable = errors.New("online set store unavailable")

	// ErrHandleClosed is returned when delivering to a handle that is no longer
	// attached. Callers treat it as a dropped relay.
	ErrHandleClosed = errors.New("connection handle closed")

	// ErrSendBufferFull is returned when a connection cannot keep up.
	ErrSendBufferFull = errors.New("connection send buffer full")

	ErrUserNotFound       = errors.New("user not found")
	ErrUserExists         = errors.New("user already exists")
	ErrInvalidCredentials = errors.New("password is incorrect")
	ErrInvalidInput       = errors.New("invalid input")
)
