package port

import "github.com/Wyydra/yacall/internal/core/domain"

// Connection is one live transport connection to a client.
type Connection interface {
	Handle() domain.ConnectionHandle
	Send(evt domain.Event) error
	Close(reason string) error
}
