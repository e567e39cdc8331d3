package port

import (
	"context"

	"github.com/Wyydra/yacall/internal/core/domain"
)

// Gateway owns the live connections and delivers events by handle.
// Delivering to a handle that is no longer attached returns
// domain.ErrHandleClosed.
type Gateway interface {
	Attach(conn Connection)
	Detach(handle domain.ConnectionHandle) bool
	Deliver(ctx context.Context, handle domain.ConnectionHandle, evt domain.Event) error
	Disconnect(handle domain.ConnectionHandle, evt domain.Event) error
}
