package ws

import "github.com/Wyydra/yacall/internal/core/port"

// Client is a connection the hub can deliver to.
type Client = port.Connection
