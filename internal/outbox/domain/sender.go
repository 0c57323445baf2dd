package domain

import (
	"context"
)

// Sender delivers one outbox message to an external system.
//
// Returning true means the message was delivered and can be finalized. Returning false or an error
// leaves the message claimed; it becomes eligible again once its visibility window elapses, so
// implementations must tolerate duplicate delivery of the same message ID.
type Sender interface {
	Send(ctx context.Context, msg *Message) (bool, error)
}

// ConnectionInfo describes the store connection a listener attaches to.
type ConnectionInfo struct {
	// Driver is the database driver name (e.g., "postgres", "mysql").
	Driver string
	// ConnectionString is the DSN used to open a dedicated connection.
	ConnectionString string
}
