package sundaerooms

import (
	"context"

	"github.com/rs/zerolog"
)

// Lifecycle registers connections on connect and removes them, memberships
// first, on disconnect.
type Lifecycle struct {
	Store  Store
	Logger zerolog.Logger
}

func (l *Lifecycle) OnConnect(ctx context.Context, connectionID string) (Connection, error) {
	if connectionID == "" {
		return Connection{}, ErrMissingIdentifier
	}
	conn, err := l.Store.AddConnection(ctx, connectionID)
	if err != nil {
		return Connection{}, WrapStorageError("add connection", err)
	}
	return conn, nil
}

// OnDisconnect removes the connection and all of its memberships. Unknown ids
// succeed; only an empty id is rejected.
func (l *Lifecycle) OnDisconnect(ctx context.Context, connectionID string) error {
	if connectionID == "" {
		return ErrMissingIdentifier
	}
	if err := l.Store.RemoveConnection(ctx, connectionID); err != nil {
		return WrapStorageError("remove connection", err)
	}
	l.Logger.Debug().Str("connection_id", connectionID).Msg("connection removed")
	return nil
}
