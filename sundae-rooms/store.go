package sundaerooms

import (
	"context"
	"slices"
	"time"
)

// Connection is a live client session identified by the transport-assigned id.
type Connection struct {
	ConnectionID string    `json:"connectionId"`
	CreatedAt    time.Time `json:"createdAt"`
}

// Membership subscribes a connection to a channel. Channels have no stored
// representation of their own.
type Membership struct {
	ConnectionID string    `json:"connectionId"`
	ChannelName  string    `json:"channelName"`
	CreatedAt    time.Time `json:"createdAt"`
}

// Store is the durable registry of connections and channel memberships.
//
// Implementations wrap backend failures in *StorageError and never retry.
// Removing rows that don't exist is not an error. Callers validate ids before
// reaching the store, so implementations may assume they are non-empty.
type Store interface {
	// AddConnection registers connectionID; registering it twice is a no-op.
	AddConnection(ctx context.Context, connectionID string) (Connection, error)
	// RemoveConnection deletes every membership of connectionID and then the
	// connection itself. If the memberships can't be removed the connection
	// row is left in place.
	RemoveConnection(ctx context.Context, connectionID string) error
	AddMembership(ctx context.Context, connectionID, channelName string) (Membership, error)
	RemoveMembership(ctx context.Context, connectionID, channelName string) error
	// RemoveAllMembershipsFor returns the number of memberships removed.
	RemoveAllMembershipsFor(ctx context.Context, connectionID string) (int, error)
	ListAllConnectionIDs(ctx context.Context) ([]string, error)
	// ListDistinctConnectionIDsInChannels returns the distinct members of any
	// of channelNames, leaving out excluding unless it is empty.
	ListDistinctConnectionIDsInChannels(ctx context.Context, channelNames []string, excluding string) ([]string, error)
	// ListConnectionsCreatedBefore returns connections registered before the
	// given instant, oldest first.
	ListConnectionsCreatedBefore(ctx context.Context, before time.Time) ([]Connection, error)
}

// Distinct sorts ids and removes duplicates, empty ids and excluding.
func Distinct(ids []string, excluding string) []string {
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if id == "" || (excluding != "" && id == excluding) {
			continue
		}
		out = append(out, id)
	}
	slices.Sort(out)
	return slices.Compact(out)
}
