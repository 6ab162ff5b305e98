// Package storetest holds the behaviour every sundaerooms.Store must share.
package storetest

import (
	"context"
	"testing"
	"time"

	sundaerooms "github.com/SundaeSwap-finance/sundae-rooms/sundae-rooms"
	"github.com/tj/assert"
)

// Run exercises store against the registry contract. newStore must return an
// empty store each time it is called.
func Run(t *testing.T, newStore func(t *testing.T) sundaerooms.Store) {
	ctx := context.Background()

	t.Run("connections", func(t *testing.T) {
		store := newStore(t)

		conn, err := store.AddConnection(ctx, "A")
		assert.NoError(t, err)
		assert.Equal(t, "A", conn.ConnectionID)
		assert.False(t, conn.CreatedAt.IsZero())

		again, err := store.AddConnection(ctx, "A")
		assert.NoError(t, err)
		assert.Equal(t, "A", again.ConnectionID)

		_, err = store.AddConnection(ctx, "B")
		assert.NoError(t, err)

		ids, err := store.ListAllConnectionIDs(ctx)
		assert.NoError(t, err)
		assert.Equal(t, []string{"A", "B"}, ids)

		assert.NoError(t, store.RemoveConnection(ctx, "A"))
		assert.NoError(t, store.RemoveConnection(ctx, "unknown"))

		ids, err = store.ListAllConnectionIDs(ctx)
		assert.NoError(t, err)
		assert.Equal(t, []string{"B"}, ids)
	})

	t.Run("memberships", func(t *testing.T) {
		store := newStore(t)
		for _, id := range []string{"A", "B", "C"} {
			_, err := store.AddConnection(ctx, id)
			assert.NoError(t, err)
		}

		m, err := store.AddMembership(ctx, "B", "room1")
		assert.NoError(t, err)
		assert.Equal(t, "B", m.ConnectionID)
		assert.Equal(t, "room1", m.ChannelName)

		for _, pair := range [][2]string{{"C", "room1"}, {"C", "room2"}, {"A", "room2"}, {"B", "room1"}} {
			_, err := store.AddMembership(ctx, pair[0], pair[1])
			assert.NoError(t, err)
		}

		ids, err := store.ListDistinctConnectionIDsInChannels(ctx, []string{"room1"}, "")
		assert.NoError(t, err)
		assert.Equal(t, []string{"B", "C"}, ids)

		ids, err = store.ListDistinctConnectionIDsInChannels(ctx, []string{"room1", "room2"}, "")
		assert.NoError(t, err)
		assert.Equal(t, []string{"A", "B", "C"}, ids)

		ids, err = store.ListDistinctConnectionIDsInChannels(ctx, []string{"room1", "room2"}, "C")
		assert.NoError(t, err)
		assert.Equal(t, []string{"A", "B"}, ids)

		ids, err = store.ListDistinctConnectionIDsInChannels(ctx, []string{"nobody"}, "")
		assert.NoError(t, err)
		assert.Empty(t, ids)

		assert.NoError(t, store.RemoveMembership(ctx, "B", "room1"))
		assert.NoError(t, store.RemoveMembership(ctx, "B", "room1"))

		ids, err = store.ListDistinctConnectionIDsInChannels(ctx, []string{"room1"}, "")
		assert.NoError(t, err)
		assert.Equal(t, []string{"C"}, ids)
	})

	t.Run("first timestamp wins", func(t *testing.T) {
		store := newStore(t)

		conn, err := store.AddConnection(ctx, "A")
		assert.NoError(t, err)
		m, err := store.AddMembership(ctx, "A", "room1")
		assert.NoError(t, err)

		time.Sleep(5 * time.Millisecond)

		again, err := store.AddConnection(ctx, "A")
		assert.NoError(t, err)
		assert.True(t, conn.CreatedAt.Equal(again.CreatedAt), "connection created at %v, then %v", conn.CreatedAt, again.CreatedAt)

		resubscribed, err := store.AddMembership(ctx, "A", "room1")
		assert.NoError(t, err)
		assert.Equal(t, "A", resubscribed.ConnectionID)
		assert.Equal(t, "room1", resubscribed.ChannelName)
		assert.True(t, m.CreatedAt.Equal(resubscribed.CreatedAt), "membership created at %v, then %v", m.CreatedAt, resubscribed.CreatedAt)
	})

	t.Run("cascade", func(t *testing.T) {
		store := newStore(t)
		_, err := store.AddConnection(ctx, "C")
		assert.NoError(t, err)
		for _, channel := range []string{"room1", "room2", "room3"} {
			_, err := store.AddMembership(ctx, "C", channel)
			assert.NoError(t, err)
		}

		n, err := store.RemoveAllMembershipsFor(ctx, "C")
		assert.NoError(t, err)
		assert.Equal(t, 3, n)

		n, err = store.RemoveAllMembershipsFor(ctx, "C")
		assert.NoError(t, err)
		assert.Equal(t, 0, n)

		_, err = store.AddMembership(ctx, "C", "room1")
		assert.NoError(t, err)
		assert.NoError(t, store.RemoveConnection(ctx, "C"))

		ids, err := store.ListDistinctConnectionIDsInChannels(ctx, []string{"room1", "room2", "room3"}, "")
		assert.NoError(t, err)
		assert.Empty(t, ids)

		ids, err = store.ListAllConnectionIDs(ctx)
		assert.NoError(t, err)
		assert.Empty(t, ids)
	})

	t.Run("created before", func(t *testing.T) {
		store := newStore(t)
		_, err := store.AddConnection(ctx, "old")
		assert.NoError(t, err)

		conns, err := store.ListConnectionsCreatedBefore(ctx, time.Now().Add(-time.Hour))
		assert.NoError(t, err)
		assert.Empty(t, conns)

		conns, err = store.ListConnectionsCreatedBefore(ctx, time.Now().Add(time.Hour))
		assert.NoError(t, err)
		assert.Len(t, conns, 1)
		assert.Equal(t, "old", conns[0].ConnectionID)
	})
}
