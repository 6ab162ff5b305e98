package sundaerooms

import (
	"context"
	"slices"
	"sync"
	"time"
)

// MemoryStore keeps the registry in process memory. It backs console mode and
// tests; anything running on Lambda needs a durable store.
type MemoryStore struct {
	mu          sync.RWMutex
	now         func() time.Time
	connections map[string]Connection
	channels    map[string]map[string]Membership // channel -> connection -> membership
	joined      map[string]map[string]struct{}   // connection -> channels
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		now:         time.Now,
		connections: make(map[string]Connection),
		channels:    make(map[string]map[string]Membership),
		joined:      make(map[string]map[string]struct{}),
	}
}

// WithClock replaces the clock used to stamp new rows.
func (m *MemoryStore) WithClock(now func() time.Time) *MemoryStore {
	m.now = now
	return m
}

func (m *MemoryStore) AddConnection(_ context.Context, connectionID string) (Connection, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if conn, ok := m.connections[connectionID]; ok {
		return conn, nil
	}
	conn := Connection{ConnectionID: connectionID, CreatedAt: m.now()}
	m.connections[connectionID] = conn
	return conn, nil
}

func (m *MemoryStore) RemoveConnection(ctx context.Context, connectionID string) error {
	if _, err := m.RemoveAllMembershipsFor(ctx, connectionID); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.connections, connectionID)
	return nil
}

func (m *MemoryStore) AddMembership(_ context.Context, connectionID, channelName string) (Membership, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	members := m.channels[channelName]
	if members == nil {
		members = make(map[string]Membership)
		m.channels[channelName] = members
	}
	if membership, ok := members[connectionID]; ok {
		return membership, nil
	}

	membership := Membership{ConnectionID: connectionID, ChannelName: channelName, CreatedAt: m.now()}
	members[connectionID] = membership

	if m.joined[connectionID] == nil {
		m.joined[connectionID] = make(map[string]struct{})
	}
	m.joined[connectionID][channelName] = struct{}{}
	return membership, nil
}

func (m *MemoryStore) RemoveMembership(_ context.Context, connectionID, channelName string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.leave(connectionID, channelName)
	if len(m.joined[connectionID]) == 0 {
		delete(m.joined, connectionID)
	}
	return nil
}

func (m *MemoryStore) RemoveAllMembershipsFor(_ context.Context, connectionID string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var n int
	for channelName := range m.joined[connectionID] {
		if m.leave(connectionID, channelName) {
			n++
		}
	}
	delete(m.joined, connectionID)
	return n, nil
}

// leave must be called with mu held.
func (m *MemoryStore) leave(connectionID, channelName string) bool {
	members, ok := m.channels[channelName]
	if !ok {
		return false
	}
	if _, ok := members[connectionID]; !ok {
		return false
	}
	delete(members, connectionID)
	if len(members) == 0 {
		delete(m.channels, channelName)
	}
	delete(m.joined[connectionID], channelName)
	return true
}

func (m *MemoryStore) ListAllConnectionIDs(_ context.Context) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	ids := make([]string, 0, len(m.connections))
	for id := range m.connections {
		ids = append(ids, id)
	}
	return Distinct(ids, ""), nil
}

func (m *MemoryStore) ListDistinctConnectionIDsInChannels(_ context.Context, channelNames []string, excluding string) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var ids []string
	for _, channelName := range channelNames {
		for id := range m.channels[channelName] {
			ids = append(ids, id)
		}
	}
	return Distinct(ids, excluding), nil
}

func (m *MemoryStore) ListConnectionsCreatedBefore(_ context.Context, before time.Time) ([]Connection, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var conns []Connection
	for _, conn := range m.connections {
		if conn.CreatedAt.Before(before) {
			conns = append(conns, conn)
		}
	}
	slices.SortFunc(conns, func(a, b Connection) int {
		return a.CreatedAt.Compare(b.CreatedAt)
	})
	return conns, nil
}
