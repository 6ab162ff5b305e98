package sundaerooms

import (
	"context"
	"time"
)

// Stats is a point-in-time summary of the registry.
type Stats struct {
	GeneratedAt time.Time      `json:"generatedAt"`
	Connections int            `json:"connections"`
	Stale       int            `json:"stale"`
	Oldest      *time.Time     `json:"oldest,omitempty"`
	Channels    map[string]int `json:"channels,omitempty"`
}

// Stats counts registered connections, those created before staleBefore, and
// the members of each of channels.
func (s *Server) Stats(ctx context.Context, staleBefore time.Time, channels ...string) (Stats, error) {
	stats := Stats{GeneratedAt: time.Now().UTC()}

	ids, err := s.store.ListAllConnectionIDs(ctx)
	if err != nil {
		return Stats{}, WrapStorageError("list connections", err)
	}
	stats.Connections = len(ids)

	conns, err := s.store.ListConnectionsCreatedBefore(ctx, stats.GeneratedAt.Add(time.Second))
	if err != nil {
		return Stats{}, WrapStorageError("list connections", err)
	}
	if len(conns) > 0 {
		oldest := conns[0].CreatedAt.UTC()
		stats.Oldest = &oldest
	}
	for _, conn := range conns {
		if conn.CreatedAt.Before(staleBefore) {
			stats.Stale++
		}
	}

	for _, channel := range normalizeChannels(channels) {
		members, err := s.store.ListDistinctConnectionIDsInChannels(ctx, []string{channel}, "")
		if err != nil {
			return Stats{}, WrapStorageError("list channel members", err)
		}
		if stats.Channels == nil {
			stats.Channels = map[string]int{}
		}
		stats.Channels[channel] = len(members)
	}

	return stats, nil
}
