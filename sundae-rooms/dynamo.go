package sundaerooms

import (
	"context"
	"time"

	"github.com/SundaeSwap-finance/sundae-rooms/sundae-rooms/connectiondao"
	"github.com/SundaeSwap-finance/sundae-rooms/sundae-rooms/membershipdao"
	"github.com/aws/aws-sdk-go/service/dynamodb/dynamodbiface"
	"golang.org/x/sync/errgroup"
)

// DynamoStore keeps the registry in two DynamoDB tables.
type DynamoStore struct {
	Connections *connectiondao.DAO
	Memberships *membershipdao.DAO

	// TTL, when set, stamps rows with an expiry so DynamoDB removes
	// connections whose $disconnect never arrived.
	TTL time.Duration

	now func() time.Time
}

func NewDynamoStore(api dynamodbiface.DynamoDBAPI, env string, ttl time.Duration) *DynamoStore {
	return &DynamoStore{
		Connections: connectiondao.Build(api, env),
		Memberships: membershipdao.Build(api, env),
		TTL:         ttl,
		now:         time.Now,
	}
}

func (s *DynamoStore) clock() time.Time {
	if s.now == nil {
		return time.Now()
	}
	return s.now()
}

func (s *DynamoStore) expiry(now time.Time) int64 {
	if s.TTL <= 0 {
		return 0
	}
	return now.Add(s.TTL).Unix()
}

func (s *DynamoStore) AddConnection(ctx context.Context, connectionID string) (Connection, error) {
	now := s.clock()
	conn, err := s.Connections.Put(ctx, connectiondao.Connection{
		ConnectionID: connectionID,
		CreatedAt:    now.UnixMilli(),
		TTL:          s.expiry(now),
	})
	if err != nil {
		return Connection{}, WrapStorageError("add connection", err)
	}
	return Connection{ConnectionID: conn.ConnectionID, CreatedAt: time.UnixMilli(conn.CreatedAt)}, nil
}

func (s *DynamoStore) RemoveConnection(ctx context.Context, connectionID string) error {
	if _, err := s.RemoveAllMembershipsFor(ctx, connectionID); err != nil {
		return err
	}
	return WrapStorageError("remove connection", s.Connections.Delete(ctx, connectionID))
}

func (s *DynamoStore) AddMembership(ctx context.Context, connectionID, channelName string) (Membership, error) {
	now := s.clock()
	m, err := s.Memberships.Put(ctx, membershipdao.Membership{
		ConnectionID: connectionID,
		ChannelName:  channelName,
		CreatedAt:    now.UnixMilli(),
		TTL:          s.expiry(now),
	})
	if err != nil {
		return Membership{}, WrapStorageError("add membership", err)
	}
	return Membership{ConnectionID: m.ConnectionID, ChannelName: m.ChannelName, CreatedAt: time.UnixMilli(m.CreatedAt)}, nil
}

func (s *DynamoStore) RemoveMembership(ctx context.Context, connectionID, channelName string) error {
	return WrapStorageError("remove membership", s.Memberships.Delete(ctx, connectionID, channelName))
}

func (s *DynamoStore) RemoveAllMembershipsFor(ctx context.Context, connectionID string) (int, error) {
	n, err := s.Memberships.DeleteByConnection(ctx, connectionID)
	if err != nil {
		return 0, WrapStorageError("remove memberships", err)
	}
	return n, nil
}

func (s *DynamoStore) ListAllConnectionIDs(ctx context.Context) ([]string, error) {
	conns, err := s.Connections.All(ctx)
	if err != nil {
		return nil, WrapStorageError("list connections", err)
	}
	ids := make([]string, 0, len(conns))
	for _, conn := range conns {
		ids = append(ids, conn.ConnectionID)
	}
	return Distinct(ids, ""), nil
}

// ListDistinctConnectionIDsInChannels queries the channel index once per
// channel, in parallel.
func (s *DynamoStore) ListDistinctConnectionIDsInChannels(ctx context.Context, channelNames []string, excluding string) ([]string, error) {
	results := make([][]membershipdao.Membership, len(channelNames))

	group, ctx := errgroup.WithContext(ctx)
	for i, channelName := range channelNames {
		i, channelName := i, channelName
		group.Go(func() error {
			ms, err := s.Memberships.QueryByChannel(ctx, channelName)
			results[i] = ms
			return err
		})
	}
	if err := group.Wait(); err != nil {
		return nil, WrapStorageError("list channel members", err)
	}

	var ids []string
	for _, ms := range results {
		for _, m := range ms {
			ids = append(ids, m.ConnectionID)
		}
	}
	return Distinct(ids, excluding), nil
}

func (s *DynamoStore) ListConnectionsCreatedBefore(ctx context.Context, before time.Time) ([]Connection, error) {
	rows, err := s.Connections.CreatedBefore(ctx, before.UnixMilli())
	if err != nil {
		return nil, WrapStorageError("list stale connections", err)
	}
	conns := make([]Connection, 0, len(rows))
	for _, row := range rows {
		conns = append(conns, Connection{ConnectionID: row.ConnectionID, CreatedAt: time.UnixMilli(row.CreatedAt)})
	}
	return conns, nil
}
