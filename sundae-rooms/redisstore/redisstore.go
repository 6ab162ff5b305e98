// Package redisstore keeps the rooms registry in Redis.
//
// Keys, relative to the configured prefix:
//
//	{prefix}:connections           ZSET connection id scored by createdAt millis
//	{prefix}:channel:{name}        SET  connection ids subscribed to name
//	{prefix}:memberships:{id}      HASH channel name -> createdAt millis
package redisstore

import (
	"context"
	"errors"
	"strconv"
	"time"

	sundaerooms "github.com/SundaeSwap-finance/sundae-rooms/sundae-rooms"
	"github.com/redis/go-redis/v9"
)

const maxWatchRetries = 5

type Store struct {
	client redis.UniversalClient
	prefix string
	now    func() time.Time
}

func New(client redis.UniversalClient, prefix string) *Store {
	if prefix == "" {
		prefix = "rooms"
	}
	return &Store{
		client: client,
		prefix: prefix,
		now:    time.Now,
	}
}

func (s *Store) connectionsKey() string {
	return s.prefix + ":connections"
}

func (s *Store) channelKey(channelName string) string {
	return s.prefix + ":channel:" + channelName
}

func (s *Store) membershipsKey(connectionID string) string {
	return s.prefix + ":memberships:" + connectionID
}

func (s *Store) AddConnection(ctx context.Context, connectionID string) (sundaerooms.Connection, error) {
	var score *redis.FloatCmd
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.ZAddNX(ctx, s.connectionsKey(), redis.Z{
			Score:  float64(s.now().UnixMilli()),
			Member: connectionID,
		})
		score = pipe.ZScore(ctx, s.connectionsKey(), connectionID)
		return nil
	})
	if err != nil {
		return sundaerooms.Connection{}, sundaerooms.WrapStorageError("add connection", err)
	}
	return sundaerooms.Connection{
		ConnectionID: connectionID,
		CreatedAt:    time.UnixMilli(int64(score.Val())),
	}, nil
}

func (s *Store) RemoveConnection(ctx context.Context, connectionID string) error {
	if _, err := s.RemoveAllMembershipsFor(ctx, connectionID); err != nil {
		return err
	}
	if err := s.client.ZRem(ctx, s.connectionsKey(), connectionID).Err(); err != nil {
		return sundaerooms.WrapStorageError("remove connection", err)
	}
	return nil
}

func (s *Store) AddMembership(ctx context.Context, connectionID, channelName string) (sundaerooms.Membership, error) {
	var createdAt *redis.StringCmd
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSetNX(ctx, s.membershipsKey(connectionID), channelName, s.now().UnixMilli())
		pipe.SAdd(ctx, s.channelKey(channelName), connectionID)
		createdAt = pipe.HGet(ctx, s.membershipsKey(connectionID), channelName)
		return nil
	})
	if err != nil {
		return sundaerooms.Membership{}, sundaerooms.WrapStorageError("add membership", err)
	}

	millis, err := strconv.ParseInt(createdAt.Val(), 10, 64)
	if err != nil {
		return sundaerooms.Membership{}, sundaerooms.WrapStorageError("add membership", err)
	}
	return sundaerooms.Membership{
		ConnectionID: connectionID,
		ChannelName:  channelName,
		CreatedAt:    time.UnixMilli(millis),
	}, nil
}

func (s *Store) RemoveMembership(ctx context.Context, connectionID, channelName string) error {
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HDel(ctx, s.membershipsKey(connectionID), channelName)
		pipe.SRem(ctx, s.channelKey(channelName), connectionID)
		return nil
	})
	if err != nil {
		return sundaerooms.WrapStorageError("remove membership", err)
	}
	return nil
}

// RemoveAllMembershipsFor retries while the membership hash changes under it.
func (s *Store) RemoveAllMembershipsFor(ctx context.Context, connectionID string) (int, error) {
	key := s.membershipsKey(connectionID)

	var removed int
	txf := func(tx *redis.Tx) error {
		channels, err := tx.HKeys(ctx, key).Result()
		if err != nil {
			return err
		}
		removed = len(channels)
		if removed == 0 {
			return nil
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			for _, channel := range channels {
				pipe.SRem(ctx, s.channelKey(channel), connectionID)
			}
			pipe.Del(ctx, key)
			return nil
		})
		return err
	}

	var err error
	for i := 0; i < maxWatchRetries; i++ {
		err = s.client.Watch(ctx, txf, key)
		if !errors.Is(err, redis.TxFailedErr) {
			break
		}
	}
	if err != nil {
		return 0, sundaerooms.WrapStorageError("remove memberships", err)
	}
	return removed, nil
}

func (s *Store) ListAllConnectionIDs(ctx context.Context) ([]string, error) {
	ids, err := s.client.ZRange(ctx, s.connectionsKey(), 0, -1).Result()
	if err != nil {
		return nil, sundaerooms.WrapStorageError("list connections", err)
	}
	return sundaerooms.Distinct(ids, ""), nil
}

func (s *Store) ListDistinctConnectionIDsInChannels(ctx context.Context, channelNames []string, excluding string) ([]string, error) {
	if len(channelNames) == 0 {
		return nil, nil
	}

	keys := make([]string, 0, len(channelNames))
	for _, channel := range channelNames {
		keys = append(keys, s.channelKey(channel))
	}

	ids, err := s.client.SUnion(ctx, keys...).Result()
	if err != nil {
		return nil, sundaerooms.WrapStorageError("list channel members", err)
	}
	return sundaerooms.Distinct(ids, excluding), nil
}

func (s *Store) ListConnectionsCreatedBefore(ctx context.Context, before time.Time) ([]sundaerooms.Connection, error) {
	zs, err := s.client.ZRangeByScoreWithScores(ctx, s.connectionsKey(), &redis.ZRangeBy{
		Min: "-inf",
		Max: "(" + strconv.FormatInt(before.UnixMilli(), 10),
	}).Result()
	if err != nil {
		return nil, sundaerooms.WrapStorageError("list stale connections", err)
	}

	conns := make([]sundaerooms.Connection, 0, len(zs))
	for _, z := range zs {
		id, _ := z.Member.(string)
		conns = append(conns, sundaerooms.Connection{
			ConnectionID: id,
			CreatedAt:    time.UnixMilli(int64(z.Score)),
		})
	}
	return conns, nil
}
