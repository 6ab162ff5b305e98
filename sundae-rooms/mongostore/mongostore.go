// Package mongostore keeps the rooms registry in MongoDB.
//
// Connections live in the socketconnections collection and memberships in
// socketchannels. Timestamps are stored as unix milliseconds.
package mongostore

import (
	"context"
	"fmt"
	"time"

	sundaerooms "github.com/SundaeSwap-finance/sundae-rooms/sundae-rooms"
	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
)

const (
	ConnectionsCollection = "socketconnections"
	ChannelsCollection    = "socketchannels"
)

type connectionDoc struct {
	ConnectionID string `bson:"connectionId"`
	CreatedAt    int64  `bson:"createdAt"`
}

type channelDoc struct {
	ConnectionID string `bson:"connectionId"`
	ChannelName  string `bson:"channelName"`
	CreatedAt    int64  `bson:"createdAt"`
}

// Store implements sundaerooms.Store on a mongo database.
type Store struct {
	connections *mongo.Collection
	channels    *mongo.Collection
	now         func() time.Time
}

func New(db *mongo.Database) *Store {
	return &Store{
		connections: db.Collection(ConnectionsCollection),
		channels:    db.Collection(ChannelsCollection),
		now:         time.Now,
	}
}

// EnsureIndexes creates the unique keys the upserts rely on, plus the lookup
// indexes used by fan-out and the reaper.
func (s *Store) EnsureIndexes(ctx context.Context) error {
	_, err := s.connections.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "connectionId", Value: 1}}, Options: options.Index().SetUnique(true)},
		{Keys: bson.D{{Key: "createdAt", Value: 1}}},
	})
	if err != nil {
		return fmt.Errorf("failed to create %v indexes: %w", ConnectionsCollection, err)
	}

	_, err = s.channels.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "connectionId", Value: 1}, {Key: "channelName", Value: 1}}, Options: options.Index().SetUnique(true)},
		{Keys: bson.D{{Key: "channelName", Value: 1}}},
	})
	if err != nil {
		return fmt.Errorf("failed to create %v indexes: %w", ChannelsCollection, err)
	}
	return nil
}

func (s *Store) AddConnection(ctx context.Context, connectionID string) (sundaerooms.Connection, error) {
	var (
		filter = bson.D{{Key: "connectionId", Value: connectionID}}
		update = bson.D{{Key: "$setOnInsert", Value: bson.D{{Key: "createdAt", Value: s.now().UnixMilli()}}}}
		opts   = options.FindOneAndUpdate().SetUpsert(true).SetReturnDocument(options.After)
		doc    connectionDoc
	)

	err := s.connections.FindOneAndUpdate(ctx, filter, update, opts).Decode(&doc)
	if mongo.IsDuplicateKeyError(err) {
		// lost an upsert race; the row now exists
		err = s.connections.FindOne(ctx, filter).Decode(&doc)
	}
	if err != nil {
		return sundaerooms.Connection{}, sundaerooms.WrapStorageError("add connection", err)
	}
	return sundaerooms.Connection{ConnectionID: doc.ConnectionID, CreatedAt: time.UnixMilli(doc.CreatedAt)}, nil
}

func (s *Store) RemoveConnection(ctx context.Context, connectionID string) error {
	if _, err := s.RemoveAllMembershipsFor(ctx, connectionID); err != nil {
		return err
	}
	if _, err := s.connections.DeleteOne(ctx, bson.D{{Key: "connectionId", Value: connectionID}}); err != nil {
		return sundaerooms.WrapStorageError("remove connection", err)
	}
	return nil
}

func (s *Store) AddMembership(ctx context.Context, connectionID, channelName string) (sundaerooms.Membership, error) {
	var (
		filter = bson.D{
			{Key: "connectionId", Value: connectionID},
			{Key: "channelName", Value: channelName},
		}
		update = bson.D{{Key: "$setOnInsert", Value: bson.D{{Key: "createdAt", Value: s.now().UnixMilli()}}}}
		opts   = options.FindOneAndUpdate().SetUpsert(true).SetReturnDocument(options.After)
		doc    channelDoc
	)

	err := s.channels.FindOneAndUpdate(ctx, filter, update, opts).Decode(&doc)
	if mongo.IsDuplicateKeyError(err) {
		err = s.channels.FindOne(ctx, filter).Decode(&doc)
	}
	if err != nil {
		return sundaerooms.Membership{}, sundaerooms.WrapStorageError("add membership", err)
	}
	return sundaerooms.Membership{
		ConnectionID: doc.ConnectionID,
		ChannelName:  doc.ChannelName,
		CreatedAt:    time.UnixMilli(doc.CreatedAt),
	}, nil
}

func (s *Store) RemoveMembership(ctx context.Context, connectionID, channelName string) error {
	filter := bson.D{
		{Key: "connectionId", Value: connectionID},
		{Key: "channelName", Value: channelName},
	}
	if _, err := s.channels.DeleteMany(ctx, filter); err != nil {
		return sundaerooms.WrapStorageError("remove membership", err)
	}
	return nil
}

func (s *Store) RemoveAllMembershipsFor(ctx context.Context, connectionID string) (int, error) {
	result, err := s.channels.DeleteMany(ctx, bson.D{{Key: "connectionId", Value: connectionID}})
	if err != nil {
		return 0, sundaerooms.WrapStorageError("remove memberships", err)
	}
	return int(result.DeletedCount), nil
}

func (s *Store) ListAllConnectionIDs(ctx context.Context) ([]string, error) {
	var ids []string
	if err := s.connections.Distinct(ctx, "connectionId", bson.D{}).Decode(&ids); err != nil {
		return nil, sundaerooms.WrapStorageError("list connections", err)
	}
	return sundaerooms.Distinct(ids, ""), nil
}

func (s *Store) ListDistinctConnectionIDsInChannels(ctx context.Context, channelNames []string, excluding string) ([]string, error) {
	if len(channelNames) == 0 {
		return nil, nil
	}

	filter := bson.D{{Key: "channelName", Value: bson.D{{Key: "$in", Value: channelNames}}}}
	if excluding != "" {
		filter = append(filter, bson.E{Key: "connectionId", Value: bson.D{{Key: "$ne", Value: excluding}}})
	}

	var ids []string
	if err := s.channels.Distinct(ctx, "connectionId", filter).Decode(&ids); err != nil {
		return nil, sundaerooms.WrapStorageError("list channel members", err)
	}
	return sundaerooms.Distinct(ids, excluding), nil
}

func (s *Store) ListConnectionsCreatedBefore(ctx context.Context, before time.Time) ([]sundaerooms.Connection, error) {
	var (
		filter = bson.D{{Key: "createdAt", Value: bson.D{{Key: "$lt", Value: before.UnixMilli()}}}}
		opts   = options.Find().SetSort(bson.D{{Key: "createdAt", Value: 1}, {Key: "connectionId", Value: 1}})
	)

	cursor, err := s.connections.Find(ctx, filter, opts)
	if err != nil {
		return nil, sundaerooms.WrapStorageError("list stale connections", err)
	}

	var docs []connectionDoc
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, sundaerooms.WrapStorageError("list stale connections", err)
	}

	conns := make([]sundaerooms.Connection, 0, len(docs))
	for _, doc := range docs {
		conns = append(conns, sundaerooms.Connection{
			ConnectionID: doc.ConnectionID,
			CreatedAt:    time.UnixMilli(doc.CreatedAt),
		})
	}
	return conns, nil
}
