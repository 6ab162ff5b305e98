package sundaerooms

import (
	"context"

	sundaeddb "github.com/SundaeSwap-finance/sundae-rooms/sundae-ddb"
	"github.com/SundaeSwap-finance/sundae-rooms/sundae-rooms/connectiondao"
	"github.com/aws/aws-sdk-go/service/dynamodb"
	"github.com/rs/zerolog"
)

// Sweeper removes the memberships of connection rows DynamoDB expired via TTL.
// Wire HandleRemove to a stream handler on the connections table.
type Sweeper struct {
	Store  Store
	Logger zerolog.Logger
	Dry    bool
}

func (s *Sweeper) HandleRemove(ctx context.Context, oldValue map[string]*dynamodb.AttributeValue) error {
	var conn connectiondao.Connection
	if err := sundaeddb.ParseItem(oldValue, &conn); err != nil {
		return err
	}
	if conn.ConnectionID == "" {
		s.Logger.Warn().Msg("removed connection row has no id, skipping")
		return nil
	}

	logger := s.Logger.With().Str("connection_id", conn.ConnectionID).Logger()
	if s.Dry {
		logger.Info().Msg("would remove memberships of expired connection")
		return nil
	}

	n, err := s.Store.RemoveAllMembershipsFor(ctx, conn.ConnectionID)
	if err != nil {
		return WrapStorageError("remove memberships", err)
	}
	logger.Info().Int("memberships", n).Msg("swept expired connection")
	return nil
}
