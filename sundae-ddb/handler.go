// Package sundaeddb provides DynamoDB and DAX client utilities along with a
// stream handler used to react to rows leaving the rooms tables.
package sundaeddb

import (
	"context"
	"encoding/json"
	"fmt"

	sundaecli "github.com/SundaeSwap-finance/sundae-rooms/sundae-cli"
	"github.com/aws/aws-lambda-go/lambda"
	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/service/dynamodb"
	"github.com/aws/aws-sdk-go/service/dynamodb/dynamodbattribute"
	"github.com/aws/aws-sdk-go/service/dynamodbstreams"
	"github.com/aws/aws-sdk-go/service/dynamodbstreams/dynamodbstreamsiface"
	"github.com/rs/zerolog"
	"github.com/savaki/ddb"
	"golang.org/x/sync/errgroup"
)

const (
	EventInsert = "INSERT"
	EventModify = "MODIFY"
	EventRemove = "REMOVE"
)

type RemoveCallback func(ctx context.Context, oldValue map[string]*dynamodb.AttributeValue) error

// StreamHandler dispatches DynamoDB stream records. Only REMOVE records are of
// interest to the rooms services; inserts and updates are skipped.
type StreamHandler struct {
	service   sundaecli.Service
	Logger    zerolog.Logger
	TableName string

	onRemove RemoveCallback
}

func NewRemoveHandler(service sundaecli.Service, logger zerolog.Logger, tableName string, onRemove RemoveCallback) *StreamHandler {
	return &StreamHandler{
		service:   service,
		Logger:    logger,
		TableName: tableName,
		onRemove:  onRemove,
	}
}

func (h *StreamHandler) Start(ctx context.Context) error {
	switch {
	case sundaecli.CommonOpts.Console:
		return h.handleRealtime(ctx, dynamodbstreams.New(Session()))

	default:
		lambda.Start(h.HandleEvent)
	}
	return nil
}

func (h *StreamHandler) HandleEvent(ctx context.Context, event ddb.Event) error {
	ctx = h.Logger.WithContext(ctx)
	h.Logger.Trace().Int("count", len(event.Records)).Msg("handling a batch of stream records")
	for _, record := range event.Records {
		if err := h.HandleSingleRecord(ctx, record); err != nil {
			h.Logger.Error().Err(err).Str("event", record.EventID).Msg("unable to handle record")
			return fmt.Errorf("unable to handle record: %w", err)
		}
	}
	return nil
}

func (h *StreamHandler) HandleSingleRecord(ctx context.Context, record ddb.Record) error {
	if record.EventName != EventRemove || h.onRemove == nil {
		return nil
	}
	return h.onRemove(ctx, record.Change.OldImage)
}

// handleRealtime tails every shard of the table stream from LATEST; used when
// running locally instead of behind a Lambda event source mapping.
func (h *StreamHandler) handleRealtime(ctx context.Context, streams dynamodbstreamsiface.DynamoDBStreamsAPI) error {
	ss, err := streams.ListStreamsWithContext(ctx, &dynamodbstreams.ListStreamsInput{
		TableName: aws.String(h.TableName),
	})
	if err != nil {
		return fmt.Errorf("unable to list streams for table %v: %w", h.TableName, err)
	}
	if len(ss.Streams) != 1 {
		return fmt.Errorf("too few or too many streams (%v) for table %v", len(ss.Streams), h.TableName)
	}
	stream := ss.Streams[0]

	var shards []*dynamodbstreams.Shard
	var lastShard *string
	for {
		ds, err := streams.DescribeStreamWithContext(ctx, &dynamodbstreams.DescribeStreamInput{
			StreamArn:             stream.StreamArn,
			ExclusiveStartShardId: lastShard,
		})
		if err != nil {
			return fmt.Errorf("unable to describe stream %v: %w", *stream.StreamArn, err)
		}
		shards = append(shards, ds.StreamDescription.Shards...)
		if ds.StreamDescription.LastEvaluatedShardId == nil {
			break
		}
		lastShard = ds.StreamDescription.LastEvaluatedShardId
	}

	group, ctx := errgroup.WithContext(h.Logger.WithContext(ctx))
	group.SetLimit(256)

	h.Logger.Info().Str("tableName", h.TableName).Int("shardCount", len(shards)).Msg("responding to stream events")

	for _, shard := range shards {
		shard := shard
		group.Go(func() error {
			it, err := streams.GetShardIteratorWithContext(ctx, &dynamodbstreams.GetShardIteratorInput{
				StreamArn:         stream.StreamArn,
				ShardId:           shard.ShardId,
				ShardIteratorType: aws.String(dynamodbstreams.ShardIteratorTypeLatest),
			})
			if err != nil {
				return fmt.Errorf("unable to get shard iterator: %w", err)
			}

			for iterator := it.ShardIterator; iterator != nil; {
				records, err := streams.GetRecordsWithContext(ctx, &dynamodbstreams.GetRecordsInput{
					ShardIterator: iterator,
				})
				if err != nil {
					return fmt.Errorf("unable to get records: %w", err)
				}
				for _, record := range records.Records {
					// Reserialize to the ddb event type, as it's nicer to work with
					raw, err := json.Marshal(record)
					if err != nil {
						return fmt.Errorf("unable to marshal record: %w", err)
					}
					var ddbr ddb.Record
					if err := json.Unmarshal(raw, &ddbr); err != nil {
						return fmt.Errorf("unable to unmarshal record: %w", err)
					}
					if err := h.HandleSingleRecord(ctx, ddbr); err != nil {
						return fmt.Errorf("error processing record %v: %w", ddbr.EventID, err)
					}
				}
				iterator = records.NextShardIterator
			}
			return nil
		})
	}
	return group.Wait()
}

func ParseItem(item map[string]*dynamodb.AttributeValue, v interface{}) error {
	if err := dynamodbattribute.UnmarshalMap(item, v); err != nil {
		return fmt.Errorf("unable to unmarshal item: %w", err)
	}
	return nil
}
