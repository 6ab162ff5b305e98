package membershipdao

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/awserr"
	"github.com/aws/aws-sdk-go/service/dynamodb"
	"github.com/aws/aws-sdk-go/service/dynamodb/dynamodbattribute"
	"github.com/aws/aws-sdk-go/service/dynamodb/dynamodbiface"
	"github.com/savaki/ddb"
)

// DAO provides access to the WebSocket channel memberships table.
type DAO struct {
	table     *ddb.Table
	api       dynamodbiface.DynamoDBAPI
	tableName string
}

// New creates a new memberships DAO.
func New(api dynamodbiface.DynamoDBAPI, tableName string) *DAO {
	return &DAO{
		table:     ddb.New(api).MustTable(tableName, Membership{}),
		api:       api,
		tableName: tableName,
	}
}

// Table exposes the underlying table, e.g. to create it in tests.
func (d *DAO) Table() *ddb.Table {
	return d.table
}

// Put stores a membership record unless one already exists for the pair, and
// returns the stored record.
func (d *DAO) Put(ctx context.Context, m Membership) (Membership, error) {
	if m.MembershipID == "" {
		m.MembershipID = MembershipID(m.ConnectionID, m.ChannelName)
	}
	item, err := dynamodbattribute.MarshalMap(m)
	if err != nil {
		return Membership{}, fmt.Errorf("failed to marshal membership %v: %w", m.MembershipID, err)
	}
	_, err = d.api.PutItemWithContext(ctx, &dynamodb.PutItemInput{
		TableName:           aws.String(d.tableName),
		Item:                item,
		ConditionExpression: aws.String("attribute_not_exists(pk)"),
	})
	if err == nil {
		return m, nil
	}
	var ae awserr.Error
	if !errors.As(err, &ae) || ae.Code() != dynamodb.ErrCodeConditionalCheckFailedException {
		return Membership{}, fmt.Errorf("failed to put membership %v: %w", m.MembershipID, err)
	}
	return d.Get(ctx, m.ConnectionID, m.ChannelName)
}

// Get retrieves a single membership.
func (d *DAO) Get(ctx context.Context, connectionID, channelName string) (Membership, error) {
	id := MembershipID(connectionID, channelName)
	var m Membership
	if err := d.table.Get(id).ConsistentRead(true).ScanWithContext(ctx, &m); err != nil {
		if ddb.IsItemNotFoundError(err) {
			return Membership{}, fmt.Errorf("membership %v not found", id)
		}
		return Membership{}, fmt.Errorf("failed to get membership %v: %w", id, err)
	}
	return m, nil
}

// Delete removes a single membership.
func (d *DAO) Delete(ctx context.Context, connectionID, channelName string) error {
	id := MembershipID(connectionID, channelName)
	if err := d.table.Delete(id).RunWithContext(ctx); err != nil {
		return fmt.Errorf("failed to delete membership %v: %w", id, err)
	}
	return nil
}

// QueryByChannel returns all memberships of a channel using the ChannelIndex GSI.
func (d *DAO) QueryByChannel(ctx context.Context, channelName string) ([]Membership, error) {
	var ms []Membership
	err := d.table.Query("#ChannelName = ?", channelName).
		IndexName("ChannelIndex").
		FindAllWithContext(ctx, &ms)
	if err != nil {
		return nil, fmt.Errorf("failed to query memberships by channel %v: %w", channelName, err)
	}
	return ms, nil
}

// QueryByConnection returns all memberships of a connection using the ConnectionIndex GSI.
func (d *DAO) QueryByConnection(ctx context.Context, connectionID string) ([]Membership, error) {
	var ms []Membership
	err := d.table.Query("#ConnectionID = ?", connectionID).
		IndexName("ConnectionIndex").
		FindAllWithContext(ctx, &ms)
	if err != nil {
		return nil, fmt.Errorf("failed to query memberships by connection %v: %w", connectionID, err)
	}
	return ms, nil
}

// DeleteByConnection removes all memberships of a connection and returns how
// many there were.
func (d *DAO) DeleteByConnection(ctx context.Context, connectionID string) (int, error) {
	ms, err := d.QueryByConnection(ctx, connectionID)
	if err != nil {
		return 0, err
	}

	// Batch delete in chunks of 25 (DynamoDB limit)
	const batchSize = 25
	for i := 0; i < len(ms); i += batchSize {
		chunk := ms[i:min(i+batchSize, len(ms))]

		writeRequests := make([]*dynamodb.WriteRequest, len(chunk))
		for j, m := range chunk {
			key, err := dynamodbattribute.MarshalMap(map[string]string{"pk": m.MembershipID})
			if err != nil {
				return 0, fmt.Errorf("failed to marshal key for membership %v: %w", m.MembershipID, err)
			}
			writeRequests[j] = &dynamodb.WriteRequest{
				DeleteRequest: &dynamodb.DeleteRequest{Key: key},
			}
		}

		if err := d.batchWrite(ctx, connectionID, writeRequests); err != nil {
			return 0, err
		}
	}

	return len(ms), nil
}

// batchWrite resubmits unprocessed items with backoff, as BatchWriteItem may
// accept only part of a batch.
func (d *DAO) batchWrite(ctx context.Context, connectionID string, writeRequests []*dynamodb.WriteRequest) error {
	unprocessed := map[string][]*dynamodb.WriteRequest{
		d.tableName: writeRequests,
	}

	const maxAttempts = 5
	for attempt := 0; attempt < maxAttempts; attempt++ {
		output, err := d.api.BatchWriteItemWithContext(ctx, &dynamodb.BatchWriteItemInput{
			RequestItems: unprocessed,
		})
		if err != nil {
			return fmt.Errorf("failed to batch delete memberships for connection %v: %w", connectionID, err)
		}
		if len(output.UnprocessedItems) == 0 {
			return nil
		}
		unprocessed = output.UnprocessedItems

		backoff := time.Duration(1<<attempt) * 100 * time.Millisecond
		timer := time.NewTimer(backoff)
		select {
		case <-ctx.Done():
			timer.Stop()
			return fmt.Errorf("context cancelled during batch delete for connection %v: %w", connectionID, ctx.Err())
		case <-timer.C:
		}
	}

	return fmt.Errorf("failed to delete all memberships for connection %v: %d items unprocessed after %d attempts", connectionID, len(unprocessed[d.tableName]), maxAttempts)
}
