package connectiondao

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/awserr"
	"github.com/aws/aws-sdk-go/service/dynamodb"
	"github.com/aws/aws-sdk-go/service/dynamodb/dynamodbattribute"
	"github.com/aws/aws-sdk-go/service/dynamodb/dynamodbiface"
	"github.com/savaki/ddb"
)

// DAO provides access to the WebSocket connections table.
type DAO struct {
	table     *ddb.Table
	api       dynamodbiface.DynamoDBAPI
	tableName string
}

// New creates a new connections DAO.
func New(api dynamodbiface.DynamoDBAPI, tableName string) *DAO {
	return &DAO{
		table:     ddb.New(api).MustTable(tableName, Connection{}),
		api:       api,
		tableName: tableName,
	}
}

// Table exposes the underlying table, e.g. to create it in tests.
func (d *DAO) Table() *ddb.Table {
	return d.table
}

// Put stores a connection record unless one already exists for the id, and
// returns the stored record.
func (d *DAO) Put(ctx context.Context, conn Connection) (Connection, error) {
	item, err := dynamodbattribute.MarshalMap(conn)
	if err != nil {
		return Connection{}, fmt.Errorf("failed to marshal connection %v: %w", conn.ConnectionID, err)
	}
	_, err = d.api.PutItemWithContext(ctx, &dynamodb.PutItemInput{
		TableName:           aws.String(d.tableName),
		Item:                item,
		ConditionExpression: aws.String("attribute_not_exists(pk)"),
	})
	if err == nil {
		return conn, nil
	}
	var ae awserr.Error
	if !errors.As(err, &ae) || ae.Code() != dynamodb.ErrCodeConditionalCheckFailedException {
		return Connection{}, fmt.Errorf("failed to put connection %v: %w", conn.ConnectionID, err)
	}
	existing, err := d.Get(ctx, conn.ConnectionID)
	if err != nil {
		return Connection{}, err
	}
	return *existing, nil
}

// Get retrieves a connection record by ID.
func (d *DAO) Get(ctx context.Context, connectionID string) (*Connection, error) {
	var conn Connection
	if err := d.table.Get(connectionID).ConsistentRead(true).ScanWithContext(ctx, &conn); err != nil {
		if ddb.IsItemNotFoundError(err) {
			return nil, fmt.Errorf("connection %v not found", connectionID)
		}
		return nil, fmt.Errorf("failed to get connection %v: %w", connectionID, err)
	}
	return &conn, nil
}

// Delete removes a connection record by ID.
func (d *DAO) Delete(ctx context.Context, connectionID string) error {
	if err := d.table.Delete(connectionID).RunWithContext(ctx); err != nil {
		return fmt.Errorf("failed to delete connection %v: %w", connectionID, err)
	}
	return nil
}

// All scans the whole table. Connection tables stay small (one row per open
// socket) so a scan is acceptable for broadcast.
func (d *DAO) All(ctx context.Context) ([]Connection, error) {
	return d.scan(ctx, nil)
}

// CreatedBefore returns the connections created before the unix millis
// timestamp, oldest first.
func (d *DAO) CreatedBefore(ctx context.Context, before int64) ([]Connection, error) {
	filter := &dynamodb.ScanInput{
		FilterExpression:         aws.String("#created_at < :before"),
		ExpressionAttributeNames: map[string]*string{"#created_at": aws.String("created_at")},
		ExpressionAttributeValues: map[string]*dynamodb.AttributeValue{
			":before": {N: aws.String(fmt.Sprint(before))},
		},
	}
	conns, err := d.scan(ctx, filter)
	if err != nil {
		return nil, err
	}
	sort.Slice(conns, func(i, j int) bool { return conns[i].CreatedAt < conns[j].CreatedAt })
	return conns, nil
}

func (d *DAO) scan(ctx context.Context, input *dynamodb.ScanInput) ([]Connection, error) {
	if input == nil {
		input = &dynamodb.ScanInput{}
	}
	input.TableName = aws.String(d.tableName)
	input.ConsistentRead = aws.Bool(true)

	var (
		conns     []Connection
		decodeErr error
	)
	err := d.api.ScanPagesWithContext(ctx, input, func(page *dynamodb.ScanOutput, _ bool) bool {
		var batch []Connection
		if decodeErr = dynamodbattribute.UnmarshalListOfMaps(page.Items, &batch); decodeErr != nil {
			return false
		}
		conns = append(conns, batch...)
		return true
	})
	if err != nil {
		return nil, fmt.Errorf("failed to scan connections table %v: %w", d.tableName, err)
	}
	if decodeErr != nil {
		return nil, fmt.Errorf("failed to decode connections: %w", decodeErr)
	}
	return conns, nil
}
