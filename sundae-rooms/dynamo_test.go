package sundaerooms_test

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	sundaerooms "github.com/SundaeSwap-finance/sundae-rooms/sundae-rooms"
	"github.com/SundaeSwap-finance/sundae-rooms/sundae-rooms/storetest"
	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/credentials"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/dynamodb"
	"github.com/savaki/ddb"
	"github.com/tj/assert"
)

// TestDynamoStore needs DynamoDB Local, e.g. DYNAMODB_LOCAL=http://localhost:8000.
func TestDynamoStore(t *testing.T) {
	endpoint := os.Getenv("DYNAMODB_LOCAL")
	if endpoint == "" {
		t.Skip("DYNAMODB_LOCAL not set")
	}

	var (
		s = session.Must(session.NewSession(aws.NewConfig().
			WithCredentials(credentials.NewStaticCredentials("blah", "blah", "")).
			WithEndpoint(endpoint).
			WithRegion("us-west-2")))
		api = dynamodb.New(s)
	)

	storetest.Run(t, func(t *testing.T) sundaerooms.Store {
		ctx := context.Background()
		store := sundaerooms.NewDynamoStore(api, fmt.Sprintf("test-%v", time.Now().UnixNano()), time.Hour)

		for _, table := range []*ddb.Table{store.Connections.Table(), store.Memberships.Table()} {
			table := table
			assert.Nil(t, table.CreateTableIfNotExists(ctx))
			t.Cleanup(func() { table.DeleteTableIfExists(ctx) })
		}
		return store
	})
}
