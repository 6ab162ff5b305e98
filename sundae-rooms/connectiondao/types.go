package connectiondao

// Connection represents a WebSocket connection stored in DynamoDB. TTL lets
// DynamoDB expire rows whose $disconnect never arrived.
type Connection struct {
	ConnectionID string `dynamodbav:"pk" ddb:"hash"`
	CreatedAt    int64  `dynamodbav:"created_at"` // unix millis
	TTL          int64  `dynamodbav:"ttl,omitempty"`
}
