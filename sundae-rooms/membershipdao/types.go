package membershipdao

// Membership subscribes a connection to a channel.
// MembershipID is "{connectionId}#{channelName}", so a pair is stored once.
type Membership struct {
	MembershipID string `dynamodbav:"pk" ddb:"hash"`
	ConnectionID string `dynamodbav:"connection_id" ddb:"gsi_hash:ConnectionIndex"`
	ChannelName  string `dynamodbav:"channel_name" ddb:"gsi_hash:ChannelIndex"`
	CreatedAt    int64  `dynamodbav:"created_at"` // unix millis
	TTL          int64  `dynamodbav:"ttl,omitempty"`
}

func MembershipID(connectionID, channelName string) string {
	return connectionID + "#" + channelName
}
