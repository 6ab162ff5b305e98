package sundaerooms

import (
	"context"
	"fmt"

	"github.com/aws/aws-lambda-go/events"
)

// TransportContext identifies the API Gateway deployment a push goes through.
type TransportContext struct {
	DomainName string
	Stage      string
}

// Endpoint is the management API endpoint for the deployment.
func (tc TransportContext) Endpoint() string {
	return fmt.Sprintf("https://%s/%s", tc.DomainName, tc.Stage)
}

// Trigger describes the inbound event an emit is made on behalf of.
// ConnectionID is empty for emits that don't originate from a client.
type Trigger struct {
	TransportContext
	ConnectionID string
}

func TriggerFromRequest(req events.APIGatewayWebsocketProxyRequest) Trigger {
	return Trigger{
		TransportContext: TransportContext{
			DomainName: req.RequestContext.DomainName,
			Stage:      req.RequestContext.Stage,
		},
		ConnectionID: req.RequestContext.ConnectionID,
	}
}

// Transport pushes a payload to a single connection. Implementations return an
// error wrapping ErrGone when the connection no longer exists.
type Transport interface {
	Push(ctx context.Context, tc TransportContext, connectionID string, payload []byte) error
}

// TransportFunc adapts a function to Transport.
type TransportFunc func(ctx context.Context, tc TransportContext, connectionID string, payload []byte) error

func (fn TransportFunc) Push(ctx context.Context, tc TransportContext, connectionID string, payload []byte) error {
	return fn(ctx, tc, connectionID, payload)
}
