package sundaerooms

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/awserr"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/apigatewaymanagementapi"
	"github.com/aws/aws-sdk-go/service/apigatewaymanagementapi/apigatewaymanagementapiiface"
)

// GatewayTransport pushes through the API Gateway Management API.
type GatewayTransport struct {
	// NewClient builds a client for an endpoint; defaults to a session-backed
	// apigatewaymanagementapi client.
	NewClient func(endpoint string) apigatewaymanagementapiiface.ApiGatewayManagementApiAPI

	// clients caches API Gateway Management API clients by endpoint
	mu      sync.RWMutex
	clients map[string]apigatewaymanagementapiiface.ApiGatewayManagementApiAPI
}

func NewGatewayTransport() *GatewayTransport {
	return &GatewayTransport{}
}

func (t *GatewayTransport) Push(ctx context.Context, tc TransportContext, connectionID string, payload []byte) error {
	client := t.client(tc.Endpoint())
	_, err := client.PostToConnectionWithContext(ctx, &apigatewaymanagementapi.PostToConnectionInput{
		ConnectionId: aws.String(connectionID),
		Data:         payload,
	})
	if err != nil {
		if isGoneException(err) {
			return fmt.Errorf("%w: %v", ErrGone, err)
		}
		return fmt.Errorf("posting to connection %v: %w", connectionID, err)
	}
	return nil
}

func (t *GatewayTransport) client(endpoint string) apigatewaymanagementapiiface.ApiGatewayManagementApiAPI {
	t.mu.RLock()
	if client, ok := t.clients[endpoint]; ok {
		t.mu.RUnlock()
		return client
	}
	t.mu.RUnlock()

	t.mu.Lock()
	defer t.mu.Unlock()

	// Double-check after acquiring write lock
	if client, ok := t.clients[endpoint]; ok {
		return client
	}

	if t.clients == nil {
		t.clients = make(map[string]apigatewaymanagementapiiface.ApiGatewayManagementApiAPI)
	}

	newClient := t.NewClient
	if newClient == nil {
		newClient = newManagementClient
	}
	client := newClient(endpoint)
	t.clients[endpoint] = client
	return client
}

func newManagementClient(endpoint string) apigatewaymanagementapiiface.ApiGatewayManagementApiAPI {
	sess := session.Must(session.NewSession(aws.NewConfig().WithEndpoint(endpoint)))
	return apigatewaymanagementapi.New(sess)
}

// isGoneException reports whether err is a GoneException (HTTP 410), meaning
// the WebSocket connection no longer exists.
func isGoneException(err error) bool {
	var rf awserr.RequestFailure
	if errors.As(err, &rf) && rf.StatusCode() == http.StatusGone {
		return true
	}
	var ae awserr.Error
	return errors.As(err, &ae) && ae.Code() == apigatewaymanagementapi.ErrCodeGoneException
}
