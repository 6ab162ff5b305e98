package sundaerooms

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"testing"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/awserr"
	"github.com/aws/aws-sdk-go/aws/request"
	"github.com/aws/aws-sdk-go/service/apigatewaymanagementapi"
	"github.com/aws/aws-sdk-go/service/apigatewaymanagementapi/apigatewaymanagementapiiface"
	"github.com/tj/assert"
)

type mockManagementAPI struct {
	apigatewaymanagementapiiface.ApiGatewayManagementApiAPI
	mu     sync.Mutex
	err    error
	inputs []*apigatewaymanagementapi.PostToConnectionInput
}

func (m *mockManagementAPI) PostToConnectionWithContext(_ aws.Context, input *apigatewaymanagementapi.PostToConnectionInput, _ ...request.Option) (*apigatewaymanagementapi.PostToConnectionOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.inputs = append(m.inputs, input)
	return &apigatewaymanagementapi.PostToConnectionOutput{}, m.err
}

func TestGatewayTransport(t *testing.T) {
	var (
		ctx       = context.Background()
		api       = &mockManagementAPI{}
		endpoints []string
		transport = &GatewayTransport{
			NewClient: func(endpoint string) apigatewaymanagementapiiface.ApiGatewayManagementApiAPI {
				endpoints = append(endpoints, endpoint)
				return api
			},
		}
		tc = TransportContext{DomainName: "abc.execute-api.us-east-2.amazonaws.com", Stage: "dev"}
	)

	assert.Nil(t, transport.Push(ctx, tc, "A", []byte(`{}`)))
	assert.Nil(t, transport.Push(ctx, tc, "B", []byte(`{}`)))
	assert.Equal(t, []string{"https://abc.execute-api.us-east-2.amazonaws.com/dev"}, endpoints)
	assert.Equal(t, "B", aws.StringValue(api.inputs[1].ConnectionId))

	api.err = awserr.New(apigatewaymanagementapi.ErrCodeGoneException, "gone", nil)
	err := transport.Push(ctx, tc, "A", []byte(`{}`))
	assert.True(t, errors.Is(err, ErrGone))

	api.err = awserr.NewRequestFailure(awserr.New("Unknown", "gone", nil), http.StatusGone, "req")
	err = transport.Push(ctx, tc, "A", []byte(`{}`))
	assert.True(t, errors.Is(err, ErrGone))

	api.err = awserr.New("LimitExceededException", "slow down", nil)
	err = transport.Push(ctx, tc, "A", []byte(`{}`))
	assert.NotNil(t, err)
	assert.False(t, errors.Is(err, ErrGone))
}
