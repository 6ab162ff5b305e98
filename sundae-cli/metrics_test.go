package sundaecli

import (
	"context"
	"testing"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/request"
	"github.com/aws/aws-sdk-go/service/cloudwatch"
	"github.com/aws/aws-sdk-go/service/cloudwatch/cloudwatchiface"
	"github.com/tj/assert"
)

type mockCloudWatch struct {
	cloudwatchiface.CloudWatchAPI
	inputs []*cloudwatch.PutMetricDataInput
}

func (m *mockCloudWatch) PutMetricDataWithContext(_ aws.Context, input *cloudwatch.PutMetricDataInput, _ ...request.Option) (*cloudwatch.PutMetricDataOutput, error) {
	m.inputs = append(m.inputs, input)
	return &cloudwatch.PutMetricDataOutput{}, nil
}

func TestMetrics(t *testing.T) {
	api := &mockCloudWatch{}
	service := NewService("rooms-test")
	metrics := NewMetrics(service, api)

	metrics.Gauge(context.Background(), DeliveredMetric, 3, map[DimensionName]string{OperationNameDimension: "in"})
	assert.Len(t, api.inputs, 1)

	input := api.inputs[0]
	assert.Equal(t, DefaultNamespace, aws.StringValue(input.Namespace))
	assert.Equal(t, "RoomsDelivered", aws.StringValue(input.MetricData[0].MetricName))
	assert.Equal(t, 3.0, aws.Float64Value(input.MetricData[0].Value))

	dimensions := map[string]string{}
	for _, d := range input.MetricData[0].Dimensions {
		dimensions[aws.StringValue(d.Name)] = aws.StringValue(d.Value)
	}
	assert.Equal(t, "in", dimensions["OperationName"])
	assert.Equal(t, "rooms-test", dimensions["Service"])
}

func TestMetricsNamespace(t *testing.T) {
	assert.Equal(t, DefaultNamespace, Service{Name: "bare"}.MetricsNamespace())
	assert.Equal(t, "staging-rooms", Service{Name: "x", Namespace: "staging-rooms"}.MetricsNamespace())
}
