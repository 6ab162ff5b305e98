// Package publish lets back-end services emit to rooms through the rooms
// events stream, which the dispatcher fans out to WebSocket connections.
package publish

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/kinesis"
	"github.com/aws/aws-sdk-go/service/kinesis/kinesisiface"
)

// Envelope is the message format published to the rooms events stream.
type Envelope struct {
	Mode       string          `json:"mode"` // broadcast, to or in
	Channels   []string        `json:"channels,omitempty"`
	Sender     string          `json:"sender,omitempty"` // excluded when mode is "to"
	Event      string          `json:"event"`
	Body       json.RawMessage `json:"body,omitempty"`
	DomainName string          `json:"domainName"`
	Stage      string          `json:"stage"`
}

// PartitionKey keeps emits to the same room ordered within a shard. Kinesis
// rejects empty keys, so envelopes without a mode use "none".
func (e Envelope) PartitionKey() string {
	if len(e.Channels) > 0 && e.Channels[0] != "" {
		return e.Channels[0]
	}
	if e.Mode != "" {
		return e.Mode
	}
	return "none"
}

// NewEnvelope marshals payload into an envelope body.
func NewEnvelope(mode string, channels []string, event string, payload interface{}) (Envelope, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return Envelope{}, fmt.Errorf("marshalling payload: %w", err)
	}
	return Envelope{
		Mode:     mode,
		Channels: channels,
		Event:    event,
		Body:     body,
	}, nil
}

// Publisher publishes envelopes to the rooms Kinesis stream.
type Publisher struct {
	client     kinesisiface.KinesisAPI
	streamName string
	domainName string
	stage      string
}

// New creates a Publisher. domainName and stage identify the WebSocket API
// deployment the dispatcher should push through.
func New(client kinesisiface.KinesisAPI, streamName, domainName, stage string) *Publisher {
	return &Publisher{
		client:     client,
		streamName: streamName,
		domainName: domainName,
		stage:      stage,
	}
}

// Build creates a Publisher using the standard stream name for the given
// environment.
func Build(env, domainName, stage string) *Publisher {
	sess := session.Must(session.NewSession(aws.NewConfig()))
	return New(kinesis.New(sess), StreamName(env), domainName, stage)
}

// StreamName returns the Kinesis stream name for the given environment.
func StreamName(env string) string {
	return env + "-sundae-rooms-events"
}

// Send publishes e, filling in the deployment when e doesn't name one.
func (p *Publisher) Send(ctx context.Context, e Envelope) error {
	if e.DomainName == "" {
		e.DomainName, e.Stage = p.domainName, p.stage
	}

	data, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("marshalling envelope: %w", err)
	}

	_, err = p.client.PutRecordWithContext(ctx, &kinesis.PutRecordInput{
		StreamName:   aws.String(p.streamName),
		PartitionKey: aws.String(e.PartitionKey()),
		Data:         data,
	})
	if err != nil {
		return fmt.Errorf("publishing to kinesis stream %v: %w", p.streamName, err)
	}

	return nil
}

func (p *Publisher) send(ctx context.Context, mode string, channels []string, event string, payload interface{}) error {
	e, err := NewEnvelope(mode, channels, event, payload)
	if err != nil {
		return err
	}
	return p.Send(ctx, e)
}

// Broadcast publishes an emit to every connection.
func (p *Publisher) Broadcast(ctx context.Context, event string, payload interface{}) error {
	return p.send(ctx, "broadcast", nil, event, payload)
}

// To publishes an emit to every member of channels except sender.
func (p *Publisher) To(ctx context.Context, channels []string, sender, event string, payload interface{}) error {
	e, err := NewEnvelope("to", channels, event, payload)
	if err != nil {
		return err
	}
	e.Sender = sender
	return p.Send(ctx, e)
}

// In publishes an emit to every member of channels.
func (p *Publisher) In(ctx context.Context, channels []string, event string, payload interface{}) error {
	return p.send(ctx, "in", channels, event, payload)
}
