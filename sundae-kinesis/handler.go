// Package sundaekinesis provides utilities for building AWS Kinesis consumers
// that run either behind a Lambda event source or, in console mode, by
// reading the stream directly.
package sundaekinesis

import (
	"context"
	"fmt"

	sundaecli "github.com/SundaeSwap-finance/sundae-rooms/sundae-cli"
	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambda"
	"github.com/aws/aws-sdk-go/aws"
	consumer "github.com/harlow/kinesis-consumer"
	"github.com/rs/zerolog"
)

type HandleRecordCallback func(ctx context.Context, data []byte) error

type KinesisSequenceNumberKeyType string

var KinesisSequenceNumberKey = KinesisSequenceNumberKeyType("kinesisSequenceNumber")

// Handler feeds each record's data to a callback. A record the callback
// rejects is logged and skipped.
type Handler struct {
	Service sundaecli.Service
	Logger  zerolog.Logger

	handleRecord HandleRecordCallback
}

func NewHandler(service sundaecli.Service, logger zerolog.Logger, handleRecord HandleRecordCallback) *Handler {
	return &Handler{
		Service:      service,
		Logger:       logger,
		handleRecord: handleRecord,
	}
}

func (h *Handler) Start(ctx context.Context, streamName string) error {
	if !sundaecli.CommonOpts.Console {
		lambda.Start(h.HandleKinesisEvent)
		return nil
	}
	return h.handleRealtime(ctx, StreamName(streamName))
}

func (h *Handler) HandleKinesisEvent(ctx context.Context, event events.KinesisEvent) error {
	ctx = h.Logger.WithContext(ctx)
	for _, r := range event.Records {
		h.handleSingleRecord(ctx, r.EventID, r.Kinesis.SequenceNumber, r.Kinesis.Data)
	}
	return nil
}

func (h *Handler) handleSingleRecord(ctx context.Context, eventID, sequenceNumber string, data []byte) {
	ctx = context.WithValue(ctx, KinesisSequenceNumberKey, sequenceNumber)
	if err := h.handleRecord(ctx, data); err != nil {
		h.Logger.Error().Err(err).
			Str("event_id", eventID).
			Str("sequence_number", sequenceNumber).
			Msg("failed to process kinesis record")
	}
}

func (h *Handler) handleRealtime(ctx context.Context, streamName string) error {
	c, err := consumer.New(streamName, Options()...)
	if err != nil {
		return fmt.Errorf("unable to create consumer for stream %v: %w", streamName, err)
	}

	ctx = h.Logger.WithContext(ctx)
	h.Logger.Info().Str("stream", streamName).Msg("listening")
	return c.Scan(ctx, func(record *consumer.Record) error {
		h.handleSingleRecord(ctx, "", aws.StringValue(record.SequenceNumber), record.Data)
		return nil
	})
}
