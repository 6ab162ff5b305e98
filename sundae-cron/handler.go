// Package sundaecron provides utilities for building scheduled Lambda functions.
package sundaecron

import (
	"context"
	"encoding/json"

	sundaecli "github.com/SundaeSwap-finance/sundae-rooms/sundae-cli"
	"github.com/aws/aws-lambda-go/lambda"
	"github.com/rs/zerolog"
)

type RunCallback func(ctx context.Context) error

type Handler struct {
	service sundaecli.Service
	logger  zerolog.Logger

	runOnce RunCallback
}

func NewHandler(
	service sundaecli.Service,
	logger zerolog.Logger,
	runOnce RunCallback,
) *Handler {
	return &Handler{
		service: service,
		logger:  logger,
		runOnce: runOnce,
	}
}

// RunOnce is the Lambda entry point; the scheduled event payload is ignored.
func (h *Handler) RunOnce(ctx context.Context, _ json.RawMessage) error {
	h.logger.Info().Msg("running scheduled task")
	if err := h.runOnce(h.logger.WithContext(ctx)); err != nil {
		h.logger.Error().Err(err).Msg("scheduled task failed")
		return err
	}
	return nil
}

func (h *Handler) Start(ctx context.Context) error {
	switch {
	case sundaecli.CommonOpts.Console:
		return h.RunOnce(ctx, nil)

	default:
		lambda.Start(h.RunOnce)
	}
	return nil
}
