package sundaerooms

import (
	"context"
	"net/http"

	"github.com/aws/aws-lambda-go/events"
	"github.com/rs/zerolog"
)

// Handler handles API Gateway WebSocket events for a Server.
type Handler struct {
	Server *Server
	Logger zerolog.Logger
}

// HandleEvent routes an API Gateway WebSocket event to the appropriate handler.
func (h *Handler) HandleEvent(ctx context.Context, req events.APIGatewayWebsocketProxyRequest) (events.APIGatewayProxyResponse, error) {
	logger := h.Logger.With().
		Str("connection_id", req.RequestContext.ConnectionID).
		Str("route", req.RequestContext.RouteKey).
		Logger()
	ctx = logger.WithContext(ctx)

	switch req.RequestContext.RouteKey {
	case "$connect":
		result := h.Server.OnConnect(ctx, req.RequestContext.ConnectionID)
		if result.OK() {
			logger.Info().Msg("connection established")
		}
		return result.Response(), nil
	case "$disconnect":
		result := h.Server.OnDisconnect(ctx, req.RequestContext.ConnectionID)
		if result.OK() {
			logger.Info().Msg("connection closed")
		}
		return result.Response(), nil
	case "$default":
		return h.handleMessage(ctx, logger, req), nil
	default:
		logger.Warn().Msg("unknown route")
		return events.APIGatewayProxyResponse{StatusCode: http.StatusBadRequest}, nil
	}
}

func (h *Handler) handleMessage(ctx context.Context, logger zerolog.Logger, req events.APIGatewayWebsocketProxyRequest) events.APIGatewayProxyResponse {
	msg, err := ParseMessage(req.Body)
	if err != nil {
		logger.Warn().Err(err).Msg("invalid message")
		return events.APIGatewayProxyResponse{StatusCode: http.StatusBadRequest, Body: err.Error()}
	}

	trigger := TriggerFromRequest(req)

	switch msg.Action {
	case ActionSubscribe, ActionUnsubscribe:
		op := h.Server.Subscribe
		if msg.Action == ActionUnsubscribe {
			op = h.Server.Unsubscribe
		}
		var result Result
		for _, channel := range msg.AllChannels() {
			if result = op(ctx, channel, trigger.ConnectionID); !result.OK() {
				break
			}
		}
		logger.Info().Strs("channels", msg.AllChannels()).Int("status", result.StatusCode).Msg(msg.Action)
		return result.Response()

	case ActionEmit:
		addressing, err := NewAddressing(msg.Mode, msg.AllChannels()...)
		if err != nil {
			return events.APIGatewayProxyResponse{StatusCode: http.StatusBadRequest, Body: err.Error()}
		}
		return h.Server.Emit(ctx, trigger, addressing, msg.Event, msg.Body).Response()

	case ActionPing:
		result := h.Server.Reply(ctx, trigger, EventPong, nil)
		if !result.OK() {
			logger.Error().Str("body", result.Body).Msg("failed to send pong")
		}
		return result.Response()

	default:
		logger.Warn().Str("action", msg.Action).Msg("unhandled message action")
		return events.APIGatewayProxyResponse{StatusCode: http.StatusBadRequest}
	}
}
