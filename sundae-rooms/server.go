// Package sundaerooms layers socket.io style rooms (to, in, broadcast, emit,
// subscribe and unsubscribe) over the API Gateway WebSocket push API.
//
// A Server owns the connection registry (a Store) and a Transport. Lifecycle
// and subscription calls keep the registry current; emits resolve an
// Addressing against it and fan the envelope out to every target, removing
// connections the transport reports as gone.
package sundaerooms

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	sundaecli "github.com/SundaeSwap-finance/sundae-rooms/sundae-cli"
	"github.com/aws/aws-lambda-go/events"
	"github.com/rs/zerolog"
)

// Metrics is the subset of sundaecli.Metrics the server reports to.
type Metrics interface {
	Event(ctx context.Context, name sundaecli.MetricName, dimensions ...map[sundaecli.DimensionName]string)
	Gauge(ctx context.Context, name sundaecli.MetricName, value float64, dimensions ...map[sundaecli.DimensionName]string)
}

// Result is the outcome of a public Server operation. Operations never return
// errors; failures are reported through StatusCode and Body.
type Result struct {
	StatusCode int    `json:"statusCode"`
	Body       string `json:"body"`
	Delivered  int    `json:"delivered,omitempty"`
}

func (r Result) OK() bool {
	return r.StatusCode >= 200 && r.StatusCode < 300
}

func (r Result) Response() events.APIGatewayProxyResponse {
	return events.APIGatewayProxyResponse{StatusCode: r.StatusCode, Body: r.Body}
}

func ok(body string) Result {
	return Result{StatusCode: http.StatusOK, Body: body}
}

func errorResult(err error) Result {
	switch {
	case errors.Is(err, ErrMissingIdentifier), errors.Is(err, ErrMissingChannel):
		return Result{StatusCode: http.StatusNotFound, Body: err.Error()}
	case errors.Is(err, ErrInvalidBody):
		return Result{StatusCode: http.StatusBadRequest, Body: err.Error()}
	default:
		return Result{StatusCode: http.StatusInternalServerError, Body: err.Error()}
	}
}

type Option func(*Server)

func WithLogger(logger zerolog.Logger) Option {
	return func(s *Server) {
		s.logger = logger
	}
}

func WithMetrics(metrics Metrics) Option {
	return func(s *Server) {
		s.metrics = metrics
	}
}

// WithConcurrency caps concurrent pushes per emit.
func WithConcurrency(n int) Option {
	return func(s *Server) {
		s.concurrency = n
	}
}

// Server is safe for concurrent use; it holds no per-emit state.
type Server struct {
	store       Store
	transport   Transport
	logger      zerolog.Logger
	metrics     Metrics
	concurrency int

	resolver  Resolver
	lifecycle *Lifecycle
	engine    *Engine
}

func New(store Store, transport Transport, opts ...Option) *Server {
	s := &Server{
		store:     store,
		transport: transport,
		logger:    zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(s)
	}

	s.resolver = Resolver{Store: store}
	s.lifecycle = &Lifecycle{Store: store, Logger: s.logger}
	s.engine = &Engine{
		Transport:   transport,
		Lifecycle:   s.lifecycle,
		Logger:      s.logger,
		Concurrency: s.concurrency,
	}
	return s
}

func (s *Server) OnConnect(ctx context.Context, connectionID string) Result {
	if _, err := s.lifecycle.OnConnect(ctx, connectionID); err != nil {
		s.logger.Error().Err(err).Str("connection_id", connectionID).Msg("addConnection failed")
		return errorResult(err)
	}
	return ok("Connected.")
}

func (s *Server) OnDisconnect(ctx context.Context, connectionID string) Result {
	if err := s.lifecycle.OnDisconnect(ctx, connectionID); err != nil {
		s.logger.Error().Err(err).Str("connection_id", connectionID).Msg("removeConnection failed")
		return errorResult(err)
	}
	return ok("Disconnected.")
}

func (s *Server) Subscribe(ctx context.Context, channelName, connectionID string) Result {
	if err := validate(channelName, connectionID); err != nil {
		return errorResult(err)
	}
	if _, err := s.store.AddMembership(ctx, connectionID, channelName); err != nil {
		err = WrapStorageError("add membership", err)
		s.logger.Error().Err(err).Str("connection_id", connectionID).Str("channel", channelName).Msg("subscribe failed")
		return errorResult(err)
	}
	return ok("Subscribed.")
}

// Unsubscribe succeeds when the membership doesn't exist.
func (s *Server) Unsubscribe(ctx context.Context, channelName, connectionID string) Result {
	if err := validate(channelName, connectionID); err != nil {
		return errorResult(err)
	}
	if err := s.store.RemoveMembership(ctx, connectionID, channelName); err != nil {
		err = WrapStorageError("remove membership", err)
		s.logger.Error().Err(err).Str("connection_id", connectionID).Str("channel", channelName).Msg("unsubscribe failed")
		return errorResult(err)
	}
	return ok("Unsubscribed.")
}

func validate(channelName, connectionID string) error {
	if connectionID == "" {
		return ErrMissingIdentifier
	}
	if channelName == "" {
		return ErrMissingChannel
	}
	return nil
}

// Emitter pairs a Server with an Addressing. It is a value; building one never
// changes the Server.
type Emitter struct {
	server     *Server
	addressing Addressing
}

func (s *Server) To(channels ...string) Emitter {
	return Emitter{server: s, addressing: To(channels...)}
}

func (s *Server) In(channels ...string) Emitter {
	return Emitter{server: s, addressing: In(channels...)}
}

func (s *Server) Broadcast() Emitter {
	return Emitter{server: s, addressing: Broadcast()}
}

func (e Emitter) Addressing() Addressing {
	return e.addressing
}

func (e Emitter) Emit(ctx context.Context, trigger Trigger, event string, body json.RawMessage) Result {
	return e.server.Emit(ctx, trigger, e.addressing, event, body)
}

// EmitJSON marshals v and emits it as the body.
func (e Emitter) EmitJSON(ctx context.Context, trigger Trigger, event string, v interface{}) Result {
	body, err := json.Marshal(v)
	if err != nil {
		return errorResult(fmt.Errorf("marshalling body: %w", err))
	}
	return e.Emit(ctx, trigger, event, body)
}

// Emit resolves addressing against the registry and delivers {event, body} to
// every target. The zero Addressing is a no-op and reports 204.
func (s *Server) Emit(ctx context.Context, trigger Trigger, addressing Addressing, event string, body json.RawMessage) Result {
	if addressing.Mode() == ModeNone {
		return Result{StatusCode: http.StatusNoContent}
	}
	if err := checkBody(body); err != nil {
		return errorResult(err)
	}

	logger := s.logger.With().
		Str("addressing", addressing.String()).
		Str("event", event).
		Str("sender", trigger.ConnectionID).
		Logger()
	dimensions := map[sundaecli.DimensionName]string{
		sundaecli.OperationNameDimension: addressing.Mode().String(),
	}

	targets, err := s.resolver.Resolve(ctx, addressing, trigger.ConnectionID)
	if err != nil {
		logger.Error().Err(err).Msg("unable to resolve targets")
		s.event(ctx, sundaecli.EmitFailedMetric, dimensions)
		return errorResult(err)
	}

	report := s.engine.Deliver(ctx, targets, Envelope{Event: event, Body: body}, trigger.TransportContext)
	if s.metrics != nil {
		s.metrics.Gauge(ctx, sundaecli.DeliveredMetric, float64(report.Delivered), dimensions)
		for range report.Gone {
			s.metrics.Event(ctx, sundaecli.GoneMetric, dimensions)
		}
	}
	if report.Err != nil {
		logger.Error().Err(report.Err).Int("targets", len(targets)).Msg("emit failed")
		s.event(ctx, sundaecli.EmitFailedMetric, dimensions)
		result := errorResult(report.Err)
		result.Delivered = report.Delivered
		return result
	}

	logger.Debug().
		Int("targets", len(targets)).
		Int("delivered", report.Delivered).
		Strs("gone", report.Gone).
		Msg("emitted")
	return Result{StatusCode: http.StatusOK, Body: "Data sent.", Delivered: report.Delivered}
}

// checkBody accepts an empty body, sent as null, or any single JSON value.
func checkBody(body json.RawMessage) error {
	if len(body) == 0 || json.Valid(body) {
		return nil
	}
	return ErrInvalidBody
}

// Reply pushes {event, body} to the trigger's own connection.
func (s *Server) Reply(ctx context.Context, trigger Trigger, event string, body json.RawMessage) Result {
	if trigger.ConnectionID == "" {
		return errorResult(ErrMissingIdentifier)
	}
	if err := checkBody(body); err != nil {
		return errorResult(err)
	}
	report := s.engine.Deliver(ctx, []string{trigger.ConnectionID}, Envelope{Event: event, Body: body}, trigger.TransportContext)
	if report.Err != nil {
		return errorResult(report.Err)
	}
	return Result{StatusCode: http.StatusOK, Body: "Data sent.", Delivered: report.Delivered}
}

// Targets previews the connections an emit with addressing would reach.
func (s *Server) Targets(ctx context.Context, addressing Addressing, sender string) ([]string, error) {
	return s.resolver.Resolve(ctx, addressing, sender)
}

// Reap disconnects every connection registered before the given instant. In
// dry mode it only reports what it would remove. Individual failures are
// logged and skipped; the count covers connections actually removed.
func (s *Server) Reap(ctx context.Context, before time.Time, dry bool) (int, error) {
	conns, err := s.store.ListConnectionsCreatedBefore(ctx, before)
	if err != nil {
		return 0, WrapStorageError("list stale connections", err)
	}

	var n int
	for _, conn := range conns {
		logger := s.logger.With().
			Str("connection_id", conn.ConnectionID).
			Time("created_at", conn.CreatedAt).
			Logger()
		if dry {
			logger.Info().Msg("would reap connection")
			continue
		}
		if err := s.lifecycle.OnDisconnect(ctx, conn.ConnectionID); err != nil {
			logger.Error().Err(err).Msg("failed to reap connection")
			continue
		}
		n++
	}
	if s.metrics != nil {
		s.metrics.Gauge(ctx, sundaecli.ReapedMetric, float64(n))
	}
	return n, nil
}

func (s *Server) event(ctx context.Context, name sundaecli.MetricName, dimensions map[sundaecli.DimensionName]string) {
	if s.metrics != nil {
		s.metrics.Event(ctx, name, dimensions)
	}
}
