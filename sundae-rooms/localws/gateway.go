// Package localws stands in for API Gateway when running in console mode.
//
// It accepts WebSocket connections itself, turns their traffic into the
// $connect, $default and $disconnect events the Lambda handler receives in
// production, and implements the push side so emits reach local clients.
package localws

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	sundaerooms "github.com/SundaeSwap-finance/sundae-rooms/sundae-rooms"
	"github.com/aws/aws-lambda-go/events"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

const writeTimeout = 10 * time.Second

// RouteFunc receives the synthesized API Gateway events.
type RouteFunc func(ctx context.Context, req events.APIGatewayWebsocketProxyRequest) (events.APIGatewayProxyResponse, error)

type Gateway struct {
	// DomainName and Stage are reported in every request context.
	DomainName string
	Stage      string
	Route      RouteFunc
	Logger     zerolog.Logger

	upgrader websocket.Upgrader

	mu    sync.RWMutex
	conns map[string]*conn
}

type conn struct {
	ws      *websocket.Conn
	writeMu sync.Mutex
}

func New(domainName, stage string, logger zerolog.Logger) *Gateway {
	return &Gateway{
		DomainName: domainName,
		Stage:      stage,
		Logger:     logger,
		upgrader: websocket.Upgrader{
			CheckOrigin:     func(r *http.Request) bool { return true },
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
		conns: map[string]*conn{},
	}
}

var eventTypes = map[string]string{
	"$connect":    "CONNECT",
	"$default":    "MESSAGE",
	"$disconnect": "DISCONNECT",
}

func (g *Gateway) request(route, connectionID, body string) events.APIGatewayWebsocketProxyRequest {
	return events.APIGatewayWebsocketProxyRequest{
		Body: body,
		RequestContext: events.APIGatewayWebsocketProxyRequestContext{
			RouteKey:         route,
			EventType:        eventTypes[route],
			ConnectionID:     connectionID,
			DomainName:       g.DomainName,
			Stage:            g.Stage,
			RequestTimeEpoch: time.Now().UnixMilli(),
		},
	}
}

func (g *Gateway) route(ctx context.Context, route, connectionID, body string) (int, error) {
	resp, err := g.Route(ctx, g.request(route, connectionID, body))
	if err != nil {
		return http.StatusInternalServerError, err
	}
	return resp.StatusCode, nil
}

// ServeHTTP runs $connect before upgrading, like API Gateway, so a rejected
// connection never opens.
func (g *Gateway) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var (
		ctx          = context.WithoutCancel(r.Context())
		connectionID = uuid.NewString()
		logger       = g.Logger.With().Str("connection_id", connectionID).Logger()
	)

	status, err := g.route(ctx, "$connect", connectionID, "")
	if err != nil || status < 200 || status >= 300 {
		logger.Warn().Err(err).Int("status", status).Msg("connection rejected")
		http.Error(w, http.StatusText(status), status)
		return
	}

	ws, err := g.upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Warn().Err(err).Msg("upgrade failed")
		g.route(ctx, "$disconnect", connectionID, "")
		return
	}

	g.mu.Lock()
	g.conns[connectionID] = &conn{ws: ws}
	g.mu.Unlock()

	defer func() {
		g.mu.Lock()
		delete(g.conns, connectionID)
		g.mu.Unlock()
		ws.Close()

		if _, err := g.route(ctx, "$disconnect", connectionID, ""); err != nil {
			logger.Error().Err(err).Msg("$disconnect failed")
		}
	}()

	for {
		messageType, data, err := ws.ReadMessage()
		if err != nil {
			return
		}
		if messageType != websocket.TextMessage {
			continue
		}

		status, err := g.route(ctx, "$default", connectionID, string(data))
		if err != nil || status >= 400 {
			logger.Debug().Err(err).Int("status", status).Msg("message not handled")
		}
	}
}

// Push writes payload to a connected client. Unknown connections and failed
// writes report sundaerooms.ErrGone.
func (g *Gateway) Push(_ context.Context, _ sundaerooms.TransportContext, connectionID string, payload []byte) error {
	g.mu.RLock()
	c, ok := g.conns[connectionID]
	g.mu.RUnlock()
	if !ok {
		return fmt.Errorf("%w: %v", sundaerooms.ErrGone, connectionID)
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	c.ws.SetWriteDeadline(time.Now().Add(writeTimeout))
	if err := c.ws.WriteMessage(websocket.TextMessage, payload); err != nil {
		return fmt.Errorf("%w: %v", sundaerooms.ErrGone, err)
	}
	return nil
}

// Len returns the number of open connections.
func (g *Gateway) Len() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.conns)
}

// Close closes every open connection; their $disconnect events still fire.
func (g *Gateway) Close() {
	g.mu.RLock()
	defer g.mu.RUnlock()
	for _, c := range g.conns {
		c.writeMu.Lock()
		c.ws.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseGoingAway, ""), time.Now().Add(time.Second))
		c.ws.Close()
		c.writeMu.Unlock()
	}
}
