package main

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	sundaerest "github.com/SundaeSwap-finance/sundae-rooms/sundae-rest"
	sundaerooms "github.com/SundaeSwap-finance/sundae-rooms/sundae-rooms"
	"github.com/SundaeSwap-finance/sundae-rooms/sundae-rooms/publish"
	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"github.com/tj/assert"
)

type fakePublisher struct {
	envelopes []publish.Envelope
}

func (f *fakePublisher) Send(_ context.Context, e publish.Envelope) error {
	f.envelopes = append(f.envelopes, e)
	return nil
}

func setup(t *testing.T) (http.Handler, *fakePublisher, func() []sundaerooms.TransportContext) {
	var (
		ctx       = context.Background()
		mu        sync.Mutex
		pushed    []sundaerooms.TransportContext
		transport = sundaerooms.TransportFunc(func(_ context.Context, tc sundaerooms.TransportContext, _ string, _ []byte) error {
			mu.Lock()
			defer mu.Unlock()
			pushed = append(pushed, tc)
			return nil
		})
		server    = sundaerooms.New(sundaerooms.NewMemoryStore(), transport)
		publisher = &fakePublisher{}
		api       = &API{Server: server, Publisher: publisher, DomainName: "ws.example.com", Stage: "dev"}
	)

	for _, id := range []string{"A", "B", "C"} {
		assert.True(t, server.OnConnect(ctx, id).OK())
	}
	for _, id := range []string{"B", "C"} {
		assert.True(t, server.Subscribe(ctx, "room1", id).OK())
	}

	routes := sundaerest.Middlewares(zerolog.Nop(), chi.NewRouter())
	api.Mount(routes)
	return routes, publisher, func() []sundaerooms.TransportContext {
		mu.Lock()
		defer mu.Unlock()
		return pushed
	}
}

func do(handler http.Handler, method, path, body string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest(method, path, strings.NewReader(body)))
	return w
}

func TestEmit(t *testing.T) {
	routes, publisher, pushed := setup(t)

	w := do(routes, http.MethodPost, "/emit", `{"mode":"to","channels":["room1"],"sender":"B","event":"chat","body":{"text":"hi"}}`)
	assert.Equal(t, http.StatusOK, w.Code)

	var result sundaerooms.Result
	assert.Nil(t, json.Unmarshal(w.Body.Bytes(), &result))
	assert.Equal(t, "Data sent.", result.Body)
	assert.Equal(t, 1, result.Delivered)
	assert.Equal(t, []sundaerooms.TransportContext{{DomainName: "ws.example.com", Stage: "dev"}}, pushed())

	w = do(routes, http.MethodPost, "/emit", `{"mode":"in","channels":["room1"],"event":"chat","async":true}`)
	assert.Equal(t, http.StatusAccepted, w.Code)
	assert.Len(t, publisher.envelopes, 1)
	assert.Equal(t, "ws.example.com", publisher.envelopes[0].DomainName)
	assert.Len(t, pushed(), 1)

	w = do(routes, http.MethodPost, "/emit", `{"event":"chat"}`)
	assert.Equal(t, http.StatusNoContent, w.Code)
	w = do(routes, http.MethodPost, "/emit", `{"mode":"none","event":"chat"}`)
	assert.Equal(t, http.StatusNoContent, w.Code)

	assert.Equal(t, http.StatusBadRequest, do(routes, http.MethodPost, "/emit", `nope`).Code)
	assert.Equal(t, http.StatusBadRequest, do(routes, http.MethodPost, "/emit", `{"mode":"in"}`).Code)
	assert.Equal(t, http.StatusBadRequest, do(routes, http.MethodPost, "/emit", `{"mode":"up","event":"chat"}`).Code)
}

func TestLookups(t *testing.T) {
	routes, _, _ := setup(t)

	w := do(routes, http.MethodGet, "/connections", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"connections":["A","B","C"]}`, w.Body.String())

	w = do(routes, http.MethodGet, "/channels/room1?except=B", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"channel":"room1","connections":["C"]}`, w.Body.String())

	w = do(routes, http.MethodGet, "/channels/empty", "")
	assert.JSONEq(t, `{"channel":"empty","connections":[]}`, w.Body.String())
}

func TestHealth(t *testing.T) {
	var healthErr error
	api := &API{
		Server: sundaerooms.New(sundaerooms.NewMemoryStore(), sundaerooms.TransportFunc(func(context.Context, sundaerooms.TransportContext, string, []byte) error {
			return nil
		})),
		Health: func(context.Context) error { return healthErr },
	}
	routes := chi.NewRouter()
	api.Mount(routes)

	w := do(routes, http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"ok"}`, w.Body.String())

	healthErr = errors.New("connection refused")
	w = do(routes, http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.JSONEq(t, `{"error":"connection refused"}`, w.Body.String())
}
