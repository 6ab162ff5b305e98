package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	sundaerest "github.com/SundaeSwap-finance/sundae-rooms/sundae-rest"
	sundaerooms "github.com/SundaeSwap-finance/sundae-rooms/sundae-rooms"
	"github.com/SundaeSwap-finance/sundae-rooms/sundae-rooms/publish"
	"github.com/go-chi/chi/v5"
)

type Publisher interface {
	Send(ctx context.Context, e publish.Envelope) error
}

// API exposes emits and registry lookups to back-end services over HTTP.
type API struct {
	Server    *sundaerooms.Server
	Publisher Publisher

	// DomainName and Stage fill in envelopes that don't name a deployment.
	DomainName string
	Stage      string

	// Health checks the registry backend; nil always reports healthy.
	Health func(ctx context.Context) error
}

type emitRequest struct {
	publish.Envelope
	// Async hands the emit to the dispatcher through the events stream
	// instead of delivering it before responding.
	Async bool `json:"async,omitempty"`
}

type connectionsResponse struct {
	Channel     string   `json:"channel,omitempty"`
	Connections []string `json:"connections"`
}

func (a *API) Mount(r chi.Router) {
	r.Post("/emit", a.emit)
	r.Get("/connections", a.connections)
	r.Get("/channels/{channel}", a.channel)
	r.Get("/health", a.health)
}

func (a *API) health(w http.ResponseWriter, req *http.Request) {
	if a.Health != nil {
		if err := a.Health(req.Context()); err != nil {
			sundaerest.Error(w, req, http.StatusServiceUnavailable, err)
			return
		}
	}
	sundaerest.JSON(w, req, http.StatusOK, map[string]string{"status": "ok"})
}

func (a *API) emit(w http.ResponseWriter, req *http.Request) {
	var in emitRequest
	if err := json.NewDecoder(req.Body).Decode(&in); err != nil {
		sundaerest.Error(w, req, http.StatusBadRequest, fmt.Errorf("invalid emit request: %w", err))
		return
	}
	if in.Event == "" {
		sundaerest.Error(w, req, http.StatusBadRequest, errors.New("missing event"))
		return
	}

	addressing, err := sundaerooms.NewAddressing(in.Mode, in.Channels...)
	if err != nil {
		sundaerest.Error(w, req, http.StatusBadRequest, err)
		return
	}
	if in.DomainName == "" {
		in.DomainName, in.Stage = a.DomainName, a.Stage
	}

	if in.Async {
		if a.Publisher == nil {
			sundaerest.Error(w, req, http.StatusNotImplemented, errors.New("async emits are not configured"))
			return
		}
		if err := a.Publisher.Send(req.Context(), in.Envelope); err != nil {
			sundaerest.Error(w, req, http.StatusBadGateway, err)
			return
		}
		sundaerest.JSON(w, req, http.StatusAccepted, sundaerooms.Result{StatusCode: http.StatusAccepted, Body: "Queued."})
		return
	}

	trigger := sundaerooms.Trigger{
		TransportContext: sundaerooms.TransportContext{DomainName: in.DomainName, Stage: in.Stage},
		ConnectionID:     in.Sender,
	}
	result := a.Server.Emit(req.Context(), trigger, addressing, in.Event, in.Body)
	sundaerest.JSON(w, req, result.StatusCode, result)
}

func (a *API) connections(w http.ResponseWriter, req *http.Request) {
	ids, err := a.Server.Targets(req.Context(), sundaerooms.Broadcast(), "")
	if err != nil {
		sundaerest.Error(w, req, http.StatusInternalServerError, err)
		return
	}
	sundaerest.JSON(w, req, http.StatusOK, connectionsResponse{Connections: nonNil(ids)})
}

// channel lists the members of a channel; ?except= previews a "to" emit from
// that connection.
func (a *API) channel(w http.ResponseWriter, req *http.Request) {
	channel := chi.URLParam(req, "channel")
	ids, err := a.Server.Targets(req.Context(), sundaerooms.To(channel), req.URL.Query().Get("except"))
	if err != nil {
		sundaerest.Error(w, req, http.StatusInternalServerError, err)
		return
	}
	sundaerest.JSON(w, req, http.StatusOK, connectionsResponse{Channel: channel, Connections: nonNil(ids)})
}

func nonNil(ids []string) []string {
	if ids == nil {
		return []string{}
	}
	return ids
}
