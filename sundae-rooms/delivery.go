package sundaerooms

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

const defaultConcurrency = 50

// Envelope is the payload pushed to every target of an emit.
type Envelope struct {
	Event string          `json:"event"`
	Body  json.RawMessage `json:"body"`
}

// encode writes the body bytes as given; only the event name is encoded.
func (e Envelope) encode() ([]byte, error) {
	if len(e.Body) > 0 && !json.Valid(e.Body) {
		return nil, ErrInvalidBody
	}
	event, err := json.Marshal(e.Event)
	if err != nil {
		return nil, fmt.Errorf("marshalling event: %w", err)
	}

	body := []byte(e.Body)
	if len(body) == 0 {
		body = []byte("null")
	}

	payload := make([]byte, 0, len(event)+len(body)+20)
	payload = append(payload, `{"event":`...)
	payload = append(payload, event...)
	payload = append(payload, `,"body":`...)
	payload = append(payload, body...)
	payload = append(payload, '}')
	return payload, nil
}

// Report summarizes one delivery. Gone connections are not failures.
type Report struct {
	Delivered int
	Gone      []string
	Err       error
}

// Engine pushes an envelope to a set of connections concurrently.
type Engine struct {
	Transport Transport
	Lifecycle *Lifecycle
	Logger    zerolog.Logger

	// Concurrency caps in-flight pushes (default 50).
	Concurrency int
}

// Deliver pushes envelope to every target and waits for all of them.
//
// A gone target is handed to Lifecycle.OnDisconnect on its own goroutine; a
// failed cleanup is logged and never affects the report. Any other push error
// makes Err non-nil, but pushes already made stand and the remaining pushes
// still run. Deliver returns once every push and cleanup has settled.
func (e *Engine) Deliver(ctx context.Context, targets []string, envelope Envelope, tc TransportContext) Report {
	if len(targets) == 0 {
		return Report{}
	}

	payload, err := envelope.encode()
	if err != nil {
		return Report{Err: err}
	}

	concurrency := e.Concurrency
	if concurrency <= 0 {
		concurrency = defaultConcurrency
	}

	// in-flight pushes aren't cancelled, even if the caller gives up
	ctx = context.WithoutCancel(ctx)

	var (
		group     errgroup.Group
		cleanups  sync.WaitGroup
		delivered atomic.Int64
		goneMu    sync.Mutex
		gone      []string
	)
	group.SetLimit(concurrency)

	for _, connectionID := range targets {
		connectionID := connectionID
		group.Go(func() error {
			err := e.Transport.Push(ctx, tc, connectionID, payload)
			switch {
			case err == nil:
				delivered.Add(1)
				return nil

			case errors.Is(err, ErrGone):
				e.Logger.Debug().Str("connection_id", connectionID).Msg("found stale connection, cleaning up")
				goneMu.Lock()
				gone = append(gone, connectionID)
				goneMu.Unlock()

				cleanups.Add(1)
				go func() {
					defer cleanups.Done()
					e.cleanup(ctx, connectionID)
				}()
				return nil

			default:
				e.Logger.Debug().Err(err).Str("connection_id", connectionID).Msg("push failed")
				return err
			}
		})
	}

	err = group.Wait()
	cleanups.Wait()

	slices.Sort(gone)
	return Report{
		Delivered: int(delivered.Load()),
		Gone:      gone,
		Err:       err,
	}
}

func (e *Engine) cleanup(ctx context.Context, connectionID string) {
	if e.Lifecycle == nil {
		return
	}
	if err := e.Lifecycle.OnDisconnect(ctx, connectionID); err != nil {
		e.Logger.Error().Err(err).Str("connection_id", connectionID).Msg("failed to remove gone connection")
	}
}
