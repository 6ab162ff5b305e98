package sundaerooms_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"slices"
	"sync"
	"testing"
	"time"

	sundaecli "github.com/SundaeSwap-finance/sundae-rooms/sundae-cli"
	sundaerooms "github.com/SundaeSwap-finance/sundae-rooms/sundae-rooms"
	"github.com/tj/assert"
)

type push struct {
	TransportContext sundaerooms.TransportContext
	ConnectionID     string
	Envelope         sundaerooms.Envelope
	Payload          []byte
}

// recorder is a Transport that records every push. Connections listed in gone
// answer with ErrGone and those in failing with a plain error.
type recorder struct {
	mu      sync.Mutex
	pushes  []push
	gone    map[string]bool
	failing map[string]bool
}

func (r *recorder) Push(_ context.Context, tc sundaerooms.TransportContext, connectionID string, payload []byte) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.gone[connectionID] {
		return sundaerooms.ErrGone
	}
	if r.failing[connectionID] {
		return errors.New("boom")
	}

	var envelope sundaerooms.Envelope
	if err := json.Unmarshal(payload, &envelope); err != nil {
		return err
	}
	r.pushes = append(r.pushes, push{TransportContext: tc, ConnectionID: connectionID, Envelope: envelope, Payload: payload})
	return nil
}

func (r *recorder) recipients() []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	var ids []string
	for _, p := range r.pushes {
		ids = append(ids, p.ConnectionID)
	}
	slices.Sort(ids)
	return ids
}

func (r *recorder) reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.pushes = nil
}

type metric struct {
	Name  sundaecli.MetricName
	Value float64
}

type fakeMetrics struct {
	mu      sync.Mutex
	metrics []metric
}

func (f *fakeMetrics) Event(_ context.Context, name sundaecli.MetricName, _ ...map[sundaecli.DimensionName]string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.metrics = append(f.metrics, metric{Name: name, Value: 1})
}

func (f *fakeMetrics) Gauge(_ context.Context, name sundaecli.MetricName, value float64, _ ...map[sundaecli.DimensionName]string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.metrics = append(f.metrics, metric{Name: name, Value: value})
}

func (f *fakeMetrics) count(name sundaecli.MetricName) (n int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, m := range f.metrics {
		if m.Name == name {
			n++
		}
	}
	return n
}

var deployment = sundaerooms.TransportContext{DomainName: "abc.execute-api.us-east-2.amazonaws.com", Stage: "dev"}

func triggerFor(connectionID string) sundaerooms.Trigger {
	return sundaerooms.Trigger{TransportContext: deployment, ConnectionID: connectionID}
}

// newRoom connects A, B and C and subscribes B and C to room1.
func newRoom(t *testing.T) (*sundaerooms.Server, *sundaerooms.MemoryStore, *recorder) {
	var (
		ctx       = context.Background()
		store     = sundaerooms.NewMemoryStore()
		transport = &recorder{}
		server    = sundaerooms.New(store, transport)
	)

	for _, id := range []string{"A", "B", "C"} {
		assert.Equal(t, "Connected.", server.OnConnect(ctx, id).Body)
	}
	for _, id := range []string{"B", "C"} {
		assert.Equal(t, "Subscribed.", server.Subscribe(ctx, "room1", id).Body)
	}
	return server, store, transport
}

func TestEmit(t *testing.T) {
	ctx := context.Background()
	body := json.RawMessage(`{"hello":"world"}`)

	t.Run("to excludes the sender", func(t *testing.T) {
		server, _, transport := newRoom(t)

		result := server.To("room1").Emit(ctx, triggerFor("B"), "message", body)
		assert.Equal(t, http.StatusOK, result.StatusCode)
		assert.Equal(t, "Data sent.", result.Body)
		assert.Equal(t, 1, result.Delivered)
		assert.Equal(t, []string{"C"}, transport.recipients())

		p := transport.pushes[0]
		assert.Equal(t, deployment, p.TransportContext)
		assert.Equal(t, "message", p.Envelope.Event)
		assert.JSONEq(t, string(body), string(p.Envelope.Body))
	})

	t.Run("in includes the sender", func(t *testing.T) {
		server, _, transport := newRoom(t)

		result := server.In("room1").Emit(ctx, triggerFor("B"), "message", body)
		assert.Equal(t, http.StatusOK, result.StatusCode)
		assert.Equal(t, 2, result.Delivered)
		assert.Equal(t, []string{"B", "C"}, transport.recipients())
	})

	t.Run("in reaches members when the sender is outside the room", func(t *testing.T) {
		server, _, transport := newRoom(t)

		result := server.In("room1").Emit(ctx, triggerFor("A"), "message", body)
		assert.Equal(t, http.StatusOK, result.StatusCode)
		assert.Equal(t, []string{"B", "C"}, transport.recipients())
	})

	t.Run("broadcast reaches everyone", func(t *testing.T) {
		server, _, transport := newRoom(t)

		result := server.Broadcast().Emit(ctx, triggerFor("A"), "message", body)
		assert.Equal(t, http.StatusOK, result.StatusCode)
		assert.Equal(t, 3, result.Delivered)
		assert.Equal(t, []string{"A", "B", "C"}, transport.recipients())
	})

	t.Run("multiple rooms are deduplicated", func(t *testing.T) {
		server, _, transport := newRoom(t)
		assert.True(t, server.Subscribe(ctx, "room2", "C").OK())
		assert.True(t, server.Subscribe(ctx, "room2", "A").OK())

		result := server.In("room1", "room2", "room1").Emit(ctx, triggerFor(""), "message", body)
		assert.Equal(t, 3, result.Delivered)
		assert.Equal(t, []string{"A", "B", "C"}, transport.recipients())
	})

	t.Run("to without a sender excludes nobody", func(t *testing.T) {
		server, _, transport := newRoom(t)

		result := server.To("room1").Emit(ctx, triggerFor(""), "message", body)
		assert.Equal(t, 2, result.Delivered)
		assert.Equal(t, []string{"B", "C"}, transport.recipients())
	})

	t.Run("empty room sends nothing", func(t *testing.T) {
		server, _, transport := newRoom(t)

		result := server.In("nobody").Emit(ctx, triggerFor("A"), "message", body)
		assert.Equal(t, http.StatusOK, result.StatusCode)
		assert.Equal(t, 0, result.Delivered)
		assert.Empty(t, transport.recipients())
	})

	t.Run("zero addressing is a no-op", func(t *testing.T) {
		server, _, transport := newRoom(t)

		result := server.Emit(ctx, triggerFor("A"), sundaerooms.Addressing{}, "message", body)
		assert.Equal(t, http.StatusNoContent, result.StatusCode)
		assert.True(t, result.OK())
		assert.Empty(t, transport.recipients())
	})

	t.Run("emitters are independent", func(t *testing.T) {
		server, _, transport := newRoom(t)

		to := server.To("room1")
		in := server.In("room1")
		assert.Equal(t, sundaerooms.ModeTo, to.Addressing().Mode())
		assert.Equal(t, sundaerooms.ModeIn, in.Addressing().Mode())

		to.Emit(ctx, triggerFor("B"), "message", body)
		assert.Equal(t, []string{"C"}, transport.recipients())

		transport.reset()
		to.Emit(ctx, triggerFor("B"), "message", body)
		assert.Equal(t, []string{"C"}, transport.recipients())
	})

	t.Run("EmitJSON marshals the body", func(t *testing.T) {
		server, _, transport := newRoom(t)

		result := server.In("room1").EmitJSON(ctx, triggerFor("A"), "price", map[string]int{"ada": 1})
		assert.True(t, result.OK())
		assert.JSONEq(t, `{"ada":1}`, string(transport.pushes[0].Envelope.Body))
	})
}

func TestEmitGone(t *testing.T) {
	var (
		ctx                      = context.Background()
		server, store, transport = newRoom(t)
	)

	result := server.To("room1").Emit(ctx, triggerFor("A"), "message", json.RawMessage(`{}`))
	assert.Equal(t, http.StatusOK, result.StatusCode)
	assert.Equal(t, []string{"B", "C"}, transport.recipients())
	transport.reset()

	transport.gone = map[string]bool{"B": true}

	result = server.In("room1").Emit(ctx, triggerFor("A"), "message", json.RawMessage(`{}`))
	assert.Equal(t, http.StatusOK, result.StatusCode)
	assert.Equal(t, 1, result.Delivered)
	assert.Equal(t, []string{"C"}, transport.recipients())

	// cleanup has settled by the time Emit returns
	ids, err := store.ListAllConnectionIDs(ctx)
	assert.Nil(t, err)
	assert.Equal(t, []string{"A", "C"}, ids)

	ids, err = store.ListDistinctConnectionIDsInChannels(ctx, []string{"room1"}, "")
	assert.Nil(t, err)
	assert.Equal(t, []string{"C"}, ids)

	transport.reset()
	result = server.In("room1").Emit(ctx, triggerFor("A"), "message", json.RawMessage(`{}`))
	assert.Equal(t, http.StatusOK, result.StatusCode)
	assert.Equal(t, 1, result.Delivered)
	assert.Equal(t, []string{"C"}, transport.recipients())
}

func TestEmitBody(t *testing.T) {
	ctx := context.Background()

	t.Run("invalid json is rejected before delivery", func(t *testing.T) {
		server, _, transport := newRoom(t)

		result := server.In("room1").Emit(ctx, triggerFor("A"), "message", json.RawMessage("hi there"))
		assert.Equal(t, http.StatusBadRequest, result.StatusCode)
		assert.Empty(t, transport.recipients())

		result = server.Reply(ctx, triggerFor("A"), "message", json.RawMessage("{"))
		assert.Equal(t, http.StatusBadRequest, result.StatusCode)
		assert.Empty(t, transport.recipients())
	})

	t.Run("body bytes are pushed as given", func(t *testing.T) {
		server, _, transport := newRoom(t)

		body := json.RawMessage(`{ "text" : "hi",  "n": 1.50 }`)
		result := server.To("room1").Emit(ctx, triggerFor("B"), "chat", body)
		assert.Equal(t, http.StatusOK, result.StatusCode)
		assert.Len(t, transport.pushes, 1)
		assert.Equal(t, `{"event":"chat","body":{ "text" : "hi",  "n": 1.50 }}`, string(transport.pushes[0].Payload))
	})

	t.Run("missing body is null", func(t *testing.T) {
		server, _, transport := newRoom(t)

		result := server.To("room1").Emit(ctx, triggerFor("B"), "chat", nil)
		assert.Equal(t, http.StatusOK, result.StatusCode)
		assert.Len(t, transport.pushes, 1)
		assert.Equal(t, `{"event":"chat","body":null}`, string(transport.pushes[0].Payload))
	})
}

func TestEmitFailure(t *testing.T) {
	var (
		ctx       = context.Background()
		metrics   = &fakeMetrics{}
		store     = sundaerooms.NewMemoryStore()
		transport = &recorder{failing: map[string]bool{"B": true}, gone: map[string]bool{"D": true}}
		server    = sundaerooms.New(store, transport, sundaerooms.WithMetrics(metrics), sundaerooms.WithConcurrency(1))
	)
	for _, id := range []string{"A", "B", "C", "D"} {
		assert.True(t, server.OnConnect(ctx, id).OK())
	}

	result := server.Broadcast().Emit(ctx, triggerFor(""), "message", json.RawMessage(`{}`))
	assert.Equal(t, http.StatusInternalServerError, result.StatusCode)
	assert.Equal(t, 2, result.Delivered)
	assert.Equal(t, []string{"A", "C"}, transport.recipients())

	// a failing push doesn't unregister the connection
	ids, err := store.ListAllConnectionIDs(ctx)
	assert.Nil(t, err)
	assert.Equal(t, []string{"A", "B", "C"}, ids)

	assert.Equal(t, 1, metrics.count(sundaecli.EmitFailedMetric))
	assert.Equal(t, 1, metrics.count(sundaecli.GoneMetric))
	assert.Equal(t, 1, metrics.count(sundaecli.DeliveredMetric))
}

type brokenStore struct {
	sundaerooms.Store
}

func (brokenStore) AddConnection(context.Context, string) (sundaerooms.Connection, error) {
	return sundaerooms.Connection{}, errors.New("unavailable")
}

func (brokenStore) AddMembership(context.Context, string, string) (sundaerooms.Membership, error) {
	return sundaerooms.Membership{}, errors.New("unavailable")
}

func (brokenStore) ListAllConnectionIDs(context.Context) ([]string, error) {
	return nil, errors.New("unavailable")
}

func TestStorageFailures(t *testing.T) {
	var (
		ctx    = context.Background()
		server = sundaerooms.New(brokenStore{Store: sundaerooms.NewMemoryStore()}, &recorder{})
	)

	result := server.OnConnect(ctx, "A")
	assert.Equal(t, http.StatusInternalServerError, result.StatusCode)
	assert.Contains(t, result.Body, "unavailable")

	result = server.Subscribe(ctx, "room1", "A")
	assert.Equal(t, http.StatusInternalServerError, result.StatusCode)

	result = server.Broadcast().Emit(ctx, triggerFor("A"), "message", nil)
	assert.Equal(t, http.StatusInternalServerError, result.StatusCode)
}

func TestSubscriptions(t *testing.T) {
	ctx := context.Background()

	t.Run("missing identifiers", func(t *testing.T) {
		server, _, _ := newRoom(t)

		assert.Equal(t, http.StatusNotFound, server.OnConnect(ctx, "").StatusCode)
		assert.Equal(t, http.StatusNotFound, server.OnDisconnect(ctx, "").StatusCode)
		assert.Equal(t, http.StatusNotFound, server.Subscribe(ctx, "room1", "").StatusCode)
		assert.Equal(t, http.StatusNotFound, server.Subscribe(ctx, "", "A").StatusCode)
		assert.Equal(t, http.StatusNotFound, server.Unsubscribe(ctx, "", "A").StatusCode)
	})

	t.Run("subscribe is idempotent", func(t *testing.T) {
		server, store, _ := newRoom(t)

		assert.True(t, server.Subscribe(ctx, "room1", "B").OK())
		ids, err := store.ListDistinctConnectionIDsInChannels(ctx, []string{"room1"}, "")
		assert.Nil(t, err)
		assert.Equal(t, []string{"B", "C"}, ids)
	})

	t.Run("unsubscribe is idempotent", func(t *testing.T) {
		server, _, transport := newRoom(t)

		assert.Equal(t, "Unsubscribed.", server.Unsubscribe(ctx, "room1", "B").Body)
		assert.Equal(t, "Unsubscribed.", server.Unsubscribe(ctx, "room1", "B").Body)
		assert.Equal(t, "Unsubscribed.", server.Unsubscribe(ctx, "never", "A").Body)

		server.In("room1").Emit(ctx, triggerFor(""), "message", nil)
		assert.Equal(t, []string{"C"}, transport.recipients())
	})

	t.Run("disconnect removes memberships", func(t *testing.T) {
		server, store, transport := newRoom(t)

		assert.Equal(t, "Disconnected.", server.OnDisconnect(ctx, "C").Body)
		assert.Equal(t, "Disconnected.", server.OnDisconnect(ctx, "C").Body)

		ids, err := store.ListAllConnectionIDs(ctx)
		assert.Nil(t, err)
		assert.Equal(t, []string{"A", "B"}, ids)

		server.In("room1").Emit(ctx, triggerFor(""), "message", nil)
		assert.Equal(t, []string{"B"}, transport.recipients())
	})
}

func TestReply(t *testing.T) {
	var (
		ctx                  = context.Background()
		server, _, transport = newRoom(t)
	)

	result := server.Reply(ctx, triggerFor("A"), sundaerooms.EventPong, nil)
	assert.True(t, result.OK())
	assert.Equal(t, []string{"A"}, transport.recipients())
	assert.Equal(t, sundaerooms.EventPong, transport.pushes[0].Envelope.Event)

	result = server.Reply(ctx, triggerFor(""), sundaerooms.EventPong, nil)
	assert.Equal(t, http.StatusNotFound, result.StatusCode)
}

func TestTargets(t *testing.T) {
	server, _, _ := newRoom(t)

	ids, err := server.Targets(context.Background(), sundaerooms.To("room1"), "C")
	assert.Nil(t, err)
	assert.Equal(t, []string{"B"}, ids)
}

func TestReap(t *testing.T) {
	var (
		ctx       = context.Background()
		now       = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
		store     = sundaerooms.NewMemoryStore().WithClock(func() time.Time { return now })
		metrics   = &fakeMetrics{}
		transport = &recorder{}
		server    = sundaerooms.New(store, transport, sundaerooms.WithMetrics(metrics))
	)

	assert.True(t, server.OnConnect(ctx, "old").OK())
	assert.True(t, server.Subscribe(ctx, "room1", "old").OK())
	now = now.Add(3 * time.Hour)
	assert.True(t, server.OnConnect(ctx, "new").OK())

	cutoff := now.Add(-2 * time.Hour)

	n, err := server.Reap(ctx, cutoff, true)
	assert.Nil(t, err)
	assert.Equal(t, 0, n)

	ids, err := store.ListAllConnectionIDs(ctx)
	assert.Nil(t, err)
	assert.Equal(t, []string{"new", "old"}, ids)

	n, err = server.Reap(ctx, cutoff, false)
	assert.Nil(t, err)
	assert.Equal(t, 1, n)

	ids, err = store.ListAllConnectionIDs(ctx)
	assert.Nil(t, err)
	assert.Equal(t, []string{"new"}, ids)

	ids, err = store.ListDistinctConnectionIDsInChannels(ctx, []string{"room1"}, "")
	assert.Nil(t, err)
	assert.Empty(t, ids)

	assert.Equal(t, 2, metrics.count(sundaecli.ReapedMetric))
}
