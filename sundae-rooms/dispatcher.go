package sundaerooms

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/SundaeSwap-finance/sundae-rooms/sundae-rooms/publish"
	"github.com/rs/zerolog"
)

// Dispatcher turns envelopes published to the rooms events stream into emits.
// Hand HandleRecord to a sundaekinesis.Handler.
type Dispatcher struct {
	Server *Server
	Logger zerolog.Logger
}

// HandleRecord decodes one published envelope and emits it.
func (d *Dispatcher) HandleRecord(ctx context.Context, data []byte) error {
	var envelope publish.Envelope
	if err := json.Unmarshal(data, &envelope); err != nil {
		return fmt.Errorf("unmarshalling kinesis record: %w", err)
	}
	if envelope.Event == "" {
		d.Logger.Warn().Msg("kinesis record has empty event, skipping")
		return nil
	}

	addressing, err := NewAddressing(envelope.Mode, envelope.Channels...)
	if err != nil {
		return fmt.Errorf("record for event %v: %w", envelope.Event, err)
	}

	trigger := Trigger{
		TransportContext: TransportContext{DomainName: envelope.DomainName, Stage: envelope.Stage},
		ConnectionID:     envelope.Sender,
	}
	result := d.Server.Emit(ctx, trigger, addressing, envelope.Event, envelope.Body)
	if !result.OK() {
		return fmt.Errorf("emitting %v to %v: %v", envelope.Event, addressing, result.Body)
	}

	d.Logger.Debug().
		Str("event", envelope.Event).
		Str("addressing", addressing.String()).
		Int("delivered", result.Delivered).
		Msg("dispatched event")
	return nil
}
