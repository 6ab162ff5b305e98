package sundaerooms

import (
	"encoding/json"
	"fmt"
)

// Client actions accepted on the $default route.
const (
	ActionSubscribe   = "subscribe"
	ActionUnsubscribe = "unsubscribe"
	ActionEmit        = "emit"
	ActionPing        = "ping"
)

// EventPong answers a ping.
const EventPong = "pong"

// Message is a client message on the $default route.
type Message struct {
	Action   string          `json:"action"`
	Channel  string          `json:"channel,omitempty"`
	Channels []string        `json:"channels,omitempty"`
	Mode     string          `json:"mode,omitempty"`
	Event    string          `json:"event,omitempty"`
	Body     json.RawMessage `json:"body,omitempty"`
}

// AllChannels merges Channel and Channels into one normalized set.
func (m Message) AllChannels() []string {
	return normalizeChannels(append([]string{m.Channel}, m.Channels...))
}

func ParseMessage(body string) (*Message, error) {
	var msg Message
	if err := json.Unmarshal([]byte(body), &msg); err != nil {
		return nil, fmt.Errorf("invalid message: %w", err)
	}
	switch msg.Action {
	case "":
		return nil, fmt.Errorf("missing message action")
	case ActionSubscribe, ActionUnsubscribe:
		if len(msg.AllChannels()) == 0 {
			return nil, fmt.Errorf("%v: %w", msg.Action, ErrMissingChannel)
		}
	case ActionEmit:
		if msg.Event == "" {
			return nil, fmt.Errorf("emit: missing event")
		}
		if _, err := ParseMode(msg.Mode); err != nil {
			return nil, err
		}
	}
	return &msg, nil
}
