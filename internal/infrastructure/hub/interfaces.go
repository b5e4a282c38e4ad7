package hub

import (
	"encoding/json"

	"go-fleet-live/internal/infrastructure/eventsource"
)

// Stream is the server-push connection the hub multiplexes channels over.
// *eventsource.Source satisfies it.
type Stream interface {
	AddEventListener(eventType string, listener eventsource.Listener)
	RemoveEventListener(eventType string)
	OnError(handler func(error))
	ReadyState() eventsource.ReadyState
	Close() error
}

// Dialer opens a Stream to an endpoint. Dial must not block on the network.
type Dialer interface {
	Dial(url string) Stream
}

type DialerFunc func(url string) Stream

func (f DialerFunc) Dial(url string) Stream { return f(url) }

// Handler receives the decoded messages of one channel. The Message is shared
// by every handler of the fan-out and must not be modified.
type Handler func(msg *Message)

// Subscriber is the consumer-facing side of the hub.
type Subscriber interface {
	Subscribe(channel string, handler Handler) (*Subscription, error)
}

// Message is one decoded event delivered to a channel's handlers.
type Message struct {
	Channel string
	ID      string
	// Data is the payload decoded into generic JSON values.
	Data any
	Raw  json.RawMessage
}

// Decode unmarshals the raw payload into v.
func (m *Message) Decode(v any) error {
	return json.Unmarshal(m.Raw, v)
}
