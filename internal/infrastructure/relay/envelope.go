package relay

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"go-fleet-live/internal/infrastructure/hub"
)

const (
	EventConnected = "connected"
	EventKeepAlive = "keepalive"
)

// Envelope is what a downstream client receives: the upstream payload
// untouched, tagged with the channel it came from.
type Envelope struct {
	ID      string            `json:"id"`
	Type    string            `json:"type"`
	Data    json.RawMessage   `json:"data"`
	Headers map[string]string `json:"headers,omitempty"`
}

// FromMessage wraps a hub message. Upstream event ids are kept so a client
// can correlate; messages without one get a fresh id.
func FromMessage(msg *hub.Message) *Envelope {
	id := msg.ID
	if id == "" {
		id = uuid.NewString()
	}
	return &Envelope{
		ID:   id,
		Type: msg.Channel,
		Data: msg.Raw,
		Headers: map[string]string{
			"received_at": time.Now().UTC().Format(time.RFC3339Nano),
		},
	}
}

func Connected(clientID, channel string) *Envelope {
	return control(EventConnected, map[string]any{
		"client_id": clientID,
		"channel":   channel,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

func KeepAlive() *Envelope {
	return control(EventKeepAlive, map[string]any{
		"timestamp": time.Now().Unix(),
	})
}

func control(eventType string, data map[string]any) *Envelope {
	raw, _ := json.Marshal(data)
	return &Envelope{ID: uuid.NewString(), Type: eventType, Data: raw}
}
