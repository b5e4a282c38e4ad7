package hub

import (
	"encoding/json"

	"go-fleet-live/internal/infrastructure/eventsource"
	"go-fleet-live/internal/infrastructure/logger"
)

// dispatchHandler is the stream listener for one channel. It decodes each
// payload once and hands it to the channel's subscribers in order.
type dispatchHandler struct {
	channel string
	stream  Stream
	hub     *Hub
	logger  logger.Logger
}

func (h *Hub) attach(channel string, stream Stream) {
	d := &dispatchHandler{
		channel: channel,
		stream:  stream,
		hub:     h,
		logger:  h.logger.WithField("channel", channel),
	}
	stream.AddEventListener(channel, d.handle)
	h.dispatchers[channel] = d
}

func (h *Hub) detach(channel string) {
	d, ok := h.dispatchers[channel]
	if !ok {
		return
	}
	delete(h.dispatchers, channel)
	d.stream.RemoveEventListener(channel)
}

func (d *dispatchHandler) handle(ev eventsource.Event) {
	raw := json.RawMessage(ev.Data)

	var data any
	if err := json.Unmarshal(raw, &data); err != nil {
		d.hub.dropped.Add(1)
		d.logger.WithField("payload", ev.Data).Errorf("dropping malformed message: %v", err)
		return
	}

	subs := d.hub.subscribers(d.channel, d.stream)
	if len(subs) == 0 {
		return
	}

	msg := &Message{Channel: d.channel, ID: ev.ID, Data: data, Raw: raw}
	for _, sub := range subs {
		d.invoke(sub, msg)
	}
}

// invoke runs one handler. A panic is recovered so the rest of the fan-out
// still happens.
func (d *dispatchHandler) invoke(sub *Subscription, msg *Message) {
	// Unsubscribed earlier in this fan-out.
	if !sub.active.Load() {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			d.hub.failures.Add(1)
			d.logger.WithField("subscription", sub.id).Errorf("handler panicked: %v", r)
		}
	}()
	sub.handler(msg)
}
