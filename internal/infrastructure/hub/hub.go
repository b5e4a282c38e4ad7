// Package hub shares one server-push stream between any number of channel
// subscribers. The stream is opened by the first subscription and closed
// when the last one is released.
package hub

import (
	"context"
	"errors"
	"slices"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/samber/lo"

	"go-fleet-live/internal/infrastructure/eventsource"
	"go-fleet-live/internal/infrastructure/logger"
)

var (
	ErrHubStopped   = errors.New("hub is stopped")
	ErrEmptyChannel = errors.New("channel name is empty")
	ErrNilHandler   = errors.New("handler is nil")
)

// Hub is the subscription entry point. Registry changes are serialised by
// mu; handlers run without it, on the stream's goroutine.
type Hub struct {
	endpoint string
	logger   logger.Logger

	mu          sync.Mutex
	holder      *connectionHolder
	registry    *channelRegistry
	dispatchers map[string]*dispatchHandler
	stopped     bool

	dropped  atomic.Uint64
	failures atomic.Uint64
}

var _ Subscriber = (*Hub)(nil)

// New creates a hub that streams from endpoint through dialer. No
// connection is made until the first Subscribe.
func New(endpoint string, dialer Dialer, log logger.Logger) *Hub {
	log = log.WithField("component", "hub")
	return &Hub{
		endpoint:    endpoint,
		logger:      log,
		holder:      newConnectionHolder(dialer, log),
		registry:    newChannelRegistry(),
		dispatchers: make(map[string]*dispatchHandler),
	}
}

// Subscribe registers handler for channel and returns the subscription. The
// caller must call Unsubscribe exactly once on every exit path, typically
// with defer.
func (h *Hub) Subscribe(channel string, handler Handler) (*Subscription, error) {
	if channel == "" {
		return nil, ErrEmptyChannel
	}
	if handler == nil {
		return nil, ErrNilHandler
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	if h.stopped {
		return nil, ErrHubStopped
	}

	stream := h.holder.ensureOpen(h.endpoint)

	sub := &Subscription{
		id:      uuid.NewString(),
		channel: channel,
		handler: handler,
		hub:     h,
	}
	sub.active.Store(true)
	h.registry.register(sub)

	if _, ok := h.dispatchers[channel]; !ok {
		h.attach(channel, stream)
	}

	h.logger.WithFields(logger.Fields{
		"channel":      channel,
		"subscription": sub.id,
	}).Debug("subscribed")

	return sub, nil
}

func (h *Hub) unsubscribe(sub *Subscription) {
	sub.active.Store(false)

	h.mu.Lock()
	defer h.mu.Unlock()

	removed, emptied := h.registry.unregister(sub)
	if !removed {
		return
	}
	if emptied {
		h.detach(sub.channel)
	}
	if h.holder.closeIfIdle(h.registry.subscriberCount()) {
		h.logger.Info("no subscribers left, shared stream released")
	}

	h.logger.WithFields(logger.Fields{
		"channel":      sub.channel,
		"subscription": sub.id,
	}).Debug("unsubscribed")
}

// subscribers returns the channel's subscribers, or nil when stream is no
// longer the shared stream.
func (h *Hub) subscribers(channel string, stream Stream) []*Subscription {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.holder.current() != stream {
		return nil
	}
	return h.registry.snapshot(channel)
}

// Stop releases every subscription and closes the shared stream. Later
// Subscribe calls fail with ErrHubStopped.
func (h *Hub) Stop(ctx context.Context) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.stopped {
		return nil
	}
	h.stopped = true

	for _, channel := range lo.Keys(h.dispatchers) {
		h.detach(channel)
	}
	released := h.registry.drain()
	for _, sub := range released {
		sub.active.Store(false)
	}
	h.holder.close()

	h.logger.Infof("hub stopped, released %d subscriptions", len(released))
	return nil
}

// IsRunning reports whether the hub still accepts subscriptions.
func (h *Hub) IsRunning() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return !h.stopped
}

// SubscriberCount is the number of live subscriptions across all channels.
func (h *Hub) SubscriberCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.registry.subscriberCount()
}

// Channels lists the channels that currently have subscribers, sorted.
func (h *Hub) Channels() []string {
	h.mu.Lock()
	defer h.mu.Unlock()

	names := lo.Keys(h.registry.channels)
	slices.Sort(names)
	return names
}

type Stats struct {
	Endpoint        string         `json:"endpoint"`
	Running         bool           `json:"running"`
	Connected       bool           `json:"connected"`
	State           string         `json:"state"`
	StreamsOpened   uint64         `json:"streams_opened"`
	StreamErrors    uint64         `json:"stream_errors"`
	Subscribers     int            `json:"subscribers"`
	Channels        map[string]int `json:"channels"`
	DroppedMessages uint64         `json:"dropped_messages"`
	HandlerFailures uint64         `json:"handler_failures"`
}

func (h *Hub) Stats() Stats {
	h.mu.Lock()
	defer h.mu.Unlock()

	state := eventsource.Closed
	if stream := h.holder.current(); stream != nil {
		state = stream.ReadyState()
	}

	return Stats{
		Endpoint:        h.endpoint,
		Running:         !h.stopped,
		Connected:       state == eventsource.Open,
		State:           state.String(),
		StreamsOpened:   h.holder.opened,
		StreamErrors:    h.holder.errors.Load(),
		Subscribers:     h.registry.subscriberCount(),
		Channels:        h.registry.counts(),
		DroppedMessages: h.dropped.Load(),
		HandlerFailures: h.failures.Load(),
	}
}

// Subscription is the handle returned by Subscribe.
type Subscription struct {
	id      string
	channel string
	handler Handler
	hub     *Hub

	active atomic.Bool
	once   sync.Once
}

// ID is an opaque token identifying the subscription.
func (s *Subscription) ID() string { return s.id }

func (s *Subscription) Channel() string { return s.channel }

// Unsubscribe releases the subscription. It is safe to call more than once,
// from inside the subscription's own handler, and after the hub stopped.
func (s *Subscription) Unsubscribe() {
	s.once.Do(func() {
		s.hub.unsubscribe(s)
	})
}
