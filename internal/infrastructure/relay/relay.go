// Package relay forwards hub channels to downstream clients. Each client
// holds its own hub subscription; a per-client unbounded queue keeps a slow
// client from holding up the shared fan-out.
package relay

import (
	"context"
	"fmt"

	"github.com/smallnest/chanx"

	"go-fleet-live/internal/infrastructure/hub"
	"go-fleet-live/internal/infrastructure/logger"
)

type Relay struct {
	hub      hub.Subscriber
	registry *Registry
	logger   logger.Logger
}

func New(subscriber hub.Subscriber, registry *Registry, log logger.Logger) *Relay {
	return &Relay{
		hub:      subscriber,
		registry: registry,
		logger:   log.WithField("component", "relay"),
	}
}

// Serve attaches client to its channel and pumps messages to it until the
// client or ctx is done. The subscription and the client are released on
// every return path.
func (r *Relay) Serve(ctx context.Context, client Client) error {
	if err := r.registry.Register(client); err != nil {
		client.Close()
		return fmt.Errorf("register client %s: %w", client.ID(), err)
	}
	defer r.registry.Unregister(client.ID())
	// Close waits out any write in flight, and runs before Unregister so the
	// registry never has to.
	defer client.Close()

	qctx, cancel := context.WithCancel(ctx)
	defer cancel()
	queue := chanx.NewUnboundedChan[*Envelope](qctx, 16)

	sub, err := r.hub.Subscribe(client.Channel(), func(msg *hub.Message) {
		select {
		case queue.In <- FromMessage(msg):
		case <-qctx.Done():
		}
	})
	if err != nil {
		return fmt.Errorf("subscribe client %s to %s: %w", client.ID(), client.Channel(), err)
	}
	// Runs before cancel, so the handler is gone before the queue stops.
	defer sub.Unsubscribe()

	log := r.logger.WithFields(logger.Fields{
		"client_id":    client.ID(),
		"channel":      client.Channel(),
		"subscription": sub.ID(),
	})

	if err := client.Send(ctx, Connected(client.ID(), client.Channel())); err != nil {
		return fmt.Errorf("greet client %s: %w", client.ID(), err)
	}
	log.Info("client attached")

	for {
		select {
		case env, ok := <-queue.Out:
			if !ok {
				return nil
			}
			if err := client.Send(ctx, env); err != nil {
				return fmt.Errorf("send to client %s: %w", client.ID(), err)
			}

		case <-client.Context().Done():
			log.Info("client detached")
			return nil

		case <-ctx.Done():
			log.Info("client request ended")
			return nil
		}
	}
}
