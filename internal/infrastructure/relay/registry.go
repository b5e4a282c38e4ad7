package relay

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go-fleet-live/internal/infrastructure/logger"
)

var (
	ErrRegistryStopped = errors.New("client registry is not running")
	ErrRegistryBusy    = errors.New("client registry did not accept the request in time")
)

// Registry keeps track of the downstream clients currently attached to the
// gateway. Registration requests are processed by a single loop goroutine.
type Registry struct {
	clients   map[string]Client
	clientsMu sync.RWMutex

	running   bool
	runningMu sync.RWMutex

	logger logger.Logger

	register   chan Client
	unregister chan string

	cleanupInterval time.Duration

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewRegistry(log logger.Logger) *Registry {
	return &Registry{
		clients:         make(map[string]Client),
		logger:          log.WithField("component", "client-registry"),
		register:        make(chan Client, 100),
		unregister:      make(chan string, 100),
		cleanupInterval: 30 * time.Second,
	}
}

func (r *Registry) Start(ctx context.Context) error {
	r.runningMu.Lock()
	defer r.runningMu.Unlock()

	if r.running {
		return fmt.Errorf("client registry is already running")
	}

	r.ctx, r.cancel = context.WithCancel(ctx)
	r.running = true

	r.wg.Add(1)
	go r.run()

	r.logger.Info("client registry started")
	return nil
}

// Stop closes every client and waits for the loop to exit.
func (r *Registry) Stop(ctx context.Context) error {
	r.runningMu.Lock()
	if !r.running {
		r.runningMu.Unlock()
		return nil
	}
	r.running = false
	r.cancel()
	r.runningMu.Unlock()

	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		return fmt.Errorf("stop client registry: %w", ctx.Err())
	}

	r.clientsMu.Lock()
	for _, c := range r.clients {
		if err := c.Close(); err != nil {
			r.logger.Errorf("failed to close client %s: %v", c.ID(), err)
		}
	}
	clear(r.clients)
	r.clientsMu.Unlock()

	r.logger.Info("client registry stopped")
	return nil
}

func (r *Registry) IsRunning() bool {
	r.runningMu.RLock()
	defer r.runningMu.RUnlock()
	return r.running
}

func (r *Registry) Register(c Client) error {
	if !r.IsRunning() {
		return ErrRegistryStopped
	}

	select {
	case r.register <- c:
		return nil
	case <-r.ctx.Done():
		return ErrRegistryStopped
	case <-time.After(5 * time.Second):
		return ErrRegistryBusy
	}
}

func (r *Registry) Unregister(id string) error {
	if !r.IsRunning() {
		return ErrRegistryStopped
	}

	select {
	case r.unregister <- id:
		return nil
	case <-r.ctx.Done():
		return ErrRegistryStopped
	case <-time.After(5 * time.Second):
		return ErrRegistryBusy
	}
}

func (r *Registry) Get(id string) (Client, bool) {
	r.clientsMu.RLock()
	defer r.clientsMu.RUnlock()

	c, ok := r.clients[id]
	return c, ok
}

func (r *Registry) List() []Client {
	r.clientsMu.RLock()
	defer r.clientsMu.RUnlock()

	out := make([]Client, 0, len(r.clients))
	for _, c := range r.clients {
		out = append(out, c)
	}
	return out
}

func (r *Registry) ListByType(clientType string) []Client {
	r.clientsMu.RLock()
	defer r.clientsMu.RUnlock()

	var out []Client
	for _, c := range r.clients {
		if c.Type() == clientType {
			out = append(out, c)
		}
	}
	return out
}

func (r *Registry) Count() int {
	r.clientsMu.RLock()
	defer r.clientsMu.RUnlock()
	return len(r.clients)
}

func (r *Registry) run() {
	defer r.wg.Done()

	ticker := time.NewTicker(r.cleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case c := <-r.register:
			r.handleRegister(c)

		case id := <-r.unregister:
			r.handleUnregister(id)

		case <-ticker.C:
			r.cleanupClosed()

		case <-r.ctx.Done():
			r.logger.Debug("client registry loop stopped")
			return
		}
	}
}

func (r *Registry) handleRegister(c Client) {
	r.clientsMu.Lock()
	r.clients[c.ID()] = c
	r.clientsMu.Unlock()

	r.logger.Infof("client %s registered (type: %s, channel: %s)", c.ID(), c.Type(), c.Channel())

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		select {
		case <-c.Context().Done():
			r.Unregister(c.ID())
		case <-r.ctx.Done():
		}
	}()
}

func (r *Registry) handleUnregister(id string) {
	r.clientsMu.Lock()
	c, exists := r.clients[id]
	if exists {
		delete(r.clients, id)
	}
	r.clientsMu.Unlock()

	if exists {
		c.Close()
		r.logger.Infof("client %s unregistered", id)
	}
}

func (r *Registry) cleanupClosed() {
	r.clientsMu.Lock()
	defer r.clientsMu.Unlock()

	for id, c := range r.clients {
		if c.IsClosed() {
			delete(r.clients, id)
			r.logger.Infof("cleaned up closed client %s", id)
		}
	}
}
