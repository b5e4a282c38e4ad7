// Package tracker keeps the last known position of every vehicle seen on the
// location channel.
package tracker

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"go-fleet-live/internal/domain/fleet"
	"go-fleet-live/internal/infrastructure/hub"
	"go-fleet-live/internal/infrastructure/logger"
)

var ErrAlreadyRunning = errors.New("tracker is already running")

type Tracker struct {
	subscriber hub.Subscriber
	channel    string
	logger     logger.Logger

	// mu makes the compare-and-store in Update atomic; the cache has its
	// own lock for reads.
	mu        sync.Mutex
	positions *lru.Cache[int64, fleet.VehicleLocation]

	running  atomic.Bool
	received atomic.Uint64
	rejected atomic.Uint64
	stale    atomic.Uint64

	now func() time.Time
}

// New creates a tracker that remembers at most size vehicles, evicting the
// least recently updated one first.
func New(subscriber hub.Subscriber, channel string, size int, log logger.Logger) (*Tracker, error) {
	cache, err := lru.New[int64, fleet.VehicleLocation](size)
	if err != nil {
		return nil, fmt.Errorf("create position cache: %w", err)
	}

	return &Tracker{
		subscriber: subscriber,
		channel:    channel,
		logger:     log.WithFields(logger.Fields{"component": "tracker", "channel": channel}),
		positions:  cache,
		now:        time.Now,
	}, nil
}

// Run holds a subscription to the location channel until ctx is done.
func (t *Tracker) Run(ctx context.Context) error {
	if !t.running.CompareAndSwap(false, true) {
		return ErrAlreadyRunning
	}
	defer t.running.Store(false)

	sub, err := t.subscriber.Subscribe(t.channel, t.handle)
	if err != nil {
		return fmt.Errorf("subscribe to %s: %w", t.channel, err)
	}
	defer sub.Unsubscribe()

	t.logger.WithField("subscription", sub.ID()).Info("tracking vehicle positions")
	<-ctx.Done()
	t.logger.Info("tracker stopped")
	return nil
}

func (t *Tracker) IsRunning() bool {
	return t.running.Load()
}

func (t *Tracker) handle(msg *hub.Message) {
	t.received.Add(1)

	var loc fleet.VehicleLocation
	if err := msg.Decode(&loc); err != nil {
		t.rejected.Add(1)
		t.logger.WithField("payload", string(msg.Raw)).Warnf("undecodable location: %v", err)
		return
	}
	if err := loc.Validate(); err != nil {
		t.rejected.Add(1)
		t.logger.Warnf("rejected location: %v", err)
		return
	}
	if loc.Timestamp.IsZero() {
		loc.Timestamp = t.now().UTC()
	}

	if !t.Update(loc) {
		t.stale.Add(1)
		t.logger.Debugf("ignored stale location for vehicle %d", loc.VehicleID)
	}
}

// Update stores loc unless a newer position for the same vehicle is already
// known. It reports whether loc was stored.
func (t *Tracker) Update(loc fleet.VehicleLocation) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	if prev, ok := t.positions.Peek(loc.VehicleID); ok && prev.NewerThan(loc) {
		return false
	}
	t.positions.Add(loc.VehicleID, loc)
	return true
}

func (t *Tracker) Position(vehicleID int64) (fleet.VehicleLocation, bool) {
	return t.positions.Peek(vehicleID)
}

// Positions returns every known position ordered by vehicle id.
func (t *Tracker) Positions() []fleet.VehicleLocation {
	out := t.positions.Values()
	sort.Slice(out, func(i, j int) bool {
		return out[i].VehicleID < out[j].VehicleID
	})
	return out
}

func (t *Tracker) Len() int {
	return t.positions.Len()
}

type Stats struct {
	Channel  string `json:"channel"`
	Running  bool   `json:"running"`
	Tracked  int    `json:"tracked"`
	Received uint64 `json:"received"`
	Rejected uint64 `json:"rejected"`
	Stale    uint64 `json:"stale"`
}

func (t *Tracker) Stats() Stats {
	return Stats{
		Channel:  t.channel,
		Running:  t.IsRunning(),
		Tracked:  t.Len(),
		Received: t.received.Load(),
		Rejected: t.rejected.Load(),
		Stale:    t.stale.Load(),
	}
}
