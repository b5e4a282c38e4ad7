// Package eventsource is a Server-Sent Events client modelled on the browser
// EventSource: one long-lived GET request, events routed to listeners by
// event type, and automatic reconnection with Last-Event-ID.
package eventsource

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"go-fleet-live/internal/infrastructure/logger"
)

// ReadyState mirrors the EventSource readyState attribute.
type ReadyState int32

const (
	Connecting ReadyState = iota
	Open
	Closed
)

func (s ReadyState) String() string {
	switch s {
	case Connecting:
		return "connecting"
	case Open:
		return "open"
	case Closed:
		return "closed"
	}
	return "unknown"
}

// DefaultEventType is used for frames that carry no event field.
const DefaultEventType = "message"

var (
	// ErrStreamEnded is reported when the server closes the response body.
	ErrStreamEnded = errors.New("event stream ended by server")
	// ErrNoContent is reported when the server answers 204, which tells the
	// client to stop reconnecting.
	ErrNoContent = errors.New("server answered 204 No Content")
)

// StatusError is reported for any response other than 200 or 204.
type StatusError struct {
	Code int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("unexpected status %d %s", e.Code, http.StatusText(e.Code))
}

// Event is one dispatched server-sent event.
type Event struct {
	ID   string
	Type string
	Data string
}

type Listener func(Event)

type Option func(*Source)

func WithHTTPClient(client *http.Client) Option {
	return func(s *Source) { s.client = client }
}

func WithHeader(key, value string) Option {
	return func(s *Source) { s.header.Set(key, value) }
}

func WithLogger(log logger.Logger) Option {
	return func(s *Source) { s.logger = log }
}

func WithReconnect(policy ReconnectPolicy) Option {
	return func(s *Source) { s.policy = policy }
}

// Source is a single server-sent event stream.
type Source struct {
	url     string
	client  *http.Client
	header  http.Header
	policy  ReconnectPolicy
	limiter *rate.Limiter
	logger  logger.Logger

	state atomic.Int32

	mu        sync.RWMutex
	listeners map[string]Listener
	onError   func(error)
	onOpen    func()
	lastID    string
	retry     time.Duration

	ctx       context.Context
	cancel    context.CancelFunc
	closeOnce sync.Once
	done      chan struct{}
}

// New creates the source and starts connecting in the background.
func New(url string, opts ...Option) *Source {
	ctx, cancel := context.WithCancel(context.Background())

	s := &Source{
		url:       url,
		client:    http.DefaultClient,
		header:    make(http.Header),
		policy:    DefaultReconnectPolicy(),
		listeners: make(map[string]Listener),
		ctx:       ctx,
		cancel:    cancel,
		done:      make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		discard := logrus.New()
		discard.SetOutput(io.Discard)
		s.logger = logger.FromEntry(logrus.NewEntry(discard))
	}
	s.logger = s.logger.WithField("url", url)
	s.retry = s.policy.Delay
	s.limiter = s.policy.newLimiter()

	go s.run()

	return s
}

func (s *Source) URL() string { return s.url }

func (s *Source) ReadyState() ReadyState {
	return ReadyState(s.state.Load())
}

// AddEventListener routes events of the given type to listener. There is a
// single listener per type; adding another replaces it.
func (s *Source) AddEventListener(eventType string, listener Listener) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listeners[eventType] = listener
}

func (s *Source) RemoveEventListener(eventType string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.listeners, eventType)
}

// OnError sets the handler for connection-level failures. It runs on the
// reader goroutine.
func (s *Source) OnError(handler func(error)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onError = handler
}

func (s *Source) OnOpen(handler func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onOpen = handler
}

// LastEventID returns the id of the most recent event that carried one.
func (s *Source) LastEventID() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastID
}

// Close stops the stream without waiting for the reader goroutine; use Done
// to wait for it.
func (s *Source) Close() error {
	s.closeOnce.Do(func() {
		s.state.Store(int32(Closed))
		s.cancel()
		s.logger.Debug("event source closed")
	})
	return nil
}

// Done is closed once the reader goroutine has exited.
func (s *Source) Done() <-chan struct{} {
	return s.done
}

func (s *Source) run() {
	defer close(s.done)
	defer s.state.Store(int32(Closed))

	for {
		err := s.connect()
		if s.ctx.Err() != nil {
			return
		}
		s.fail(err)

		if errors.Is(err, ErrNoContent) || !s.policy.Enabled {
			return
		}
		if !s.transition(Connecting) {
			return
		}
		if err := s.backoff(); err != nil {
			return
		}
	}
}

func (s *Source) connect() error {
	req, err := http.NewRequestWithContext(s.ctx, http.MethodGet, s.url, nil)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	for key, values := range s.header {
		for _, v := range values {
			req.Header.Add(key, v)
		}
	}
	req.Header.Set("Accept", "text/event-stream")
	req.Header.Set("Cache-Control", "no-cache")
	if id := s.LastEventID(); id != "" {
		req.Header.Set("Last-Event-ID", id)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("connect: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNoContent:
		return ErrNoContent
	case resp.StatusCode != http.StatusOK:
		return &StatusError{Code: resp.StatusCode}
	}
	if ct := resp.Header.Get("Content-Type"); !strings.HasPrefix(ct, "text/event-stream") {
		return fmt.Errorf("unexpected content type %q", ct)
	}

	if !s.transition(Open) {
		return context.Canceled
	}
	s.logger.Info("event stream open")

	s.mu.RLock()
	onOpen := s.onOpen
	s.mu.RUnlock()
	if onOpen != nil {
		onOpen()
	}

	return s.consume(resp.Body)
}

func (s *Source) consume(body io.Reader) error {
	frames := newFrameReader(body)
	for {
		frame, err := frames.next()
		if err != nil {
			if errors.Is(err, io.EOF) {
				return ErrStreamEnded
			}
			return fmt.Errorf("read stream: %w", err)
		}
		for _, ev := range s.decodeFrame(frame) {
			s.dispatch(ev)
		}
	}
}

func (s *Source) dispatch(ev Event) {
	s.mu.RLock()
	listener := s.listeners[ev.Type]
	s.mu.RUnlock()

	if listener == nil || s.ReadyState() == Closed {
		return
	}
	listener(ev)
}

func (s *Source) fail(err error) {
	s.logger.Debugf("event stream error: %v", err)

	s.mu.RLock()
	onError := s.onError
	s.mu.RUnlock()
	if onError != nil {
		onError(err)
	}
}

// transition moves to the given state unless the source has been closed.
func (s *Source) transition(to ReadyState) bool {
	for {
		cur := s.state.Load()
		if ReadyState(cur) == Closed {
			return false
		}
		if s.state.CompareAndSwap(cur, int32(to)) {
			return true
		}
	}
}

func (s *Source) backoff() error {
	s.mu.RLock()
	delay := s.retry
	s.mu.RUnlock()

	timer := time.NewTimer(delay)
	defer timer.Stop()

	select {
	case <-timer.C:
	case <-s.ctx.Done():
		return s.ctx.Err()
	}
	return s.limiter.Wait(s.ctx)
}

// ReconnectPolicy decides whether and how fast a dropped stream is reopened.
type ReconnectPolicy struct {
	Enabled bool          `mapstructure:"enabled"`
	Delay   time.Duration `mapstructure:"delay"` // overridden by the server's retry field
	// PerMinute caps reconnect attempts; zero or less means no cap.
	PerMinute int `mapstructure:"per_minute"`
	Burst     int `mapstructure:"burst"`
}

func DefaultReconnectPolicy() ReconnectPolicy {
	return ReconnectPolicy{
		Enabled:   true,
		Delay:     3 * time.Second,
		PerMinute: 20,
		Burst:     3,
	}
}

func (p ReconnectPolicy) newLimiter() *rate.Limiter {
	if p.PerMinute <= 0 {
		return rate.NewLimiter(rate.Inf, 0)
	}
	burst := p.Burst
	if burst < 1 {
		burst = 1
	}
	return rate.NewLimiter(rate.Every(time.Minute/time.Duration(p.PerMinute)), burst)
}
