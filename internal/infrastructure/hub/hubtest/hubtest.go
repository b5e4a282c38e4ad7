// Package hubtest provides an in-memory upstream stream for testing code
// that consumes a hub.
package hubtest

import (
	"sync"

	"go-fleet-live/internal/infrastructure/eventsource"
	"go-fleet-live/internal/infrastructure/hub"
)

// Stream is a hub.Stream whose events are pushed by the test.
type Stream struct {
	mu        sync.Mutex
	listeners map[string]eventsource.Listener
	onError   func(error)
	closed    bool
}

var _ hub.Stream = (*Stream)(nil)

func NewStream() *Stream {
	return &Stream{listeners: make(map[string]eventsource.Listener)}
}

func (s *Stream) AddEventListener(eventType string, listener eventsource.Listener) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listeners[eventType] = listener
}

func (s *Stream) RemoveEventListener(eventType string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.listeners, eventType)
}

func (s *Stream) OnError(handler func(error)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onError = handler
}

func (s *Stream) ReadyState() eventsource.ReadyState {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return eventsource.Closed
	}
	return eventsource.Open
}

func (s *Stream) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

func (s *Stream) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// Listening reports whether a listener is attached for eventType.
func (s *Stream) Listening(eventType string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.listeners[eventType]
	return ok
}

// Emit delivers one event synchronously, as the reader goroutine of a real
// stream would. It reports whether a listener received it.
func (s *Stream) Emit(eventType, data string) bool {
	s.mu.Lock()
	listener := s.listeners[eventType]
	closed := s.closed
	s.mu.Unlock()

	if listener == nil || closed {
		return false
	}
	listener(eventsource.Event{Type: eventType, Data: data})
	return true
}

// Fail reports err through the registered error handler.
func (s *Stream) Fail(err error) {
	s.mu.Lock()
	handler := s.onError
	s.mu.Unlock()

	if handler != nil {
		handler(err)
	}
}

// Dialer hands out a new Stream per dial and remembers them.
type Dialer struct {
	mu      sync.Mutex
	streams []*Stream
	urls    []string
}

var _ hub.Dialer = (*Dialer)(nil)

func (d *Dialer) Dial(url string) hub.Stream {
	d.mu.Lock()
	defer d.mu.Unlock()

	s := NewStream()
	d.streams = append(d.streams, s)
	d.urls = append(d.urls, url)
	return s
}

func (d *Dialer) Dials() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.streams)
}

// Last returns the most recently dialled stream, or nil.
func (d *Dialer) Last() *Stream {
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.streams) == 0 {
		return nil
	}
	return d.streams[len(d.streams)-1]
}

func (d *Dialer) URLs() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]string(nil), d.urls...)
}
