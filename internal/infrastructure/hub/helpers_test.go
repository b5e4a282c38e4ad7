package hub

import (
	"sync"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"go.uber.org/goleak"

	"go-fleet-live/internal/infrastructure/eventsource"
	"go-fleet-live/internal/infrastructure/logger"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

const testEndpoint = "http://fleet.test/events"

// fakeStream stands in for the SSE connection; tests push events with emit.
type fakeStream struct {
	url string

	mu        sync.Mutex
	listeners map[string]eventsource.Listener
	onError   func(error)
	closed    bool
}

func (s *fakeStream) AddEventListener(eventType string, l eventsource.Listener) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listeners[eventType] = l
}

func (s *fakeStream) RemoveEventListener(eventType string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.listeners, eventType)
}

func (s *fakeStream) OnError(handler func(error)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onError = handler
}

func (s *fakeStream) ReadyState() eventsource.ReadyState {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return eventsource.Closed
	}
	return eventsource.Open
}

func (s *fakeStream) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

func (s *fakeStream) listener(eventType string) eventsource.Listener {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.listeners[eventType]
}

func (s *fakeStream) listenerCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.listeners)
}

func (s *fakeStream) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// emit delivers an event the way the transport would: only to an attached
// listener for that event type.
func (s *fakeStream) emit(eventType, data string) {
	if l := s.listener(eventType); l != nil {
		l(eventsource.Event{Type: eventType, Data: data})
	}
}

func (s *fakeStream) fail(err error) {
	s.mu.Lock()
	h := s.onError
	s.mu.Unlock()
	if h != nil {
		h(err)
	}
}

type fakeDialer struct {
	mu      sync.Mutex
	streams []*fakeStream
}

func (d *fakeDialer) Dial(url string) Stream {
	d.mu.Lock()
	defer d.mu.Unlock()
	s := &fakeStream{url: url, listeners: make(map[string]eventsource.Listener)}
	d.streams = append(d.streams, s)
	return s
}

func (d *fakeDialer) dialed() []*fakeStream {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]*fakeStream(nil), d.streams...)
}

func (d *fakeDialer) last() *fakeStream {
	streams := d.dialed()
	if len(streams) == 0 {
		return nil
	}
	return streams[len(streams)-1]
}

func newTestHub(t *testing.T) (*Hub, *fakeDialer, *test.Hook) {
	t.Helper()
	base, hook := test.NewNullLogger()
	base.SetLevel(logrus.DebugLevel)
	dialer := &fakeDialer{}
	return New(testEndpoint, dialer, logger.FromEntry(logrus.NewEntry(base))), dialer, hook
}

func errorEntries(hook *test.Hook) []logrus.Entry {
	var out []logrus.Entry
	for _, e := range hook.AllEntries() {
		if e.Level == logrus.ErrorLevel {
			out = append(out, *e)
		}
	}
	return out
}

// recorder collects invocations from several handlers in call order.
type recorder struct {
	mu    sync.Mutex
	calls []string
	msgs  []*Message
}

func (r *recorder) handler(name string) Handler {
	return func(msg *Message) {
		r.mu.Lock()
		defer r.mu.Unlock()
		r.calls = append(r.calls, name)
		r.msgs = append(r.msgs, msg)
	}
}

func (r *recorder) names() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.calls...)
}

func (r *recorder) reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = nil
	r.msgs = nil
}
