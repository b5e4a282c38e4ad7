package relay

import (
	"context"
	"errors"
)

// ErrClientClosed is returned by Send once a client has been closed.
var ErrClientClosed = errors.New("client is closed")

// Client is one downstream consumer (SSE, WebSocket, ...) watching a single
// hub channel.
type Client interface {
	ID() string
	Type() string
	Channel() string
	Send(ctx context.Context, env *Envelope) error
	Close() error
	IsClosed() bool
	Context() context.Context
}
