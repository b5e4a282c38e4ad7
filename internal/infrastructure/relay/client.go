package relay

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gin-contrib/sse"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"go-fleet-live/internal/infrastructure/logger"
)

const (
	TypeSSE       = "sse"
	TypeWebSocket = "websocket"
)

// SSEClient streams envelopes to an HTTP response as server-sent events.
type SSEClient struct {
	id      string
	channel string
	writer  http.ResponseWriter

	ctx    context.Context
	cancel context.CancelFunc

	closed   bool
	closedMu sync.RWMutex

	// Send is called by the relay pump and the keep-alive loop. Close takes
	// writeMu too, so no write is in flight once it returns.
	writeMu sync.Mutex

	keepAliveDone chan struct{}

	logger logger.Logger
}

var _ Client = (*SSEClient)(nil)

// NewSSEClient prepares w for streaming. A keepAlive of zero disables
// keep-alive events.
func NewSSEClient(
	ctx context.Context,
	channel string,
	w http.ResponseWriter,
	keepAlive time.Duration,
	log logger.Logger,
) *SSEClient {
	cctx, cancel := context.WithCancel(ctx)
	id := "sse-" + uuid.NewString()

	c := &SSEClient{
		id:      id,
		channel: channel,
		writer:  w,
		ctx:     cctx,
		cancel:  cancel,
		logger:  log.WithFields(logger.Fields{"client_id": id, "channel": channel}),
	}

	h := w.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	h.Set("X-Accel-Buffering", "no") // nginx

	if keepAlive > 0 {
		c.keepAliveDone = make(chan struct{})
		go c.keepAlive(keepAlive)
	}

	return c
}

func (c *SSEClient) ID() string               { return c.id }
func (c *SSEClient) Type() string             { return TypeSSE }
func (c *SSEClient) Channel() string          { return c.channel }
func (c *SSEClient) Context() context.Context { return c.ctx }

func (c *SSEClient) Send(ctx context.Context, env *Envelope) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	if c.IsClosed() {
		return ErrClientClosed
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	err := sse.Encode(c.writer, sse.Event{
		Id:    env.ID,
		Event: env.Type,
		Data:  env.Data,
	})
	if err != nil {
		c.logger.Errorf("failed to write event: %v", err)
		c.markClosed()
		return fmt.Errorf("write event: %w", err)
	}
	if flusher, ok := c.writer.(http.Flusher); ok {
		flusher.Flush()
	}
	return nil
}

// Close stops the client and returns once no write to the response is in
// flight and the keep-alive loop has exited, whichever caller closed it
// first. The handler owning the response must not return before Close does.
func (c *SSEClient) Close() error {
	first := c.markClosed()

	// Wait out a write that started before the client was marked closed.
	c.writeMu.Lock()
	c.writeMu.Unlock()

	if c.keepAliveDone != nil {
		<-c.keepAliveDone
	}

	if first {
		c.logger.Info("SSE client closed")
	}
	return nil
}

// markClosed flags the client closed and cancels its context. It reports
// whether this call did it.
func (c *SSEClient) markClosed() bool {
	c.closedMu.Lock()
	defer c.closedMu.Unlock()

	if c.closed {
		return false
	}
	c.closed = true
	c.cancel()
	return true
}

func (c *SSEClient) IsClosed() bool {
	c.closedMu.RLock()
	defer c.closedMu.RUnlock()
	return c.closed
}

func (c *SSEClient) keepAlive(every time.Duration) {
	defer close(c.keepAliveDone)

	ticker := time.NewTicker(every)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if err := c.Send(c.ctx, KeepAlive()); err != nil {
				return
			}
		case <-c.ctx.Done():
			return
		}
	}
}

// WebSocketClient sends envelopes as JSON text frames. Inbound frames are
// read only to notice the peer going away.
type WebSocketClient struct {
	id      string
	channel string
	conn    *websocket.Conn

	ctx    context.Context
	cancel context.CancelFunc

	closed   bool
	closedMu sync.RWMutex

	logger logger.Logger

	send chan *Envelope

	writeTimeout time.Duration
	pongTimeout  time.Duration
	pingInterval time.Duration
}

var _ Client = (*WebSocketClient)(nil)

func NewWebSocketClient(
	ctx context.Context,
	channel string,
	conn *websocket.Conn,
	log logger.Logger,
) *WebSocketClient {
	cctx, cancel := context.WithCancel(ctx)
	id := "ws-" + uuid.NewString()

	c := &WebSocketClient{
		id:           id,
		channel:      channel,
		conn:         conn,
		ctx:          cctx,
		cancel:       cancel,
		logger:       log.WithFields(logger.Fields{"client_id": id, "channel": channel}),
		send:         make(chan *Envelope, 256),
		writeTimeout: 10 * time.Second,
		pongTimeout:  60 * time.Second,
		pingInterval: 54 * time.Second,
	}

	conn.SetReadDeadline(time.Now().Add(c.pongTimeout))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(c.pongTimeout))
	})

	go c.writePump()
	go c.readPump()

	return c
}

func (c *WebSocketClient) ID() string               { return c.id }
func (c *WebSocketClient) Type() string             { return TypeWebSocket }
func (c *WebSocketClient) Channel() string          { return c.channel }
func (c *WebSocketClient) Context() context.Context { return c.ctx }

func (c *WebSocketClient) Send(ctx context.Context, env *Envelope) error {
	if c.IsClosed() {
		return ErrClientClosed
	}

	select {
	case c.send <- env:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-c.ctx.Done():
		return ErrClientClosed
	case <-time.After(5 * time.Second):
		return fmt.Errorf("send to %s timed out", c.id)
	}
}

// Close cancels the client; the write pump sends the close frame and
// releases the socket.
func (c *WebSocketClient) Close() error {
	c.closedMu.Lock()
	defer c.closedMu.Unlock()

	if c.closed {
		return nil
	}
	c.closed = true
	c.cancel()

	c.logger.Info("WebSocket client closed")
	return nil
}

func (c *WebSocketClient) IsClosed() bool {
	c.closedMu.RLock()
	defer c.closedMu.RUnlock()
	return c.closed
}

func (c *WebSocketClient) writePump() {
	ticker := time.NewTicker(c.pingInterval)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case env := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(c.writeTimeout))
			if err := c.conn.WriteJSON(env); err != nil {
				c.logger.Errorf("failed to write frame: %v", err)
				c.Close()
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(c.writeTimeout))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.logger.Errorf("failed to send ping: %v", err)
				c.Close()
				return
			}

		case <-c.ctx.Done():
			c.conn.WriteControl(
				websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(c.writeTimeout),
			)
			return
		}
	}
}

func (c *WebSocketClient) readPump() {
	defer c.Close()

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(
				err,
				websocket.CloseGoingAway,
				websocket.CloseNormalClosure,
			) {
				c.logger.Warnf("WebSocket read error: %v", err)
			}
			return
		}
	}
}
