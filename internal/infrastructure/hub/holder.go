package hub

import (
	"sync/atomic"

	"go-fleet-live/internal/infrastructure/logger"
)

// connectionHolder owns the single shared stream. Access is serialised by
// the Hub's mutex; only the error counter is touched from the stream's own
// goroutine.
type connectionHolder struct {
	dialer Dialer
	logger logger.Logger

	stream Stream
	url    string
	opened uint64
	errors atomic.Uint64
}

func newConnectionHolder(dialer Dialer, log logger.Logger) *connectionHolder {
	return &connectionHolder{dialer: dialer, logger: log}
}

// ensureOpen returns the shared stream, dialing url when there is none. While
// a stream exists the url argument is ignored.
func (c *connectionHolder) ensureOpen(url string) Stream {
	if c.stream != nil {
		if url != c.url {
			c.logger.Warnf("stream to %s already open, ignoring %s", c.url, url)
		}
		return c.stream
	}

	log := c.logger.WithField("endpoint", url)
	stream := c.dialer.Dial(url)
	// Errors are only logged: the stream reconnects by itself or stays down
	// until the last subscriber leaves.
	stream.OnError(func(err error) {
		c.errors.Add(1)
		log.Errorf("shared stream error: %v", err)
	})

	c.stream = stream
	c.url = url
	c.opened++
	log.Info("shared stream opened")
	return stream
}

// closeIfIdle closes the stream when no subscriber is left.
func (c *connectionHolder) closeIfIdle(subscribers int) bool {
	if subscribers > 0 || c.stream == nil {
		return false
	}
	c.close()
	return true
}

func (c *connectionHolder) close() {
	if c.stream == nil {
		return
	}
	if err := c.stream.Close(); err != nil {
		c.logger.Errorf("failed to close shared stream: %v", err)
	}
	c.logger.WithField("endpoint", c.url).Info("shared stream closed")
	c.stream = nil
	c.url = ""
}

func (c *connectionHolder) current() Stream {
	return c.stream
}
