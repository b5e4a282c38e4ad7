package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"go-fleet-live/internal/infrastructure/logger"
)

type Server interface {
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
}

type Options struct {
	Addr              string
	ReadHeaderTimeout time.Duration
	IdleTimeout       time.Duration
}

type HTTPServer struct {
	handler http.Handler
	opts    Options
	logger  logger.Logger

	mu      sync.Mutex
	srv     *http.Server
	addr    net.Addr
	ready   chan struct{}
	stopped bool
}

var _ Server = (*HTTPServer)(nil)

func NewHTTPServer(handler http.Handler, opts Options, log logger.Logger) *HTTPServer {
	return &HTTPServer{
		handler: handler,
		opts:    opts,
		logger:  log.WithField("component", "http-server"),
		ready:   make(chan struct{}),
	}
}

// Start listens and serves until Stop. Streaming responses stay open for as
// long as the client does, so no write timeout is set. Once Stop has been
// called, Start returns nil without serving.
func (h *HTTPServer) Start(ctx context.Context) error {
	ln, err := net.Listen("tcp", h.opts.Addr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", h.opts.Addr, err)
	}

	h.mu.Lock()
	if h.stopped {
		h.mu.Unlock()
		ln.Close()
		h.logger.Info("stopped before serving")
		return nil
	}
	h.srv = &http.Server{
		Handler:           h.handler,
		ReadHeaderTimeout: h.opts.ReadHeaderTimeout,
		IdleTimeout:       h.opts.IdleTimeout,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}
	h.addr = ln.Addr()
	close(h.ready)
	srv := h.srv
	h.mu.Unlock()

	h.logger.Infof("listening on %s", ln.Addr())

	var eg errgroup.Group
	eg.Go(func() error {
		err := srv.Serve(ln)
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}

		return nil
	})

	return eg.Wait()
}

// Ready is closed once the server is listening.
func (h *HTTPServer) Ready() <-chan struct{} {
	return h.ready
}

func (h *HTTPServer) Addr() net.Addr {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.addr
}

// Stop drains in-flight requests. Connections still open when ctx expires
// are closed forcibly.
func (h *HTTPServer) Stop(ctx context.Context) error {
	h.mu.Lock()
	h.stopped = true
	srv := h.srv
	h.mu.Unlock()

	if srv == nil {
		return nil
	}

	if err := srv.Shutdown(ctx); err != nil {
		h.logger.Warnf("graceful shutdown incomplete: %v", err)
		return srv.Close()
	}
	return nil
}
