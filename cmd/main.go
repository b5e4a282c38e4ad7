package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"golang.org/x/sync/errgroup"

	"go-fleet-live/internal/application/tracker"
	"go-fleet-live/internal/infrastructure/config"
	"go-fleet-live/internal/infrastructure/eventsource"
	"go-fleet-live/internal/infrastructure/hub"
	"go-fleet-live/internal/infrastructure/logger"
	"go-fleet-live/internal/infrastructure/relay"
	"go-fleet-live/internal/infrastructure/server"
)

func main() {
	cfg, err := config.Load(os.Args[1:])
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}

	ctx := context.Background()
	sctx := WithSignal(ctx)

	log := logger.NewLogrusLogger(&cfg.Log)

	hubInstance := hub.New(cfg.Upstream.URL, upstreamDialer(cfg, log), log)

	registry := relay.NewRegistry(log)
	if err := registry.Start(ctx); err != nil {
		log.Errorf("failed to start client registry: %v", err)
		return
	}

	trackerInstance, err := tracker.New(hubInstance, cfg.Tracker.Channel, cfg.Tracker.CacheSize, log)
	if err != nil {
		log.Errorf("failed to create tracker: %v", err)
		return
	}

	deps := routerDeps{
		hub:      hubInstance,
		registry: registry,
		relay:    relay.New(hubInstance, registry, log),
		tracker:  trackerInstance,
	}
	router := InitRouter(cfg, deps, log)
	httpSrv := server.NewHTTPServer(router, server.Options{
		Addr:              cfg.Server.Addr,
		ReadHeaderTimeout: cfg.Server.ReadHeaderTimeout,
		IdleTimeout:       cfg.Server.IdleTimeout,
	}, log)

	app := newApplication(cfg, log, httpSrv, deps)
	if err := app.Run(sctx); err != nil {
		log.Errorf("failed to run application: %v", err)
	}
}

// upstreamDialer opens the shared upstream stream with the configured
// headers and reconnect policy.
func upstreamDialer(cfg *config.Config, log logger.Logger) hub.Dialer {
	opts := []eventsource.Option{
		eventsource.WithLogger(log),
		eventsource.WithReconnect(cfg.Upstream.Reconnect),
	}
	for k, v := range cfg.Upstream.Headers {
		opts = append(opts, eventsource.WithHeader(k, v))
	}

	return hub.DialerFunc(func(url string) hub.Stream {
		return eventsource.New(url, opts...)
	})
}

type Application struct {
	cfg      *config.Config
	logger   logger.Logger
	httpSrv  server.Server
	hub      *hub.Hub
	registry *relay.Registry
	tracker  *tracker.Tracker
}

func newApplication(
	cfg *config.Config,
	logger logger.Logger,
	httpSrv server.Server,
	deps routerDeps,
) *Application {
	return &Application{
		cfg:      cfg,
		logger:   logger.WithField("app", "fleet-live"),
		httpSrv:  httpSrv,
		hub:      deps.hub,
		registry: deps.registry,
		tracker:  deps.tracker,
	}
}

func (app *Application) Run(ctx context.Context) error {
	eg, ctx := errgroup.WithContext(ctx)

	eg.Go(func() error {
		return app.httpSrv.Start(ctx)
	})

	eg.Go(func() error {
		return app.tracker.Run(ctx)
	})

	eg.Go(func() error {
		<-ctx.Done()

		gracefulshutdownCtx, cancel := context.WithTimeout(
			context.Background(),
			app.cfg.Server.ShutdownTimeout,
		)
		defer cancel()

		// Release the upstream stream first, then the downstream clients,
		// so the HTTP server has only idle connections left to drain.
		if err := app.hub.Stop(gracefulshutdownCtx); err != nil {
			app.logger.Errorf("failed to stop hub: %v", err)
		}
		if err := app.registry.Stop(gracefulshutdownCtx); err != nil {
			app.logger.Errorf("failed to stop client registry: %v", err)
		}

		return app.httpSrv.Stop(gracefulshutdownCtx)
	})

	return eg.Wait()
}

func WithSignal(pctx context.Context) context.Context {
	ctx, cancel := context.WithCancel(pctx)

	go func() {
		sigc := make(chan os.Signal, 1)
		signal.Notify(sigc, syscall.SIGINT, syscall.SIGTERM)

		<-sigc

		cancel()
	}()

	return ctx
}
