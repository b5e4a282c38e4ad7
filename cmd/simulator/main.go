// Command simulator serves synthetic vehicle positions as a server-push
// stream for running the gateway locally.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/spf13/pflag"
	"golang.org/x/sync/errgroup"

	"go-fleet-live/internal/infrastructure/logger"
	"go-fleet-live/internal/infrastructure/server"
	"go-fleet-live/internal/simulator"
)

func main() {
	def := simulator.DefaultConfig()

	addr := pflag.String("addr", ":8090", "listen address")
	logLevel := pflag.String("log-level", "info", "log level")
	vehicles := pflag.Int("vehicles", def.Vehicles, "number of simulated vehicles")
	lat := pflag.Float64("lat", def.Lat, "latitude the fleet starts around")
	lon := pflag.Float64("lon", def.Lon, "longitude the fleet starts around")
	seed := pflag.Int64("seed", def.Seed, "random seed")
	interval := pflag.Duration("interval", def.Interval, "time between position updates")
	retry := pflag.Duration("retry", def.Retry, "reconnect delay advised to clients")
	keepAlive := pflag.Duration("keep-alive", def.KeepAlive, "comment keep-alive interval, 0 to disable")
	pflag.Parse()

	lCfg := logger.NewDefaultConfig()
	if level, err := logger.ParseLevel(*logLevel); err == nil {
		lCfg.Level = level
	}
	lCfg.Fields["service"] = "fleet-simulator"
	log := logger.NewLogrusLogger(lCfg)

	gin.SetMode(gin.ReleaseMode)
	sim := simulator.NewServer(simulator.Config{
		Vehicles:  *vehicles,
		Lat:       *lat,
		Lon:       *lon,
		Seed:      *seed,
		Interval:  *interval,
		Retry:     *retry,
		KeepAlive: *keepAlive,
	}, log)
	httpSrv := server.NewHTTPServer(sim.Router(), server.Options{
		Addr:              *addr,
		ReadHeaderTimeout: 10 * time.Second,
	}, log)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	eg, ctx := errgroup.WithContext(ctx)
	eg.Go(func() error { return sim.Run(ctx) })
	eg.Go(func() error { return httpSrv.Start(ctx) })
	eg.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return httpSrv.Stop(shutdownCtx)
	})

	if err := eg.Wait(); err != nil {
		log.Errorf("simulator stopped: %v", err)
		os.Exit(1)
	}
}
