package simulator

import (
	"context"
	"io"
	"net/http"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/gin-contrib/sse"
	"github.com/gin-gonic/gin"

	"go-fleet-live/internal/domain/fleet"
	"go-fleet-live/internal/infrastructure/logger"
)

type Config struct {
	Vehicles  int
	Lat       float64
	Lon       float64
	Seed      int64
	Interval  time.Duration // time between position updates
	Retry     time.Duration // reconnect delay advised to clients
	KeepAlive time.Duration
}

func DefaultConfig() Config {
	return Config{
		Vehicles:  25,
		Lat:       37.5665,
		Lon:       126.9780,
		Seed:      1,
		Interval:  time.Second,
		Retry:     3 * time.Second,
		KeepAlive: 15 * time.Second,
	}
}

// Server moves the fleet and streams every position on the location channel.
type Server struct {
	cfg    Config
	fleet  *Fleet
	logger logger.Logger

	seq     atomic.Uint64
	streams atomic.Int64
}

func NewServer(cfg Config, log logger.Logger) *Server {
	return &Server{
		cfg:    cfg,
		fleet:  NewFleet(cfg.Vehicles, cfg.Lat, cfg.Lon, cfg.Seed),
		logger: log.WithField("component", "simulator"),
	}
}

// Run advances the fleet every interval until ctx is done.
func (s *Server) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()

	last := time.Now()
	for {
		select {
		case now := <-ticker.C:
			s.fleet.Step(now.Sub(last))
			last = now
		case <-ctx.Done():
			return nil
		}
	}
}

func (s *Server) Router() *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())

	router.GET("/events", s.Stream)
	router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":   "ok",
			"vehicles": s.fleet.Len(),
			"streams":  s.streams.Load(),
		})
	})
	return router
}

// Stream sends the whole fleet immediately and then again on every interval.
func (s *Server) Stream(c *gin.Context) {
	s.streams.Add(1)
	defer s.streams.Add(-1)

	log := s.logger.WithField("remote", c.ClientIP())
	if last := c.GetHeader("Last-Event-ID"); last != "" {
		log.Infof("client resuming after event %s", last)
	}

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")

	if s.cfg.Retry > 0 {
		io.WriteString(c.Writer, "retry: "+strconv.FormatInt(s.cfg.Retry.Milliseconds(), 10)+"\n\n")
	}
	s.sendFleet(c)

	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()

	var keepAlive <-chan time.Time
	if s.cfg.KeepAlive > 0 {
		t := time.NewTicker(s.cfg.KeepAlive)
		defer t.Stop()
		keepAlive = t.C
	}

	ctx := c.Request.Context()
	c.Stream(func(w io.Writer) bool {
		select {
		case <-ticker.C:
			s.sendFleet(c)
			return true
		case <-keepAlive:
			io.WriteString(w, ": keep-alive\n\n")
			return true
		case <-ctx.Done():
			log.Debug("stream closed by client")
			return false
		}
	})
}

func (s *Server) sendFleet(c *gin.Context) {
	for _, loc := range s.fleet.Snapshot() {
		c.Render(-1, sse.Event{
			Id:    strconv.FormatUint(s.seq.Add(1), 10),
			Event: fleet.LocationChannel,
			Data:  loc,
		})
	}
	c.Writer.Flush()
}
