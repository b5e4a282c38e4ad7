package simulator

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	logtest "github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go-fleet-live/internal/application/tracker"
	"go-fleet-live/internal/domain/fleet"
	"go-fleet-live/internal/infrastructure/eventsource"
	"go-fleet-live/internal/infrastructure/hub"
	"go-fleet-live/internal/infrastructure/logger"
)

func testLogger() logger.Logger {
	base, _ := logtest.NewNullLogger()
	return logger.FromEntry(logrus.NewEntry(base))
}

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.Vehicles = 3
	cfg.Interval = 20 * time.Millisecond
	cfg.Retry = 50 * time.Millisecond
	cfg.KeepAlive = 30 * time.Millisecond
	return cfg
}

func TestServer_StreamsLocationEvents(t *testing.T) {
	gin.SetMode(gin.TestMode)
	srv := NewServer(testConfig(), testLogger())
	ts := httptest.NewServer(srv.Router())
	defer ts.Close()

	events := make(chan eventsource.Event, 64)
	src := eventsource.New(ts.URL+"/events",
		eventsource.WithHTTPClient(ts.Client()),
		eventsource.WithReconnect(eventsource.ReconnectPolicy{Enabled: false}),
	)
	src.AddEventListener(fleet.LocationChannel, func(ev eventsource.Event) {
		select {
		case events <- ev:
		default:
		}
	})

	seen := make(map[int64]bool)
	deadline := time.After(2 * time.Second)
	for len(seen) < 3 {
		select {
		case ev := <-events:
			var loc fleet.VehicleLocation
			require.NoError(t, json.Unmarshal([]byte(ev.Data), &loc))
			require.NoError(t, loc.Validate())
			assert.NotEmpty(t, ev.ID)
			seen[loc.VehicleID] = true
		case <-deadline:
			t.Fatalf("saw vehicles %v before timing out", seen)
		}
	}

	src.Close()
	<-src.Done()
}

func TestServer_FeedsTrackerThroughHub(t *testing.T) {
	gin.SetMode(gin.TestMode)
	log := testLogger()
	srv := NewServer(testConfig(), log)
	ts := httptest.NewServer(srv.Router())
	defer ts.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go srv.Run(ctx)

	h := hub.New(ts.URL+"/events", hub.DialerFunc(func(url string) hub.Stream {
		return eventsource.New(url,
			eventsource.WithHTTPClient(ts.Client()),
			eventsource.WithLogger(log),
		)
	}), log)
	defer h.Stop(context.Background())

	tr, err := tracker.New(h, fleet.LocationChannel, 10, log)
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() { done <- tr.Run(ctx) }()

	require.Eventually(t, func() bool { return tr.Len() == 3 }, 2*time.Second, 10*time.Millisecond)
	assert.True(t, h.Stats().Connected)

	positions := tr.Positions()
	assert.Equal(t, int64(1), positions[0].VehicleID)
	assert.Equal(t, int64(3), positions[2].VehicleID)

	cancel()
	require.NoError(t, <-done)
	assert.Equal(t, 0, h.SubscriberCount())
}

func TestServer_Healthz(t *testing.T) {
	gin.SetMode(gin.TestMode)
	srv := NewServer(testConfig(), testLogger())

	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, float64(3), body["vehicles"])
	assert.Equal(t, float64(0), body["streams"])
}
