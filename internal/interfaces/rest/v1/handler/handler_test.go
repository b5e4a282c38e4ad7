package handler

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
	"go-fleet-live/internal/infrastructure/hub"
	"go-fleet-live/internal/infrastructure/logger"
	"go-fleet-live/internal/infrastructure/relay"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type fixture struct {
	hub      *hub.Hub
	registry *relay.Registry
	tracker  *tracker.Tracker
	router   *gin.Engine
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	base, _ := logtest.NewNullLogger()
	log := logger.FromEntry(logrus.NewEntry(base))

	// No test subscribes, so the dialer is never used.
	h := hub.New("http://fleet.test/events", nil, log)
	registry := relay.NewRegistry(log)
	require.NoError(t, registry.Start(context.Background()))
	t.Cleanup(func() { registry.Stop(context.Background()) })

	tr, err := tracker.New(h, fleet.LocationChannel, 10, log)
	require.NoError(t, err)

	router := gin.New()
	vehicles := NewVehicleHandler(tr, log)
	hubHandler := NewHubHandler(h, registry, tr, log)
	router.GET("/hub/status", hubHandler.Status)
	router.GET("/api/v1/clients", hubHandler.Clients)
	router.GET("/api/v1/vehicles/positions", vehicles.ListPositions)
	router.GET("/api/v1/vehicles/:id/position", vehicles.GetPosition)

	return &fixture{hub: h, registry: registry, tracker: tr, router: router}
}

func (f *fixture) get(t *testing.T, path string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()

	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))

	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return rec, body
}

func TestVehicleHandler_Positions(t *testing.T) {
	f := newFixture(t)
	ts := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	f.tracker.Update(fleet.VehicleLocation{VehicleID: 9, Lat: 35.1, Lon: 129.0, Timestamp: ts})
	f.tracker.Update(fleet.VehicleLocation{VehicleID: 7, Lat: 37.5, Lon: 127.0, Timestamp: ts})

	rec, body := f.get(t, "/api/v1/vehicles/positions")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, float64(2), body["total"])

	positions := body["positions"].([]any)
	require.Len(t, positions, 2)
	assert.Equal(t, float64(7), positions[0].(map[string]any)["vehicleId"])

	rec, body = f.get(t, "/api/v1/vehicles/9/position")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 35.1, body["lat"])
	assert.Equal(t, "2024-05-01T10:00:00Z", body["timestamp"])
}

func TestVehicleHandler_PositionErrors(t *testing.T) {
	f := newFixture(t)

	rec, _ := f.get(t, "/api/v1/vehicles/abc/position")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec, _ = f.get(t, "/api/v1/vehicles/0/position")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec, body := f.get(t, "/api/v1/vehicles/42/position")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.NotEmpty(t, body["error"])
}

func TestHubHandler_Status(t *testing.T) {
	f := newFixture(t)

	rec, body := f.get(t, "/hub/status")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "healthy", body["status"])

	hubStats := body["hub"].(map[string]any)
	assert.Equal(t, "http://fleet.test/events", hubStats["endpoint"])
	assert.Equal(t, "closed", hubStats["state"])
	assert.Equal(t, float64(0), hubStats["subscribers"])

	require.NoError(t, f.hub.Stop(context.Background()))
	rec, body = f.get(t, "/hub/status")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, "unavailable", body["status"])
}

type idleClient struct {
	id  string
	ctx context.Context
}

func (c *idleClient) ID() string                                  { return c.id }
func (c *idleClient) Type() string                                { return relay.TypeWebSocket }
func (c *idleClient) Channel() string                             { return fleet.LocationChannel }
func (c *idleClient) Send(context.Context, *relay.Envelope) error { return nil }
func (c *idleClient) Close() error                                { return nil }
func (c *idleClient) IsClosed() bool                              { return false }
func (c *idleClient) Context() context.Context                    { return c.ctx }

func TestHubHandler_Clients(t *testing.T) {
	f := newFixture(t)

	_, body := f.get(t, "/api/v1/clients")
	assert.Equal(t, float64(0), body["total"])

	require.NoError(t, f.registry.Register(&idleClient{id: "ws-1", ctx: context.Background()}))
	require.Eventually(t, func() bool { return f.registry.Count() == 1 }, time.Second, 5*time.Millisecond)

	rec, body := f.get(t, "/api/v1/clients")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, float64(1), body["total"])

	client := body["clients"].([]any)[0].(map[string]any)
	assert.Equal(t, "ws-1", client["id"])
	assert.Equal(t, relay.TypeWebSocket, client["type"])
	assert.Equal(t, fleet.LocationChannel, client["channel"])
}
