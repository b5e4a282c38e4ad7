package main

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go-fleet-live/internal/application/tracker"
	"go-fleet-live/internal/infrastructure/config"
	"go-fleet-live/internal/infrastructure/hub"
	"go-fleet-live/internal/infrastructure/hub/hubtest"
	"go-fleet-live/internal/infrastructure/logger"
	"go-fleet-live/internal/infrastructure/relay"
)

func newTestRouter(t *testing.T) (http.Handler, *bytes.Buffer) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	var out bytes.Buffer
	base := logrus.New()
	base.SetOutput(&out)
	base.SetFormatter(&logrus.JSONFormatter{})
	log := logger.FromEntry(logrus.NewEntry(base))

	cfg := config.Default()
	h := hub.New(cfg.Upstream.URL, &hubtest.Dialer{}, log)
	registry := relay.NewRegistry(log)
	require.NoError(t, registry.Start(context.Background()))
	t.Cleanup(func() { registry.Stop(context.Background()) })

	tr, err := tracker.New(h, cfg.Tracker.Channel, cfg.Tracker.CacheSize, log)
	require.NoError(t, err)

	router := InitRouter(cfg, routerDeps{
		hub:      h,
		registry: registry,
		relay:    relay.New(h, registry, log),
		tracker:  tr,
	}, log)
	return router, &out
}

func TestRouter_CORSPreflight(t *testing.T) {
	router, _ := newTestRouter(t)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodOptions, "/sse/vehicle-location-update", nil))

	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
	assert.Contains(t, rec.Header().Get("Access-Control-Allow-Headers"), "Last-Event-ID")
}

func TestRouter_RoutesAndRequestLog(t *testing.T) {
	router, out := newTestRouter(t)

	for _, path := range []string{
		"/hub/status",
		"/api/v1/clients",
		"/api/v1/vehicles/positions",
		"/api/v1/sse/connections",
		"/api/v1/ws/connections",
	} {
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
		assert.Equal(t, http.StatusOK, rec.Code, path)
	}

	assert.Contains(t, out.String(), `"path":"/hub/status"`)
	assert.Contains(t, out.String(), `"status":200`)
}
