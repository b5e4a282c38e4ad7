package websocket

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
	logtest "github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go-fleet-live/internal/infrastructure/hub"
	"go-fleet-live/internal/infrastructure/hub/hubtest"
	"go-fleet-live/internal/infrastructure/logger"
	"go-fleet-live/internal/infrastructure/relay"
)

func newTestRouter(t *testing.T) (*gin.Engine, *hub.Hub, *hubtest.Dialer, *relay.Registry) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	base, _ := logtest.NewNullLogger()
	log := logger.FromEntry(logrus.NewEntry(base))

	dialer := &hubtest.Dialer{}
	h := hub.New("http://fleet.test/events", dialer, log)
	registry := relay.NewRegistry(log)
	require.NoError(t, registry.Start(context.Background()))

	router := gin.New()
	InitWebSocketRouter(log, h, registry, relay.New(h, registry, log), router.Group(""))

	t.Cleanup(func() {
		registry.Stop(context.Background())
		h.Stop(context.Background())
	})
	return router, h, dialer, registry
}

func TestConnect_RelaysChannelOverWebSocket(t *testing.T) {
	router, h, dialer, registry := newTestRouter(t)
	ts := httptest.NewServer(router)
	defer ts.Close()

	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws/alerts"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))

	var greeting relay.Envelope
	require.NoError(t, conn.ReadJSON(&greeting))
	assert.Equal(t, relay.EventConnected, greeting.Type)
	assert.Contains(t, string(greeting.Data), `"channel":"alerts"`)

	require.Equal(t, 1, h.SubscriberCount())
	upstream := dialer.Last()
	require.True(t, upstream.Emit("alerts", `{"level":"warn","vehicleId":3}`))

	var env relay.Envelope
	require.NoError(t, conn.ReadJSON(&env))
	assert.Equal(t, "alerts", env.Type)
	assert.JSONEq(t, `{"level":"warn","vehicleId":3}`, string(env.Data))

	require.Len(t, registry.ListByType(relay.TypeWebSocket), 1)

	require.NoError(t, conn.WriteMessage(
		websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
	))
	assert.Eventually(t, upstream.Closed, 2*time.Second, 5*time.Millisecond)
	assert.Eventually(t, func() bool { return registry.Count() == 0 }, 2*time.Second, 5*time.Millisecond)
}

func TestConnect_UnavailableWhenRegistryStopped(t *testing.T) {
	router, _, dialer, registry := newTestRouter(t)
	require.NoError(t, registry.Stop(context.Background()))

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/ws/alerts", nil))

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Zero(t, dialer.Dials())
}
