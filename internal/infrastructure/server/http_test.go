package server

import (
	"context"
	"io"
	"net/http"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	logtest "github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go-fleet-live/internal/infrastructure/logger"
)

func TestHTTPServer_StartStop(t *testing.T) {
	base, _ := logtest.NewNullLogger()
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, "ok")
	})
	srv := NewHTTPServer(handler, Options{Addr: "127.0.0.1:0"}, logger.FromEntry(logrus.NewEntry(base)))

	done := make(chan error, 1)
	go func() { done <- srv.Start(context.Background()) }()

	select {
	case <-srv.Ready():
	case <-time.After(time.Second):
		t.Fatal("server did not start")
	}

	resp, err := http.Get("http://" + srv.Addr().String() + "/")
	require.NoError(t, err)
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	assert.Equal(t, "ok", string(body))

	require.NoError(t, srv.Stop(context.Background()))
	assert.NoError(t, <-done)
}

func TestHTTPServer_StopBeforeStart(t *testing.T) {
	base, _ := logtest.NewNullLogger()
	srv := NewHTTPServer(http.NotFoundHandler(), Options{}, logger.FromEntry(logrus.NewEntry(base)))
	assert.NoError(t, srv.Stop(context.Background()))

	srv.opts.Addr = "127.0.0.1:0"
	done := make(chan error, 1)
	go func() { done <- srv.Start(context.Background()) }()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		srv.Stop(context.Background())
		t.Fatal("Start served after Stop")
	}
	assert.Nil(t, srv.Addr())
}

func TestHTTPServer_ListenError(t *testing.T) {
	base, _ := logtest.NewNullLogger()
	srv := NewHTTPServer(http.NotFoundHandler(), Options{Addr: "256.0.0.1:bad"}, logger.FromEntry(logrus.NewEntry(base)))
	assert.Error(t, srv.Start(context.Background()))
}
