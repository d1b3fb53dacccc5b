package bootstrap

import (
	"context"
	"errors"
	"net"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/reachcapital/portal/config"
)

func TestNewServices_RequiresConnections(t *testing.T) {
	_, err := NewServices(nil)
	require.Error(t, err)

	_, err = NewServices(&ServiceDeps{Config: &config.AppConfig{}})
	assert.ErrorContains(t, err, "database and redis")
}

func TestHealthChecks_OnlyConfiguredConnections(t *testing.T) {
	assert.Empty(t, HealthChecks(nil, nil))
}

func TestServeListener_ShutdownEndsOpenStreams(t *testing.T) {
	started := make(chan struct{})
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.(http.Flusher).Flush()
		close(started)
		<-r.Context().Done()
	})
	srv := NewHTTPServer("127.0.0.1:0", handler, config.HTTPConfig{ReadHeaderTimeout: time.Second})
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- ServeListener(ctx, srv, ln, 2*time.Second, discardLogger()) }()

	resp, err := http.Get("http://" + ln.Addr().String() + "/auth/events")
	require.NoError(t, err)
	defer resp.Body.Close()
	<-started

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not stop while a stream was open")
	}
}

func TestServe_ListenError(t *testing.T) {
	srv := NewHTTPServer("256.0.0.1:bad", http.NotFoundHandler(), config.HTTPConfig{})
	err := Serve(context.Background(), srv, time.Second, discardLogger())
	require.Error(t, err)
	assert.False(t, errors.Is(err, http.ErrServerClosed))
}
