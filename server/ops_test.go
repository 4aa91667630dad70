package server_test

import (
	"context"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alextanhongpin/friendlist/domain"
	"github.com/alextanhongpin/friendlist/pkg/broker"
	"github.com/alextanhongpin/friendlist/server"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newOps(t *testing.T) (*server.OpsServer, *broker.Broker, *httptest.Server) {
	t.Helper()

	reg := prometheus.NewRegistry()
	counter := prometheus.NewCounter(prometheus.CounterOpts{Name: "ops_test_total"})
	reg.MustRegister(counter)
	counter.Inc()

	b := broker.New()
	ops := server.NewOpsServer(b, server.OpsOptions{Gatherer: reg})
	srv := httptest.NewServer(ops.Handler())
	t.Cleanup(srv.Close)

	return ops, b, srv
}

func fetch(t *testing.T, url string) (int, string) {
	t.Helper()

	res, err := http.Get(url)
	require.NoError(t, err)
	defer res.Body.Close()

	b, err := io.ReadAll(res.Body)
	require.NoError(t, err)

	return res.StatusCode, string(b)
}

func TestOpsProbes(t *testing.T) {
	ops, _, srv := newOps(t)

	code, body := fetch(t, srv.URL+"/healthz")
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "ok\n", body)

	code, _ = fetch(t, srv.URL+"/readyz")
	assert.Equal(t, http.StatusServiceUnavailable, code)

	ops.SetReady(true)
	code, body = fetch(t, srv.URL+"/readyz")
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "ready\n", body)

	code, body = fetch(t, srv.URL+"/metrics")
	assert.Equal(t, http.StatusOK, code)
	assert.Contains(t, body, "ops_test_total 1")
}

func TestOpsEventStream(t *testing.T) {
	ops, b, srv := newOps(t)

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/events?user=alice"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	require.Eventually(t, func() bool { return b.HasTopic("alice") }, time.Second, 5*time.Millisecond)

	b.Observe([]domain.Change{
		{Kind: domain.ChangeBefriended, User: "carol", Friend: "dave"},
		{Kind: domain.ChangeBefriended, User: "bob", Friend: "alice"},
	})

	var got domain.Change
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	require.NoError(t, conn.ReadJSON(&got))
	assert.Equal(t, domain.Change{Kind: domain.ChangeBefriended, User: "bob", Friend: "alice"}, got)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, ops.Stop(ctx))

	_, _, err = conn.ReadMessage()
	assert.True(t, websocket.IsCloseError(err, websocket.CloseGoingAway), err)

	assert.Eventually(t, func() bool { return !b.HasTopic("alice") }, 2*time.Second, 10*time.Millisecond)
}

func TestOpsServeAndStop(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	ops := server.NewOpsServer(broker.New(), server.OpsOptions{Gatherer: prometheus.NewRegistry()})
	ops.SetReady(true)

	errCh := make(chan error, 1)
	go func() {
		errCh <- ops.Serve(ln)
	}()

	code, body := fetch(t, "http://"+ln.Addr().String()+"/readyz")
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "ready\n", body)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, ops.Stop(ctx))
	assert.ErrorIs(t, <-errCh, http.ErrServerClosed)

	_, err = http.Get("http://" + ln.Addr().String() + "/healthz")
	assert.Error(t, err)
}
