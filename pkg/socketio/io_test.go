package socketio_test

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alextanhongpin/friendlist/pkg/socketio"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type message struct {
	Text string `json:"text"`
}

func dial(t *testing.T, srv *httptest.Server) *websocket.Conn {
	t.Helper()

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })

	return conn
}

func TestServeWSEmits(t *testing.T) {
	io := socketio.NewIO[message](nil)
	ready := make(chan *socketio.Socket[message], 1)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		socket, closeSocket, err := io.ServeWS(w, r)
		if err != nil {
			return
		}
		defer closeSocket()

		ready <- socket
		<-socket.Done()
	}))
	defer srv.Close()

	conn := dial(t, srv)
	socket := <-ready
	assert.Equal(t, 1, io.Len())

	assert.True(t, io.Emit(socket.ID, message{Text: "hello"}))
	assert.False(t, io.Emit("unknown", message{Text: "nope"}))

	var got message
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(time.Second)))
	require.NoError(t, conn.ReadJSON(&got))
	assert.Equal(t, "hello", got.Text)

	// Client going away ends the socket.
	conn.Close()
	select {
	case <-socket.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("socket not done after client closed")
	}

	assert.Eventually(t, func() bool { return io.Len() == 0 }, 2*time.Second, 10*time.Millisecond)
}

func TestCloseAll(t *testing.T) {
	io := socketio.NewIO[message](nil)
	ready := make(chan struct{}, 1)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		socket, closeSocket, err := io.ServeWS(w, r)
		if err != nil {
			return
		}
		defer closeSocket()

		ready <- struct{}{}
		<-socket.Done()
	}))
	defer srv.Close()

	conn := dial(t, srv)
	<-ready

	total, sent := io.CloseAll(socketio.ErrGoingAway)
	assert.Equal(t, 1, total)
	assert.Equal(t, 1, sent)

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(time.Second)))
	_, _, err := conn.ReadMessage()
	assert.True(t, websocket.IsCloseError(err, websocket.CloseGoingAway), "got %v", err)
}

func TestServeWSRejectsPlainHTTP(t *testing.T) {
	io := socketio.NewIO[message](nil)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/events", nil)

	_, _, err := io.ServeWS(rec, req)
	assert.Error(t, err)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
