package socketio

import (
	"time"

	"github.com/gorilla/websocket"
)

func NewError(code int, msg string) *SocketError {
	return &SocketError{
		Code:    code,
		Message: msg,
	}
}

// ErrGoingAway is sent to clients when the server shuts down.
var ErrGoingAway = NewError(websocket.CloseGoingAway, "server shutting down")

type SocketError struct {
	Code    int
	Message string
}

func (s *SocketError) Error() string {
	return s.Message
}

func writeError(ws *websocket.Conn, timeout time.Duration, err *SocketError) error {
	return ws.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(err.Code, err.Message), time.Now().Add(timeout))
}

func writeClose(ws *websocket.Conn, timeout time.Duration) error {
	return ws.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(timeout))
}

func writePing(ws *websocket.Conn, timeout time.Duration) error {
	return ws.WriteControl(websocket.PingMessage, []byte{}, time.Now().Add(timeout))
}
