// Package socketio serves websocket connections that stream typed messages
// to clients.
package socketio

import (
	"fmt"
	"log/slog"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"
)

const (
	readBufferSize  = 1024
	writeBufferSize = 1024
)

type IO[T any] struct {
	websocket.Upgrader
	mu      sync.RWMutex
	sockets map[string]*Socket[T]
	logger  *slog.Logger
}

func NewIO[T any](logger *slog.Logger) *IO[T] {
	if logger == nil {
		logger = slog.Default()
	}

	return &IO[T]{
		Upgrader: websocket.Upgrader{
			ReadBufferSize:  readBufferSize,
			WriteBufferSize: writeBufferSize,
		},
		sockets: make(map[string]*Socket[T]),
		logger:  logger,
	}
}

// ServeWS upgrades the request and registers the socket. The returned func
// deregisters and closes it.
func (io *IO[T]) ServeWS(w http.ResponseWriter, r *http.Request) (*Socket[T], func(), error) {
	ws, err := io.Upgrade(w, r, nil)
	if err != nil {
		return nil, nil, fmt.Errorf("io: failed to upgrade websocket connection: %w", err)
	}

	socket := NewSocket[T](ws, io.logger)
	io.register(socket)

	return socket, func() {
		io.deregister(socket)
	}, nil
}

func (io *IO[T]) Emit(socketID string, msg T) bool {
	io.mu.RLock()
	socket, ok := io.sockets[socketID]
	io.mu.RUnlock()

	if !ok {
		return ok
	}

	return socket.Emit(msg)
}

// CloseAll sends err to every registered socket.
func (io *IO[T]) CloseAll(err *SocketError) (total int, sent int) {
	io.mu.RLock()
	sockets := make([]*Socket[T], 0, len(io.sockets))
	for _, socket := range io.sockets {
		sockets = append(sockets, socket)
	}
	io.mu.RUnlock()

	total = len(sockets)
	for _, socket := range sockets {
		if socket.Error(err) {
			sent++
		}
	}

	return
}

func (io *IO[T]) Len() int {
	io.mu.RLock()
	defer io.mu.RUnlock()

	return len(io.sockets)
}

func (io *IO[T]) register(socket *Socket[T]) {
	io.mu.Lock()
	io.sockets[socket.ID] = socket
	io.mu.Unlock()
}

func (io *IO[T]) deregister(socket *Socket[T]) {
	io.mu.Lock()
	_, ok := io.sockets[socket.ID]
	delete(io.sockets, socket.ID)
	io.mu.Unlock()

	if ok {
		socket.close()
	}
}
