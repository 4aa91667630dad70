package socketio

import (
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const (

	// Time allowed to write a message to the peer.
	writeTimeout = 10 * time.Second

	// Time allowed to read the next pong message from the peer.
	pongTimeout = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongTimeout.
	pingTimeout = (pongTimeout * 9) / 10

	maxMessageSize = 512
)

// Socket is a write-mostly websocket connection. Messages from the client are
// read and discarded so that control frames are processed.
type Socket[T any] struct {
	ID             string
	WriteTimeout   time.Duration
	PingTimeout    time.Duration
	PongTimeout    time.Duration
	MaxMessageSize int64

	conn       *websocket.Conn
	done       chan struct{}
	stopOnce   sync.Once
	quit       sync.Once
	wg         sync.WaitGroup
	readerDone chan struct{}
	writeCh    chan T
	errCh      chan *SocketError
	logger     *slog.Logger
}

func NewSocket[T any](conn *websocket.Conn, logger *slog.Logger) *Socket[T] {
	if logger == nil {
		logger = slog.Default()
	}

	socket := &Socket[T]{
		ID:             uuid.New().String(),
		WriteTimeout:   writeTimeout,
		PongTimeout:    pongTimeout,
		PingTimeout:    pingTimeout,
		MaxMessageSize: maxMessageSize,

		conn:       conn,
		done:       make(chan struct{}),
		readerDone: make(chan struct{}),
		writeCh:    make(chan T),
		errCh:      make(chan *SocketError, 1),
	}
	socket.logger = logger.With("socket_id", socket.ID)

	socket.wg.Add(1)
	go func() {
		defer socket.wg.Done()

		socket.writer()
	}()

	go func() {
		defer close(socket.readerDone)

		socket.reader()
	}()

	return socket
}

// Emit queues msg for the client. It returns false once the socket is done.
func (s *Socket[T]) Emit(msg T) bool {
	select {
	case <-s.done:
		return false
	case s.writeCh <- msg:
		return true
	}
}

// Error sends a close frame carrying err and ends the socket.
func (s *Socket[T]) Error(err *SocketError) bool {
	select {
	case <-s.done:
		return false
	case s.errCh <- err:
		return true
	default:
		return false
	}
}

// Done is closed when the client goes away or the socket is closed.
func (s *Socket[T]) Done() <-chan struct{} {
	return s.done
}

func (s *Socket[T]) stop() {
	s.stopOnce.Do(func() {
		close(s.done)
	})
}

func (s *Socket[T]) close() {
	s.quit.Do(func() {
		s.stop()
		s.wg.Wait()
		s.conn.Close()
		<-s.readerDone
	})
}

func (s *Socket[T]) writer() {
	pinger := time.NewTicker(s.PingTimeout)
	defer pinger.Stop()

	for {
		select {
		case <-s.done:
			_ = writeClose(s.conn, s.WriteTimeout)

			return
		case err := <-s.errCh:
			_ = writeError(s.conn, s.WriteTimeout, err)
			s.stop()

			return
		case msg := <-s.writeCh:
			_ = s.conn.SetWriteDeadline(time.Now().Add(s.WriteTimeout))
			if err := s.conn.WriteJSON(msg); err != nil {
				s.logger.Warn("socketio: write failed", "error", err)
				s.stop()

				return
			}

		case <-pinger.C:
			if err := writePing(s.conn, s.WriteTimeout); err != nil {
				s.stop()

				return
			}
		}
	}
}

func (s *Socket[T]) reader() {
	s.conn.SetReadLimit(s.MaxMessageSize)
	_ = s.conn.SetReadDeadline(time.Now().Add(s.PongTimeout))
	s.conn.SetPongHandler(func(string) error {
		return s.conn.SetReadDeadline(time.Now().Add(s.PongTimeout))
	})

	for {
		if _, _, err := s.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				s.logger.Debug("socketio: read failed", "error", err)
			}
			s.stop()

			return
		}
	}
}
