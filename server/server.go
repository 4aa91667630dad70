// Package server implements the friend protocol listener: one goroutine per
// accepted connection, one request per connection.
package server

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"sync/atomic"
	"time"
)

var ErrServerClosed = errors.New("server: closed")

const (
	defaultName         = "Friendlist Web Server"
	defaultMaxBodyBytes = 1 << 20
	maxAcceptDelay      = 1 * time.Second
)

type Options struct {
	// Name is sent in the Server header.
	Name string

	// ReadTimeout bounds reading the request. Zero means no limit.
	ReadTimeout time.Duration

	// MaxBodyBytes rejects larger POST bodies with 413.
	MaxBodyBytes int64

	Logger *slog.Logger
}

type Server struct {
	opts    Options
	handler http.Handler
	logger  *slog.Logger

	baseCtx context.Context
	cancel  context.CancelFunc

	mu         sync.Mutex
	listener   net.Listener
	conns      map[net.Conn]struct{}
	inShutdown atomic.Bool
	wg         sync.WaitGroup
}

func New(svc FriendService, opts Options) *Server {
	if opts.Name == "" {
		opts.Name = defaultName
	}
	if opts.MaxBodyBytes <= 0 {
		opts.MaxBodyBytes = defaultMaxBodyBytes
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &Server{
		opts:    opts,
		handler: NewRouter(svc),
		logger:  opts.Logger,
		baseCtx: ctx,
		cancel:  cancel,
		conns:   make(map[net.Conn]struct{}),
	}
}

// Serve accepts connections on ln until Shutdown is called. It always returns
// a non-nil error; after Shutdown that error is ErrServerClosed.
func (s *Server) Serve(ln net.Listener) error {
	s.mu.Lock()
	if s.inShutdown.Load() {
		s.mu.Unlock()
		ln.Close()
		return ErrServerClosed
	}
	s.listener = ln
	s.mu.Unlock()

	s.logger.Info("listening", slog.String("addr", ln.Addr().String()))

	var delay time.Duration
	for {
		conn, err := ln.Accept()
		if err != nil {
			if s.inShutdown.Load() {
				return ErrServerClosed
			}
			if errors.Is(err, net.ErrClosed) {
				return err
			}

			// Back off on transient failures such as running out of file
			// descriptors.
			if delay == 0 {
				delay = 5 * time.Millisecond
			} else {
				delay *= 2
			}
			delay = min(delay, maxAcceptDelay)

			s.logger.Warn("accept failed",
				slog.String("error", err.Error()),
				slog.Duration("retry_in", delay),
			)
			time.Sleep(delay)
			continue
		}
		delay = 0

		if !s.track(conn) {
			conn.Close()
			return ErrServerClosed
		}

		go s.serveConn(conn)
	}
}

// Addr returns the bound address, or nil before Serve.
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.listener == nil {
		return nil
	}

	return s.listener.Addr()
}

// Shutdown stops accepting and waits for in-flight connections. When ctx ends
// first, pending peer fetches are cancelled and remaining connections are
// closed.
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	s.inShutdown.Store(true)
	ln := s.listener
	s.mu.Unlock()

	var err error
	if ln != nil {
		err = ln.Close()
		if errors.Is(err, net.ErrClosed) {
			err = nil
		}
	}

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		s.cancel()
		return err
	case <-ctx.Done():
		s.cancel()

		s.mu.Lock()
		n := len(s.conns)
		for conn := range s.conns {
			conn.Close()
		}
		s.mu.Unlock()

		s.logger.Warn("forced connections closed", slog.Int("count", n))
		return ctx.Err()
	}
}

func (s *Server) track(conn net.Conn) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.inShutdown.Load() {
		return false
	}

	s.conns[conn] = struct{}{}
	s.wg.Add(1)

	return true
}

func (s *Server) untrack(conn net.Conn) {
	s.mu.Lock()
	delete(s.conns, conn)
	s.mu.Unlock()

	s.wg.Done()
}
