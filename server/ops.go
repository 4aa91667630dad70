package server

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/alextanhongpin/friendlist/domain"
	"github.com/alextanhongpin/friendlist/pkg/broker"
	"github.com/alextanhongpin/friendlist/pkg/socketio"
	"github.com/julienschmidt/httprouter"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type OpsOptions struct {
	// Gatherer backs /metrics. Defaults to prometheus.DefaultGatherer.
	Gatherer prometheus.Gatherer

	Logger *slog.Logger
}

// OpsServer serves health, readiness, metrics and a websocket stream of graph
// changes on a separate address.
type OpsServer struct {
	server    *http.Server
	readyFlag atomic.Bool
	events    broker.Engine
	io        *socketio.IO[domain.Change]
	logger    *slog.Logger
}

func NewOpsServer(events broker.Engine, opts OpsOptions) *OpsServer {
	if opts.Gatherer == nil {
		opts.Gatherer = prometheus.DefaultGatherer
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	s := &OpsServer{
		events: events,
		io:     socketio.NewIO[domain.Change](opts.Logger),
		logger: opts.Logger,
	}

	router := httprouter.New()
	router.GET("/healthz", s.handleHealth)
	router.GET("/readyz", s.handleReady)
	router.Handler(http.MethodGet, "/metrics", promhttp.HandlerFor(opts.Gatherer, promhttp.HandlerOpts{}))
	router.GET("/events", s.handleEvents)

	s.server = &http.Server{
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	return s
}

func (s *OpsServer) Handler() http.Handler {
	return s.server.Handler
}

// SetReady flips /readyz. It is false until the friend listener is bound.
func (s *OpsServer) SetReady(ready bool) {
	s.readyFlag.Store(ready)
}

// Serve answers on ln until Stop. It returns http.ErrServerClosed after Stop.
func (s *OpsServer) Serve(ln net.Listener) error {
	return s.server.Serve(ln)
}

// Stop marks the server unready, tells stream clients it is going away and
// shuts the listener down.
func (s *OpsServer) Stop(ctx context.Context) error {
	s.readyFlag.Store(false)

	total, sent := s.io.CloseAll(socketio.ErrGoingAway)
	s.logger.Info("closed event streams", slog.Int("total", total), slog.Int("sent", sent))

	return s.server.Shutdown(ctx)
}

func (s *OpsServer) handleHealth(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	w.WriteHeader(http.StatusOK)
	_, _ = fmt.Fprintln(w, "ok")
}

func (s *OpsServer) handleReady(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	if !s.readyFlag.Load() {
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = fmt.Fprintln(w, "not ready")
		return
	}
	w.WriteHeader(http.StatusOK)
	_, _ = fmt.Fprintln(w, "ready")
}

// handleEvents streams changes touching ?user=, or every change when user is
// empty.
func (s *OpsServer) handleEvents(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	topic := r.URL.Query().Get("user")
	if topic == "" {
		topic = broker.AllTopic
	}

	socket, closeSocket, err := s.io.ServeWS(w, r)
	if err != nil {
		s.logger.Warn("upgrade failed", slog.String("error", err.Error()))
		return
	}
	defer closeSocket()

	sub := s.events.Subscribe(topic)
	defer s.events.Unsubscribe(topic, sub)

	logger := s.logger.With(slog.String("socket_id", socket.ID), slog.String("topic", topic))
	logger.Info("event stream opened")
	defer logger.Info("event stream closed")

	for {
		select {
		case <-socket.Done():
			return
		case change, ok := <-sub:
			if !ok {
				return
			}
			if !socket.Emit(change) {
				return
			}
		}
	}
}
