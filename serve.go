package main

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/alextanhongpin/friendlist/infra"
	"github.com/alextanhongpin/friendlist/pkg/broker"
	"github.com/alextanhongpin/friendlist/pkg/graph"
	"github.com/alextanhongpin/friendlist/pkg/metrics"
	"github.com/alextanhongpin/friendlist/pkg/peer"
	"github.com/alextanhongpin/friendlist/server"
	"github.com/alextanhongpin/friendlist/usecase"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

const shutdownTimeout = 10 * time.Second

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd, args[0])
	if err != nil {
		return err
	}

	logger := cfg.NewLogger(os.Stderr)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	events := broker.New()
	g := graph.New(
		graph.WithObserver(metrics.GraphObserver),
		graph.WithObserver(events),
	)
	if err := metrics.RegisterGraph(prometheus.DefaultRegisterer, g.Stats); err != nil {
		return err
	}

	var publisher *infra.ChangePublisher
	if cfg.RedisAddr != "" {
		client, err := infra.NewRedis(ctx, cfg.RedisAddr)
		if err != nil {
			return err
		}
		defer client.Close()

		publisher = infra.NewChangePublisher(client, cfg.RedisChannel, logger)
		g.AddObserver(publisher)
		logger.Info("publishing graph changes", slog.String("redis_addr", cfg.RedisAddr), slog.String("channel", cfg.RedisChannel))
	}

	client := peer.New(cfg.PeerTimeout, logger)
	svc := usecase.NewFriendService(g, client)

	srv := server.New(svc, server.Options{
		Name:         cfg.ServerName,
		ReadTimeout:  cfg.ReadTimeout,
		MaxBodyBytes: cfg.MaxBodyBytes,
		Logger:       logger.With(slog.String("component", "server")),
	})

	ln, err := net.Listen("tcp", cfg.Addr())
	if err != nil {
		return err
	}

	var (
		ops   *server.OpsServer
		opsLn net.Listener
	)
	if cfg.OpsAddr != "" {
		opsLn, err = net.Listen("tcp", cfg.OpsAddr)
		if err != nil {
			ln.Close()
			return err
		}

		ops = server.NewOpsServer(events, server.OpsOptions{
			Logger: logger.With(slog.String("component", "ops")),
		})
		// Both listeners are bound, so the process can take traffic.
		ops.SetReady(true)
		logger.Info("ops listening", slog.String("addr", opsLn.Addr().String()))
	}

	// The publisher outlives the servers so that changes made by the last
	// requests are still flushed.
	pubCtx, stopPublisher := context.WithCancel(context.Background())
	defer stopPublisher()

	eg, ctx := errgroup.WithContext(ctx)
	if publisher != nil {
		eg.Go(func() error {
			return publisher.Run(pubCtx)
		})
	}
	eg.Go(func() error {
		if err := srv.Serve(ln); !errors.Is(err, server.ErrServerClosed) {
			return err
		}
		return nil
	})
	if ops != nil {
		eg.Go(func() error {
			if err := ops.Serve(opsLn); !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		})
	}
	eg.Go(func() error {
		<-ctx.Done()
		logger.Info("shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		var errs []error
		if ops != nil {
			errs = append(errs, ops.Stop(shutdownCtx))
		}
		errs = append(errs, srv.Shutdown(shutdownCtx))
		stopPublisher()

		return errors.Join(errs...)
	})

	return eg.Wait()
}
