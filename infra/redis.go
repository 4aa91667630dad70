package infra

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/alextanhongpin/friendlist/domain"
	"github.com/redis/go-redis/v9"
)

const (
	publishTimeout   = 2 * time.Second
	publishQueueSize = 1024
)

func NewRedis(ctx context.Context, addr string) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:         addr,
		Password:     "",
		DB:           0,
		DialTimeout:  10 * time.Second,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		PoolSize:     10,
		PoolTimeout:  30 * time.Second,
	})

	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("redis: failed to ping %s: %w", addr, err)
	}

	return rdb, nil
}

// publisher is the subset of *redis.Client used here.
type publisher interface {
	Publish(ctx context.Context, channel string, message interface{}) *redis.IntCmd
}

// ChangePublisher forwards committed graph changes to a Redis channel as
// JSON, one message per change. Observe only queues; Run does the publishing
// so that a slow Redis never delays a request.
type ChangePublisher struct {
	client  publisher
	channel string
	logger  *slog.Logger
	queue   chan domain.Change
	dropped atomic.Int64
}

var _ domain.ChangeObserver = (*ChangePublisher)(nil)

func NewChangePublisher(client publisher, channel string, logger *slog.Logger) *ChangePublisher {
	if logger == nil {
		logger = slog.Default()
	}

	return &ChangePublisher{
		client:  client,
		channel: channel,
		logger:  logger.With("component", "redis"),
		queue:   make(chan domain.Change, publishQueueSize),
	}
}

func (p *ChangePublisher) Publish(ctx context.Context, msg any) error {
	b, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("redis: failed to marshal: %w", err)
	}

	if err := p.client.Publish(ctx, p.channel, string(b)).Err(); err != nil {
		return fmt.Errorf("redis: failed to publish: %w", err)
	}

	return nil
}

// Observe queues each change in order. When the queue is full the change is
// dropped and counted.
func (p *ChangePublisher) Observe(changes []domain.Change) {
	for _, c := range changes {
		select {
		case p.queue <- c:
		default:
			p.dropped.Add(1)
			p.logger.Warn("publish queue full, dropping change", "channel", p.channel, "user", c.User, "friend", c.Friend)
		}
	}
}

// Run publishes queued changes until ctx is done, then flushes what is still
// queued. Failures are logged, not returned: the graph has already committed.
func (p *ChangePublisher) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			p.flush()
			return nil
		case c := <-p.queue:
			p.publish(ctx, c)
		}
	}
}

// Dropped reports how many changes were discarded because the queue was full.
func (p *ChangePublisher) Dropped() int64 {
	return p.dropped.Load()
}

func (p *ChangePublisher) flush() {
	for {
		select {
		case c := <-p.queue:
			p.publish(context.Background(), c)
		default:
			return
		}
	}
}

func (p *ChangePublisher) publish(ctx context.Context, c domain.Change) {
	ctx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()

	if err := p.Publish(ctx, c); err != nil {
		p.logger.Warn("publish change failed", "channel", p.channel, "user", c.User, "friend", c.Friend, "error", err)
	}
}
