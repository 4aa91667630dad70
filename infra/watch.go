package infra

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/alextanhongpin/friendlist/domain"
	"github.com/redis/go-redis/v9"
)

var ErrSubscriptionClosed = errors.New("redis: subscription closed")

// WatchChanges calls fn for every change published on channel until ctx is
// done. Payloads that are not changes are logged and skipped.
func WatchChanges(ctx context.Context, client *redis.Client, channel string, logger *slog.Logger, fn func(domain.Change)) error {
	if logger == nil {
		logger = slog.Default()
	}

	sub := client.Subscribe(ctx, channel)
	defer sub.Close()

	// Wait for the subscription to be confirmed before reading messages.
	if _, err := sub.Receive(ctx); err != nil {
		return fmt.Errorf("redis: failed to subscribe to %s: %w", channel, err)
	}

	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-ch:
			if !ok {
				return ErrSubscriptionClosed
			}

			change, err := decodeChange(msg.Payload)
			if err != nil {
				logger.Warn("skipping malformed change", "channel", channel, "error", err)
				continue
			}
			fn(change)
		}
	}
}

func decodeChange(payload string) (domain.Change, error) {
	var c domain.Change
	if err := json.Unmarshal([]byte(payload), &c); err != nil {
		return c, fmt.Errorf("redis: failed to unmarshal change: %w", err)
	}

	switch c.Kind {
	case domain.ChangeBefriended, domain.ChangeUnfriended:
	default:
		return c, fmt.Errorf("redis: unknown change type %q", c.Kind)
	}
	if c.User == "" || c.Friend == "" {
		return c, errors.New("redis: change is missing a user")
	}

	return c, nil
}
