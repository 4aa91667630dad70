package infra

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/alextanhongpin/friendlist/domain"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type published struct {
	channel string
	message string
}

type fakeRedis struct {
	mu       sync.Mutex
	messages []published
	err      error

	// block, when set, stalls every publish until it is closed.
	block chan struct{}
}

func (f *fakeRedis) Publish(ctx context.Context, channel string, message interface{}) *redis.IntCmd {
	if f.block != nil {
		<-f.block
	}
	if f.err != nil {
		return redis.NewIntResult(0, f.err)
	}

	f.mu.Lock()
	f.messages = append(f.messages, published{channel: channel, message: message.(string)})
	f.mu.Unlock()

	return redis.NewIntResult(1, nil)
}

func (f *fakeRedis) published() []published {
	f.mu.Lock()
	defer f.mu.Unlock()

	return append([]published(nil), f.messages...)
}

func TestChangePublisherRun(t *testing.T) {
	fake := &fakeRedis{}
	p := NewChangePublisher(fake, "friendlist:events", nil)

	p.Observe([]domain.Change{
		{Kind: domain.ChangeBefriended, User: "alice", Friend: "bob"},
		{Kind: domain.ChangeUnfriended, User: "alice", Friend: "carol"},
	})
	assert.Empty(t, fake.published(), "observe only queues")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.NoError(t, p.Run(ctx))

	messages := fake.published()
	require.Len(t, messages, 2)
	assert.Equal(t, "friendlist:events", messages[0].channel)
	assert.JSONEq(t, `{"type":"befriended","user":"alice","friend":"bob"}`, messages[0].message)

	var got domain.Change
	require.NoError(t, json.Unmarshal([]byte(messages[1].message), &got))
	assert.Equal(t, domain.Change{Kind: domain.ChangeUnfriended, User: "alice", Friend: "carol"}, got)
}

func TestChangePublisherObserveWhileRedisStalls(t *testing.T) {
	fake := &fakeRedis{block: make(chan struct{})}
	p := NewChangePublisher(fake, "events", nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- p.Run(ctx)
	}()

	observed := make(chan struct{})
	go func() {
		for i := range 3 {
			p.Observe([]domain.Change{{Kind: domain.ChangeBefriended, User: "a", Friend: fmt.Sprint(i)}})
		}
		close(observed)
	}()

	select {
	case <-observed:
	case <-time.After(time.Second):
		t.Fatal("observe blocked on a stalled redis")
	}

	close(fake.block)
	cancel()
	require.NoError(t, <-done)

	messages := fake.published()
	require.Len(t, messages, 3)
	for i, m := range messages {
		assert.Contains(t, m.message, fmt.Sprintf(`"friend":"%d"`, i))
	}
}

func TestChangePublisherQueueFull(t *testing.T) {
	fake := &fakeRedis{}
	p := NewChangePublisher(fake, "events", nil)

	changes := make([]domain.Change, publishQueueSize+3)
	for i := range changes {
		changes[i] = domain.Change{Kind: domain.ChangeBefriended, User: "a", Friend: fmt.Sprint(i)}
	}
	p.Observe(changes)

	assert.Equal(t, int64(3), p.Dropped())
	assert.Empty(t, fake.published())
}

func TestChangePublisherPublishError(t *testing.T) {
	boom := errors.New("connection reset")
	p := NewChangePublisher(&fakeRedis{err: boom}, "events", nil)

	err := p.Publish(context.Background(), domain.Change{})
	assert.ErrorIs(t, err, boom)

	// Run logs the failure and keeps going.
	p.Observe([]domain.Change{{Kind: domain.ChangeBefriended, User: "a", Friend: "b"}})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.NoError(t, p.Run(ctx))
}

func TestChangePublisherMarshalError(t *testing.T) {
	p := NewChangePublisher(&fakeRedis{}, "events", nil)

	err := p.Publish(context.Background(), make(chan int))
	assert.Error(t, err)
}

func TestDecodeChange(t *testing.T) {
	c, err := decodeChange(`{"type":"unfriended","user":"alice","friend":"bob"}`)
	require.NoError(t, err)
	assert.Equal(t, domain.Change{Kind: domain.ChangeUnfriended, User: "alice", Friend: "bob"}, c)

	for _, payload := range []string{
		`hello`,
		`{"type":"poked","user":"alice","friend":"bob"}`,
		`{"type":"befriended","user":"alice"}`,
	} {
		_, err := decodeChange(payload)
		assert.Error(t, err, payload)
	}
}
