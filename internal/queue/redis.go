package queue

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisBroker implements Broker on Redis lists: LPUSH to enqueue, BRPOP to
// dequeue, so payloads come out in FIFO order.
type RedisBroker struct {
	client *redis.Client
}

// NewRedisBroker connects to Redis and verifies the connection.
func NewRedisBroker(ctx context.Context, redisURL string) (*RedisBroker, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parsing redis URL: %w", err)
	}

	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("pinging redis: %w", err)
	}
	return &RedisBroker{client: client}, nil
}

// NewRedisBrokerFromClient wraps an existing client. Used by tests and by
// callers that share one connection pool.
func NewRedisBrokerFromClient(client *redis.Client) *RedisBroker {
	return &RedisBroker{client: client}
}

func (b *RedisBroker) Push(ctx context.Context, queue string, payload []byte) error {
	if err := b.client.LPush(ctx, queue, payload).Err(); err != nil {
		return fmt.Errorf("queue: push to %s: %w", queue, err)
	}
	return nil
}

func (b *RedisBroker) Pop(ctx context.Context, queue string, wait time.Duration) ([]byte, error) {
	res, err := b.client.BRPop(ctx, wait, queue).Result()
	if errors.Is(err, redis.Nil) {
		return nil, ErrEmpty
	}
	if err != nil {
		return nil, fmt.Errorf("queue: pop from %s: %w", queue, err)
	}
	// BRPOP returns [key, value].
	if len(res) != 2 {
		return nil, fmt.Errorf("queue: unexpected BRPOP reply of size %d", len(res))
	}
	return []byte(res[1]), nil
}

func (b *RedisBroker) Depth(ctx context.Context, queue string) (int64, error) {
	n, err := b.client.LLen(ctx, queue).Result()
	if err != nil {
		return 0, fmt.Errorf("queue: depth of %s: %w", queue, err)
	}
	return n, nil
}

func (b *RedisBroker) Close() error {
	return b.client.Close()
}
