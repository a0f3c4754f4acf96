package queue_test

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pulsecrm/engage/internal/queue"
)

func newTestBroker(t *testing.T) *queue.RedisBroker {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return queue.NewRedisBrokerFromClient(client)
}

func TestPushPopFIFO(t *testing.T) {
	broker := newTestBroker(t)
	ctx := context.Background()

	require.NoError(t, broker.Push(ctx, queue.DeliveryQueue, []byte("first")))
	require.NoError(t, broker.Push(ctx, queue.DeliveryQueue, []byte("second")))

	depth, err := broker.Depth(ctx, queue.DeliveryQueue)
	require.NoError(t, err)
	assert.Equal(t, int64(2), depth)

	got, err := broker.Pop(ctx, queue.DeliveryQueue, time.Second)
	require.NoError(t, err)
	assert.Equal(t, "first", string(got))

	got, err = broker.Pop(ctx, queue.DeliveryQueue, time.Second)
	require.NoError(t, err)
	assert.Equal(t, "second", string(got))
}

func TestPopEmptyTimesOut(t *testing.T) {
	broker := newTestBroker(t)

	_, err := broker.Pop(context.Background(), queue.ReceiptQueue, 50*time.Millisecond)
	assert.ErrorIs(t, err, queue.ErrEmpty)
}

func TestQueuesAreIndependent(t *testing.T) {
	broker := newTestBroker(t)
	ctx := context.Background()

	require.NoError(t, broker.Push(ctx, queue.DeliveryQueue, []byte("job")))

	depth, err := broker.Depth(ctx, queue.ReceiptQueue)
	require.NoError(t, err)
	assert.Equal(t, int64(0), depth)
}
