package reconcile_test

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pulsecrm/engage/internal/domain"
	"github.com/pulsecrm/engage/internal/queue"
	"github.com/pulsecrm/engage/internal/reconcile"
)

type memBroker struct {
	mu     sync.Mutex
	queues map[string][][]byte
}

func newMemBroker() *memBroker {
	return &memBroker{queues: make(map[string][][]byte)}
}

func (b *memBroker) Push(_ context.Context, q string, payload []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	cp := make([]byte, len(payload))
	copy(cp, payload)
	b.queues[q] = append(b.queues[q], cp)
	return nil
}

func (b *memBroker) Pop(ctx context.Context, q string, _ time.Duration) ([]byte, error) {
	b.mu.Lock()
	items := b.queues[q]
	if len(items) == 0 {
		b.mu.Unlock()
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(time.Millisecond):
		}
		return nil, queue.ErrEmpty
	}
	head := items[0]
	b.queues[q] = items[1:]
	b.mu.Unlock()
	return head, nil
}

func (b *memBroker) Depth(_ context.Context, q string) (int64, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return int64(len(b.queues[q])), nil
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not reached in time")
}

func TestConsumerAppliesQueuedReceipts(t *testing.T) {
	repo := newMemRepo()
	repo.addLog("log-1", "camp-1")
	repo.addLog("log-2", "camp-1")

	broker := newMemBroker()
	for _, r := range []domain.DeliveryReceipt{
		receipt("log-1", domain.LogDelivered),
		receipt("log-2", domain.LogBounced),
	} {
		payload, err := json.Marshal(r)
		require.NoError(t, err)
		require.NoError(t, broker.Push(context.Background(), queue.ReceiptQueue, payload))
	}

	ctx, cancel := context.WithCancel(context.Background())
	c := reconcile.NewConsumer(broker, reconcile.New(repo))
	c.Start(ctx)

	waitFor(t, func() bool {
		repo.mu.Lock()
		defer repo.mu.Unlock()
		return repo.done["camp-1"]
	})
	cancel()
	c.Wait()

	assert.Equal(t, 1, repo.stats["camp-1"].Delivered)
	assert.Equal(t, 1, repo.stats["camp-1"].Bounced)
}

func TestConsumerDropsMalformedPayload(t *testing.T) {
	repo := newMemRepo()
	repo.addLog("log-1", "camp-1")

	broker := newMemBroker()
	require.NoError(t, broker.Push(context.Background(), queue.ReceiptQueue, []byte("{broken")))
	payload, err := json.Marshal(receipt("log-1", domain.LogDelivered))
	require.NoError(t, err)
	require.NoError(t, broker.Push(context.Background(), queue.ReceiptQueue, payload))

	ctx, cancel := context.WithCancel(context.Background())
	c := reconcile.NewConsumer(broker, reconcile.New(repo))
	c.Start(ctx)

	waitFor(t, func() bool {
		repo.mu.Lock()
		defer repo.mu.Unlock()
		return repo.logs["log-1"].Status == domain.LogDelivered
	})
	cancel()
	c.Wait()
}
