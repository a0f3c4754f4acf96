// Package queue provides the Redis-backed job queues that decouple campaign
// dispatch and receipt ingestion from their consumers.
package queue

import (
	"context"
	"errors"
	"time"
)

// Queue names. Producers and consumers agree on these keys.
const (
	DeliveryQueue = "engage:queue:delivery"
	ReceiptQueue  = "engage:queue:receipts"
)

// ErrEmpty is returned by Pop when the wait deadline passes with no payload.
var ErrEmpty = errors.New("queue: empty")

// Broker is the minimal FIFO contract the orchestrator and the consumers
// depend on. Payloads are opaque JSON blobs.
type Broker interface {
	Push(ctx context.Context, queue string, payload []byte) error
	// Pop blocks up to wait for a payload, returning ErrEmpty on timeout.
	Pop(ctx context.Context, queue string, wait time.Duration) ([]byte, error)
	Depth(ctx context.Context, queue string) (int64, error)
}
