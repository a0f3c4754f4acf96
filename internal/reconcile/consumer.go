package reconcile

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"sync"
	"time"

	"github.com/pulsecrm/engage/internal/domain"
	"github.com/pulsecrm/engage/internal/queue"
)

// Consumer drains the receipt queue and feeds the reconciler. Malformed
// payloads are dropped; transient repository errors requeue the receipt so
// it is retried.
type Consumer struct {
	broker     queue.Broker
	reconciler *Reconciler
	popWait    time.Duration
	wg         sync.WaitGroup
}

func NewConsumer(broker queue.Broker, reconciler *Reconciler) *Consumer {
	return &Consumer{
		broker:     broker,
		reconciler: reconciler,
		popWait:    time.Second,
	}
}

// Start launches the consume loop in its own goroutine.
func (c *Consumer) Start(ctx context.Context) {
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		c.run(ctx)
	}()
	log.Printf("[Reconcile] consumer started")
}

// Wait blocks until the consume loop has exited.
func (c *Consumer) Wait() {
	c.wg.Wait()
	log.Printf("[Reconcile] consumer stopped")
}

func (c *Consumer) run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		payload, err := c.broker.Pop(ctx, queue.ReceiptQueue, c.popWait)
		if errors.Is(err, queue.ErrEmpty) {
			continue
		}
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			log.Printf("[Reconcile] pop failed: %v", err)
			continue
		}

		var receipt domain.DeliveryReceipt
		if err := json.Unmarshal(payload, &receipt); err != nil {
			log.Printf("[Reconcile] dropping malformed receipt: %v", err)
			continue
		}

		if err := c.reconciler.Apply(ctx, receipt); err != nil {
			log.Printf("[Reconcile] apply failed for log %s, requeueing: %v", receipt.CommunicationLogID, err)
			if perr := c.broker.Push(ctx, queue.ReceiptQueue, payload); perr != nil {
				log.Printf("[Reconcile] requeue failed, receipt lost: %v", perr)
			}
		}
	}
}
