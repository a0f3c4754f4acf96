package campaign

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

// Sender hands one delivery job to the outbound vendor and reports the
// resulting status. A non-nil error means the vendor could not be reached
// at all; the job's log then transitions to FAILED via a receipt.
type Sender interface {
	Send(ctx context.Context, job domain.DeliveryJob) (domain.LogStatus, string, error)
}

// SenderFunc adapts a function to the Sender interface.
type SenderFunc func(ctx context.Context, job domain.DeliveryJob) (domain.LogStatus, string, error)

func (f SenderFunc) Send(ctx context.Context, job domain.DeliveryJob) (domain.LogStatus, string, error) {
	return f(ctx, job)
}

// Dispatcher runs a fixed pool of workers that drain the delivery queue,
// hand each job to the Sender, and publish the outcome as a delivery
// receipt. It never touches logs or campaign stats directly; the reconciler
// owns those transitions.
type Dispatcher struct {
	broker     queue.Broker
	sender     Sender
	numWorkers int
	popWait    time.Duration
	wg         sync.WaitGroup
}

// NewDispatcher creates a dispatcher with the given worker count.
func NewDispatcher(broker queue.Broker, sender Sender, numWorkers int) *Dispatcher {
	if numWorkers <= 0 {
		numWorkers = 4
	}
	return &Dispatcher{
		broker:     broker,
		sender:     sender,
		numWorkers: numWorkers,
		popWait:    time.Second,
	}
}

// Start launches the workers. They run until the context is cancelled;
// Wait blocks until all of them have drained.
func (d *Dispatcher) Start(ctx context.Context) {
	for i := 0; i < d.numWorkers; i++ {
		d.wg.Add(1)
		go d.worker(ctx, i)
	}
	log.Printf("[Dispatcher] started %d workers", d.numWorkers)
}

// Wait blocks until every worker has exited.
func (d *Dispatcher) Wait() {
	d.wg.Wait()
	log.Printf("[Dispatcher] stopped")
}

func (d *Dispatcher) worker(ctx context.Context, id int) {
	defer d.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		payload, err := d.broker.Pop(ctx, queue.DeliveryQueue, d.popWait)
		if errors.Is(err, queue.ErrEmpty) {
			continue
		}
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			log.Printf("[Dispatcher] worker %d: pop failed: %v", id, err)
			continue
		}

		var job domain.DeliveryJob
		if err := json.Unmarshal(payload, &job); err != nil {
			// Malformed payloads are dropped; there is nothing to retry.
			log.Printf("[Dispatcher] worker %d: dropping malformed job: %v", id, err)
			continue
		}
		d.deliver(ctx, id, job)
	}
}

func (d *Dispatcher) deliver(ctx context.Context, id int, job domain.DeliveryJob) {
	status, reason, err := d.sender.Send(ctx, job)
	if err != nil {
		log.Printf("[Dispatcher] worker %d: send failed for log %s: %v", id, job.CommunicationLogID, err)
		status = domain.LogFailed
		if reason == "" {
			reason = err.Error()
		}
	}

	receipt := domain.DeliveryReceipt{
		CommunicationLogID: job.CommunicationLogID,
		Status:             status,
		Reason:             reason,
		ReceivedAt:         time.Now(),
	}
	payload, merr := json.Marshal(receipt)
	if merr != nil {
		log.Printf("[Dispatcher] worker %d: marshal receipt for log %s: %v", id, job.CommunicationLogID, merr)
		return
	}
	if perr := d.broker.Push(ctx, queue.ReceiptQueue, payload); perr != nil {
		// The log stays PENDING until the vendor's own webhook or a
		// replay fills the gap.
		log.Printf("[Dispatcher] worker %d: publish receipt for log %s: %v", id, job.CommunicationLogID, perr)
	}
}
