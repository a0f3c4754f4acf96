package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/pulsecrm/engage/internal/domain"
	"github.com/pulsecrm/engage/internal/queue"
)

// ReceiptAPI ingests vendor delivery receipts. The webhook only validates
// and enqueues; the reconciler consumes the queue and applies transitions,
// so vendor retries and bursts never touch the database from this path.
type ReceiptAPI struct {
	broker queue.Broker
}

// NewReceiptAPI creates the receipt webhook handler.
func NewReceiptAPI(broker queue.Broker) *ReceiptAPI {
	return &ReceiptAPI{broker: broker}
}

// RegisterRoutes mounts the webhook route.
func (api *ReceiptAPI) RegisterRoutes(r chi.Router) {
	r.Post("/receipts", api.IngestReceipt)
}

func (api *ReceiptAPI) IngestReceipt(w http.ResponseWriter, r *http.Request) {
	var receipt domain.DeliveryReceipt
	if err := json.NewDecoder(r.Body).Decode(&receipt); err != nil {
		respondError(w, http.StatusBadRequest, "invalid receipt payload: "+err.Error())
		return
	}
	if receipt.CommunicationLogID == "" {
		respondError(w, http.StatusBadRequest, "communication_log_id is required")
		return
	}
	if !receipt.Status.IsTerminal() {
		respondError(w, http.StatusBadRequest, "status must be a terminal delivery status")
		return
	}
	if receipt.ReceivedAt.IsZero() {
		receipt.ReceivedAt = time.Now()
	}

	payload, err := json.Marshal(receipt)
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if err := api.broker.Push(r.Context(), queue.ReceiptQueue, payload); err != nil {
		respondError(w, http.StatusServiceUnavailable, "receipt queue unavailable")
		return
	}
	respondJSON(w, http.StatusAccepted, map[string]string{"status": "queued"})
}
