package domain

import "time"

// LogStatus enumerates the lifecycle of a single CommunicationLog.
// A log is created PENDING and transitions to exactly one other state; once
// out of PENDING it is terminal and further receipts are no-ops.
type LogStatus string

const (
	LogPending   LogStatus = "PENDING"
	LogSent      LogStatus = "SENT"
	LogDelivered LogStatus = "DELIVERED"
	LogFailed    LogStatus = "FAILED"
	LogBounced   LogStatus = "BOUNCED"
)

// IsTerminal reports whether the status ends the log's lifecycle.
func (s LogStatus) IsTerminal() bool {
	return s != LogPending && s != ""
}

// CommunicationLog is the per-recipient delivery record for one campaign.
// It owns a point-in-time customer snapshot taken at dispatch.
type CommunicationLog struct {
	ID         string           `json:"id" db:"id"`
	CampaignID string           `json:"campaign_id" db:"campaign_id"`
	CustomerID string           `json:"customer_id" db:"customer_id"`
	Customer   CustomerSnapshot `json:"customer"`
	Subject    string           `json:"subject" db:"subject"`
	Message    string           `json:"message" db:"message"`
	Status     LogStatus        `json:"status" db:"status"`
	Reason     string           `json:"reason,omitempty" db:"reason"`

	SentAt      *time.Time `json:"sent_at,omitempty" db:"sent_at"`
	DeliveredAt *time.Time `json:"delivered_at,omitempty" db:"delivered_at"`
	CreatedAt   time.Time  `json:"created_at" db:"created_at"`
}

// DeliveryReceipt is the transient queue message that drives a
// CommunicationLog transition. It is never persisted as its own entity.
type DeliveryReceipt struct {
	CommunicationLogID string    `json:"communication_log_id"`
	Status             LogStatus `json:"status"`
	VendorID           string    `json:"vendor_id,omitempty"`
	Reason             string    `json:"reason,omitempty"`
	ReceivedAt         time.Time `json:"received_at"`
}

// DeliveryJob is the payload published to the delivery queue, keyed by the
// CommunicationLog it belongs to.
type DeliveryJob struct {
	CommunicationLogID string    `json:"communication_log_id"`
	CampaignID         string    `json:"campaign_id"`
	CustomerID         string    `json:"customer_id"`
	Email              string    `json:"email"`
	Subject            string    `json:"subject"`
	Message            string    `json:"message"`
	EnqueuedAt         time.Time `json:"enqueued_at"`
}
