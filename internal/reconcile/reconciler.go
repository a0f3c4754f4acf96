// Package reconcile consumes delivery receipts and drives each
// CommunicationLog through its single PENDING-to-terminal transition,
// updating campaign counters exactly once per log.
package reconcile

import (
	"context"
	"errors"
	"fmt"
	"log"

	"github.com/pulsecrm/engage/internal/domain"
)

// ErrLogNotFound is returned by repositories when a receipt references an
// unknown CommunicationLog.
var ErrLogNotFound = errors.New("communication log not found")

// Repository is the persistence contract the reconciler drives.
// TransitionFromPending must be conditional on the current status being
// PENDING and report whether the write happened; that conditional write is
// what makes duplicate receipts harmless.
type Repository interface {
	TransitionFromPending(ctx context.Context, logID string, receipt domain.DeliveryReceipt) (*domain.CommunicationLog, bool, error)
	IncrementStat(ctx context.Context, campaignID string, status domain.LogStatus) error
	MaybeComplete(ctx context.Context, campaignID string) error
}

// Reconciler applies receipts. It is the only writer of campaign terminal
// counters after dispatch.
type Reconciler struct {
	repo Repository
}

func New(repo Repository) *Reconciler {
	return &Reconciler{repo: repo}
}

// Apply processes one receipt. Unknown logs and non-terminal statuses are
// dropped with a nil error: replaying them can never succeed, so surfacing
// an error would only wedge the consumer. Duplicate receipts for a log that
// already left PENDING are silent no-ops.
func (r *Reconciler) Apply(ctx context.Context, receipt domain.DeliveryReceipt) error {
	if receipt.CommunicationLogID == "" {
		log.Printf("[Reconcile] dropping receipt without log ID")
		return nil
	}
	if !receipt.Status.IsTerminal() {
		log.Printf("[Reconcile] dropping receipt for log %s with non-terminal status %q",
			receipt.CommunicationLogID, receipt.Status)
		return nil
	}

	l, transitioned, err := r.repo.TransitionFromPending(ctx, receipt.CommunicationLogID, receipt)
	if errors.Is(err, ErrLogNotFound) {
		log.Printf("[Reconcile] dropping receipt for unknown log %s", receipt.CommunicationLogID)
		return nil
	}
	if err != nil {
		return fmt.Errorf("transitioning log %s: %w", receipt.CommunicationLogID, err)
	}
	if !transitioned {
		// Already terminal; a prior receipt won.
		return nil
	}

	if err := r.repo.IncrementStat(ctx, l.CampaignID, receipt.Status); err != nil {
		return fmt.Errorf("incrementing %s counter for campaign %s: %w", receipt.Status, l.CampaignID, err)
	}
	if err := r.repo.MaybeComplete(ctx, l.CampaignID); err != nil {
		return fmt.Errorf("closing out campaign %s: %w", l.CampaignID, err)
	}
	return nil
}
