package campaign

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound means the campaign ID does not exist.
	ErrNotFound = errors.New("campaign not found")
	// ErrNotSendable means the campaign is not in a state Send accepts.
	ErrNotSendable = errors.New("campaign is not in a sendable state")
	// ErrNoRecipients means the segment resolved to zero customers; the
	// campaign is left untouched.
	ErrNoRecipients = errors.New("segment resolved to zero recipients")
	// ErrNameMissing rejects campaign creation without a name.
	ErrNameMissing = errors.New("campaign name is required")
	// ErrMessageMissing rejects campaign creation without message copy.
	ErrMessageMissing = errors.New("campaign message is required")
	// ErrBadPersonalization rejects an unknown personalization mode.
	ErrBadPersonalization = errors.New("unknown personalization mode")
)

// PartialBatchFailure aggregates per-recipient failures from a dispatch that
// otherwise succeeded. FailedLogIDs are logs that exist but whose job was not
// enqueued (they remain PENDING); FailedCustomerIDs are recipients whose log
// could not be created at all.
type PartialBatchFailure struct {
	CampaignID        string
	FailedLogIDs      []string
	FailedCustomerIDs []string
}

func (e *PartialBatchFailure) Error() string {
	return fmt.Sprintf("campaign %s: %d logs not enqueued, %d recipients without logs",
		e.CampaignID, len(e.FailedLogIDs), len(e.FailedCustomerIDs))
}
