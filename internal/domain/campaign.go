package domain

import "time"

// CampaignStatus enumerates the lifecycle states of a campaign.
type CampaignStatus string

const (
	CampaignDraft     CampaignStatus = "draft"
	CampaignScheduled CampaignStatus = "scheduled"
	CampaignRunning   CampaignStatus = "running"
	CampaignCompleted CampaignStatus = "completed"
	CampaignCancelled CampaignStatus = "cancelled"
)

// CampaignStats holds per-campaign delivery counters. TotalRecipients is
// fixed at dispatch time; the terminal counters are incremented only by the
// receipt reconciler, never read-modified by any other actor.
type CampaignStats struct {
	TotalRecipients int `json:"total_recipients" db:"total_recipients"`
	Sent            int `json:"sent" db:"sent"`
	Delivered       int `json:"delivered" db:"delivered"`
	Failed          int `json:"failed" db:"failed"`
	Bounced         int `json:"bounced" db:"bounced"`
}

// DeliveryRate is delivered over total recipients. Every dashboard and
// insight reads this one formula.
func (s CampaignStats) DeliveryRate() float64 {
	if s.TotalRecipients == 0 {
		return 0
	}
	return float64(s.Delivered) / float64(s.TotalRecipients)
}

// PersonalizationMode selects how campaign copy is rendered per recipient.
type PersonalizationMode string

const (
	// PersonalizeAuto picks Liquid for templates using {% %} tags and
	// merge-tag substitution otherwise.
	PersonalizeAuto PersonalizationMode = ""
	// PersonalizeSmart rewrites the greeting and appends a tier-scaled
	// offer from the customer snapshot.
	PersonalizeSmart PersonalizationMode = "smart"
)

// Campaign is a message broadcast to a segment's resolved recipients.
type Campaign struct {
	ID              string              `json:"id" db:"id"`
	Name            string              `json:"name" db:"name"`
	Message         string              `json:"message" db:"message"`
	SegmentID       string              `json:"segment_id" db:"segment_id"`
	Status          CampaignStatus      `json:"status" db:"status"`
	Personalization PersonalizationMode `json:"personalization,omitempty" db:"personalization"`
	Stats           CampaignStats       `json:"stats"`

	ScheduledAt *time.Time `json:"scheduled_at,omitempty" db:"scheduled_at"`
	StartedAt   *time.Time `json:"started_at,omitempty" db:"started_at"`
	CreatedAt   time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at" db:"updated_at"`
}

// IsTerminal returns true if the campaign is in a final state.
func (c *Campaign) IsTerminal() bool {
	return c.Status == CampaignCompleted || c.Status == CampaignCancelled
}
