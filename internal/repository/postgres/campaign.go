// Package postgres implements the persistence contracts against PostgreSQL
// using lib/pq.
package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/pulsecrm/engage/internal/campaign"
	"github.com/pulsecrm/engage/internal/domain"
)

// CampaignRepo implements campaign.Repository against PostgreSQL.
type CampaignRepo struct{ db *sql.DB }

// NewCampaignRepo creates a Postgres-backed campaign repository.
func NewCampaignRepo(db *sql.DB) *CampaignRepo { return &CampaignRepo{db: db} }

func (r *CampaignRepo) Get(ctx context.Context, id string) (*domain.Campaign, error) {
	c := &domain.Campaign{}
	err := r.db.QueryRowContext(ctx, `
		SELECT id, name, message, segment_id, status, personalization,
		       total_recipients, sent, delivered, failed, bounced,
		       scheduled_at, started_at, created_at, updated_at
		FROM campaigns
		WHERE id = $1
	`, id).Scan(
		&c.ID, &c.Name, &c.Message, &c.SegmentID, &c.Status, &c.Personalization,
		&c.Stats.TotalRecipients, &c.Stats.Sent, &c.Stats.Delivered,
		&c.Stats.Failed, &c.Stats.Bounced,
		&c.ScheduledAt, &c.StartedAt, &c.CreatedAt, &c.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, campaign.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get campaign: %w", err)
	}
	return c, nil
}

func (r *CampaignRepo) List(ctx context.Context) ([]domain.Campaign, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, name, message, segment_id, status, personalization,
		       total_recipients, sent, delivered, failed, bounced,
		       scheduled_at, started_at, created_at, updated_at
		FROM campaigns
		ORDER BY created_at DESC
	`)
	if err != nil {
		return nil, fmt.Errorf("list campaigns: %w", err)
	}
	defer rows.Close()

	var out []domain.Campaign
	for rows.Next() {
		var c domain.Campaign
		if err := rows.Scan(
			&c.ID, &c.Name, &c.Message, &c.SegmentID, &c.Status, &c.Personalization,
			&c.Stats.TotalRecipients, &c.Stats.Sent, &c.Stats.Delivered,
			&c.Stats.Failed, &c.Stats.Bounced,
			&c.ScheduledAt, &c.StartedAt, &c.CreatedAt, &c.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan campaign: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (r *CampaignRepo) Create(ctx context.Context, c *domain.Campaign) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO campaigns
			(id, name, message, segment_id, status, personalization,
			 total_recipients, sent, delivered, failed, bounced,
			 scheduled_at, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
	`, c.ID, c.Name, c.Message, c.SegmentID, c.Status, c.Personalization,
		c.Stats.TotalRecipients, c.Stats.Sent, c.Stats.Delivered,
		c.Stats.Failed, c.Stats.Bounced,
		c.ScheduledAt, c.CreatedAt, c.UpdatedAt)
	if err != nil {
		return fmt.Errorf("create campaign: %w", err)
	}
	return nil
}

func (r *CampaignRepo) Update(ctx context.Context, c *domain.Campaign) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE campaigns
		SET name = $2, message = $3, segment_id = $4, status = $5,
		    personalization = $6,
		    total_recipients = $7, sent = $8, delivered = $9,
		    failed = $10, bounced = $11,
		    scheduled_at = $12, started_at = $13, updated_at = $14
		WHERE id = $1
	`, c.ID, c.Name, c.Message, c.SegmentID, c.Status, c.Personalization,
		c.Stats.TotalRecipients, c.Stats.Sent, c.Stats.Delivered,
		c.Stats.Failed, c.Stats.Bounced,
		c.ScheduledAt, c.StartedAt, c.UpdatedAt)
	if err != nil {
		return fmt.Errorf("update campaign: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update campaign: %w", err)
	}
	if n == 0 {
		return campaign.ErrNotFound
	}
	return nil
}

// IncrementStat bumps exactly one terminal counter. The read-modify-write
// stays inside the database so concurrent reconcilers never lose updates.
func (r *CampaignRepo) IncrementStat(ctx context.Context, campaignID string, status domain.LogStatus) error {
	var column string
	switch status {
	case domain.LogSent:
		column = "sent"
	case domain.LogDelivered:
		column = "delivered"
	case domain.LogFailed:
		column = "failed"
	case domain.LogBounced:
		column = "bounced"
	default:
		return fmt.Errorf("no counter for status %q", status)
	}

	q := fmt.Sprintf(`UPDATE campaigns SET %s = %s + 1, updated_at = NOW() WHERE id = $1`, column, column)
	if _, err := r.db.ExecContext(ctx, q, campaignID); err != nil {
		return fmt.Errorf("increment %s: %w", column, err)
	}
	return nil
}

// MaybeComplete closes out a running campaign once every recipient has
// reached a terminal state. The condition lives in SQL so the check and the
// status flip are atomic.
func (r *CampaignRepo) MaybeComplete(ctx context.Context, campaignID string) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE campaigns
		SET status = $2, updated_at = NOW()
		WHERE id = $1 AND status = $3
		  AND sent + delivered + failed + bounced >= total_recipients
	`, campaignID, domain.CampaignCompleted, domain.CampaignRunning)
	if err != nil {
		return fmt.Errorf("complete campaign: %w", err)
	}
	return nil
}
