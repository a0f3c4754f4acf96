package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/pulsecrm/engage/internal/domain"
	"github.com/pulsecrm/engage/internal/reconcile"
)

// CommLogRepo persists communication logs. The embedded customer snapshot
// is stored as a JSONB column so it survives later customer mutation.
type CommLogRepo struct{ db *sql.DB }

// NewCommLogRepo creates a Postgres-backed communication log repository.
func NewCommLogRepo(db *sql.DB) *CommLogRepo { return &CommLogRepo{db: db} }

func (r *CommLogRepo) Create(ctx context.Context, l *domain.CommunicationLog) error {
	snapshot, err := json.Marshal(l.Customer)
	if err != nil {
		return fmt.Errorf("marshal snapshot: %w", err)
	}
	_, err = r.db.ExecContext(ctx, `
		INSERT INTO communication_logs
			(id, campaign_id, customer_id, customer, subject, message,
			 status, reason, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`, l.ID, l.CampaignID, l.CustomerID, snapshot, l.Subject, l.Message,
		l.Status, l.Reason, l.CreatedAt)
	if err != nil {
		return fmt.Errorf("create communication log: %w", err)
	}
	return nil
}

func (r *CommLogRepo) ListByCampaign(ctx context.Context, campaignID string) ([]domain.CommunicationLog, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, campaign_id, customer_id, customer, subject, message,
		       status, COALESCE(reason, ''), sent_at, delivered_at, created_at
		FROM communication_logs
		WHERE campaign_id = $1
		ORDER BY created_at
	`, campaignID)
	if err != nil {
		return nil, fmt.Errorf("list communication logs: %w", err)
	}
	defer rows.Close()

	var out []domain.CommunicationLog
	for rows.Next() {
		l, err := scanLog(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *l)
	}
	return out, rows.Err()
}

// TransitionFromPending applies a receipt's terminal status iff the log is
// still PENDING. The conditional UPDATE is the linearization point: exactly
// one receipt per log wins, every later one observes zero affected rows.
func (r *CommLogRepo) TransitionFromPending(ctx context.Context, logID string, receipt domain.DeliveryReceipt) (*domain.CommunicationLog, bool, error) {
	var sentAt, deliveredAt *time.Time
	switch receipt.Status {
	case domain.LogSent:
		t := receipt.ReceivedAt
		sentAt = &t
	case domain.LogDelivered:
		t := receipt.ReceivedAt
		deliveredAt = &t
	}

	row := r.db.QueryRowContext(ctx, `
		UPDATE communication_logs
		SET status = $2, reason = $3,
		    sent_at = COALESCE($4, sent_at),
		    delivered_at = COALESCE($5, delivered_at)
		WHERE id = $1 AND status = $6
		RETURNING id, campaign_id, customer_id, customer, subject, message,
		          status, COALESCE(reason, ''), sent_at, delivered_at, created_at
	`, logID, receipt.Status, receipt.Reason, sentAt, deliveredAt, domain.LogPending)

	l, err := scanLog(row)
	if err == nil {
		return l, true, nil
	}
	if err != sql.ErrNoRows {
		return nil, false, fmt.Errorf("transition log: %w", err)
	}

	// No row updated: the log is either already terminal or unknown.
	row = r.db.QueryRowContext(ctx, `
		SELECT id, campaign_id, customer_id, customer, subject, message,
		       status, COALESCE(reason, ''), sent_at, delivered_at, created_at
		FROM communication_logs
		WHERE id = $1
	`, logID)
	l, err = scanLog(row)
	if err == sql.ErrNoRows {
		return nil, false, reconcile.ErrLogNotFound
	}
	if err != nil {
		return nil, false, fmt.Errorf("load log: %w", err)
	}
	return l, false, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanLog(row rowScanner) (*domain.CommunicationLog, error) {
	var l domain.CommunicationLog
	var snapshot []byte
	err := row.Scan(
		&l.ID, &l.CampaignID, &l.CustomerID, &snapshot, &l.Subject, &l.Message,
		&l.Status, &l.Reason, &l.SentAt, &l.DeliveredAt, &l.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(snapshot, &l.Customer); err != nil {
		return nil, fmt.Errorf("unmarshal snapshot: %w", err)
	}
	return &l, nil
}

// ReconcileStore composes the log and campaign repositories into the
// reconciler's contract.
type ReconcileStore struct {
	Logs      *CommLogRepo
	Campaigns *CampaignRepo
}

func NewReconcileStore(db *sql.DB) *ReconcileStore {
	return &ReconcileStore{Logs: NewCommLogRepo(db), Campaigns: NewCampaignRepo(db)}
}

func (s *ReconcileStore) TransitionFromPending(ctx context.Context, logID string, receipt domain.DeliveryReceipt) (*domain.CommunicationLog, bool, error) {
	return s.Logs.TransitionFromPending(ctx, logID, receipt)
}

func (s *ReconcileStore) IncrementStat(ctx context.Context, campaignID string, status domain.LogStatus) error {
	return s.Campaigns.IncrementStat(ctx, campaignID, status)
}

func (s *ReconcileStore) MaybeComplete(ctx context.Context, campaignID string) error {
	return s.Campaigns.MaybeComplete(ctx, campaignID)
}
