package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/pulsecrm/engage/internal/domain"
	"github.com/pulsecrm/engage/internal/segmentation"
)

// SegmentRepo implements segmentation.Repository against PostgreSQL.
// Rules are stored as a JSONB column.
type SegmentRepo struct{ db *sql.DB }

// NewSegmentRepo creates a Postgres-backed segment repository.
func NewSegmentRepo(db *sql.DB) *SegmentRepo { return &SegmentRepo{db: db} }

func (r *SegmentRepo) Get(ctx context.Context, id string) (*domain.Segment, error) {
	s := &domain.Segment{}
	var rules []byte
	err := r.db.QueryRowContext(ctx, `
		SELECT id, name, COALESCE(description, ''), rules, customer_count,
		       rules_hash, created_at, updated_at
		FROM segments
		WHERE id = $1
	`, id).Scan(&s.ID, &s.Name, &s.Description, &rules, &s.CustomerCount,
		&s.RulesHash, &s.CreatedAt, &s.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, segmentation.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get segment: %w", err)
	}
	if err := json.Unmarshal(rules, &s.Rules); err != nil {
		return nil, fmt.Errorf("unmarshal rules: %w", err)
	}
	return s, nil
}

func (r *SegmentRepo) List(ctx context.Context) ([]domain.Segment, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, name, COALESCE(description, ''), rules, customer_count,
		       rules_hash, created_at, updated_at
		FROM segments
		ORDER BY created_at DESC
	`)
	if err != nil {
		return nil, fmt.Errorf("list segments: %w", err)
	}
	defer rows.Close()

	var out []domain.Segment
	for rows.Next() {
		var s domain.Segment
		var rules []byte
		if err := rows.Scan(&s.ID, &s.Name, &s.Description, &rules,
			&s.CustomerCount, &s.RulesHash, &s.CreatedAt, &s.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan segment: %w", err)
		}
		if err := json.Unmarshal(rules, &s.Rules); err != nil {
			return nil, fmt.Errorf("unmarshal rules: %w", err)
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

func (r *SegmentRepo) Create(ctx context.Context, s *domain.Segment) error {
	rules, err := json.Marshal(s.Rules)
	if err != nil {
		return fmt.Errorf("marshal rules: %w", err)
	}
	_, err = r.db.ExecContext(ctx, `
		INSERT INTO segments
			(id, name, description, rules, customer_count, rules_hash,
			 created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, s.ID, s.Name, s.Description, rules, s.CustomerCount, s.RulesHash,
		s.CreatedAt, s.UpdatedAt)
	if err != nil {
		return fmt.Errorf("create segment: %w", err)
	}
	return nil
}

func (r *SegmentRepo) Update(ctx context.Context, s *domain.Segment) error {
	rules, err := json.Marshal(s.Rules)
	if err != nil {
		return fmt.Errorf("marshal rules: %w", err)
	}
	res, err := r.db.ExecContext(ctx, `
		UPDATE segments
		SET name = $2, description = $3, rules = $4, customer_count = $5,
		    rules_hash = $6, updated_at = $7
		WHERE id = $1
	`, s.ID, s.Name, s.Description, rules, s.CustomerCount, s.RulesHash, s.UpdatedAt)
	if err != nil {
		return fmt.Errorf("update segment: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update segment: %w", err)
	}
	if n == 0 {
		return segmentation.ErrNotFound
	}
	return nil
}

func (r *SegmentRepo) Delete(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM segments WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete segment: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete segment: %w", err)
	}
	if n == 0 {
		return segmentation.ErrNotFound
	}
	return nil
}
