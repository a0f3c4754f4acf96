package segmentation

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/lib/pq"

	"github.com/pulsecrm/engage/internal/domain"
)

// Engine resolves predicates against the customer collection. Count and Find
// are the only two consumers exposed to the rest of the system (segment
// preview and campaign recipient resolution); both are read-only.
type Engine struct {
	db *sql.DB
}

// NewEngine creates an engine over the given database handle.
func NewEngine(db *sql.DB) *Engine {
	return &Engine{db: db}
}

// Count returns the number of customers the predicate matches.
func (e *Engine) Count(ctx context.Context, p Predicate) (int, error) {
	query := "SELECT COUNT(*) FROM customers c\nWHERE " + p.Where

	var count int
	if err := e.db.QueryRowContext(ctx, query, p.Args...).Scan(&count); err != nil {
		return 0, fmt.Errorf("count customers: %w", err)
	}
	return count, nil
}

// Find returns the customers the predicate matches, ordered by total spend
// so the most valuable recipients are dispatched first.
func (e *Engine) Find(ctx context.Context, p Predicate) ([]domain.Customer, error) {
	query := `
		SELECT c.id, c.first_name, c.last_name, c.email, c.phone,
			c.total_spend, c.visits, c.last_order_at, c.tags,
			c.created_at, c.updated_at
		FROM customers c
		WHERE ` + p.Where + `
		ORDER BY c.total_spend DESC`

	rows, err := e.db.QueryContext(ctx, query, p.Args...)
	if err != nil {
		return nil, fmt.Errorf("find customers: %w", err)
	}
	defer rows.Close()

	var customers []domain.Customer
	for rows.Next() {
		var c domain.Customer
		var lastOrder sql.NullTime
		if err := rows.Scan(
			&c.ID, &c.FirstName, &c.LastName, &c.Email, &c.Phone,
			&c.TotalSpend, &c.Visits, &lastOrder, pq.Array(&c.Tags),
			&c.CreatedAt, &c.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan customer: %w", err)
		}
		if lastOrder.Valid {
			t := lastOrder.Time
			c.LastOrderAt = &t
		}
		customers = append(customers, c)
	}
	return customers, rows.Err()
}
