package segmentation_test

import (
	"context"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pulsecrm/engage/internal/domain"
	"github.com/pulsecrm/engage/internal/segmentation"
)

func TestEngineCount(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery(`SELECT COUNT\(\*\) FROM customers c`).
		WithArgs(float64(100)).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(7))

	engine := segmentation.NewEngine(db)
	p := segmentation.Compile([]domain.SegmentRule{
		{Field: domain.FieldTotalSpend, Operator: domain.OpGreaterThan, Value: float64(100)},
	})

	count, err := engine.Count(context.Background(), p)
	require.NoError(t, err)
	assert.Equal(t, 7, count)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestEngineFind(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	now := time.Now()
	rows := sqlmock.NewRows([]string{
		"id", "first_name", "last_name", "email", "phone",
		"total_spend", "visits", "last_order_at", "tags", "created_at", "updated_at",
	}).AddRow("c1", "Ada", "Okafor", "ada@example.com", "", 250.0, 4, now, "{vip}", now, now)

	mock.ExpectQuery(`SELECT c\.id, c\.first_name`).
		WithArgs("vip").
		WillReturnRows(rows)

	engine := segmentation.NewEngine(db)
	p := segmentation.Compile([]domain.SegmentRule{
		{Field: domain.FieldTags, Operator: domain.OpContains, Value: "vip"},
	})

	customers, err := engine.Find(context.Background(), p)
	require.NoError(t, err)
	require.Len(t, customers, 1)
	assert.Equal(t, "c1", customers[0].ID)
	assert.Equal(t, []string{"vip"}, customers[0].Tags)
	require.NotNil(t, customers[0].LastOrderAt)
	assert.NoError(t, mock.ExpectationsWereMet())
}
