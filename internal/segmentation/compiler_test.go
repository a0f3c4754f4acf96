package segmentation_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pulsecrm/engage/internal/domain"
	"github.com/pulsecrm/engage/internal/segmentation"
)

func fixtureCustomers() []domain.Customer {
	daysAgo := func(d int) *time.Time {
		t := time.Now().AddDate(0, 0, -d)
		return &t
	}
	return []domain.Customer{
		{ID: "c1", FirstName: "Ada", TotalSpend: 50, Visits: 2, LastOrderAt: daysAgo(3), Tags: []string{"new"}},
		{ID: "c2", FirstName: "Bo", TotalSpend: 150, Visits: 5, LastOrderAt: daysAgo(20), Tags: []string{"loyal", "newsletter"}},
		{ID: "c3", FirstName: "Cy", TotalSpend: 500, Visits: 12, LastOrderAt: daysAgo(100), Tags: []string{"vip"}},
		{ID: "c4", FirstName: "Di", TotalSpend: 1200, Visits: 30, LastOrderAt: nil, Tags: nil},
	}
}

func matchIDs(t *testing.T, p segmentation.Predicate) []string {
	t.Helper()
	var ids []string
	for _, c := range fixtureCustomers() {
		if p.Matches(&c) {
			ids = append(ids, c.ID)
		}
	}
	return ids
}

func TestCompileEmptyRulesIsUniversal(t *testing.T) {
	p := segmentation.Compile(nil)
	assert.True(t, p.Universal())
	assert.Equal(t, "TRUE", p.Where)
	assert.Empty(t, p.Args)
	assert.ElementsMatch(t, []string{"c1", "c2", "c3", "c4"}, matchIDs(t, p))
}

func TestCompileOperators(t *testing.T) {
	tests := []struct {
		name string
		rule domain.SegmentRule
		want []string
	}{
		{
			name: "equals",
			rule: domain.SegmentRule{Field: domain.FieldVisits, Operator: domain.OpEquals, Value: 5},
			want: []string{"c2"},
		},
		{
			name: "not_equals",
			rule: domain.SegmentRule{Field: domain.FieldVisits, Operator: domain.OpNotEquals, Value: 5},
			want: []string{"c1", "c3", "c4"},
		},
		{
			name: "greater_than",
			rule: domain.SegmentRule{Field: domain.FieldTotalSpend, Operator: domain.OpGreaterThan, Value: 100},
			want: []string{"c2", "c3", "c4"},
		},
		{
			name: "less_than",
			rule: domain.SegmentRule{Field: domain.FieldTotalSpend, Operator: domain.OpLessThan, Value: 500},
			want: []string{"c1", "c2"},
		},
		{
			name: "contains on tags",
			rule: domain.SegmentRule{Field: domain.FieldTags, Operator: domain.OpContains, Value: "vip"},
			want: []string{"c3"},
		},
		{
			name: "not_contains on tags",
			rule: domain.SegmentRule{Field: domain.FieldTags, Operator: domain.OpNotContains, Value: "vip"},
			want: []string{"c1", "c2", "c4"},
		},
		{
			name: "in",
			rule: domain.SegmentRule{Field: domain.FieldVisits, Operator: domain.OpIn, Value: []any{2, 12}},
			want: []string{"c1", "c3"},
		},
		{
			name: "not_in",
			rule: domain.SegmentRule{Field: domain.FieldVisits, Operator: domain.OpNotIn, Value: []any{2, 12}},
			want: []string{"c2", "c4"},
		},
		{
			name: "in on tags is overlap",
			rule: domain.SegmentRule{Field: domain.FieldTags, Operator: domain.OpIn, Value: []any{"vip", "loyal"}},
			want: []string{"c2", "c3"},
		},
		{
			name: "contains on scalar degrades to equality",
			rule: domain.SegmentRule{Field: domain.FieldVisits, Operator: domain.OpContains, Value: 12},
			want: []string{"c3"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := segmentation.Compile([]domain.SegmentRule{tt.rule})
			assert.ElementsMatch(t, tt.want, matchIDs(t, p))
		})
	}
}

func TestCompileLastOrderAt(t *testing.T) {
	cutoff := time.Now().AddDate(0, 0, -30)
	p := segmentation.Compile([]domain.SegmentRule{
		{Field: domain.FieldLastOrderAt, Operator: domain.OpGreaterThan, Value: cutoff},
	})
	// c4 never ordered; NULL comparisons match nothing.
	assert.ElementsMatch(t, []string{"c1", "c2"}, matchIDs(t, p))
}

func TestCompileUnknownPairContributesNothing(t *testing.T) {
	unknown := segmentation.Compile([]domain.SegmentRule{
		{Field: domain.FieldTags, Operator: domain.OpGreaterThan, Value: "vip"},
		{Field: "favorite_color", Operator: domain.OpEquals, Value: "blue"},
	})
	empty := segmentation.Compile(nil)

	assert.Equal(t, empty.Where, unknown.Where)
	assert.Equal(t, empty.Args, unknown.Args)
	assert.True(t, unknown.Universal())
}

func TestCompileSQLShape(t *testing.T) {
	p := segmentation.Compile([]domain.SegmentRule{
		{Field: domain.FieldTotalSpend, Operator: domain.OpGreaterThan, Value: 100},
		{Field: domain.FieldTags, Operator: domain.OpContains, Value: "vip"},
		{Field: domain.FieldVisits, Operator: domain.OpIn, Value: []any{1, 2, 3}},
	})

	assert.Equal(t, "c.total_spend > $1\n  AND $2 = ANY(c.tags)\n  AND c.visits IN ($3, $4, $5)", p.Where)
	assert.Equal(t, []any{100, "vip", 1, 2, 3}, p.Args)
}

func TestCompileRulesAreANDCombined(t *testing.T) {
	p := segmentation.Compile([]domain.SegmentRule{
		{Field: domain.FieldTotalSpend, Operator: domain.OpGreaterThan, Value: 100},
		{Field: domain.FieldVisits, Operator: domain.OpLessThan, Value: 20},
	})
	assert.ElementsMatch(t, []string{"c2", "c3"}, matchIDs(t, p))
}

func TestHashPredicateDeterministic(t *testing.T) {
	rules := []domain.SegmentRule{
		{Field: domain.FieldTotalSpend, Operator: domain.OpGreaterThan, Value: 100},
	}
	h1 := segmentation.HashPredicate(rules)
	h2 := segmentation.HashPredicate(rules)
	require.Equal(t, h1, h2)
	assert.NotEqual(t, h1, segmentation.HashPredicate(nil))
}
