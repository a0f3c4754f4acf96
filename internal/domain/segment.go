package domain

import "time"

// RuleField enumerates the customer attributes a segment rule can target.
type RuleField string

const (
	FieldTotalSpend  RuleField = "total_spend"
	FieldVisits      RuleField = "visits"
	FieldLastOrderAt RuleField = "last_order_at"
	FieldTags        RuleField = "tags"
)

// RuleOperator enumerates the comparison operators a segment rule can use.
type RuleOperator string

const (
	OpEquals      RuleOperator = "equals"
	OpNotEquals   RuleOperator = "not_equals"
	OpGreaterThan RuleOperator = "greater_than"
	OpLessThan    RuleOperator = "less_than"
	OpContains    RuleOperator = "contains"
	OpNotContains RuleOperator = "not_contains"
	OpIn          RuleOperator = "in"
	OpNotIn       RuleOperator = "not_in"
)

// SegmentRule is a single field-scoped comparison. Rules are immutable once
// stored inside a Segment; Value holds a scalar or an array depending on the
// operator.
type SegmentRule struct {
	Field    RuleField    `json:"field"`
	Operator RuleOperator `json:"operator"`
	Value    any          `json:"value"`
}

// Segment is a named, rule-defined subset of customers. Rules are
// AND-combined in order; an empty list matches every customer.
type Segment struct {
	ID          string        `json:"id" db:"id"`
	Name        string        `json:"name" db:"name"`
	Description string        `json:"description" db:"description"`
	Rules       []SegmentRule `json:"rules" db:"rules"`

	// CustomerCount is a snapshot recomputed on create/update. It is allowed
	// to drift from the live predicate result. RulesHash records which rule
	// set the snapshot was computed from, so an update that does not change
	// the rules can keep the cached count.
	CustomerCount int    `json:"customer_count" db:"customer_count"`
	RulesHash     string `json:"-" db:"rules_hash"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}
