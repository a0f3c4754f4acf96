package segmentation

import (
	"fmt"
	"slices"

	"github.com/pulsecrm/engage/internal/domain"
)

// Matches evaluates the predicate against a single customer in memory.
// It is the pure analog of the SQL form and must agree with it: only the
// rules the compiler recognized participate, AND-combined.
func (p Predicate) Matches(c *domain.Customer) bool {
	for _, rule := range p.rules {
		if !matchRule(rule, c) {
			return false
		}
	}
	return true
}

func matchRule(rule domain.SegmentRule, c *domain.Customer) bool {
	if rule.Field == domain.FieldTags {
		return matchTagRule(rule, c.Tags)
	}

	switch rule.Field {
	case domain.FieldTotalSpend:
		return matchNumber(rule, c.TotalSpend)
	case domain.FieldVisits:
		return matchNumber(rule, float64(c.Visits))
	case domain.FieldLastOrderAt:
		return matchTime(rule, c)
	default:
		return true
	}
}

func matchNumber(rule domain.SegmentRule, actual float64) bool {
	switch rule.Operator {
	case domain.OpEquals, domain.OpContains:
		want, ok := numberValue(rule.Value)
		return ok && actual == want
	case domain.OpNotEquals, domain.OpNotContains:
		want, ok := numberValue(rule.Value)
		return ok && actual != want
	case domain.OpGreaterThan:
		want, ok := numberValue(rule.Value)
		return ok && actual > want
	case domain.OpLessThan:
		want, ok := numberValue(rule.Value)
		return ok && actual < want
	case domain.OpIn, domain.OpNotIn:
		found := false
		for _, v := range listValue(rule) {
			if want, ok := numberValue(v); ok && actual == want {
				found = true
				break
			}
		}
		if rule.Operator == domain.OpIn {
			return found
		}
		return !found
	default:
		return true
	}
}

func matchTime(rule domain.SegmentRule, c *domain.Customer) bool {
	want, ok := timeValue(rule.Value)
	if !ok {
		return true
	}
	// SQL NULL semantics: a comparison against a missing timestamp matches
	// nothing, including not_equals.
	if c.LastOrderAt == nil {
		return false
	}
	actual := *c.LastOrderAt

	switch rule.Operator {
	case domain.OpEquals, domain.OpContains:
		return actual.Equal(want)
	case domain.OpNotEquals, domain.OpNotContains:
		return !actual.Equal(want)
	case domain.OpGreaterThan:
		return actual.After(want)
	case domain.OpLessThan:
		return actual.Before(want)
	default:
		return true
	}
}

func matchTagRule(rule domain.SegmentRule, tags []string) bool {
	switch rule.Operator {
	case domain.OpContains:
		return slices.Contains(tags, stringValue(rule.Value))
	case domain.OpNotContains:
		return !slices.Contains(tags, stringValue(rule.Value))
	case domain.OpIn, domain.OpNotIn:
		overlap := false
		for _, v := range listValue(rule) {
			if slices.Contains(tags, stringValue(v)) {
				overlap = true
				break
			}
		}
		if rule.Operator == domain.OpIn {
			return overlap
		}
		return !overlap
	default:
		return true
	}
}

func stringValue(v any) string {
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprintf("%v", v)
}
