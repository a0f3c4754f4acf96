// Package segmentation compiles declarative segment rules into customer
// predicates and resolves segments against the customer store.
package segmentation

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/pulsecrm/engage/internal/domain"
)

// Predicate is the compiled, queryable form of a segment's rules. It carries
// both a parameterized SQL WHERE fragment for the Postgres store and the
// recognized rules for in-memory evaluation.
type Predicate struct {
	Where string
	Args  []any

	rules []domain.SegmentRule
}

// Universal reports whether the predicate matches every customer
// (an empty rule list compiles to the universal set).
func (p Predicate) Universal() bool {
	return len(p.rules) == 0
}

// Rules returns the recognized rules the predicate was compiled from.
func (p Predicate) Rules() []domain.SegmentRule {
	return p.rules
}

// Compile translates an ordered rule list into a single predicate. Rules are
// AND-combined; there is no OR or grouping support. Unrecognized
// (field, operator) pairs contribute no constraint instead of erroring —
// downstream behavior depends on that tolerance, so callers needing strict
// validation must validate before compiling.
func Compile(rules []domain.SegmentRule) Predicate {
	var (
		parts      []string
		args       []any
		recognized []domain.SegmentRule
		argN       = 1
	)

	nextArg := func(v any) string {
		args = append(args, v)
		ph := fmt.Sprintf("$%d", argN)
		argN++
		return ph
	}

	for _, rule := range rules {
		sql, ok := compileRule(rule, nextArg)
		if !ok {
			continue
		}
		parts = append(parts, sql)
		recognized = append(recognized, rule)
	}

	where := "TRUE"
	if len(parts) > 0 {
		where = strings.Join(parts, "\n  AND ")
	}

	return Predicate{Where: where, Args: args, rules: recognized}
}

// compileRule maps one rule to a SQL fragment. The second return value is
// false for rules the compiler does not recognize.
func compileRule(rule domain.SegmentRule, nextArg func(any) string) (string, bool) {
	if rule.Field == domain.FieldTags {
		return compileTagRule(rule, nextArg)
	}

	col, ok := columnFor(rule.Field)
	if !ok {
		return "", false
	}

	switch rule.Operator {
	case domain.OpEquals:
		return fmt.Sprintf("%s = %s", col, nextArg(scalarValue(rule))), true
	case domain.OpNotEquals:
		return fmt.Sprintf("%s != %s", col, nextArg(scalarValue(rule))), true
	case domain.OpGreaterThan:
		return fmt.Sprintf("%s > %s", col, nextArg(scalarValue(rule))), true
	case domain.OpLessThan:
		return fmt.Sprintf("%s < %s", col, nextArg(scalarValue(rule))), true
	case domain.OpContains:
		// Scalar fields have no membership semantics beyond equality with
		// a one-element set. Kept for compatibility with stored rules.
		return fmt.Sprintf("%s = %s", col, nextArg(scalarValue(rule))), true
	case domain.OpNotContains:
		return fmt.Sprintf("%s != %s", col, nextArg(scalarValue(rule))), true
	case domain.OpIn, domain.OpNotIn:
		values := listValue(rule)
		if len(values) == 0 {
			return "", false
		}
		placeholders := make([]string, len(values))
		for i, v := range values {
			placeholders[i] = nextArg(v)
		}
		op := "IN"
		if rule.Operator == domain.OpNotIn {
			op = "NOT IN"
		}
		return fmt.Sprintf("%s %s (%s)", col, op, strings.Join(placeholders, ", ")), true
	default:
		return "", false
	}
}

// compileTagRule handles the array-typed tags column.
func compileTagRule(rule domain.SegmentRule, nextArg func(any) string) (string, bool) {
	switch rule.Operator {
	case domain.OpContains:
		return fmt.Sprintf("%s = ANY(c.tags)", nextArg(scalarValue(rule))), true
	case domain.OpNotContains:
		return fmt.Sprintf("NOT (%s = ANY(c.tags))", nextArg(scalarValue(rule))), true
	case domain.OpIn, domain.OpNotIn:
		values := listValue(rule)
		if len(values) == 0 {
			return "", false
		}
		placeholders := make([]string, len(values))
		for i, v := range values {
			placeholders[i] = nextArg(v)
		}
		sql := fmt.Sprintf("c.tags && ARRAY[%s]::text[]", strings.Join(placeholders, ", "))
		if rule.Operator == domain.OpNotIn {
			sql = "NOT (" + sql + ")"
		}
		return sql, true
	default:
		return "", false
	}
}

func columnFor(field domain.RuleField) (string, bool) {
	switch field {
	case domain.FieldTotalSpend:
		return "c.total_spend", true
	case domain.FieldVisits:
		return "c.visits", true
	case domain.FieldLastOrderAt:
		return "c.last_order_at", true
	default:
		return "", false
	}
}

// scalarValue normalizes a rule value for use as a single query argument.
func scalarValue(rule domain.SegmentRule) any {
	if rule.Field == domain.FieldLastOrderAt {
		if t, ok := timeValue(rule.Value); ok {
			return t
		}
	}
	return rule.Value
}

// listValue normalizes a rule value into a flat argument list. A scalar is
// treated as a one-element list so sloppy callers still get a usable rule.
func listValue(rule domain.SegmentRule) []any {
	switch v := rule.Value.(type) {
	case []any:
		return v
	case []string:
		out := make([]any, len(v))
		for i, s := range v {
			out[i] = s
		}
		return out
	case []float64:
		out := make([]any, len(v))
		for i, f := range v {
			out[i] = f
		}
		return out
	case nil:
		return nil
	default:
		return []any{v}
	}
}

// numberValue coerces a rule value to float64 for in-memory comparison.
func numberValue(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	case string:
		f, err := strconv.ParseFloat(n, 64)
		return f, err == nil
	default:
		return 0, false
	}
}

// timeValue coerces a rule value to a time.Time. Accepts time.Time, RFC 3339
// strings, and bare dates.
func timeValue(v any) (time.Time, bool) {
	switch t := v.(type) {
	case time.Time:
		return t, true
	case *time.Time:
		if t == nil {
			return time.Time{}, false
		}
		return *t, true
	case string:
		if parsed, err := time.Parse(time.RFC3339, t); err == nil {
			return parsed, true
		}
		if parsed, err := time.Parse("2006-01-02", t); err == nil {
			return parsed, true
		}
	}
	return time.Time{}, false
}

// HashPredicate generates a deterministic hash of a rule list, used to tell
// whether a segment's cached customer count was computed from the same rules.
func HashPredicate(rules []domain.SegmentRule) string {
	data, _ := json.Marshal(rules)
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}
