package personalize

import (
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/osteele/liquid"

	"github.com/pulsecrm/engage/internal/domain"
)

// LiquidEngine renders rich templates with Liquid control flow ({% if %},
// {% for %}, filters). Campaign messages opt in by using Liquid tags; the
// plain merge-tag strategy stays the default because it must leave unmatched
// tokens verbatim, which Liquid cannot do.
type LiquidEngine struct {
	engine *liquid.Engine
	cache  sync.Map // template source -> *liquid.Template
}

// NewLiquidEngine creates a Liquid engine with the campaign filters registered.
func NewLiquidEngine() *LiquidEngine {
	e := &LiquidEngine{engine: liquid.NewEngine()}

	// Fallback value: {{ first_name | default: "Friend" }}
	e.engine.RegisterFilter("default", func(value any, fallback string) any {
		if value == nil {
			return fallback
		}
		if s := fmt.Sprintf("%v", value); s == "" || s == "<nil>" {
			return fallback
		}
		return value
	})

	// Currency formatting: {{ total_spend | currency }}
	e.engine.RegisterFilter("currency", func(value any) string {
		switch v := value.(type) {
		case float64:
			return fmt.Sprintf("$%.2f", v)
		case int:
			return fmt.Sprintf("$%d.00", v)
		case string:
			if f, err := strconv.ParseFloat(v, 64); err == nil {
				return fmt.Sprintf("$%.2f", f)
			}
		}
		return fmt.Sprintf("%v", value)
	})

	// Capitalize first letter: {{ name | capitalize }}
	e.engine.RegisterFilter("capitalize", func(s string) string {
		if s == "" {
			return s
		}
		return strings.ToUpper(s[:1]) + s[1:]
	})

	return e
}

// UsesLiquid reports whether a message opts into Liquid rendering.
func UsesLiquid(message string) bool {
	return strings.Contains(message, "{%")
}

// Render parses (with caching) and renders the template against the
// customer snapshot. On parse or render error the original template string
// is returned so a broken template degrades to a visible artifact rather
// than a dropped message.
func (e *LiquidEngine) Render(source string, snap domain.CustomerSnapshot) (string, error) {
	var tpl *liquid.Template
	if cached, ok := e.cache.Load(source); ok {
		tpl = cached.(*liquid.Template)
	} else {
		parsed, err := e.engine.ParseString(source)
		if err != nil {
			return source, err
		}
		e.cache.Store(source, parsed)
		tpl = parsed
	}

	out, err := tpl.RenderString(bindings(snap))
	if err != nil {
		return source, err
	}
	return out, nil
}

// Strategy adapts the Liquid engine to the personalization Strategy
// signature. The subject still comes from the merge-tag default.
func (e *LiquidEngine) Strategy() Strategy {
	return func(message string, snap domain.CustomerSnapshot) (string, string) {
		body, _ := e.Render(message, snap)
		return substitute(DefaultSubject, snap), body
	}
}

func bindings(snap domain.CustomerSnapshot) map[string]any {
	b := map[string]any{
		"first_name":  snap.FirstName,
		"last_name":   snap.LastName,
		"full_name":   snap.FullName(),
		"email":       snap.Email,
		"phone":       snap.Phone,
		"total_spend": snap.TotalSpend,
		"visits":      snap.Visits,
		"tags":        snap.Tags,
	}
	if snap.LastOrderAt != nil {
		b["last_order_date"] = snap.LastOrderAt.Format("January 2, 2006")
		b["last_order_at"] = snap.LastOrderAt.Format(time.RFC3339)
	}
	return b
}
