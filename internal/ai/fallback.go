package ai

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/pulsecrm/engage/internal/domain"
)

// Heuristic fallback: regular-expression driven extraction that synthesizes
// a structurally valid result when the external generator is unavailable.
// The static tier below is used only when no pattern matches at all.

var (
	spendRe = regexp.MustCompile(`(?i)(?:spent|spend|spending|purchased?|paid)\s*(over|more than|above|at least|under|less than|below)?\s*\$?\s*([0-9]+(?:\.[0-9]+)?)`)
	visitRe = regexp.MustCompile(`(?i)(?:visit(?:ed|s)?)\s*(?:us\s*)?(over|more than|above|at least|under|less than|below|fewer than)?\s*([0-9]+)`)
	daysRe  = regexp.MustCompile(`(?i)(haven'?t|have not|no order[s]?|not ordered|inactive)?[^.]*?(?:in the\s+)?(?:last|past|within)\s+([0-9]+)\s+days?`)
	tagRe   = regexp.MustCompile(`(?i)tag(?:ged)?\s+(?:with\s+|as\s+)?"?([a-zA-Z0-9_-]+)"?`)

	lessRe = regexp.MustCompile(`(?i)under|less|below|fewer`)
)

// inferRulesHeuristic pattern-matches a natural-language audience
// description into segment rules. The returned confidence reflects how much
// of the prompt was recognized; zero rules means the static tier applies.
func inferRulesHeuristic(prompt string, now time.Time) ([]domain.SegmentRule, float64) {
	var rules []domain.SegmentRule

	if m := spendRe.FindStringSubmatch(prompt); m != nil {
		op := domain.OpGreaterThan
		if lessRe.MatchString(m[1]) {
			op = domain.OpLessThan
		}
		amount, _ := strconv.ParseFloat(m[2], 64)
		rules = append(rules, domain.SegmentRule{Field: domain.FieldTotalSpend, Operator: op, Value: amount})
	}

	if m := visitRe.FindStringSubmatch(prompt); m != nil {
		op := domain.OpGreaterThan
		if lessRe.MatchString(m[1]) {
			op = domain.OpLessThan
		}
		visits, _ := strconv.Atoi(m[2])
		rules = append(rules, domain.SegmentRule{Field: domain.FieldVisits, Operator: op, Value: visits})
	}

	if m := daysRe.FindStringSubmatch(prompt); m != nil {
		days, _ := strconv.Atoi(m[2])
		cutoff := now.AddDate(0, 0, -days).Format(time.RFC3339)
		op := domain.OpGreaterThan // ordered within the window
		if m[1] != "" {
			op = domain.OpLessThan // lapsed: no order since the cutoff
		}
		rules = append(rules, domain.SegmentRule{Field: domain.FieldLastOrderAt, Operator: op, Value: cutoff})
	}

	if m := tagRe.FindStringSubmatch(prompt); m != nil {
		rules = append(rules, domain.SegmentRule{Field: domain.FieldTags, Operator: domain.OpContains, Value: strings.ToLower(m[1])})
	}

	if len(rules) == 0 {
		return nil, 0
	}
	confidence := 0.8 + 0.05*float64(len(rules)-1)
	if confidence > 0.95 {
		confidence = 0.95
	}
	return rules, confidence
}

// staticRules is the last-resort tier: a fixed, universally valid rule so
// downstream consumers never special-case an empty inference.
func staticRules() []domain.SegmentRule {
	return []domain.SegmentRule{
		{Field: domain.FieldTotalSpend, Operator: domain.OpGreaterThan, Value: float64(0)},
	}
}

// variantsHeuristic derives message variants from the base copy with fixed
// tone transforms. Deterministic by construction.
func variantsHeuristic(base string, n int) ([]string, float64) {
	base = strings.TrimSpace(base)
	if base == "" {
		return nil, 0
	}

	trimmed := strings.TrimRight(base, ".!")
	candidates := []string{
		base,
		"Last chance: " + lowerFirst(base),
		trimmed + " — don't miss out!",
		"Just for you, {{firstName}}: " + lowerFirst(base),
		shorten(base, 80),
	}

	seen := make(map[string]bool)
	var variants []string
	for _, c := range candidates {
		if c == "" || seen[c] {
			continue
		}
		seen[c] = true
		variants = append(variants, c)
		if len(variants) == n {
			break
		}
	}
	return variants, 0.7
}

func staticVariants(n int) []string {
	defaults := []string{
		"We have something new for you — take a look.",
		"Don't miss what's new this week.",
		"A quick update we think you'll like.",
	}
	if n < len(defaults) && n > 0 {
		return defaults[:n]
	}
	return defaults
}

// insightsHeuristic turns campaign stats into plain-language observations.
func insightsHeuristic(stats domain.CampaignStats) ([]string, float64) {
	if stats.TotalRecipients == 0 {
		return nil, 0
	}

	var insights []string
	rate := stats.DeliveryRate()
	insights = append(insights, fmt.Sprintf("Delivery rate is %.0f%% (%d of %d recipients).",
		rate*100, stats.Delivered, stats.TotalRecipients))

	switch {
	case rate >= 0.9:
		insights = append(insights, "Deliverability is healthy; list quality looks good.")
	case rate >= 0.6:
		insights = append(insights, "Deliverability is moderate; consider pruning inactive addresses.")
	default:
		insights = append(insights, "Deliverability is low; review the segment for stale contacts.")
	}

	if stats.Bounced > 0 && stats.TotalRecipients > 0 {
		bounceRate := float64(stats.Bounced) / float64(stats.TotalRecipients)
		if bounceRate > 0.05 {
			insights = append(insights, fmt.Sprintf("Bounce rate of %.0f%% is above the 5%% threshold; clean the list before the next send.", bounceRate*100))
		}
	}
	if stats.Failed > stats.Delivered {
		insights = append(insights, "Failures outnumber deliveries; check the delivery provider before retrying.")
	}
	return insights, 0.75
}

func staticInsights() []string {
	return []string{
		"Not enough campaign data yet to draw conclusions.",
		"Send to a small segment first to establish a baseline.",
	}
}

func lowerFirst(s string) string {
	if s == "" {
		return s
	}
	return strings.ToLower(s[:1]) + s[1:]
}

func shorten(s string, max int) string {
	if len(s) <= max {
		return s
	}
	cut := strings.LastIndex(s[:max], " ")
	if cut <= 0 {
		cut = max
	}
	return s[:cut] + "…"
}
