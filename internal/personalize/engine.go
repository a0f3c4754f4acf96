// Package personalize renders campaign messages for individual recipients.
// It offers two interchangeable strategies: merge-tag template substitution
// and smart contextual generation derived from the customer snapshot.
package personalize

import (
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/pulsecrm/engage/internal/domain"
)

// DefaultSubject is used when a template carries no {{subject:...}} token.
const DefaultSubject = "Hi {{firstName}}!"

// Strategy turns a campaign message and a customer snapshot into a rendered
// subject and body. Strategies must be pure: identical input yields
// identical output.
type Strategy func(message string, snap domain.CustomerSnapshot) (subject, body string)

var (
	// The subject may itself contain merge tags, so the inner match accepts
	// whole {{...}} tokens but never a bare brace. A greedy ".*" here would
	// run past the closing braces and swallow body text.
	subjectRe  = regexp.MustCompile(`\{\{subject:((?:[^{}]|\{\{[^{}]*\}\})*)\}\}`)
	tokenRe    = regexp.MustCompile(`\{\{\s*(firstName|lastName|fullName|email|phone|totalSpend|visits|lastOrderDate|tags)\s*\}\}`)
	greetingRe = regexp.MustCompile(`(?i)^(hi|hello|hey)\b[^,.!]*[,.!]?\s*`)
	offerRe    = regexp.MustCompile(`(?i)\b(offer|discount|deal|sale|promo|coupon|% ?off)\b`)
)

// Render substitutes merge tags in a message template. Every known token is
// replaced with the snapshot value; unmatched tokens are left verbatim so a
// typo'd tag is visible in the output rather than silently dropped. A
// {{subject:...}} token is cut out of the body and used as the email
// subject, defaulting to DefaultSubject when absent.
func Render(message string, snap domain.CustomerSnapshot) (subject, body string) {
	subject = DefaultSubject
	if m := subjectRe.FindStringSubmatch(message); m != nil {
		subject = m[1]
		message = strings.TrimLeft(subjectRe.ReplaceAllString(message, ""), " \n")
	}
	return substitute(subject, snap), substitute(message, snap)
}

func substitute(s string, snap domain.CustomerSnapshot) string {
	return tokenRe.ReplaceAllStringFunc(s, func(tok string) string {
		name := tokenRe.FindStringSubmatch(tok)[1]
		switch name {
		case "firstName":
			return snap.FirstName
		case "lastName":
			return snap.LastName
		case "fullName":
			return snap.FullName()
		case "email":
			return snap.Email
		case "phone":
			return snap.Phone
		case "totalSpend":
			return strconv.FormatFloat(snap.TotalSpend, 'f', -1, 64)
		case "visits":
			return strconv.Itoa(snap.Visits)
		case "lastOrderDate":
			if snap.LastOrderAt == nil {
				return ""
			}
			return snap.LastOrderAt.Format("January 2, 2006")
		case "tags":
			return strings.Join(snap.Tags, ", ")
		}
		return tok
	})
}

// Tier is the spend-based customer tier used by smart generation.
type Tier string

const (
	TierVIP     Tier = "VIP"
	TierPremium Tier = "premium"
	TierLoyal   Tier = "loyal"
	TierValued  Tier = "valued"
)

// TierFor buckets a customer by lifetime spend.
func TierFor(totalSpend float64) Tier {
	switch {
	case totalSpend >= 1000:
		return TierVIP
	case totalSpend >= 500:
		return TierPremium
	case totalSpend >= 100:
		return TierLoyal
	default:
		return TierValued
	}
}

// Recency is the last-order recency bucket used by smart generation.
type Recency string

const (
	RecencyRecent     Recency = "recent"
	RecencyReturning  Recency = "returning"
	RecencyOccasional Recency = "occasional"
	RecencyNew        Recency = "new"
)

// RecencyFor buckets a customer by days since their last order. Customers
// who never ordered are "new".
func RecencyFor(daysSinceLastOrder int) Recency {
	switch {
	case daysSinceLastOrder < 0:
		return RecencyNew
	case daysSinceLastOrder <= 7:
		return RecencyRecent
	case daysSinceLastOrder <= 30:
		return RecencyReturning
	case daysSinceLastOrder <= 90:
		return RecencyOccasional
	default:
		return RecencyNew
	}
}

// discountFor returns the tier-scaled discount percentage, 0 for the base tier.
func discountFor(tier Tier) int {
	switch tier {
	case TierVIP:
		return 15
	case TierPremium:
		return 12
	case TierLoyal:
		return 10
	default:
		return 0
	}
}

// SmartGenerate derives a tier and recency bucket from the snapshot,
// replaces any leading greeting in the base message with a tier-appropriate
// one, and appends a tier-scaled discount offer unless the base message
// already mentions one. The function is pure; "now" is injected so output is
// reproducible.
func SmartGenerate(base string, snap domain.CustomerSnapshot, now time.Time) string {
	tier := TierFor(snap.TotalSpend)
	recency := RecencyFor(snap.DaysSinceLastOrder(now))
	greeting := buildGreeting(tier, recency, snap.FirstName)

	body := greetingRe.ReplaceAllString(base, "")
	body = greeting + " " + strings.TrimSpace(body)

	if discount := discountFor(tier); discount > 0 && !offerRe.MatchString(base) {
		body += " " + offerLine(tier, discount)
	}
	return body
}

// SmartStrategy adapts SmartGenerate to the Strategy signature, pinning the
// reference time at construction so one dispatch batch renders consistently.
func SmartStrategy(now time.Time) Strategy {
	return func(message string, snap domain.CustomerSnapshot) (string, string) {
		return substitute(DefaultSubject, snap), SmartGenerate(message, snap, now)
	}
}

// TemplateStrategy is the merge-tag substitution strategy.
func TemplateStrategy(message string, snap domain.CustomerSnapshot) (string, string) {
	return Render(message, snap)
}

func buildGreeting(tier Tier, recency Recency, firstName string) string {
	name := firstName
	if name == "" {
		name = "there"
	}

	switch tier {
	case TierVIP:
		if recency == RecencyRecent {
			return "Dear " + name + ", always wonderful to see one of our VIP customers back so soon!"
		}
		return "Dear " + name + ", as one of our VIP customers we wanted you to hear this first."
	case TierPremium:
		if recency == RecencyNew || recency == RecencyOccasional {
			return "Hi " + name + ", it's been a while and we've missed you!"
		}
		return "Hi " + name + ", thanks for being a premium customer!"
	case TierLoyal:
		return "Hi " + name + ", thanks for sticking with us!"
	default:
		if recency == RecencyRecent {
			return "Hi " + name + ", great to see you again!"
		}
		return "Hi " + name + "!"
	}
}

func offerLine(tier Tier, discount int) string {
	if tier == TierVIP {
		return "As a VIP, enjoy an exclusive " + strconv.Itoa(discount) + "% off your next order."
	}
	return "Here's " + strconv.Itoa(discount) + "% off your next order, just for you."
}
