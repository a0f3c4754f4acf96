package ai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/pulsecrm/engage/internal/domain"
)

const (
	defaultFailureThreshold = 5
	defaultCooldown         = 60 * time.Second
	defaultMaxRetries       = 3
)

// ErrGeneratorUnavailable is returned by providers when the upstream call
// itself failed; the service converts it into a fallback, never surfaces it.
var ErrGeneratorUnavailable = errors.New("ai: generator unavailable")

// RuleInference is the uniform envelope for segment rule inference.
// Callers branch on Source only for display; the Rules are always usable.
type RuleInference struct {
	Rules      []domain.SegmentRule `json:"rules"`
	Source     Source               `json:"source"`
	Confidence float64              `json:"confidence"`
}

// VariantResult carries generated message variants.
type VariantResult struct {
	Variants   []string `json:"variants"`
	Source     Source   `json:"source"`
	Confidence float64  `json:"confidence"`
}

// InsightResult carries campaign performance observations.
type InsightResult struct {
	Insights   []string `json:"insights"`
	Source     Source   `json:"source"`
	Confidence float64  `json:"confidence"`
}

// Health reports the layer's current posture for the ops endpoint.
type Health struct {
	Status    string                    `json:"status"` // healthy, degraded, offline
	Reachable bool                      `json:"reachable"`
	Breakers  map[Operation]BreakerInfo `json:"breakers"`
}

// BreakerInfo is the per-operation breaker snapshot inside Health. Tier is
// the fallback tier the next call to this operation would use.
type BreakerInfo struct {
	State    string `json:"state"`
	Failures int    `json:"failures"`
	Tier     Source `json:"tier"`
}

// Service wraps a Generator with retries, per-operation circuit breakers and
// a two-tier fallback. All operations return a usable result: live output
// when the provider cooperates, heuristic or static output when it does not.
type Service struct {
	generator  Generator
	breakers   map[Operation]*CircuitBreaker
	maxRetries int
	now        func() time.Time
}

// Option configures a Service.
type Option func(*Service)

// WithMaxRetries overrides the per-call attempt count.
func WithMaxRetries(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.maxRetries = n
		}
	}
}

// WithClock injects the clock used by the service and its breakers.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// NewService wires the resilience layer around a generator. A nil generator
// is allowed and behaves as a permanently failing provider, which exercises
// the same fallback path as an outage.
func NewService(gen Generator, opts ...Option) *Service {
	s := &Service{
		generator:  gen,
		breakers:   make(map[Operation]*CircuitBreaker),
		maxRetries: defaultMaxRetries,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	clock := s.now
	for _, op := range []Operation{OpRuleInference, OpVariants, OpInsights} {
		s.breakers[op] = NewCircuitBreaker(defaultFailureThreshold, defaultCooldown, clock)
	}
	return s
}

// InferSegmentRules turns a natural-language audience description into
// segment rules. Never returns an error for provider trouble; only a
// cancelled context aborts the call.
func (s *Service) InferSegmentRules(ctx context.Context, prompt string) (RuleInference, error) {
	prompt = strings.TrimSpace(prompt)
	if prompt == "" {
		return RuleInference{}, errors.New("ai: empty prompt")
	}

	raw, err := s.generate(ctx, OpRuleInference, ruleSystemPrompt, prompt)
	if err == nil {
		rules, perr := parseRules(raw)
		if perr == nil && len(rules) > 0 {
			s.breakers[OpRuleInference].RecordSuccess()
			return RuleInference{Rules: rules, Source: SourceLive, Confidence: 0.95}, nil
		}
		// Parse failures count against the breaker the same as transport
		// failures: the provider is responding but not usefully.
		log.Printf("[AI] rule inference returned unparseable output: %v", perr)
		s.breakers[OpRuleInference].RecordFailure()
	}
	if ctx.Err() != nil {
		return RuleInference{}, ctx.Err()
	}

	if rules, conf := inferRulesHeuristic(prompt, s.now()); len(rules) > 0 {
		return RuleInference{Rules: rules, Source: SourceHeuristic, Confidence: conf}, nil
	}
	return RuleInference{Rules: staticRules(), Source: SourceStatic, Confidence: 0.3}, nil
}

// GenerateMessageVariants produces up to n alternative renderings of the
// base message.
func (s *Service) GenerateMessageVariants(ctx context.Context, base string, n int) (VariantResult, error) {
	if n <= 0 {
		n = 3
	}
	userPrompt := fmt.Sprintf("Generate %d variants of this marketing message, one per line:\n%s", n, base)

	raw, err := s.generate(ctx, OpVariants, variantSystemPrompt, userPrompt)
	if err == nil {
		variants := parseLines(raw, n)
		if len(variants) > 0 {
			s.breakers[OpVariants].RecordSuccess()
			return VariantResult{Variants: variants, Source: SourceLive, Confidence: 0.9}, nil
		}
		log.Printf("[AI] variant generation returned no usable lines")
		s.breakers[OpVariants].RecordFailure()
	}
	if ctx.Err() != nil {
		return VariantResult{}, ctx.Err()
	}

	if variants, conf := variantsHeuristic(base, n); len(variants) > 0 {
		return VariantResult{Variants: variants, Source: SourceHeuristic, Confidence: conf}, nil
	}
	return VariantResult{Variants: staticVariants(n), Source: SourceStatic, Confidence: 0.3}, nil
}

// GenerateInsights summarizes campaign performance in plain language.
func (s *Service) GenerateInsights(ctx context.Context, c *domain.Campaign) (InsightResult, error) {
	if c == nil {
		return InsightResult{}, errors.New("ai: nil campaign")
	}
	statsJSON, _ := json.Marshal(c.Stats)
	userPrompt := fmt.Sprintf("Campaign %q stats: %s. Give short actionable insights, one per line.", c.Name, statsJSON)

	raw, err := s.generate(ctx, OpInsights, insightSystemPrompt, userPrompt)
	if err == nil {
		insights := parseLines(raw, 5)
		if len(insights) > 0 {
			s.breakers[OpInsights].RecordSuccess()
			return InsightResult{Insights: insights, Source: SourceLive, Confidence: 0.9}, nil
		}
		log.Printf("[AI] insight generation returned no usable lines")
		s.breakers[OpInsights].RecordFailure()
	}
	if ctx.Err() != nil {
		return InsightResult{}, ctx.Err()
	}

	if insights, conf := insightsHeuristic(c.Stats); len(insights) > 0 {
		return InsightResult{Insights: insights, Source: SourceHeuristic, Confidence: conf}, nil
	}
	return InsightResult{Insights: staticInsights(), Source: SourceStatic, Confidence: 0.3}, nil
}

// generate runs the provider call behind the operation's breaker with
// retries. One exhausted retry sequence records exactly one breaker failure.
func (s *Service) generate(ctx context.Context, op Operation, systemPrompt, userPrompt string) (string, error) {
	if s.generator == nil {
		return "", ErrGeneratorUnavailable
	}
	br := s.breakers[op]
	if !br.Allow() {
		log.Printf("[AI] circuit open for %s, skipping provider", op)
		return "", ErrGeneratorUnavailable
	}

	var lastErr error
	for attempt := 1; attempt <= s.maxRetries; attempt++ {
		raw, err := s.generator.Generate(ctx, systemPrompt, userPrompt)
		if err == nil {
			return raw, nil
		}
		lastErr = err
		if attempt < s.maxRetries {
			select {
			case <-ctx.Done():
				br.RecordFailure()
				return "", ctx.Err()
			case <-time.After(time.Duration(attempt) * time.Second):
			}
		}
	}
	br.RecordFailure()
	log.Printf("[AI] %s failed after %d attempts: %v", op, s.maxRetries, lastErr)
	return "", fmt.Errorf("%w: %v", ErrGeneratorUnavailable, lastErr)
}

// CheckHealth reports the layer's posture. Offline means every breaker is
// open or no generator is configured; degraded means at least one is open.
func (s *Service) CheckHealth() Health {
	h := Health{Breakers: make(map[Operation]BreakerInfo, len(s.breakers))}
	open := 0
	for op, br := range s.breakers {
		info := BreakerInfo{State: br.State(), Failures: br.FailureCount(), Tier: SourceLive}
		if s.generator == nil || br.State() == StateOpen {
			info.Tier = SourceHeuristic
		}
		h.Breakers[op] = info
		if info.State == StateOpen {
			open++
		}
	}
	switch {
	case s.generator == nil || open == len(s.breakers):
		h.Status = "offline"
	case open > 0:
		h.Status = "degraded"
		h.Reachable = true
	default:
		h.Status = "healthy"
		h.Reachable = true
	}
	return h
}

const ruleSystemPrompt = `You translate audience descriptions into JSON segment rules.
Respond with only a JSON array of objects with keys "field", "operator", "value".
Fields: total_spend, visits, last_order_at, tags.
Operators: equals, not_equals, greater_than, less_than, contains, in, not_in.`

const variantSystemPrompt = `You are a marketing copywriter. Respond with plain text variants, one per line, no numbering.`

const insightSystemPrompt = `You analyze email campaign statistics. Respond with short observations, one per line.`

// parseRules accepts either a bare JSON array or an object with a "rules"
// key, tolerating markdown fences around the payload.
func parseRules(raw string) ([]domain.SegmentRule, error) {
	raw = stripFences(raw)

	var rules []domain.SegmentRule
	if err := json.Unmarshal([]byte(raw), &rules); err == nil {
		return validRules(rules)
	}
	var wrapped struct {
		Rules []domain.SegmentRule `json:"rules"`
	}
	if err := json.Unmarshal([]byte(raw), &wrapped); err != nil {
		return nil, fmt.Errorf("ai: unparseable rules payload: %w", err)
	}
	return validRules(wrapped.Rules)
}

func validRules(rules []domain.SegmentRule) ([]domain.SegmentRule, error) {
	for _, r := range rules {
		if r.Field == "" || r.Operator == "" {
			return nil, errors.New("ai: rule missing field or operator")
		}
	}
	return rules, nil
}

func parseLines(raw string, max int) []string {
	var out []string
	for _, line := range strings.Split(raw, "\n") {
		line = strings.TrimSpace(strings.TrimLeft(strings.TrimSpace(line), "-*0123456789. "))
		if line == "" {
			continue
		}
		out = append(out, line)
		if len(out) == max {
			break
		}
	}
	return out
}

func stripFences(raw string) string {
	raw = strings.TrimSpace(raw)
	if strings.HasPrefix(raw, "```") {
		raw = strings.TrimPrefix(raw, "```json")
		raw = strings.TrimPrefix(raw, "```")
		raw = strings.TrimSuffix(strings.TrimSpace(raw), "```")
	}
	return strings.TrimSpace(raw)
}
