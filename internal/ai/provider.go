// Package ai wraps external text generation in a resilience layer: retry
// with linear backoff, a per-operation circuit breaker, and tiered fallback
// generation so callers always receive a structurally valid result.
package ai

import "context"

// Generator is the external text-generation provider contract. It may fail,
// time out, or return malformed text; callers treat a parse failure the same
// as a call failure.
type Generator interface {
	Generate(ctx context.Context, systemPrompt, userPrompt string) (string, error)
}

// GeneratorFunc adapts a function to the Generator interface.
type GeneratorFunc func(ctx context.Context, systemPrompt, userPrompt string) (string, error)

// Generate implements Generator.
func (f GeneratorFunc) Generate(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	return f(ctx, systemPrompt, userPrompt)
}

// Source identifies which tier produced a result.
type Source string

const (
	SourceLive      Source = "live"
	SourceHeuristic Source = "heuristic"
	SourceStatic    Source = "static"
)

// Operation identifies a logical AI operation. Each operation owns its own
// circuit breaker; concurrent callers of the same operation share it.
type Operation string

const (
	OpRuleInference Operation = "segment_rule_inference"
	OpVariants      Operation = "message_variant_generation"
	OpInsights      Operation = "analytics_insight_generation"
)
