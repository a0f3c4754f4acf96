package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/pulsecrm/engage/internal/pkg/httpretry"
)

const defaultOpenAIEndpoint = "https://api.openai.com/v1/chat/completions"

// OpenAIGenerator calls an OpenAI-compatible chat completions endpoint.
// Transport-level retries are handled by httpretry; the resilience service
// adds its own retry-and-breaker layer on top for full outages.
type OpenAIGenerator struct {
	client   httpretry.HTTPDoer
	endpoint string
	apiKey   string
	model    string
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature,omitempty"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error,omitempty"`
}

// NewOpenAIGenerator creates the HTTP-backed generator. An empty endpoint
// uses the public OpenAI API; an empty model defaults to gpt-4o-mini.
func NewOpenAIGenerator(apiKey, model, endpoint string, client httpretry.HTTPDoer) (*OpenAIGenerator, error) {
	if apiKey == "" {
		return nil, errors.New("ai: openai api key required")
	}
	if model == "" {
		model = "gpt-4o-mini"
	}
	if endpoint == "" {
		endpoint = defaultOpenAIEndpoint
	}
	if client == nil {
		client = httpretry.NewRetryClient(nil, 2)
	}
	return &OpenAIGenerator{client: client, endpoint: endpoint, apiKey: apiKey, model: model}, nil
}

// Generate implements Generator.
func (g *OpenAIGenerator) Generate(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	payload := chatRequest{
		Model: g.model,
		Messages: []chatMessage{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: userPrompt},
		},
		Temperature: 0.7,
		MaxTokens:   2000,
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("ai: marshal chat request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.endpoint, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("ai: build chat request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+g.apiKey)

	resp, err := g.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: openai: %v", ErrGeneratorUnavailable, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", fmt.Errorf("%w: openai: read body: %v", ErrGeneratorUnavailable, err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("%w: openai: status %d: %s", ErrGeneratorUnavailable, resp.StatusCode, truncate(string(respBody), 200))
	}

	var parsed chatResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return "", fmt.Errorf("ai: parse chat response: %w", err)
	}
	if parsed.Error != nil {
		return "", fmt.Errorf("%w: openai: %s", ErrGeneratorUnavailable, parsed.Error.Message)
	}
	if len(parsed.Choices) == 0 {
		return "", errors.New("ai: empty chat response")
	}
	return parsed.Choices[0].Message.Content, nil
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max]
}
