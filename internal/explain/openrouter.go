package explain

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/fleetsentry/fleetsentry/internal/config"
)

// openRouterProvider calls one model on an OpenAI-compatible
// chat-completions endpoint. One provider per model keeps the fallback order
// explicit in the chain instead of buried in a loop.
type openRouterProvider struct {
	url    string
	key    string
	model  string
	client *http.Client
}

// ChainFromConfig builds the provider chain from configuration. With no API
// key in the environment the chain is empty and rule-based fallbacks answer
// everything.
func ChainFromConfig(cfg config.ExplainConfig) *Chain {
	key := cfg.Key()
	if key == "" {
		return NewChain(cfg.Timeout)
	}

	client := &http.Client{Timeout: cfg.Timeout}
	providers := make([]Provider, 0, len(cfg.Models))
	for _, model := range cfg.Models {
		providers = append(providers, &openRouterProvider{
			url:    cfg.BaseURL,
			key:    key,
			model:  model,
			client: client,
		})
	}
	return NewChain(cfg.Timeout, providers...)
}

func (p *openRouterProvider) Name() string { return p.model }

func (p *openRouterProvider) Generate(ctx context.Context, req Request) (string, error) {
	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = 300
	}

	payload := map[string]any{
		"model": p.model,
		"messages": []map[string]string{
			{"role": "system", "content": req.System},
			{"role": "user", "content": req.User},
		},
		"temperature": 0.7,
		"max_tokens":  maxTokens,
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("encode request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.url, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("build request: %w", err)
	}
	httpReq.Header.Set("Authorization", "Bearer "+p.key)
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(httpReq)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("status %d", resp.StatusCode)
	}

	var out struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("decode response: %w", err)
	}
	if len(out.Choices) == 0 {
		return "", fmt.Errorf("empty choices")
	}
	return out.Choices[0].Message.Content, nil
}
