package explain

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"
)

// minResponseLen rejects degenerate provider replies ("Ok.", an empty
// choice) so the chain moves on instead of surfacing them.
const minResponseLen = 20

// ErrAllProvidersFailed reports that every provider in the chain was tried
// without an acceptable response. Callers fall back to rule-based output and
// never surface this to the end user.
var ErrAllProvidersFailed = errors.New("all providers failed")

// Request is one text-generation request.
type Request struct {
	System    string
	User      string
	MaxTokens int
}

// Provider produces text from a prompt. Implementations are expected to be
// cheap to construct and safe for concurrent use.
type Provider interface {
	Name() string
	Generate(ctx context.Context, req Request) (string, error)
}

// Chain tries providers in order with a per-attempt timeout; the first
// acceptable response wins. An empty chain fails immediately, which is the
// normal mode when no API key is configured.
type Chain struct {
	providers []Provider
	timeout   time.Duration
}

// NewChain builds a Chain. A non-positive timeout defaults to 15s.
func NewChain(timeout time.Duration, providers ...Provider) *Chain {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &Chain{providers: providers, timeout: timeout}
}

// Generate runs the fallback policy and returns the winning response and the
// name of the provider that produced it.
func (c *Chain) Generate(ctx context.Context, req Request) (string, string, error) {
	for _, p := range c.providers {
		attemptCtx, cancel := context.WithTimeout(ctx, c.timeout)
		out, err := p.Generate(attemptCtx, req)
		cancel()

		if err != nil {
			slog.Debug("explain: provider attempt failed", "provider", p.Name(), "err", err)
			continue
		}
		out = strings.TrimSpace(out)
		if len(out) < minResponseLen {
			slog.Debug("explain: provider response too short", "provider", p.Name())
			continue
		}
		return out, p.Name(), nil
	}
	return "", "", ErrAllProvidersFailed
}
