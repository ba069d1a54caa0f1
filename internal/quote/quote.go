// Package quote implements C1, the Quote Source: stateless fetchers that
// turn an instrument code into a current price. Each Provider call is
// network I/O only — no cache, no retries beyond the cascade a Chain
// performs across providers.
package quote

import (
	"context"
	"fmt"
)

// Quote is the result of one provider call.
type Quote struct {
	Code   string
	Price  float64
	Source string // human tag: "sina", "tencent", "fxquote", "stale", "unavailable"
}

// Provider fetches the current price for a single instrument code.
type Provider interface {
	// Name identifies the provider in logs and in Quote.Source.
	Name() string
	Fetch(ctx context.Context, code string) (Quote, error)
}

// Chain cascades across an ordered list of providers: the first success
// wins, a malformed payload counts as failure same as a transport error.
type Chain struct {
	providers []Provider
}

// NewChain builds a provider chain tried in the given order.
func NewChain(providers ...Provider) *Chain {
	return &Chain{providers: providers}
}

// Fetch tries each provider in order, returning the first success.
func (c *Chain) Fetch(ctx context.Context, code string) (Quote, error) {
	var lastErr error
	for _, p := range c.providers {
		q, err := p.Fetch(ctx, code)
		if err == nil {
			return q, nil
		}
		lastErr = fmt.Errorf("%s: %w", p.Name(), err)
	}
	if lastErr == nil {
		lastErr = fmt.Errorf("no quote providers configured for %s", code)
	}
	return Quote{}, lastErr
}
