package pricing

import (
	"context"
)

// Provider looks up on-demand hourly prices for an instance type
type Provider interface {
	// HourlyPrice returns nil when the provider has no price for the type
	HourlyPrice(ctx context.Context, region, instanceType string) (*float64, error)
	Name() string
}

// ChainProvider asks each provider in order; the first non-nil price wins.
// A provider error is remembered and returned only if nobody answers.
type ChainProvider struct {
	providers []Provider
}

func NewChainProvider(providers ...Provider) *ChainProvider {
	return &ChainProvider{providers: providers}
}

func (c *ChainProvider) Name() string {
	return "chain"
}

func (c *ChainProvider) HourlyPrice(ctx context.Context, region, instanceType string) (*float64, error) {
	var firstErr error
	for _, p := range c.providers {
		price, err := p.HourlyPrice(ctx, region, instanceType)
		if err != nil {
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		if price != nil {
			return price, nil
		}
	}
	return nil, firstErr
}
