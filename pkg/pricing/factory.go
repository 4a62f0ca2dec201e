package pricing

import (
	"log/slog"

	"github.com/opscart/cloud-cost-observer/pkg/metrics"
)

// NewProvider builds the lookup chain for a backend. AWS prices come from the
// Pricing API when a client is given; the static table always backs it up.
func NewProvider(client PricingAPI, static map[string]float64, m *metrics.Collector, logger *slog.Logger) Provider {
	var chain []Provider
	if client != nil {
		chain = append(chain, NewAWSProvider(client, m, logger))
	}
	chain = append(chain, NewStaticProvider(static))
	return NewChainProvider(chain...)
}
