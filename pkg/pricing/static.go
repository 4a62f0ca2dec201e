package pricing

import (
	"context"
	"strings"
)

// defaultHourlyPrices are us-east-1 Linux on-demand rates for common types
var defaultHourlyPrices = map[string]float64{
	"t3.nano":     0.0052,
	"t3.micro":    0.0104,
	"t3.small":    0.0208,
	"t3.medium":   0.0416,
	"t3.large":    0.0832,
	"t3.xlarge":   0.1664,
	"m5.large":    0.096,
	"m5.xlarge":   0.192,
	"m5.2xlarge":  0.384,
	"c5.large":    0.085,
	"c5.xlarge":   0.17,
	"c5.2xlarge":  0.34,
	"r5.large":    0.126,
	"r5.xlarge":   0.252,
	"p3.2xlarge":  3.06,
	"g4dn.xlarge": 0.526,
}

// defaultPriceRegion is the region defaultHourlyPrices were taken from
const defaultPriceRegion = "us-east-1"

// StaticProvider answers from a fixed table. It is the fallback for on-prem
// clusters and for when the Pricing API is unreachable.
type StaticProvider struct {
	prices map[string]float64
	// region limits the table to one region; empty means any region
	region string
}

// NewStaticProvider uses prices for every region. When prices is empty it
// uses the built-in table, which only answers for us-east-1 and for
// instances with no region (on-prem nodes); other regions get a nil price.
func NewStaticProvider(prices map[string]float64) *StaticProvider {
	if len(prices) == 0 {
		return &StaticProvider{prices: defaultHourlyPrices, region: defaultPriceRegion}
	}
	return &StaticProvider{prices: prices}
}

func (s *StaticProvider) Name() string {
	return "static"
}

func (s *StaticProvider) HourlyPrice(_ context.Context, region string, instanceType string) (*float64, error) {
	if s.region != "" && region != "" && region != s.region {
		return nil, nil
	}
	price, ok := s.prices[strings.ToLower(instanceType)]
	if !ok {
		return nil, nil
	}
	return &price, nil
}
