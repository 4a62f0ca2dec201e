package pricing

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/pricing"
	pricingtypes "github.com/aws/aws-sdk-go-v2/service/pricing/types"
	"github.com/opscart/cloud-cost-observer/pkg/metrics"
	"github.com/shopspring/decimal"
	"golang.org/x/time/rate"
)

// PricingRegion is the only region serving the AWS Pricing API we need
const PricingRegion = "us-east-1"

// regionLocations maps region codes to the location names the Pricing API filters on
var regionLocations = map[string]string{
	"us-east-1":      "US East (N. Virginia)",
	"us-east-2":      "US East (Ohio)",
	"us-west-1":      "US West (N. California)",
	"us-west-2":      "US West (Oregon)",
	"ca-central-1":   "Canada (Central)",
	"eu-west-1":      "EU (Ireland)",
	"eu-west-2":      "EU (London)",
	"eu-central-1":   "EU (Frankfurt)",
	"ap-southeast-1": "Asia Pacific (Singapore)",
	"ap-southeast-2": "Asia Pacific (Sydney)",
	"ap-northeast-1": "Asia Pacific (Tokyo)",
}

// Location returns the Pricing API location for region
func Location(region string) (string, bool) {
	loc, ok := regionLocations[region]
	return loc, ok
}

// PricingAPI is the slice of the Pricing client we use
type PricingAPI interface {
	GetProducts(ctx context.Context, params *pricing.GetProductsInput, optFns ...func(*pricing.Options)) (*pricing.GetProductsOutput, error)
}

// AWSProvider looks up Linux shared-tenancy on-demand prices through the
// AWS Pricing API and caches answers for 24 hours
type AWSProvider struct {
	client  PricingAPI
	cache   *PriceCache
	limiter *rate.Limiter
	metrics *metrics.Collector
	logger  *slog.Logger
}

func NewAWSProvider(client PricingAPI, m *metrics.Collector, logger *slog.Logger) *AWSProvider {
	if logger == nil {
		logger = slog.Default()
	}
	return &AWSProvider{
		client:  client,
		cache:   NewPriceCache(24 * time.Hour),
		limiter: rate.NewLimiter(rate.Limit(5), 1),
		metrics: m,
		logger:  logger,
	}
}

func (a *AWSProvider) Name() string {
	return "aws"
}

func (a *AWSProvider) HourlyPrice(ctx context.Context, region, instanceType string) (*float64, error) {
	key := cacheKey(region, instanceType)
	if price, ok := a.cache.Get(key); ok {
		return price, nil
	}

	location, ok := Location(region)
	if !ok {
		a.logger.Debug("no pricing location for region", "region", region)
		return nil, nil
	}

	if err := a.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	start := time.Now()
	out, err := a.client.GetProducts(ctx, &pricing.GetProductsInput{
		ServiceCode: aws.String("AmazonEC2"),
		Filters: []pricingtypes.Filter{
			termMatch("instanceType", instanceType),
			termMatch("location", location),
			termMatch("operatingSystem", "Linux"),
			termMatch("tenancy", "Shared"),
			termMatch("preInstalledSw", "NA"),
			termMatch("capacitystatus", "Used"),
		},
		MaxResults: aws.Int32(1),
	})
	a.metrics.ObserveUpstream("pricing", "GetProducts", start, err)
	if err != nil {
		return nil, fmt.Errorf("failed to get price for %s in %s: %w", instanceType, region, err)
	}

	var price *float64
	for _, item := range out.PriceList {
		p, err := onDemandUSD(item)
		if err != nil {
			a.logger.Warn("unparseable price list entry", "instanceType", instanceType, "error", err)
			continue
		}
		if p != nil {
			price = p
			break
		}
	}

	a.cache.Set(key, price)
	return price, nil
}

func termMatch(field, value string) pricingtypes.Filter {
	return pricingtypes.Filter{
		Type:  pricingtypes.FilterTypeTermMatch,
		Field: aws.String(field),
		Value: aws.String(value),
	}
}

type priceListItem struct {
	Terms struct {
		OnDemand map[string]struct {
			PriceDimensions map[string]struct {
				Unit         string            `json:"unit"`
				PricePerUnit map[string]string `json:"pricePerUnit"`
			} `json:"priceDimensions"`
		} `json:"OnDemand"`
	} `json:"terms"`
}

// onDemandUSD extracts the first positive hourly USD price from a price list document
func onDemandUSD(doc string) (*float64, error) {
	var item priceListItem
	if err := json.Unmarshal([]byte(doc), &item); err != nil {
		return nil, fmt.Errorf("failed to decode price list: %w", err)
	}

	for _, term := range item.Terms.OnDemand {
		for _, dim := range term.PriceDimensions {
			raw, ok := dim.PricePerUnit["USD"]
			if !ok {
				continue
			}
			d, err := decimal.NewFromString(raw)
			if err != nil {
				return nil, fmt.Errorf("invalid USD price %q: %w", raw, err)
			}
			if d.IsPositive() {
				v := d.InexactFloat64()
				return &v, nil
			}
		}
	}
	return nil, nil
}
