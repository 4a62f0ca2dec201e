package datasource

import (
	"context"
	"fmt"
	"sync"

	"github.com/opscart/cloud-cost-observer/pkg/models"
	"golang.org/x/sync/errgroup"
)

// TagAllocationSource resolves organizational dimensions through cost allocation
// tags. Instance counts come from the inventory when one is configured.
type TagAllocationSource struct {
	billing   BillingSource
	tagKeys   map[models.Dimension]string
	inventory InventorySource
	regions   []string
}

func NewTagAllocationSource(billing BillingSource, tagKeys map[models.Dimension]string) *TagAllocationSource {
	return &TagAllocationSource{billing: billing, tagKeys: tagKeys}
}

// WithInventory counts instances per tag value across regions
func (s *TagAllocationSource) WithInventory(inventory InventorySource, regions []string) *TagAllocationSource {
	s.inventory = inventory
	s.regions = regions
	return s
}

func (s *TagAllocationSource) Name() string {
	return "tags"
}

func (s *TagAllocationSource) Allocations(ctx context.Context, dim models.Dimension, period models.Period) (*AllocationSet, error) {
	tagKey, ok := s.tagKeys[dim]
	if !ok || tagKey == "" {
		return nil, fmt.Errorf("no cost allocation tag configured for %s", dim)
	}

	res, err := s.billing.CostAndUsage(ctx, BillingQuery{Period: period, TagKey: tagKey})
	if err != nil {
		return nil, err
	}

	set := &AllocationSet{
		Records: res.Records,
		Total:   res.Total,
		Facts:   make(map[string]BucketFacts),
	}

	if s.inventory == nil {
		return set, nil
	}

	counts, err := s.countInstances(ctx, tagKey)
	if err != nil {
		return nil, err
	}
	for key, n := range counts {
		n := n
		set.Facts[key] = BucketFacts{InstanceCount: &n}
	}
	return set, nil
}

func (s *TagAllocationSource) countInstances(ctx context.Context, tagKey string) (map[string]int, error) {
	var mu sync.Mutex
	counts := make(map[string]int)

	g, gctx := errgroup.WithContext(ctx)
	for _, region := range s.regions {
		region := region
		g.Go(func() error {
			instances, err := s.inventory.ListInstances(gctx, region)
			if err != nil {
				return err
			}
			mu.Lock()
			defer mu.Unlock()
			for _, inst := range instances {
				value := inst.Tags[tagKey]
				if value == "" {
					value = models.UnknownKey
				}
				counts[value]++
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return counts, nil
}
