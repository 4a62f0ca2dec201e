package pricing

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/pricing"
	corev1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/client-go/kubernetes/fake"
)

// Helper to load recorded price list documents
func loadRecording(t *testing.T, filename string) string {
	t.Helper()
	data, err := os.ReadFile("../../testdata/pricing/" + filename)
	if err != nil {
		t.Fatalf("Failed to load recording: %v", err)
	}
	return string(data)
}

type fakePricingAPI struct {
	priceList []string
	err       error
	calls     int
	last      *pricing.GetProductsInput
}

func (f *fakePricingAPI) GetProducts(_ context.Context, in *pricing.GetProductsInput, _ ...func(*pricing.Options)) (*pricing.GetProductsOutput, error) {
	f.calls++
	f.last = in
	if f.err != nil {
		return nil, f.err
	}
	return &pricing.GetProductsOutput{PriceList: f.priceList}, nil
}

func TestStaticProvider(t *testing.T) {
	provider := NewStaticProvider(nil)

	if provider.Name() != "static" {
		t.Errorf("Expected provider name 'static', got %s", provider.Name())
	}

	price, err := provider.HourlyPrice(context.Background(), "us-east-1", "T3.Medium")
	if err != nil {
		t.Fatalf("HourlyPrice failed: %v", err)
	}
	if price == nil || *price != 0.0416 {
		t.Errorf("Expected price 0.0416, got %v", price)
	}

	// on-prem nodes carry no region
	price, _ = provider.HourlyPrice(context.Background(), "", "t3.medium")
	if price == nil || *price != 0.0416 {
		t.Errorf("Expected price 0.0416 without region, got %v", price)
	}

	// built-in rates are us-east-1 only
	price, err = provider.HourlyPrice(context.Background(), "eu-west-1", "t3.medium")
	if err != nil {
		t.Fatalf("HourlyPrice failed: %v", err)
	}
	if price != nil {
		t.Errorf("Expected nil price outside us-east-1, got %v", *price)
	}

	custom := NewStaticProvider(map[string]float64{"t3.medium": 0.05})
	price, _ = custom.HourlyPrice(context.Background(), "eu-west-1", "t3.medium")
	if price == nil || *price != 0.05 {
		t.Errorf("Expected custom table to answer any region, got %v", price)
	}

	price, _ = provider.HourlyPrice(context.Background(), "us-east-1", "x9.huge")
	if price != nil {
		t.Errorf("Expected nil price for unknown type, got %v", *price)
	}
}

// Contract test - uses a recorded Pricing API document
func TestAWSProviderContract(t *testing.T) {
	fake := &fakePricingAPI{priceList: []string{loadRecording(t, "aws_t3_medium_us-east-1.json")}}
	provider := NewAWSProvider(fake, nil, nil)

	price, err := provider.HourlyPrice(context.Background(), "us-east-1", "t3.medium")
	if err != nil {
		t.Fatalf("HourlyPrice failed: %v", err)
	}
	if price == nil || *price != 0.0416 {
		t.Fatalf("Expected price 0.0416, got %v", price)
	}

	if aws.ToString(fake.last.ServiceCode) != "AmazonEC2" {
		t.Errorf("Expected service code AmazonEC2, got %s", aws.ToString(fake.last.ServiceCode))
	}
	filters := map[string]string{}
	for _, f := range fake.last.Filters {
		filters[aws.ToString(f.Field)] = aws.ToString(f.Value)
	}
	if filters["location"] != "US East (N. Virginia)" {
		t.Errorf("Expected location filter, got %q", filters["location"])
	}
	if filters["operatingSystem"] != "Linux" || filters["tenancy"] != "Shared" {
		t.Errorf("Expected Linux/Shared filters, got %v", filters)
	}

	// Second lookup is served from the cache
	if _, err := provider.HourlyPrice(context.Background(), "us-east-1", "t3.medium"); err != nil {
		t.Fatalf("HourlyPrice failed: %v", err)
	}
	if fake.calls != 1 {
		t.Errorf("Expected 1 API call, got %d", fake.calls)
	}
}

func TestAWSProviderUnknownRegion(t *testing.T) {
	fake := &fakePricingAPI{}
	provider := NewAWSProvider(fake, nil, nil)

	price, err := provider.HourlyPrice(context.Background(), "mars-north-1", "t3.medium")
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if price != nil {
		t.Errorf("Expected nil price, got %v", *price)
	}
	if fake.calls != 0 {
		t.Errorf("Expected no API calls, got %d", fake.calls)
	}
}

func TestAWSProviderBadDocument(t *testing.T) {
	fake := &fakePricingAPI{priceList: []string{"{not json", `{"terms":{"OnDemand":{}}}`}}
	provider := NewAWSProvider(fake, nil, nil)

	price, err := provider.HourlyPrice(context.Background(), "us-east-1", "t3.medium")
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if price != nil {
		t.Errorf("Expected nil price, got %v", *price)
	}
}

func TestChainProvider(t *testing.T) {
	apiErr := errors.New("AccessDeniedException")
	chain := NewChainProvider(
		NewAWSProvider(&fakePricingAPI{err: apiErr}, nil, nil),
		NewStaticProvider(map[string]float64{"r5.large": 0.126}),
	)

	price, err := chain.HourlyPrice(context.Background(), "us-east-1", "r5.large")
	if err != nil {
		t.Fatalf("Expected fallback to static, got error %v", err)
	}
	if price == nil || *price != 0.126 {
		t.Errorf("Expected price 0.126, got %v", price)
	}

	_, err = chain.HourlyPrice(context.Background(), "us-east-1", "z1d.large")
	if !errors.Is(err, apiErr) {
		t.Errorf("Expected API error when no provider answers, got %v", err)
	}
}

func TestNewProviderWithoutClient(t *testing.T) {
	provider := NewProvider(nil, map[string]float64{"t3.micro": 0.0104}, nil, nil)

	price, err := provider.HourlyPrice(context.Background(), "us-east-1", "t3.micro")
	if err != nil || price == nil || *price != 0.0104 {
		t.Errorf("Expected static price 0.0104, got %v (%v)", price, err)
	}
}

func TestPriceCache(t *testing.T) {
	cache := NewPriceCache(time.Hour)
	now := time.Date(2024, 1, 22, 0, 0, 0, 0, time.UTC)
	cache.now = func() time.Time { return now }

	// Test empty cache
	if _, ok := cache.Get("test-key"); ok {
		t.Error("Expected miss for non-existent key")
	}

	// Test set and get
	price := 0.17
	cache.Set("test-key", &price)
	got, ok := cache.Get("test-key")
	if !ok || got == nil || *got != 0.17 {
		t.Fatalf("Expected cached 0.17, got %v", got)
	}

	// Unknown prices are cached as nil
	cache.Set("unknown", nil)
	if got, ok := cache.Get("unknown"); !ok || got != nil {
		t.Errorf("Expected cached nil, got %v (%v)", got, ok)
	}

	// Test expiration
	now = now.Add(2 * time.Hour)
	if _, ok := cache.Get("test-key"); ok {
		t.Error("Expected miss for expired cache entry")
	}
	if cache.Len() != 1 {
		t.Errorf("Expected expired entry to be evicted, got %d entries", cache.Len())
	}

	cache.Clear()
	if cache.Len() != 0 {
		t.Errorf("Expected empty cache, got %d entries", cache.Len())
	}
}

func TestPriceCacheKeepsEntrySetAfterExpiry(t *testing.T) {
	cache := NewPriceCache(time.Hour)
	now := time.Date(2024, 1, 22, 0, 0, 0, 0, time.UTC)
	cache.now = func() time.Time { return now }

	old := 0.10
	cache.Set("us-east-1/m5.large", &old)
	stale := cache.data["us-east-1/m5.large"]

	// the entry expires and a fresh price lands before the reader evicts
	now = now.Add(2 * time.Hour)
	fresh := 0.096
	cache.Set("us-east-1/m5.large", &fresh)
	cache.evict("us-east-1/m5.large", stale)

	got, ok := cache.Get("us-east-1/m5.large")
	if !ok || got == nil || *got != 0.096 {
		t.Errorf("Expected fresh price 0.096 to survive eviction, got %v (%v)", got, ok)
	}

	cache.evict("us-east-1/m5.large", cache.data["us-east-1/m5.large"])
	if cache.Len() != 1 {
		t.Errorf("Expected live entry to survive eviction, got %d entries", cache.Len())
	}
}

func TestPriceCacheClear(t *testing.T) {
	cache := NewPriceCache(time.Hour)
	price := 0.17
	cache.Set("test-key", &price)
	cache.Clear()
	if cache.Len() != 0 {
		t.Errorf("Expected empty cache, got %d entries", cache.Len())
	}
}

func TestDetectCloud(t *testing.T) {
	tests := []struct {
		name       string
		node       *corev1.Node
		wantCloud  string
		wantRegion string
	}{
		{
			name: "aws provider id",
			node: &corev1.Node{
				ObjectMeta: metav1.ObjectMeta{Name: "n", Labels: map[string]string{"topology.kubernetes.io/region": "us-west-2"}},
				Spec:       corev1.NodeSpec{ProviderID: "aws:///us-west-2a/i-abc"},
			},
			wantCloud:  CloudAWS,
			wantRegion: "us-west-2",
		},
		{
			name: "eks label without region",
			node: &corev1.Node{
				ObjectMeta: metav1.ObjectMeta{Name: "n", Labels: map[string]string{"eks.amazonaws.com/nodegroup": "ng-1"}},
			},
			wantCloud:  CloudAWS,
			wantRegion: "us-east-1",
		},
		{
			name: "gke legacy region label",
			node: &corev1.Node{
				ObjectMeta: metav1.ObjectMeta{Name: "n", Labels: map[string]string{"failure-domain.beta.kubernetes.io/region": "europe-west1"}},
				Spec:       corev1.NodeSpec{ProviderID: "gce://project/europe-west1-b/n"},
			},
			wantCloud:  CloudGCP,
			wantRegion: "europe-west1",
		},
		{
			name:       "on-prem",
			node:       &corev1.Node{ObjectMeta: metav1.ObjectMeta{Name: "n"}},
			wantCloud:  CloudUnknown,
			wantRegion: "unknown",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cloud, region, err := DetectCloud(context.Background(), fake.NewSimpleClientset(tt.node))
			if err != nil {
				t.Fatalf("Unexpected error: %v", err)
			}
			if cloud != tt.wantCloud || region != tt.wantRegion {
				t.Errorf("Expected %s/%s, got %s/%s", tt.wantCloud, tt.wantRegion, cloud, region)
			}
		})
	}

	cloud, _, err := DetectCloud(context.Background(), fake.NewSimpleClientset())
	if err != nil || cloud != CloudUnknown {
		t.Errorf("Expected default for empty cluster, got %s (%v)", cloud, err)
	}
}
