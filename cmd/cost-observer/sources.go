package main

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	"github.com/aws/aws-sdk-go-v2/service/costexplorer"
	"github.com/aws/aws-sdk-go-v2/service/ec2"
	awspricing "github.com/aws/aws-sdk-go-v2/service/pricing"
	"github.com/opscart/cloud-cost-observer/pkg/config"
	"github.com/opscart/cloud-cost-observer/pkg/dashboard"
	"github.com/opscart/cloud-cost-observer/pkg/datasource"
	"github.com/opscart/cloud-cost-observer/pkg/metrics"
	"github.com/opscart/cloud-cost-observer/pkg/pricing"
	"github.com/opscart/cloud-cost-observer/pkg/storage"
	"k8s.io/client-go/kubernetes"
	metricsv "k8s.io/metrics/pkg/client/clientset/versioned"
)

// Cost Explorer only has a us-east-1 endpoint
const costExplorerRegion = "us-east-1"

// cloudWatchRPS paces GetMetricStatistics calls per process
const cloudWatchRPS = 10

// backend holds the sources a command runs against, plus what to close afterwards
type backend struct {
	sources dashboard.Sources
	closers []func() error
}

func (b *backend) Close() {
	for _, c := range b.closers {
		if err := c(); err != nil {
			slog.Warn("failed to close source", "error", err)
		}
	}
}

func buildBackend(ctx context.Context, cfg *config.Config, m *metrics.Collector, logger *slog.Logger) (*backend, error) {
	b := &backend{}

	switch cfg.Backend {
	case config.BackendMock:
		mock := datasource.NewMockSource()
		b.sources = dashboard.Sources{
			Billing:     mock,
			Inventory:   mock,
			Utilization: mock,
			OrgTags:     mock,
			Pricing:     pricing.NewStaticProvider(datasource.MockHourlyPrices()),
		}
		logVerbose("Using mock backend (regions %v)", datasource.MockRegions())

	case config.BackendAWS:
		awsCfg, err := loadAWSConfig(ctx, cfg)
		if err != nil {
			return nil, err
		}
		b.sources = awsSources(awsCfg, cfg, m, logger)

	case config.BackendKubernetes:
		awsCfg, err := loadAWSConfig(ctx, cfg)
		if err != nil {
			return nil, err
		}
		// billing still comes from Cost Explorer; nodes replace EC2 instances
		b.sources.Billing = datasource.NewCostExplorerSource(
			costexplorer.NewFromConfig(awsCfg, func(o *costexplorer.Options) { o.Region = costExplorerRegion }), m, logger)
		if err := kubernetesSources(ctx, &b.sources, awsCfg, cfg, m, logger); err != nil {
			return nil, err
		}

	default:
		return nil, fmt.Errorf("unknown backend %q", cfg.Backend)
	}

	if err := attachOrgSource(b, cfg, logger); err != nil {
		b.Close()
		return nil, err
	}
	return b, nil
}

func loadAWSConfig(ctx context.Context, cfg *config.Config) (aws.Config, error) {
	opts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(cfg.Region),
	}
	switch cfg.AuthMode {
	case "profile", "sso":
		if cfg.Profile == "" {
			return aws.Config{}, fmt.Errorf("AWS_PROFILE must be set for auth mode %s", cfg.AuthMode)
		}
		opts = append(opts, awsconfig.WithSharedConfigProfile(cfg.Profile))
	default:
		if cfg.Profile != "" {
			opts = append(opts, awsconfig.WithSharedConfigProfile(cfg.Profile))
		}
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return aws.Config{}, fmt.Errorf("failed to load AWS configuration: %w", err)
	}
	logVerbose("AWS region %s, auth mode %s", awsCfg.Region, cfg.AuthMode)
	return awsCfg, nil
}

func awsSources(awsCfg aws.Config, cfg *config.Config, m *metrics.Collector, logger *slog.Logger) dashboard.Sources {
	ec2Clients := newRegionalClients(func(region string) *ec2.Client {
		return ec2.NewFromConfig(awsCfg, func(o *ec2.Options) { o.Region = region })
	})
	cwClients := newRegionalClients(func(region string) *cloudwatch.Client {
		return cloudwatch.NewFromConfig(awsCfg, func(o *cloudwatch.Options) { o.Region = region })
	})

	return dashboard.Sources{
		Billing: datasource.NewCostExplorerSource(
			costexplorer.NewFromConfig(awsCfg, func(o *costexplorer.Options) { o.Region = costExplorerRegion }), m, logger),
		Inventory: datasource.NewEC2Inventory(func(region string) ec2.DescribeInstancesAPIClient {
			return ec2Clients.get(region)
		}, cfg.Regions(), m, logger),
		Utilization: datasource.NewCloudWatchUtilization(func(region string) datasource.CloudWatchAPI {
			return cwClients.get(region)
		}, cloudWatchRPS, m),
		Pricing: pricing.NewProvider(awsPricingClient(awsCfg), nil, m, logger),
	}
}

func awsPricingClient(awsCfg aws.Config) *awspricing.Client {
	return awspricing.NewFromConfig(awsCfg, func(o *awspricing.Options) { o.Region = pricing.PricingRegion })
}

func kubernetesSources(ctx context.Context, sources *dashboard.Sources, awsCfg aws.Config, cfg *config.Config, m *metrics.Collector, logger *slog.Logger) error {
	restCfg, err := datasource.KubeConfig(cfg.Kubeconfig)
	if err != nil {
		return fmt.Errorf("failed to load kubeconfig: %w", err)
	}
	clientset, err := kubernetes.NewForConfig(restCfg)
	if err != nil {
		return fmt.Errorf("failed to create clientset: %w", err)
	}
	metricsClient, err := metricsv.NewForConfig(restCfg)
	if err != nil {
		return fmt.Errorf("failed to create metrics client: %w", err)
	}

	usage := datasource.NewMetricsServerLister(metricsClient)
	sources.Inventory = datasource.NewKubernetesInventory(clientset, usage)
	sources.Utilization = datasource.NewKubernetesUtilization(clientset, usage)

	if cfg.PrometheusURL != "" {
		prom, err := datasource.NewPrometheusUtilization(cfg.PrometheusURL, "node", m, logger)
		if err != nil {
			logger.Warn("Prometheus initialization failed, using metrics-server", "error", err)
		} else if !prom.IsAvailable(ctx) {
			logger.Warn("Prometheus not reachable, using metrics-server", "url", cfg.PrometheusURL)
		} else {
			sources.Utilization = prom
			logVerbose("Using Prometheus at %s", cfg.PrometheusURL)
		}
	}

	cloud, region, err := pricing.DetectCloud(ctx, clientset)
	if err != nil {
		logger.Warn("cloud detection failed, using static prices", "error", err)
	}
	logVerbose("Cloud provider: %s (region: %s)", cloud, region)

	if cloud == pricing.CloudAWS {
		sources.Pricing = pricing.NewProvider(awsPricingClient(awsCfg), nil, m, logger)
	} else {
		sources.Pricing = pricing.NewProvider(nil, nil, m, logger)
	}
	return nil
}

func attachOrgSource(b *backend, cfg *config.Config, logger *slog.Logger) error {
	switch {
	case cfg.OrgTagSource == config.OrgSourcePostgres:
		store, err := storage.NewPostgresStore(cfg.DatabaseURL)
		if err != nil {
			return fmt.Errorf("failed to initialize allocation store: %w", err)
		}
		b.sources.OrgTags = store
		b.closers = append(b.closers, store.Close)
		logVerbose("Organizational dimensions from postgres")

	case cfg.OrgTagSource == config.OrgSourceMock || cfg.Backend == config.BackendMock:
		if b.sources.OrgTags == nil {
			b.sources.OrgTags = datasource.NewMockSource()
		}

	default:
		tags := datasource.NewTagAllocationSource(b.sources.Billing, cfg.TagKeys)
		if b.sources.Inventory != nil && cfg.Backend == config.BackendAWS {
			tags = tags.WithInventory(b.sources.Inventory, cfg.Regions())
		}
		b.sources.OrgTags = tags
		logger.Debug("organizational dimensions from cost allocation tags", "tagKeys", cfg.TagKeys)
	}
	return nil
}

// regionalClients builds one AWS client per region on first use
type regionalClients[T any] struct {
	mu      sync.Mutex
	newFn   func(region string) T
	clients map[string]T
}

func newRegionalClients[T any](newFn func(region string) T) *regionalClients[T] {
	return &regionalClients[T]{newFn: newFn, clients: make(map[string]T)}
}

func (r *regionalClients[T]) get(region string) T {
	r.mu.Lock()
	defer r.mu.Unlock()
	if c, ok := r.clients[region]; ok {
		return c
	}
	c := r.newFn(region)
	r.clients[region] = c
	return c
}
