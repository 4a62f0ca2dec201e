package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/adrg/xdg"
	"github.com/opscart/cloud-cost-observer/pkg/models"
)

// AppName names the XDG config directory
const AppName = "cloud-cost-observer"

// Backends for inventory and utilization
const (
	BackendAWS        = "aws"
	BackendKubernetes = "kubernetes"
	BackendMock       = "mock"
)

// Sources for organizational dimensions
const (
	OrgSourceTags     = "tags"
	OrgSourcePostgres = "postgres"
	OrgSourceMock     = "mock"
)

// AWS credential resolution modes
var authModes = []string{"default", "env", "profile", "sso", "web-identity"}

// Config holds application configuration
type Config struct {
	// AWS
	Region         string
	Profile        string
	AuthMode       string
	AllowedRegions []string

	// Sources
	Backend       string
	OrgTagSource  string
	PrometheusURL string
	Kubeconfig    string
	DatabaseURL   string
	TagKeys       map[models.Dimension]string

	// Analysis
	LookbackDays int
	Policy       Policy

	// Serving and output
	ListenAddr   string
	OutputFormat string
	LogLevel     string
	ConfigPath   string
	Verbose      bool
}

// NewConfig creates a new configuration with defaults, overridden by the environment
func NewConfig() *Config {
	return &Config{
		Region:         ResolveRegion(""),
		Profile:        getEnv("AWS_PROFILE", ""),
		AuthMode:       strings.ToLower(getEnv("AWS_AUTH_MODE", "default")),
		AllowedRegions: getEnvList("ALLOWED_REGIONS"),
		Backend:        strings.ToLower(getEnv("COST_BACKEND", BackendAWS)),
		OrgTagSource:   strings.ToLower(getEnv("ORG_TAG_SOURCE", OrgSourceTags)),
		PrometheusURL:  getEnv("PROMETHEUS_URL", ""),
		Kubeconfig:     getEnv("KUBECONFIG", ""),
		DatabaseURL:    getEnv("DATABASE_URL", "host=localhost port=5432 user=costuser password=devpassword dbname=costobserver sslmode=disable"),
		TagKeys:        DefaultTagKeys(),
		LookbackDays:   getEnvInt("LOOKBACK_DAYS", 7),
		Policy:         DefaultPolicy(),
		ListenAddr:     getEnv("LISTEN_ADDR", ":8080"),
		OutputFormat:   "text",
		LogLevel:       strings.ToLower(getEnv("LOG_LEVEL", "info")),
		ConfigPath:     getEnv("CONFIG_PATH", DefaultConfigPath()),
		Verbose:        getEnvBool("VERBOSE", false),
	}
}

// DefaultTagKeys maps organizational dimensions to the cost allocation tags that carry them
func DefaultTagKeys() map[models.Dimension]string {
	return map[models.Dimension]string{
		models.DimensionTeam:       "Team",
		models.DimensionProject:    "Project",
		models.DimensionResearcher: "Researcher",
		models.DimensionJobType:    "JobType",
	}
}

// DefaultConfigPath is the policy file location under the XDG config home
func DefaultConfigPath() string {
	return filepath.Join(xdg.ConfigHome, AppName, "config.yml")
}

// ResolveRegion picks preferred, then AWS_REGION, then AWS_DEFAULT_REGION, then us-east-1
func ResolveRegion(preferred string) string {
	if preferred != "" {
		return preferred
	}
	if r := os.Getenv("AWS_REGION"); r != "" {
		return r
	}
	if r := os.Getenv("AWS_DEFAULT_REGION"); r != "" {
		return r
	}
	return "us-east-1"
}

// Regions returns the regions an "all" instance query fans out to
func (c *Config) Regions() []string {
	if len(c.AllowedRegions) > 0 {
		return c.AllowedRegions
	}
	return []string{c.Region}
}

// UseWeeklyPreset configures a 7-day lookback
func (c *Config) UseWeeklyPreset() {
	c.LookbackDays = 7
}

// UseMonthlyPreset configures a 30-day lookback with a tighter anomaly threshold,
// since a longer average is less noisy
func (c *Config) UseMonthlyPreset() {
	c.LookbackDays = 30
	c.Policy.AnomalyThreshold = 1.2
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		return value == "true" || value == "1"
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	}
	return defaultValue
}

func getEnvList(key string) []string {
	value := os.Getenv(key)
	if value == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(value, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// Validate checks if configuration is valid
func (c *Config) Validate() error {
	switch c.Backend {
	case BackendAWS, BackendKubernetes, BackendMock:
	default:
		return fmt.Errorf("unknown backend %q (expected aws, kubernetes or mock)", c.Backend)
	}
	switch c.OrgTagSource {
	case OrgSourceTags, OrgSourcePostgres, OrgSourceMock:
	default:
		return fmt.Errorf("unknown org tag source %q (expected tags, postgres or mock)", c.OrgTagSource)
	}
	if c.OrgTagSource == OrgSourcePostgres && c.DatabaseURL == "" {
		return fmt.Errorf("DATABASE_URL must be set when org tag source is postgres")
	}
	if !contains(authModes, c.AuthMode) {
		return fmt.Errorf("unknown AWS auth mode %q", c.AuthMode)
	}
	if c.LookbackDays < 1 {
		return fmt.Errorf("lookback must be at least 1 day")
	}
	if c.LookbackDays > 90 {
		return fmt.Errorf("lookback cannot exceed 90 days")
	}
	return c.Policy.Validate()
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
