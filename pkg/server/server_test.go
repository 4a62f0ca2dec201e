package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/aws/smithy-go"
	"github.com/opscart/cloud-cost-observer/pkg/config"
	"github.com/opscart/cloud-cost-observer/pkg/dashboard"
	"github.com/opscart/cloud-cost-observer/pkg/datasource"
	"github.com/opscart/cloud-cost-observer/pkg/metrics"
	"github.com/opscart/cloud-cost-observer/pkg/models"
	"github.com/opscart/cloud-cost-observer/pkg/pricing"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMockServer(t *testing.T, sources dashboard.Sources) *Server {
	t.Helper()
	m := metrics.New()
	svc := dashboard.NewService(sources, config.DefaultPolicy(), dashboard.Options{DefaultRegion: "us-east-1"}, m, nil)
	return New(svc, m, Info{Region: "us-east-1", Backend: "mock"}, nil)
}

func mockSources() dashboard.Sources {
	mock := datasource.NewMockSource()
	return dashboard.Sources{
		Billing:     mock,
		Inventory:   mock,
		Utilization: mock,
		OrgTags:     mock,
		Pricing:     pricing.NewStaticProvider(datasource.MockHourlyPrices()),
	}
}

func get(t *testing.T, s *Server, target string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, target, nil)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	return rec
}

func TestKpisEndpoint(t *testing.T) {
	s := newMockServer(t, mockSources())

	rec := get(t, s, "/api/cost/kpis?days=7")
	require.Equal(t, http.StatusOK, rec.Code)

	var kpis models.CostKpis
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &kpis))
	assert.Len(t, kpis.Series7d, 7)
	assert.NotNil(t, kpis.Efficiency)

	var raw map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &raw))
	for _, field := range []string{"totalCostUsd", "dailyBurnUsd", "projectedMonthlyUsd", "lastUpdated", "anomaly", "series7d"} {
		assert.Contains(t, raw, field)
	}
}

func TestKpisEndpointBadDays(t *testing.T) {
	s := newMockServer(t, mockSources())

	rec := get(t, s, "/api/cost/kpis?days=seven")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "invalid_request", body["error"])
	assert.NotEmpty(t, body["errorId"])
}

func TestAttributionEndpoint(t *testing.T) {
	s := newMockServer(t, mockSources())

	rec := get(t, s, "/api/cost/attribution?dimension=team&days=7&compare=true&limit=3")
	require.Equal(t, http.StatusOK, rec.Code)

	var out models.CostAttribution
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	assert.Equal(t, models.DimensionTeam, out.Dimension)
	assert.True(t, out.Synthetic)
	assert.Len(t, out.Buckets, 3)
	assert.NotNil(t, out.Comparison)
	assert.LessOrEqual(t, out.TimeRange.Start, out.TimeRange.End)

	rec = get(t, s, "/api/cost/attribution?compare=maybe")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestInstancesEndpoint(t *testing.T) {
	s := newMockServer(t, mockSources())

	rec := get(t, s, "/api/ec2/instances?region=all")
	require.Equal(t, http.StatusOK, rec.Code)

	var payload struct {
		Instances []map[string]any `json:"instances"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &payload))
	require.Len(t, payload.Instances, 6)

	// nullable metrics are present as explicit nulls
	for _, row := range payload.Instances {
		if row["instanceId"] == "i-1122334455667788" {
			v, ok := row["cpuUtilizationAvg24h"]
			assert.True(t, ok)
			assert.Nil(t, v)
		}
	}
}

type deniedBilling struct{}

func (deniedBilling) Name() string { return "denied" }

func (deniedBilling) CostAndUsage(context.Context, datasource.BillingQuery) (*datasource.BillingResult, error) {
	return nil, &smithy.GenericAPIError{Code: "AccessDeniedException", Message: "User is not authorized to perform: ce:GetCostAndUsage"}
}

type brokenInventory struct{}

func (brokenInventory) Name() string { return "broken" }

func (brokenInventory) ListInstances(context.Context, string) ([]models.InstanceDescriptor, error) {
	return nil, errors.New("connection reset")
}

func TestPermissionDeniedPayload(t *testing.T) {
	sources := mockSources()
	sources.Billing = deniedBilling{}
	s := newMockServer(t, sources)

	rec := get(t, s, "/api/cost/kpis")
	assert.Equal(t, http.StatusForbidden, rec.Code)

	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "AccessDeniedException", body["error"])
	assert.Equal(t, "permission_denied", body["kind"])
	assert.Equal(t, "Missing Cost Explorer permissions. See README for required IAM policy.", body["details"])
	assert.Contains(t, body["message"], "ce:GetCostAndUsage")
}

func TestInstancesFailurePayload(t *testing.T) {
	sources := mockSources()
	sources.Inventory = brokenInventory{}
	s := newMockServer(t, sources)

	rec := get(t, s, "/api/ec2/instances?region=us-east-1")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Contains(t, rec.Body.String(), "connection reset")
}

func TestTestEndpoint(t *testing.T) {
	s := newMockServer(t, mockSources())

	rec := get(t, s, "/api/test")
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Status    string            `json:"status"`
		Message   string            `json:"message"`
		AWSConfig map[string]string `json:"awsConfig"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "OK", body.Status)
	assert.Equal(t, "Test endpoint working", body.Message)
	assert.Equal(t, "us-east-1", body.AWSConfig["region"])
	assert.Equal(t, "not-set", body.AWSConfig["authMode"])
}

func TestHealthAndMetrics(t *testing.T) {
	s := newMockServer(t, mockSources())

	rec := get(t, s, "/api/health")
	assert.Equal(t, http.StatusOK, rec.Code)

	get(t, s, "/api/cost/kpis")
	rec = get(t, s, "/metrics")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, strings.Contains(rec.Body.String(), "cost_observer_daily_burn_usd"))
}
