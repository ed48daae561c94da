package analytichttp

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/odyssey-analytics/internal/analytics"
	"github.com/odyssey-erp/odyssey-analytics/internal/analytics/pipeline"
	"github.com/odyssey-erp/odyssey-analytics/internal/analytics/store"
	"github.com/odyssey-erp/odyssey-analytics/internal/platform/httpx"
)

var fixedNow = time.Date(2025, 3, 31, 12, 0, 0, 0, time.UTC)

type brokenRepo struct {
	analytics.Repository
}

func (brokenRepo) Aggregate(context.Context, pipeline.Query) ([]pipeline.Row, error) {
	return nil, errors.New("pg: connection refused")
}

func seededStore() *store.Memory {
	m := store.NewMemory()
	m.AddSales(analytics.SaleTransaction{
		ID: "s1", TenantID: "t1", BranchID: "b1", CustomerID: "c1",
		Date: time.Date(2025, 3, 5, 10, 0, 0, 0, time.UTC), Status: analytics.StatusActive,
		TotalAmount: decimal.NewFromInt(1000), DueAmount: decimal.NewFromInt(250),
		Items: []analytics.SaleItem{{
			ProductID: "p1", Quantity: decimal.NewFromInt(10), UnitPrice: decimal.NewFromInt(100),
			CostAtSale: decimal.NewFromInt(60), LineTotal: decimal.NewFromInt(1000),
		}},
	})
	m.AddProducts(analytics.Product{ID: "p1", TenantID: "t1", Name: "Widget"})
	return m
}

func newRouter(t *testing.T, repo analytics.Repository, opts ...Option) http.Handler {
	t.Helper()
	svc := analytics.NewService(repo, nil, analytics.WithClock(func() time.Time { return fixedNow }))
	opts = append([]Option{WithNow(func() time.Time { return fixedNow })}, opts...)
	r := chi.NewRouter()
	NewHandler(nil, svc, opts...).MountRoutes(r)
	return r
}

func get(t *testing.T, h http.Handler, target, tenant string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, target, nil)
	if tenant != "" {
		req.Header.Set(TenantHeader, tenant)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decodeProblem(t *testing.T, rec *httptest.ResponseRecorder) httpx.ProblemDetail {
	t.Helper()
	require.Equal(t, httpx.ProblemContentType, rec.Header().Get("Content-Type"))
	var problem httpx.ProblemDetail
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &problem))
	return problem
}

func TestStatsEndpoint(t *testing.T) {
	rec := get(t, newRouter(t, seededStore()), "/analytics/stats?startDate=2025-03-01&endDate=2025-03-31", "t1")
	require.Equal(t, http.StatusOK, rec.Code)

	var stats analytics.ExecutiveStats
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &stats))
	require.Equal(t, 1000.0, stats.Revenue.Value)
	require.Equal(t, 400.0, stats.Profit.Value)
	require.Equal(t, 250.0, stats.Outstanding.Receivables)
}

func TestMissingTenantIsBadRequest(t *testing.T) {
	rec := get(t, newRouter(t, seededStore()), "/analytics/timeline", "")
	require.Equal(t, http.StatusBadRequest, rec.Code)
	problem := decodeProblem(t, rec)
	require.Contains(t, problem.Detail, "tenant")
}

func TestInvalidParamsAreBadRequest(t *testing.T) {
	router := newRouter(t, seededStore())
	for _, target := range []string{
		"/analytics/timeline?startDate=2025-03-10&endDate=2025-03-01",
		"/analytics/timeline?interval=hourly",
		"/analytics/products/top?limit=abc",
		"/analytics/basket?topK=-1",
	} {
		rec := get(t, router, target, "t1")
		require.Equal(t, http.StatusBadRequest, rec.Code, target)
		decodeProblem(t, rec)
	}
}

func TestUpstreamFailureIsBadGateway(t *testing.T) {
	rec := get(t, newRouter(t, brokenRepo{Repository: seededStore()}), "/analytics/stats", "t1")
	require.Equal(t, http.StatusBadGateway, rec.Code)
	problem := decodeProblem(t, rec)
	require.Contains(t, problem.Detail, "stats")
	require.NotContains(t, problem.Detail, "connection refused")
}

func TestEmptyReportsAreOK(t *testing.T) {
	rec := get(t, newRouter(t, store.NewMemory()), "/analytics/customers/credit-exposure", "t9")
	require.Equal(t, http.StatusOK, rec.Code)
	require.JSONEq(t, `[]`, rec.Body.String())
}

func TestTopProductsEndpoint(t *testing.T) {
	rec := get(t, newRouter(t, seededStore()), "/analytics/products/top?limit=5&startDate=2025-03-01", "t1")
	require.Equal(t, http.StatusOK, rec.Code)
	var top []analytics.TopProduct
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &top))
	require.Len(t, top, 1)
	require.Equal(t, "Widget", top[0].Name)
}

func TestExportCSV(t *testing.T) {
	rec := get(t, newRouter(t, seededStore()), "/analytics/export.csv?startDate=2025-03-01&endDate=2025-03-31&interval=month", "t1")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "text/csv; charset=utf-8", rec.Header().Get("Content-Type"))
	require.Contains(t, rec.Header().Get("Content-Disposition"), "timeline_20250301_20250331.csv")

	records, err := csv.NewReader(strings.NewReader(rec.Body.String())).ReadAll()
	require.NoError(t, err)
	require.Len(t, records, 3)
	require.Equal(t, "date", records[0][0])
	require.Equal(t, []string{"2025-03", "1000.00"}, records[1][:2])
	require.Equal(t, "total", records[2][0])
}

func TestExportIsRateLimitedPerTenant(t *testing.T) {
	router := newRouter(t, seededStore(), WithExportLimit(1))
	require.Equal(t, http.StatusOK, get(t, router, "/analytics/export.csv", "t1").Code)

	rec := get(t, router, "/analytics/export.csv", "t1")
	require.Equal(t, http.StatusTooManyRequests, rec.Code)
	decodeProblem(t, rec)

	require.Equal(t, http.StatusOK, get(t, router, "/analytics/export.csv", "t2").Code)
}

func TestAgingCSVFormat(t *testing.T) {
	rec := get(t, newRouter(t, seededStore()), "/analytics/aging/debtors?format=csv", "t1")
	require.Equal(t, http.StatusOK, rec.Code)
	records, err := csv.NewReader(strings.NewReader(rec.Body.String())).ReadAll()
	require.NoError(t, err)
	require.Len(t, records, 5)
	require.Equal(t, []string{"0-30 Days", "250.00", "1"}, records[1])
}

func TestInvalidateEndpoint(t *testing.T) {
	router := newRouter(t, seededStore())

	req := httptest.NewRequest(http.MethodPost, "/analytics/cache/invalidate", nil)
	req.Header.Set(TenantHeader, "t1")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusAccepted, rec.Code)
	require.JSONEq(t, `{"tenantId":"t1","status":"invalidated"}`, rec.Body.String())

	req = httptest.NewRequest(http.MethodPost, "/analytics/cache/invalidate", nil)
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusBadRequest, rec.Code)
}
