package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/smallbiznis/fluxdrive/internal/calendar"
	"github.com/smallbiznis/fluxdrive/internal/config"
	dashboarddomain "github.com/smallbiznis/fluxdrive/internal/dashboard/domain"
	"github.com/smallbiznis/fluxdrive/internal/observability"
	salesfactdomain "github.com/smallbiznis/fluxdrive/internal/salesfact/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeDashboardService struct {
	scope      dashboarddomain.Scope
	resolveErr error
	asOf       calendar.DateKey

	trendStart, trendEnd calendar.DateKey
	inventoryKey         calendar.DateKey
	recentEnd            calendar.DateKey
}

func (f *fakeDashboardService) Resolve(_ context.Context, asOf calendar.DateKey) (dashboarddomain.Scope, error) {
	f.asOf = asOf
	if f.resolveErr != nil {
		return dashboarddomain.Scope{}, f.resolveErr
	}
	return f.scope, nil
}

func (f *fakeDashboardService) Dashboard(ctx context.Context, asOf calendar.DateKey) (*dashboarddomain.Dashboard, error) {
	scope, err := f.Resolve(ctx, asOf)
	if err != nil {
		return nil, err
	}
	kpis, _ := f.KPIs(ctx, scope)
	return &dashboarddomain.Dashboard{
		KPIs:                  kpis,
		DailySalesTrend:       []dashboarddomain.DailySales{},
		InventoryByPriceRange: []dashboarddomain.PriceRangeInventory{},
		SalesByBrand:          []dashboarddomain.BrandSales{},
		DaysOnLotByPriceRange: []dashboarddomain.PriceRangeDaysOnLot{},
		TopSellingModels:      []dashboarddomain.ModelSales{},
		SlowMovingInventory:   []dashboarddomain.SlowMovingVehicle{},
		RecentSales:           []dashboarddomain.RecentSale{},
	}, nil
}

func (f *fakeDashboardService) KPIs(_ context.Context, scope dashboarddomain.Scope) (dashboarddomain.KPIs, error) {
	return dashboarddomain.KPIs{TotalActiveInventory: 12, TotalSalesToday: 3, AverageDaysToSell: 14.5, AverageSalePrice: 21000}, nil
}

func (f *fakeDashboardService) DailySalesTrend(_ context.Context, start, end calendar.DateKey) ([]dashboarddomain.DailySales, error) {
	f.trendStart, f.trendEnd = start, end
	return []dashboarddomain.DailySales{}, nil
}

func (f *fakeDashboardService) InventoryByPriceRange(_ context.Context, key calendar.DateKey) ([]dashboarddomain.PriceRangeInventory, error) {
	f.inventoryKey = key
	return []dashboarddomain.PriceRangeInventory{{PriceRange: "$10K-$20K", InventoryCount: 4, Percentage: 100}}, nil
}

func (f *fakeDashboardService) SalesByBrand(_ context.Context, start, end calendar.DateKey) ([]dashboarddomain.BrandSales, error) {
	return []dashboarddomain.BrandSales{}, nil
}

func (f *fakeDashboardService) DaysOnLotByPriceRange(_ context.Context, key calendar.DateKey) ([]dashboarddomain.PriceRangeDaysOnLot, error) {
	f.inventoryKey = key
	return []dashboarddomain.PriceRangeDaysOnLot{}, nil
}

func (f *fakeDashboardService) TopSellingModels(_ context.Context, start, end calendar.DateKey) ([]dashboarddomain.ModelSales, error) {
	return []dashboarddomain.ModelSales{}, nil
}

func (f *fakeDashboardService) SlowMovingInventory(_ context.Context, key calendar.DateKey) ([]dashboarddomain.SlowMovingVehicle, error) {
	f.inventoryKey = key
	return []dashboarddomain.SlowMovingVehicle{}, nil
}

func (f *fakeDashboardService) RecentSales(_ context.Context, end calendar.DateKey) ([]dashboarddomain.RecentSale, error) {
	f.recentEnd = end
	return []dashboarddomain.RecentSale{}, nil
}

func (f *fakeDashboardService) Diagnostics(context.Context) (*dashboarddomain.Diagnostics, error) {
	return &dashboarddomain.Diagnostics{}, nil
}

type fakeSalesFactService struct {
	enqueued []calendar.DateKey
	requests map[string]*salesfactdomain.RebuildRequest
}

func (f *fakeSalesFactService) Run(context.Context, calendar.DateKey) (salesfactdomain.RunResult, error) {
	return salesfactdomain.RunResult{}, nil
}

func (f *fakeSalesFactService) Backfill(context.Context, calendar.DateKey, calendar.DateKey) ([]salesfactdomain.RunResult, error) {
	return nil, nil
}

func (f *fakeSalesFactService) EnqueueRebuild(_ context.Context, processDate calendar.DateKey) (string, error) {
	f.enqueued = append(f.enqueued, processDate)
	return fmt.Sprintf("%d", 1000+len(f.enqueued)), nil
}

func (f *fakeSalesFactService) ProcessRebuildRequests(context.Context, int) error {
	return nil
}

func (f *fakeSalesFactService) GetRebuildRequest(_ context.Context, id string) (*salesfactdomain.RebuildRequest, error) {
	req, ok := f.requests[id]
	if !ok {
		return nil, salesfactdomain.ErrRequestNotFound
	}
	return req, nil
}

func newTestServer(t *testing.T, cfg config.Config, dashboardSvc dashboarddomain.Service, salesFactSvc salesfactdomain.Service) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)

	engine := NewEngine(cfg, observability.Config{Environment: "test"}, nil)
	NewServer(ServerParams{
		Gin:          engine,
		Cfg:          cfg,
		Log:          zap.NewNop(),
		DashboardSvc: dashboardSvc,
		SalesFactSvc: salesFactSvc,
	})
	return engine
}

func doRequest(engine *gin.Engine, method, path string, body []byte) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, bytes.NewReader(body))
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp := httptest.NewRecorder()
	engine.ServeHTTP(resp, req)
	return resp
}

func testScope() dashboarddomain.Scope {
	return dashboarddomain.Scope{Today: 20250301, WindowStart: 20250131, InventoryKey: 20250228}
}

func TestMetricHandlersReadResolvedScope(t *testing.T) {
	dash := &fakeDashboardService{scope: testScope()}
	engine := newTestServer(t, config.Config{}, dash, nil)

	resp := doRequest(engine, http.MethodGet, "/api/dashboard/daily-sales-trend?as_of=2025-03-01", nil)
	require.Equal(t, http.StatusOK, resp.Code)
	assert.JSONEq(t, `[]`, resp.Body.String())
	assert.Equal(t, calendar.DateKey(20250301), dash.asOf)
	assert.Equal(t, calendar.DateKey(20250131), dash.trendStart)
	assert.Equal(t, calendar.DateKey(20250301), dash.trendEnd)

	resp = doRequest(engine, http.MethodGet, "/api/dashboard/inventory-by-price-range", nil)
	require.Equal(t, http.StatusOK, resp.Code)
	assert.Equal(t, calendar.NoData, dash.asOf)
	assert.Equal(t, calendar.DateKey(20250228), dash.inventoryKey)

	resp = doRequest(engine, http.MethodGet, "/api/dashboard/recent-sales", nil)
	require.Equal(t, http.StatusOK, resp.Code)
	assert.Equal(t, calendar.DateKey(20250301), dash.recentEnd)
}

func TestEmptyMetricsEncodeAsLists(t *testing.T) {
	engine := newTestServer(t, config.Config{}, &fakeDashboardService{scope: testScope()}, nil)

	for _, path := range []string{
		"/api/dashboard/sales-by-brand",
		"/api/dashboard/days-on-lot-by-price-range",
		"/api/dashboard/top-selling-models",
		"/api/dashboard/slow-moving-inventory",
	} {
		resp := doRequest(engine, http.MethodGet, path, nil)
		require.Equal(t, http.StatusOK, resp.Code, path)
		assert.JSONEq(t, `[]`, resp.Body.String(), path)
	}
}

func TestDashboardPayload(t *testing.T) {
	engine := newTestServer(t, config.Config{}, &fakeDashboardService{scope: testScope()}, nil)

	resp := doRequest(engine, http.MethodGet, "/api/dashboard", nil)
	require.Equal(t, http.StatusOK, resp.Code)

	var body map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &body))
	for _, key := range []string{"kpis", "daily_sales_trend", "inventory_by_price_range", "sales_by_brand",
		"days_on_lot_by_price_range", "top_selling_models", "slow_moving_inventory", "recent_sales"} {
		assert.Contains(t, body, key)
	}
	assert.JSONEq(t, `{"total_active_inventory":12,"total_sales_today":3,"average_days_to_sell":14.5,"average_sale_price":21000}`, string(body["kpis"]))
}

func TestInvalidAsOfReturnsValidationError(t *testing.T) {
	dash := &fakeDashboardService{scope: testScope()}
	engine := newTestServer(t, config.Config{}, dash, nil)

	for _, path := range []string{"/api/dashboard?as_of=03-01-2025", "/api/dashboard/kpis?as_of=2025-02-30"} {
		resp := doRequest(engine, http.MethodGet, path, nil)
		require.Equal(t, http.StatusBadRequest, resp.Code, path)

		var body errorResponse
		require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &body))
		assert.Equal(t, "validation_error", body.Error.Type)
		require.Len(t, body.Error.Errors, 1)
		assert.Equal(t, "as_of", body.Error.Errors[0].Field)
	}
}

func TestResolveErrorsMapToStatus(t *testing.T) {
	cases := []struct {
		name   string
		err    error
		status int
	}{
		{name: "invalid as_of", err: fmt.Errorf("resolve: %w", dashboarddomain.ErrInvalidAsOf), status: http.StatusBadRequest},
		{name: "internal", err: fmt.Errorf("query failed"), status: http.StatusInternalServerError},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			engine := newTestServer(t, config.Config{}, &fakeDashboardService{resolveErr: tc.err}, nil)
			resp := doRequest(engine, http.MethodGet, "/api/dashboard/kpis", nil)
			assert.Equal(t, tc.status, resp.Code)
		})
	}
}

func TestEnqueueSalesFactRebuild(t *testing.T) {
	facts := &fakeSalesFactService{}
	engine := newTestServer(t, config.Config{}, &fakeDashboardService{}, facts)

	resp := doRequest(engine, http.MethodPost, "/api/admin/sales-facts/rebuild", []byte(`{"process_date":"2025-03-01"}`))
	require.Equal(t, http.StatusAccepted, resp.Code)
	assert.JSONEq(t, `{"id":"1001","process_date":"2025-03-01","status":"pending"}`, resp.Body.String())
	assert.Equal(t, []calendar.DateKey{20250301}, facts.enqueued)

	for _, body := range []string{`{}`, `{"process_date":"2025-13-01"}`, `not json`} {
		resp = doRequest(engine, http.MethodPost, "/api/admin/sales-facts/rebuild", []byte(body))
		assert.Equal(t, http.StatusBadRequest, resp.Code, body)
	}
	assert.Len(t, facts.enqueued, 1)
}

func TestGetSalesFactRebuild(t *testing.T) {
	facts := &fakeSalesFactService{requests: map[string]*salesfactdomain.RebuildRequest{
		"42": {ID: "42", ProcessDate: "2025-03-01", Status: salesfactdomain.RequestStatusCompleted},
	}}
	engine := newTestServer(t, config.Config{}, &fakeDashboardService{}, facts)

	resp := doRequest(engine, http.MethodGet, "/api/admin/sales-facts/rebuild/42", nil)
	require.Equal(t, http.StatusOK, resp.Code)
	assert.Contains(t, resp.Body.String(), `"process_date":"2025-03-01"`)

	resp = doRequest(engine, http.MethodGet, "/api/admin/sales-facts/rebuild/43", nil)
	assert.Equal(t, http.StatusNotFound, resp.Code)
}

func TestSalesFactRoutesWithoutService(t *testing.T) {
	engine := newTestServer(t, config.Config{}, &fakeDashboardService{}, nil)

	resp := doRequest(engine, http.MethodPost, "/api/admin/sales-facts/rebuild", []byte(`{"process_date":"2025-03-01"}`))
	assert.Equal(t, http.StatusServiceUnavailable, resp.Code)
}

func TestUnknownRouteReturnsNotFound(t *testing.T) {
	engine := newTestServer(t, config.Config{}, &fakeDashboardService{}, nil)

	resp := doRequest(engine, http.MethodGet, "/api/nope", nil)
	require.Equal(t, http.StatusNotFound, resp.Code)
	assert.JSONEq(t, `{"error":{"type":"not_found","message":"not found"}}`, resp.Body.String())
}

func TestCORSAllowsConfiguredOrigin(t *testing.T) {
	engine := newTestServer(t, config.Config{CORSOrigins: []string{"http://localhost:3000"}}, &fakeDashboardService{scope: testScope()}, nil)

	req := httptest.NewRequest(http.MethodGet, "/api/dashboard/kpis", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	resp := httptest.NewRecorder()
	engine.ServeHTTP(resp, req)

	require.Equal(t, http.StatusOK, resp.Code)
	assert.Equal(t, "http://localhost:3000", resp.Header().Get("Access-Control-Allow-Origin"))
}

func TestHealth(t *testing.T) {
	engine := newTestServer(t, config.Config{}, &fakeDashboardService{}, nil)

	resp := doRequest(engine, http.MethodGet, "/health", nil)
	require.Equal(t, http.StatusOK, resp.Code)
	assert.JSONEq(t, `{"status":"ok"}`, resp.Body.String())
}

func TestClassifyErrorForLog(t *testing.T) {
	errType, code := classifyErrorForLog(salesfactdomain.ErrInvalidProcessDate)
	assert.Equal(t, "validation_error", errType)
	assert.Equal(t, "invalid_process_date", code)

	errType, code = classifyErrorForLog(salesfactdomain.ErrRequestNotFound)
	assert.Equal(t, "not_found", errType)
	assert.Equal(t, "not_found", code)
}

func TestMapErrorStatuses(t *testing.T) {
	cases := []struct {
		name    string
		err     error
		status  int
		errType string
	}{
		{name: "validation", err: fmt.Errorf("run: %w", salesfactdomain.ErrInvalidBackfill), status: http.StatusBadRequest, errType: "validation_error"},
		{name: "missing rebuild request", err: fmt.Errorf("get: %w", salesfactdomain.ErrRequestNotFound), status: http.StatusNotFound, errType: "not_found"},
		{name: "unknown route", err: ErrNotFound, status: http.StatusNotFound, errType: "not_found"},
		{name: "rebuild disabled", err: ErrServiceUnavailable, status: http.StatusServiceUnavailable, errType: "service_unavailable"},
		// Errors without a mapping never leak their text as a client status.
		{name: "unmapped conflict text", err: fmt.Errorf("conflict"), status: http.StatusInternalServerError, errType: "internal_error"},
		{name: "unmapped unauthorized text", err: fmt.Errorf("unauthorized"), status: http.StatusInternalServerError, errType: "internal_error"},
		{name: "nil", err: nil, status: http.StatusInternalServerError, errType: "internal_error"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			status, payload := mapError(tc.err)
			assert.Equal(t, tc.status, status)
			assert.Equal(t, tc.errType, payload.Type)
		})
	}
}
