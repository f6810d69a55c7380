package service

import (
	"context"
	"fmt"
	"time"

	"github.com/smallbiznis/fluxdrive/internal/calendar"
	"github.com/smallbiznis/fluxdrive/internal/clock"
	"github.com/smallbiznis/fluxdrive/internal/config"
	dashboarddomain "github.com/smallbiznis/fluxdrive/internal/dashboard/domain"
	obsmetrics "github.com/smallbiznis/fluxdrive/internal/observability/metrics"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"
)

const (
	tableInventory = "fact_daily_inventory"
	tableSales     = "fact_sales_events"

	statusActive = "active"
)

type Params struct {
	fx.In

	DB       *gorm.DB
	Log      *zap.Logger
	Clock    clock.Clock
	Policy   calendar.Policy
	Tuning   *config.DashboardConfigHolder
	Calendar *calendar.Repository `optional:"true"`
	Metrics  *obsmetrics.Metrics  `optional:"true"`
}

type Service struct {
	db      *gorm.DB
	log     *zap.Logger
	clock   clock.Clock
	policy  calendar.Policy
	tuning  *config.DashboardConfigHolder
	metrics *obsmetrics.Metrics

	calendar       *calendar.Repository
	inventoryProbe calendar.Probe
}

func NewService(p Params) dashboarddomain.Service {
	return newService(p)
}

func newService(p Params) *Service {
	clk := p.Clock
	if clk == nil {
		clk = clock.NewSystemClock()
	}
	cal := p.Calendar
	if cal == nil {
		cal = calendar.NewRepository(p.DB)
	}
	return &Service{
		db:      p.DB,
		log:     p.Log.Named("dashboard"),
		clock:   clk,
		policy:  p.Policy,
		tuning:  p.Tuning,
		metrics: p.Metrics,

		calendar: cal,
		inventoryProbe: calendar.TableProbe{
			DB:     p.DB,
			Table:  tableInventory,
			Column: "date_key",
		},
	}
}

// Resolve computes the scope of a request. Sales metrics read the window
// ending at today; inventory metrics read the latest snapshot at or before
// today.
func (s *Service) Resolve(ctx context.Context, asOf calendar.DateKey) (dashboarddomain.Scope, error) {
	today := asOf
	if today == calendar.NoData {
		today = s.policy.Today(s.clock.Now())
	}
	if !today.Valid() {
		return dashboarddomain.Scope{}, dashboarddomain.ErrInvalidAsOf
	}

	start, _ := s.policy.Window(today)
	inventoryKey, err := calendar.ResolveOrFallback(ctx, today, s.inventoryProbe, s.policy.MaxLookupDays)
	if err != nil {
		return dashboarddomain.Scope{}, fmt.Errorf("resolve inventory key: %w", err)
	}

	outcome := "requested"
	switch {
	case inventoryKey == calendar.NoData:
		outcome = "no_data"
	case inventoryKey != today:
		outcome = "fallback"
		s.log.Debug("inventory snapshot missing, using latest earlier key",
			zap.Int("requested_key", today.Int()),
			zap.Int("resolved_key", inventoryKey.Int()),
		)
	}
	s.metrics.RecordResolution(ctx, "inventory", outcome)

	return dashboarddomain.Scope{
		Today:        today,
		WindowStart:  start,
		InventoryKey: inventoryKey,
	}, nil
}

// Dashboard computes all eight outputs concurrently. Any failure cancels the
// remaining work and fails the whole request.
func (s *Service) Dashboard(ctx context.Context, asOf calendar.DateKey) (*dashboarddomain.Dashboard, error) {
	scope, err := s.Resolve(ctx, asOf)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	out := &dashboarddomain.Dashboard{}
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.tuningValues().Concurrency)

	run := func(name string, fn func(context.Context) error) {
		g.Go(func() error {
			err := fn(gctx)
			s.metrics.RecordDashboardMetric(gctx, name, err)
			if err != nil {
				return fmt.Errorf("dashboard: %s: %w", name, err)
			}
			return nil
		})
	}

	run("kpis", func(ctx context.Context) (err error) {
		out.KPIs, err = s.KPIs(ctx, scope)
		return err
	})
	run("daily_sales_trend", func(ctx context.Context) (err error) {
		out.DailySalesTrend, err = s.DailySalesTrend(ctx, scope.WindowStart, scope.Today)
		return err
	})
	run("inventory_by_price_range", func(ctx context.Context) (err error) {
		out.InventoryByPriceRange, err = s.InventoryByPriceRange(ctx, scope.InventoryKey)
		return err
	})
	run("sales_by_brand", func(ctx context.Context) (err error) {
		out.SalesByBrand, err = s.SalesByBrand(ctx, scope.WindowStart, scope.Today)
		return err
	})
	run("days_on_lot_by_price_range", func(ctx context.Context) (err error) {
		out.DaysOnLotByPriceRange, err = s.DaysOnLotByPriceRange(ctx, scope.InventoryKey)
		return err
	})
	run("top_selling_models", func(ctx context.Context) (err error) {
		out.TopSellingModels, err = s.TopSellingModels(ctx, scope.WindowStart, scope.Today)
		return err
	})
	run("slow_moving_inventory", func(ctx context.Context) (err error) {
		out.SlowMovingInventory, err = s.SlowMovingInventory(ctx, scope.InventoryKey)
		return err
	})
	run("recent_sales", func(ctx context.Context) (err error) {
		out.RecentSales, err = s.RecentSales(ctx, scope.Today)
		return err
	})

	if err := g.Wait(); err != nil {
		s.log.Error("dashboard computation failed", zap.Error(err), zap.Int("today_key", scope.Today.Int()))
		return nil, err
	}

	s.log.Debug("dashboard computed",
		zap.Int("today_key", scope.Today.Int()),
		zap.Int("inventory_key", scope.InventoryKey.Int()),
		zap.Duration("duration", time.Since(start)),
	)
	return out, nil
}

func (s *Service) tuningValues() config.DashboardTuning {
	return s.tuning.Get()
}

func zapMetric(name string) zap.Field {
	return zap.String("metric", name)
}

func zapWindow(start, end calendar.DateKey) []zap.Field {
	return []zap.Field{
		zap.Int("window_start", start.Int()),
		zap.Int("window_end", end.Int()),
	}
}
