package service

import (
	"context"
	"strconv"

	"github.com/smallbiznis/fluxdrive/internal/calendar"
	dashboarddomain "github.com/smallbiznis/fluxdrive/internal/dashboard/domain"
	"go.uber.org/zap"
)

const (
	fromInventoryByRange = "fact_daily_inventory AS i JOIN dim_price_range AS p ON p.price_range_key = i.price_range_key"
	fromSalesByVehicle   = "fact_sales_events AS f JOIN dim_vehicle AS v ON v.vehicle_key = f.vehicle_key"

	brandExpr = "COALESCE(NULLIF(v.brand, ''), '" + dashboarddomain.UnknownBrand + "')"
)

func (s *Service) KPIs(ctx context.Context, scope dashboarddomain.Scope) (dashboarddomain.KPIs, error) {
	t := s.tuningValues()
	var kpis dashboarddomain.KPIs

	if scope.InventoryKey != calendar.NoData {
		active, err := s.scalar(ctx, GroupSpec{
			Metric:   "kpis.total_active_inventory",
			From:     tableInventory,
			Measures: []column{{Expr: "COUNT(DISTINCT vin)", Alias: "active_inventory"}},
			Where: []predicate{
				{SQL: "date_key = ?", Args: []any{scope.InventoryKey.Int()}},
				{SQL: "status = ?", Args: []any{statusActive}},
			},
		})
		if err != nil {
			return kpis, err
		}
		kpis.TotalActiveInventory = int64(active)
	}

	window := &keyWindow{Column: "sale_date_key", Start: scope.WindowStart, End: scope.Today}

	// The headline count covers the same trailing window as the averages.
	salesInWindow, err := s.scalar(ctx, GroupSpec{
		Metric:   "kpis.total_sales_today",
		From:     tableSales,
		Measures: []column{{Expr: "COUNT(vin)", Alias: "sales_in_window"}},
		Window:   window,
	})
	if err != nil {
		return kpis, err
	}
	kpis.TotalSalesToday = int64(salesInWindow)

	kpis.AverageDaysToSell, err = s.scalar(ctx, GroupSpec{
		Metric:   "kpis.average_days_to_sell",
		From:     tableSales,
		Measures: []column{{Expr: "AVG(days_to_sell)", Alias: "average_days_to_sell"}},
		Where:    []predicate{{SQL: "days_to_sell > 0 AND days_to_sell <= ?", Args: []any{t.MaxDaysToSell}}},
		Window:   window,
	})
	if err != nil {
		return kpis, err
	}

	kpis.AverageSalePrice, err = s.scalar(ctx, GroupSpec{
		Metric:   "kpis.average_sale_price",
		From:     tableSales,
		Measures: []column{{Expr: "AVG(sale_price)", Alias: "average_sale_price"}},
		Where:    []predicate{{SQL: "sale_price > 0 AND sale_price <= ?", Args: []any{t.MaxSalePrice}}},
		Window:   window,
	})
	if err != nil {
		return kpis, err
	}
	return kpis, nil
}

// DailySalesTrend returns one entry per calendar day in [start, end], zero
// filled where no sales were recorded.
func (s *Service) DailySalesTrend(ctx context.Context, start, end calendar.DateKey) ([]dashboarddomain.DailySales, error) {
	days := calendar.Days(start, end)
	out := make([]dashboarddomain.DailySales, 0, len(days))
	if len(days) == 0 {
		return out, nil
	}

	rows, err := s.groupedAggregate(ctx, GroupSpec{
		Metric: "daily_sales_trend",
		From:   tableSales,
		Groups: []column{{Expr: "sale_date_key", Alias: "sale_date_key"}},
		Measures: []column{
			{Expr: "COUNT(vin)", Alias: "sales_count"},
			{Expr: "COALESCE(SUM(sale_price), 0)", Alias: "total_sales_amount"},
		},
		Window: &keyWindow{Column: "sale_date_key", Start: start, End: end},
	})
	if err != nil {
		return nil, err
	}

	byKey := make(map[string]aggregateRow, len(rows))
	for _, r := range rows {
		byKey[r.group(0)] = r
	}
	for _, k := range days {
		r := byKey[strconv.Itoa(k.Int())]
		out = append(out, dashboarddomain.DailySales{
			Date:             k.String(),
			SalesCount:       int64(r.measure(0)),
			TotalSalesAmount: r.measure(1),
		})
	}
	return out, nil
}

func (s *Service) InventoryByPriceRange(ctx context.Context, key calendar.DateKey) ([]dashboarddomain.PriceRangeInventory, error) {
	out := make([]dashboarddomain.PriceRangeInventory, 0)
	if key == calendar.NoData {
		return out, nil
	}

	rows, err := s.groupedAggregate(ctx, GroupSpec{
		Metric: "inventory_by_price_range",
		From:   fromInventoryByRange,
		Groups: []column{
			{Expr: "p.range_name", Alias: "price_range"},
			{Expr: "p.sort_order", Alias: "sort_order"},
		},
		Measures: []column{{Expr: "COUNT(i.vin)", Alias: "inventory_count"}},
		Where:    []predicate{{SQL: "i.date_key = ?", Args: []any{key.Int()}}},
		OrderBy:  "sort_order ASC, price_range ASC",
		ShareOf:  "inventory_count",
	})
	if err != nil {
		return nil, err
	}
	for _, r := range rows {
		out = append(out, dashboarddomain.PriceRangeInventory{
			PriceRange:     r.group(0),
			InventoryCount: int64(r.measure(0)),
			Percentage:     r.Share,
		})
	}
	return out, nil
}

// SalesByBrand ranks brands over the window, widening to all time when the
// window holds no sales.
func (s *Service) SalesByBrand(ctx context.Context, start, end calendar.DateKey) ([]dashboarddomain.BrandSales, error) {
	rows, err := s.widenedAggregate(ctx, GroupSpec{
		Metric: "sales_by_brand",
		From:   fromSalesByVehicle,
		Groups: []column{{Expr: brandExpr, Alias: "brand"}},
		Measures: []column{
			{Expr: "COUNT(f.vin)", Alias: "sales_count"},
			{Expr: "AVG(f.sale_price)", Alias: "avg_sale_price"},
		},
		Window:  &keyWindow{Column: "f.sale_date_key", Start: start, End: end},
		OrderBy: "sales_count DESC, brand ASC",
		Limit:   s.tuningValues().SalesByBrandLimit,
		ShareOf: "sales_count",
	})
	if err != nil {
		return nil, err
	}

	out := make([]dashboarddomain.BrandSales, 0, len(rows))
	for _, r := range rows {
		out = append(out, dashboarddomain.BrandSales{
			Brand:        r.group(0),
			SalesCount:   int64(r.measure(0)),
			Percentage:   r.Share,
			AvgSalePrice: r.measure(1),
		})
	}
	return out, nil
}

func (s *Service) DaysOnLotByPriceRange(ctx context.Context, key calendar.DateKey) ([]dashboarddomain.PriceRangeDaysOnLot, error) {
	out := make([]dashboarddomain.PriceRangeDaysOnLot, 0)
	if key == calendar.NoData {
		return out, nil
	}

	rows, err := s.groupedAggregate(ctx, GroupSpec{
		Metric: "days_on_lot_by_price_range",
		From:   fromInventoryByRange,
		Groups: []column{
			{Expr: "p.range_name", Alias: "price_range"},
			{Expr: "p.sort_order", Alias: "sort_order"},
		},
		Measures: []column{{Expr: "AVG(i.days_on_lot)", Alias: "avg_days_on_lot"}},
		Where: []predicate{
			{SQL: "i.date_key = ?", Args: []any{key.Int()}},
			{SQL: "i.days_on_lot > 0"},
		},
		OrderBy: "sort_order ASC, price_range ASC",
	})
	if err != nil {
		return nil, err
	}
	for _, r := range rows {
		out = append(out, dashboarddomain.PriceRangeDaysOnLot{
			PriceRange:   r.group(0),
			AvgDaysOnLot: r.measure(0),
		})
	}
	return out, nil
}

func (s *Service) TopSellingModels(ctx context.Context, start, end calendar.DateKey) ([]dashboarddomain.ModelSales, error) {
	rows, err := s.widenedAggregate(ctx, GroupSpec{
		Metric: "top_selling_models",
		From:   fromSalesByVehicle,
		Groups: []column{
			{Expr: "v.manufacturer", Alias: "manufacturer"},
			{Expr: "v.model", Alias: "model"},
			{Expr: brandExpr, Alias: "brand"},
		},
		Measures: []column{
			{Expr: "COUNT(f.vin)", Alias: "units_sold"},
			{Expr: "AVG(f.sale_price)", Alias: "avg_sale_price"},
			{Expr: "AVG(f.days_to_sell)", Alias: "avg_days_to_sell"},
		},
		Window:  &keyWindow{Column: "f.sale_date_key", Start: start, End: end},
		OrderBy: "units_sold DESC, manufacturer ASC, model ASC, brand ASC",
		Limit:   s.tuningValues().TopModelsLimit,
	})
	if err != nil {
		return nil, err
	}

	out := make([]dashboarddomain.ModelSales, 0, len(rows))
	for _, r := range rows {
		out = append(out, dashboarddomain.ModelSales{
			Manufacturer:  r.group(0),
			Model:         r.group(1),
			Brand:         r.group(2),
			UnitsSold:     int64(r.measure(0)),
			AvgSalePrice:  r.measure(1),
			AvgDaysToSell: r.measure(2),
		})
	}
	return out, nil
}

type slowMovingRow struct {
	VIN          string   `gorm:"column:vin"`
	Manufacturer string   `gorm:"column:manufacturer"`
	Model        string   `gorm:"column:model"`
	Brand        *string  `gorm:"column:brand"`
	DaysOnLot    int      `gorm:"column:days_on_lot"`
	Price        *float64 `gorm:"column:price"`
}

func (s *Service) SlowMovingInventory(ctx context.Context, key calendar.DateKey) ([]dashboarddomain.SlowMovingVehicle, error) {
	out := make([]dashboarddomain.SlowMovingVehicle, 0)
	if key == calendar.NoData {
		return out, nil
	}
	t := s.tuningValues()

	var rows []slowMovingRow
	err := s.db.WithContext(ctx).
		Table("fact_daily_inventory AS i").
		Select("i.vin AS vin, v.manufacturer AS manufacturer, v.model AS model, v.brand AS brand, i.days_on_lot AS days_on_lot, i.price AS price").
		Joins("JOIN dim_vehicle AS v ON v.vehicle_key = i.vehicle_key").
		Where("i.date_key = ? AND i.days_on_lot > ?", key.Int(), t.SlowMovingMinDays).
		Order("i.days_on_lot DESC, i.vin ASC").
		Limit(t.SlowMovingLimit).
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}

	for _, r := range rows {
		out = append(out, dashboarddomain.SlowMovingVehicle{
			VIN:          r.VIN,
			Manufacturer: r.Manufacturer,
			Model:        r.Model,
			Brand:        brandOrUnknown(r.Brand),
			DaysOnLot:    r.DaysOnLot,
			Price:        valueOrZero(r.Price),
		})
	}
	return out, nil
}

type recentSaleRow struct {
	SaleDateKey  int     `gorm:"column:sale_date_key"`
	VIN          string  `gorm:"column:vin"`
	Manufacturer string  `gorm:"column:manufacturer"`
	Model        string  `gorm:"column:model"`
	Brand        *string `gorm:"column:brand"`
	SalePrice    float64 `gorm:"column:sale_price"`
	DaysToSell   int     `gorm:"column:days_to_sell"`
}

// RecentSales lists the latest sales on or before end, widening to all time
// when there are none.
func (s *Service) RecentSales(ctx context.Context, end calendar.DateKey) ([]dashboarddomain.RecentSale, error) {
	limit := s.tuningValues().RecentSalesLimit

	rows, err := s.recentSales(ctx, &end, limit)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		s.log.Debug("no sales on or before end key, widening to all time",
			zapMetric("recent_sales"),
			zap.Int("end_key", end.Int()),
		)
		if rows, err = s.recentSales(ctx, nil, limit); err != nil {
			return nil, err
		}
	}

	out := make([]dashboarddomain.RecentSale, 0, len(rows))
	for _, r := range rows {
		out = append(out, dashboarddomain.RecentSale{
			SaleDate:     calendar.DateKey(r.SaleDateKey).String(),
			VIN:          r.VIN,
			Manufacturer: r.Manufacturer,
			Model:        r.Model,
			Brand:        brandOrUnknown(r.Brand),
			SalePrice:    r.SalePrice,
			DaysToSell:   r.DaysToSell,
		})
	}
	return out, nil
}

func (s *Service) recentSales(ctx context.Context, end *calendar.DateKey, limit int) ([]recentSaleRow, error) {
	q := s.db.WithContext(ctx).
		Table("fact_sales_events AS f").
		Select("f.sale_date_key AS sale_date_key, f.vin AS vin, v.manufacturer AS manufacturer, v.model AS model, v.brand AS brand, f.sale_price AS sale_price, f.days_to_sell AS days_to_sell").
		Joins("JOIN dim_vehicle AS v ON v.vehicle_key = f.vehicle_key")
	if end != nil {
		q = q.Where("f.sale_date_key <= ?", end.Int())
	}

	var rows []recentSaleRow
	err := q.Order("f.sale_date_key DESC, f.vin ASC").Limit(limit).Scan(&rows).Error
	return rows, err
}

// scalar runs an ungrouped spec and returns its first measure.
func (s *Service) scalar(ctx context.Context, spec GroupSpec) (float64, error) {
	rows, err := s.groupedAggregate(ctx, spec)
	if err != nil || len(rows) == 0 {
		return 0, err
	}
	return rows[0].measure(0), nil
}

func brandOrUnknown(brand *string) string {
	if brand == nil || *brand == "" {
		return dashboarddomain.UnknownBrand
	}
	return *brand
}

func valueOrZero(v *float64) float64 {
	if v == nil {
		return 0
	}
	return *v
}
