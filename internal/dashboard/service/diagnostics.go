package service

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/smallbiznis/fluxdrive/internal/calendar"
	dashboarddomain "github.com/smallbiznis/fluxdrive/internal/dashboard/domain"
)

// Diagnostics reports which partitions exist so operators can tell a missing
// rebuild from a quiet day.
func (s *Service) Diagnostics(ctx context.Context) (*dashboarddomain.Diagnostics, error) {
	scope, err := s.Resolve(ctx, calendar.NoData)
	if err != nil {
		return nil, err
	}

	out := &dashboarddomain.Diagnostics{
		TodayKey: scope.Today.Int(),
		LagDays:  s.policy.LagDays,
		Resolved: dashboarddomain.ResolvedKeys{
			Today:        scope.Today.Int(),
			WindowStart:  scope.WindowStart.Int(),
			InventoryKey: scope.InventoryKey.Int(),
		},
	}

	if out.InventoryDateRange, err = s.keyRange(ctx, tableInventory, "date_key"); err != nil {
		return nil, err
	}
	if out.SalesDateRange, err = s.keyRange(ctx, tableSales, "sale_date_key"); err != nil {
		return nil, err
	}

	minDate, maxDate, err := s.calendar.Bounds(ctx)
	if err != nil {
		return nil, fmt.Errorf("calendar bounds: %w", err)
	}
	if minDate != calendar.NoData {
		lo, hi := minDate.Int(), maxDate.Int()
		out.CalendarRange = dashboarddomain.KeyRange{Min: &lo, Max: &hi}
	}

	counts := []struct {
		table string
		dest  *int64
	}{
		{tableInventory, &out.RecordCounts.Inventory},
		{tableSales, &out.RecordCounts.Sales},
		{"dim_vehicle", &out.RecordCounts.Vehicles},
		{"dim_price_range", &out.RecordCounts.PriceRanges},
		{"dim_date", &out.RecordCounts.Dates},
	}
	for _, c := range counts {
		if err := s.db.WithContext(ctx).Table(c.table).Count(c.dest).Error; err != nil {
			return nil, fmt.Errorf("count %s: %w", c.table, err)
		}
	}

	if out.InventorySummary.Today, err = s.activeInventoryAt(ctx, scope.Today); err != nil {
		return nil, err
	}
	if latest := out.InventoryDateRange.Max; latest != nil {
		if out.InventorySummary.MostRecent, err = s.activeInventoryAt(ctx, calendar.DateKey(*latest)); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func (s *Service) keyRange(ctx context.Context, table, col string) (dashboarddomain.KeyRange, error) {
	var minKey, maxKey sql.NullInt64
	err := s.db.WithContext(ctx).
		Table(table).
		Select("MIN(" + col + "), MAX(" + col + ")").
		Row().
		Scan(&minKey, &maxKey)
	if err != nil {
		return dashboarddomain.KeyRange{}, fmt.Errorf("key range %s: %w", table, err)
	}

	var out dashboarddomain.KeyRange
	if minKey.Valid {
		v := int(minKey.Int64)
		out.Min = &v
	}
	if maxKey.Valid {
		v := int(maxKey.Int64)
		out.Max = &v
	}
	return out, nil
}

func (s *Service) activeInventoryAt(ctx context.Context, key calendar.DateKey) (int64, error) {
	n, err := s.scalar(ctx, GroupSpec{
		Metric:   "diagnostics.active_inventory",
		From:     tableInventory,
		Measures: []column{{Expr: "COUNT(DISTINCT vin)", Alias: "active_inventory"}},
		Where: []predicate{
			{SQL: "date_key = ?", Args: []any{key.Int()}},
			{SQL: "status = ?", Args: []any{statusActive}},
		},
	})
	return int64(n), err
}
