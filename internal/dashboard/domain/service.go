package domain

import (
	"context"
	"errors"

	"github.com/smallbiznis/fluxdrive/internal/calendar"
)

// Service computes dashboard metrics from the persisted fact tables. All
// operations are reads.
type Service interface {
	// Resolve turns an as-of day into the keys every metric reads. NoData
	// means "now minus the configured lag".
	Resolve(ctx context.Context, asOf calendar.DateKey) (Scope, error)
	Dashboard(ctx context.Context, asOf calendar.DateKey) (*Dashboard, error)

	KPIs(ctx context.Context, scope Scope) (KPIs, error)
	DailySalesTrend(ctx context.Context, start, end calendar.DateKey) ([]DailySales, error)
	InventoryByPriceRange(ctx context.Context, key calendar.DateKey) ([]PriceRangeInventory, error)
	SalesByBrand(ctx context.Context, start, end calendar.DateKey) ([]BrandSales, error)
	DaysOnLotByPriceRange(ctx context.Context, key calendar.DateKey) ([]PriceRangeDaysOnLot, error)
	TopSellingModels(ctx context.Context, start, end calendar.DateKey) ([]ModelSales, error)
	SlowMovingInventory(ctx context.Context, key calendar.DateKey) ([]SlowMovingVehicle, error)
	RecentSales(ctx context.Context, end calendar.DateKey) ([]RecentSale, error)

	Diagnostics(ctx context.Context) (*Diagnostics, error)
}

var ErrInvalidAsOf = errors.New("invalid_as_of")
