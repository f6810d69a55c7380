package domain

import "github.com/smallbiznis/fluxdrive/internal/calendar"

const UnknownBrand = "Unknown"

// KPIs are the headline numbers of the dashboard.
type KPIs struct {
	TotalActiveInventory int64   `json:"total_active_inventory"`
	// TotalSalesToday counts every sale in the trailing window ending today.
	TotalSalesToday      int64   `json:"total_sales_today"`
	AverageDaysToSell    float64 `json:"average_days_to_sell"`
	AverageSalePrice     float64 `json:"average_sale_price"`
}

type DailySales struct {
	Date             string  `json:"date"`
	SalesCount       int64   `json:"sales_count"`
	TotalSalesAmount float64 `json:"total_sales_amount"`
}

type PriceRangeInventory struct {
	PriceRange     string  `json:"price_range"`
	InventoryCount int64   `json:"inventory_count"`
	Percentage     float64 `json:"percentage"`
}

type BrandSales struct {
	Brand        string  `json:"brand"`
	SalesCount   int64   `json:"sales_count"`
	Percentage   float64 `json:"percentage"`
	AvgSalePrice float64 `json:"avg_sale_price"`
}

type PriceRangeDaysOnLot struct {
	PriceRange   string  `json:"price_range"`
	AvgDaysOnLot float64 `json:"avg_days_on_lot"`
}

type ModelSales struct {
	Manufacturer  string  `json:"manufacturer"`
	Model         string  `json:"model"`
	Brand         string  `json:"brand"`
	UnitsSold     int64   `json:"units_sold"`
	AvgSalePrice  float64 `json:"avg_sale_price"`
	AvgDaysToSell float64 `json:"avg_days_to_sell"`
}

type SlowMovingVehicle struct {
	VIN          string  `json:"vin"`
	Manufacturer string  `json:"manufacturer"`
	Model        string  `json:"model"`
	Brand        string  `json:"brand"`
	DaysOnLot    int     `json:"days_on_lot"`
	Price        float64 `json:"price"`
}

type RecentSale struct {
	SaleDate     string  `json:"sale_date"`
	VIN          string  `json:"vin"`
	Manufacturer string  `json:"manufacturer"`
	Model        string  `json:"model"`
	Brand        string  `json:"brand"`
	SalePrice    float64 `json:"sale_price"`
	DaysToSell   int     `json:"days_to_sell"`
}

// Dashboard is the full payload of GET /api/dashboard.
type Dashboard struct {
	KPIs                  KPIs                  `json:"kpis"`
	DailySalesTrend       []DailySales          `json:"daily_sales_trend"`
	InventoryByPriceRange []PriceRangeInventory `json:"inventory_by_price_range"`
	SalesByBrand          []BrandSales          `json:"sales_by_brand"`
	DaysOnLotByPriceRange []PriceRangeDaysOnLot `json:"days_on_lot_by_price_range"`
	TopSellingModels      []ModelSales          `json:"top_selling_models"`
	SlowMovingInventory   []SlowMovingVehicle   `json:"slow_moving_inventory"`
	RecentSales           []RecentSale          `json:"recent_sales"`
}

// Scope is the set of date keys one dashboard request reads. InventoryKey is
// calendar.NoData when no inventory snapshot qualifies.
type Scope struct {
	Today        calendar.DateKey
	WindowStart  calendar.DateKey
	InventoryKey calendar.DateKey
}

type KeyRange struct {
	Min *int `json:"min"`
	Max *int `json:"max"`
}

type RecordCounts struct {
	Inventory   int64 `json:"inventory"`
	Sales       int64 `json:"sales"`
	Vehicles    int64 `json:"vehicles"`
	PriceRanges int64 `json:"price_ranges"`
	Dates       int64 `json:"dates"`
}

type InventorySummary struct {
	Today      int64 `json:"today"`
	MostRecent int64 `json:"most_recent"`
}

type ResolvedKeys struct {
	Today        int `json:"today"`
	WindowStart  int `json:"window_start"`
	InventoryKey int `json:"inventory_key"`
}

// Diagnostics describes data availability for operators.
type Diagnostics struct {
	TodayKey           int              `json:"today_key"`
	LagDays            int              `json:"lag_days"`
	InventoryDateRange KeyRange         `json:"inventory_date_range"`
	SalesDateRange     KeyRange         `json:"sales_date_range"`
	CalendarRange      KeyRange         `json:"calendar_range"`
	RecordCounts       RecordCounts     `json:"record_counts"`
	InventorySummary   InventorySummary `json:"inventory_summary"`
	Resolved           ResolvedKeys     `json:"resolved"`
}
