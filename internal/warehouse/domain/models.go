package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

// DimDate is one calendar day of the date dimension.
type DimDate struct {
	DateKey    int       `json:"date_key" gorm:"column:date_key;primaryKey;autoIncrement:false"`
	FullDate   time.Time `json:"full_date" gorm:"column:full_date;type:date;not null;uniqueIndex:ux_dim_date_full_date"`
	DayOfWeek  int       `json:"day_of_week" gorm:"column:day_of_week;not null"`
	DayName    string    `json:"day_name" gorm:"column:day_name;type:varchar(10);not null"`
	DayOfMonth int       `json:"day_of_month" gorm:"column:day_of_month;not null"`
	DayOfYear  int       `json:"day_of_year" gorm:"column:day_of_year;not null"`
	WeekOfYear int       `json:"week_of_year" gorm:"column:week_of_year;not null"`
	Month      int       `json:"month" gorm:"column:month;not null"`
	MonthName  string    `json:"month_name" gorm:"column:month_name;type:varchar(10);not null"`
	Quarter    int       `json:"quarter" gorm:"column:quarter;not null"`
	Year       int       `json:"year" gorm:"column:year;not null"`
	IsWeekend  bool      `json:"is_weekend" gorm:"column:is_weekend;not null;default:false"`
	IsHoliday  bool      `json:"is_holiday" gorm:"column:is_holiday;not null;default:false"`
}

func (DimDate) TableName() string { return "dim_date" }

// DimVehicle describes a vehicle configuration independent of any single VIN.
type DimVehicle struct {
	VehicleKey   int64     `json:"vehicle_key" gorm:"column:vehicle_key;primaryKey;autoIncrement"`
	Manufacturer string    `json:"manufacturer" gorm:"column:manufacturer;type:varchar(50);not null;uniqueIndex:ux_dim_vehicle_descriptor,priority:1"`
	Model        string    `json:"model" gorm:"column:model;type:varchar(100);not null;uniqueIndex:ux_dim_vehicle_descriptor,priority:2"`
	Brand        *string   `json:"brand" gorm:"column:brand;type:varchar(50);uniqueIndex:ux_dim_vehicle_descriptor,priority:3"`
	Color        *string   `json:"color" gorm:"column:color;type:varchar(30);uniqueIndex:ux_dim_vehicle_descriptor,priority:4"`
	CreatedAt    time.Time `json:"created_at" gorm:"column:created_at;not null"`
}

func (DimVehicle) TableName() string { return "dim_vehicle" }

// DimPriceRange is a price bucket. MinPrice is inclusive, MaxPrice exclusive
// and nil for the open-ended top bucket.
type DimPriceRange struct {
	PriceRangeKey int64    `json:"price_range_key" gorm:"column:price_range_key;primaryKey;autoIncrement:false"`
	RangeName     string   `json:"range_name" gorm:"column:range_name;type:varchar(50);not null"`
	MinPrice      float64  `json:"min_price" gorm:"column:min_price;type:numeric(10,2);not null"`
	MaxPrice      *float64 `json:"max_price" gorm:"column:max_price;type:numeric(10,2)"`
	Description   string   `json:"description" gorm:"column:description;type:text"`
	SortOrder     int      `json:"sort_order" gorm:"column:sort_order;not null;default:0"`
}

func (DimPriceRange) TableName() string { return "dim_price_range" }

// Contains reports whether price falls inside the bucket.
func (p DimPriceRange) Contains(price float64) bool {
	if price < p.MinPrice {
		return false
	}
	return p.MaxPrice == nil || price < *p.MaxPrice
}

// FactDailyInventory is the per-day snapshot of one listed vehicle. It is
// written by the upstream ingestion and only read here.
type FactDailyInventory struct {
	DateKey       int      `json:"date_key" gorm:"column:date_key;primaryKey;autoIncrement:false"`
	VIN           string   `json:"vin" gorm:"column:vin;primaryKey;type:varchar(17)"`
	VehicleKey    *int64   `json:"vehicle_key" gorm:"column:vehicle_key;index"`
	PriceRangeKey *int64   `json:"price_range_key" gorm:"column:price_range_key;index"`
	Price         *float64 `json:"price" gorm:"column:price;type:numeric(10,2)"`
	Mileage       *int     `json:"mileage" gorm:"column:mileage"`
	Status        string   `json:"status" gorm:"column:status;type:varchar(20)"`
	ActiveCount   int      `json:"active_count" gorm:"column:active_count;not null;default:0"`
	NewArrivals   int      `json:"new_arrivals" gorm:"column:new_arrivals;not null;default:0"`
	SoldCount     int      `json:"sold_count" gorm:"column:sold_count;not null;default:0"`
	DaysOnLot     int      `json:"days_on_lot" gorm:"column:days_on_lot;not null;default:0"`
}

func (FactDailyInventory) TableName() string { return "fact_daily_inventory" }

// FactSalesEvent is one sale, keyed by the sale date partition and VIN.
type FactSalesEvent struct {
	SaleDateKey int        `json:"sale_date_key" gorm:"column:sale_date_key;primaryKey;autoIncrement:false"`
	VIN         string     `json:"vin" gorm:"column:vin;primaryKey;type:varchar(17)"`
	VehicleKey  *int64     `json:"vehicle_key" gorm:"column:vehicle_key;index"`
	SalePrice   float64    `json:"sale_price" gorm:"column:sale_price;type:numeric(10,2);not null"`
	SaleMileage *int       `json:"sale_mileage" gorm:"column:sale_mileage"`
	DaysToSell  int        `json:"days_to_sell" gorm:"column:days_to_sell;not null;default:0"`
	AddedDate   *time.Time `json:"added_date" gorm:"column:added_date;type:date"`
	SoldDate    *time.Time `json:"sold_date" gorm:"column:sold_date;type:date"`
}

func (FactSalesEvent) TableName() string { return "fact_sales_events" }

// RawVehicleListing is a staged raw listing row, in the shape the upstream
// scraper lands it. Only the table source reads it.
type RawVehicleListing struct {
	ID           int64      `json:"id" gorm:"column:id;primaryKey;autoIncrement"`
	VIN          *string    `json:"vin" gorm:"column:vin;type:varchar(17);index"`
	Manufacturer string     `json:"manufacturer" gorm:"column:manufacturer;type:varchar(50)"`
	Model        string     `json:"model" gorm:"column:model;type:varchar(100)"`
	Brand        *string    `json:"brand" gorm:"column:brand;type:varchar(50)"`
	Color        *string    `json:"color" gorm:"column:color;type:varchar(30)"`
	Price        *float64   `json:"price" gorm:"column:price;type:numeric(10,2)"`
	Mileage      *int       `json:"mileage" gorm:"column:mileage"`
	Status       string     `json:"status" gorm:"column:status;type:varchar(20)"`
	AddedDate    *time.Time `json:"added_date" gorm:"column:added_date;type:date"`
	SoldDate     *time.Time `json:"sold_date" gorm:"column:sold_date;type:date;index"`
}

func (RawVehicleListing) TableName() string { return "raw_vehicle_listings" }

// SalesFactRebuildRequest tracks an asynchronous partition rebuild.
type SalesFactRebuildRequest struct {
	ID          snowflake.ID   `json:"id" gorm:"column:id;primaryKey;autoIncrement:false"`
	ProcessDate int            `json:"process_date" gorm:"column:process_date;not null;index"`
	Status      string         `json:"status" gorm:"column:status;type:varchar(20);not null;index"`
	Stats       datatypes.JSON `json:"stats" gorm:"column:stats"`
	Error       string         `json:"error" gorm:"column:error;type:text"`
	CreatedAt   time.Time      `json:"created_at" gorm:"column:created_at;not null"`
	StartedAt   *time.Time     `json:"started_at" gorm:"column:started_at"`
	CompletedAt *time.Time     `json:"completed_at" gorm:"column:completed_at"`
}

func (SalesFactRebuildRequest) TableName() string { return "sales_fact_rebuild_requests" }

// Models lists every warehouse table in dependency order for AutoMigrate.
func Models() []any {
	return []any{
		&DimDate{},
		&DimVehicle{},
		&DimPriceRange{},
		&FactDailyInventory{},
		&FactSalesEvent{},
		&SalesFactRebuildRequest{},
		&RawVehicleListing{},
	}
}

func ptr[T any](v T) *T { return &v }

// DefaultPriceRanges are the buckets seeded into dim_price_range.
func DefaultPriceRanges() []DimPriceRange {
	return []DimPriceRange{
		{PriceRangeKey: 1, RangeName: "Under $15K", MinPrice: 0, MaxPrice: ptr(15000.0), Description: "Budget vehicles", SortOrder: 1},
		{PriceRangeKey: 2, RangeName: "$15K-$25K", MinPrice: 15000, MaxPrice: ptr(25000.0), Description: "Economy vehicles", SortOrder: 2},
		{PriceRangeKey: 3, RangeName: "$25K-$35K", MinPrice: 25000, MaxPrice: ptr(35000.0), Description: "Mid-range vehicles", SortOrder: 3},
		{PriceRangeKey: 4, RangeName: "$35K-$50K", MinPrice: 35000, MaxPrice: ptr(50000.0), Description: "Premium vehicles", SortOrder: 4},
		{PriceRangeKey: 5, RangeName: "Over $50K", MinPrice: 50000, MaxPrice: nil, Description: "Luxury vehicles", SortOrder: 5},
	}
}
