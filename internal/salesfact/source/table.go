package source

import (
	"context"
	"strings"

	"github.com/smallbiznis/fluxdrive/internal/salesfact/domain"
	warehousedomain "github.com/smallbiznis/fluxdrive/internal/warehouse/domain"
	"gorm.io/gorm"
)

var _ domain.Source = (*TableSource)(nil)

// TableSource reads staged listings from a database table. The sold_date
// range is pushed down; rows come back in insertion order.
type TableSource struct {
	db    *gorm.DB
	table string
}

func NewTableSource(db *gorm.DB, table string) *TableSource {
	if strings.TrimSpace(table) == "" {
		table = warehousedomain.RawVehicleListing{}.TableName()
	}
	return &TableSource{db: db, table: table}
}

func (s *TableSource) Name() string { return "table" }

func (s *TableSource) Read(ctx context.Context, filter domain.Filter) ([]domain.RawSaleEvent, error) {
	query := s.db.WithContext(ctx).Table(s.table)
	if filter.ProcessDate.Valid() {
		day := filter.ProcessDate.Time()
		query = query.Where("sold_date >= ? AND sold_date < ?", day, day.AddDate(0, 0, 1))
	}

	var rows []warehousedomain.RawVehicleListing
	if err := query.Order("id ASC").Find(&rows).Error; err != nil {
		return nil, err
	}

	out := make([]domain.RawSaleEvent, 0, len(rows))
	for _, r := range rows {
		ev := domain.RawSaleEvent{
			Manufacturer: r.Manufacturer,
			Model:        r.Model,
			Brand:        r.Brand,
			Color:        r.Color,
			Price:        r.Price,
			Mileage:      r.Mileage,
			Status:       strings.ToLower(strings.TrimSpace(r.Status)),
			AddedDate:    r.AddedDate,
			SoldDate:     r.SoldDate,
		}
		if r.VIN != nil {
			ev.VIN = strings.TrimSpace(*r.VIN)
		}
		out = append(out, ev)
	}
	return out, nil
}
