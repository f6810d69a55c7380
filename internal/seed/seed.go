package seed

import (
	"context"
	"errors"
	"fmt"

	"github.com/smallbiznis/fluxdrive/internal/calendar"
	warehousedomain "github.com/smallbiznis/fluxdrive/internal/warehouse/domain"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Stats reports how many dimension rows a seed pass added.
type Stats struct {
	DatesAdded       int64
	PriceRangesAdded int64
}

// EnsureDimensions seeds dim_date over [from, to] and the default price
// buckets. Rows that already exist are left as they are, so operators may
// edit holidays or bucket names without the next start reverting them. The
// resulting bucket set must still cover every price exactly once.
func EnsureDimensions(ctx context.Context, db *gorm.DB, from, to calendar.DateKey) (Stats, error) {
	if db == nil {
		return Stats{}, errors.New("seed database handle is required")
	}

	var stats Stats
	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		added, err := calendar.NewRepository(tx).EnsureRange(ctx, from, to)
		if err != nil {
			return err
		}
		stats.DatesAdded = added

		added, err = ensurePriceRangesTx(ctx, tx)
		if err != nil {
			return err
		}
		stats.PriceRangesAdded = added

		var ranges []warehousedomain.DimPriceRange
		if err := tx.WithContext(ctx).Order("sort_order ASC").Find(&ranges).Error; err != nil {
			return fmt.Errorf("load dim_price_range: %w", err)
		}
		return warehousedomain.ValidatePriceRanges(ranges)
	})
	return stats, err
}

func ensurePriceRangesTx(ctx context.Context, tx *gorm.DB) (int64, error) {
	ranges := warehousedomain.DefaultPriceRanges()
	result := tx.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(&ranges)
	if result.Error != nil {
		return 0, fmt.Errorf("seed dim_price_range: %w", result.Error)
	}
	return result.RowsAffected, nil
}
