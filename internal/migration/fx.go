package migration

import (
	"context"
	"fmt"

	"github.com/smallbiznis/fluxdrive/internal/calendar"
	"github.com/smallbiznis/fluxdrive/internal/config"
	"github.com/smallbiznis/fluxdrive/internal/seed"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var Module = fx.Module("migrations",
	fx.Invoke(func(conn *gorm.DB, cfg config.Config, log *zap.Logger) error {
		return Apply(context.Background(), conn, cfg, log)
	}),
)

// Apply brings the schema up to date and seeds the static dimensions.
func Apply(ctx context.Context, conn *gorm.DB, cfg config.Config, log *zap.Logger) error {
	log = log.Named("migration")
	switch {
	case cfg.DBType == "postgres":
		sqlDB, err := conn.DB()
		if err != nil {
			return err
		}
		if err := RunMigrations(sqlDB); err != nil {
			return err
		}
	case cfg.DBAutoMigrate:
		if err := AutoMigrate(conn); err != nil {
			return err
		}
	default:
		log.Info("schema management disabled", zap.String("db_type", cfg.DBType))
		return nil
	}

	from, err := calendar.Parse(cfg.Rebuild.CalendarFromDate)
	if err != nil {
		return fmt.Errorf("CALENDAR_FROM_DATE: %w", err)
	}
	to, err := calendar.Parse(cfg.Rebuild.CalendarToDate)
	if err != nil {
		return fmt.Errorf("CALENDAR_TO_DATE: %w", err)
	}
	stats, err := seed.EnsureDimensions(ctx, conn, from, to)
	if err != nil {
		return err
	}
	log.Info("dimensions seeded",
		zap.Int64("dim_date_added", stats.DatesAdded),
		zap.Int64("dim_price_range_added", stats.PriceRangesAdded),
	)
	return nil
}
