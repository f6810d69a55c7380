package migration

import (
	"context"
	"io/fs"
	"strings"
	"testing"

	"github.com/smallbiznis/fluxdrive/internal/config"
	warehousedomain "github.com/smallbiznis/fluxdrive/internal/warehouse/domain"
	"github.com/smallbiznis/fluxdrive/pkg/db"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestEmbeddedMigrationsArePaired(t *testing.T) {
	entries, err := fs.ReadDir(embeddedMigrations, migrationsDir)
	require.NoError(t, err)
	require.NotEmpty(t, entries)

	ups, downs := 0, 0
	for _, e := range entries {
		switch {
		case strings.HasSuffix(e.Name(), ".up.sql"):
			ups++
		case strings.HasSuffix(e.Name(), ".down.sql"):
			downs++
		}
	}
	assert.Equal(t, ups, downs)
}

func TestApplyAutoMigratesAndSeeds(t *testing.T) {
	conn, err := db.NewTest()
	require.NoError(t, err)

	cfg := config.Config{
		DBType:        "sqlite",
		DBAutoMigrate: true,
		Rebuild: config.RebuildConfig{
			CalendarFromDate: "2025-01-01",
			CalendarToDate:   "2025-01-31",
		},
	}
	require.NoError(t, Apply(context.Background(), conn, cfg, zap.NewNop()))

	var dates, ranges int64
	require.NoError(t, conn.Model(&warehousedomain.DimDate{}).Count(&dates).Error)
	require.NoError(t, conn.Model(&warehousedomain.DimPriceRange{}).Count(&ranges).Error)
	assert.Equal(t, int64(31), dates)
	assert.Equal(t, int64(5), ranges)
	assert.True(t, conn.Migrator().HasTable(&warehousedomain.SalesFactRebuildRequest{}))
}

func TestApplyRejectsBadCalendarBounds(t *testing.T) {
	conn, err := db.NewTest()
	require.NoError(t, err)

	cfg := config.Config{
		DBType:        "sqlite",
		DBAutoMigrate: true,
		Rebuild:       config.RebuildConfig{CalendarFromDate: "01/01/2025", CalendarToDate: "2025-01-31"},
	}
	err = Apply(context.Background(), conn, cfg, zap.NewNop())
	assert.ErrorContains(t, err, "CALENDAR_FROM_DATE")
}
