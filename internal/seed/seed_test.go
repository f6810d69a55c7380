package seed

import (
	"context"
	"testing"

	warehousedomain "github.com/smallbiznis/fluxdrive/internal/warehouse/domain"
	"github.com/smallbiznis/fluxdrive/pkg/db"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEnsureDimensionsIsIdempotent(t *testing.T) {
	conn, err := db.NewTest()
	require.NoError(t, err)
	require.NoError(t, conn.AutoMigrate(warehousedomain.Models()...))
	ctx := context.Background()

	stats, err := EnsureDimensions(ctx, conn, 20240101, 20241231)
	require.NoError(t, err)
	assert.Equal(t, int64(366), stats.DatesAdded)
	assert.Equal(t, int64(5), stats.PriceRangesAdded)

	require.NoError(t, conn.Model(&warehousedomain.DimPriceRange{}).
		Where("price_range_key = ?", 1).
		Update("range_name", "Budget").Error)

	stats, err = EnsureDimensions(ctx, conn, 20240101, 20250105)
	require.NoError(t, err)
	assert.Equal(t, int64(5), stats.DatesAdded)
	assert.Equal(t, int64(0), stats.PriceRangesAdded)

	var bucket warehousedomain.DimPriceRange
	require.NoError(t, conn.Take(&bucket, "price_range_key = ?", 1).Error)
	assert.Equal(t, "Budget", bucket.RangeName)
}

func TestEnsureDimensionsRejectsInvertedRange(t *testing.T) {
	conn, err := db.NewTest()
	require.NoError(t, err)
	require.NoError(t, conn.AutoMigrate(warehousedomain.Models()...))

	_, err = EnsureDimensions(context.Background(), conn, 20250101, 20240101)
	assert.Error(t, err)
}

func TestEnsureDimensionsRejectsOverlappingBuckets(t *testing.T) {
	conn, err := db.NewTest()
	require.NoError(t, err)
	require.NoError(t, conn.AutoMigrate(warehousedomain.Models()...))
	ctx := context.Background()

	maxPrice := 30000.0
	extra := warehousedomain.DimPriceRange{PriceRangeKey: 6, RangeName: "$20K-$30K", MinPrice: 20000, MaxPrice: &maxPrice, SortOrder: 6}
	require.NoError(t, conn.Create(&extra).Error)

	_, err = EnsureDimensions(ctx, conn, 20250101, 20250131)
	require.ErrorIs(t, err, warehousedomain.ErrInvalidPriceRanges)
	assert.ErrorContains(t, err, "overlaps")

	// The failed pass leaves no dates behind.
	var dates int64
	require.NoError(t, conn.Model(&warehousedomain.DimDate{}).Count(&dates).Error)
	assert.Zero(t, dates)
}

func TestEnsureDimensionsRejectsGapInEditedBucket(t *testing.T) {
	conn, err := db.NewTest()
	require.NoError(t, err)
	require.NoError(t, conn.AutoMigrate(warehousedomain.Models()...))
	ctx := context.Background()

	_, err = EnsureDimensions(ctx, conn, 20250101, 20250131)
	require.NoError(t, err)

	require.NoError(t, conn.Model(&warehousedomain.DimPriceRange{}).
		Where("price_range_key = ?", 2).
		Update("max_price", 20000).Error)

	_, err = EnsureDimensions(ctx, conn, 20250101, 20250131)
	require.ErrorIs(t, err, warehousedomain.ErrInvalidPriceRanges)
	assert.ErrorContains(t, err, "gap above")
}
