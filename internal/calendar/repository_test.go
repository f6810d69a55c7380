package calendar

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEnsureRangeIsIdempotentAndGapFree(t *testing.T) {
	conn := setupFactDB(t)
	repo := NewRepository(conn)
	ctx := context.Background()

	added, err := repo.EnsureRange(ctx, 20240225, 20240305)
	require.NoError(t, err)
	assert.EqualValues(t, 10, added)

	added, err = repo.EnsureRange(ctx, 20240301, 20240310)
	require.NoError(t, err)
	assert.EqualValues(t, 5, added)

	rows, err := repo.Range(ctx, 20240225, 20240310)
	require.NoError(t, err)
	require.Len(t, rows, 15)
	for i := 1; i < len(rows); i++ {
		assert.Equal(t, DateKey(rows[i-1].DateKey).AddDays(1), DateKey(rows[i].DateKey))
	}

	minKey, maxKey, err := repo.Bounds(ctx)
	require.NoError(t, err)
	assert.Equal(t, DateKey(20240225), minKey)
	assert.Equal(t, DateKey(20240310), maxKey)
}

func TestEnsureRangeRejectsInvertedRange(t *testing.T) {
	repo := NewRepository(setupFactDB(t))
	_, err := repo.EnsureRange(context.Background(), 20240310, 20240301)
	assert.ErrorIs(t, err, ErrInvalidDate)
}

func TestLookupAndKeyFor(t *testing.T) {
	conn := setupFactDB(t)
	repo := NewRepository(conn)
	ctx := context.Background()

	_, err := repo.EnsureRange(ctx, 20240229, 20240229)
	require.NoError(t, err)

	row, err := repo.Lookup(ctx, 20240229)
	require.NoError(t, err)
	assert.Equal(t, 4, row.DayOfWeek)
	assert.Equal(t, "Thursday", row.DayName)
	assert.Equal(t, 60, row.DayOfYear)
	assert.Equal(t, 1, row.Quarter)
	assert.False(t, row.IsWeekend)

	key, err := repo.KeyFor(ctx, time.Date(2024, time.February, 29, 18, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.Equal(t, DateKey(20240229), key)

	_, err = repo.KeyFor(ctx, time.Date(2024, time.March, 1, 0, 0, 0, 0, time.UTC))
	assert.ErrorIs(t, err, ErrDateNotFound)

	minKey, _, err := NewRepository(setupFactDB(t)).Bounds(ctx)
	require.NoError(t, err)
	assert.Equal(t, NoData, minKey)
}

func TestBuildDimDate(t *testing.T) {
	sunday := BuildDimDate(20250105)
	assert.Equal(t, 7, sunday.DayOfWeek)
	assert.True(t, sunday.IsWeekend)
	assert.Equal(t, 1, sunday.WeekOfYear)

	// 2024-12-30 belongs to ISO week 1 of 2025.
	assert.Equal(t, 1, BuildDimDate(20241230).WeekOfYear)
	assert.True(t, BuildDimDate(20250704).IsHoliday)
	assert.Equal(t, 4, BuildDimDate(20251001).Quarter)
}
