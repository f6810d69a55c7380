package calendar

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/smallbiznis/fluxdrive/internal/warehouse/domain"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var ErrDateNotFound = errors.New("date_not_found")

const seedBatchSize = 366

// Repository reads and seeds the dim_date dimension.
type Repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// Lookup returns the dimension row for key.
func (r *Repository) Lookup(ctx context.Context, key DateKey) (domain.DimDate, error) {
	var row domain.DimDate
	err := r.db.WithContext(ctx).Where("date_key = ?", key.Int()).Take(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return domain.DimDate{}, ErrDateNotFound
	}
	return row, err
}

// KeyFor is the reverse lookup from a calendar day to its dimension key.
func (r *Repository) KeyFor(ctx context.Context, t time.Time) (DateKey, error) {
	row, err := r.Lookup(ctx, FromTime(t))
	if err != nil {
		return NoData, err
	}
	return DateKey(row.DateKey), nil
}

// EnsureRange inserts any missing days between from and to inclusive and
// returns how many rows were added. Existing rows are left untouched.
func (r *Repository) EnsureRange(ctx context.Context, from, to DateKey) (int64, error) {
	if !from.Valid() || !to.Valid() || from > to {
		return 0, fmt.Errorf("%w: range %d..%d", ErrInvalidDate, from, to)
	}

	days := Days(from, to)
	rows := make([]domain.DimDate, 0, len(days))
	for _, k := range days {
		rows = append(rows, BuildDimDate(k))
	}

	result := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		CreateInBatches(&rows, seedBatchSize)
	if result.Error != nil {
		return 0, fmt.Errorf("seed dim_date: %w", result.Error)
	}
	return result.RowsAffected, nil
}

// Range returns the dimension rows between from and to inclusive.
func (r *Repository) Range(ctx context.Context, from, to DateKey) ([]domain.DimDate, error) {
	var rows []domain.DimDate
	err := r.db.WithContext(ctx).
		Where("date_key BETWEEN ? AND ?", from.Int(), to.Int()).
		Order("date_key ASC").
		Find(&rows).Error
	return rows, err
}

// Bounds returns the first and last seeded keys, NoData when empty.
func (r *Repository) Bounds(ctx context.Context) (DateKey, DateKey, error) {
	var minKey, maxKey sql.NullInt64
	err := r.db.WithContext(ctx).
		Model(&domain.DimDate{}).
		Select("MIN(date_key), MAX(date_key)").
		Row().
		Scan(&minKey, &maxKey)
	if err != nil {
		return NoData, NoData, err
	}
	if !minKey.Valid || !maxKey.Valid {
		return NoData, NoData, nil
	}
	return DateKey(minKey.Int64), DateKey(maxKey.Int64), nil
}

// BuildDimDate derives every attribute of the dimension row for key.
func BuildDimDate(key DateKey) domain.DimDate {
	t := key.Time()
	_, week := t.ISOWeek()
	dow := int(t.Weekday()+6)%7 + 1

	return domain.DimDate{
		DateKey:    key.Int(),
		FullDate:   t,
		DayOfWeek:  dow,
		DayName:    t.Weekday().String(),
		DayOfMonth: t.Day(),
		DayOfYear:  t.YearDay(),
		WeekOfYear: week,
		Month:      int(t.Month()),
		MonthName:  t.Month().String(),
		Quarter:    (int(t.Month())-1)/3 + 1,
		Year:       t.Year(),
		IsWeekend:  dow >= 6,
		IsHoliday:  isFixedHoliday(t),
	}
}

// isFixedHoliday covers fixed-date US federal holidays only; floating ones
// are maintained by hand in dim_date.
func isFixedHoliday(t time.Time) bool {
	switch {
	case t.Month() == time.January && t.Day() == 1,
		t.Month() == time.June && t.Day() == 19,
		t.Month() == time.July && t.Day() == 4,
		t.Month() == time.November && t.Day() == 11,
		t.Month() == time.December && t.Day() == 25:
		return true
	}
	return false
}
