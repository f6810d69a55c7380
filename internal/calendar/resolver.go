package calendar

import (
	"context"
	"database/sql"
	"fmt"

	"gorm.io/gorm"
)

// Probe answers whether a fact table holds rows for a date key.
type Probe interface {
	HasData(ctx context.Context, key DateKey) (bool, error)
	// LatestBefore returns the greatest key strictly below key and not below
	// floor that has data, or NoData.
	LatestBefore(ctx context.Context, key, floor DateKey) (DateKey, error)
}

// ResolveOrFallback returns requested when it has data, otherwise the most
// recent earlier key with data, otherwise NoData. maxLookup bounds the search
// to that many days back; zero searches without bound.
func ResolveOrFallback(ctx context.Context, requested DateKey, probe Probe, maxLookup int) (DateKey, error) {
	ok, err := probe.HasData(ctx, requested)
	if err != nil {
		return NoData, err
	}
	if ok {
		return requested, nil
	}

	floor := NoData
	if maxLookup > 0 {
		floor = requested.AddDays(-maxLookup)
	}
	return probe.LatestBefore(ctx, requested, floor)
}

// TableProbe probes a fact table by its date key column. Where narrows the
// rows that count as data, e.g. only active inventory.
type TableProbe struct {
	DB     *gorm.DB
	Table  string
	Column string
	Where  string
	Args   []any
}

func (p TableProbe) scope(ctx context.Context) *gorm.DB {
	q := p.DB.WithContext(ctx).Table(p.Table)
	if p.Where != "" {
		q = q.Where(p.Where, p.Args...)
	}
	return q
}

func (p TableProbe) HasData(ctx context.Context, key DateKey) (bool, error) {
	var keys []int
	err := p.scope(ctx).
		Where(p.Column+" = ?", key.Int()).
		Limit(1).
		Pluck(p.Column, &keys).Error
	if err != nil {
		return false, fmt.Errorf("probe %s: %w", p.Table, err)
	}
	return len(keys) > 0, nil
}

func (p TableProbe) LatestBefore(ctx context.Context, key, floor DateKey) (DateKey, error) {
	q := p.scope(ctx).
		Select("MAX(" + p.Column + ")").
		Where(p.Column+" < ?", key.Int())
	if floor != NoData {
		q = q.Where(p.Column+" >= ?", floor.Int())
	}

	var latest sql.NullInt64
	if err := q.Row().Scan(&latest); err != nil {
		return NoData, fmt.Errorf("probe %s: %w", p.Table, err)
	}
	if !latest.Valid {
		return NoData, nil
	}
	return DateKey(latest.Int64), nil
}
