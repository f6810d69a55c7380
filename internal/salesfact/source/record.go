package source

import (
	"strings"
	"time"

	"github.com/smallbiznis/fluxdrive/internal/salesfact/domain"
)

// ListingRecord is the on-disk parquet schema of a raw listing export.
// Dates are unix milliseconds at UTC midnight.
type ListingRecord struct {
	VIN          string   `parquet:"vin,optional"`
	Manufacturer string   `parquet:"manufacturer,optional"`
	Model        string   `parquet:"model,optional"`
	Brand        *string  `parquet:"brand,optional"`
	Color        *string  `parquet:"color,optional"`
	Price        *float64 `parquet:"price,optional"`
	Mileage      *int64   `parquet:"mileage,optional"`
	Status       string   `parquet:"status,optional"`
	AddedDate    *int64   `parquet:"added_date,optional"`
	SoldDate     *int64   `parquet:"sold_date,optional"`
}

func (r ListingRecord) event() domain.RawSaleEvent {
	ev := domain.RawSaleEvent{
		VIN:          strings.TrimSpace(r.VIN),
		Manufacturer: r.Manufacturer,
		Model:        r.Model,
		Brand:        r.Brand,
		Color:        r.Color,
		Price:        r.Price,
		Status:       strings.ToLower(strings.TrimSpace(r.Status)),
		AddedDate:    fromMillis(r.AddedDate),
		SoldDate:     fromMillis(r.SoldDate),
	}
	if r.Mileage != nil {
		m := int(*r.Mileage)
		ev.Mileage = &m
	}
	return ev
}

// RecordFromEvent converts an event back to its parquet shape. Exports and
// tests use it to produce files the sources can read.
func RecordFromEvent(ev domain.RawSaleEvent) ListingRecord {
	rec := ListingRecord{
		VIN:          ev.VIN,
		Manufacturer: ev.Manufacturer,
		Model:        ev.Model,
		Brand:        ev.Brand,
		Color:        ev.Color,
		Price:        ev.Price,
		Status:       ev.Status,
		AddedDate:    toMillis(ev.AddedDate),
		SoldDate:     toMillis(ev.SoldDate),
	}
	if ev.Mileage != nil {
		m := int64(*ev.Mileage)
		rec.Mileage = &m
	}
	return rec
}

func fromMillis(ms *int64) *time.Time {
	if ms == nil {
		return nil
	}
	t := time.UnixMilli(*ms).UTC()
	return &t
}

func toMillis(t *time.Time) *int64 {
	if t == nil {
		return nil
	}
	ms := t.UTC().UnixMilli()
	return &ms
}

func events(records []ListingRecord) []domain.RawSaleEvent {
	out := make([]domain.RawSaleEvent, 0, len(records))
	for _, r := range records {
		out = append(out, r.event())
	}
	return out
}
