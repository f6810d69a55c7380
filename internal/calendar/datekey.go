package calendar

import (
	"errors"
	"strconv"
	"time"
)

// DateKey is a calendar day encoded as the integer YYYYMMDD. Keys order the
// same way the days they encode do.
type DateKey int

// NoData is returned by the resolver when no partition qualifies.
const NoData DateKey = 0

const layout = "2006-01-02"

var ErrInvalidDate = errors.New("invalid_date")

// FromTime encodes the calendar day of t in t's own location.
func FromTime(t time.Time) DateKey {
	y, m, d := t.Date()
	return DateKey(y*10000 + int(m)*100 + d)
}

// Parse reads a YYYY-MM-DD string.
func Parse(value string) (DateKey, error) {
	t, err := time.Parse(layout, value)
	if err != nil {
		return NoData, ErrInvalidDate
	}
	return FromTime(t), nil
}

// ParseKey validates a raw YYYYMMDD integer or string such as "20250301".
func ParseKey(value string) (DateKey, error) {
	n, err := strconv.Atoi(value)
	if err != nil {
		return NoData, ErrInvalidDate
	}
	k := DateKey(n)
	if !k.Valid() {
		return NoData, ErrInvalidDate
	}
	return k, nil
}

func (k DateKey) parts() (int, time.Month, int) {
	n := int(k)
	return n / 10000, time.Month(n / 100 % 100), n % 100
}

// Time returns midnight UTC of the encoded day.
func (k DateKey) Time() time.Time {
	y, m, d := k.parts()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// AddDays moves the key by n calendar days, crossing month and year ends.
func (k DateKey) AddDays(n int) DateKey {
	return FromTime(k.Time().AddDate(0, 0, n))
}

// Valid reports whether k encodes a real calendar day.
func (k DateKey) Valid() bool {
	if k <= 0 {
		return false
	}
	y, m, d := k.parts()
	if y < 1 || m < 1 || m > 12 || d < 1 {
		return false
	}
	return FromTime(k.Time()) == k
}

// String renders the key as YYYY-MM-DD, or "" for NoData.
func (k DateKey) String() string {
	if k == NoData {
		return ""
	}
	return k.Time().Format(layout)
}

// Int returns the raw YYYYMMDD value stored in the warehouse.
func (k DateKey) Int() int { return int(k) }

// DaysBetween returns to minus from in calendar days.
func DaysBetween(from, to time.Time) int {
	f := time.Date(from.Year(), from.Month(), from.Day(), 0, 0, 0, 0, time.UTC)
	t := time.Date(to.Year(), to.Month(), to.Day(), 0, 0, 0, 0, time.UTC)
	return int(t.Sub(f).Hours() / 24)
}

// Today is the dashboard's notion of the current day: now minus lagDays, in UTC.
func Today(now time.Time, lagDays int) DateKey {
	return FromTime(now.UTC()).AddDays(-lagDays)
}

// WindowKeys returns the key range [end-lengthDays, end].
func WindowKeys(end DateKey, lengthDays int) (DateKey, DateKey) {
	return end.AddDays(-lengthDays), end
}

// Days enumerates every key from start to end inclusive. It returns nil when
// start is after end.
func Days(start, end DateKey) []DateKey {
	if start > end {
		return nil
	}
	out := make([]DateKey, 0, DaysBetween(start.Time(), end.Time())+1)
	for k := start; k <= end; k = k.AddDays(1) {
		out = append(out, k)
	}
	return out
}
