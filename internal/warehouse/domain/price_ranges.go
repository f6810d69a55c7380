package domain

import (
	"errors"
	"fmt"
)

var ErrInvalidPriceRanges = errors.New("invalid_price_ranges")

// ValidatePriceRanges checks that the buckets place every non-negative price
// in exactly one bucket: no empty bucket, no overlap, no gap, and a single
// open-ended top bucket.
func ValidatePriceRanges(ranges []DimPriceRange) error {
	if len(ranges) == 0 {
		return fmt.Errorf("%w: no buckets", ErrInvalidPriceRanges)
	}

	open := 0
	for _, r := range ranges {
		if r.MaxPrice == nil {
			open++
			continue
		}
		if *r.MaxPrice <= r.MinPrice {
			return fmt.Errorf("%w: %q is empty", ErrInvalidPriceRanges, r.RangeName)
		}
	}
	if open != 1 {
		return fmt.Errorf("%w: want one open-ended bucket, got %d", ErrInvalidPriceRanges, open)
	}

	if len(bucketsFor(ranges, 0)) == 0 {
		return fmt.Errorf("%w: price 0 has no bucket", ErrInvalidPriceRanges)
	}
	for _, r := range ranges {
		if owners := bucketsFor(ranges, r.MinPrice); len(owners) > 1 {
			return fmt.Errorf("%w: %q overlaps %q", ErrInvalidPriceRanges, owners[0], owners[1])
		}
		if r.MaxPrice != nil && len(bucketsFor(ranges, *r.MaxPrice)) == 0 {
			return fmt.Errorf("%w: gap above %q", ErrInvalidPriceRanges, r.RangeName)
		}
	}
	return nil
}

func bucketsFor(ranges []DimPriceRange, price float64) []string {
	var names []string
	for _, r := range ranges {
		if r.Contains(price) {
			names = append(names, r.RangeName)
		}
	}
	return names
}
