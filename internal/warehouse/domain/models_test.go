package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDefaultPriceRangesAreContiguous(t *testing.T) {
	ranges := DefaultPriceRanges()
	assert.Len(t, ranges, 5)
	for i := 1; i < len(ranges); i++ {
		prev := ranges[i-1]
		if assert.NotNil(t, prev.MaxPrice) {
			assert.Equal(t, *prev.MaxPrice, ranges[i].MinPrice, "gap after %s", prev.RangeName)
		}
	}
	assert.Nil(t, ranges[len(ranges)-1].MaxPrice)
}

func TestPriceRangeContains(t *testing.T) {
	ranges := DefaultPriceRanges()
	assert.True(t, ranges[0].Contains(14999.99))
	assert.False(t, ranges[0].Contains(15000))
	assert.True(t, ranges[1].Contains(15000))
	assert.True(t, ranges[4].Contains(250000))
}

func TestValidatePriceRanges(t *testing.T) {
	assert.NoError(t, ValidatePriceRanges(DefaultPriceRanges()))

	cases := []struct {
		name   string
		mutate func([]DimPriceRange) []DimPriceRange
		want   string
	}{
		{name: "no buckets", mutate: func([]DimPriceRange) []DimPriceRange { return nil }, want: "no buckets"},
		{name: "empty bucket", mutate: func(r []DimPriceRange) []DimPriceRange {
			r[1].MaxPrice = ptr(15000.0)
			return r
		}, want: "is empty"},
		{name: "overlap", mutate: func(r []DimPriceRange) []DimPriceRange {
			r[2].MinPrice = 20000
			return r
		}, want: "overlaps"},
		{name: "gap", mutate: func(r []DimPriceRange) []DimPriceRange {
			r[0].MaxPrice = ptr(10000.0)
			return r
		}, want: "gap above"},
		{name: "closed top", mutate: func(r []DimPriceRange) []DimPriceRange {
			r[4].MaxPrice = ptr(200000.0)
			return r
		}, want: "open-ended"},
		{name: "no floor", mutate: func(r []DimPriceRange) []DimPriceRange {
			return r[1:]
		}, want: "price 0"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := ValidatePriceRanges(tc.mutate(DefaultPriceRanges()))
			assert.ErrorIs(t, err, ErrInvalidPriceRanges)
			assert.ErrorContains(t, err, tc.want)
		})
	}
}
