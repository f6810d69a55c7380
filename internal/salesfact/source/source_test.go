package source

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"testing"
	"time"

	"github.com/parquet-go/parquet-go"
	"github.com/smallbiznis/fluxdrive/internal/calendar"
	"github.com/smallbiznis/fluxdrive/internal/config"
	"github.com/smallbiznis/fluxdrive/internal/salesfact/domain"
	warehousedomain "github.com/smallbiznis/fluxdrive/internal/warehouse/domain"
	"github.com/smallbiznis/fluxdrive/pkg/db"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func day(y int, m time.Month, d int) *time.Time {
	t := time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
	return &t
}

func strPtr(v string) *string { return &v }

func price(v float64) *float64 { return &v }

func sold(vin string, soldDate *time.Time) domain.RawSaleEvent {
	mileage := 42000
	return domain.RawSaleEvent{
		VIN:          vin,
		Manufacturer: "Toyota",
		Model:        "Camry",
		Brand:        strPtr("Toyota"),
		Color:        strPtr("Blue"),
		Price:        price(21500),
		Mileage:      &mileage,
		Status:       domain.StatusSold,
		AddedDate:    day(2025, time.February, 10),
		SoldDate:     soldDate,
	}
}

func writeParquet(t *testing.T, path string, evs ...domain.RawSaleEvent) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	records := make([]ListingRecord, 0, len(evs))
	for _, ev := range evs {
		records = append(records, RecordFromEvent(ev))
	}
	require.NoError(t, parquet.WriteFile(path, records))
}

func TestParquetSourceReadsMatchingPartition(t *testing.T) {
	dir := t.TempDir()
	writeParquet(t, filepath.Join(dir, "sold_date=2025-03-01", "part-0001.parquet"),
		sold("VIN00000000000002", day(2025, time.March, 1)))
	writeParquet(t, filepath.Join(dir, "sold_date=2025-03-01", "part-0000.parquet"),
		sold("VIN00000000000001", day(2025, time.March, 1)))
	writeParquet(t, filepath.Join(dir, "sold_date=2025-03-02", "part-0000.parquet"),
		sold("VIN00000000000003", day(2025, time.March, 2)))

	src := NewParquetSource(dir)
	evs, err := src.Read(context.Background(), domain.Filter{ProcessDate: calendar.DateKey(20250301)})
	require.NoError(t, err)
	require.Len(t, evs, 2)
	assert.Equal(t, "VIN00000000000001", evs[0].VIN)
	assert.Equal(t, "VIN00000000000002", evs[1].VIN)

	got := evs[0]
	require.NotNil(t, got.SoldDate)
	assert.True(t, got.SoldDate.Equal(*day(2025, time.March, 1)))
	require.NotNil(t, got.Brand)
	assert.Equal(t, "Toyota", *got.Brand)
	require.NotNil(t, got.Mileage)
	assert.Equal(t, 42000, *got.Mileage)
	assert.Equal(t, "parquet", src.Name())
}

func TestParquetSourceFlatLayoutKeepsNulls(t *testing.T) {
	dir := t.TempDir()
	noPrice := sold("VIN00000000000010", day(2025, time.March, 1))
	noPrice.Price = nil
	noPrice.Brand = nil
	writeParquet(t, filepath.Join(dir, "listings.parquet"),
		noPrice,
		sold("VIN00000000000011", nil),
	)

	evs, err := NewParquetSource(dir).Read(context.Background(), domain.Filter{ProcessDate: calendar.DateKey(20250301)})
	require.NoError(t, err)
	require.Len(t, evs, 2)
	assert.Nil(t, evs[0].Price)
	assert.Nil(t, evs[0].Brand)
	assert.Nil(t, evs[1].SoldDate)
}

func TestParquetSourceMissingDir(t *testing.T) {
	_, err := NewParquetSource(filepath.Join(t.TempDir(), "missing")).Read(context.Background(), domain.Filter{})
	assert.Error(t, err)
}

type fakeObjectStore struct {
	objects map[string][]byte
}

func (f *fakeObjectStore) List(_ context.Context, prefix string) ([]string, error) {
	var names []string
	for name := range f.objects {
		if strings.HasPrefix(name, prefix) {
			names = append(names, name)
		}
	}
	sort.Sort(sort.Reverse(sort.StringSlice(names)))
	return names, nil
}

func (f *fakeObjectStore) Get(_ context.Context, name string) ([]byte, error) {
	return f.objects[name], nil
}

func encode(t *testing.T, evs ...domain.RawSaleEvent) []byte {
	t.Helper()
	records := make([]ListingRecord, 0, len(evs))
	for _, ev := range evs {
		records = append(records, RecordFromEvent(ev))
	}
	var buf bytes.Buffer
	require.NoError(t, parquet.Write(&buf, records))
	return buf.Bytes()
}

func TestGCSSourcePrefersPartitionAndSortsObjects(t *testing.T) {
	store := &fakeObjectStore{objects: map[string][]byte{
		"raw/listings/sold_date=2025-03-01/b.parquet": encode(t, sold("VIN00000000000002", day(2025, time.March, 1))),
		"raw/listings/sold_date=2025-03-01/a.parquet": encode(t, sold("VIN00000000000001", day(2025, time.March, 1))),
		"raw/listings/sold_date=2025-03-01/_SUCCESS":  nil,
		"raw/listings/sold_date=2025-03-02/a.parquet": encode(t, sold("VIN00000000000003", day(2025, time.March, 2))),
	}}

	src := NewGCSSource(store, "/raw/listings/")
	evs, err := src.Read(context.Background(), domain.Filter{ProcessDate: calendar.DateKey(20250301)})
	require.NoError(t, err)
	require.Len(t, evs, 2)
	assert.Equal(t, "VIN00000000000001", evs[0].VIN)
	assert.Equal(t, "VIN00000000000002", evs[1].VIN)
	assert.Equal(t, "gcs", src.Name())

	evs, err = src.Read(context.Background(), domain.Filter{ProcessDate: calendar.DateKey(20250305)})
	require.NoError(t, err)
	assert.Len(t, evs, 3)
}

func TestTableSourcePushesDownSoldDate(t *testing.T) {
	conn, err := db.NewTest()
	require.NoError(t, err)
	require.NoError(t, conn.AutoMigrate(&warehousedomain.RawVehicleListing{}))

	rows := []warehousedomain.RawVehicleListing{
		{VIN: strPtr("VIN00000000000002"), Manufacturer: "Honda", Model: "Civic", Status: "Sold", Price: price(18000), SoldDate: day(2025, time.March, 1)},
		{VIN: strPtr("VIN00000000000009"), Manufacturer: "Honda", Model: "Civic", Status: "sold", Price: price(18000), SoldDate: day(2025, time.March, 2)},
		{VIN: strPtr(" VIN00000000000001 "), Manufacturer: "Honda", Model: "Fit", Status: "sold", Price: price(14000), SoldDate: day(2025, time.March, 1)},
		{VIN: nil, Manufacturer: "Honda", Model: "Fit", Status: "sold", SoldDate: day(2025, time.March, 1)},
	}
	require.NoError(t, conn.Create(&rows).Error)

	src := NewTableSource(conn, "")
	evs, err := src.Read(context.Background(), domain.Filter{ProcessDate: calendar.DateKey(20250301)})
	require.NoError(t, err)
	require.Len(t, evs, 3)
	assert.Equal(t, "VIN00000000000002", evs[0].VIN)
	assert.Equal(t, domain.StatusSold, evs[0].Status)
	assert.Equal(t, "VIN00000000000001", evs[1].VIN)
	assert.Equal(t, "", evs[2].VIN)
	assert.Nil(t, evs[2].Price)
}

func TestNewSelectsSource(t *testing.T) {
	src, closer, err := New(context.Background(), config.RebuildConfig{Source: config.SourceParquet, ParquetDir: t.TempDir()}, nil)
	require.NoError(t, err)
	assert.Nil(t, closer)
	assert.Equal(t, "parquet", src.Name())

	src, _, err = New(context.Background(), config.RebuildConfig{Source: config.SourceTable}, nil)
	require.NoError(t, err)
	assert.Equal(t, "table", src.Name())

	_, _, err = New(context.Background(), config.RebuildConfig{Source: "kafka"}, nil)
	assert.Error(t, err)
}
