package source

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/parquet-go/parquet-go"
	"github.com/smallbiznis/fluxdrive/internal/salesfact/domain"
)

const partitionPrefix = "sold_date="

var _ domain.Source = (*ParquetSource)(nil)

// ParquetSource reads listing exports from a local directory. When the
// directory is hive-partitioned by sold_date only the matching partition is
// read, otherwise every parquet file under the root.
type ParquetSource struct {
	Dir string
}

func NewParquetSource(dir string) *ParquetSource {
	return &ParquetSource{Dir: dir}
}

func (s *ParquetSource) Name() string { return "parquet" }

func (s *ParquetSource) Read(ctx context.Context, filter domain.Filter) ([]domain.RawSaleEvent, error) {
	files, err := s.files(filter)
	if err != nil {
		return nil, err
	}

	var out []domain.RawSaleEvent
	for _, path := range files {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		records, err := parquet.ReadFile[ListingRecord](path)
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", path, err)
		}
		out = append(out, events(records)...)
	}
	return out, nil
}

func (s *ParquetSource) files(filter domain.Filter) ([]string, error) {
	root := s.Dir
	if filter.ProcessDate.Valid() {
		partition := filepath.Join(s.Dir, partitionPrefix+filter.ProcessDate.String())
		if info, err := os.Stat(partition); err == nil && info.IsDir() {
			root = partition
		}
	}

	var files []string
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		if strings.EqualFold(filepath.Ext(path), ".parquet") {
			files = append(files, path)
		}
		return nil
	})
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("parquet dir %s: %w", s.Dir, err)
	}
	if err != nil {
		return nil, err
	}
	sort.Strings(files)
	return files, nil
}
