package source

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"path"
	"sort"
	"strings"

	"cloud.google.com/go/storage"
	"github.com/parquet-go/parquet-go"
	"github.com/smallbiznis/fluxdrive/internal/salesfact/domain"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"
)

// ObjectStore is the slice of an object storage bucket the GCS source needs.
type ObjectStore interface {
	List(ctx context.Context, prefix string) ([]string, error)
	Get(ctx context.Context, name string) ([]byte, error)
}

var _ domain.Source = (*GCSSource)(nil)

// GCSSource reads listing exports from a bucket using the same partition
// layout as ParquetSource.
type GCSSource struct {
	store  ObjectStore
	prefix string
}

func NewGCSSource(store ObjectStore, prefix string) *GCSSource {
	return &GCSSource{store: store, prefix: strings.Trim(prefix, "/")}
}

func (s *GCSSource) Name() string { return "gcs" }

func (s *GCSSource) Read(ctx context.Context, filter domain.Filter) ([]domain.RawSaleEvent, error) {
	names, err := s.objects(ctx, filter)
	if err != nil {
		return nil, err
	}

	var out []domain.RawSaleEvent
	for _, name := range names {
		data, err := s.store.Get(ctx, name)
		if err != nil {
			return nil, fmt.Errorf("get %s: %w", name, err)
		}
		records, err := parquet.Read[ListingRecord](bytes.NewReader(data), int64(len(data)))
		if err != nil {
			return nil, fmt.Errorf("decode %s: %w", name, err)
		}
		out = append(out, events(records)...)
	}
	return out, nil
}

func (s *GCSSource) objects(ctx context.Context, filter domain.Filter) ([]string, error) {
	var names []string
	var err error
	if filter.ProcessDate.Valid() {
		names, err = s.store.List(ctx, s.join(partitionPrefix+filter.ProcessDate.String())+"/")
		if err != nil {
			return nil, err
		}
	}
	if len(names) == 0 {
		names, err = s.store.List(ctx, s.join(""))
		if err != nil {
			return nil, err
		}
	}

	out := names[:0]
	for _, n := range names {
		if strings.HasSuffix(strings.ToLower(n), ".parquet") {
			out = append(out, n)
		}
	}
	sort.Strings(out)
	return out, nil
}

func (s *GCSSource) join(elem string) string {
	if s.prefix == "" {
		return elem
	}
	if elem == "" {
		return s.prefix + "/"
	}
	return path.Join(s.prefix, elem)
}

// BucketStore is the GCS backed ObjectStore.
type BucketStore struct {
	client *storage.Client
	bucket string
}

// NewBucketStore opens a GCS client. credentialsFile may be empty to use
// application default credentials.
func NewBucketStore(ctx context.Context, bucket, credentialsFile string) (*BucketStore, error) {
	opts := []option.ClientOption{option.WithScopes(storage.ScopeReadOnly)}
	if credentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(credentialsFile))
	}
	client, err := storage.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("gcs client: %w", err)
	}
	return &BucketStore{client: client, bucket: bucket}, nil
}

func (b *BucketStore) List(ctx context.Context, prefix string) ([]string, error) {
	var names []string
	it := b.client.Bucket(b.bucket).Objects(ctx, &storage.Query{Prefix: prefix})
	for {
		attrs, err := it.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("list gs://%s/%s: %w", b.bucket, prefix, err)
		}
		names = append(names, attrs.Name)
	}
	return names, nil
}

func (b *BucketStore) Get(ctx context.Context, name string) ([]byte, error) {
	rc, err := b.client.Bucket(b.bucket).Object(name).NewReader(ctx)
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	return io.ReadAll(rc)
}

func (b *BucketStore) Close() error {
	return b.client.Close()
}
