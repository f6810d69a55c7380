package source

import (
	"context"
	"fmt"

	"github.com/smallbiznis/fluxdrive/internal/config"
	"github.com/smallbiznis/fluxdrive/internal/salesfact/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	Lifecycle fx.Lifecycle
	Config    config.Config
	DB        *gorm.DB
	Log       *zap.Logger
}

// Provide builds the raw event source selected by REBUILD_SOURCE.
func Provide(p Params) (domain.Source, error) {
	src, closer, err := New(context.Background(), p.Config.Rebuild, p.DB)
	if err != nil {
		return nil, err
	}
	if closer != nil {
		p.Lifecycle.Append(fx.Hook{
			OnStop: func(context.Context) error { return closer() },
		})
	}
	p.Log.Named("salesfact.source").Info("raw event source configured",
		zap.String("source", src.Name()),
	)
	return src, nil
}

// New returns the source for cfg.Source and an optional close func.
func New(ctx context.Context, cfg config.RebuildConfig, db *gorm.DB) (domain.Source, func() error, error) {
	switch cfg.Source {
	case config.SourceParquet:
		return NewParquetSource(cfg.ParquetDir), nil, nil
	case config.SourceGCS:
		store, err := NewBucketStore(ctx, cfg.GCSBucket, cfg.GCSCredentials)
		if err != nil {
			return nil, nil, err
		}
		return NewGCSSource(store, cfg.GCSPrefix), store.Close, nil
	case config.SourceTable:
		return NewTableSource(db, cfg.StagingTable), nil, nil
	default:
		return nil, nil, fmt.Errorf("unsupported source %q", cfg.Source)
	}
}
