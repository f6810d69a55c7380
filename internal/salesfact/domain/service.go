package domain

import (
	"context"
	"errors"

	"github.com/smallbiznis/fluxdrive/internal/calendar"
)

// Source reads raw listing rows for a processing date.
type Source interface {
	Name() string
	Read(ctx context.Context, filter Filter) ([]RawSaleEvent, error)
}

// Service rebuilds fact_sales_events one date partition at a time.
type Service interface {
	Run(ctx context.Context, processDate calendar.DateKey) (RunResult, error)
	Backfill(ctx context.Context, from, to calendar.DateKey) ([]RunResult, error)

	EnqueueRebuild(ctx context.Context, processDate calendar.DateKey) (string, error)
	ProcessRebuildRequests(ctx context.Context, limit int) error
	GetRebuildRequest(ctx context.Context, id string) (*RebuildRequest, error)
}

var (
	ErrInvalidProcessDate = errors.New("invalid_process_date")
	ErrInvalidBackfill    = errors.New("invalid_backfill_range")
	ErrRequestNotFound    = errors.New("rebuild_request_not_found")
	ErrInvalidRequestID   = errors.New("invalid_rebuild_request_id")
)
