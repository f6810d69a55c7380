package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/fluxdrive/internal/calendar"
	"github.com/smallbiznis/fluxdrive/internal/salesfact/domain"
	warehousedomain "github.com/smallbiznis/fluxdrive/internal/warehouse/domain"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const defaultQueueBatchSize = 10

// EnqueueRebuild stores a partition rebuild request for async processing.
func (s *Service) EnqueueRebuild(ctx context.Context, processDate calendar.DateKey) (string, error) {
	if !processDate.Valid() {
		return "", fmt.Errorf("%w: %d", domain.ErrInvalidProcessDate, processDate)
	}
	if s.genID == nil {
		return "", errors.New("missing_id_generator")
	}
	id := s.genID.Generate()
	now := s.clock.Now().UTC()

	if err := s.db.WithContext(ctx).Exec(
		`INSERT INTO sales_fact_rebuild_requests (id, process_date, status, created_at)
		 VALUES (?, ?, ?, ?)`,
		id,
		processDate.Int(),
		domain.RequestStatusPending,
		now,
	).Error; err != nil {
		return "", err
	}
	s.metrics.RecordRebuildRequest(ctx, domain.RequestStatusPending)
	s.log.Info("sales_fact.rebuild.enqueued",
		zap.String("request_id", id.String()),
		zap.String("process_date", processDate.String()),
	)
	return id.String(), nil
}

// ProcessRebuildRequests runs up to limit pending requests, oldest first.
func (s *Service) ProcessRebuildRequests(ctx context.Context, limit int) error {
	if limit <= 0 {
		limit = defaultQueueBatchSize
	}

	var rows []warehousedomain.SalesFactRebuildRequest
	if err := s.db.WithContext(ctx).
		Where("status = ?", domain.RequestStatusPending).
		Order("created_at ASC").
		Order("id ASC").
		Limit(limit).
		Find(&rows).Error; err != nil {
		return err
	}

	var jobErr error
	for _, row := range rows {
		if err := ctx.Err(); err != nil {
			return errors.Join(jobErr, err)
		}

		if err := s.processRebuildRequest(ctx, row); err != nil {
			jobErr = errors.Join(jobErr, err)
			s.log.Warn("failed to rebuild sales facts", zap.Error(err), zap.String("request_id", row.ID.String()))
		}
	}

	return jobErr
}

func (s *Service) processRebuildRequest(ctx context.Context, row warehousedomain.SalesFactRebuildRequest) error {
	rebuildCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.runTimeout)
	defer cancel()

	now := s.clock.Now().UTC()
	result := s.db.WithContext(rebuildCtx).Exec(
		`UPDATE sales_fact_rebuild_requests
		 SET status = ?, started_at = ?
		 WHERE id = ? AND status = ?`,
		domain.RequestStatusProcessing,
		now,
		row.ID,
		domain.RequestStatusPending,
	)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		// Claimed by another worker.
		return nil
	}
	s.jobs.ObserveQueueLag(now.Sub(row.CreatedAt))

	res, err := s.Run(rebuildCtx, calendar.DateKey(row.ProcessDate))
	stats, marshalErr := json.Marshal(res)
	if marshalErr != nil {
		stats = nil
	}
	completedAt := s.clock.Now().UTC()
	if err != nil {
		s.metrics.RecordRebuildRequest(ctx, domain.RequestStatusFailed)
		return s.db.WithContext(rebuildCtx).Exec(
			`UPDATE sales_fact_rebuild_requests
			 SET status = ?, stats = ?, error = ?, completed_at = ?
			 WHERE id = ?`,
			domain.RequestStatusFailed,
			datatypes.JSON(stats),
			errorSummary(err),
			completedAt,
			row.ID,
		).Error
	}

	s.metrics.RecordRebuildRequest(ctx, domain.RequestStatusCompleted)
	return s.db.WithContext(rebuildCtx).Exec(
		`UPDATE sales_fact_rebuild_requests
		 SET status = ?, stats = ?, completed_at = ?
		 WHERE id = ?`,
		domain.RequestStatusCompleted,
		datatypes.JSON(stats),
		completedAt,
		row.ID,
	).Error
}

// GetRebuildRequest returns a queued request by id.
func (s *Service) GetRebuildRequest(ctx context.Context, id string) (*domain.RebuildRequest, error) {
	parsed, err := snowflake.ParseString(strings.TrimSpace(id))
	if err != nil {
		return nil, domain.ErrInvalidRequestID
	}

	var row warehousedomain.SalesFactRebuildRequest
	err = s.db.WithContext(ctx).Where("id = ?", parsed).Take(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ErrRequestNotFound
	}
	if err != nil {
		return nil, err
	}

	out := &domain.RebuildRequest{
		ID:          row.ID.String(),
		ProcessDate: calendar.DateKey(row.ProcessDate).String(),
		Status:      row.Status,
		Error:       row.Error,
		CreatedAt:   row.CreatedAt,
		StartedAt:   row.StartedAt,
		CompletedAt: row.CompletedAt,
	}
	if len(row.Stats) > 0 {
		var stats domain.RunResult
		if err := json.Unmarshal(row.Stats, &stats); err == nil {
			out.Stats = &stats
		}
	}
	return out, nil
}

func errorSummary(err error) string {
	if err == nil {
		return ""
	}
	value := strings.TrimSpace(err.Error())
	if value == "" {
		return "unknown_error"
	}
	if len(value) > 256 {
		return value[:256]
	}
	return value
}
