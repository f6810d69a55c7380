package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/fluxdrive/internal/calendar"
	"github.com/smallbiznis/fluxdrive/internal/clock"
	"github.com/smallbiznis/fluxdrive/internal/config"
	obslogger "github.com/smallbiznis/fluxdrive/internal/observability/logger"
	obsmetrics "github.com/smallbiznis/fluxdrive/internal/observability/metrics"
	"github.com/smallbiznis/fluxdrive/internal/salesfact/domain"
	warehousedomain "github.com/smallbiznis/fluxdrive/internal/warehouse/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	jobRebuild = "sales_fact_rebuild"

	defaultInsertBatchSize = 500
	defaultBackfillMaxDays = 366
	defaultRunTimeout      = 30 * time.Minute
)

type Params struct {
	fx.In

	DB       *gorm.DB
	Log      *zap.Logger
	Config   config.Config
	Clock    clock.Clock
	Source   domain.Source
	Calendar *calendar.Repository
	GenID    *snowflake.Node        `optional:"true"`
	Jobs     *obsmetrics.JobMetrics `optional:"true"`
	Metrics  *obsmetrics.Metrics    `optional:"true"`
}

type Service struct {
	db       *gorm.DB
	log      *zap.Logger
	clock    clock.Clock
	source   domain.Source
	calendar *calendar.Repository
	genID    *snowflake.Node
	jobs     *obsmetrics.JobMetrics
	metrics  *obsmetrics.Metrics

	batchSize  int
	maxDays    int
	runTimeout time.Duration
}

func NewService(p Params) domain.Service {
	return newService(p)
}

func newService(p Params) *Service {
	clk := p.Clock
	if clk == nil {
		clk = clock.NewSystemClock()
	}
	cal := p.Calendar
	if cal == nil {
		cal = calendar.NewRepository(p.DB)
	}
	s := &Service{
		db:         p.DB,
		log:        p.Log.Named("salesfact"),
		clock:      clk,
		source:     p.Source,
		calendar:   cal,
		genID:      p.GenID,
		jobs:       p.Jobs,
		metrics:    p.Metrics,
		batchSize:  p.Config.Rebuild.InsertBatchSize,
		maxDays:    p.Config.Rebuild.BackfillMaxDays,
		runTimeout: p.Config.Rebuild.RunTimeout,
	}
	if s.batchSize <= 0 {
		s.batchSize = defaultInsertBatchSize
	}
	if s.maxDays <= 0 {
		s.maxDays = defaultBackfillMaxDays
	}
	if s.runTimeout <= 0 {
		s.runTimeout = defaultRunTimeout
	}
	return s
}

// Run rebuilds the fact_sales_events partition for processDate from the raw
// source. Rerunning with unchanged input leaves the partition identical.
func (s *Service) Run(ctx context.Context, processDate calendar.DateKey) (domain.RunResult, error) {
	started := s.clock.Now()
	result := domain.RunResult{
		ProcessDate: processDate,
		Source:      s.source.Name(),
		Rejected:    make(map[string]int, len(domain.Rules)),
	}
	for _, rule := range domain.Rules {
		result.Rejected[rule] = 0
	}

	s.jobs.IncJobRun(jobRebuild)
	err := s.run(ctx, processDate, started, &result)
	result.DurationMS = s.clock.Now().Sub(started).Milliseconds()
	s.jobs.ObserveJobDuration(jobRebuild, time.Duration(result.DurationMS)*time.Millisecond)

	if err != nil {
		s.jobs.IncJobError(jobRebuild, err)
		s.logger(ctx, processDate).Error("sales_fact.rebuild.failed",
			zap.String("reason", obsmetrics.ClassifyJobReason(err)),
			zap.Error(err),
		)
		return result, err
	}
	if result.Skipped {
		s.jobs.IncJobSkipped(jobRebuild)
	}
	return result, nil
}

func (s *Service) run(ctx context.Context, processDate calendar.DateKey, now time.Time, result *domain.RunResult) error {
	if !processDate.Valid() {
		return fmt.Errorf("%w: %d", domain.ErrInvalidProcessDate, processDate)
	}

	events, err := s.source.Read(ctx, domain.Filter{ProcessDate: processDate})
	if err != nil {
		return &obsmetrics.SourceError{Err: fmt.Errorf("read %s: %w", s.source.Name(), err)}
	}
	result.Read = len(events)

	admitted := admit(events, processDate, calendar.FromTime(now), result.Rejected)
	result.Admitted = len(admitted)
	log := s.logger(ctx, processDate)

	s.jobs.AddRowsAdmitted(result.Admitted)
	fields := []zap.Field{
		zap.String("source", result.Source),
		zap.Int("read", result.Read),
		zap.Int("admitted", result.Admitted),
	}
	for _, rule := range domain.Rules {
		s.jobs.AddRowsRejected(rule, result.Rejected[rule])
		fields = append(fields, zap.Int("rejected_"+rule, result.Rejected[rule]))
	}
	log.Info("sales_fact.rebuild.filtered", fields...)

	if len(admitted) == 0 {
		result.Skipped = true
		log.Info("sales_fact.rebuild.skipped", zap.String("reason", "no_admitted_rows"))
		return nil
	}

	if _, err := s.calendar.EnsureRange(ctx, processDate, processDate); err != nil {
		return err
	}

	vehicles, err := s.vehicleKeys(ctx, admitted)
	if err != nil {
		return fmt.Errorf("load dim_vehicle: %w", err)
	}

	facts, duplicates, unmatched := buildFacts(admitted, processDate, vehicles)
	result.Duplicates = duplicates
	result.Unmatched = unmatched

	deleted, inserted, err := s.replacePartition(ctx, processDate, facts)
	if err != nil {
		return err
	}
	result.Deleted = deleted
	result.Inserted = inserted
	s.jobs.AddRowsWritten(obsmetrics.RowsOpDeleted, deleted)
	s.jobs.AddRowsWritten(obsmetrics.RowsOpInserted, inserted)

	log.Info("sales_fact.rebuild.completed",
		zap.Int64("deleted", deleted),
		zap.Int64("inserted", inserted),
		zap.Int("duplicates", duplicates),
		zap.Int("unmatched_vehicles", unmatched),
	)
	return nil
}

func (s *Service) logger(ctx context.Context, processDate calendar.DateKey) *zap.Logger {
	return obslogger.WithProcessDate(obslogger.WithContext(ctx, s.log), processDate.String())
}

// admit applies the admission and quality rules in order and counts each
// rejected row under the first rule it fails.
func admit(events []domain.RawSaleEvent, processDate, today calendar.DateKey, rejected map[string]int) []domain.RawSaleEvent {
	out := make([]domain.RawSaleEvent, 0, len(events))
	for _, ev := range events {
		rule := ""
		switch {
		case ev.VIN == "":
			rule = domain.RuleNullVIN
		case ev.Price == nil:
			rule = domain.RuleNullPrice
		case ev.SoldDate == nil:
			rule = domain.RuleNullSoldDate
		case ev.Status != domain.StatusSold:
			rule = domain.RuleStatusMismatch
		case calendar.FromTime(*ev.SoldDate) != processDate:
			rule = domain.RuleDateMismatch
		case calendar.FromTime(*ev.SoldDate) > today:
			rule = domain.RuleFutureSoldDate
		}
		if rule != "" {
			rejected[rule]++
			continue
		}
		out = append(out, ev)
	}
	return out
}

type vehicleDescriptor struct {
	manufacturer string
	model        string
	brand        string
	color        string
}

// descriptorOf returns false when brand or color is missing. Those rows
// cannot equal any dimension row.
func descriptorOf(manufacturer, model string, brand, color *string) (vehicleDescriptor, bool) {
	if brand == nil || color == nil {
		return vehicleDescriptor{}, false
	}
	return vehicleDescriptor{manufacturer: manufacturer, model: model, brand: *brand, color: *color}, true
}

func (s *Service) vehicleKeys(ctx context.Context, events []domain.RawSaleEvent) (map[vehicleDescriptor]int64, error) {
	seen := make(map[string]struct{})
	manufacturers := make([]string, 0)
	for _, ev := range events {
		if _, ok := seen[ev.Manufacturer]; ok {
			continue
		}
		seen[ev.Manufacturer] = struct{}{}
		manufacturers = append(manufacturers, ev.Manufacturer)
	}

	var rows []warehousedomain.DimVehicle
	if err := s.db.WithContext(ctx).
		Where("manufacturer IN ?", manufacturers).
		Find(&rows).Error; err != nil {
		return nil, err
	}

	keys := make(map[vehicleDescriptor]int64, len(rows))
	for _, row := range rows {
		d, ok := descriptorOf(row.Manufacturer, row.Model, row.Brand, row.Color)
		if !ok {
			continue
		}
		keys[d] = row.VehicleKey
	}
	return keys, nil
}

// buildFacts maps admitted rows to facts keeping the first occurrence of
// each VIN in source order.
func buildFacts(events []domain.RawSaleEvent, processDate calendar.DateKey, vehicles map[vehicleDescriptor]int64) ([]warehousedomain.FactSalesEvent, int, int) {
	facts := make([]warehousedomain.FactSalesEvent, 0, len(events))
	seen := make(map[string]struct{}, len(events))
	duplicates, unmatched := 0, 0

	for _, ev := range events {
		if _, ok := seen[ev.VIN]; ok {
			duplicates++
			continue
		}
		seen[ev.VIN] = struct{}{}

		fact := warehousedomain.FactSalesEvent{
			SaleDateKey: processDate.Int(),
			VIN:         ev.VIN,
			SalePrice:   *ev.Price,
			SaleMileage: ev.Mileage,
			AddedDate:   dateOnly(ev.AddedDate),
			SoldDate:    dateOnly(ev.SoldDate),
		}
		if ev.AddedDate != nil {
			fact.DaysToSell = calendar.DaysBetween(*ev.AddedDate, *ev.SoldDate)
		}
		if d, ok := descriptorOf(ev.Manufacturer, ev.Model, ev.Brand, ev.Color); ok {
			if key, found := vehicles[d]; found {
				k := key
				fact.VehicleKey = &k
			}
		}
		if fact.VehicleKey == nil {
			unmatched++
		}
		facts = append(facts, fact)
	}
	return facts, duplicates, unmatched
}

func dateOnly(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	d := calendar.FromTime(*t).Time()
	return &d
}

// replacePartition swaps the partition's rows inside one transaction so
// readers see either the old or the new partition.
func (s *Service) replacePartition(ctx context.Context, processDate calendar.DateKey, facts []warehousedomain.FactSalesEvent) (int64, int64, error) {
	var deleted, inserted int64
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Where("sale_date_key = ?", processDate.Int()).Delete(&warehousedomain.FactSalesEvent{})
		if res.Error != nil {
			return fmt.Errorf("delete partition: %w", res.Error)
		}
		deleted = res.RowsAffected

		res = tx.CreateInBatches(&facts, s.batchSize)
		if res.Error != nil {
			return fmt.Errorf("insert partition: %w", res.Error)
		}
		inserted = res.RowsAffected
		return nil
	})
	if err != nil {
		return 0, 0, err
	}
	return deleted, inserted, nil
}

// Backfill runs each date in [from, to] in order. A failed date does not
// stop later ones; the failures are joined.
func (s *Service) Backfill(ctx context.Context, from, to calendar.DateKey) ([]domain.RunResult, error) {
	if !from.Valid() || !to.Valid() || from > to {
		return nil, fmt.Errorf("%w: %s..%s", domain.ErrInvalidBackfill, from, to)
	}
	days := calendar.Days(from, to)
	if len(days) > s.maxDays {
		return nil, fmt.Errorf("%w: %d days exceeds limit of %d", domain.ErrInvalidBackfill, len(days), s.maxDays)
	}

	results := make([]domain.RunResult, 0, len(days))
	var jobErr error
	for _, key := range days {
		if err := ctx.Err(); err != nil {
			return results, errors.Join(jobErr, err)
		}
		res, err := s.Run(ctx, key)
		results = append(results, res)
		if err != nil {
			jobErr = errors.Join(jobErr, fmt.Errorf("%s: %w", key, err))
		}
	}
	return results, jobErr
}
