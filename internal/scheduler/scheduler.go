package scheduler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/robfig/cron/v3"
	"github.com/smallbiznis/fluxdrive/internal/calendar"
	"github.com/smallbiznis/fluxdrive/internal/clock"
	"github.com/smallbiznis/fluxdrive/internal/lock"
	obsmetrics "github.com/smallbiznis/fluxdrive/internal/observability/metrics"
	salesfactdomain "github.com/smallbiznis/fluxdrive/internal/salesfact/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

const (
	jobDailyRebuild = "sales_fact_daily"
	jobQueue        = "sales_fact_queue"

	queueLockKey = "sales_fact:queue"
)

var ErrInvalidConfig = errors.New("invalid_scheduler_config")

type Params struct {
	fx.In

	Log        *zap.Logger
	SalesFacts salesfactdomain.Service
	Policy     calendar.Policy
	Clock      clock.Clock
	GenID      *snowflake.Node
	Locker     *lock.Locker           `optional:"true"`
	Jobs       *obsmetrics.JobMetrics `optional:"true"`
	Config     Config                 `optional:"true"`
}

type Scheduler struct {
	log        *zap.Logger
	cfg        Config
	genID      *snowflake.Node
	clock      clock.Clock
	policy     calendar.Policy
	salesFacts salesfactdomain.Service
	locker     *lock.Locker
	jobs       *obsmetrics.JobMetrics

	cron *cron.Cron
}

func New(p Params) (*Scheduler, error) {
	if p.Log == nil || p.SalesFacts == nil || p.GenID == nil || p.Clock == nil {
		return nil, ErrInvalidConfig
	}
	cfg := p.Config.withDefaults()
	if _, err := cron.ParseStandard(cfg.Schedule); err != nil {
		return nil, fmt.Errorf("%w: schedule %q: %v", ErrInvalidConfig, cfg.Schedule, err)
	}
	return &Scheduler{
		log:        p.Log.Named("scheduler").With(zap.String("component", "scheduler")),
		cfg:        cfg,
		genID:      p.GenID,
		clock:      p.Clock,
		policy:     p.Policy,
		salesFacts: p.SalesFacts,
		locker:     p.Locker,
		jobs:       p.Jobs,
	}, nil
}

func (s *Scheduler) runJob(
	parent context.Context,
	name string,
	batchSize int,
	timeout time.Duration,
	fn func(ctx context.Context) error,
) error {
	start := s.clock.Now()
	ctx, cancel := context.WithTimeout(parent, timeout)
	defer cancel()

	ctx, run := s.startJobRun(ctx, name, batchSize)
	s.logJobStart(ctx, run)
	log := s.logger(ctx).With(zap.String("run_id", run.runID))
	s.jobs.IncJobRun(name)

	err := fn(ctx)
	s.jobs.ObserveJobDuration(name, s.clock.Now().Sub(start))
	if err != nil {
		run.IncError()
	}
	s.logJobFinish(ctx, run)
	if err == nil {
		return nil
	}

	isTimeout := errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled)
	if isTimeout {
		s.jobs.IncJobTimeout(name)
	}
	s.jobs.IncJobError(name, err)
	if isTimeout {
		log.Warn("job timed out",
			zap.Duration("timeout", timeout),
			zap.Error(err),
		)
		return nil
	}

	return fmt.Errorf("%s: %w", name, err)
}

// DailyRebuildJob rebuilds the partition for the dashboard's current day.
func (s *Scheduler) DailyRebuildJob(ctx context.Context) error {
	return s.RebuildDate(ctx, s.policy.Today(s.clock.Now()))
}

// RebuildDate runs one partition rebuild under the per-date lock. Without
// redis the lock is skipped.
func (s *Scheduler) RebuildDate(ctx context.Context, key calendar.DateKey) error {
	run := jobRunFromContext(ctx)
	release, ok, err := s.acquire(ctx, "sales_fact:"+key.String())
	if err != nil {
		return err
	}
	if !ok {
		s.jobs.IncJobSkipped(jobDailyRebuild)
		s.logger(ctx).Info("scheduler.rebuild.locked",
			zap.String("process_date", key.String()),
		)
		return nil
	}
	defer release()

	res, err := s.salesFacts.Run(ctx, key)
	if err != nil {
		return err
	}
	run.AddProcessed(int(res.Inserted))
	return nil
}

// QueueJob drains pending rebuild requests. Only one scheduler instance
// drains at a time.
func (s *Scheduler) QueueJob(ctx context.Context) error {
	release, ok, err := s.acquire(ctx, queueLockKey)
	if err != nil {
		return err
	}
	if !ok {
		s.jobs.IncJobSkipped(jobQueue)
		return nil
	}
	defer release()

	return s.salesFacts.ProcessRebuildRequests(ctx, s.cfg.QueueBatchSize)
}

func (s *Scheduler) acquire(ctx context.Context, key string) (func(), bool, error) {
	if !s.locker.Enabled() {
		return func() {}, true, nil
	}
	token, ok, err := s.locker.TryLock(ctx, key, s.cfg.LockTTL)
	if err != nil {
		return nil, false, fmt.Errorf("acquire lock %s: %w", key, err)
	}
	if !ok {
		return nil, false, nil
	}
	return func() {
		releaseCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		if err := s.locker.Release(releaseCtx, key, token); err != nil {
			s.logger(ctx).Warn("failed to release lock", zap.String("key", key), zap.Error(err))
		}
	}, true, nil
}

// RunOnce executes every job a single time. Used by tests and manual runs.
func (s *Scheduler) RunOnce(parent context.Context) error {
	var err error
	err = errors.Join(err, s.runJob(parent, jobDailyRebuild, 1, s.cfg.RunTimeout, s.DailyRebuildJob))
	err = errors.Join(err, s.runJob(parent, jobQueue, s.cfg.QueueBatchSize, s.cfg.RunTimeout, s.QueueJob))
	return err
}

// Start registers the cron entry and starts the queue poller. Both stop
// when ctx is cancelled.
func (s *Scheduler) Start(ctx context.Context) error {
	s.cron = cron.New(cron.WithLocation(time.UTC))
	_, err := s.cron.AddFunc(s.cfg.Schedule, func() {
		if err := s.runJob(ctx, jobDailyRebuild, 1, s.cfg.RunTimeout, s.DailyRebuildJob); err != nil {
			s.log.Warn("daily rebuild failed", zap.Error(err))
		}
	})
	if err != nil {
		return err
	}
	s.cron.Start()
	go s.pollQueue(ctx)

	s.log.Info("scheduler started",
		zap.String("schedule", s.cfg.Schedule),
		zap.Duration("queue_poll_every", s.cfg.QueuePollEvery),
		zap.Bool("locks_enabled", s.locker.Enabled()),
	)
	return nil
}

// Stop waits for a running cron job to finish or ctx to expire.
func (s *Scheduler) Stop(ctx context.Context) error {
	if s.cron == nil {
		return nil
	}
	select {
	case <-s.cron.Stop().Done():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Scheduler) pollQueue(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.QueuePollEvery)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
		if err := s.runJob(ctx, jobQueue, s.cfg.QueueBatchSize, s.cfg.RunTimeout, s.QueueJob); err != nil {
			s.log.Warn("rebuild queue run failed", zap.Error(err))
		}
	}
}
