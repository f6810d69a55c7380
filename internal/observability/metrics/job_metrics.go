package metrics

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/prometheus/client_golang/prometheus"
	"gorm.io/gorm"
)

const (
	JobReasonDeadlineExceeded     = "deadline_exceeded"
	JobReasonDBLockTimeout        = "db_lock_timeout"
	JobReasonSerializationFailure = "serialization_failure"
	JobReasonUniqueViolation      = "unique_violation"
	JobReasonSource               = "source"
	JobReasonUnknown              = "unknown"
)

const (
	RowsOpDeleted  = "deleted"
	RowsOpInserted = "inserted"
)

// JobMetrics captures health signals of the sales fact rebuild jobs.
type JobMetrics struct {
	jobRuns      *prometheus.CounterVec
	jobDuration  *prometheus.HistogramVec
	jobTimeouts  *prometheus.CounterVec
	jobErrors    *prometheus.CounterVec
	jobSkipped   *prometheus.CounterVec
	rowsAdmitted prometheus.Counter
	rowsRejected *prometheus.CounterVec
	rowsWritten  *prometheus.CounterVec
	queueLag     prometheus.Observer
}

var (
	jobMetricsOnce sync.Once
	jobMetrics     *JobMetrics
)

// Jobs returns the singleton job metrics registry.
func Jobs() *JobMetrics {
	return JobsWithConfig(Config{})
}

// JobsWithConfig returns the singleton job metrics registry using config labels.
func JobsWithConfig(cfg Config) *JobMetrics {
	jobMetricsOnce.Do(func() {
		jobMetrics = newJobMetrics(prometheus.DefaultRegisterer, cfg)
	})
	return jobMetrics
}

// ResetJobMetricsForTest resets the job metrics singleton for tests.
func ResetJobMetricsForTest() {
	jobMetricsOnce = sync.Once{}
	jobMetrics = nil
}

func newJobMetrics(registerer prometheus.Registerer, cfg Config) *JobMetrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}
	constLabels := serviceLabels(cfg)

	jobRuns := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name:        "fluxdrive_job_runs_total",
		Help:        "Job runs by name.",
		ConstLabels: constLabels,
	}, []string{"job"})
	jobDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:        "fluxdrive_job_duration_seconds",
		Help:        "Job latency to keep fact partitions fresh.",
		Buckets:     []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120, 300, 600, 1800},
		ConstLabels: constLabels,
	}, []string{"job"})
	jobTimeouts := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name:        "fluxdrive_job_timeouts_total",
		Help:        "Job runs that hit their deadline.",
		ConstLabels: constLabels,
	}, []string{"job"})
	jobErrors := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name:        "fluxdrive_job_errors_total",
		Help:        "Job errors by low-cardinality reason.",
		ConstLabels: constLabels,
	}, []string{"job", "reason"})
	jobSkipped := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name:        "fluxdrive_job_skipped_total",
		Help:        "Job runs that found nothing to do.",
		ConstLabels: constLabels,
	}, []string{"job"})
	rowsAdmitted := prometheus.NewCounter(prometheus.CounterOpts{
		Name:        "fluxdrive_sales_fact_rows_admitted_total",
		Help:        "Raw sale rows that passed admission and quality checks.",
		ConstLabels: constLabels,
	})
	rowsRejected := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name:        "fluxdrive_sales_fact_rows_rejected_total",
		Help:        "Raw rows rejected by admission or quality rule.",
		ConstLabels: constLabels,
	}, []string{"rule"})
	rowsWritten := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name:        "fluxdrive_sales_fact_rows_written_total",
		Help:        "Fact rows deleted or inserted by partition rebuilds.",
		ConstLabels: constLabels,
	}, []string{"op"})
	queueLag := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:        "fluxdrive_rebuild_queue_lag_seconds",
		Help:        "Time a rebuild request waited before processing started.",
		Buckets:     []float64{0.1, 0.5, 1, 5, 10, 30, 60, 120, 300, 900, 1800, 3600},
		ConstLabels: constLabels,
	})

	registerer.MustRegister(
		jobRuns,
		jobDuration,
		jobTimeouts,
		jobErrors,
		jobSkipped,
		rowsAdmitted,
		rowsRejected,
		rowsWritten,
		queueLag,
	)

	return &JobMetrics{
		jobRuns:      jobRuns,
		jobDuration:  jobDuration,
		jobTimeouts:  jobTimeouts,
		jobErrors:    jobErrors,
		jobSkipped:   jobSkipped,
		rowsAdmitted: rowsAdmitted,
		rowsRejected: rowsRejected,
		rowsWritten:  rowsWritten,
		queueLag:     queueLag,
	}
}

func (m *JobMetrics) IncJobRun(job string) {
	if m == nil {
		return
	}
	m.jobRuns.WithLabelValues(job).Inc()
}

func (m *JobMetrics) ObserveJobDuration(job string, duration time.Duration) {
	if m == nil {
		return
	}
	m.jobDuration.WithLabelValues(job).Observe(duration.Seconds())
}

func (m *JobMetrics) IncJobTimeout(job string) {
	if m == nil {
		return
	}
	m.jobTimeouts.WithLabelValues(job).Inc()
}

// IncJobError increments the job error counter with classification.
func (m *JobMetrics) IncJobError(job string, err error) {
	if m == nil || err == nil {
		return
	}
	m.jobErrors.WithLabelValues(job, ClassifyJobReason(err)).Inc()
}

func (m *JobMetrics) IncJobSkipped(job string) {
	if m == nil {
		return
	}
	m.jobSkipped.WithLabelValues(job).Inc()
}

// AddRowsAdmitted counts rows handed to the fact writer.
func (m *JobMetrics) AddRowsAdmitted(count int) {
	if m == nil || count <= 0 {
		return
	}
	m.rowsAdmitted.Add(float64(count))
}

// AddRowsRejected counts rows dropped by a named rule.
func (m *JobMetrics) AddRowsRejected(rule string, count int) {
	if m == nil || count <= 0 {
		return
	}
	m.rowsRejected.WithLabelValues(rule).Add(float64(count))
}

// AddRowsWritten counts fact rows deleted or inserted.
func (m *JobMetrics) AddRowsWritten(op string, count int64) {
	if m == nil || count <= 0 {
		return
	}
	m.rowsWritten.WithLabelValues(op).Add(float64(count))
}

// ObserveQueueLag records how long a request sat in the queue.
func (m *JobMetrics) ObserveQueueLag(lag time.Duration) {
	if m == nil {
		return
	}
	if lag < 0 {
		lag = 0
	}
	m.queueLag.Observe(lag.Seconds())
}

// SourceError marks failures reading raw listings so they classify separately
// from database errors.
type SourceError struct {
	Err error
}

func (e *SourceError) Error() string { return "source: " + e.Err.Error() }
func (e *SourceError) Unwrap() error { return e.Err }

// ClassifyJobReason maps job errors to low-cardinality reasons.
func ClassifyJobReason(err error) string {
	if err == nil {
		return JobReasonUnknown
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return JobReasonDeadlineExceeded
	}
	var srcErr *SourceError
	if errors.As(err, &srcErr) {
		return JobReasonSource
	}
	if hasPGCode(err, "55P03") {
		return JobReasonDBLockTimeout
	}
	if hasPGCode(err, "40001") {
		return JobReasonSerializationFailure
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) || hasPGCode(err, "23505") {
		return JobReasonUniqueViolation
	}
	return JobReasonUnknown
}

// IsRetryable reports whether a failed rebuild is worth retrying as is.
func IsRetryable(err error) bool {
	switch ClassifyJobReason(err) {
	case JobReasonDeadlineExceeded, JobReasonDBLockTimeout, JobReasonSerializationFailure:
		return true
	default:
		return false
	}
}

func hasPGCode(err error, code string) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == code
	}
	return false
}
