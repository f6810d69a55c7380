package scheduler

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/smallbiznis/fluxdrive/internal/calendar"
	"github.com/smallbiznis/fluxdrive/internal/clock"
	obsmetrics "github.com/smallbiznis/fluxdrive/internal/observability/metrics"
	salesfactdomain "github.com/smallbiznis/fluxdrive/internal/salesfact/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type mockSalesFacts struct {
	mock.Mock
}

func (m *mockSalesFacts) Run(ctx context.Context, processDate calendar.DateKey) (salesfactdomain.RunResult, error) {
	args := m.Called(ctx, processDate)
	return args.Get(0).(salesfactdomain.RunResult), args.Error(1)
}

func (m *mockSalesFacts) Backfill(ctx context.Context, from, to calendar.DateKey) ([]salesfactdomain.RunResult, error) {
	args := m.Called(ctx, from, to)
	return args.Get(0).([]salesfactdomain.RunResult), args.Error(1)
}

func (m *mockSalesFacts) EnqueueRebuild(ctx context.Context, processDate calendar.DateKey) (string, error) {
	args := m.Called(ctx, processDate)
	return args.String(0), args.Error(1)
}

func (m *mockSalesFacts) ProcessRebuildRequests(ctx context.Context, limit int) error {
	return m.Called(ctx, limit).Error(0)
}

func (m *mockSalesFacts) GetRebuildRequest(ctx context.Context, id string) (*salesfactdomain.RebuildRequest, error) {
	args := m.Called(ctx, id)
	req, _ := args.Get(0).(*salesfactdomain.RebuildRequest)
	return req, args.Error(1)
}

var testNow = time.Date(2025, time.March, 3, 3, 0, 0, 0, time.UTC)

func newTestScheduler(t *testing.T, svc salesfactdomain.Service, jobs *obsmetrics.JobMetrics) *Scheduler {
	t.Helper()
	node, err := snowflake.NewNode(1)
	require.NoError(t, err)
	s, err := New(Params{
		Log:        zap.NewNop(),
		SalesFacts: svc,
		Policy:     calendar.Policy{LagDays: 2, WindowDays: 30},
		Clock:      clock.NewFakeClock(testNow),
		GenID:      node,
		Jobs:       jobs,
		Config:     Config{QueueBatchSize: 7},
	})
	require.NoError(t, err)
	return s
}

func TestDailyRebuildUsesLaggedToday(t *testing.T) {
	svc := new(mockSalesFacts)
	svc.On("Run", mock.Anything, calendar.DateKey(20250301)).
		Return(salesfactdomain.RunResult{Inserted: 4}, nil).Once()
	svc.On("ProcessRebuildRequests", mock.Anything, 7).Return(nil).Once()

	s := newTestScheduler(t, svc, nil)
	require.NoError(t, s.RunOnce(context.Background()))
	svc.AssertExpectations(t)
}

func TestRunOnceJoinsJobErrors(t *testing.T) {
	svc := new(mockSalesFacts)
	svc.On("Run", mock.Anything, mock.Anything).
		Return(salesfactdomain.RunResult{}, errors.New("insert partition: disk full"))
	svc.On("ProcessRebuildRequests", mock.Anything, mock.Anything).Return(errors.New("queue unavailable"))

	s := newTestScheduler(t, svc, nil)
	err := s.RunOnce(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "sales_fact_daily: insert partition: disk full")
	assert.Contains(t, err.Error(), "sales_fact_queue: queue unavailable")
}

func TestNewRejectsInvalidSchedule(t *testing.T) {
	node, err := snowflake.NewNode(1)
	require.NoError(t, err)
	_, err = New(Params{
		Log:        zap.NewNop(),
		SalesFacts: new(mockSalesFacts),
		Clock:      clock.NewFakeClock(testNow),
		GenID:      node,
		Config:     Config{Schedule: "every day"},
	})
	assert.ErrorIs(t, err, ErrInvalidConfig)

	_, err = New(Params{Log: zap.NewNop()})
	assert.ErrorIs(t, err, ErrInvalidConfig)
}

func TestProvideConfigAppliesDefaults(t *testing.T) {
	cfg := DefaultConfig()
	assert.Equal(t, "0 3 * * *", cfg.Schedule)

	got := Config{QueueBatchSize: -1}.withDefaults()
	assert.Equal(t, 10, got.QueueBatchSize)
	assert.Equal(t, time.Minute, got.QueuePollEvery)
}

func TestStartAndStop(t *testing.T) {
	s := newTestScheduler(t, new(mockSalesFacts), nil)
	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, s.Start(ctx))
	cancel()
	require.NoError(t, s.Stop(context.Background()))
}

func TestRunJobTimeoutDoesNotReturnErrorAndIncrementsTimeout(t *testing.T) {
	registry := prometheus.NewRegistry()
	restore := swapPrometheusRegistry(registry)
	defer restore()

	obsmetrics.ResetJobMetricsForTest()
	jobs := obsmetrics.JobsWithConfig(obsmetrics.Config{
		ServiceName: "fluxdrive",
		Environment: "test",
	})

	s := newTestScheduler(t, new(mockSalesFacts), jobs)
	err := s.runJob(context.Background(), "timeout_job", 0, 5*time.Millisecond, func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	})
	require.NoError(t, err)

	labels := map[string]string{
		"service": "fluxdrive",
		"env":     "test",
		"job":     "timeout_job",
	}
	assert.Equal(t, 1.0, getCounterValue(t, registry, "fluxdrive_job_timeouts_total", labels))
	assert.Equal(t, 1.0, getCounterValue(t, registry, "fluxdrive_job_runs_total", labels))

	errorLabels := map[string]string{
		"service": "fluxdrive",
		"env":     "test",
		"job":     "timeout_job",
		"reason":  obsmetrics.JobReasonDeadlineExceeded,
	}
	assert.Equal(t, 1.0, getCounterValue(t, registry, "fluxdrive_job_errors_total", errorLabels))
}

func swapPrometheusRegistry(registry *prometheus.Registry) func() {
	oldRegisterer := prometheus.DefaultRegisterer
	oldGatherer := prometheus.DefaultGatherer
	prometheus.DefaultRegisterer = registry
	prometheus.DefaultGatherer = registry
	return func() {
		prometheus.DefaultRegisterer = oldRegisterer
		prometheus.DefaultGatherer = oldGatherer
		obsmetrics.ResetJobMetricsForTest()
	}
}

func getCounterValue(t *testing.T, registry *prometheus.Registry, name string, labels map[string]string) float64 {
	t.Helper()
	metricFamilies, err := registry.Gather()
	require.NoError(t, err)
	for _, mf := range metricFamilies {
		if mf.GetName() != name {
			continue
		}
		for _, metric := range mf.Metric {
			if !labelsMatch(metric, labels) {
				continue
			}
			require.NotNil(t, metric.Counter, "metric %s is not a counter", name)
			return metric.GetCounter().GetValue()
		}
	}
	t.Fatalf("metric %s with labels %v not found", name, labels)
	return 0
}

func labelsMatch(metric *dto.Metric, labels map[string]string) bool {
	if len(metric.Label) != len(labels) {
		return false
	}
	for _, label := range metric.Label {
		if labels[label.GetName()] != label.GetValue() {
			return false
		}
	}
	return true
}
