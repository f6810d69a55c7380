package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("DATABASE_TYPE", "")
	t.Setenv("DASHBOARD_LAG_DAYS", "")
	t.Setenv("REBUILD_SOURCE", "")

	cfg := Load()

	assert.Equal(t, "postgres", cfg.DBType)
	assert.Equal(t, 2, cfg.Dashboard.LagDays)
	assert.Equal(t, 30, cfg.Dashboard.WindowDays)
	assert.Equal(t, SourceParquet, cfg.Rebuild.Source)
	require.NoError(t, cfg.Validate())
}

func TestValidateRejectsBadValues(t *testing.T) {
	cfg := Load()
	cfg.DBType = "oracle"
	cfg.Dashboard.LagDays = -1
	cfg.Rebuild.Source = SourceGCS
	cfg.Rebuild.GCSBucket = ""

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "DATABASE_TYPE")
	assert.Contains(t, err.Error(), "DASHBOARD_LAG_DAYS")
	assert.Contains(t, err.Error(), "REBUILD_GCS_BUCKET")
}

func TestParseListTrimsEmptyEntries(t *testing.T) {
	assert.Equal(t, []string{"a", "b"}, parseList(" a, ,b ,"))
}

func TestDashboardConfigHolderDefaultsWithoutFile(t *testing.T) {
	t.Chdir(t.TempDir())

	holder, err := NewDashboardConfigHolder(Config{}, zap.NewNop())
	require.NoError(t, err)
	assert.Equal(t, DefaultDashboardTuning(), holder.Get())
}

func TestValidateDashboardTuning(t *testing.T) {
	tuning := DefaultDashboardTuning()
	require.NoError(t, validateDashboardTuning(tuning))

	tuning.MaxSalePrice = 0
	tuning.Concurrency = 0
	assert.Error(t, validateDashboardTuning(tuning))
}
