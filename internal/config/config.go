package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/fx"
)

var Module = fx.Module("config",
	fx.Provide(Provide),
)

// Config holds application configuration.
type Config struct {
	AppName     string
	AppVersion  string
	Environment string

	OTLPEndpoint string

	HTTPAddr    string
	CORSOrigins []string

	DBType            string
	DBURL             string
	DBHost            string
	DBPort            string
	DBName            string
	DBUser            string
	DBPassword        string
	DBSSLMode         string
	DBMaxIdleConn     int
	DBMaxOpenConn     int
	DBConnMaxLifetime int
	DBConnMaxIdleTime int
	DBAutoMigrate     bool

	Dashboard DashboardConfig
	Rebuild   RebuildConfig
	Redis     RedisConfig
}

// DashboardConfig controls the temporal policy shared by every dashboard metric.
type DashboardConfig struct {
	// LagDays is subtracted from the current date to obtain the dashboard's "today".
	LagDays int
	// WindowDays is the length of the trailing window used by windowed metrics.
	WindowDays int
	// MaxLookupDays bounds how far back the resolver searches for data. 0 means unbounded.
	MaxLookupDays int
	// ConfigPath is an extra directory searched for dashboard.yml.
	ConfigPath string
}

// RebuildConfig configures the sales fact rebuild job and its raw event source.
type RebuildConfig struct {
	Enabled          bool
	Source           string
	ParquetDir       string
	GCSBucket        string
	GCSPrefix        string
	GCSCredentials   string
	StagingTable     string
	InsertBatchSize  int
	Schedule         string
	QueuePollEvery   time.Duration
	QueueBatchSize   int
	LockTTL          time.Duration
	RunTimeout       time.Duration
	BackfillMaxDays  int
	CalendarFromDate string
	CalendarToDate   string
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

const (
	SourceParquet = "parquet"
	SourceGCS     = "gcs"
	SourceTable   = "table"
)

// Load loads configuration from environment variables and .env file.
func Load() Config {
	_ = godotenv.Load()

	return Config{
		AppName:      getenv("APP_SERVICE", "fluxdrive"),
		AppVersion:   getenv("APP_VERSION", "0.1.0"),
		Environment:  getenv("ENVIRONMENT", "development"),
		OTLPEndpoint: getenv("OTLP_ENDPOINT", "localhost:4317"),
		HTTPAddr:     getenv("HTTP_ADDR", ":9515"),
		CORSOrigins:  parseList(getenv("CORS_ALLOWED_ORIGINS", "http://localhost:9517,http://127.0.0.1:9517")),

		DBType:            strings.ToLower(getenv("DATABASE_TYPE", "postgres")),
		DBURL:             strings.TrimSpace(getenv("DATABASE_URL", "")),
		DBHost:            getenv("DATABASE_HOST", "localhost"),
		DBPort:            getenv("DATABASE_PORT", "5432"),
		DBName:            getenv("DATABASE_NAME", "fluxdrive"),
		DBUser:            getenv("DATABASE_USER", "postgres"),
		DBPassword:        getenv("DATABASE_PASSWORD", ""),
		DBSSLMode:         getenv("DATABASE_SSLMODE", "disable"),
		DBMaxIdleConn:     getenvInt("DATABASE_MAX_IDLE_CONN", 5),
		DBMaxOpenConn:     getenvInt("DATABASE_MAX_OPEN_CONN", 20),
		DBConnMaxLifetime: getenvInt("DATABASE_CONN_MAX_LIFETIME_SECONDS", 1800),
		DBConnMaxIdleTime: getenvInt("DATABASE_CONN_MAX_IDLE_TIME_SECONDS", 300),
		DBAutoMigrate:     getenvBool("DATABASE_AUTO_MIGRATE", true),

		Dashboard: DashboardConfig{
			LagDays:       getenvInt("DASHBOARD_LAG_DAYS", 2),
			WindowDays:    getenvInt("DASHBOARD_WINDOW_DAYS", 30),
			MaxLookupDays: getenvInt("DASHBOARD_MAX_LOOKUP_DAYS", 0),
			ConfigPath:    strings.TrimSpace(getenv("DASHBOARD_CONFIG_PATH", "")),
		},
		Rebuild: RebuildConfig{
			Enabled:          getenvBool("REBUILD_ENABLED", true),
			Source:           strings.ToLower(getenv("REBUILD_SOURCE", SourceParquet)),
			ParquetDir:       getenv("REBUILD_PARQUET_DIR", "./data/raw/listings"),
			GCSBucket:        strings.TrimSpace(getenv("REBUILD_GCS_BUCKET", "")),
			GCSPrefix:        strings.Trim(getenv("REBUILD_GCS_PREFIX", "raw/listings"), "/"),
			GCSCredentials:   strings.TrimSpace(getenv("REBUILD_GCS_CREDENTIALS_FILE", "")),
			StagingTable:     getenv("REBUILD_STAGING_TABLE", "raw_vehicle_listings"),
			InsertBatchSize:  getenvInt("REBUILD_INSERT_BATCH_SIZE", 500),
			Schedule:         getenv("REBUILD_SCHEDULE", "0 3 * * *"),
			QueuePollEvery:   getenvDuration("REBUILD_QUEUE_POLL_INTERVAL", time.Minute),
			QueueBatchSize:   getenvInt("REBUILD_QUEUE_BATCH_SIZE", 10),
			LockTTL:          getenvDuration("REBUILD_LOCK_TTL", 30*time.Minute),
			RunTimeout:       getenvDuration("REBUILD_RUN_TIMEOUT", 30*time.Minute),
			BackfillMaxDays:  getenvInt("REBUILD_BACKFILL_MAX_DAYS", 366),
			CalendarFromDate: getenv("CALENDAR_FROM_DATE", "2020-01-01"),
			CalendarToDate:   getenv("CALENDAR_TO_DATE", "2030-12-31"),
		},
		Redis: RedisConfig{
			Addr:     strings.TrimSpace(getenv("REDIS_ADDR", "")),
			Password: strings.TrimSpace(getenv("REDIS_PASSWORD", "")),
			DB:       getenvInt("REDIS_DB", 0),
		},
	}
}

// Provide loads and validates configuration once for the fx graph.
func Provide() (Config, error) {
	cfg := Load()
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate rejects configurations the services cannot run with.
func (c Config) Validate() error {
	var errs []error
	switch c.DBType {
	case "postgres", "mysql", "sqlite":
	default:
		errs = append(errs, fmt.Errorf("unsupported DATABASE_TYPE %q", c.DBType))
	}
	if c.Dashboard.LagDays < 0 {
		errs = append(errs, errors.New("DASHBOARD_LAG_DAYS must be >= 0"))
	}
	if c.Dashboard.WindowDays <= 0 {
		errs = append(errs, errors.New("DASHBOARD_WINDOW_DAYS must be positive"))
	}
	if c.Dashboard.MaxLookupDays < 0 {
		errs = append(errs, errors.New("DASHBOARD_MAX_LOOKUP_DAYS must be >= 0"))
	}
	switch c.Rebuild.Source {
	case SourceParquet:
		if strings.TrimSpace(c.Rebuild.ParquetDir) == "" {
			errs = append(errs, errors.New("REBUILD_PARQUET_DIR is required for the parquet source"))
		}
	case SourceGCS:
		if c.Rebuild.GCSBucket == "" {
			errs = append(errs, errors.New("REBUILD_GCS_BUCKET is required for the gcs source"))
		}
	case SourceTable:
		if strings.TrimSpace(c.Rebuild.StagingTable) == "" {
			errs = append(errs, errors.New("REBUILD_STAGING_TABLE is required for the table source"))
		}
	default:
		errs = append(errs, fmt.Errorf("unsupported REBUILD_SOURCE %q", c.Rebuild.Source))
	}
	if c.Rebuild.InsertBatchSize <= 0 {
		errs = append(errs, errors.New("REBUILD_INSERT_BATCH_SIZE must be positive"))
	}
	return errors.Join(errs...)
}

// RedisEnabled reports whether a redis address was configured.
func (c Config) RedisEnabled() bool {
	return strings.TrimSpace(c.Redis.Addr) != ""
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getenvBool(key string, def bool) bool {
	value := strings.ToLower(strings.TrimSpace(os.Getenv(key)))
	if value == "" {
		return def
	}
	switch value {
	case "1", "true", "yes", "y", "on":
		return true
	case "0", "false", "no", "n", "off":
		return false
	default:
		return def
	}
}

func getenvInt(key string, def int) int {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return def
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return def
	}
	return parsed
}

func getenvDuration(key string, def time.Duration) time.Duration {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return def
	}
	parsed, err := time.ParseDuration(value)
	if err != nil {
		return def
	}
	return parsed
}

func parseList(raw string) []string {
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		out = append(out, p)
	}
	return out
}
