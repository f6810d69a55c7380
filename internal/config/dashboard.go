package config

import (
	"errors"
	"strings"
	"sync/atomic"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

// DashboardTuning holds the hot-reloadable knobs of the metric aggregator.
type DashboardTuning struct {
	MaxDaysToSell     int     `mapstructure:"maxDaysToSell"`
	MaxSalePrice      float64 `mapstructure:"maxSalePrice"`
	SlowMovingMinDays int     `mapstructure:"slowMovingMinDays"`
	SalesByBrandLimit int     `mapstructure:"salesByBrandLimit"`
	TopModelsLimit    int     `mapstructure:"topModelsLimit"`
	SlowMovingLimit   int     `mapstructure:"slowMovingLimit"`
	RecentSalesLimit  int     `mapstructure:"recentSalesLimit"`
	Concurrency       int     `mapstructure:"concurrency"`
}

func DefaultDashboardTuning() DashboardTuning {
	return DashboardTuning{
		MaxDaysToSell:     365,
		MaxSalePrice:      200000,
		SlowMovingMinDays: 30,
		SalesByBrandLimit: 10,
		TopModelsLimit:    10,
		SlowMovingLimit:   20,
		RecentSalesLimit:  10,
		Concurrency:       4,
	}
}

type DashboardConfigHolder struct {
	current atomic.Value // holds DashboardTuning
}

// NewStaticDashboardConfigHolder wraps a fixed tuning, used by tools and tests.
func NewStaticDashboardConfigHolder(t DashboardTuning) *DashboardConfigHolder {
	holder := &DashboardConfigHolder{}
	holder.current.Store(t)
	return holder
}

func NewDashboardConfigHolder(cfg Config, log *zap.Logger) (*DashboardConfigHolder, error) {
	v := viper.New()

	v.SetConfigName("dashboard")
	v.SetConfigType("yml")
	if cfg.Dashboard.ConfigPath != "" {
		v.AddConfigPath(cfg.Dashboard.ConfigPath)
	}
	v.AddConfigPath("/etc/fluxdrive")
	v.AddConfigPath(".")

	v.SetEnvPrefix("FLUXDRIVE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	defaults := DefaultDashboardTuning()
	v.SetDefault("dashboard.maxDaysToSell", defaults.MaxDaysToSell)
	v.SetDefault("dashboard.maxSalePrice", defaults.MaxSalePrice)
	v.SetDefault("dashboard.slowMovingMinDays", defaults.SlowMovingMinDays)
	v.SetDefault("dashboard.salesByBrandLimit", defaults.SalesByBrandLimit)
	v.SetDefault("dashboard.topModelsLimit", defaults.TopModelsLimit)
	v.SetDefault("dashboard.slowMovingLimit", defaults.SlowMovingLimit)
	v.SetDefault("dashboard.recentSalesLimit", defaults.RecentSalesLimit)
	v.SetDefault("dashboard.concurrency", defaults.Concurrency)

	fileLoaded := true
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
		fileLoaded = false
	}

	var tuning DashboardTuning
	if err := v.UnmarshalKey("dashboard", &tuning); err != nil {
		return nil, err
	}
	if err := validateDashboardTuning(tuning); err != nil {
		return nil, err
	}

	holder := &DashboardConfigHolder{}
	holder.current.Store(tuning)

	if !fileLoaded {
		return holder, nil
	}

	log = log.Named("config.dashboard")
	v.WatchConfig()
	v.OnConfigChange(func(e fsnotify.Event) {
		var updated DashboardTuning
		if err := v.UnmarshalKey("dashboard", &updated); err != nil {
			log.Warn("dashboard config reload failed", zap.Error(err))
			return
		}
		if err := validateDashboardTuning(updated); err != nil {
			log.Warn("invalid dashboard config ignored", zap.Error(err))
			return
		}
		holder.current.Store(updated)
		log.Info("dashboard config reloaded", zap.String("file", e.Name))
	})

	return holder, nil
}

func (h *DashboardConfigHolder) Get() DashboardTuning {
	if h == nil {
		return DefaultDashboardTuning()
	}
	return h.current.Load().(DashboardTuning)
}

func validateDashboardTuning(t DashboardTuning) error {
	var errs []error
	if t.MaxDaysToSell <= 0 {
		errs = append(errs, errors.New("dashboard.maxDaysToSell must be positive"))
	}
	if t.MaxSalePrice <= 0 {
		errs = append(errs, errors.New("dashboard.maxSalePrice must be positive"))
	}
	if t.SlowMovingMinDays < 0 {
		errs = append(errs, errors.New("dashboard.slowMovingMinDays cannot be negative"))
	}
	if t.SalesByBrandLimit <= 0 || t.TopModelsLimit <= 0 || t.SlowMovingLimit <= 0 || t.RecentSalesLimit <= 0 {
		errs = append(errs, errors.New("dashboard limits must be positive"))
	}
	if t.Concurrency <= 0 {
		errs = append(errs, errors.New("dashboard.concurrency must be positive"))
	}
	return errors.Join(errs...)
}
