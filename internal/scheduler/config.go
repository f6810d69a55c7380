package scheduler

import (
	"time"

	"github.com/smallbiznis/fluxdrive/internal/config"
)

// Config controls the rebuild schedule, queue polling and job limits.
type Config struct {
	Enabled        bool
	Schedule       string
	QueuePollEvery time.Duration
	QueueBatchSize int
	LockTTL        time.Duration
	RunTimeout     time.Duration
}

func DefaultConfig() Config {
	return Config{
		Enabled:        true,
		Schedule:       "0 3 * * *",
		QueuePollEvery: time.Minute,
		QueueBatchSize: 10,
		LockTTL:        30 * time.Minute,
		RunTimeout:     30 * time.Minute,
	}
}

// ProvideConfig maps the application config onto scheduler settings.
func ProvideConfig(cfg config.Config) Config {
	return Config{
		Enabled:        cfg.Rebuild.Enabled,
		Schedule:       cfg.Rebuild.Schedule,
		QueuePollEvery: cfg.Rebuild.QueuePollEvery,
		QueueBatchSize: cfg.Rebuild.QueueBatchSize,
		LockTTL:        cfg.Rebuild.LockTTL,
		RunTimeout:     cfg.Rebuild.RunTimeout,
	}.withDefaults()
}

func (c Config) withDefaults() Config {
	defaults := DefaultConfig()
	if c.Schedule == "" {
		c.Schedule = defaults.Schedule
	}
	if c.QueuePollEvery <= 0 {
		c.QueuePollEvery = defaults.QueuePollEvery
	}
	if c.QueueBatchSize <= 0 {
		c.QueueBatchSize = defaults.QueueBatchSize
	}
	if c.LockTTL <= 0 {
		c.LockTTL = defaults.LockTTL
	}
	if c.RunTimeout <= 0 {
		c.RunTimeout = defaults.RunTimeout
	}
	return c
}
