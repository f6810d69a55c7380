package calendar

import (
	"time"

	"github.com/smallbiznis/fluxdrive/internal/config"
)

// Policy is the single owner of the lag, window and lookup settings every
// dashboard metric resolves its dates through.
type Policy struct {
	LagDays       int
	WindowDays    int
	MaxLookupDays int
}

func NewPolicy(cfg config.Config) Policy {
	return Policy{
		LagDays:       cfg.Dashboard.LagDays,
		WindowDays:    cfg.Dashboard.WindowDays,
		MaxLookupDays: cfg.Dashboard.MaxLookupDays,
	}
}

// Today applies the lag to now.
func (p Policy) Today(now time.Time) DateKey {
	return Today(now, p.LagDays)
}

// Window returns the trailing window ending at today.
func (p Policy) Window(today DateKey) (DateKey, DateKey) {
	return WindowKeys(today, p.WindowDays)
}
