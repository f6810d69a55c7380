package domain

import (
	"time"

	"github.com/smallbiznis/fluxdrive/internal/calendar"
)

const StatusSold = "sold"

// RawSaleEvent is one listing row as it arrives from the raw event source.
// Pointer fields may be missing upstream.
type RawSaleEvent struct {
	VIN          string
	Manufacturer string
	Model        string
	Brand        *string
	Color        *string
	Price        *float64
	Mileage      *int
	Status       string
	AddedDate    *time.Time
	SoldDate     *time.Time
}

// Filter is the predicate a source may push down. Sources may return more
// rows than it selects; the rebuilder re-applies admission in full.
type Filter struct {
	ProcessDate calendar.DateKey
}

// Rejection rules, in evaluation order. A row is counted under the first
// rule it fails.
const (
	RuleNullVIN        = "null_vin"
	RuleNullPrice      = "null_price"
	RuleNullSoldDate   = "null_sold_date"
	RuleStatusMismatch = "status_mismatch"
	RuleDateMismatch   = "date_mismatch"
	RuleFutureSoldDate = "future_sold_date"
)

// Rules lists every rejection rule for reporting.
var Rules = []string{
	RuleNullVIN,
	RuleNullPrice,
	RuleNullSoldDate,
	RuleStatusMismatch,
	RuleDateMismatch,
	RuleFutureSoldDate,
}

// RunResult summarizes one partition rebuild.
type RunResult struct {
	ProcessDate calendar.DateKey `json:"process_date"`
	Source      string           `json:"source"`
	Read        int              `json:"read"`
	Admitted    int              `json:"admitted"`
	Rejected    map[string]int   `json:"rejected"`
	Duplicates  int              `json:"duplicates"`
	Unmatched   int              `json:"unmatched_vehicles"`
	Deleted     int64            `json:"deleted"`
	Inserted    int64            `json:"inserted"`
	Skipped     bool             `json:"skipped"`
	DurationMS  int64            `json:"duration_ms"`
}

// RebuildRequest is the API view of a queued rebuild.
type RebuildRequest struct {
	ID          string     `json:"id"`
	ProcessDate string     `json:"process_date"`
	Status      string     `json:"status"`
	Stats       *RunResult `json:"stats,omitempty"`
	Error       string     `json:"error,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	StartedAt   *time.Time `json:"started_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

const (
	RequestStatusPending    = "pending"
	RequestStatusProcessing = "processing"
	RequestStatusCompleted  = "completed"
	RequestStatusFailed     = "failed"
)
