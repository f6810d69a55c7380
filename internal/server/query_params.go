package server

import (
	"strings"

	"github.com/smallbiznis/fluxdrive/internal/calendar"
)

// parseOptionalDate accepts YYYY-MM-DD and returns NoData when empty.
func parseOptionalDate(value string) (calendar.DateKey, error) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return calendar.NoData, nil
	}
	return calendar.Parse(trimmed)
}
