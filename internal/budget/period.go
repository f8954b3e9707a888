package budget

import (
	"fmt"
	"time"

	"github.com/glowcloud/glow/internal/model"
)

// PeriodStart returns the UTC start of the period containing now. Weeks
// start on Monday.
func PeriodStart(now time.Time, period model.BudgetPeriod) (time.Time, error) {
	now = now.UTC()
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)

	switch period {
	case model.PeriodDaily:
		return today, nil
	case model.PeriodWeekly:
		offset := (int(today.Weekday()) + 6) % 7
		return today.AddDate(0, 0, -offset), nil
	case model.PeriodMonthly:
		return time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC), nil
	default:
		return time.Time{}, fmt.Errorf("unknown budget period %q", period)
	}
}
