package types

import "time"

// Portfolio is the per-owner account snapshot read by the risk engine before
// every order and written by the order lifecycle after every fill.
type Portfolio struct {
	OwnerID     string  `yaml:"owner_id" json:"owner_id"`
	CashBalance float64 `yaml:"cash_balance" json:"cash_balance"`
	// MarginUsed accumulates the margin blocked by fills: full premium for
	// buys, short-option margin for sells.
	MarginUsed float64 `yaml:"margin_used" json:"margin_used"`
	// MarginAvailable is cash balance minus margin used.
	MarginAvailable float64 `yaml:"margin_available" json:"margin_available"`
	RealizedPnL     float64 `yaml:"realized_pnl" json:"realized_pnl"`
	UnrealizedPnL   float64 `yaml:"unrealized_pnl" json:"unrealized_pnl"`
	TotalPnL        float64 `yaml:"total_pnl" json:"total_pnl"`
	// DailyRealizedPnL is FIFO realized P&L restricted to the current
	// trading day, consulted by the daily loss limit rule.
	DailyRealizedPnL float64   `yaml:"daily_realized_pnl" json:"daily_realized_pnl"`
	CreatedAt        time.Time `yaml:"created_at" json:"created_at"`
	UpdatedAt        time.Time `yaml:"updated_at" json:"updated_at"`
}

// Period selects the time window for P&L summaries.
type Period string

const (
	PeriodToday Period = "today"
	PeriodWeek  Period = "week"
	PeriodMonth Period = "month"
	PeriodYear  Period = "year"
	PeriodAll   Period = "all"
)

// ParsePeriod maps a query string to a Period, defaulting to PeriodAll for
// the empty string.
func ParsePeriod(s string) (Period, bool) {
	switch Period(s) {
	case PeriodToday, PeriodWeek, PeriodMonth, PeriodYear, PeriodAll:
		return Period(s), true
	case "":
		return PeriodAll, true
	default:
		return PeriodAll, false
	}
}

// Start returns the inclusive beginning of the period relative to now.
// The zero time means no lower bound.
func (p Period) Start(now time.Time) time.Time {
	switch p {
	case PeriodToday:
		return time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	case PeriodWeek:
		return now.AddDate(0, 0, -7)
	case PeriodMonth:
		return now.AddDate(0, 0, -30)
	case PeriodYear:
		return now.AddDate(0, 0, -365)
	case PeriodAll:
		return time.Time{}
	default:
		return time.Time{}
	}
}
