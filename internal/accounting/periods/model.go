package periods

import "time"

// PeriodStatus enumerates valid period states.
type PeriodStatus string

const (
	PeriodStatusOpen   PeriodStatus = "OPEN"
	PeriodStatusClosed PeriodStatus = "CLOSED"
	PeriodStatusLocked PeriodStatus = "LOCKED"
)

// Period represents a fiscal period window. FiscalYear and FiscalMonth feed document numbers.
type Period struct {
	ID          int64
	CompanyID   int64
	Code        string
	FiscalYear  int
	FiscalMonth int
	StartDate   time.Time
	EndDate     time.Time
	Status      PeriodStatus
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Covers reports whether date falls inside the period window.
func (p Period) Covers(date time.Time) bool {
	return !date.Before(p.StartDate) && !date.After(p.EndDate)
}
