package periods

import (
	"context"
	"time"
)

// Service answers period lookups for modules posting outside the journal transaction.
type Service struct {
	repo Repository
}

func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

// FindOpenPeriodByDate returns the open period covering date.
func (s *Service) FindOpenPeriodByDate(ctx context.Context, companyID int64, date time.Time) (Period, error) {
	return s.repo.FindOpenPeriodByDate(ctx, companyID, date)
}
