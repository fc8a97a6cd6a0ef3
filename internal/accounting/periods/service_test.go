package periods

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/shared"
)

type calendar []Period

func (c calendar) FindOpenPeriodByDate(_ context.Context, companyID int64, date time.Time) (Period, error) {
	for _, p := range c {
		if p.CompanyID == companyID && p.Status == PeriodStatusOpen && p.Covers(date) {
			return p, nil
		}
	}
	return Period{}, &shared.ReferenceError{Kind: "open period for " + date.Format(time.DateOnly)}
}

func day(m time.Month, d int) time.Time { return time.Date(2025, m, d, 0, 0, 0, 0, time.UTC) }

func TestFindOpenPeriodByDate(t *testing.T) {
	svc := NewService(calendar{
		{ID: 1, CompanyID: 1, StartDate: day(2, 1), EndDate: day(2, 28), Status: PeriodStatusClosed},
		{ID: 2, CompanyID: 1, StartDate: day(3, 1), EndDate: day(3, 31), Status: PeriodStatusOpen},
	})
	ctx := context.Background()

	p, err := svc.FindOpenPeriodByDate(ctx, 1, day(3, 31))
	require.NoError(t, err)
	assert.Equal(t, int64(2), p.ID)

	_, err = svc.FindOpenPeriodByDate(ctx, 1, day(2, 10))
	assert.ErrorIs(t, err, shared.ErrReferenceNotFound)
	assert.ErrorContains(t, err, "2025-02-10")

	_, err = svc.FindOpenPeriodByDate(ctx, 2, day(3, 10))
	assert.ErrorIs(t, err, shared.ErrReferenceNotFound)
}
