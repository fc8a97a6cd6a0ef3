package audit

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func seededSink(t *testing.T) *MemorySink {
	t.Helper()
	sink := &MemorySink{}
	base := time.Date(2025, 3, 10, 8, 0, 0, 0, time.UTC)
	for i := 0; i < 5; i++ {
		rec := validRecord()
		rec.RecordID = int64(i + 1)
		rec.At = base.Add(time.Duration(i) * time.Hour)
		require.NoError(t, sink.Write(context.Background(), rec))
	}
	other := validRecord()
	other.CompanyID = 2
	other.At = base
	require.NoError(t, sink.Write(context.Background(), other))
	return sink
}

func TestServiceTimelinePaging(t *testing.T) {
	svc := NewService(seededSink(t))

	result, err := svc.Timeline(context.Background(), TimelineFilters{CompanyID: 1, PageSize: 2})
	require.NoError(t, err)
	require.Len(t, result.Rows, 2)
	require.Equal(t, int64(5), result.Rows[0].RecordID)
	require.True(t, result.Paging.HasNext)
	require.Equal(t, 2, result.Paging.NextPage)
	require.Zero(t, result.Paging.PrevPage)

	result, err = svc.Timeline(context.Background(), TimelineFilters{CompanyID: 1, PageSize: 2, Page: 3})
	require.NoError(t, err)
	require.Len(t, result.Rows, 1)
	require.False(t, result.Paging.HasNext)
	require.Equal(t, 2, result.Paging.PrevPage)
}

func TestServiceTimelineFilters(t *testing.T) {
	svc := NewService(seededSink(t))

	result, err := svc.Timeline(context.Background(), TimelineFilters{CompanyID: 1, RecordID: 3})
	require.NoError(t, err)
	require.Len(t, result.Rows, 1)

	result, err = svc.Timeline(context.Background(), TimelineFilters{
		CompanyID: 1,
		From:      time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC),
		To:        time.Date(2025, 3, 10, 11, 0, 0, 0, time.UTC),
	})
	require.NoError(t, err)
	require.Len(t, result.Rows, 2)

	result, err = svc.Timeline(context.Background(), TimelineFilters{CompanyID: 9})
	require.NoError(t, err)
	require.NotNil(t, result.Rows)
	require.Empty(t, result.Rows)
	require.Equal(t, defaultPageSize, result.Paging.PageSize)
}

func TestServiceTimelineClampsPageSize(t *testing.T) {
	svc := NewService(seededSink(t))
	result, err := svc.Timeline(context.Background(), TimelineFilters{CompanyID: 1, PageSize: 500})
	require.NoError(t, err)
	require.Equal(t, maxPageSize, result.Paging.PageSize)
}

func TestServiceWithoutRepository(t *testing.T) {
	_, err := NewService(nil).Timeline(context.Background(), TimelineFilters{CompanyID: 1})
	require.Error(t, err)
}
