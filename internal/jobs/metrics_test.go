package jobmetrics

import (
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func TestTrackerRecordsOutcome(t *testing.T) {
	reg := prometheus.NewRegistry()
	metrics := NewMetrics(reg)

	for i := 0; i < 3; i++ {
		require.NoError(t, metrics.Track("audit:record").End(nil))
	}
	boom := errors.New("boom")
	require.ErrorIs(t, metrics.Track("audit:record").End(boom), boom)

	require.Equal(t, 3.0, testutil.ToFloat64(metrics.runs.WithLabelValues("audit:record", "success")))
	require.Equal(t, 1.0, testutil.ToFloat64(metrics.runs.WithLabelValues("audit:record", "failure")))
	require.Equal(t, 1.0, testutil.ToFloat64(metrics.failures.WithLabelValues("audit:record")))
	require.Equal(t, 1, testutil.CollectAndCount(metrics.duration))
}

func TestAddUnbalanced(t *testing.T) {
	reg := prometheus.NewRegistry()
	metrics := NewMetrics(reg)

	metrics.AddUnbalanced(7, 2)
	metrics.AddUnbalanced(7, 0)
	metrics.AddUnbalanced(0, 1)

	require.Equal(t, 2.0, testutil.ToFloat64(metrics.unbalanced.WithLabelValues("7")))
	require.Equal(t, 1.0, testutil.ToFloat64(metrics.unbalanced.WithLabelValues("0")))
}

func TestNilMetricsAreSafe(t *testing.T) {
	var metrics *Metrics
	boom := errors.New("boom")
	require.ErrorIs(t, metrics.Track("x").End(boom), boom)
	metrics.AddUnbalanced(1, 1)
}
