package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

// Each test uses its own router id so the package-level vectors (shared
// across the whole test binary) don't let one test's counts leak into
// another's assertions when tests run in parallel.

func TestMetrics_NilReceiverIsSafe(t *testing.T) {
	t.Parallel()
	var m *Metrics
	require.NotPanics(t, func() {
		m.PacketsRX()
		m.PacketsRXInvalid()
		m.PacketsTX()
		m.SendError()
		m.SetTableSize(3)
		m.SetSchedulerQueueLen(2)
		m.RoutesTimedOut(1)
		m.RoutesDeleted(1)
	})
}

func TestMetrics_PacketCountersIncrement(t *testing.T) {
	t.Parallel()
	m := New(101)

	m.PacketsRX()
	m.PacketsRX()
	m.PacketsRXInvalid()
	m.PacketsTX()
	m.SendError()

	require.Equal(t, float64(2), testutil.ToFloat64(metricPacketsRX.WithLabelValues("101")))
	require.Equal(t, float64(1), testutil.ToFloat64(metricPacketsRXInvalid.WithLabelValues("101")))
	require.Equal(t, float64(1), testutil.ToFloat64(metricPacketsTX.WithLabelValues("101")))
	require.Equal(t, float64(1), testutil.ToFloat64(metricSendErrors.WithLabelValues("101")))
}

func TestMetrics_GaugesReflectLastSetValue(t *testing.T) {
	t.Parallel()
	m := New(102)

	m.SetTableSize(4)
	m.SetSchedulerQueueLen(9)
	require.Equal(t, float64(4), testutil.ToFloat64(metricTableSize.WithLabelValues("102")))
	require.Equal(t, float64(9), testutil.ToFloat64(metricSchedulerQueueLen.WithLabelValues("102")))

	m.SetTableSize(1)
	require.Equal(t, float64(1), testutil.ToFloat64(metricTableSize.WithLabelValues("102")), "a gauge reflects the most recent Set, not a running total")
}

func TestMetrics_RouteCountersIgnoreZero(t *testing.T) {
	t.Parallel()
	m := New(103)

	m.RoutesTimedOut(0)
	m.RoutesDeleted(0)
	require.Equal(t, float64(0), testutil.ToFloat64(metricRoutesTimedOut.WithLabelValues("103")))
	require.Equal(t, float64(0), testutil.ToFloat64(metricRoutesDeleted.WithLabelValues("103")))

	m.RoutesTimedOut(3)
	m.RoutesDeleted(2)
	require.Equal(t, float64(3), testutil.ToFloat64(metricRoutesTimedOut.WithLabelValues("103")))
	require.Equal(t, float64(2), testutil.ToFloat64(metricRoutesDeleted.WithLabelValues("103")))
}
