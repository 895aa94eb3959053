// Package metrics defines the Prometheus instrumentation for the router
// simulator: per-router counters and gauges for packets, table size,
// and scheduler queue depth, in the promauto/label-vector style used
// throughout the teacher's liveness subsystem.
package metrics

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const labelRouter = "router_id"

var (
	metricPacketsRX = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ripsim_packets_rx_total",
			Help: "Total datagrams accepted from a known neighbor.",
		},
		[]string{labelRouter},
	)

	metricPacketsRXInvalid = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ripsim_packets_rx_invalid_total",
			Help: "Total datagrams discarded (malformed, or from an unknown neighbor), plus RTEs dropped for an out-of-range metric.",
		},
		[]string{labelRouter},
	)

	metricPacketsTX = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ripsim_packets_tx_total",
			Help: "Total datagrams sent to a neighbor.",
		},
		[]string{labelRouter},
	)

	metricSendErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ripsim_send_errors_total",
			Help: "Total UDP send errors, logged and dropped per spec.",
		},
		[]string{labelRouter},
	)

	metricTableSize = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "ripsim_table_size",
			Help: "Current number of entries in the routing table, including the self-entry.",
		},
		[]string{labelRouter},
	)

	metricSchedulerQueueLen = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "ripsim_scheduler_queue_len",
			Help: "Current number of pending events in a router's timer queue.",
		},
		[]string{labelRouter},
	)

	metricRoutesTimedOut = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ripsim_routes_timed_out_total",
			Help: "Total routes poisoned by the route-timeout timer.",
		},
		[]string{labelRouter},
	)

	metricRoutesDeleted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ripsim_routes_deleted_total",
			Help: "Total routes removed by garbage collection.",
		},
		[]string{labelRouter},
	)
)

// Metrics is a thin, per-router handle onto the package's metric vectors.
// It exists so call sites pass one value instead of a router id to every
// metrics call, and so that a nil *Metrics (as used in unit tests that
// don't care about instrumentation) is always safe to call methods on.
type Metrics struct {
	router string
}

// New returns a Metrics handle for routerID. Safe to share across all of
// a router's goroutines.
func New(routerID uint32) *Metrics {
	return &Metrics{router: strconv.FormatUint(uint64(routerID), 10)}
}

func (m *Metrics) PacketsRX() {
	if m == nil {
		return
	}
	metricPacketsRX.WithLabelValues(m.router).Inc()
}

func (m *Metrics) PacketsRXInvalid() {
	if m == nil {
		return
	}
	metricPacketsRXInvalid.WithLabelValues(m.router).Inc()
}

func (m *Metrics) PacketsTX() {
	if m == nil {
		return
	}
	metricPacketsTX.WithLabelValues(m.router).Inc()
}

func (m *Metrics) SendError() {
	if m == nil {
		return
	}
	metricSendErrors.WithLabelValues(m.router).Inc()
}

func (m *Metrics) SetTableSize(n int) {
	if m == nil {
		return
	}
	metricTableSize.WithLabelValues(m.router).Set(float64(n))
}

func (m *Metrics) SetSchedulerQueueLen(n int) {
	if m == nil {
		return
	}
	metricSchedulerQueueLen.WithLabelValues(m.router).Set(float64(n))
}

func (m *Metrics) RoutesTimedOut(n int) {
	if m == nil || n == 0 {
		return
	}
	metricRoutesTimedOut.WithLabelValues(m.router).Add(float64(n))
}

func (m *Metrics) RoutesDeleted(n int) {
	if m == nil || n == 0 {
		return
	}
	metricRoutesDeleted.WithLabelValues(m.router).Add(float64(n))
}
