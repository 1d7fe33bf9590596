// Package metrics defines Prometheus instrumentation for the terminal.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// OrdersTotal counts orders placed, by side, kind and outcome.
	OrdersTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "terminal_orders_total",
		Help: "Total number of orders placed",
	}, []string{"side", "kind", "status"})

	// CancellationsTotal counts cancellation attempts by outcome.
	CancellationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "terminal_cancellations_total",
		Help: "Total number of order cancellation attempts",
	}, []string{"outcome"})

	// ModificationsTotal counts modification attempts by outcome.
	ModificationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "terminal_modifications_total",
		Help: "Total number of order modification attempts",
	}, []string{"outcome"})

	// QueueDepth tracks the number of rows in each waiting queue.
	QueueDepth = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "terminal_queue_depth",
		Help: "Number of rows in each monitoring queue",
	}, []string{"queue"})

	// RowsInError tracks the number of rows currently in ERROR state.
	RowsInError = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "terminal_rows_in_error",
		Help: "Number of rows in ERROR state",
	})

	// MonitorCycleDuration observes monitor sweep latency per monitor.
	MonitorCycleDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "terminal_monitor_cycle_seconds",
		Help:    "Duration of monitor queue sweeps",
		Buckets: prometheus.ExponentialBuckets(0.0001, 4, 10),
	}, []string{"monitor"})

	// PlacementRetries counts individual placement retry attempts.
	PlacementRetries = promauto.NewCounter(prometheus.CounterOpts{
		Name: "terminal_placement_retries_total",
		Help: "Total number of order placement retry attempts",
	})

	// PlacementFailures counts placements that exhausted all retries.
	PlacementFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "terminal_placement_failures_total",
		Help: "Total number of placements that exhausted all retries",
	})

	// TicksTotal counts price ticks applied to the feed store.
	TicksTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "terminal_ticks_total",
		Help: "Total number of price ticks received",
	})

	// FeedConnected reports price stream connection status (1 or 0).
	FeedConnected = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "terminal_feed_connected",
		Help: "Whether the price stream is connected (1 = connected)",
	})

	// FeedReconnects counts price stream reconnection attempts.
	FeedReconnects = promauto.NewCounter(prometheus.CounterOpts{
		Name: "terminal_feed_reconnects_total",
		Help: "Total number of price stream reconnection attempts",
	})

	// SheetPollDuration observes control loop poll latency.
	SheetPollDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "terminal_sheet_poll_seconds",
		Help:    "Duration of sheet poll cycles",
		Buckets: prometheus.ExponentialBuckets(0.001, 4, 10),
	})

	// EngineHalted reports whether the engine kill switch has fired.
	EngineHalted = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "terminal_engine_halted",
		Help: "Whether the engine is halted (1 = halted)",
	})

	// ErrorsTotal counts errors by type.
	ErrorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "terminal_errors_total",
		Help: "Total number of errors by type",
	}, []string{"type"})

	// BuildInfo exposes build metadata as constant labels.
	BuildInfo = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "terminal_build_info",
		Help: "Build information",
	}, []string{"version", "commit", "build_date"})
)

// SetBuildInfo records build metadata.
func SetBuildInfo(version, commit, buildDate string) {
	BuildInfo.WithLabelValues(version, commit, buildDate).Set(1)
}
