// Package metrics exposes the engine's Prometheus instrumentation.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// TicksTotal counts completed monitor ticks.
	TicksTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "riskengine",
		Name:      "monitor_ticks_total",
		Help:      "Completed monitor ticks.",
	})

	// TickDuration observes wall time per monitor tick.
	TickDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "riskengine",
		Name:      "monitor_tick_duration_seconds",
		Help:      "Wall time per monitor tick.",
		Buckets:   prometheus.DefBuckets,
	})

	// PositionsChecked counts positions evaluated across all ticks.
	PositionsChecked = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "riskengine",
		Name:      "positions_checked_total",
		Help:      "Positions evaluated across all monitor ticks.",
	})

	// OpenPositions tracks the open position count seen by the last tick.
	OpenPositions = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "riskengine",
		Name:      "open_positions",
		Help:      "Open positions seen by the most recent monitor tick.",
	})

	// PositionClosures counts terminal transitions by exit reason.
	PositionClosures = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "riskengine",
		Name:      "position_closures_total",
		Help:      "Terminal position transitions by exit reason.",
	}, []string{"reason"})

	// TickErrors counts per-position failures inside monitor ticks.
	TickErrors = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "riskengine",
		Name:      "monitor_tick_errors_total",
		Help:      "Per-position failures inside monitor ticks.",
	})

	// CloseEventsDropped counts analytics events dropped by a full dispatch
	// queue.
	CloseEventsDropped = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "riskengine",
		Name:      "close_events_dropped_total",
		Help:      "Analytics close events dropped because the dispatch queue was full.",
	})
)
