// Package metrics exposes the Prometheus collectors of the alert engine.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Cycle metrics
	CyclesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cgmwatch_cycles_total",
			Help: "Total number of polling cycles",
		},
		[]string{"outcome"}, // outcome: ok, fetch_failed, skipped_lock, error
	)

	CycleDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "cgmwatch_cycle_duration_seconds",
			Help:    "Time taken by one polling cycle",
			Buckets: []float64{.01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		},
	)

	FetchFailuresTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cgmwatch_fetch_failures_total",
			Help: "Total number of telemetry fetch failures",
		},
		[]string{"kind"}, // kind: readings, treatments
	)

	// Glucose metrics
	LatestGlucose = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "cgmwatch_latest_glucose_mg_dl",
			Help: "Value of the newest reading in mg/dL",
		},
	)

	LatestReadingAge = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "cgmwatch_latest_reading_age_seconds",
			Help: "Age of the newest reading at the end of the cycle",
		},
	)

	// Alert metrics
	AlertsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cgmwatch_alerts_total",
			Help: "Total number of alerts emitted by the gate",
		},
		[]string{"channel", "rule"},
	)

	DeliveriesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cgmwatch_deliveries_total",
			Help: "Total number of per-recipient deliveries",
		},
		[]string{"channel", "status"}, // status: delivered, muted, failed
	)

	EventPublishTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cgmwatch_event_publish_total",
			Help: "Total number of alert events published",
		},
		[]string{"status"}, // status: success, failed
	)

	// Bot metrics
	CommandsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cgmwatch_bot_commands_total",
			Help: "Total number of bot commands handled",
		},
		[]string{"command"},
	)
)
