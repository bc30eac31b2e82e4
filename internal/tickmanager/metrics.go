package tickmanager

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	ticksProcessed = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "tickmanager_ticks_processed_total",
			Help: "Total number of ticks dispatched to calculators",
		},
	)

	averagesComputed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tickmanager_averages_computed_total",
			Help: "Total number of averages computed per calculator",
		},
		[]string{"calculator"},
	)

	notificationsSent = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tickmanager_notifications_total",
			Help: "Total number of listener notifications per calculator",
		},
		[]string{"calculator"},
	)

	latestAverage = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "tickmanager_latest_average",
			Help: "Most recent value returned by each calculator",
		},
		[]string{"calculator"},
	)

	windowLength = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "tickmanager_window_length",
			Help: "Number of ticks retained in each calculator window",
		},
		[]string{"calculator"},
	)

	controlOperations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tickmanager_control_operations_total",
			Help: "Total number of cancel/resume/reset broadcasts",
		},
		[]string{"operation"},
	)
)
