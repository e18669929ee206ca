package service

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	outcomeApplied = "applied"
	outcomeIgnored = "ignored"
	outcomeFailed  = "failed"
)

var (
	eventsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "almuerzo_events_total",
		Help: "Inbound events processed by the roster router, by event and outcome",
	}, []string{"event", "outcome"})

	platformErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "almuerzo_platform_errors_total",
		Help: "Failed messaging platform calls by operation",
	}, []string{"operation"})

	openRosters = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "almuerzo_open_rosters",
		Help: "Rosters currently held in the store",
	})

	historyFetchSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "almuerzo_history_fetch_seconds",
		Help:    "Latency of reacted-user history fetches",
		Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
	})
)
