package server

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	turnsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "chatd",
		Name:      "turns_total",
		Help:      "Send turns by terminal status.",
	}, []string{"status"})

	deltasTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "chatd",
		Name:      "deltas_total",
		Help:      "Assistant content deltas streamed to clients.",
	})

	activeStreams = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "chatd",
		Name:      "active_streams",
		Help:      "Turns currently streaming.",
	})

	watchSubscribers = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "chatd",
		Name:      "watch_subscribers",
		Help:      "Open watch subscriptions.",
	})
)
