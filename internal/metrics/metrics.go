// Package metrics holds the Prometheus collectors exported on /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Commands counts handled calendar commands by intent.
	Commands = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "srcal",
		Name:      "commands_total",
		Help:      "Calendar commands handled, by intent.",
	}, []string{"intent"})

	// Deliveries counts scheduled deliveries by result (ok, error, skipped).
	Deliveries = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "srcal",
		Name:      "deliveries_total",
		Help:      "Scheduled calendar deliveries, by result.",
	}, []string{"result"})

	// Renders counts calendar renders by result (ok, error, cached).
	Renders = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "srcal",
		Name:      "renders_total",
		Help:      "Calendar image renders, by result.",
	}, []string{"result"})

	// Subscriptions reports the number of subscribed groups.
	Subscriptions = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "srcal",
		Name:      "subscriptions",
		Help:      "Groups currently subscribed to the daily calendar.",
	})
)
