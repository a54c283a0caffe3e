// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	SchedulerState = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "playerd_scheduler_state",
		Help: "Current scheduler state (idle, dispatching, awaiting; active=1)",
	}, []string{"state"})

	CommandTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "playerd_command_total",
		Help: "Total number of executed commands by kind and result",
	}, []string{"kind", "result"})

	CommandDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "playerd_command_duration_seconds",
		Help:    "Time from pop to reply for executed commands",
		Buckets: prometheus.ExponentialBuckets(0.0005, 2.0, 15), // 0.5ms to ~8s
	}, []string{"kind"})

	AwaitTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "playerd_await_total",
		Help: "Total number of suspension points by outcome",
	}, []string{"outcome"})
)

var schedulerStates = []string{"idle", "dispatching", "awaiting"}

// SetSchedulerState marks exactly one scheduler state as active.
func SetSchedulerState(state string) {
	for _, s := range schedulerStates {
		value := 0.0
		if s == state {
			value = 1.0
		}
		SchedulerState.WithLabelValues(s).Set(value)
	}
}
