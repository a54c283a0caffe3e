// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	QueueDepth = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "playerd_queue_depth",
		Help: "Number of commands waiting in the command queue",
	})

	QueuePostedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "playerd_queue_posted_total",
		Help: "Total number of commands posted to the queue by kind and position",
	}, []string{"kind", "position"})

	QueueWakeTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "playerd_queue_wake_total",
		Help: "Total number of empty to non-empty transitions signalled to the scheduler",
	})

	QueueClearedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "playerd_queue_cleared_total",
		Help: "Total number of commands discarded by Clear without a reply",
	})
)
