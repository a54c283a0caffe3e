// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	WorkersLive = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "playerd_workers_live",
		Help: "Number of worker processes counted against the pool ceiling",
	})

	WorkerSpawnTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "playerd_worker_spawn_total",
		Help: "Total number of worker spawn attempts by result",
	}, []string{"result"})

	WorkerRecoveredTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "playerd_worker_recovered_total",
		Help: "Total number of dead workers evicted by the liveness sweep",
	}, []string{"reason"})

	ProcTerminateTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "playerd_proc_terminate_total",
		Help: "Total number of termination signals sent to worker process groups",
	}, []string{"signal", "result"})

	ProcWaitTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "playerd_proc_wait_total",
		Help: "Total number of reaped worker processes by outcome",
	}, []string{"outcome"})
)

// IncProcTerminate records a termination signal sent by procgroup.
func IncProcTerminate(signal, result string) {
	ProcTerminateTotal.WithLabelValues(signal, result).Inc()
}

// IncProcWait records the wait outcome of a terminated process.
func IncProcWait(outcome string) {
	ProcWaitTotal.WithLabelValues(outcome).Inc()
}
