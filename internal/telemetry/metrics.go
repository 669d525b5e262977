package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// QueueDepth tracks the number of execution-queue entries per status, kept
// current from the queue repository's mutation points (Enqueue, ClaimNext,
// Complete, Release, ReclaimStale).
var QueueDepth = promauto.NewGaugeVec(prometheus.GaugeOpts{
	Name: "textops_queue_depth",
	Help: "Number of execution queue entries by status.",
}, []string{"status"})

// WorkerOutcomes counts execution attempts by how they resolved, recorded
// by the worker's processEntry.
var WorkerOutcomes = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "textops_worker_outcomes_total",
	Help: "Execution attempts by outcome (success, retry, failed).",
}, []string{"outcome"})
