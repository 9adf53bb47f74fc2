package jobs

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	jobsSubmittedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "qcircuit",
			Subsystem: "jobs",
			Name:      "submitted_total",
			Help:      "Total number of accepted job submissions",
		},
		[]string{"backend"},
	)

	jobsFinishedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "qcircuit",
			Subsystem: "jobs",
			Name:      "finished_total",
			Help:      "Total number of jobs that reached a terminal state",
		},
		// status: complete/failed
		[]string{"backend", "status"},
	)

	enqueueFailuresTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "qcircuit",
			Subsystem: "jobs",
			Name:      "enqueue_failures_total",
			Help:      "Submissions whose work item could not be enqueued",
		},
	)

	jobDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "qcircuit",
			Subsystem: "jobs",
			Name:      "execution_duration_seconds",
			Help:      "Time from dequeue to terminal write",
			Buckets:   prometheus.ExponentialBuckets(0.001, 4, 10),
		},
		[]string{"backend"},
	)

	queueWait = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "qcircuit",
			Subsystem: "jobs",
			Name:      "queue_wait_seconds",
			Help:      "Time a work item spent queued",
			Buckets:   prometheus.ExponentialBuckets(0.001, 4, 10),
		},
	)

	activeWorkersGauge = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "qcircuit",
			Subsystem: "worker",
			Name:      "active",
			Help:      "Number of workers currently executing a job",
		},
	)
)
