package analysis

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var cacheLookupsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "qcircuit",
		Subsystem: "report_cache",
		Name:      "lookups_total",
		Help:      "Report cache lookups by result",
	},
	// result: hit/miss
	[]string{"result"},
)
