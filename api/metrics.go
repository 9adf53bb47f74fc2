package api

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var httpRequestsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "qcircuit",
		Subsystem: "http",
		Name:      "requests_total",
		Help:      "HTTP requests by route and status",
	},
	[]string{"method", "route", "status"},
)
