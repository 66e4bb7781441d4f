package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// AdmissionsTotal counts admission gateway outcomes. The 'outcome' label is
// "admitted" or the rejection code (DUPLICATE_IN_FLIGHT, TOO_MANY_ATTEMPTS, ...).
var AdmissionsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "admissions_total",
		Help: "Purchase admission outcomes",
	},
	[]string{"outcome"},
)

// PurchasesTotal counts worker-side purchase outcomes. The 'outcome' label is
// "completed" or the failure reason code.
var PurchasesTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "purchases_total",
		Help: "Purchase job outcomes",
	},
	[]string{"outcome"},
)

// PurchaseDuration measures how long one purchase job takes end to end.
var PurchaseDuration = promauto.NewHistogram(
	prometheus.HistogramOpts{
		Name: "purchase_duration_seconds",
		Help: "Duration of purchase job processing in seconds",
		// Buckets tailored for a fast DB transaction plus queue hops
		Buckets: []float64{0.005, 0.01, 0.05, 0.1, 0.5, 1.0, 5.0},
	},
)

// QueueDepth tracks queue depth per state, refreshed whenever stats are read.
var QueueDepth = promauto.NewGaugeVec(
	prometheus.GaugeOpts{
		Name: "queue_depth",
		Help: "Purchase queue depth by state",
	},
	[]string{"state"},
)
