package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var verifyTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "license_verify_total",
		Help: "License verification outcomes",
	},
	[]string{"outcome"},
)

// RecordVerify counts a verification outcome: "bound", "verified", or the
// rejection reason.
func RecordVerify(outcome string) {
	verifyTotal.WithLabelValues(outcome).Inc()
}
