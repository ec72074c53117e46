package quota

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// ConsumeTotal counts quota decisions.
	// Labels: kind, result (allowed, denied, fail_open)
	ConsumeTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "larder",
			Subsystem: "quota",
			Name:      "consume_total",
			Help:      "Total number of quota consume decisions by result",
		},
		[]string{"kind", "result"},
	)
)
