package still

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	captures = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "stillcam",
		Name:      "captures_total",
		Help:      "Still captures by result.",
	}, []string{"result"})

	captureLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "stillcam",
		Name:      "capture_seconds",
		Help:      "Time from trigger to a complete frame.",
		Buckets:   prometheus.ExponentialBuckets(0.01, 2, 10),
	})

	pipelineState = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "stillcam",
		Name:      "pipeline_state",
		Help:      "Current pipeline controller state.",
	})
)
