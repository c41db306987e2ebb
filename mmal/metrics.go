package mmal

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var poolStates = []string{"free", "in_port", "held"}

var (
	poolBuffers = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "stillcam",
		Name:      "pool_buffers",
		Help:      "Buffers per pool by owner.",
	}, []string{"pool", "state"})

	portBuffers = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "stillcam",
		Name:      "port_buffers_total",
		Help:      "Buffers submitted to and completed by each port.",
	}, []string{"port", "event"})

	drainTimeouts = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "stillcam",
		Name:      "drain_timeouts_total",
		Help:      "Ports that failed to return their buffers when disabled.",
	}, []string{"port"})

	connectionBuffers = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "stillcam",
		Name:      "connection_buffers_total",
		Help:      "Buffers forwarded, dropped or parked by connections.",
	}, []string{"connection", "event"})
)
