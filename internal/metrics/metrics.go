package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// ActiveClients tracks live socket clients in the registry.
	ActiveClients = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "pushgate_clients_active",
		Help: "The current number of registered socket clients.",
	})
	ConnectionsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "pushgate_connections_total",
		Help: "The total number of accepted socket connections.",
	})
	FramesSent = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pushgate_frames_sent_total",
		Help: "The total number of frames pushed to clients.",
	}, []string{"type"})
	FramesDropped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "pushgate_frames_dropped_total",
		Help: "The total number of frames dropped on closed or slow transports.",
	})
	InvalidationsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "pushgate_invalidations_total",
		Help: "The total number of invalidate broadcasts.",
	})
	ElevationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pushgate_elevations_total",
		Help: "The total number of authorization level changes pushed to clients.",
	}, []string{"level"})
	ProtocolErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pushgate_protocol_errors_total",
		Help: "The total number of error frames sent to clients.",
	}, []string{"reason"})
)
