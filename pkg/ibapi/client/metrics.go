package client

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	metricsOnce sync.Once

	framesOut = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "ibapi", Subsystem: "conn", Name: "frames_out_total",
		Help: "Frames written to the gateway",
	}, []string{"command"})

	framesIn = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "ibapi", Subsystem: "conn", Name: "frames_in_total",
		Help: "Frames decoded from the gateway",
	}, []string{"code"})

	bytesOut = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "ibapi", Subsystem: "conn", Name: "bytes_out_total",
		Help: "Bytes written to the gateway",
	})

	bytesIn = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "ibapi", Subsystem: "conn", Name: "bytes_in_total",
		Help: "Bytes read from the gateway",
	})

	decodeErrors = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "ibapi", Subsystem: "conn", Name: "decode_errors_total",
		Help: "Frames skipped because they could not be decoded",
	}, []string{"kind"})

	unknownMessages = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "ibapi", Subsystem: "conn", Name: "unknown_messages_total",
		Help: "Frames skipped because no decoder knows their message code",
	}, []string{"code"})

	registryDrops = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "ibapi", Subsystem: "registry", Name: "dropped_total",
		Help: "Correlated events that arrived with no waiter",
	})

	unsolicitedDrops = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "ibapi", Subsystem: "conn", Name: "unsolicited_dropped_total",
		Help: "Unsolicited events dropped because the event buffer was full",
	})

	stateTransitions = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "ibapi", Subsystem: "conn", Name: "state_transitions_total",
		Help: "Connection state transitions by target state",
	}, []string{"state"})

	requestLatency = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "ibapi", Subsystem: "conn", Name: "request_duration_seconds",
		Help:    "Latency of request/response calls",
		Buckets: prometheus.DefBuckets,
	}, []string{"command", "status"})
)

// RegisterMetrics registers the client collectors once.
func RegisterMetrics(r prometheus.Registerer) {
	metricsOnce.Do(func() {
		for _, c := range []prometheus.Collector{
			framesOut, framesIn, bytesOut, bytesIn, decodeErrors, unknownMessages,
			registryDrops, unsolicitedDrops, stateTransitions, requestLatency,
		} {
			_ = r.Register(c)
		}
	})
}
