// internal/metrics/metrics.go
package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	once sync.Once

	// EventsTotal — события шлюза, принятые конвейером, по типу.
	EventsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "ibcollector",
		Subsystem: "pipeline",
		Name:      "events_total",
		Help:      "Gateway events received by the pipeline, by event type",
	}, []string{"type"})

	// PublishErrors — ошибки кодирования или публикации в Kafka.
	PublishErrors = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "ibcollector",
		Subsystem: "kafka",
		Name:      "publish_errors_total",
		Help:      "Errors while encoding or publishing events to Kafka",
	}, []string{"topic"})

	// PublishLatency — время от приёма события до подтверждения Kafka.
	PublishLatency = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "ibcollector",
		Subsystem: "pipeline",
		Name:      "publish_latency_seconds",
		Help:      "Latency from receiving a gateway event to publishing it (seconds)",
		Buckets:   prometheus.DefBuckets,
	})

	// BufferDrops — события, отброшенные при переполненном канале конвейера.
	BufferDrops = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "ibcollector",
		Subsystem: "pipeline",
		Name:      "buffer_drops_total",
		Help:      "Events dropped because the pipeline buffer was full",
	})

	CacheHits = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "ibcollector",
		Subsystem: "contracts",
		Name:      "cache_hits_total",
		Help:      "Contract details served from the cache",
	})

	CacheMisses = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "ibcollector",
		Subsystem: "contracts",
		Name:      "cache_misses_total",
		Help:      "Contract details fetched from the gateway",
	})

	// Sessions — завершённые сессии с шлюзом по причине.
	Sessions = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "ibcollector",
		Subsystem: "gateway",
		Name:      "sessions_total",
		Help:      "Finished gateway sessions by end reason",
	}, []string{"reason"})

	// GatewayUp — 1, пока сессия с шлюзом в состоянии Ready.
	GatewayUp = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "ibcollector",
		Subsystem: "gateway",
		Name:      "up",
		Help:      "1 while a gateway session is ready",
	})
)

// Register регистрирует все метрики в заданном реестре.
// Можно вызвать без аргументов, чтобы зарегистрировать в DefaultRegisterer.
func Register(registerers ...prometheus.Registerer) {
	once.Do(func() {
		var reg prometheus.Registerer
		if len(registerers) > 0 && registerers[0] != nil {
			reg = registerers[0]
		} else {
			reg = prometheus.DefaultRegisterer
		}
		reg.MustRegister(
			EventsTotal,
			PublishErrors,
			PublishLatency,
			BufferDrops,
			CacheHits,
			CacheMisses,
			Sessions,
			GatewayUp,
		)
	})
}
