// pkg/kafka/producer.go
//
// Пакет kafka публикует события шлюза в Kafka через синхронный продьюсер Sarama.
package kafka

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/IBM/sarama"
	"github.com/dnwe/otelsarama"
	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/YaganovValera/ibkr-collector/pkg/backoff"
	"github.com/YaganovValera/ibkr-collector/pkg/logger"
)

// Producer публикует сообщения в Kafka.
type Producer interface {
	// Publish отправляет одно сообщение, повторяя попытки по back-off.
	Publish(ctx context.Context, topic string, key, value []byte) error
	// Ping обновляет метаданные кластера.
	Ping(ctx context.Context) error
	Close() error
}

// -----------------------------------------------------------------------------
// Метрики
// -----------------------------------------------------------------------------

var (
	metricsOnce sync.Once

	publishTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "ibcollector", Subsystem: "kafka_producer", Name: "publish_total",
		Help: "Publish attempts by topic and result",
	}, []string{"topic", "result"})
	publishLatency = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "ibcollector", Subsystem: "kafka_producer", Name: "publish_latency_seconds",
		Help:    "Publish latency including retries (seconds)",
		Buckets: prometheus.DefBuckets,
	}, []string{"topic"})
	pingErrors = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "ibcollector", Subsystem: "kafka_producer", Name: "ping_errors_total",
		Help: "Metadata refresh failures",
	})
)

// RegisterMetrics регистрирует метрики продьюсера один раз.
func RegisterMetrics(r prometheus.Registerer) {
	metricsOnce.Do(func() {
		if r == nil {
			r = prometheus.DefaultRegisterer
		}
		r.MustRegister(publishTotal, publishLatency, pingErrors)
	})
}

var tracer = otel.Tracer("kafka-producer")

// -----------------------------------------------------------------------------
// Конфигурация
// -----------------------------------------------------------------------------

// Config — параметры синхронного продьюсера.
type Config struct {
	Brokers []string `mapstructure:"brokers"`

	// RequiredAcks: "all" (дефолт) | "leader" | "none".
	RequiredAcks string `mapstructure:"acks"`

	// Timeout — ожидание ack от кластера.
	Timeout time.Duration `mapstructure:"timeout"`

	// Compression: "none" (дефолт), "gzip", "snappy", "lz4", "zstd".
	Compression string `mapstructure:"compression"`

	FlushFrequency time.Duration `mapstructure:"flush_frequency"`
	FlushMessages  int           `mapstructure:"flush_messages"`

	Backoff backoff.Config `mapstructure:"backoff"`
}

func (c *Config) applyDefaults() {
	if c.Timeout <= 0 {
		c.Timeout = 5 * time.Second
	}
	if c.RequiredAcks == "" {
		c.RequiredAcks = "all"
	}
	if c.Compression == "" {
		c.Compression = "none"
	}
}

func (c Config) validate() error {
	if len(c.Brokers) == 0 {
		return fmt.Errorf("kafka producer: brokers required")
	}
	return nil
}

func buildSaramaConfig(c Config) (*sarama.Config, error) {
	sc := sarama.NewConfig()

	switch strings.ToLower(c.RequiredAcks) {
	case "all":
		sc.Producer.RequiredAcks = sarama.WaitForAll
	case "leader":
		sc.Producer.RequiredAcks = sarama.WaitForLocal
	case "none":
		sc.Producer.RequiredAcks = sarama.NoResponse
	default:
		return nil, fmt.Errorf("kafka producer: invalid RequiredAcks %q", c.RequiredAcks)
	}

	sc.Producer.Return.Successes = true
	sc.Producer.Return.Errors = true
	sc.Producer.Timeout = c.Timeout
	// идемпотентность требует acks=all
	if sc.Producer.RequiredAcks == sarama.WaitForAll {
		sc.Producer.Idempotent = true
		sc.Net.MaxOpenRequests = 1
	}
	if c.FlushFrequency > 0 {
		sc.Producer.Flush.Frequency = c.FlushFrequency
	}
	if c.FlushMessages > 0 {
		sc.Producer.Flush.Messages = c.FlushMessages
	}

	switch strings.ToLower(c.Compression) {
	case "none":
		sc.Producer.Compression = sarama.CompressionNone
	case "gzip":
		sc.Producer.Compression = sarama.CompressionGZIP
	case "snappy":
		sc.Producer.Compression = sarama.CompressionSnappy
	case "lz4":
		sc.Producer.Compression = sarama.CompressionLZ4
	case "zstd":
		sc.Producer.Compression = sarama.CompressionZSTD
	default:
		return nil, fmt.Errorf("kafka producer: invalid Compression %q", c.Compression)
	}
	return sc, nil
}

// -----------------------------------------------------------------------------
// Реализация
// -----------------------------------------------------------------------------

type kafkaProducer struct {
	prod       sarama.SyncProducer
	client     sarama.Client
	log        *logger.Logger
	backoffCfg backoff.Config
}

// New подключается к кластеру с ретраями и возвращает SyncProducer,
// обёрнутый otelsarama.
func New(ctx context.Context, cfg Config, log *logger.Logger) (Producer, error) {
	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	log = log.Named("kafka-producer")

	sc, err := buildSaramaConfig(cfg)
	if err != nil {
		return nil, err
	}

	ctx, span := tracer.Start(ctx, "Connect", trace.WithAttributes(attribute.StringSlice("brokers", cfg.Brokers)))
	defer span.End()

	var (
		client   sarama.Client
		syncProd sarama.SyncProducer
	)
	connect := func(context.Context) error {
		c, err := sarama.NewClient(cfg.Brokers, sc)
		if err != nil {
			return err
		}
		p, err := sarama.NewSyncProducerFromClient(c)
		if err != nil {
			_ = c.Close()
			return err
		}
		client, syncProd = c, p
		return nil
	}
	if err := backoff.Execute(ctx, cfg.Backoff, log, "kafka-connect", connect); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("kafka producer: connect: %w", err)
	}

	log.Info("kafka producer ready", zap.Strings("brokers", cfg.Brokers))
	return &kafkaProducer{
		prod:       otelsarama.WrapSyncProducer(sc, syncProd),
		client:     client,
		log:        log,
		backoffCfg: cfg.Backoff,
	}, nil
}

func (k *kafkaProducer) Publish(ctx context.Context, topic string, key, value []byte) error {
	ctx, span := tracer.Start(ctx, "Publish", trace.WithAttributes(attribute.String("topic", topic)))
	defer span.End()
	start := time.Now()

	send := func(context.Context) error {
		msg := &sarama.ProducerMessage{Topic: topic, Value: sarama.ByteEncoder(value)}
		if key != nil {
			msg.Key = sarama.ByteEncoder(key)
		}
		_, _, err := k.prod.SendMessage(msg)
		return err
	}

	err := backoff.Execute(ctx, k.backoffCfg, k.log, "kafka-publish", send)
	publishLatency.WithLabelValues(topic).Observe(time.Since(start).Seconds())
	if err != nil {
		publishTotal.WithLabelValues(topic, "error").Inc()
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		k.log.WithContext(ctx).Error("publish failed", zap.String("topic", topic), zap.Error(err))
		return err
	}
	publishTotal.WithLabelValues(topic, "ok").Inc()
	return nil
}

func (k *kafkaProducer) Ping(ctx context.Context) error {
	_, span := tracer.Start(ctx, "Ping")
	defer span.End()
	if k.client == nil {
		return nil
	}
	if err := k.client.RefreshMetadata(); err != nil {
		pingErrors.Inc()
		span.RecordError(err)
		return err
	}
	return nil
}

func (k *kafkaProducer) Close() error {
	if err := k.prod.Close(); err != nil {
		k.log.Error("producer close failed", zap.Error(err))
		return err
	}
	if k.client != nil && !k.client.Closed() {
		if err := k.client.Close(); err != nil {
			k.log.Error("client close failed", zap.Error(err))
			return err
		}
	}
	k.log.Info("kafka producer closed")
	return nil
}
