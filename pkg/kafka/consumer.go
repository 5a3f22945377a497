// pkg/kafka/consumer.go
package kafka

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/IBM/sarama"
	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/YaganovValera/ibkr-collector/pkg/backoff"
	"github.com/YaganovValera/ibkr-collector/pkg/logger"
)

// Message — запись, прочитанная из Kafka.
type Message struct {
	Key       []byte
	Value     []byte
	Topic     string
	Partition int32
	Offset    int64
	Timestamp time.Time
}

// Consumer читает топики в составе consumer group.
//
// Consume блокирует до отмены ctx или невосстановимой ошибки.
// Сообщение коммитится, только если handler вернул nil.
type Consumer interface {
	Consume(ctx context.Context, topics []string, handler func(msg *Message) error) error
	Close() error
}

var (
	consumerMetricsOnce sync.Once

	consumeErrors = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "ibcollector", Subsystem: "kafka_consumer", Name: "session_errors_total",
		Help: "Consumer group session failures",
	})
	consumedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "ibcollector", Subsystem: "kafka_consumer", Name: "messages_total",
		Help: "Consumed messages by topic and result",
	}, []string{"topic", "result"})
)

// RegisterConsumerMetrics регистрирует метрики консьюмера один раз.
func RegisterConsumerMetrics(r prometheus.Registerer) {
	consumerMetricsOnce.Do(func() {
		if r == nil {
			r = prometheus.DefaultRegisterer
		}
		r.MustRegister(consumeErrors, consumedTotal)
	})
}

// ConsumerConfig — параметры consumer group.
type ConsumerConfig struct {
	Brokers []string `mapstructure:"brokers"`
	GroupID string   `mapstructure:"group_id"`
	// Version — версия протокола Kafka, например "2.8.0".
	Version string `mapstructure:"version"`
	// FromOldest — читать с начала топика, если у группы нет коммитов.
	FromOldest bool           `mapstructure:"from_oldest"`
	Backoff    backoff.Config `mapstructure:"backoff"`
}

func (c *ConsumerConfig) applyDefaults() {
	if c.Version == "" {
		c.Version = "2.8.0"
	}
}

func (c ConsumerConfig) validate() error {
	if len(c.Brokers) == 0 {
		return fmt.Errorf("kafka consumer: brokers required")
	}
	if c.GroupID == "" {
		return fmt.Errorf("kafka consumer: group id required")
	}
	return nil
}

func buildConsumerConfig(c ConsumerConfig) (*sarama.Config, error) {
	version, err := sarama.ParseKafkaVersion(c.Version)
	if err != nil {
		return nil, fmt.Errorf("kafka consumer: invalid version %q: %w", c.Version, err)
	}
	sc := sarama.NewConfig()
	sc.Version = version
	sc.Consumer.Return.Errors = true
	if c.FromOldest {
		sc.Consumer.Offsets.Initial = sarama.OffsetOldest
	} else {
		sc.Consumer.Offsets.Initial = sarama.OffsetNewest
	}
	return sc, nil
}

type kafkaConsumerGroup struct {
	group      sarama.ConsumerGroup
	log        *logger.Logger
	backoffCfg backoff.Config
}

// NewConsumer подключает consumer group с ретраями.
func NewConsumer(ctx context.Context, cfg ConsumerConfig, log *logger.Logger) (Consumer, error) {
	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	log = log.Named("kafka-consumer")

	sc, err := buildConsumerConfig(cfg)
	if err != nil {
		return nil, err
	}

	ctx, span := tracer.Start(ctx, "ConsumerConnect",
		trace.WithAttributes(attribute.StringSlice("brokers", cfg.Brokers), attribute.String("group", cfg.GroupID)))
	defer span.End()

	var group sarama.ConsumerGroup
	connect := func(context.Context) error {
		g, err := sarama.NewConsumerGroup(cfg.Brokers, cfg.GroupID, sc)
		if err != nil {
			return err
		}
		group = g
		return nil
	}
	if err := backoff.Execute(ctx, cfg.Backoff, log, "kafka-consumer-connect", connect); err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("kafka consumer: connect: %w", err)
	}

	log.Info("kafka consumer group connected",
		zap.Strings("brokers", cfg.Brokers),
		zap.String("group", cfg.GroupID),
	)
	return &kafkaConsumerGroup{group: group, log: log, backoffCfg: cfg.Backoff}, nil
}

// Consume перезапускает сессии группы (ребалансировка, сбой брокера) до отмены ctx.
func (kc *kafkaConsumerGroup) Consume(ctx context.Context, topics []string, handler func(msg *Message) error) error {
	h := &groupHandler{handler: handler, log: kc.log}
	for {
		sctx, span := tracer.Start(ctx, "ConsumeSession",
			trace.WithAttributes(attribute.StringSlice("topics", topics)))
		err := kc.group.Consume(sctx, topics, h)
		span.End()

		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err == nil {
			continue
		}

		consumeErrors.Inc()
		kc.log.Error("consume session error", zap.Error(err))
		pause := func(ctx context.Context) error {
			select {
			case <-time.After(100 * time.Millisecond):
				return nil
			case <-ctx.Done():
				return ctx.Err()
			}
		}
		if berr := backoff.Execute(ctx, kc.backoffCfg, kc.log, "kafka-consume-pause", pause); berr != nil {
			return fmt.Errorf("kafka consumer: pause between sessions: %w", berr)
		}
	}
}

func (kc *kafkaConsumerGroup) Close() error {
	return kc.group.Close()
}

type groupHandler struct {
	handler func(msg *Message) error
	log     *logger.Logger
}

func (h *groupHandler) Setup(sarama.ConsumerGroupSession) error   { return nil }
func (h *groupHandler) Cleanup(sarama.ConsumerGroupSession) error { return nil }

func (h *groupHandler) ConsumeClaim(sess sarama.ConsumerGroupSession, claim sarama.ConsumerGroupClaim) error {
	for m := range claim.Messages() {
		if err := h.handle(sess.Context(), m); err == nil {
			sess.MarkMessage(m, "")
		}
	}
	return nil
}

func (h *groupHandler) handle(ctx context.Context, m *sarama.ConsumerMessage) error {
	_, span := tracer.Start(ctx, "HandleMessage",
		trace.WithAttributes(
			attribute.String("topic", m.Topic),
			attribute.Int64("offset", m.Offset),
		))
	defer span.End()

	err := h.handler(&Message{
		Key:       m.Key,
		Value:     m.Value,
		Topic:     m.Topic,
		Partition: m.Partition,
		Offset:    m.Offset,
		Timestamp: m.Timestamp,
	})
	if err != nil {
		consumedTotal.WithLabelValues(m.Topic, "error").Inc()
		span.RecordError(err)
		h.log.WithContext(ctx).Error("handler error",
			zap.String("topic", m.Topic),
			zap.Int64("offset", m.Offset),
			zap.Error(err),
		)
		return err
	}
	consumedTotal.WithLabelValues(m.Topic, "ok").Inc()
	return nil
}
