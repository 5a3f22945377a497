// internal/processor/processor.go
package processor

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"

	"github.com/YaganovValera/ibkr-collector/internal/metrics"
	"github.com/YaganovValera/ibkr-collector/pkg/ibapi/message"
	"github.com/YaganovValera/ibkr-collector/pkg/kafka"
	"github.com/YaganovValera/ibkr-collector/pkg/logger"
)

var tracer = otel.Tracer("collector/processor")

type eventProcessor struct {
	producer kafka.Producer
	router   *Router
	encoder  Encoder
	source   string
	log      *logger.Logger
	now      func() time.Time
}

// New собирает процессор: маршрут → конверт → Kafka.
// source попадает в каждый конверт (обычно адрес шлюза и client id).
func New(p kafka.Producer, router *Router, enc Encoder, source string, log *logger.Logger) Processor {
	return &eventProcessor{
		producer: p,
		router:   router,
		encoder:  enc,
		source:   source,
		log:      log.Named("processor"),
		now:      time.Now,
	}
}

func (p *eventProcessor) Process(ctx context.Context, ev message.Event) error {
	start := p.now()
	typ := EventType(ev)
	topic, key := p.router.Route(ev)

	ctx, span := tracer.Start(ctx, "Process")
	defer span.End()
	span.SetAttributes(
		attribute.String("event.type", typ),
		attribute.String("messaging.destination", topic),
	)
	metrics.EventsTotal.WithLabelValues(typ).Inc()

	env := Envelope{
		Type:       typ,
		Code:       ev.Code(),
		Source:     p.source,
		ReceivedAt: start.UTC(),
		Payload:    ev,
	}
	if id, ok := ev.RequestID(); ok {
		env.RequestID = &id
		if l, ok := p.router.LabelOf(id); ok {
			env.Label = l
		}
	}

	data, err := p.encoder.Encode(env)
	if err != nil {
		metrics.PublishErrors.WithLabelValues(topic).Inc()
		p.log.WithContext(ctx).Error("encode event failed",
			zap.String("event_type", typ),
			zap.Error(err),
		)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}

	var k []byte
	if key != "" {
		k = []byte(key)
	}
	if err := p.producer.Publish(ctx, topic, k, data); err != nil {
		metrics.PublishErrors.WithLabelValues(topic).Inc()
		p.log.WithContext(ctx).Error("publish event failed",
			zap.String("event_type", typ),
			zap.String("topic", topic),
			zap.Error(err),
		)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}
	metrics.PublishLatency.Observe(time.Since(start).Seconds())
	return nil
}
