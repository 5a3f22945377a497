// internal/app/collector.go
package app

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/YaganovValera/ibkr-collector/internal/config"
	"github.com/YaganovValera/ibkr-collector/internal/contracts"
	"github.com/YaganovValera/ibkr-collector/internal/metrics"
	"github.com/YaganovValera/ibkr-collector/internal/processor"
	"github.com/YaganovValera/ibkr-collector/pkg/backoff"
	"github.com/YaganovValera/ibkr-collector/pkg/httpserver"
	"github.com/YaganovValera/ibkr-collector/pkg/ibapi/client"
	"github.com/YaganovValera/ibkr-collector/pkg/kafka"
	"github.com/YaganovValera/ibkr-collector/pkg/logger"
	"github.com/YaganovValera/ibkr-collector/pkg/redis"
	"github.com/YaganovValera/ibkr-collector/pkg/telemetry"
)

// Run поднимает коллектор: шлюз → конвейер → Kafka, плюс HTTP для метрик и проб.
func Run(ctx context.Context, cfg *config.Config, log *logger.Logger) error {
	backoff.SetServiceLabel(cfg.ServiceName)
	registerMetrics(prometheus.DefaultRegisterer)

	// Трассировка
	cfg.Telemetry.ServiceName = cfg.ServiceName
	cfg.Telemetry.ServiceVersion = cfg.ServiceVersion
	if cfg.Telemetry.Attributes == nil {
		cfg.Telemetry.Attributes = map[string]string{}
	}
	cfg.Telemetry.Attributes[string(telemetry.GatewayAddrKey)] = cfg.Gateway.Addr
	cfg.Telemetry.Attributes[string(telemetry.ClientIDKey)] = strconv.Itoa(cfg.Gateway.ClientID)
	shutdownTracer, err := telemetry.InitTracer(ctx, cfg.Telemetry, log)
	if err != nil {
		return fmt.Errorf("init tracer: %w", err)
	}
	defer shutdownSafe(ctx, "telemetry", shutdownTracer, log)

	// Kafka Producer
	kafkaProd, err := kafka.New(ctx, cfg.Kafka.Config, log)
	if err != nil {
		return fmt.Errorf("kafka producer init: %w", err)
	}
	defer shutdownSafe(ctx, "kafka-producer", closer(kafkaProd.Close), log)

	// Redis (необязателен)
	var store redis.Storage
	if cfg.Redis.URL != "" {
		store, err = redis.New(ctx, cfg.Redis, log)
		if err != nil {
			return fmt.Errorf("redis init: %w", err)
		}
		defer shutdownSafe(ctx, "redis", closer(store.Close), log)
	} else {
		log.Info("redis disabled: contract details are not cached")
	}

	enc, err := processor.NewEncoder(cfg.Kafka.Encoding)
	if err != nil {
		return err
	}
	router := processor.NewRouter(cfg.Kafka.EventsTopic, cfg.Kafka.TicksTopic, cfg.Kafka.BarsTopic)
	source := cfg.Gateway.Addr + "/" + strconv.Itoa(cfg.Gateway.ClientID)
	proc := processor.New(kafkaProd, router, enc, source, log)
	dispatcher := processor.NewDispatcher(proc, log)

	collector := NewCollector(cfg.Gateway, cfg.Subscriptions, router,
		contracts.NewResolver(store, log), cfg.Gateway.EventBuffer, log)

	// HTTP-сервер
	readiness := func() error {
		if err := collector.Ready(); err != nil {
			return err
		}
		return kafkaProd.Ping(ctx)
	}
	httpSrv, err := httpserver.New(cfg.HTTP, readiness, prometheus.DefaultGatherer, log)
	if err != nil {
		return fmt.Errorf("httpserver init: %w", err)
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return httpSrv.Start(ctx) })
	g.Go(func() error { return dispatcher.Run(ctx, collector.Events()) })
	g.Go(func() error { return collector.Run(ctx) })

	if err := g.Wait(); err != nil {
		if errors.Is(err, context.Canceled) {
			log.WithContext(ctx).Info("collector stopped by context")
			return nil
		}
		return err
	}
	return nil
}

func registerMetrics(r prometheus.Registerer) {
	metrics.Register(r)
	client.RegisterMetrics(r)
	backoff.RegisterMetrics(r)
	httpserver.RegisterMetrics(r)
	kafka.RegisterMetrics(r)
	redis.RegisterMetrics(r)
}

// shutdownTimeout ограничивает каждую функцию остановки.
const shutdownTimeout = 5 * time.Second

// shutdownSafe выполняет функцию остановки с таймаутом и логированием.
func shutdownSafe(ctx context.Context, name string, fn func(ctx context.Context) error, log *logger.Logger) {
	sctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()

	log.WithContext(ctx).Info(fmt.Sprintf("%s: shutting down", name))
	if err := fn(sctx); err != nil {
		log.WithContext(ctx).Error(fmt.Sprintf("%s shutdown error", name), zap.Error(err))
	} else {
		log.WithContext(ctx).Info(fmt.Sprintf("%s: shutdown complete", name))
	}
}

func closer(fn func() error) func(context.Context) error {
	return func(context.Context) error { return fn() }
}
