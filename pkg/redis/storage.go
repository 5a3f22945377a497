// pkg/redis/storage.go
package redis

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/YaganovValera/ibkr-collector/pkg/backoff"
	"github.com/YaganovValera/ibkr-collector/pkg/logger"
)

// ErrNotFound возвращается, если ключ отсутствует.
var ErrNotFound = errors.New("redis: key not found")

// Storage — key/value хранилище с TTL.
type Storage interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, key string) error
	Ping(ctx context.Context) error
	Close() error
}

var (
	metricsOnce sync.Once

	opErrors = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "ibcollector", Subsystem: "redis", Name: "errors_total",
		Help: "Redis operation errors",
	}, []string{"op"})
	opLatency = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "ibcollector", Subsystem: "redis", Name: "operation_latency_seconds",
		Help:    "Latency of Redis operations",
		Buckets: prometheus.DefBuckets,
	}, []string{"op"})

	tracer = otel.Tracer("redis-storage")
)

// RegisterMetrics регистрирует метрики Redis один раз.
func RegisterMetrics(r prometheus.Registerer) {
	metricsOnce.Do(func() {
		if r == nil {
			r = prometheus.DefaultRegisterer
		}
		r.MustRegister(opErrors, opLatency)
	})
}

// Config хранит параметры подключения.
type Config struct {
	URL     string         `mapstructure:"url"` // "redis://host:6379/0"
	TTL     time.Duration  `mapstructure:"ttl"` // по умолчанию 24h
	Prefix  string         `mapstructure:"prefix"`
	Backoff backoff.Config `mapstructure:"backoff"`
}

func (c *Config) applyDefaults() {
	if c.TTL <= 0 {
		c.TTL = 24 * time.Hour
	}
	if c.Prefix == "" {
		c.Prefix = "ibcollector:"
	}
}

func (c Config) validate() error {
	if c.URL == "" {
		return fmt.Errorf("redis: URL required")
	}
	return nil
}

type redisStorage struct {
	client     *redis.Client
	ttl        time.Duration
	prefix     string
	log        *logger.Logger
	backoffCfg backoff.Config
}

// New подключается к Redis с ретраями.
func New(ctx context.Context, cfg Config, log *logger.Logger) (Storage, error) {
	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	log = log.Named("redis")

	opts, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("redis: parse URL: %w", err)
	}
	client := redis.NewClient(opts)

	ctx, span := tracer.Start(ctx, "Connect", trace.WithAttributes(attribute.String("addr", opts.Addr)))
	defer span.End()
	ping := func(ctx context.Context) error { return client.Ping(ctx).Err() }
	if err := backoff.Execute(ctx, cfg.Backoff, log, "redis-connect", ping); err != nil {
		span.RecordError(err)
		_ = client.Close()
		return nil, fmt.Errorf("redis connect: %w", err)
	}
	log.Info("redis: connected", zap.String("addr", opts.Addr), zap.Int("db", opts.DB))

	return &redisStorage{
		client:     client,
		ttl:        cfg.TTL,
		prefix:     cfg.Prefix,
		log:        log,
		backoffCfg: cfg.Backoff,
	}, nil
}

func (r *redisStorage) do(ctx context.Context, op, key string, fn backoff.RetryableFunc) error {
	ctx, span := tracer.Start(ctx, op, trace.WithAttributes(attribute.String("key", key)))
	defer span.End()

	start := time.Now()
	err := backoff.Execute(ctx, r.backoffCfg, r.log, "redis-"+op, fn)
	opLatency.WithLabelValues(op).Observe(time.Since(start).Seconds())
	if err != nil && !errors.Is(err, ErrNotFound) {
		opErrors.WithLabelValues(op).Inc()
		span.RecordError(err)
		r.log.WithContext(ctx).Error("redis "+op+" failed", zap.String("key", key), zap.Error(err))
	}
	return err
}

func (r *redisStorage) Get(ctx context.Context, key string) ([]byte, error) {
	var data []byte
	err := r.do(ctx, "get", key, func(ctx context.Context) error {
		val, err := r.client.Get(ctx, r.prefix+key).Bytes()
		if errors.Is(err, redis.Nil) {
			return backoff.Permanent(ErrNotFound)
		}
		if err != nil {
			return err
		}
		data = val
		return nil
	})
	if errors.Is(err, ErrNotFound) {
		return nil, ErrNotFound
	}
	return data, err
}

func (r *redisStorage) Set(ctx context.Context, key string, value []byte) error {
	return r.do(ctx, "set", key, func(ctx context.Context) error {
		return r.client.Set(ctx, r.prefix+key, value, r.ttl).Err()
	})
}

func (r *redisStorage) Delete(ctx context.Context, key string) error {
	return r.do(ctx, "del", key, func(ctx context.Context) error {
		return r.client.Del(ctx, r.prefix+key).Err()
	})
}

func (r *redisStorage) Ping(ctx context.Context) error { return r.client.Ping(ctx).Err() }

func (r *redisStorage) Close() error { return r.client.Close() }
