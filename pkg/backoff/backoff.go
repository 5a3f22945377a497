// pkg/backoff/backoff.go
package backoff

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/YaganovValera/ibkr-collector/pkg/logger"
)

// -----------------------------------------------------------------------------
// Метрики
// -----------------------------------------------------------------------------

var (
	serviceLabel = "unknown"
	once         sync.Once

	retries = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "ibcollector", Subsystem: "backoff", Name: "retries_total",
		Help: "Number of back-off retry attempts",
	}, []string{"service", "op"})
	failures = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "ibcollector", Subsystem: "backoff", Name: "failures_total",
		Help: "Number of operations that gave up after retries",
	}, []string{"service", "op"})
	delays = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "ibcollector", Subsystem: "backoff", Name: "retry_delay_seconds",
		Help:    "Histogram of retry delays (seconds)",
		Buckets: prometheus.DefBuckets,
	}, []string{"service", "op"})
)

// SetServiceLabel вызывается один раз из main до первого Execute.
func SetServiceLabel(name string) { serviceLabel = name }

// RegisterMetrics регистрирует метрики back-off. Повторные вызовы игнорируются.
func RegisterMetrics(r prometheus.Registerer) {
	once.Do(func() {
		if r == nil {
			r = prometheus.DefaultRegisterer
		}
		r.MustRegister(retries, failures, delays)
	})
}

// -----------------------------------------------------------------------------
// Конфигурация
// -----------------------------------------------------------------------------

// Config описывает экспоненциальный back-off. Нулевые значения → дефолты.
type Config struct {
	// InitialInterval — первая задержка перед повтором.
	InitialInterval time.Duration `mapstructure:"initial_interval"`

	// RandomizationFactor добавляет ±jitter, 0.0 ≤ f ≤ 1.0.
	RandomizationFactor float64 `mapstructure:"randomization_factor"`

	// Multiplier умножает предыдущую задержку.
	Multiplier float64 `mapstructure:"multiplier"`

	// MaxInterval ограничивает одну задержку.
	MaxInterval time.Duration `mapstructure:"max_interval"`

	// MaxElapsedTime — общее время на все попытки. Ноль → без ограничения.
	MaxElapsedTime time.Duration `mapstructure:"max_elapsed_time"`

	// PerAttemptTimeout ограничивает один вызов fn. Ноль → без таймаута.
	PerAttemptTimeout time.Duration `mapstructure:"per_attempt_timeout"`
}

func (c *Config) applyDefaults() {
	if c.InitialInterval <= 0 {
		c.InitialInterval = time.Second
	}
	if c.RandomizationFactor <= 0 {
		c.RandomizationFactor = 0.5
	}
	if c.Multiplier <= 0 {
		c.Multiplier = 2.0
	}
	if c.MaxInterval <= 0 {
		c.MaxInterval = 30 * time.Second
	}
}

func (c Config) validate() error {
	if c.RandomizationFactor < 0 || c.RandomizationFactor > 1 {
		return fmt.Errorf("backoff: RandomizationFactor must be in [0,1]")
	}
	if c.Multiplier < 1 {
		return fmt.Errorf("backoff: Multiplier must be ≥ 1")
	}
	return nil
}

// RetryableFunc — единица работы, повторяемая до успеха или отказа.
type RetryableFunc func(ctx context.Context) error

// ErrMaxRetries возвращается, когда все попытки исчерпаны.
type ErrMaxRetries struct {
	Op       string
	Err      error // последняя ошибка fn
	Attempts int
}

func (e *ErrMaxRetries) Error() string {
	return fmt.Sprintf("backoff: %s: %d attempt(s) failed: %v", e.Op, e.Attempts, e.Err)
}
func (e *ErrMaxRetries) Unwrap() error { return e.Err }

// Permanent помечает ошибку как неповторяемую.
func Permanent(err error) error { return backoff.Permanent(err) }

// Execute выполняет fn с экспоненциальным back-off, пишет метрики и логи.
// op — короткое имя операции для метрик ("gateway-dial", "kafka-publish").
func Execute(ctx context.Context, cfg Config, log *logger.Logger, op string, fn RetryableFunc) error {
	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return fmt.Errorf("backoff: invalid config: %w", err)
	}

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = cfg.InitialInterval
	bo.RandomizationFactor = cfg.RandomizationFactor
	bo.Multiplier = cfg.Multiplier
	bo.MaxInterval = cfg.MaxInterval
	// 0 у cenkalti означает "никогда не останавливаться"
	bo.MaxElapsedTime = cfg.MaxElapsedTime
	bo.Reset()

	attempts := 0
	operation := func() error {
		attempts++
		if cfg.PerAttemptTimeout > 0 {
			atCtx, cancel := context.WithTimeout(ctx, cfg.PerAttemptTimeout)
			defer cancel()
			return fn(atCtx)
		}
		return fn(ctx)
	}
	notify := func(err error, delay time.Duration) {
		retries.WithLabelValues(serviceLabel, op).Inc()
		delays.WithLabelValues(serviceLabel, op).Observe(delay.Seconds())
		log.WithContext(ctx).Warn("back-off retry",
			zap.String("op", op),
			zap.Int("attempt", attempts),
			zap.Duration("delay", delay),
			zap.Error(err),
		)
	}

	if err := backoff.RetryNotify(operation, backoff.WithContext(bo, ctx), notify); err != nil {
		failures.WithLabelValues(serviceLabel, op).Inc()
		log.WithContext(ctx).Error("back-off give-up",
			zap.String("op", op),
			zap.Int("attempts", attempts),
			zap.Error(err),
		)
		return &ErrMaxRetries{Op: op, Err: err, Attempts: attempts}
	}
	return nil
}
