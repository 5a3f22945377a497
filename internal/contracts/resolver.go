// internal/contracts/resolver.go
package contracts

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/YaganovValera/ibkr-collector/internal/metrics"
	"github.com/YaganovValera/ibkr-collector/pkg/ibapi/domain"
	"github.com/YaganovValera/ibkr-collector/pkg/logger"
	"github.com/YaganovValera/ibkr-collector/pkg/redis"
)

// ErrNoMatch — шлюз не нашёл ни одного контракта.
var ErrNoMatch = errors.New("contracts: no matching contract")

// Fetcher запрашивает contract details у шлюза (обычно (*client.Conn).ContractDetails).
type Fetcher func(ctx context.Context, c domain.Contract) ([]domain.ContractDetails, error)

var tracer = otel.Tracer("collector/contracts")

// Resolver превращает частично заданный контракт в полный, кэшируя ответы шлюза в Redis.
// store == nil → кэш выключен, каждый вызов идёт в шлюз.
type Resolver struct {
	store redis.Storage
	log   *logger.Logger
}

func NewResolver(store redis.Storage, log *logger.Logger) *Resolver {
	return &Resolver{store: store, log: log.Named("contracts")}
}

func cacheKey(c domain.Contract) string { return "contract:" + c.Key() }

// Details возвращает все совпадения для c. Ошибки кэша не фатальны.
func (r *Resolver) Details(ctx context.Context, c domain.Contract, fetch Fetcher) ([]domain.ContractDetails, error) {
	key := cacheKey(c)
	ctx, span := tracer.Start(ctx, "Resolve")
	defer span.End()
	span.SetAttributes(attribute.String("contract.key", key))

	if r.store != nil {
		data, err := r.store.Get(ctx, key)
		switch {
		case err == nil:
			var out []domain.ContractDetails
			if uerr := json.Unmarshal(data, &out); uerr == nil && len(out) > 0 {
				metrics.CacheHits.Inc()
				return out, nil
			}
			r.log.WithContext(ctx).Warn("corrupt cache entry, refetching", zap.String("key", key))
		case errors.Is(err, redis.ErrNotFound):
		default:
			r.log.WithContext(ctx).Warn("cache read failed", zap.String("key", key), zap.Error(err))
		}
	}
	metrics.CacheMisses.Inc()

	out, err := fetch(ctx, c)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("contracts: fetch %s: %w", key, err)
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrNoMatch, key)
	}

	if r.store != nil {
		if data, err := json.Marshal(out); err == nil {
			if err := r.store.Set(ctx, key, data); err != nil {
				r.log.WithContext(ctx).Warn("cache write failed", zap.String("key", key), zap.Error(err))
			}
		}
	}
	return out, nil
}

// Resolve возвращает контракт первого совпадения; conId заполнен.
func (r *Resolver) Resolve(ctx context.Context, c domain.Contract, fetch Fetcher) (domain.Contract, error) {
	out, err := r.Details(ctx, c, fetch)
	if err != nil {
		return domain.Contract{}, err
	}
	if len(out) > 1 {
		r.log.WithContext(ctx).Debug("ambiguous contract, using first match",
			zap.String("key", cacheKey(c)),
			zap.Int("matches", len(out)),
		)
	}
	resolved := out[0].Contract
	if resolved.Exchange == "" {
		resolved.Exchange = c.Exchange
	}
	return resolved, nil
}
