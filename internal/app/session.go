// internal/app/session.go
package app

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/YaganovValera/ibkr-collector/internal/config"
	"github.com/YaganovValera/ibkr-collector/internal/contracts"
	"github.com/YaganovValera/ibkr-collector/internal/metrics"
	"github.com/YaganovValera/ibkr-collector/internal/processor"
	"github.com/YaganovValera/ibkr-collector/pkg/backoff"
	"github.com/YaganovValera/ibkr-collector/pkg/ibapi/client"
	"github.com/YaganovValera/ibkr-collector/pkg/ibapi/domain"
	"github.com/YaganovValera/ibkr-collector/pkg/ibapi/message"
	"github.com/YaganovValera/ibkr-collector/pkg/logger"
	"github.com/YaganovValera/ibkr-collector/pkg/safe"
)

// Причины завершения сессии для metrics.Sessions.
const (
	endShutdown = "shutdown"
	endLost     = "lost"
	endFailed   = "failed"
)

// ErrGatewayNotReady отдаётся readiness-пробой, пока нет готовой сессии.
var ErrGatewayNotReady = errors.New("gateway session not ready")

const (
	// accountsWait — сколько ждать ManagedAccts, если счёт не задан в конфиге.
	accountsWait = 2 * time.Second
	// cancelTimeout — на отмену подписок при остановке.
	cancelTimeout = 2 * time.Second
)

// Collector держит сессию со шлюзом: подключается с back-off, открывает
// подписки из конфига и складывает все события в общий канал.
// После потери соединения всё повторяется заново.
type Collector struct {
	gw       config.GatewayConfig
	subs     config.SubscriptionsConfig
	router   *processor.Router
	resolver *contracts.Resolver
	log      *logger.Logger

	out  chan message.Event
	conn atomic.Pointer[client.Conn]

	dial func(ctx context.Context) (*client.Conn, error)
}

// NewCollector создаёт коллектор; buffer — ёмкость канала событий.
func NewCollector(
	gw config.GatewayConfig,
	subs config.SubscriptionsConfig,
	router *processor.Router,
	resolver *contracts.Resolver,
	buffer int,
	log *logger.Logger,
) *Collector {
	if buffer <= 0 {
		buffer = 1024
	}
	c := &Collector{
		gw:       gw,
		subs:     subs,
		router:   router,
		resolver: resolver,
		log:      log.Named("collector"),
		out:      make(chan message.Event, buffer),
	}
	c.dial = func(ctx context.Context) (*client.Conn, error) {
		return client.Dial(ctx, c.gw.Config, log)
	}
	return c
}

// Events — общий канал событий всех сессий. Не закрывается.
func (c *Collector) Events() <-chan message.Event { return c.out }

// Ready — есть сессия в состоянии Ready.
func (c *Collector) Ready() error {
	if conn := c.conn.Load(); conn != nil && conn.Ready() {
		return nil
	}
	return ErrGatewayNotReady
}

// Run держит сессии до отмены ctx.
func (c *Collector) Run(ctx context.Context) error {
	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		var conn *client.Conn
		err := backoff.Execute(ctx, c.gw.Backoff, c.log, "gateway-dial", func(ctx context.Context) error {
			cn, err := c.dial(ctx)
			if err != nil {
				return err
			}
			conn = cn
			return nil
		})
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("gateway connect failed: %w", err)
		}

		reason := c.session(ctx, conn)
		metrics.Sessions.WithLabelValues(reason).Inc()
	}
}

// session обслуживает одно соединение и возвращает причину его завершения.
func (c *Collector) session(ctx context.Context, conn *client.Conn) string {
	c.conn.Store(conn)
	metrics.GatewayUp.Set(1)
	log := c.log.With(zap.Int("server_version", conn.ServerVersion()))

	g := safe.New(ctx, c.log)
	g.Go("unsolicited", func(ctx context.Context) error {
		c.pumpUnsolicited(ctx, conn)
		return nil
	})

	subs := c.subscribe(g.Context(), conn)
	for _, s := range subs {
		s := s
		g.Go(fmt.Sprintf("sub-%d", s.ID()), func(ctx context.Context) error {
			c.pump(ctx, s)
			return nil
		})
	}
	log.Info("session started", zap.Int("subscriptions", len(subs)))

	reason := endShutdown
	select {
	case <-g.Context().Done():
		if ctx.Err() == nil {
			// упала одна из goroutine сессии
			reason = endFailed
			log.Error("session worker failed", zap.Error(g.Err()))
			break
		}
		cctx, ccancel := context.WithTimeout(context.Background(), cancelTimeout)
		for _, s := range subs {
			if err := s.Cancel(cctx); err != nil {
				log.Debug("cancel subscription", zap.Int64("id", s.ID()), zap.Error(err))
			}
		}
		ccancel()
	case <-conn.Done():
		reason = endLost
		log.Warn("gateway session lost", zap.Error(conn.Err()))
	}

	c.conn.Store(nil)
	metrics.GatewayUp.Set(0)
	_ = conn.Close()
	g.Cancel()
	_ = g.Wait()
	for _, s := range subs {
		c.router.Forget(s.ID())
	}
	return reason
}

// subscribe открывает подписки из конфига. Ошибка одной подписки не мешает остальным.
func (c *Collector) subscribe(ctx context.Context, conn *client.Conn) []*client.Subscription {
	var subs []*client.Subscription
	keep := func(what string, s *client.Subscription, err error) bool {
		if err != nil {
			c.log.WithContext(ctx).Warn("subscribe failed", zap.String("what", what), zap.Error(err))
			return false
		}
		subs = append(subs, s)
		return true
	}

	if t := c.subs.MarketDataType; t > 0 {
		if err := conn.SetMarketDataType(ctx, domain.MarketDataKind(t)); err != nil {
			c.log.WithContext(ctx).Warn("set market data type failed", zap.Error(err))
		}
	}

	if account := c.account(ctx, conn); account != "" {
		s, err := conn.AccountUpdates(ctx, account)
		keep("account updates "+account, s, err)
	}

	if len(c.subs.AccountSummaryTags) > 0 {
		s, err := conn.AccountSummary(ctx, c.subs.AccountSummaryGroup, c.subs.AccountSummaryTags)
		keep("account summary", s, err)
	}

	for _, md := range c.subs.MarketData {
		if conn.State().Terminal() {
			break
		}
		label := strings.ToUpper(md.Symbol)
		rctx, cancel := context.WithTimeout(ctx, c.resolveTimeout())
		contract, err := c.resolver.Resolve(rctx, md.Contract(), conn.ContractDetails)
		cancel()
		if err != nil {
			c.log.WithContext(ctx).Warn("resolve contract failed", zap.String("symbol", label), zap.Error(err))
			continue
		}
		s, err := conn.MarketData(ctx, client.MarketDataRequest{Contract: contract, GenericTicks: md.GenericTicks})
		if keep("market data "+label, s, err) {
			c.router.Label(s.ID(), label)
		}
		if md.RealtimeBars != "" {
			s, err := conn.RealtimeBars(ctx, client.RealtimeBarsRequest{
				Contract:   contract,
				WhatToShow: domain.BarSource(strings.ToUpper(md.RealtimeBars)),
				UseRTH:     md.UseRTH,
			})
			if keep("realtime bars "+label, s, err) {
				c.router.Label(s.ID(), label)
			}
		}
	}
	return subs
}

func (c *Collector) resolveTimeout() time.Duration {
	if c.subs.ResolveTimeout > 0 {
		return c.subs.ResolveTimeout
	}
	return 10 * time.Second
}

// account — счёт из конфига или первый из ManagedAccts.
func (c *Collector) account(ctx context.Context, conn *client.Conn) string {
	if c.subs.Account != "" {
		return c.subs.Account
	}
	deadline := time.NewTimer(accountsWait)
	defer deadline.Stop()
	tick := time.NewTicker(20 * time.Millisecond)
	defer tick.Stop()
	for {
		if accts := conn.Accounts(); len(accts) > 0 {
			return accts[0]
		}
		select {
		case <-tick.C:
		case <-deadline.C:
			c.log.WithContext(ctx).Warn("no managed accounts reported, account updates skipped")
			return ""
		case <-ctx.Done():
			return ""
		}
	}
}

// pump переносит события одной подписки в общий канал до её закрытия.
func (c *Collector) pump(ctx context.Context, s *client.Subscription) {
	for {
		ev, err := s.Next(ctx)
		if err != nil {
			var apiErr *client.APIError
			if errors.As(err, &apiErr) {
				c.log.WithContext(ctx).Warn("subscription error",
					zap.Int64("id", apiErr.ID),
					zap.Int("code", apiErr.Code),
					zap.String("message", apiErr.Message),
				)
				c.emit(ctx, message.ErrorMessage{ID: apiErr.ID, ErrCode: apiErr.Code, Message: apiErr.Message})
				continue
			}
			return
		}
		c.emit(ctx, ev)
	}
}

func (c *Collector) pumpUnsolicited(ctx context.Context, conn *client.Conn) {
	for {
		select {
		case ev := <-conn.Events():
			c.emit(ctx, ev)
		case <-ctx.Done():
			return
		}
	}
}

// emit ставит событие в очередь. Котировки при переполнении отбрасываются,
// остальные события ждут места.
func (c *Collector) emit(ctx context.Context, ev message.Event) {
	if processor.IsTick(ev) {
		select {
		case c.out <- ev:
		default:
			metrics.BufferDrops.Inc()
		}
		return
	}
	select {
	case c.out <- ev:
	case <-ctx.Done():
	}
}
