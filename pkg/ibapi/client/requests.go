package client

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/YaganovValera/ibkr-collector/pkg/ibapi/command"
	"github.com/YaganovValera/ibkr-collector/pkg/ibapi/domain"
	"github.com/YaganovValera/ibkr-collector/pkg/ibapi/iberr"
	"github.com/YaganovValera/ibkr-collector/pkg/ibapi/message"
	"github.com/YaganovValera/ibkr-collector/pkg/ibapi/registry"
	"github.com/YaganovValera/ibkr-collector/pkg/telemetry"
)

var (
	// ErrNoOrderID is returned by NextOrderID before the gateway sent a valid id.
	ErrNoOrderID = errors.New("ibapi client: no valid order id received yet")
	// ErrNoListing is returned by Orders for auto-open orders, which the
	// gateway streams without an end marker. Use AutoOpenOrders instead.
	ErrNoListing = errors.New("ibapi client: order kind has no listing")
)

// MarketDataRequest describes a market data subscription or snapshot.
type MarketDataRequest struct {
	Contract           domain.Contract
	GenericTicks       []string
	Snapshot           bool
	RegulatorySnapshot bool
}

// RealtimeBarsRequest describes a five-second bars subscription.
type RealtimeBarsRequest struct {
	Contract   domain.Contract
	WhatToShow domain.BarSource
	UseRTH     bool
}

/* --- helpers --- */

// bound applies d when ctx carries no deadline of its own.
func (c *Conn) bound(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if _, ok := ctx.Deadline(); ok {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, d)
}

func (c *Conn) startSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return c.tracer.Start(ctx, "ibapi."+name, trace.WithAttributes(telemetry.SpanAttrs(c.spanAttrs, attrs...)...))
}

func recordErr(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
}

func observe(name string, start time.Time, err error) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	requestLatency.WithLabelValues(name, status).Observe(time.Since(start).Seconds())
}

func ctxErr(ctx context.Context, name string) error {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return fmt.Errorf("%w: %s", iberr.ErrTimeout, name)
	}
	return ctx.Err()
}

func isEnd(codes ...int) func(message.Event) bool {
	return func(ev message.Event) bool {
		if em, ok := ev.(message.ErrorMessage); ok {
			return !em.IsWarning()
		}
		for _, code := range codes {
			if ev.Code() == code {
				return true
			}
		}
		return false
	}
}

// await registers key, sends cmd and reads deliveries until the
// registration retires. take returns false to stop early.
func (c *Conn) await(ctx context.Context, key registry.Key, mode registry.Mode, terminal func(message.Event) bool,
	cmd command.Command, take func(message.Event) bool) error {
	name := command.Name(cmd)
	sub, err := c.reg.Register(key, mode, terminal)
	if err != nil {
		if errors.Is(err, registry.ErrDuplicateKey) {
			return fmt.Errorf("ibapi client: %s already in flight: %w", name, err)
		}
		return err
	}
	if err := c.send(ctx, cmd); err != nil {
		sub.Cancel()
		return err
	}

	for {
		select {
		case d, ok := <-sub.C():
			if !ok {
				return nil
			}
			if d.Err != nil {
				return d.Err
			}
			if em, ok := d.Value.(message.ErrorMessage); ok {
				if em.IsWarning() {
					c.log.Debug("notice for pending request", zap.String("command", name), zap.Int("code", em.ErrCode), zap.String("msg", em.Message))
					continue
				}
				return apiError(em)
			}
			if !take(d.Value) {
				sub.Cancel()
				return nil
			}
		case <-ctx.Done():
			sub.Cancel()
			return ctxErr(ctx, name)
		}
	}
}

// stream registers key, sends cmd and hands the live registration to the caller.
func (c *Conn) stream(ctx context.Context, key registry.Key, mode registry.Mode, terminal func(message.Event) bool,
	cmd command.Command, cancel func(context.Context) error) (*Subscription, error) {
	sub, err := c.reg.Register(key, mode, terminal)
	if err != nil {
		return nil, fmt.Errorf("ibapi client: %s: %w", command.Name(cmd), err)
	}
	if err := c.send(ctx, cmd); err != nil {
		sub.Cancel()
		return nil, err
	}
	return &Subscription{id: key.ID, sub: sub, cancel: cancel}, nil
}

/* --- commands --- */

// CurrentTime asks the gateway for its clock.
func (c *Conn) CurrentTime(ctx context.Context) (t time.Time, err error) {
	const name = "RequestCurrentTime"
	ctx, span := c.startSpan(ctx, name)
	defer func(start time.Time) { observe(name, start, err); recordErr(span, err); span.End() }(time.Now())

	ctx, cancel := c.bound(ctx, c.cfg.RequestTimeout)
	defer cancel()

	err = c.await(ctx, registry.TopicKey(registry.TopicCurrentTime), registry.SingleShot, nil,
		command.RequestCurrentTime{}, func(ev message.Event) bool {
			if ct, ok := ev.(message.CurrentTime); ok {
				t = ct.Time
			}
			return false
		})
	return t, err
}

func (c *Conn) SetServerLogLevel(ctx context.Context, level domain.ServerLogLevel) error {
	return c.send(ctx, command.SetServerLogLevel{Level: level})
}

func (c *Conn) SetMarketDataType(ctx context.Context, kind domain.MarketDataKind) error {
	return c.send(ctx, command.RequestMarketDataType{Kind: kind})
}

// RequestIDs asks for a fresh valid order id and returns it.
func (c *Conn) RequestIDs(ctx context.Context) (id int64, err error) {
	const name = "RequestIDs"
	ctx, span := c.startSpan(ctx, name)
	defer func(start time.Time) { observe(name, start, err); recordErr(span, err); span.End() }(time.Now())

	ctx, cancel := c.bound(ctx, c.cfg.RequestTimeout)
	defer cancel()

	err = c.await(ctx, registry.TopicKey(registry.TopicNextValidID), registry.SingleShot, nil,
		command.RequestIDs{NumIDs: 1}, func(ev message.Event) bool {
			if nv, ok := ev.(message.NextValidID); ok {
				id = nv.OrderID
			}
			return false
		})
	return id, err
}

// NextOrderID hands out order ids starting at the last valid id the
// gateway announced.
func (c *Conn) NextOrderID() (int64, error) {
	for {
		cur := c.nextOrderID.Load()
		if cur <= 0 {
			return 0, ErrNoOrderID
		}
		if c.nextOrderID.CompareAndSwap(cur, cur+1) {
			return cur, nil
		}
	}
}

// PlaceOrder submits the order and returns once the frame is written.
// The ticket streams events for orderID until cancelled.
func (c *Conn) PlaceOrder(ctx context.Context, orderID int64, contract domain.Contract, order domain.Order) (_ *OrderTicket, err error) {
	const name = "PlaceOrder"
	ctx, span := c.startSpan(ctx, name, telemetry.OrderIDKey.Int64(orderID), telemetry.SymbolKey.String(contract.Symbol))
	defer func() { recordErr(span, err); span.End() }()

	sub, err := c.stream(ctx, registry.OrderKey(orderID), registry.Stream, nil,
		command.PlaceOrder{OrderID: orderID, Contract: contract, Order: order}, nil)
	if err != nil {
		return nil, err
	}
	c.log.Info("order placed",
		zap.Int64("order_id", orderID),
		zap.String("symbol", contract.Symbol),
		zap.String("action", string(order.Action)),
		zap.String("qty", order.TotalQuantity.String()),
	)
	return &OrderTicket{Subscription: sub}, nil
}

func (c *Conn) CancelOrder(ctx context.Context, orderID int64) error {
	return c.send(ctx, command.CancelOrder{OrderID: orderID})
}

// Executions returns today's fills matching filter; nil matches all.
func (c *Conn) Executions(ctx context.Context, filter *domain.ExecutionFilter) (out []message.ExecutionData, err error) {
	const name = "RequestExecutions"
	id := c.reg.NextID()
	ctx, span := c.startSpan(ctx, name, telemetry.RequestIDKey.Int64(id))
	defer func(start time.Time) { observe(name, start, err); recordErr(span, err); span.End() }(time.Now())

	ctx, cancel := c.bound(ctx, c.cfg.RequestTimeout)
	defer cancel()

	err = c.await(ctx, registry.RequestKey(id), registry.Collect, isEnd(message.CodeExecutionDataEnd),
		command.RequestExecutions{RequestID: id, Filter: filter}, func(ev message.Event) bool {
			if x, ok := ev.(message.ExecutionData); ok {
				out = append(out, x)
			}
			return true
		})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// ContractDetails returns every contract matching the partial description.
func (c *Conn) ContractDetails(ctx context.Context, contract domain.Contract) (out []domain.ContractDetails, err error) {
	const name = "RequestContractDetails"
	id := c.reg.NextID()
	ctx, span := c.startSpan(ctx, name, telemetry.RequestIDKey.Int64(id), telemetry.SymbolKey.String(contract.Symbol))
	defer func(start time.Time) { observe(name, start, err); recordErr(span, err); span.End() }(time.Now())

	ctx, cancel := c.bound(ctx, c.cfg.RequestTimeout)
	defer cancel()

	err = c.await(ctx, registry.RequestKey(id), registry.Collect, isEnd(message.CodeContractDataEnd),
		command.RequestContractDetails{RequestID: id, Contract: contract}, func(ev message.Event) bool {
			if cd, ok := ev.(message.ContractDetails); ok {
				out = append(out, cd.Details)
			}
			return true
		})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Orders lists open, all open or completed orders.
func (c *Conn) Orders(ctx context.Context, kind domain.OrderKind) (out []message.OrderInfo, err error) {
	if kind == domain.OrdersAutoOpen {
		return nil, fmt.Errorf("%w: %s", ErrNoListing, kind)
	}
	name := "RequestOrders/" + kind.String()
	ctx, span := c.startSpan(ctx, name)
	defer func(start time.Time) { observe(name, start, err); recordErr(span, err); span.End() }(time.Now())

	ctx, cancel := c.bound(ctx, c.cfg.RequestTimeout)
	defer cancel()

	key, end := registry.TopicKey(registry.TopicOpenOrders), message.CodeOpenOrderEnd
	if kind == domain.OrdersCompleted {
		key, end = registry.TopicKey(registry.TopicCompletedOrders), message.CodeCompletedOrdersEnd
	}
	err = c.await(ctx, key, registry.Collect, isEnd(end),
		command.RequestOrders{Kind: kind}, func(ev message.Event) bool {
			switch o := ev.(type) {
			case message.OpenOrder:
				out = append(out, o.OrderInfo)
			case message.CompletedOrder:
				out = append(out, o.OrderInfo)
			}
			return true
		})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// AutoOpenOrders asks the gateway to forward orders placed in TWS. With
// autoBind they are bound to this client. The orders arrive as OpenOrder
// and OrderStatus events on Events; nothing marks the end.
func (c *Conn) AutoOpenOrders(ctx context.Context, autoBind bool) error {
	return c.send(ctx, command.RequestOrders{Kind: domain.OrdersAutoOpen, AutoBind: autoBind})
}

// RealtimeBars streams five-second bars. Cancel sends CancelRealtimeBars.
func (c *Conn) RealtimeBars(ctx context.Context, req RealtimeBarsRequest) (*Subscription, error) {
	id := c.reg.NextID()
	ctx, span := c.startSpan(ctx, "RequestRealtimeBars",
		telemetry.RequestIDKey.Int64(id),
		telemetry.SymbolKey.String(req.Contract.Symbol),
		telemetry.BarSourceKey.String(string(req.WhatToShow)),
	)
	defer span.End()

	sub, err := c.stream(ctx, registry.RequestKey(id), registry.Stream, nil,
		command.RequestRealtimeBars{RequestID: id, Contract: req.Contract, WhatToShow: req.WhatToShow, UseRTH: req.UseRTH},
		func(ctx context.Context) error { return c.send(ctx, command.CancelRealtimeBars{RequestID: id}) })
	recordErr(span, err)
	return sub, err
}

// AccountSummary streams summary values for group ("All" when empty).
// Cancel sends CancelAccountSummary.
func (c *Conn) AccountSummary(ctx context.Context, group string, tags []string) (*Subscription, error) {
	id := c.reg.NextID()
	ctx, span := c.startSpan(ctx, "RequestAccountSummary", telemetry.RequestIDKey.Int64(id))
	defer span.End()

	sub, err := c.stream(ctx, registry.RequestKey(id), registry.Stream, nil,
		command.RequestAccountSummary{RequestID: id, Group: group, Tags: tags},
		func(ctx context.Context) error { return c.send(ctx, command.CancelAccountSummary{RequestID: id}) })
	recordErr(span, err)
	return sub, err
}

// AccountUpdates streams account values and portfolio positions for
// account. Cancel unsubscribes.
func (c *Conn) AccountUpdates(ctx context.Context, account string) (*Subscription, error) {
	ctx, span := c.startSpan(ctx, "RequestAccountUpdates", telemetry.AccountKey.String(account))
	defer span.End()

	sub, err := c.stream(ctx, registry.TopicKey(registry.TopicAccountUpdates), registry.Stream, nil,
		command.RequestAccountUpdates{Subscribe: true, Account: account},
		func(ctx context.Context) error {
			return c.send(ctx, command.RequestAccountUpdates{Subscribe: false, Account: account})
		})
	recordErr(span, err)
	return sub, err
}

// MarketData starts a quote stream. A snapshot request retires by itself
// after TickSnapshotEnd; a live stream runs until Cancel, which sends
// CancelMarketData.
func (c *Conn) MarketData(ctx context.Context, req MarketDataRequest) (*Subscription, error) {
	id := c.reg.NextID()
	ctx, span := c.startSpan(ctx, "RequestMarketData", telemetry.RequestIDKey.Int64(id), telemetry.SymbolKey.String(req.Contract.Symbol))
	defer span.End()

	cmd := command.RequestMarketData{
		RequestID:          id,
		Contract:           req.Contract,
		GenericTicks:       req.GenericTicks,
		Snapshot:           req.Snapshot,
		RegulatorySnapshot: req.RegulatorySnapshot,
	}
	var terminal func(message.Event) bool
	mode := registry.Stream
	cancel := func(ctx context.Context) error { return c.send(ctx, command.CancelMarketData{RequestID: id}) }
	if req.Snapshot || req.RegulatorySnapshot {
		mode, terminal, cancel = registry.Collect, isEnd(message.CodeTickSnapshotEnd), nil
	}

	sub, err := c.stream(ctx, registry.RequestKey(id), mode, terminal, cmd, cancel)
	recordErr(span, err)
	return sub, err
}
