package client

import (
	"go.uber.org/zap"

	"github.com/YaganovValera/ibkr-collector/pkg/ibapi/message"
	"github.com/YaganovValera/ibkr-collector/pkg/ibapi/registry"
)

// topicKeys maps id-less events to the topics that wait for them.
func topicKeys(ev message.Event) []registry.Key {
	switch e := ev.(type) {
	case message.OrderStatus:
		return []registry.Key{registry.OrderKey(e.OrderID)}
	case message.ExecutionData:
		return []registry.Key{registry.OrderKey(e.Execution.OrderID)}
	case message.OpenOrder:
		return []registry.Key{registry.TopicKey(registry.TopicOpenOrders), registry.OrderKey(e.OrderID)}
	case message.OpenOrderEnd:
		return []registry.Key{registry.TopicKey(registry.TopicOpenOrders)}
	case message.CompletedOrder, message.CompletedOrdersEnd:
		return []registry.Key{registry.TopicKey(registry.TopicCompletedOrders)}
	case message.AccountValue, message.PortfolioValue, message.AccountUpdateTime, message.AccountDownloadEnd:
		return []registry.Key{registry.TopicKey(registry.TopicAccountUpdates)}
	case message.NextValidID:
		return []registry.Key{registry.TopicKey(registry.TopicNextValidID)}
	case message.CurrentTime:
		return []registry.Key{registry.TopicKey(registry.TopicCurrentTime)}
	case message.ManagedAccounts:
		return []registry.Key{registry.TopicKey(registry.TopicManagedAccounts)}
	}
	return nil
}

// dispatch runs on the read loop and never blocks.
//
// Events carrying a request id go to that request only; a missing waiter
// is a counted drop. Errors try the request space, then the order space.
// Everything that found no waiter lands on the unsolicited channel.
func (c *Conn) dispatch(ev message.Event) {
	switch e := ev.(type) {
	case message.ErrorMessage:
		c.dispatchError(e)
		return
	case message.NextValidID:
		c.observeOrderID(e.OrderID)
	case message.ManagedAccounts:
		c.accounts.Store(e.Accounts)
	}

	if id, ok := ev.RequestID(); ok {
		c.reg.Resolve(registry.RequestKey(id), ev)
		return
	}

	delivered := false
	for _, k := range topicKeys(ev) {
		if c.reg.Has(k) && c.reg.Resolve(k, ev) == registry.Delivered {
			delivered = true
		}
	}
	if !delivered {
		c.publish(ev)
	}
}

func (c *Conn) dispatchError(e message.ErrorMessage) {
	if id, ok := e.RequestID(); ok {
		for _, k := range []registry.Key{registry.RequestKey(id), registry.OrderKey(id)} {
			if c.reg.Has(k) && c.reg.Resolve(k, e) == registry.Delivered {
				return
			}
		}
	}
	if e.IsWarning() {
		c.log.Debug("gateway notice", zap.Int64("id", e.ID), zap.Int("code", e.ErrCode), zap.String("msg", e.Message))
	} else {
		c.log.Warn("gateway error", zap.Int64("id", e.ID), zap.Int("code", e.ErrCode), zap.String("msg", e.Message))
	}
	c.publish(e)
}

func (c *Conn) publish(ev message.Event) {
	select {
	case c.events <- ev:
	default:
		unsolicitedDrops.Inc()
		c.log.Debug("event buffer full, dropping", zap.Int("code", ev.Code()))
	}
}

func (c *Conn) observeOrderID(id int64) {
	for {
		cur := c.nextOrderID.Load()
		if id <= cur || c.nextOrderID.CompareAndSwap(cur, id) {
			return
		}
	}
}
