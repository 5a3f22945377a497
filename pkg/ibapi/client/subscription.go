package client

import (
	"context"
	"fmt"
	"sync"

	"github.com/YaganovValera/ibkr-collector/pkg/ibapi/message"
	"github.com/YaganovValera/ibkr-collector/pkg/ibapi/registry"
)

// APIError is an error message the gateway sent for a request or order.
type APIError struct {
	ID      int64
	Code    int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("ibapi: gateway error %d for id %d: %s", e.Code, e.ID, e.Message)
}

func apiError(e message.ErrorMessage) *APIError {
	return &APIError{ID: e.ID, Code: e.ErrCode, Message: e.Message}
}

// Subscription is a live stream of correlated events.
type Subscription struct {
	id     int64
	sub    *registry.Subscription[message.Event]
	cancel func(context.Context) error
	once   sync.Once
}

// ID is the request id, the order id or the topic number of the stream.
func (s *Subscription) ID() int64 { return s.id }

// C is the raw delivery channel. A Delivery with Err set is the last one.
func (s *Subscription) C() <-chan registry.Delivery[message.Event] { return s.sub.C() }

// Next returns the next event. Gateway errors that are not warnings come
// back as *APIError; the stream stays registered until Cancel.
func (s *Subscription) Next(ctx context.Context) (message.Event, error) {
	ev, err := s.sub.Next(ctx)
	if err != nil {
		return nil, err
	}
	if em, ok := ev.(message.ErrorMessage); ok && !em.IsWarning() {
		return nil, apiError(em)
	}
	return ev, nil
}

// Cancel stops delivery and tells the gateway to stop sending when the
// stream has a cancel request. Safe to call more than once.
func (s *Subscription) Cancel(ctx context.Context) error {
	var err error
	s.once.Do(func() {
		s.sub.Cancel()
		if s.cancel != nil {
			err = s.cancel(ctx)
		}
	})
	return err
}

// OrderTicket follows one placed order: OrderStatus, OpenOrder, live
// ExecutionData and ErrorMessage events for its order id.
type OrderTicket struct {
	*Subscription
}

func (t *OrderTicket) OrderID() int64 { return t.id }

// WaitStatus returns the first OrderStatus accepted by until.
func (t *OrderTicket) WaitStatus(ctx context.Context, until func(message.OrderStatus) bool) (message.OrderStatus, error) {
	for {
		ev, err := t.Next(ctx)
		if err != nil {
			return message.OrderStatus{}, err
		}
		if st, ok := ev.(message.OrderStatus); ok && (until == nil || until(st)) {
			return st, nil
		}
	}
}
