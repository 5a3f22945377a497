// Package registry correlates inbound events with the callers waiting for them.
//
// A Registry issues request ids and keeps one Subscription per live key.
// Resolve never blocks: every subscription owns an unbounded mailbox that a
// dedicated goroutine pumps into the subscription channel in arrival order.
package registry

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
)

var (
	ErrDuplicateKey = errors.New("registry: key already registered")
	// ErrSubscriptionClosed is returned by Subscription.Next once the channel is drained.
	ErrSubscriptionClosed = errors.New("registry: subscription closed")
)

// Space separates id namespaces that may overlap numerically.
type Space uint8

const (
	SpaceRequest Space = iota + 1
	SpaceOrder
	SpaceTopic
)

func (s Space) String() string {
	switch s {
	case SpaceRequest:
		return "request"
	case SpaceOrder:
		return "order"
	case SpaceTopic:
		return "topic"
	}
	return "unknown"
}

// Topic names responses that carry no id of their own.
type Topic int64

const (
	TopicCurrentTime Topic = iota + 1
	TopicAccountUpdates
	TopicOpenOrders
	TopicCompletedOrders
	TopicManagedAccounts
	TopicNextValidID
)

type Key struct {
	Space Space
	ID    int64
}

func RequestKey(id int64) Key { return Key{Space: SpaceRequest, ID: id} }
func OrderKey(id int64) Key   { return Key{Space: SpaceOrder, ID: id} }
func TopicKey(t Topic) Key    { return Key{Space: SpaceTopic, ID: int64(t)} }

func (k Key) String() string { return fmt.Sprintf("%s/%d", k.Space, k.ID) }

// Mode decides when a registration retires.
type Mode int

const (
	// SingleShot retires after the first delivery.
	SingleShot Mode = iota
	// Collect retires after the delivery its terminal predicate accepts.
	Collect
	// Stream stays live until cancelled or failed.
	Stream
)

func (m Mode) String() string {
	switch m {
	case SingleShot:
		return "single-shot"
	case Collect:
		return "collect"
	case Stream:
		return "stream"
	}
	return "unknown"
}

// Outcome of a Resolve call.
type Outcome int

const (
	Delivered Outcome = iota
	DroppedNoWaiter
)

// Delivery is one item on a subscription channel: a value or a terminal error.
type Delivery[T any] struct {
	Value T
	Err   error
}

type options struct {
	startID int64
	onDrop  func(Key)
}

type Option func(*options)

// WithStartID sets the first id returned by NextID. Default 1.
func WithStartID(id int64) Option {
	return func(o *options) { o.startID = id }
}

// WithDropHook is called for every resolution that found no waiter.
func WithDropHook(fn func(Key)) Option {
	return func(o *options) { o.onDrop = fn }
}

type Registry[T any] struct {
	mu       sync.Mutex
	subs     map[Key]*Subscription[T]
	closeErr error

	next    atomic.Int64
	dropped atomic.Int64
	onDrop  func(Key)
}

func New[T any](opts ...Option) *Registry[T] {
	o := options{startID: 1}
	for _, opt := range opts {
		opt(&o)
	}
	r := &Registry[T]{subs: make(map[Key]*Subscription[T]), onDrop: o.onDrop}
	r.next.Store(o.startID)
	return r
}

// NextID returns a fresh request id. Ids strictly increase and are never reused.
func (r *Registry[T]) NextID() int64 {
	return r.next.Add(1) - 1
}

// Register adds a waiter for key. isTerminal is consulted in Collect mode
// only and may be nil for the other modes. After FailAll every call
// returns the error FailAll was given.
func (r *Registry[T]) Register(key Key, mode Mode, isTerminal func(T) bool) (*Subscription[T], error) {
	if mode == Collect && isTerminal == nil {
		return nil, fmt.Errorf("registry: collect mode for %s needs a terminal predicate", key)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closeErr != nil {
		return nil, r.closeErr
	}
	if _, ok := r.subs[key]; ok {
		return nil, fmt.Errorf("%w: %s", ErrDuplicateKey, key)
	}
	s := newSubscription(r, key, mode, isTerminal)
	r.subs[key] = s
	return s, nil
}

// Resolve hands v to the waiter registered under key. Without a waiter
// the value is counted and discarded.
func (r *Registry[T]) Resolve(key Key, v T) Outcome {
	r.mu.Lock()
	s, ok := r.subs[key]
	if !ok {
		r.mu.Unlock()
		r.drop(key)
		return DroppedNoWaiter
	}
	retire := s.mode == SingleShot || (s.mode == Collect && s.isTerminal(v))
	if retire {
		delete(r.subs, key)
	}
	s.push(Delivery[T]{Value: v}, retire)
	r.mu.Unlock()
	return Delivered
}

// Cancel removes the waiter for key; its channel closes without further
// deliveries. It reports whether a waiter existed.
func (r *Registry[T]) Cancel(key Key) bool {
	r.mu.Lock()
	s, ok := r.subs[key]
	if ok {
		delete(r.subs, key)
	}
	r.mu.Unlock()
	if ok {
		s.stop()
	}
	return ok
}

// Fail delivers err to the waiter for key and retires it.
func (r *Registry[T]) Fail(key Key, err error) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.subs[key]
	if !ok {
		return false
	}
	delete(r.subs, key)
	s.push(Delivery[T]{Err: err}, true)
	return true
}

// FailAll delivers err to every waiter and refuses later registrations.
func (r *Registry[T]) FailAll(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closeErr == nil {
		r.closeErr = err
	}
	for k, s := range r.subs {
		s.push(Delivery[T]{Err: err}, true)
		delete(r.subs, k)
	}
}

// Has reports whether key has a live waiter.
func (r *Registry[T]) Has(key Key) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.subs[key]
	return ok
}

func (r *Registry[T]) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.subs)
}

// Dropped is the number of resolutions that found no waiter.
func (r *Registry[T]) Dropped() int64 { return r.dropped.Load() }

func (r *Registry[T]) drop(key Key) {
	r.dropped.Add(1)
	if r.onDrop != nil {
		r.onDrop(key)
	}
}

func (r *Registry[T]) remove(s *Subscription[T]) {
	r.mu.Lock()
	if cur, ok := r.subs[s.key]; ok && cur == s {
		delete(r.subs, s.key)
	}
	r.mu.Unlock()
}
