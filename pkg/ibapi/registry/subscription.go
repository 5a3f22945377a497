package registry

import (
	"context"
	"sync"
)

// Subscription is the consumer side of one registration.
type Subscription[T any] struct {
	reg        *Registry[T]
	key        Key
	mode       Mode
	isTerminal func(T) bool

	mu       sync.Mutex
	queue    []Delivery[T]
	finished bool

	wake     chan struct{}
	halt     chan struct{}
	haltOnce sync.Once
	out      chan Delivery[T]
}

func newSubscription[T any](r *Registry[T], key Key, mode Mode, isTerminal func(T) bool) *Subscription[T] {
	s := &Subscription[T]{
		reg:        r,
		key:        key,
		mode:       mode,
		isTerminal: isTerminal,
		wake:       make(chan struct{}, 1),
		halt:       make(chan struct{}),
		out:        make(chan Delivery[T]),
	}
	go s.pump()
	return s
}

func (s *Subscription[T]) Key() Key   { return s.key }
func (s *Subscription[T]) Mode() Mode { return s.mode }

// C delivers values in arrival order. It is closed after the final
// delivery of a retired registration or after Cancel.
func (s *Subscription[T]) C() <-chan Delivery[T] { return s.out }

// Cancel removes the registration and closes C. Pending values are discarded.
func (s *Subscription[T]) Cancel() {
	s.reg.remove(s)
	s.stop()
}

// Next waits for the next value. It returns the delivered error, ctx.Err()
// or ErrSubscriptionClosed.
func (s *Subscription[T]) Next(ctx context.Context) (T, error) {
	var zero T
	select {
	case d, ok := <-s.out:
		if !ok {
			return zero, ErrSubscriptionClosed
		}
		return d.Value, d.Err
	case <-ctx.Done():
		return zero, ctx.Err()
	}
}

func (s *Subscription[T]) push(d Delivery[T], last bool) {
	s.mu.Lock()
	if !s.finished {
		s.queue = append(s.queue, d)
		s.finished = last
	}
	s.mu.Unlock()

	select {
	case s.wake <- struct{}{}:
	default:
	}
}

func (s *Subscription[T]) stop() {
	s.haltOnce.Do(func() { close(s.halt) })
}

func (s *Subscription[T]) pump() {
	defer close(s.out)
	for {
		s.mu.Lock()
		if len(s.queue) == 0 {
			done := s.finished
			s.mu.Unlock()
			if done {
				return
			}
			select {
			case <-s.wake:
			case <-s.halt:
				return
			}
			continue
		}
		d := s.queue[0]
		s.queue[0] = Delivery[T]{}
		s.queue = s.queue[1:]
		s.mu.Unlock()

		select {
		case s.out <- d:
		case <-s.halt:
			return
		}
	}
}
