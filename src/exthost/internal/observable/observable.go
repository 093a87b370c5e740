// Package observable provides a small push-based snapshot store: a single writer publishes whole values and any
// number of readers observe them, in publication order.
package observable

import (
	"sync"
	"sync/atomic"
)

// Observable is a push-based stream of values.
type Observable[T any] interface {
	// Subscribe registers observer to receive values until the returned Subscription is unsubscribed.
	Subscribe(observer func(T)) Subscription
}

// Func adapts a subscribe function to the Observable interface.
type Func[T any] func(observer func(T)) Subscription

// Subscribe implements Observable.
func (f Func[T]) Subscribe(observer func(T)) Subscription {
	return f(observer)
}

// Subscription releases the resources held by a subscription.
type Subscription interface {
	Unsubscribe()
}

// SubscriptionFunc adapts a function to the Subscription interface. The function is called at most once.
type SubscriptionFunc func()

// Unsubscribe implements Subscription.
func (f SubscriptionFunc) Unsubscribe() {
	if f != nil {
		f()
	}
}

// Subscriptions is a group of subscriptions released together.
type Subscriptions struct {
	mu     sync.Mutex
	subs   []Subscription
	closed bool
}

// Add adds sub to the group. If the group was already unsubscribed, sub is released immediately.
func (s *Subscriptions) Add(sub Subscription) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		sub.Unsubscribe()
		return
	}
	s.subs = append(s.subs, sub)
	s.mu.Unlock()
}

// Unsubscribe releases every subscription in the group, most recently added first.
func (s *Subscriptions) Unsubscribe() {
	s.mu.Lock()
	subs := s.subs
	s.subs = nil
	s.closed = true
	s.mu.Unlock()

	for i := len(subs) - 1; i >= 0; i-- {
		subs[i].Unsubscribe()
	}
}

type observerEntry[T any] struct {
	fn     func(T)
	active *atomic.Bool
}

// Subject holds the latest published value and replays it to each new subscriber.
// Deliveries are serialized: observers see values in publication order and are never called concurrently by
// the same Subject. Observers must not publish to the Subject that is calling them.
type Subject[T any] struct {
	emitMu sync.Mutex

	mu        sync.RWMutex
	value     T
	observers []observerEntry[T]
}

// NewSubject creates a Subject holding initial.
func NewSubject[T any](initial T) *Subject[T] {
	return &Subject[T]{value: initial}
}

// Value returns the latest published value.
func (s *Subject[T]) Value() T {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.value
}

// Next publishes v to every current observer.
func (s *Subject[T]) Next(v T) {
	s.emitMu.Lock()
	defer s.emitMu.Unlock()

	s.mu.Lock()
	s.value = v
	observers := append([]observerEntry[T](nil), s.observers...)
	s.mu.Unlock()

	for _, o := range observers {
		if o.active.Load() {
			o.fn(v)
		}
	}
}

// Update atomically derives the next value from the current one and publishes it.
func (s *Subject[T]) Update(fn func(current T) T) T {
	s.emitMu.Lock()
	defer s.emitMu.Unlock()

	s.mu.Lock()
	next := fn(s.value)
	s.value = next
	observers := append([]observerEntry[T](nil), s.observers...)
	s.mu.Unlock()

	for _, o := range observers {
		if o.active.Load() {
			o.fn(next)
		}
	}
	return next
}

// Subscribe implements Observable. The observer is called synchronously with the current value before
// Subscribe returns.
func (s *Subject[T]) Subscribe(observer func(T)) Subscription {
	s.emitMu.Lock()
	defer s.emitMu.Unlock()

	entry := observerEntry[T]{fn: observer, active: &atomic.Bool{}}
	entry.active.Store(true)

	s.mu.Lock()
	s.observers = append(s.observers, entry)
	current := s.value
	s.mu.Unlock()

	observer(current)

	var once sync.Once
	return SubscriptionFunc(func() {
		once.Do(func() {
			entry.active.Store(false)
			s.remove(entry.active)
		})
	})
}

// ObserverCount returns the number of active observers.
func (s *Subject[T]) ObserverCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.observers)
}

func (s *Subject[T]) remove(active *atomic.Bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, o := range s.observers {
		if o.active == active {
			s.observers = append(s.observers[:i:i], s.observers[i+1:]...)
			return
		}
	}
}
