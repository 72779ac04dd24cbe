package event

import "errors"

// Topic is an ordered list of subscribers for one event type. Publish calls
// every subscriber synchronously, in subscription order, on the caller's
// goroutine. Accessed only from the game loop goroutine, no locks.
type Topic[T any] struct {
	subs   []subscription[T]
	nextID int
}

type subscription[T any] struct {
	id int
	fn func(T) error
}

// Subscribe appends fn and returns a function that removes it again.
func (t *Topic[T]) Subscribe(fn func(T) error) (unsubscribe func()) {
	t.nextID++
	id := t.nextID
	t.subs = append(t.subs, subscription[T]{id: id, fn: fn})
	return func() {
		for i, s := range t.subs {
			if s.id == id {
				t.subs = append(t.subs[:i:i], t.subs[i+1:]...)
				return
			}
		}
	}
}

// Publish delivers ev to every subscriber. A failing subscriber does not stop
// the rest; all failures come back joined.
func (t *Topic[T]) Publish(ev T) error {
	var errs []error
	for _, s := range t.subs {
		if err := s.fn(ev); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Len returns the number of subscribers.
func (t *Topic[T]) Len() int { return len(t.subs) }

// Bus groups the population lifecycle topics. It is owned by the simulation
// root and handed to the systems that publish or consume.
type Bus struct {
	Promoted   Topic[Promoted]
	Demoted    Topic[Demoted]
	Evicted    Topic[Evicted]
	Died       Topic[Died]
	Reconciled Topic[Reconciled]
}

func NewBus() *Bus {
	return &Bus{}
}
