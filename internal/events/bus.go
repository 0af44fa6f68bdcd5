package events

import "sync"

// Bus is a synchronous in-process pub-sub. Handlers run on the publishing
// goroutine in subscription order.
type Bus[E any] struct {
	mu       sync.RWMutex
	next     uint64
	handlers map[uint64]func(E)
	order    []uint64
}

// NewBus creates an empty bus.
func NewBus[E any]() *Bus[E] {
	return &Bus[E]{handlers: make(map[uint64]func(E))}
}

// Subscribe registers fn and returns a function removing it. The returned
// function is idempotent.
func (b *Bus[E]) Subscribe(fn func(E)) (unsubscribe func()) {
	b.mu.Lock()
	id := b.next
	b.next++
	b.handlers[id] = fn
	b.order = append(b.order, id)
	b.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			delete(b.handlers, id)
			for i, v := range b.order {
				if v == id {
					b.order = append(b.order[:i], b.order[i+1:]...)
					break
				}
			}
		})
	}
}

// Publish delivers evt to every current subscriber and returns how many ran.
// Handlers may subscribe or unsubscribe while being called.
func (b *Bus[E]) Publish(evt E) int {
	b.mu.RLock()
	fns := make([]func(E), 0, len(b.order))
	for _, id := range b.order {
		fns = append(fns, b.handlers[id])
	}
	b.mu.RUnlock()

	for _, fn := range fns {
		fn(evt)
	}
	return len(fns)
}

// Len returns the number of subscribers.
func (b *Bus[E]) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.order)
}
