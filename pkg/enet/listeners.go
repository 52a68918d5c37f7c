package enet

import "sync"

// listeners is an ordered set of callbacks. add returns a function that
// removes the callback again.
type listeners[F any] struct {
	mu    sync.Mutex
	next  int
	items []listener[F]
}

type listener[F any] struct {
	id int
	fn F
}

func (l *listeners[F]) add(fn F) func() {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.next++
	id := l.next
	l.items = append(l.items, listener[F]{id: id, fn: fn})

	return func() {
		l.mu.Lock()
		defer l.mu.Unlock()
		for i, it := range l.items {
			if it.id == id {
				l.items = append(l.items[:i:i], l.items[i+1:]...)
				return
			}
		}
	}
}

// snapshot returns the callbacks registered right now, so that listeners may
// add or remove listeners while being notified.
func (l *listeners[F]) snapshot() []F {
	l.mu.Lock()
	defer l.mu.Unlock()

	fns := make([]F, len(l.items))
	for i, it := range l.items {
		fns[i] = it.fn
	}
	return fns
}
