package identity

import (
	"context"
	"sync"
)

// Listener handles one identity change. Listeners run one at a time, in the
// order changes were set, and must not call Set on the same Signal.
type Listener func(ctx context.Context, change Change)

// Signal holds the current identity and delivers every change to its listeners.
type Signal struct {
	mu        sync.RWMutex
	current   State
	listeners map[int]Listener
	nextID    int

	dispatch sync.Mutex
}

func NewSignal(initial State) *Signal {
	return &Signal{current: initial, listeners: map[int]Listener{}}
}

// Current returns the latest identity.
func (s *Signal) Current() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current
}

// Set replaces the identity and synchronously notifies listeners when the
// principal changed. It returns the classified change.
func (s *Signal) Set(ctx context.Context, next State) Change {
	s.dispatch.Lock()
	defer s.dispatch.Unlock()

	s.mu.Lock()
	change := Change{Prev: s.current, Next: next}
	s.current = next
	listeners := make([]Listener, 0, len(s.listeners))
	for id := 0; id < s.nextID; id++ {
		if l, ok := s.listeners[id]; ok {
			listeners = append(listeners, l)
		}
	}
	s.mu.Unlock()

	if change.Kind() == Unchanged {
		return change
	}
	for _, l := range listeners {
		l(ctx, change)
	}
	return change
}

// Subscribe registers l and returns a function that removes it.
func (s *Signal) Subscribe(l Listener) func() {
	s.mu.Lock()
	id := s.nextID
	s.nextID++
	s.listeners[id] = l
	s.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			delete(s.listeners, id)
			s.mu.Unlock()
		})
	}
}
