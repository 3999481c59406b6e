package session

import "sync"

// Listener is called after every effective transition with the new state.
type Listener func(State)

// Store holds the current State and serialises dispatches. Listeners run
// outside the lock, in subscription order, and may dispatch.
type Store struct {
	reducer Reducer

	mu        sync.Mutex
	state     State
	listeners map[int]Listener
	nextID    int
}

// NewStore returns a store starting at initial.
func NewStore(r Reducer, initial State) *Store {
	return &Store{
		reducer:   r,
		state:     initial,
		listeners: make(map[int]Listener),
	}
}

// State returns the current state.
func (s *Store) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Dispatch applies the action and reports whether the state changed.
func (s *Store) Dispatch(a Action) (State, bool) {
	s.mu.Lock()
	prev := s.state
	next := s.reducer.Reduce(prev, a)
	changed := next.Version != prev.Version
	s.state = next
	listeners := s.snapshotListeners()
	s.mu.Unlock()

	if changed {
		for _, l := range listeners {
			l(next)
		}
	}
	return next, changed
}

// Subscribe registers l and returns a function removing it.
func (s *Store) Subscribe(l Listener) func() {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := s.nextID
	s.nextID++
	s.listeners[id] = l
	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		delete(s.listeners, id)
	}
}

func (s *Store) snapshotListeners() []Listener {
	out := make([]Listener, 0, len(s.listeners))
	for id := 0; id < s.nextID; id++ {
		if l, ok := s.listeners[id]; ok {
			out = append(out, l)
		}
	}
	return out
}
