package application

import "sync"

// State is an observable value. Listeners run synchronously after every Set
// or Update, outside the lock, in subscription order.
type State[T any] struct {
	mu     sync.Mutex
	value  T
	nextID int
	subs   []stateListener[T]
}

type stateListener[T any] struct {
	id int
	fn func(T)
}

func NewState[T any](initial T) *State[T] {
	return &State[T]{value: initial}
}

func (s *State[T]) Get() T {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.value
}

func (s *State[T]) Set(v T) {
	s.mu.Lock()
	s.value = v
	listeners := append([]stateListener[T](nil), s.subs...)
	s.mu.Unlock()

	s.notify(listeners, v)
}

// Update applies fn to the current value atomically and returns the result.
func (s *State[T]) Update(fn func(T) T) T {
	s.mu.Lock()
	v := fn(s.value)
	s.value = v
	listeners := append([]stateListener[T](nil), s.subs...)
	s.mu.Unlock()

	s.notify(listeners, v)
	return v
}

func (s *State[T]) Subscribe(fn func(T)) (unsubscribe func()) {
	s.mu.Lock()
	s.nextID++
	id := s.nextID
	s.subs = append(s.subs, stateListener[T]{id: id, fn: fn})
	s.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			defer s.mu.Unlock()
			for i, l := range s.subs {
				if l.id == id {
					s.subs = append(s.subs[:i:i], s.subs[i+1:]...)
					return
				}
			}
		})
	}
}

func (s *State[T]) notify(listeners []stateListener[T], v T) {
	for _, l := range listeners {
		l.fn(v)
	}
}
