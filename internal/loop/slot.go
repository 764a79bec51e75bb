package loop

import (
	"errors"
	"sync"
)

// ErrWaitPending is returned when a second waiter tries to register on a
// slot that already has one.
var ErrWaitPending = errors.New("a wait is already pending")

// Slot holds at most one waiter. A value resolved while no waiter is
// registered is discarded, so late deliveries for a finished wait never
// leak into the next one.
type Slot[T any] struct {
	mu sync.Mutex
	ch chan T
}

// Register installs the single waiter and returns the channel its value will
// arrive on.
func (s *Slot[T]) Register() (<-chan T, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ch != nil {
		return nil, ErrWaitPending
	}
	s.ch = make(chan T, 1)
	return s.ch, nil
}

// Resolve hands v to the registered waiter and clears the slot. It reports
// false when there was no waiter.
func (s *Slot[T]) Resolve(v T) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ch == nil {
		return false
	}
	s.ch <- v
	s.ch = nil
	return true
}

// Clear drops the registered waiter without resolving it.
func (s *Slot[T]) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ch = nil
}

// Pending reports whether a waiter is registered.
func (s *Slot[T]) Pending() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ch != nil
}

// Latch is a mutex-guarded cell for the verdict captured from the push stream.
type Latch[T any] struct {
	mu  sync.Mutex
	v   T
	set bool
}

// Store replaces the held value.
func (l *Latch[T]) Store(v T) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.v = v
	l.set = true
}

// Take returns the held value and empties the latch.
func (l *Latch[T]) Take() (T, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	v, ok := l.v, l.set
	var zero T
	l.v = zero
	l.set = false
	return v, ok
}

// Reset empties the latch.
func (l *Latch[T]) Reset() {
	l.Take()
}
