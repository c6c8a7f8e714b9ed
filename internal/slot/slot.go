// Package slot provides a single-slot, last-write-wins publication cell.
//
// A Slot holds at most one value. Store replaces the previous value
// atomically, so a reader observes either the old or the new value and
// never a partially written one. Values must not be mutated after Store.
package slot

import (
	"context"
	"sync/atomic"
)

// cell is an immutable published state. changed is closed when the cell
// is replaced, which wakes every Wait call parked on it.
type cell[T any] struct {
	value   *T
	version uint64
	read    atomic.Bool
	changed chan struct{}
}

// Slot is a single-slot mailbox with overwrite semantics.
// The zero value is an empty slot ready to use.
type Slot[T any] struct {
	cur        atomic.Pointer[cell[T]]
	overwrites atomic.Uint64
}

// New returns an empty slot
func New[T any]() *Slot[T] {
	return &Slot[T]{}
}

func (s *Slot[T]) head() *cell[T] {
	for {
		if c := s.cur.Load(); c != nil {
			return c
		}
		s.cur.CompareAndSwap(nil, &cell[T]{changed: make(chan struct{})})
	}
}

// Store publishes v, replacing any previous value, and returns the new version
func (s *Slot[T]) Store(v *T) uint64 {
	for {
		old := s.head()
		next := &cell[T]{
			value:   v,
			version: old.version + 1,
			changed: make(chan struct{}),
		}
		if !s.cur.CompareAndSwap(old, next) {
			continue
		}
		if old.value != nil && !old.read.Load() {
			s.overwrites.Add(1)
		}
		close(old.changed)
		return next.version
	}
}

// Clear empties the slot. Readers see nil until the next Store.
func (s *Slot[T]) Clear() uint64 {
	return s.Store(nil)
}

// Load returns the current value, nil if empty
func (s *Slot[T]) Load() *T {
	v, _ := s.LoadVersion()
	return v
}

// LoadVersion returns the current value and the version it was stored with
func (s *Slot[T]) LoadVersion() (*T, uint64) {
	c := s.head()
	c.read.Store(true)
	return c.value, c.version
}

// Version returns the number of Store and Clear calls so far
func (s *Slot[T]) Version() uint64 {
	return s.head().version
}

// Overwrites counts values that were replaced before anyone loaded them
func (s *Slot[T]) Overwrites() uint64 {
	return s.overwrites.Load()
}

// Wait blocks until a version newer than after is published or ctx is done.
// The returned value may be nil if the slot was cleared.
func (s *Slot[T]) Wait(ctx context.Context, after uint64) (*T, uint64, error) {
	for {
		c := s.head()
		if c.version > after {
			c.read.Store(true)
			return c.value, c.version, nil
		}
		select {
		case <-c.changed:
		case <-ctx.Done():
			return nil, c.version, ctx.Err()
		}
	}
}
